package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clipsheet/internal/util/deps"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Diagnose external dependencies (ffmpeg, ffprobe, ImageMagick)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := deps.Find(viper.GetString("ffmpeg"))
			if err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "FFmpeg:  %s\n", tools.FFmpeg)
			fmt.Fprintf(cmd.OutOrStdout(), "FFprobe: %s\n", tools.FFprobe)
			fmt.Fprintf(cmd.OutOrStdout(), "Montage: %s\n", tools.Montage)
			fmt.Fprintf(cmd.OutOrStdout(), "Convert: %s\n", tools.Convert)
			return nil
		},
	}
}
