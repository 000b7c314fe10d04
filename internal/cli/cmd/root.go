package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"clipsheet/internal/config"
)

const (
	ExitOK          = 0
	ExitCLIError    = 1
	ExitMissingDep  = 2
	ExitProbeError  = 3
	ExitEncodeError = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipsheet [files...]",
		Short:         "Animated previews and contact sheets for video files",
		Long:          "Clipsheet generates a preview set for video files: an animated clip stitched from sampled windows and squeezed under a byte budget, full-size frame grabs, and a labeled contact sheet of timestamped thumbnails.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to the run behavior when no subcommand is specified.
			return runExecute(cmd, args, runMode{
				ForceTUI:   false,
				DryRunOnly: false,
			})
		},
	}

	// Persistent flags available to all subcommands
	root.PersistentFlags().StringP("out-dir", "o", ".", "Output directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "Show full subprocess commands/output")
	root.PersistentFlags().String("ffmpeg", "", "Path to the ffmpeg binary")
	root.PersistentFlags().Int("jobs", 2, "Max concurrent jobs in TUI")

	// Also bind run-specific flags on root, so `clipsheet <file>` works.
	bindRunFlags(root.Flags())

	// Subcommands
	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindRunFlags(fs *pflag.FlagSet) {
	fs.IntP("columns", "c", 5, "Contact sheet columns")
	fs.IntP("rows", "r", 10, "Maximum contact sheet rows; fewer are used for short videos")
	fs.IntP("width", "w", 320, "Width of one contact sheet cell in px")
	fs.IntP("frames", "f", 20, "Number of full-size frame grabs; 0 disables")
	fs.IntP("clips", "n", 5, "Number of clip windows stitched into the animated preview; 0 disables")
	fs.Int("clip-width", 250, "Width of the animated preview in px")
	fs.Float64("clip-length", 3.0, "Length of each clip window in seconds")
	fs.StringP("clip-size", "s", "5MB", "Byte budget for the animated preview (e.g. 5MB, 2MiB, 800KiB)")
	fs.String("format", "gif", "Animated preview format: gif, webp")
	fs.Float64("cut-start", 0, "Seconds to skip at the head of each input")
	fs.Float64("cut-end", 0, "Seconds to skip at the tail of each input")
	fs.BoolP("keep", "k", false, "Keep intermediate clip files and reuse them on rerun")
	fs.StringP("prefix", "p", "", "Artifact file name prefix")
	fs.Bool("dry-run", false, "Show plan without executing")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	_ = config.Init(root)
	return root.ExecuteContext(ctx)
}

func ensureDir(path string) error {
	if path == "" {
		path = "."
	}
	return os.MkdirAll(filepath.Clean(path), 0o755)
}
