package cmd

import (
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan [files...]",
		Short:         "Show the preview plan (probe-only) without encoding",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		PreRunE:       runPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args, runMode{
				ForceTUI:   false,
				DryRunOnly: true,
			})
		},
	}
	// Reuse same flags; plan skips the encode entirely
	bindRunFlags(cmd.Flags())
	return cmd
}
