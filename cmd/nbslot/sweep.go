package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove copy helpers left behind by a crashed launch",
	Long: `Remove clone helper containers older than --max-age. Volumes are never
touched. serve runs the same sweep on the sweep.schedule cron schedule.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		maxAge := a.cfg.Sweep.MaxAge
		if cmd.Flags().Changed("max-age") {
			maxAge = sweepMaxAge
		}
		n, err := a.runtime.RemoveStaleHelpers(cmd.Context(), maxAge)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d helper(s)\n", n)
		return err
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 15*time.Minute, "only remove helpers older than this (overrides config)")
}
