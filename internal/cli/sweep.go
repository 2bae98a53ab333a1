package cli

import (
	"fmt"
	"time"

	"github.com/harun/medibook/pkg/conversation"
	"github.com/spf13/cobra"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one session expiry pass",
	Long: `Run one session expiry pass against a freshly constructed store and
print how many sessions were removed. Without --max-age the configured
session.max_age_seconds is used.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0, "evict sessions idle for longer than this (e.g. 24h)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	maxAge := sweepMaxAge
	if !cmd.Flags().Changed("max-age") {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		maxAge = cfg.Session.MaxAge()
	}
	if maxAge <= 0 {
		return fmt.Errorf("max-age must be positive")
	}

	sweeper := conversation.NewSweeper(conversation.NewStore(), maxAge, "")
	removed := sweeper.SweepNow()

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired sessions (max age %s)\n", removed, maxAge)
	return nil
}
