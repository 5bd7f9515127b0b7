package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/undergrace/mbc/pkg/janitor"
)

var (
	cleanupZombieAge  time.Duration
	cleanupRetainDays int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run store maintenance once",
	Long: `Mark stale running sessions as failed and prune finished sessions past
the retention window.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupZombieAge, "zombie-age", time.Hour, "mark running sessions idle longer than this as failed")
	cleanupCmd.Flags().IntVar(&cleanupRetainDays, "retain-days", 0, "retention in days for finished sessions (default from config)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	retainDays := cleanupRetainDays
	if retainDays <= 0 {
		retainDays = rt.cfg.Storage.PruneAfterDays
	}

	j := janitor.New(rt.store, janitor.Config{
		ZombieMaxAge:   cleanupZombieAge,
		RetainFinished: time.Duration(retainDays) * 24 * time.Hour,
	}, rt.logger.Logger)

	zombies, err := j.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("zombie sweep failed: %w", err)
	}
	pruned, err := j.Prune(cmd.Context())
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	fmt.Printf("Marked %d stale sessions as failed\n", zombies)
	fmt.Printf("Pruned %d old sessions\n", pruned)
	return nil
}
