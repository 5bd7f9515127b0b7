package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undergrace/mbc/pkg/mbc"
	"github.com/undergrace/mbc/pkg/middleware"
)

var (
	runName         string
	runSystemPrompt string
	runProvider     string
	runModel        string
	runMaxTurns     int
)

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Run a single session to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "cli-session", "session name")
	runCmd.Flags().StringVar(&runSystemPrompt, "system", "", "system prompt")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "provider backend (default from config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "max turns override")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	prov, err := rt.provider(runProvider)
	if err != nil {
		return err
	}

	providerName := runProvider
	if providerName == "" {
		providerName = rt.cfg.DefaultProvider
	}

	cfg := rt.cfg.SessionConfig(providerName)
	if runModel != "" {
		cfg.Model = runModel
	}
	if runMaxTurns > 0 {
		cfg.MaxTurns = runMaxTurns
	}

	deps := mbc.Deps{
		Provider:      prov,
		Store:         rt.store,
		Logger:        rt.logger.Logger,
		MaxConcurrent: rt.cfg.Limits.MaxConcurrentSessions,
		Middleware: []mbc.Middleware{
			middleware.NewLogTurns(rt.logger.Logger),
			middleware.NewCostTracker(cfg.Model, rt.logger.Logger),
		},
	}

	session := mbc.NewSession(runName, deps).
		SystemPrompt(runSystemPrompt).
		Config(cfg)

	if err := session.Start(cmd.Context(), args[0]); err != nil {
		return err
	}

	result := session.Result()
	fmt.Printf("\n%s\n\n", result.FinalMessage)
	fmt.Printf("Session %s finished: %s, %d turns, $%.6f\n",
		result.UUID, result.Status, result.TotalTurns, result.EstimatedCostUSD)
	return nil
}
