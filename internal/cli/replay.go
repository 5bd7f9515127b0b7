package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undergrace/mbc/pkg/mbc"
)

var replayMessage string

var replayCmd = &cobra.Command{
	Use:   "replay <uuid>",
	Short: "Replay a session with the same configuration",
	Long: `Rebuild a session from its stored system prompt and configuration and
run it again as a new session. The initial message is taken from the
original session's first turn unless overridden.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayMessage, "message", "", "override the initial message")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	uuid := args[0]
	ctx := cmd.Context()

	original, err := rt.store.GetSession(ctx, uuid)
	if err != nil {
		return fmt.Errorf("session not found: %s", uuid)
	}

	fmt.Printf("Replaying session: %s\n", original.Name)
	fmt.Printf("Original status: %s\n\n", original.Status)

	prov, err := rt.provider("")
	if err != nil {
		return err
	}

	deps := mbc.Deps{
		Provider:      prov,
		Store:         rt.store,
		Logger:        rt.logger.Logger,
		MaxConcurrent: rt.cfg.Limits.MaxConcurrentSessions,
	}

	session := mbc.NewSession(original.Name+" (replay)", deps).
		SystemPrompt(original.SystemPrompt).
		Config(mbc.ConfigFromMap(original.Config))

	initialMessage := replayMessage
	if initialMessage == "" {
		initialMessage, err = firstTurnText(ctx, rt, uuid)
		if err != nil {
			return err
		}
	}
	if initialMessage == "" {
		initialMessage = "Replay session"
	}

	fmt.Println("Starting replay...")

	if err := session.Start(ctx, initialMessage); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	result := session.Result()
	fmt.Printf("\nReplay completed\n")
	fmt.Printf("  New UUID: %s\n", result.UUID)
	fmt.Printf("  Status:   %s\n", result.Status)
	fmt.Printf("  Turns:    %d\n", result.TotalTurns)
	fmt.Printf("  Cost:     $%.6f\n", result.EstimatedCostUSD)

	return nil
}

// firstTurnText extracts the text of the original session's first
// persisted turn, best effort.
func firstTurnText(ctx context.Context, rt *runtime, uuid string) (string, error) {
	turns, err := rt.store.ListTurns(ctx, uuid)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	msg := mbc.Message{Content: turns[0].Content}
	return msg.TextContent(), nil
}
