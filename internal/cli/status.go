package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <uuid>",
	Short: "Show the status of a session",
	Long:  `Show a session's persisted state and its turn history.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	uuid := args[0]

	session, err := rt.store.GetSession(cmd.Context(), uuid)
	if err != nil {
		return fmt.Errorf("session not found: %s", uuid)
	}

	fmt.Printf("Session: %s\n\n", session.Name)
	fmt.Printf("  UUID:           %s\n", session.UUID)
	fmt.Printf("  Status:         %s\n", session.Status)
	fmt.Printf("  Model:          %s\n", session.Model)
	fmt.Printf("  Total Turns:    %d\n", session.TotalTurns)
	fmt.Printf("  Input Tokens:   %d\n", session.TotalInputTokens)
	fmt.Printf("  Output Tokens:  %d\n", session.TotalOutputTokens)
	fmt.Printf("  Estimated Cost: $%.6f\n", session.EstimatedCostUSD)
	fmt.Printf("  Started At:     %s\n", formatTime(session.StartedAt))
	fmt.Printf("  Completed At:   %s\n", formatTime(session.CompletedAt))
	fmt.Printf("  Duration:       %s\n", formatSpan(session.StartedAt, session.CompletedAt))
	if session.Error != "" {
		fmt.Printf("  Error:          %s\n", session.Error)
	}

	turns, err := rt.store.ListTurns(cmd.Context(), uuid)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	fmt.Printf("\nTurns:\n")
	fmt.Printf("  %-4s %-12s %-14s %10s %10s %10s\n", "#", "Type", "Stop Reason", "In", "Out", "Duration")
	for _, turn := range turns {
		stopReason := string(turn.StopReason)
		if stopReason == "" {
			stopReason = "-"
		}
		fmt.Printf("  %-4d %-12s %-14s %10d %10d %8dms\n",
			turn.TurnNumber, turn.Type, stopReason,
			turn.InputTokens, turn.OutputTokens, turn.DurationMs)
	}

	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatSpan(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", end.Sub(*start).Seconds())
}
