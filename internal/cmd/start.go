package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeops/sprintmux/internal/event"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the orchestration engine",
	Long: `Start scans the sprint root, watches status documents for changes,
assigns approved sprints to free coders, and promotes finished sprints
into the merge queue. Runs until interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().Bool("quiet", false, "suppress event output")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	coord, cfg, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		coord.Bus().SubscribeAll(printEvent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	defer coord.Stop()

	fmt.Printf("sprintmux running: root=%s coders=%d interval=%s\n",
		cfg.Paths.SprintRoot, len(cfg.Coders.IDs), cfg.Coordinator.PromoteInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	fmt.Printf("received %s, shutting down\n", sig)
	return nil
}

// printEvent renders one lifecycle event for the terminal.
func printEvent(e event.Event) {
	ts := e.Timestamp().Format("15:04:05")
	switch ev := e.(type) {
	case event.SprintStatusChangedEvent:
		fmt.Printf("[%s] %s: %s -> %s\n", ts, ev.SprintName, ev.OldStatus, ev.NewStatus)
	case event.SprintAssignedEvent:
		fmt.Printf("[%s] %s assigned to Coder-%s on %s\n", ts, ev.SprintName, ev.CoderID, ev.Branch)
	case event.CoderFreedEvent:
		fmt.Printf("[%s] Coder-%s free (finished %s)\n", ts, ev.CoderID, ev.SprintName)
	case event.RepairTaskCreatedEvent:
		fmt.Printf("[%s] %s: repair task for Coder-%s\n", ts, ev.SprintName, ev.CoderID)
	case event.MergeStateChangedEvent:
		fmt.Printf("[%s] merge %s (%s): %s -> %s\n", ts, ev.RequestID, ev.SprintName, ev.OldState, ev.NewState)
	case event.MergeCompletedEvent:
		outcome := "merged"
		if !ev.Success {
			outcome = "failed"
		}
		fmt.Printf("[%s] merge %s (%s): %s\n", ts, ev.RequestID, ev.SprintName, outcome)
	case event.HumanReviewRequestedEvent:
		fmt.Printf("[%s] merge %s (%s): needs human review after %d attempts\n",
			ts, ev.RequestID, ev.SprintName, ev.RepairAttempts)
	default:
		fmt.Printf("[%s] %s\n", ts, e.EventType())
	}
}
