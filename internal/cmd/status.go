package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeops/sprintmux/internal/coordinator"
)

var statusCmd = &cobra.Command{
	Use:   "status [sprint]",
	Short: "Show sprint and merge queue status",
	Long:  `Display the status of all sprints, or detailed status for one sprint.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	if len(args) == 1 {
		return printSprintDetail(coord, args[0])
	}

	status := coord.Status()

	fmt.Printf("Sprints: %d\n", len(status.Sprints))
	for _, s := range status.Sprints {
		line := fmt.Sprintf("  %s: %s", s.Name, s.Status.DocText(s.AssignedCoder))
		if s.BranchName != "" {
			line += fmt.Sprintf(" [%s]", s.BranchName)
		}
		fmt.Println(line)
	}

	if len(status.Queue) > 0 {
		fmt.Printf("\nAwaiting assignment: %v\n", status.Queue)
	}

	fmt.Printf("\nCoders:\n")
	for _, c := range status.Coders {
		if c.AssignedSprint != "" {
			fmt.Printf("  Coder-%s: %s (%s)\n", c.ID, c.State, c.AssignedSprint)
		} else {
			fmt.Printf("  Coder-%s: %s\n", c.ID, c.State)
		}
	}

	stats := status.MergeStats
	fmt.Printf("\nMerges: %d total, %d merged, %d failed, %d conflicts resolved, %d human interventions\n",
		stats.TotalSprints, stats.SuccessfulMerges, stats.FailedMerges,
		stats.ConflictsResolved, stats.HumanInterventions)
	return nil
}

func printSprintDetail(coord *coordinator.Coordinator, name string) error {
	s, ok := coord.SprintStatus(name)
	if !ok {
		return fmt.Errorf("sprint not found: %s", name)
	}

	fmt.Printf("Sprint: %s\n", s.Name)
	fmt.Printf("Status: %s\n", s.Status.DocText(s.AssignedCoder))
	if s.AssignedCoder != "" {
		fmt.Printf("Coder: Coder-%s\n", s.AssignedCoder)
	}
	if s.BranchName != "" {
		fmt.Printf("Branch: %s\n", s.BranchName)
	}
	if len(s.Tasks) > 0 {
		fmt.Println("Tasks:")
		for _, t := range s.Tasks {
			fmt.Printf("  %s: %s\n", t.Name, t.Status)
		}
	}
	return nil
}
