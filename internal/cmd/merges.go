package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mergesCmd = &cobra.Command{
	Use:   "merges",
	Short: "Show the merge queue",
	RunE:  runMerges,
}

func init() {
	rootCmd.AddCommand(mergesCmd)
}

func runMerges(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	requests := coord.MergeRequests()
	if len(requests) == 0 {
		fmt.Println("Merge queue is empty")
	}

	for _, r := range requests {
		fmt.Printf("%s\n", r.ID)
		fmt.Printf("  Sprint: %s (Coder-%s)\n", r.SprintName, r.CoderID)
		fmt.Printf("  Branch: %s\n", r.BranchName)
		fmt.Printf("  State: %s\n", r.State)
		if r.TestsPassing != nil {
			fmt.Printf("  Tests passing: %v\n", *r.TestsPassing)
		}
		if r.RepairAttempts > 0 {
			fmt.Printf("  Repair attempts: %d\n", r.RepairAttempts)
		}
		if len(r.ConflictFiles) > 0 {
			fmt.Printf("  Conflicts: %v\n", r.ConflictFiles)
		}
		if r.CommitCount > 0 {
			fmt.Printf("  Changes: %d commits, %d files, +%d/-%d\n",
				r.CommitCount, r.FilesChanged, r.LinesAdded, r.LinesRemoved)
		}
		fmt.Println()
	}

	stats := coord.MergeStats()
	fmt.Printf("Stats: %d total, %d merged, %d failed, %d conflicts resolved, %d human interventions\n",
		stats.TotalSprints, stats.SuccessfulMerges, stats.FailedMerges,
		stats.ConflictsResolved, stats.HumanInterventions)
	return nil
}
