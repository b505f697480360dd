package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run <sprint>",
	Short: "Check whether a sprint's branch would merge cleanly",
	Long: `Dry-run probes the merge without touching the clone: the merge is
started, inspected, and aborted, and the previously checked-out branch
is restored.`,
	Args: cobra.ExactArgs(1),
	RunE: runDryRun,
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
}

func runDryRun(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	result, err := coord.DryRunMerge(context.Background(), args[0])
	if err != nil {
		return err
	}

	if result.CanMerge {
		fmt.Printf("%s merges cleanly\n", args[0])
		return nil
	}

	fmt.Printf("%s has conflicts in %d file(s):\n", args[0], len(result.Conflicts))
	for _, f := range result.Conflicts {
		fmt.Printf("  %s\n", f)
	}
	return nil
}
