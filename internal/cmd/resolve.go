package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeops/sprintmux/internal/merge"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <request-id> <approve|reject|reset>",
	Short: "Resolve a merge request awaiting human review",
	Long: `Resolve applies a human decision to a merge request that exhausted its
repair attempts:

  approve  retry the merge as-is, trusting a manual fix-up
  reject   fail the request and send it back to the coder
  reset    reset the branch to trunk and send it back to the coder`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("reason", "", "reason recorded with the decision")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	action, ok := merge.ParseAction(args[1])
	if !ok {
		return fmt.Errorf("unknown action %q (want approve, reject, or reset)", args[1])
	}
	reason, _ := cmd.Flags().GetString("reason")

	if err := coord.ResolveMerge(context.Background(), args[0], action, reason); err != nil {
		return err
	}

	req, _ := coord.MergeRequest(args[0])
	fmt.Printf("resolved %s with %s; state is now %s\n", args[0], action, req.State)
	return nil
}
