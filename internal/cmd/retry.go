package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <request-id>",
	Short: "Reprocess a failed or stuck merge request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	if err := coord.RetryMerge(context.Background(), args[0]); err != nil {
		return err
	}

	req, _ := coord.MergeRequest(args[0])
	fmt.Printf("retried %s; state is now %s\n", args[0], req.State)
	return nil
}
