package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:   "assign <sprint> <coder>",
	Short: "Manually assign a sprint to a free coder",
	Long: `Assign bypasses the queue and gives a sprint directly to a coder.
The coder must be free; the sprint's status document is rewritten and its
branch created in the coder's clone.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	sprintName, coderID := args[0], args[1]
	if err := coord.AssignSprint(sprintName, coderID); err != nil {
		return err
	}

	fmt.Printf("assigned %s to Coder-%s\n", sprintName, coderID)
	return nil
}
