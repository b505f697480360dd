package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var codersCmd = &cobra.Command{
	Use:   "coders",
	Short: "Show the coder pool and their clones",
	RunE:  runCoders,
}

func init() {
	codersCmd.Flags().Bool("repos", false, "include git status of each coder's clone")
	rootCmd.AddCommand(codersCmd)
}

func runCoders(cmd *cobra.Command, args []string) error {
	coord, _, log, err := newCoordinator()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if err := coord.Scan(); err != nil {
		return fmt.Errorf("failed to scan sprint root: %w", err)
	}

	showRepos, _ := cmd.Flags().GetBool("repos")

	for _, c := range coord.Coders() {
		fmt.Printf("Coder-%s: %s\n", c.ID, c.State)
		if c.AssignedSprint != "" {
			fmt.Printf("  Sprint: %s\n", c.AssignedSprint)
		}
		if c.BranchName != "" {
			fmt.Printf("  Branch: %s\n", c.BranchName)
		}

		if !showRepos {
			continue
		}
		repo, err := coord.CoderRepoStatus(context.Background(), c.ID)
		if err != nil {
			fmt.Printf("  Repo: unavailable (%v)\n", err)
			continue
		}
		dirty := "clean"
		if repo.Dirty {
			dirty = "dirty"
		}
		fmt.Printf("  Repo: %s (%s, on %s)\n", repo.RepoPath, dirty, repo.CurrentBranch)
		for _, commit := range repo.RecentCommits {
			fmt.Printf("    %s\n", commit)
		}
		if len(repo.SprintBranches) > 0 {
			fmt.Printf("  Sprint branches: %v\n", repo.SprintBranches)
		}
	}
	return nil
}
