package branch

import (
	"context"
	"os/exec"
)

// CommandExecutor abstracts subprocess execution so git interactions can be
// tested without a real repository.
type CommandExecutor interface {
	// Run executes a command in the given directory and returns its
	// combined output.
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// defaultExecutor runs commands via os/exec.
type defaultExecutor struct{}

func (defaultExecutor) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// NewExecutor returns the default os/exec-backed CommandExecutor.
func NewExecutor() CommandExecutor {
	return defaultExecutor{}
}
