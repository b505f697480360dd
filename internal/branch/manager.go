package branch

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forgeops/sprintmux/internal/errors"
	"github.com/forgeops/sprintmux/internal/logging"
)

// Manager owns sprint branch state across the per-coder clones. Every git
// interaction goes through the executor; higher layers never touch git
// directly.
type Manager struct {
	mu       sync.Mutex
	exec     CommandExecutor
	repos    map[string]string // coder ID -> clone path
	branches map[string]*Info  // branch name -> info
	trunk    string
	prefix   string
	log      *logging.Logger
}

// NewManager creates a Manager over the given coder clones.
func NewManager(repos map[string]string, trunk, prefix string, log *logging.Logger) *Manager {
	return NewManagerWithExecutor(repos, trunk, prefix, log, NewExecutor())
}

// NewManagerWithExecutor creates a Manager with a custom CommandExecutor.
// Used by tests to script git behavior.
func NewManagerWithExecutor(repos map[string]string, trunk, prefix string, log *logging.Logger, exec CommandExecutor) *Manager {
	copied := make(map[string]string, len(repos))
	for id, path := range repos {
		copied[id] = path
	}
	return &Manager{
		exec:     exec,
		repos:    copied,
		branches: make(map[string]*Info),
		trunk:    trunk,
		prefix:   prefix,
		log:      log.WithComponent("branch"),
	}
}

// BranchName returns the deterministic branch name for a coder/sprint pair.
func (m *Manager) BranchName(coderID, sprintName string) string {
	return Name(m.prefix, coderID, sprintName)
}

// Trunk returns the configured integration branch.
func (m *Manager) Trunk() string {
	return m.trunk
}

// git runs one git command in dir, wrapping failures in a GitError that
// carries the captured output.
func (m *Manager) git(ctx context.Context, dir, branchName string, args ...string) (string, error) {
	output, err := m.exec.Run(ctx, dir, "git", args...)
	if err != nil {
		return output, errors.NewGitError("git "+strings.Join(args, " ")+" failed", err).
			WithBranch(branchName).
			WithRepository(dir).
			WithGitOutput(output)
	}
	return output, nil
}

// repoFor returns the clone path for a coder, checking it exists.
func (m *Manager) repoFor(coderID string) (string, error) {
	m.mu.Lock()
	path, ok := m.repos[coderID]
	m.mu.Unlock()
	if !ok {
		return "", errors.NewNotFoundError("coder", coderID)
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewGitError("coder clone does not exist", errors.ErrRepoMissing).
			WithRepository(path)
	}
	return path, nil
}

// repoForBranch resolves the clone a branch lives in. Tracked branches
// resolve from the registry; untracked ones (after a restart) resolve from
// the coder segment of the branch name.
func (m *Manager) repoForBranch(branchName string) (string, error) {
	m.mu.Lock()
	if info, ok := m.branches[branchName]; ok {
		path := info.RepoPath
		m.mu.Unlock()
		return path, nil
	}
	m.mu.Unlock()

	parts := strings.Split(branchName, "/")
	if len(parts) >= 3 && parts[0] == m.prefix {
		m.mu.Lock()
		for id, path := range m.repos {
			if strings.EqualFold(id, parts[1]) {
				m.mu.Unlock()
				return path, nil
			}
		}
		m.mu.Unlock()
	}
	return "", errors.NewNotFoundError("branch", branchName)
}

// CreateBranch creates (or re-enters) the sprint branch for a coder inside
// that coder's clone. The clone is synced to trunk first; an existing
// branch with the deterministic name is checked out rather than recreated.
func (m *Manager) CreateBranch(ctx context.Context, coderID, sprintName string) (Info, error) {
	repoPath, err := m.repoFor(coderID)
	if err != nil {
		return Info{}, err
	}

	branchName := m.BranchName(coderID, sprintName)
	log := m.log.WithCoder(coderID).With("branch", branchName)

	if _, err := m.git(ctx, repoPath, branchName, "checkout", m.trunk); err != nil {
		return Info{}, err
	}
	// Sync trunk when a remote exists; a missing remote is fine for
	// local-only setups.
	if m.hasRemote(ctx, repoPath) {
		if _, err := m.git(ctx, repoPath, branchName, "pull", "origin", m.trunk); err != nil {
			log.Warn("trunk pull failed, continuing with local trunk", "error", err)
		}
	}

	if m.branchExists(ctx, repoPath, branchName) {
		if _, err := m.git(ctx, repoPath, branchName, "checkout", branchName); err != nil {
			return Info{}, err
		}
		log.Info("re-entered existing sprint branch")
	} else {
		if _, err := m.git(ctx, repoPath, branchName, "checkout", "-b", branchName); err != nil {
			return Info{}, err
		}
		log.Info("created sprint branch")
	}

	now := time.Now()
	info := &Info{
		Name:         branchName,
		CoderID:      coderID,
		SprintName:   sprintName,
		RepoPath:     repoPath,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	m.branches[branchName] = info
	m.mu.Unlock()

	return *info, nil
}

// hasRemote reports whether the clone has an origin remote.
func (m *Manager) hasRemote(ctx context.Context, repoPath string) bool {
	output, err := m.exec.Run(ctx, repoPath, "git", "remote")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "origin" {
			return true
		}
	}
	return false
}

// branchExists reports whether a local branch exists in the clone.
func (m *Manager) branchExists(ctx context.Context, repoPath, branchName string) bool {
	_, err := m.exec.Run(ctx, repoPath, "git", "rev-parse", "--verify", "refs/heads/"+branchName)
	return err == nil
}

// Status refreshes and returns a branch's info: commits ahead of trunk,
// files changed, and whether the working tree is dirty.
func (m *Manager) Status(ctx context.Context, branchName string) (Info, error) {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return Info{}, err
	}

	stats, err := m.ChangeStats(ctx, branchName)
	if err != nil {
		return Info{}, err
	}

	porcelain, err := m.git(ctx, repoPath, branchName, "status", "--porcelain")
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.branches[branchName]
	if !ok {
		info = &Info{
			Name:      branchName,
			RepoPath:  repoPath,
			Status:    StatusActive,
			CreatedAt: time.Now(),
		}
		m.branches[branchName] = info
	}
	info.CommitCount = stats.CommitCount
	info.FilesChanged = stats.FilesChanged
	info.Uncommitted = strings.TrimSpace(porcelain) != ""
	info.LastActivity = time.Now()
	return copyInfo(info), nil
}

// ChangeStats summarizes the branch's divergence from trunk.
func (m *Manager) ChangeStats(ctx context.Context, branchName string) (ChangeStats, error) {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return ChangeStats{}, err
	}

	var stats ChangeStats

	countOut, err := m.git(ctx, repoPath, branchName, "rev-list", "--count", m.trunk+".."+branchName)
	if err != nil {
		return ChangeStats{}, err
	}
	stats.CommitCount, _ = strconv.Atoi(strings.TrimSpace(countOut))

	shortstat, err := m.git(ctx, repoPath, branchName, "diff", "--shortstat", m.trunk+"..."+branchName)
	if err != nil {
		return ChangeStats{}, err
	}
	stats.FilesChanged, stats.LinesAdded, stats.LinesRemoved = parseShortstat(shortstat)
	return stats, nil
}

// parseShortstat extracts counts from git's shortstat summary, e.g.
// " 3 files changed, 40 insertions(+), 2 deletions(-)".
func parseShortstat(s string) (files, added, removed int) {
	for _, field := range strings.Split(strings.TrimSpace(s), ",") {
		field = strings.TrimSpace(field)
		parts := strings.SplitN(field, " ", 2)
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(parts[1], "file"):
			files = n
		case strings.HasPrefix(parts[1], "insertion"):
			added = n
		case strings.HasPrefix(parts[1], "deletion"):
			removed = n
		}
	}
	return files, added, removed
}

// ValidateTests checks out the branch, syncs it with trunk, and runs the
// test suite detected from marker files in the clone. A failing suite
// returns Passed=false with the captured output; when no suite is detected
// the branch passes by default. A passing branch advances to
// StatusReadyForMerge.
func (m *Manager) ValidateTests(ctx context.Context, branchName string) (TestResult, error) {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return TestResult{}, err
	}

	if _, err := m.git(ctx, repoPath, branchName, "checkout", branchName); err != nil {
		return TestResult{}, err
	}
	// Validate against current trunk, not the trunk the branch forked from.
	if m.hasRemote(ctx, repoPath) {
		if _, err := m.git(ctx, repoPath, branchName, "pull", "origin", m.trunk); err != nil {
			m.log.Warn("trunk pull failed before validation, continuing",
				"branch", branchName, "error", err)
		}
	}

	runner, found := detectTestRunner(repoPath)
	if !found {
		m.log.Info("no test suite detected, assuming pass", "branch", branchName)
		result := TestResult{Passed: true, Output: "No test suite detected, assuming pass"}
		m.recordTestResult(branchName, result.Passed)
		return result, nil
	}

	output, runErr := m.exec.Run(ctx, repoPath, runner.name, runner.args...)
	result := TestResult{
		Passed:  runErr == nil,
		Command: runner.commandString(),
		Output:  output,
	}
	m.recordTestResult(branchName, result.Passed)

	if result.Passed {
		m.log.Info("tests passed", "branch", branchName, "command", result.Command)
	} else {
		m.log.Warn("tests failed", "branch", branchName, "command", result.Command)
	}
	return result, nil
}

func (m *Manager) recordTestResult(branchName string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.branches[branchName]; ok {
		info.TestsPassing = &passed
		if passed {
			info.Status = StatusReadyForMerge
		}
		info.LastActivity = time.Now()
	}
}

// DryRunMerge tests whether the branch merges cleanly into trunk without
// mutating the repository. The merge is started with --no-commit, always
// aborted, and the previously checked-out branch restored on every path.
func (m *Manager) DryRunMerge(ctx context.Context, branchName string) (DryRunResult, error) {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return DryRunResult{}, err
	}

	priorOut, err := m.git(ctx, repoPath, branchName, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return DryRunResult{}, err
	}
	prior := strings.TrimSpace(priorOut)

	if _, err := m.git(ctx, repoPath, branchName, "checkout", m.trunk); err != nil {
		return DryRunResult{}, err
	}

	// Restore the repository no matter how the probe ends.
	defer func() {
		_, _ = m.exec.Run(ctx, repoPath, "git", "merge", "--abort")
		if prior != "" && prior != "HEAD" {
			_, _ = m.exec.Run(ctx, repoPath, "git", "checkout", prior)
		}
	}()

	_, mergeErr := m.exec.Run(ctx, repoPath, "git", "merge", "--no-commit", "--no-ff", branchName)
	if mergeErr == nil {
		m.recordConflicts(branchName, nil)
		return DryRunResult{CanMerge: true}, nil
	}

	conflicts, err := m.conflictFiles(ctx, repoPath)
	if err != nil {
		return DryRunResult{}, err
	}
	m.recordConflicts(branchName, conflicts)
	return DryRunResult{CanMerge: false, Conflicts: conflicts}, nil
}

// conflictFiles lists unmerged paths in the clone.
func (m *Manager) conflictFiles(ctx context.Context, repoPath string) ([]string, error) {
	output, err := m.exec.Run(ctx, repoPath, "git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, errors.NewGitError("failed to list conflicting files", err).
			WithRepository(repoPath).
			WithGitOutput(output)
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// MergeBranch merges the branch into trunk with a merge commit, pushes
// trunk when a remote exists, and deletes the branch. A conflicted merge
// aborts cleanly and reports the conflicting files as an expected outcome.
func (m *Manager) MergeBranch(ctx context.Context, branchName string) (MergeResult, error) {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return MergeResult{}, err
	}

	m.setBranchStatus(branchName, StatusMerging)

	if _, err := m.git(ctx, repoPath, branchName, "checkout", m.trunk); err != nil {
		m.setBranchStatus(branchName, StatusFailed)
		return MergeResult{}, err
	}
	if m.hasRemote(ctx, repoPath) {
		if _, err := m.git(ctx, repoPath, branchName, "pull", "origin", m.trunk); err != nil {
			m.log.Warn("trunk pull failed before merge, continuing", "branch", branchName, "error", err)
		}
	}

	output, mergeErr := m.exec.Run(ctx, repoPath, "git",
		"merge", "--no-ff", branchName, "-m", "Merge "+branchName)
	if mergeErr != nil {
		conflicts, cErr := m.conflictFiles(ctx, repoPath)
		_, _ = m.exec.Run(ctx, repoPath, "git", "merge", "--abort")
		if cErr != nil {
			m.setBranchStatus(branchName, StatusFailed)
			return MergeResult{}, cErr
		}
		m.recordConflicts(branchName, conflicts)
		m.setBranchStatus(branchName, StatusConflict)
		m.log.Warn("merge conflicted", "branch", branchName, "files", len(conflicts))
		return MergeResult{Merged: false, Conflicts: conflicts, Output: output}, nil
	}

	if m.hasRemote(ctx, repoPath) {
		if _, err := m.git(ctx, repoPath, branchName, "push", "origin", m.trunk); err != nil {
			m.setBranchStatus(branchName, StatusFailed)
			return MergeResult{}, err
		}
		// Remote branch cleanup is best-effort: the branch may never have
		// been pushed.
		_, _ = m.exec.Run(ctx, repoPath, "git", "push", "origin", "--delete", branchName)
	}

	if _, err := m.git(ctx, repoPath, branchName, "branch", "-d", branchName); err != nil {
		m.log.Warn("failed to delete merged branch", "branch", branchName, "error", err)
	}

	m.recordConflicts(branchName, nil)
	m.setBranchStatus(branchName, StatusMerged)
	m.log.Info("branch merged", "branch", branchName)
	return MergeResult{Merged: true, Output: output}, nil
}

// ResetToTrunk discards the branch's commits, making it identical to trunk.
// Used when a human rejects a conflicted branch and the coder starts over.
// The reset is force-pushed when a remote exists and the branch's progress
// counters are cleared.
func (m *Manager) ResetToTrunk(ctx context.Context, branchName string) error {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return err
	}

	if _, err := m.git(ctx, repoPath, branchName, "checkout", branchName); err != nil {
		return err
	}
	if _, err := m.git(ctx, repoPath, branchName, "reset", "--hard", m.trunk); err != nil {
		return err
	}
	if m.hasRemote(ctx, repoPath) {
		if _, err := m.git(ctx, repoPath, branchName, "push", "--force", "origin", branchName); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if info, ok := m.branches[branchName]; ok {
		info.Status = StatusActive
		info.CommitCount = 0
		info.FilesChanged = 0
		info.TestsPassing = nil
		info.Conflicts = nil
		info.Uncommitted = false
		info.LastActivity = time.Now()
	}
	m.mu.Unlock()

	m.log.Info("branch reset to trunk", "branch", branchName)
	return nil
}

// DeleteBranch removes a branch from its clone, its remote, and tracking.
func (m *Manager) DeleteBranch(ctx context.Context, branchName string) error {
	repoPath, err := m.repoForBranch(branchName)
	if err != nil {
		return err
	}

	if _, err := m.git(ctx, repoPath, branchName, "checkout", m.trunk); err != nil {
		return err
	}
	if _, err := m.git(ctx, repoPath, branchName, "branch", "-D", branchName); err != nil {
		return err
	}
	// Remote cleanup is best-effort: the branch may never have been pushed.
	if m.hasRemote(ctx, repoPath) {
		_, _ = m.exec.Run(ctx, repoPath, "git", "push", "origin", "--delete", branchName)
	}

	m.mu.Lock()
	delete(m.branches, branchName)
	m.mu.Unlock()

	m.log.Info("branch deleted", "branch", branchName)
	return nil
}

// CoderRepoStatus returns a diagnostic snapshot of one coder's clone.
func (m *Manager) CoderRepoStatus(ctx context.Context, coderID string) (RepoStatus, error) {
	repoPath, err := m.repoFor(coderID)
	if err != nil {
		return RepoStatus{}, err
	}

	status := RepoStatus{CoderID: coderID, RepoPath: repoPath}

	if out, err := m.git(ctx, repoPath, "", "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		status.CurrentBranch = strings.TrimSpace(out)
	}
	if out, err := m.git(ctx, repoPath, "", "status", "--porcelain"); err == nil {
		status.Dirty = strings.TrimSpace(out) != ""
	}
	if out, err := m.git(ctx, repoPath, "", "log", "--oneline", "-5"); err == nil {
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if line != "" {
				status.RecentCommits = append(status.RecentCommits, line)
			}
		}
	}
	if out, err := m.git(ctx, repoPath, "", "branch", "--list", m.prefix+"/*", "--format=%(refname:short)"); err == nil {
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if line != "" {
				status.SprintBranches = append(status.SprintBranches, line)
			}
		}
	}
	return status, nil
}

// Branch returns the tracked info for a branch.
func (m *Manager) Branch(branchName string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.branches[branchName]
	if !ok {
		return Info{}, false
	}
	return copyInfo(info), true
}

// Branches returns all tracked branches sorted by name.
func (m *Manager) Branches() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.branches))
	for _, info := range m.branches {
		out = append(out, copyInfo(info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) recordConflicts(branchName string, conflicts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.branches[branchName]; ok {
		info.Conflicts = append([]string(nil), conflicts...)
		info.LastActivity = time.Now()
	}
}

func (m *Manager) setBranchStatus(branchName string, status BranchStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.branches[branchName]; ok {
		info.Status = status
		info.LastActivity = time.Now()
	}
}

func copyInfo(info *Info) Info {
	out := *info
	out.Conflicts = append([]string(nil), info.Conflicts...)
	if info.TestsPassing != nil {
		v := *info.TestsPassing
		out.TestsPassing = &v
	}
	return out
}
