package errors

import (
	"strings"
	"testing"
)

func TestSentinelMatching(t *testing.T) {
	err := NewSprintError("cannot assign sprint", ErrCoderBusy).
		WithSprint("Auth_Sprint").WithCoder("A")

	if !Is(err, ErrCoderBusy) {
		t.Error("SprintError does not match its sentinel cause")
	}
	if Is(err, ErrSprintNotFound) {
		t.Error("SprintError matches an unrelated sentinel")
	}

	var sprintErr *SprintError
	if !As(err, &sprintErr) {
		t.Fatal("As() failed for *SprintError")
	}
	if sprintErr.SprintName != "Auth_Sprint" || sprintErr.CoderID != "A" {
		t.Errorf("context = %q/%q", sprintErr.SprintName, sprintErr.CoderID)
	}
}

func TestGitErrorOutput(t *testing.T) {
	err := NewGitError("merge failed", ErrMergeConflict).
		WithBranch("sprint/a/auth-sprint").
		WithRepository("/repos/Coder-A").
		WithGitOutput("CONFLICT (content): app.txt\n")

	if !Is(err, ErrMergeConflict) {
		t.Error("GitError does not match its sentinel cause")
	}

	msg := err.Error()
	for _, want := range []string{"branch=sprint/a/auth-sprint", "repo=/repos/Coder-A", "CONFLICT (content)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("sprint", "Ghost_Sprint")

	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
	if !Is(err, ErrSprintNotFound) {
		t.Error("sprint NotFoundError does not match ErrSprintNotFound")
	}
	if Is(err, ErrCoderNotFound) {
		t.Error("sprint NotFoundError matches ErrCoderNotFound")
	}

	coderErr := NewNotFoundError("coder", "Z")
	if !Is(coderErr, ErrCoderNotFound) {
		t.Error("coder NotFoundError does not match ErrCoderNotFound")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("coders.ids", "", "must not be empty")

	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError does not match ErrInvalidInput")
	}
	if GetSeverity(err) != SeverityWarning {
		t.Errorf("severity = %v, want warning", GetSeverity(err))
	}
}

func TestClassification(t *testing.T) {
	retryable := NewGitError("push failed", ErrOperationFailed).WithRetryable(true)
	if !IsRetryable(retryable) {
		t.Error("IsRetryable() = false for retryable error")
	}
	if IsRetryable(New("plain")) {
		t.Error("IsRetryable() = true for plain error")
	}

	if !IsUserFacing(NewMergeError("rejected", nil)) {
		t.Error("IsUserFacing() = false for MergeError")
	}
	if GetSeverity(New("plain")) != SeverityError {
		t.Error("unclassified errors should default to SeverityError")
	}
}
