package sprint

import (
	"testing"
)

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantState Status
		wantCoder string
	}{
		{
			name:      "sprint status heading",
			content:   "# Auth Sprint\n\n## Sprint Status: Building\n",
			wantState: StatusBuilding,
		},
		{
			name:      "plain status label",
			content:   "Status: Ready for Merge\n",
			wantState: StatusReadyForMerge,
		},
		{
			name:      "current status label",
			content:   "Current Status: Review\n",
			wantState: StatusReview,
		},
		{
			name:      "assigned with coder",
			content:   "## Sprint Status: Assigned to Coder-B\n",
			wantState: StatusAssigned,
			wantCoder: "B",
		},
		{
			name:      "merged",
			content:   "Status: Merged\n",
			wantState: StatusMerged,
		},
		{
			name:      "case insensitive",
			content:   "status: ready for merge\n",
			wantState: StatusReadyForMerge,
		},
		{
			name:      "unrecognized degrades to building",
			content:   "Status: Blocked on vendor\n",
			wantState: StatusBuilding,
		},
		{
			name:      "no status line degrades to building",
			content:   "# Just a title\n\nSome prose.\n",
			wantState: StatusBuilding,
		},
		{
			name:      "empty document",
			content:   "",
			wantState: StatusBuilding,
		},
		{
			name:      "first status line wins",
			content:   "## Sprint Status: Review\n\nStatus: Merged\n",
			wantState: StatusReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseStatusDoc(tt.content)
			if doc.Status != tt.wantState {
				t.Errorf("Status = %q, want %q", doc.Status, tt.wantState)
			}
			if doc.AssignedCoder != tt.wantCoder {
				t.Errorf("AssignedCoder = %q, want %q", doc.AssignedCoder, tt.wantCoder)
			}
		})
	}
}

func TestParseAssignmentBlock(t *testing.T) {
	content := "## Sprint Status: Assigned to Coder-A\n" +
		"**Assigned**: Coder-A\n" +
		"**Branch**: sprint/a/auth-sprint\n"

	doc := ParseStatusDoc(content)

	if doc.AssignedCoder != "A" {
		t.Errorf("AssignedCoder = %q, want %q", doc.AssignedCoder, "A")
	}
	if doc.BranchName != "sprint/a/auth-sprint" {
		t.Errorf("BranchName = %q, want %q", doc.BranchName, "sprint/a/auth-sprint")
	}
}

func TestParseTasks(t *testing.T) {
	content := `## Sprint Status: Building

## Tasks

- Implement login: in_progress
- Add session store: pending
2. Write docs: ready for merge
- Repair Merge Conflict: repair-merge-conflict
✅ Wire config
❌ Polish errors
`

	doc := ParseStatusDoc(content)

	want := []Task{
		{Name: "Implement login", Status: TaskInProgress},
		{Name: "Add session store", Status: TaskPending},
		{Name: "Write docs", Status: TaskReadyForMerge},
		{Name: RepairTaskName, Status: TaskRepairConflict},
		{Name: "Wire config", Status: TaskCommitted},
		{Name: "Polish errors", Status: TaskPending},
	}

	if len(doc.Tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d: %+v", len(doc.Tasks), len(want), doc.Tasks)
	}
	for i, task := range doc.Tasks {
		if task.Name != want[i].Name || task.Status != want[i].Status {
			t.Errorf("task %d = %q/%q, want %q/%q",
				i, task.Name, task.Status, want[i].Name, want[i].Status)
		}
	}
}

func TestParseTasksMalformedIgnored(t *testing.T) {
	content := "## Sprint Status: Building\n\n- just a bullet\n- name without known status: someday\n"

	doc := ParseStatusDoc(content)
	if len(doc.Tasks) != 0 {
		t.Errorf("got %d tasks, want 0: %+v", len(doc.Tasks), doc.Tasks)
	}
}
