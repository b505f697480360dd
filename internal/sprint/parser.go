package sprint

import (
	"regexp"
	"strings"
)

// ParsedDoc is the result of parsing a status document. Parsing never
// fails: malformed content degrades to StatusBuilding with no tasks.
type ParsedDoc struct {
	Status        Status
	AssignedCoder string // Coder ID extracted from the status or assignment block
	BranchName    string
	Tasks         []Task
}

var (
	// Status line variants, first match wins:
	//   ## Sprint Status: Building
	//   Current Status: Ready for Merge
	//   Status: Assigned to Coder-A
	// Trailing whitespace is [ \t], never \s: a match must stop at the end
	// of the line, not swallow the newline into a following blank line.
	statusLineRe = regexp.MustCompile(`(?mi)^(?:#+[ \t]*Sprint Status|Current Status|Status)[ \t]*:[ \t]*(.+?)[ \t]*$`)

	// Coder reference inside an "Assigned to Coder-A" status.
	coderRefRe = regexp.MustCompile(`(?i)coder[-\s]([A-Za-z0-9]+)`)

	// Assignment block written back by the engine:
	//   **Assigned**: Coder-A
	//   **Branch**: sprint/a/auth-sprint
	assignedLineRe = regexp.MustCompile(`(?mi)^\*\*Assigned\*\*[ \t]*:[ \t]*(\S+)[ \t]*$`)
	branchLineRe   = regexp.MustCompile(`(?mi)^(?:\*\*Branch\*\*|Branch)[ \t]*:[ \t]*(\S+)[ \t]*$`)

	// Task list entries:
	//   - Implement login: in_progress
	//   2. Write docs: pending
	taskLineRe = regexp.MustCompile(`(?mi)^[ \t]*(?:[-*]|\d+\.)[ \t]+(.+?)[ \t]*:[ \t]*(pending|in[ _]progress|ready[ _]for[ _]merge|committed|repair-merge-conflict)[ \t]*$`)

	// Checklist shorthand: a leading check mark means committed, a cross
	// means pending.
	doneTaskRe    = regexp.MustCompile(`(?m)^[ \t]*✅[ \t]*(.+?)[ \t]*$`)
	pendingTaskRe = regexp.MustCompile(`(?m)^[ \t]*❌[ \t]*(.+?)[ \t]*$`)
)

// ParseStatusDoc extracts sprint state from status document content.
func ParseStatusDoc(content string) ParsedDoc {
	doc := ParsedDoc{Status: StatusBuilding}

	if m := statusLineRe.FindStringSubmatch(content); m != nil {
		doc.Status, doc.AssignedCoder = classifyStatus(m[1])
	}

	if m := assignedLineRe.FindStringSubmatch(content); m != nil {
		if id := extractCoderID(m[1]); id != "" {
			doc.AssignedCoder = id
		}
	}
	if m := branchLineRe.FindStringSubmatch(content); m != nil {
		doc.BranchName = m[1]
	}

	doc.Tasks = parseTasks(content)
	return doc
}

// classifyStatus maps free-form status text onto the closed vocabulary.
// Unrecognized text degrades to StatusBuilding.
func classifyStatus(text string) (Status, string) {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(lower, "ready for merge"):
		return StatusReadyForMerge, ""
	case strings.HasPrefix(lower, "assigned"):
		return StatusAssigned, extractCoderID(text)
	case strings.HasPrefix(lower, "review"):
		return StatusReview, ""
	case strings.HasPrefix(lower, "merged"):
		return StatusMerged, ""
	case strings.HasPrefix(lower, "building"), strings.HasPrefix(lower, "in progress"):
		return StatusBuilding, ""
	default:
		return StatusBuilding, ""
	}
}

// extractCoderID pulls the coder ID out of text like "Coder-A".
func extractCoderID(text string) string {
	if m := coderRefRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1][:1]) + m[1][1:]
	}
	return ""
}

// parseTasks collects task entries in document order.
func parseTasks(content string) []Task {
	var tasks []Task
	seen := make(map[string]bool)

	add := func(name string, status TaskStatus) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		tasks = append(tasks, Task{Name: name, Status: status})
	}

	for _, m := range taskLineRe.FindAllStringSubmatch(content, -1) {
		add(m[1], normalizeTaskStatus(m[2]))
	}
	for _, m := range doneTaskRe.FindAllStringSubmatch(content, -1) {
		add(stripTaskDecoration(m[1]), TaskCommitted)
	}
	for _, m := range pendingTaskRe.FindAllStringSubmatch(content, -1) {
		add(stripTaskDecoration(m[1]), TaskPending)
	}
	return tasks
}

// normalizeTaskStatus canonicalizes spacing variants like "in progress".
func normalizeTaskStatus(raw string) TaskStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskReadyForMerge, TaskCommitted, TaskRepairConflict:
		return TaskStatus(s)
	default:
		return TaskPending
	}
}

// stripTaskDecoration removes a trailing ": status" fragment from checklist
// entries so "✅ Build parser: committed" and "✅ Build parser" name the
// same task.
func stripTaskDecoration(name string) string {
	if i := strings.LastIndex(name, ":"); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(name)
}
