package sprint

import (
	"fmt"
	"os"
	"strings"
)

// StatusDocName is the filename of the per-sprint status document.
const StatusDocName = "STATUS.md"

// UpdateStatusLine rewrites the status line in document content, preserving
// the original label style. If no status line exists, one is prepended.
func UpdateStatusLine(content string, status Status, coderID string) string {
	text := status.DocText(coderID)

	if statusLineRe.MatchString(content) {
		replaced := false
		return statusLineRe.ReplaceAllStringFunc(content, func(line string) string {
			if replaced {
				return line
			}
			replaced = true
			label := line[:strings.Index(line, ":")]
			return label + ": " + text
		})
	}

	line := "## Sprint Status: " + text + "\n"
	if content == "" {
		return line
	}
	return line + "\n" + content
}

// EnsureAssignmentBlock inserts the engine's assignment block immediately
// after the status line:
//
//	**Assigned**: Coder-A
//	**Branch**: sprint/a/auth-sprint
//
// An existing block is updated in place rather than duplicated.
func EnsureAssignmentBlock(content, coderID, branch string) string {
	block := fmt.Sprintf("**Assigned**: %s\n**Branch**: %s", coderName(coderID), branch)

	if assignedLineRe.MatchString(content) {
		content = assignedLineRe.ReplaceAllString(content, "**Assigned**: "+coderName(coderID))
		if branchLineRe.MatchString(content) {
			return branchLineRe.ReplaceAllString(content, "**Branch**: "+branch)
		}
		loc := assignedLineRe.FindStringIndex(content)
		end := loc[1]
		if end < len(content) && content[end] == '\n' {
			end++
		}
		return content[:end] + "**Branch**: " + branch + "\n" + content[end:]
	}

	loc := statusLineRe.FindStringIndex(content)
	if loc == nil {
		return block + "\n\n" + content
	}

	end := loc[1]
	// Insert after the status line's trailing newline when present.
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return content[:end] + block + "\n" + content[end:]
}

// InsertRepairTask prepends a repair task entry to the document's task list
// and appends a fenced details section describing what went wrong.
func InsertRepairTask(content, details string) string {
	entry := fmt.Sprintf("- %s: %s\n", RepairTaskName, TaskRepairConflict)

	if loc := taskLineRe.FindStringIndex(content); loc != nil {
		// Prepend to the existing task list.
		start := loc[0]
		content = content[:start] + entry + content[start:]
	} else {
		content = strings.TrimRight(content, "\n") + "\n\n## Tasks\n\n" + entry
	}

	if details != "" {
		content = strings.TrimRight(content, "\n") +
			"\n\n### Repair Details\n\n```\n" + strings.TrimRight(details, "\n") + "\n```\n"
	}
	return content
}

// SaveDoc writes document content atomically: a temp file in the same
// directory is renamed into place so watchers never observe a torn write.
func SaveDoc(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
