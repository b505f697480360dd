package branch

import "strings"

// Name returns the deterministic branch name for a coder/sprint pair:
//
//	<prefix>/<coder-id-lowercased>/<sprint-name-slug>
//
// The same inputs always produce the same name, so a re-created assignment
// lands on the same branch.
func Name(prefix, coderID, sprintName string) string {
	return prefix + "/" + strings.ToLower(coderID) + "/" + slugify(sprintName)
}

// slugify lowercases a sprint name and replaces separator characters with
// hyphens, collapsing runs.
func slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	lastHyphen := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
