package branch

import (
	"os"
	"path/filepath"
	"strings"
)

// testRunner pairs a marker file with the command that runs the project's
// test suite.
type testRunner struct {
	marker string
	name   string
	args   []string
}

// Detection order matters: the first marker found wins.
var testRunners = []testRunner{
	{"package.json", "npm", []string{"test"}},
	{"go.mod", "go", []string{"test", "./..."}},
	{"pytest.ini", "python", []string{"-m", "pytest"}},
	{"Cargo.toml", "cargo", []string{"test"}},
	{"Makefile", "make", []string{"test"}},
}

// detectTestRunner inspects a repository root for a known marker file.
func detectTestRunner(repoPath string) (testRunner, bool) {
	for _, r := range testRunners {
		if _, err := os.Stat(filepath.Join(repoPath, r.marker)); err == nil {
			return r, true
		}
	}
	return testRunner{}, false
}

// commandString renders the runner invocation for display.
func (r testRunner) commandString() string {
	return r.name + " " + strings.Join(r.args, " ")
}
