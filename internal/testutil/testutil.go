// Package testutil provides shared skip helpers, corpus fixtures and artifact
// assertions for tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireNetwork(t)
//	    corpus := testutil.WriteCorpus(t, t.TempDir(), testutil.SmallCorpus)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// NetworkEnv enables tests that download data, e.g. tiktoken encodings.
const NetworkEnv = "WORDPIECE_TEST_NETWORK"

// SmallCorpus is a tiny training corpus with word counts
// low=5 lower=2 newest=6 widest=3.
var SmallCorpus = []string{
	"low low low low low",
	"lower lower",
	"newest newest newest newest newest newest",
	"widest widest widest",
}

// RequireNetwork skips the test unless NetworkEnv is set to a non-empty value
// other than "0", or when running with -short.
func RequireNetwork(tb testing.TB) {
	tb.Helper()

	if testing.Short() {
		tb.Skipf("network test skipped in -short mode")
		return
	}

	if v := os.Getenv(NetworkEnv); v == "" || v == "0" {
		tb.Skipf("network access disabled; set %s=1 to enable", NetworkEnv)
	}
}

// RequireFile skips the test if path does not exist.
func RequireFile(tb testing.TB, path string) {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("fixture %q not available: %v", path, err)
	}
}

// WriteCorpus writes lines to dir/corpus.txt and returns the file path.
func WriteCorpus(tb testing.TB, dir string, lines []string) string {
	tb.Helper()

	return WriteFile(tb, filepath.Join(dir, "corpus.txt"), strings.Join(lines, "\n")+"\n")
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(tb testing.TB, path, content string) string {
	tb.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}

	return path
}
