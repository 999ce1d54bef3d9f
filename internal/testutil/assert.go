package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// AssertValidVocabFile checks that data is a one-symbol-per-line vocabulary
// with wantSize distinct, non-empty symbols. A wantSize of -1 skips the size
// check.
func AssertValidVocabFile(tb testing.TB, data []byte, wantSize int) {
	tb.Helper()

	if len(data) == 0 {
		tb.Fatal("vocab: file is empty")
		return
	}

	if data[len(data)-1] != '\n' {
		tb.Fatal("vocab: missing trailing newline")
		return
	}

	symbols, err := splitSymbols(data)
	if err != nil {
		tb.Fatalf("vocab: %v", err)
		return
	}

	if wantSize >= 0 && len(symbols) != wantSize {
		tb.Fatalf("vocab: %d symbols, want %d", len(symbols), wantSize)
	}
}

// AssertSegmentsWord checks that pieces is a valid segmentation of word:
// the first piece carries no continuation prefix, every later piece does,
// and the pieces join back into word. A single unkToken piece is accepted
// for any word.
func AssertSegmentsWord(tb testing.TB, word string, pieces []string, prefix, unkToken string) {
	tb.Helper()

	if len(pieces) == 0 {
		tb.Fatalf("segmentation of %q is empty", word)
		return
	}

	if len(pieces) == 1 && pieces[0] == unkToken {
		return
	}

	var sb strings.Builder
	for i, p := range pieces {
		cont := strings.HasPrefix(p, prefix)
		switch {
		case i == 0 && cont:
			tb.Fatalf("segmentation of %q: first piece %q has the continuation prefix", word, p)
			return
		case i > 0 && !cont:
			tb.Fatalf("segmentation of %q: piece %d %q lacks the continuation prefix", word, i, p)
			return
		case i > 0:
			p = p[len(prefix):]
		}
		if p == "" {
			tb.Fatalf("segmentation of %q: piece %d is empty", word, i)
			return
		}
		sb.WriteString(p)
	}

	if got := sb.String(); got != word {
		tb.Fatalf("segmentation %q joins to %q, want %q", pieces, got, word)
	}
}

// splitSymbols returns the lines of data and rejects blank or repeated ones.
func splitSymbols(data []byte) ([]string, error) {
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	seen := make(map[string]int, len(lines))
	out := make([]string, 0, len(lines))

	for i, l := range lines {
		s := strings.TrimSuffix(string(l), "\r")
		if s == "" {
			return nil, fmt.Errorf("blank line %d", i+1)
		}
		if prev, dup := seen[s]; dup {
			return nil, fmt.Errorf("symbol %q on lines %d and %d", s, prev+1, i+1)
		}
		seen[s] = i
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, errors.New("no symbols")
	}
	return out, nil
}
