package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/go-wordpiece/internal/trainer"
)

const mergesHeader = "#version: wordpiece"

// WriteMerges writes one merge per line as "left right frequency score",
// after a version header.
func WriteMerges(w io.Writer, merges []trainer.Merge) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, mergesHeader); err != nil {
		return err
	}
	for _, m := range merges {
		if _, err := fmt.Fprintf(bw, "%s %s %d %s\n",
			m.Left, m.Right, m.Frequency, strconv.FormatFloat(m.Score, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMerges parses a merge log written by WriteMerges. prefix is the
// continuation prefix used to rebuild the merged symbols.
func ReadMerges(r io.Reader, prefix string) ([]trainer.Merge, error) {
	sc := bufio.NewScanner(r)

	var merges []trainer.Merge
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		// Symbols may start with '#', so only the version header is skipped.
		if raw == "" || strings.HasPrefix(raw, "#version:") {
			continue
		}

		fields := strings.Fields(raw)
		if len(fields) != 4 {
			return nil, fmt.Errorf("merges line %d: expected 4 fields, got %d", line, len(fields))
		}
		freq, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("merges line %d: frequency: %w", line, err)
		}
		score, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("merges line %d: score: %w", line, err)
		}

		merges = append(merges, trainer.Merge{
			Left:      fields[0],
			Right:     fields[1],
			Merged:    fields[0] + strings.TrimPrefix(fields[1], prefix),
			Frequency: freq,
			Score:     score,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return merges, nil
}

// LoadMerges reads dir/merges.txt. A missing file yields no merges.
func LoadMerges(dir, prefix string) ([]trainer.Merge, error) {
	f, err := os.Open(filepath.Join(dir, MergesFile)) //nolint:gosec // G304: artifact dir comes from trusted configuration.
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open merges: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadMerges(f, prefix)
}
