// Package corpus builds word-frequency tables from raw text.
package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-wordpiece/internal/text"
)

// maxLineBytes bounds a single corpus line.
const maxLineBytes = 16 << 20

// Frequencies maps every distinct word to its occurrence count.
type Frequencies map[string]int

// WordCount is one entry of a sorted frequency table.
type WordCount struct {
	Word  string
	Count int
}

// Add merges other into f.
func (f Frequencies) Add(other Frequencies) {
	for w, n := range other {
		f[w] += n
	}
}

// Total returns the number of word occurrences.
func (f Frequencies) Total() int {
	total := 0
	for _, n := range f {
		total += n
	}
	return total
}

// Sorted returns the table ordered by count descending, then word ascending.
func (f Frequencies) Sorted() []WordCount {
	out := make([]WordCount, 0, len(f))
	for w, n := range f {
		out = append(out, WordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

// FromText counts the words of s under policy p.
func FromText(s string, p text.Policy) Frequencies {
	freqs := make(Frequencies)
	for _, w := range text.Words(s, p) {
		freqs[w]++
	}
	return freqs
}

// FromReader counts words line by line until EOF or ctx is done.
func FromReader(ctx context.Context, r io.Reader, p text.Policy) (Frequencies, error) {
	splitter := text.NewSplitter(p)
	freqs := make(Frequencies)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for lines := 0; sc.Scan(); lines++ {
		if lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, w := range splitter.Split(sc.Text()) {
			freqs[w]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return freqs, nil
}

// ReadFile counts the words of one file.
func ReadFile(ctx context.Context, path string, p text.Policy) (Frequencies, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer func() { _ = f.Close() }()

	freqs, err := FromReader(ctx, f, p)
	if err != nil {
		return nil, fmt.Errorf("read corpus file %s: %w", path, err)
	}
	return freqs, nil
}

// ReadFiles counts the words of every file, reading up to workers files
// concurrently. The first failure cancels the remaining reads.
func ReadFiles(ctx context.Context, paths []string, p text.Policy, workers int) (Frequencies, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no corpus files given")
	}
	if workers < 1 {
		workers = 1
	}

	tables := make([]Frequencies, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			freqs, err := ReadFile(gctx, path, p)
			if err != nil {
				return err
			}
			tables[i] = freqs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make(Frequencies)
	for _, t := range tables {
		total.Add(t)
	}
	return total, nil
}
