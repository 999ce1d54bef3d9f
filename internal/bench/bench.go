// Package bench provides benchmarking primitives for the wordpiece bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/tokenizer"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and token counts for one pass over the input.
type RunResult struct {
	Index       int
	Cold        bool // true for the first run (cold caches)
	Duration    time.Duration
	Words       int
	Tokens      int
	Unknown     int
	WordsPerSec float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the run durations.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// Throughput returns n / elapsed seconds. Returns 0 if elapsed is zero to
// avoid division by zero.
func Throughput(n int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// Fertility returns the mean number of tokens per word.
func Fertility(tokens, words int) float64 {
	if words == 0 {
		return 0
	}
	return float64(tokens) / float64(words)
}

// MeanThroughput averages WordsPerSec over warm runs, or over all runs when
// every run is cold.
func MeanThroughput(runs []RunResult) float64 {
	var sum float64
	n := 0
	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}
		sum += r.WordsPerSec
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if wordsPerSec < minimum.
// A minimum of 0 disables the gate.
func CheckThroughputThreshold(wordsPerSec, minimum float64) error {
	if minimum <= 0 {
		return nil
	}
	if wordsPerSec < minimum {
		return fmt.Errorf("mean throughput %.0f words/s below threshold %.0f", wordsPerSec, minimum)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Options configure Run.
type Options struct {
	// Runs is the number of passes over the input; the first is cold.
	Runs int
	// Policy splits lines into words for the word count.
	Policy text.Policy
	// UnkToken is counted in every pass.
	UnkToken string
}

// Run tokenizes every line Runs times and times each pass.
func Run(ctx context.Context, tok tokenizer.Tokenizer, lines []string, opts Options) ([]RunResult, error) {
	if opts.Runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", opts.Runs)
	}
	if len(lines) == 0 {
		return nil, errors.New("no input lines")
	}

	words := 0
	for _, line := range lines {
		words += len(text.Words(line, opts.Policy))
	}

	runs := make([]RunResult, 0, opts.Runs)
	for i := range opts.Runs {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		tokens, unknown := 0, 0
		start := time.Now()
		for _, line := range lines {
			for _, t := range tok.Tokenize(line) {
				tokens++
				if t == opts.UnkToken {
					unknown++
				}
			}
		}
		elapsed := time.Since(start)

		runs = append(runs, RunResult{
			Index:       i,
			Cold:        i == 0,
			Duration:    elapsed,
			Words:       words,
			Tokens:      tokens,
			Unknown:     unknown,
			WordsPerSec: Throughput(words, elapsed),
		})
	}

	return runs, nil
}

// Counter counts tokens of a reference tokenizer, e.g. tokenizer.Baseline.
type Counter interface {
	Count(text string) int
	Name() string
}

// BaselineResult is the reference token count for the same input.
type BaselineResult struct {
	Encoding string
	Tokens   int
}

// CountBaseline sums c's token counts over lines.
func CountBaseline(c Counter, lines []string) BaselineResult {
	n := 0
	for _, line := range lines {
		n += c.Count(line)
	}
	return BaselineResult{Encoding: c.Name(), Tokens: n}
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// Report is everything the formatters print.
type Report struct {
	Runs     []RunResult
	Stats    Stats
	Baseline *BaselineResult
}

func micros(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e3 }

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(r Report, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %12s  %8s  %8s  %8s  %12s\n", "Run", "Cold", "Micros", "Words", "Tokens", "Unknown", "Words/s")
	fmt.Fprintln(sb, strings.Repeat("-", 70))

	for _, run := range r.Runs {
		cold := ""
		if run.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %12.1f  %8d  %8d  %8d  %12.0f\n",
			run.Index+1,
			cold,
			micros(run.Duration),
			run.Words,
			run.Tokens,
			run.Unknown,
			run.WordsPerSec,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 70))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (min)\n", "", "", micros(r.Stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (mean)\n", "", "", micros(r.Stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (max)\n", "", "", micros(r.Stats.Max))

	if len(r.Runs) > 0 {
		last := r.Runs[len(r.Runs)-1]
		fmt.Fprintf(sb, "fertility: %.3f tokens/word\n", Fertility(last.Tokens, last.Words))
		if r.Baseline != nil {
			fmt.Fprintf(sb, "baseline %s: %d tokens (%.3f tokens/word)\n",
				r.Baseline.Encoding, r.Baseline.Tokens, Fertility(r.Baseline.Tokens, last.Words))
		}
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs     []jsonRun     `json:"runs"`
	Stats    jsonStats     `json:"stats"`
	Baseline *jsonBaseline `json:"baseline,omitempty"`
}

type jsonRun struct {
	Index       int     `json:"index"`
	Cold        bool    `json:"cold"`
	DurationUS  float64 `json:"duration_us"`
	Words       int     `json:"words"`
	Tokens      int     `json:"tokens"`
	Unknown     int     `json:"unknown"`
	WordsPerSec float64 `json:"words_per_sec"`
}

type jsonStats struct {
	MinUS  float64 `json:"min_us"`
	MeanUS float64 `json:"mean_us"`
	MaxUS  float64 `json:"max_us"`
}

type jsonBaseline struct {
	Encoding string `json:"encoding"`
	Tokens   int    `json:"tokens"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(r Report, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(r.Runs)),
		Stats: jsonStats{
			MinUS:  micros(r.Stats.Min),
			MeanUS: micros(r.Stats.Mean),
			MaxUS:  micros(r.Stats.Max),
		},
	}
	for i, run := range r.Runs {
		jr.Runs[i] = jsonRun{
			Index:       run.Index,
			Cold:        run.Cold,
			DurationUS:  micros(run.Duration),
			Words:       run.Words,
			Tokens:      run.Tokens,
			Unknown:     run.Unknown,
			WordsPerSec: run.WordsPerSec,
		}
	}
	if r.Baseline != nil {
		jr.Baseline = &jsonBaseline{Encoding: r.Baseline.Encoding, Tokens: r.Baseline.Tokens}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
