package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/example/go-wordpiece/internal/bench"
	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/tokenizer"
	"github.com/example/go-wordpiece/internal/vocab"
)

// ---------------------------------------------------------------------------
// Aggregation (min/max/mean)
// ---------------------------------------------------------------------------

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}

	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}

	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestStats_SingleRun(t *testing.T) {
	s := bench.ComputeStats([]time.Duration{150 * time.Millisecond})
	if s.Min != s.Max || s.Min != s.Mean {
		t.Errorf("single run: min/max/mean should all be equal, got min=%v max=%v mean=%v", s.Min, s.Max, s.Mean)
	}
}

func TestStats_Empty(t *testing.T) {
	if s := bench.ComputeStats(nil); s != (bench.Stats{}) {
		t.Errorf("want zero stats, got %+v", s)
	}
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

func TestThroughput_Calculation(t *testing.T) {
	// 1000 words in 500ms → 2000 words/s
	got := bench.Throughput(1000, 500*time.Millisecond)
	if got < 1999.9 || got > 2000.1 {
		t.Errorf("want throughput≈2000, got %.4f", got)
	}
}

func TestThroughput_ZeroDuration(t *testing.T) {
	if got := bench.Throughput(10, 0); got != 0 {
		t.Errorf("want 0 for zero duration, got %.4f", got)
	}
}

func TestFertility(t *testing.T) {
	if got := bench.Fertility(3, 2); got != 1.5 {
		t.Errorf("Fertility(3, 2) = %v; want 1.5", got)
	}
	if got := bench.Fertility(3, 0); got != 0 {
		t.Errorf("Fertility(3, 0) = %v; want 0", got)
	}
}

func TestMeanThroughput_SkipsColdRun(t *testing.T) {
	runs := []bench.RunResult{
		{Cold: true, WordsPerSec: 10},
		{WordsPerSec: 100},
		{WordsPerSec: 200},
	}
	if got := bench.MeanThroughput(runs); got != 150 {
		t.Errorf("MeanThroughput = %v; want 150", got)
	}

	if got := bench.MeanThroughput(runs[:1]); got != 10 {
		t.Errorf("MeanThroughput(single cold) = %v; want 10", got)
	}
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

func TestThroughputThreshold_BelowThreshold(t *testing.T) {
	err := bench.CheckThroughputThreshold(500, 1000)
	if err == nil {
		t.Error("want error when throughput is below threshold")
	}
}

func TestThroughputThreshold_AboveThreshold(t *testing.T) {
	err := bench.CheckThroughputThreshold(1500, 1000)
	if err != nil {
		t.Errorf("want no error above threshold, got: %v", err)
	}
}

func TestThroughputThreshold_ExactlyAtThreshold(t *testing.T) {
	err := bench.CheckThroughputThreshold(1000, 1000)
	if err != nil {
		t.Errorf("want no error at exact threshold, got: %v", err)
	}
}

func TestThroughputThreshold_DisabledWhenZero(t *testing.T) {
	err := bench.CheckThroughputThreshold(0, 0)
	if err != nil {
		t.Errorf("threshold=0 should disable gate, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func newWordPiece(t *testing.T) *tokenizer.WordPiece {
	t.Helper()

	wp, err := tokenizer.NewWordPiece(
		vocab.FromTokens([]string{"[UNK]", "low", "##est", "new", "##er"}),
		tokenizer.WithPolicy(text.Policy{Lowercase: true}),
	)
	if err != nil {
		t.Fatalf("NewWordPiece: %v", err)
	}

	return wp
}

func TestRun_CountsWordsTokensAndUnknown(t *testing.T) {
	lines := []string{"Lowest newer", "xyz low"}

	runs, err := bench.Run(context.Background(), newWordPiece(t), lines, bench.Options{
		Runs:     3,
		Policy:   text.Policy{Lowercase: true},
		UnkToken: "[UNK]",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("runs = %d; want 3", len(runs))
	}

	for i, r := range runs {
		if r.Index != i || r.Cold != (i == 0) {
			t.Errorf("run %d: index=%d cold=%v", i, r.Index, r.Cold)
		}
		if r.Words != 4 || r.Tokens != 6 || r.Unknown != 1 {
			t.Errorf("run %d: words=%d tokens=%d unknown=%d; want 4/6/1", i, r.Words, r.Tokens, r.Unknown)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	wp := newWordPiece(t)

	if _, err := bench.Run(context.Background(), wp, []string{"low"}, bench.Options{}); err == nil {
		t.Error("want error for zero runs")
	}

	if _, err := bench.Run(context.Background(), wp, nil, bench.Options{Runs: 1}); err == nil {
		t.Error("want error for empty input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bench.Run(ctx, wp, []string{"low"}, bench.Options{Runs: 1}); err == nil {
		t.Error("want error for cancelled context")
	}
}

type fixedCounter struct{}

func (fixedCounter) Count(s string) int { return len(strings.Fields(s)) + 1 }
func (fixedCounter) Name() string       { return "fixed" }

func TestCountBaseline(t *testing.T) {
	got := bench.CountBaseline(fixedCounter{}, []string{"a b", "c"})
	if got.Encoding != "fixed" || got.Tokens != 5 {
		t.Errorf("CountBaseline = %+v; want {fixed 5}", got)
	}
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func sampleReport() bench.Report {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Microsecond, Words: 4, Tokens: 6, Unknown: 1, WordsPerSec: 5000},
		{Index: 1, Cold: false, Duration: 500 * time.Microsecond, Words: 4, Tokens: 6, Unknown: 1, WordsPerSec: 8000},
	}

	return bench.Report{
		Runs:     runs,
		Stats:    bench.ComputeStats(bench.Durations(runs)),
		Baseline: &bench.BaselineResult{Encoding: "cl100k_base", Tokens: 5},
	}
}

func TestFormatTable_ContainsHeaders(t *testing.T) {
	var buf strings.Builder
	bench.FormatTable(sampleReport(), &buf)
	out := buf.String()

	for _, want := range []string{"run", "cold", "micros", "tokens", "unknown", "words/s", "fertility: 1.500", "baseline cl100k_base: 5 tokens"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	bench.FormatJSON(sampleReport(), &buf)

	var out struct {
		Runs  []map[string]any `json:"runs"`
		Stats struct {
			MinUS float64 `json:"min_us"`
		} `json:"stats"`
		Baseline *struct {
			Tokens int `json:"tokens"`
		} `json:"baseline"`
	}

	err := json.Unmarshal(buf.Bytes(), &out)
	if err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}

	if len(out.Runs) != 2 || out.Stats.MinUS != 500 {
		t.Errorf("unexpected report: %s", buf.String())
	}
	if out.Baseline == nil || out.Baseline.Tokens != 5 {
		t.Errorf("baseline missing: %s", buf.String())
	}
}
