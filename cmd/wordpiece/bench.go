package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/bench"
	"github.com/example/go-wordpiece/internal/tokenizer"
)

func newBenchCmd() *cobra.Command {
	var (
		text          string
		input         string
		artifact      string
		runs          int
		format        string
		minThroughput float64
		baseline      string
		cached        bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark tokenization throughput and compare token counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			lines, err := benchLines(text, input)
			if err != nil {
				return err
			}

			loaded, err := loadArtifact(cfg, artifact)
			if err != nil {
				return err
			}

			var tok tokenizer.Tokenizer = loaded.Tokenizer
			if cached {
				tok = tokenizer.NewCached(loaded.Tokenizer, uint64(max(cfg.Server.CacheSize, 0)), 0) //nolint:gosec // G115: clamped non-negative.
			}

			results, err := bench.Run(cmd.Context(), tok, lines, bench.Options{
				Runs:     runs,
				Policy:   loaded.Manifest.Policy,
				UnkToken: loaded.Manifest.Tokenizer.UnkToken,
			})
			if err != nil {
				return err
			}

			report := bench.Report{
				Runs:  results,
				Stats: bench.ComputeStats(bench.Durations(results)),
			}

			if baseline != "" {
				b, err := tokenizer.NewBaseline(baseline)
				if err != nil {
					return err
				}
				r := bench.CountBaseline(b, lines)
				report.Baseline = &r
			}

			switch format {
			case "json":
				bench.FormatJSON(report, cmd.OutOrStdout())
			default:
				bench.FormatTable(report, cmd.OutOrStdout())
			}

			return bench.CheckThroughputThreshold(bench.MeanThroughput(results), minThroughput)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize for each run")
	cmd.Flags().StringVar(&input, "input", "", "File whose lines are tokenized for each run (used when --text is empty)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Artifact directory or vocabulary file (overrides --paths-artifact-dir)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of passes over the input")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minThroughput, "min-throughput", 0, "Exit non-zero if mean words/s falls below this value (0 = disabled)")
	cmd.Flags().StringVar(&baseline, "baseline", "", "tiktoken encoding to compare token counts against, e.g. "+tokenizer.DefaultBaselineEncoding)
	cmd.Flags().BoolVar(&cached, "cached", false, "Benchmark through the word cache (sized by --cache-size)")

	return cmd
}

// benchLines returns the non-blank lines of text, or of the input file.
func benchLines(text, input string) ([]string, error) {
	if strings.TrimSpace(text) != "" {
		return []string{text}, nil
	}
	if input == "" {
		return nil, fmt.Errorf("--text or --input is required for bench")
	}

	f, err := os.Open(input) //nolint:gosec // G304: user-selected bench input.
	if err != nil {
		return nil, fmt.Errorf("open bench input: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read bench input: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("bench input %s has no text", input)
	}
	return lines, nil
}
