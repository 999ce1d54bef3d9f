package main

import (
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/example/go-wordpiece/internal/config"
	"github.com/example/go-wordpiece/internal/corpus"
	"github.com/example/go-wordpiece/internal/testutil"
)

// trainCase describes one training run whose artifact is reloaded with the
// default configuration.
type trainCase struct {
	name     string
	freqs    corpus.Frequencies
	size     int
	minFreq  int
	prefix   string
	unk      string
	specials []string
	workers  int
}

var roundTripCases = []trainCase{
	{
		name:     "fixture bert",
		freqs:    corpus.Frequencies{"low": 5, "lower": 2, "newest": 6, "widest": 3},
		size:     25,
		minFreq:  2,
		prefix:   "##",
		unk:      "[UNK]",
		specials: config.DefaultSpecialTokens,
	},
	{
		name:     "fixture custom prefix and unk",
		freqs:    corpus.Frequencies{"low": 5, "lower": 2, "newest": 6, "widest": 3},
		size:     22,
		minFreq:  2,
		prefix:   "@@",
		unk:      "<unk>",
		specials: []string{"<pad>", "<unk>"},
	},
	{
		name:     "accented and cjk",
		freqs:    corpus.Frequencies{"café": 3, "cafés": 2, "naïve": 2, "über": 1, "日本語": 4, "日本": 2},
		size:     40,
		minFreq:  1,
		prefix:   "##",
		unk:      "[UNK]",
		specials: []string{"[UNK]"},
	},
	{
		name: "affixes parallel counting",
		freqs: corpus.Frequencies{
			"unaffable": 2, "affable": 3, "able": 5, "un": 4, "hugging": 3,
			"hug": 6, "hugs": 2, "pug": 2, "pun": 4, "bun": 1,
		},
		size:     60,
		minFreq:  2,
		prefix:   "~~",
		unk:      "[UNK]",
		specials: []string{"[PAD]", "[UNK]"},
		workers:  3,
	},
}

func TestTrainReload_SegmentsEveryCorpusWord(t *testing.T) {
	for _, tc := range roundTripCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "artifact")

			cfg := config.DefaultConfig()
			cfg.Paths.ArtifactDir = dir
			cfg.Train.VocabSize = tc.size
			cfg.Train.MinFrequency = tc.minFreq
			cfg.Train.ContinuationPrefix = tc.prefix
			cfg.Train.SpecialTokens = tc.specials
			cfg.Train.Workers = max(tc.workers, 1)
			cfg.Tokenizer.UnkToken = tc.unk

			m, err := runTrain(cfg, tc.freqs, true)
			if err != nil {
				t.Fatalf("runTrain: %v", err)
			}
			if m.Training == nil || m.Training.Truncated {
				t.Fatalf("training stats = %+v; want an untruncated alphabet", m.Training)
			}

			// Reload with nothing set explicitly: the manifest decides.
			reload := config.DefaultConfig()
			reload.Paths.ArtifactDir = dir

			loaded, err := loadArtifact(reload, "")
			if err != nil {
				t.Fatalf("loadArtifact: %v", err)
			}

			if s := loaded.Manifest.Tokenizer; s.ContinuationPrefix != tc.prefix || s.UnkToken != tc.unk {
				t.Fatalf("reloaded settings = %+v; want prefix %q unk %q", s, tc.prefix, tc.unk)
			}

			words := make([]string, 0, len(tc.freqs))
			for w := range tc.freqs {
				words = append(words, w)
			}
			sort.Strings(words)

			for _, w := range words {
				pieces := loaded.Tokenizer.TokenizeWord(w)
				if reflect.DeepEqual(pieces, []string{tc.unk}) {
					t.Errorf("corpus word %q segmented as %q", w, pieces)
					continue
				}

				testutil.AssertSegmentsWord(t, w, pieces, tc.prefix, tc.unk)

				if got := loaded.Tokenizer.Join(pieces); got != w {
					t.Errorf("Join(%q) = %q; want %q", pieces, got, w)
				}
			}
		})
	}
}

func TestTokenize_UsesRecordedSettings(t *testing.T) {
	t.Chdir(t.TempDir())

	corpusPath := testutil.WriteCorpus(t, t.TempDir(), testutil.SmallCorpus)
	dir := filepath.Join(t.TempDir(), "artifact")

	_, err := runCLI(t, "", "train", "--paths-artifact-dir", dir, "--vocab-size", "22", "--min-frequency", "2",
		"--continuation-prefix", "@@", "--unk-token", "<unk>", "--special-tokens", "<pad>,<unk>", corpusPath)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"recorded", nil, "lo @@w @@est ne @@wer <unk>"},
		{"explicit limit", []string{"--max-input-chars-per-word", "5"}, "<unk> ne @@wer <unk>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"tokenize", "--paths-artifact-dir", dir}, tt.args...)

			out, err := runCLI(t, "", append(args, "--text", "lowest newer xyz")...)
			if err != nil {
				t.Fatalf("tokenize: %v", err)
			}

			if got := strings.Join(strings.Fields(out), " "); got != tt.want {
				t.Errorf("tokens = %q; want %q", got, tt.want)
			}
		})
	}
}
