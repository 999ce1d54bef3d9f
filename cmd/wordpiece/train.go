package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/config"
	"github.com/example/go-wordpiece/internal/corpus"
	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/trainer"
)

func newTrainCmd() *cobra.Command {
	var saveMerges bool

	cmd := &cobra.Command{
		Use:   "train [corpus files...]",
		Short: "Train a WordPiece vocabulary from text files",
		Long: "Train reads the corpus files (arguments, or --paths-corpus), counts normalized words,\n" +
			"runs WordPiece merges until --vocab-size is reached and writes the artifact to\n" +
			"--paths-artifact-dir.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Paths.Corpus = args
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			freqs, err := corpus.ReadFiles(ctx, cfg.Paths.Corpus, cfg.Normalize, cfg.Train.Workers)
			if err != nil {
				return err
			}
			slog.Info("corpus loaded",
				slog.Int("files", len(cfg.Paths.Corpus)),
				slog.Int("words", len(freqs)),
				slog.Int("occurrences", freqs.Total()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)

			m, err := runTrain(cfg, freqs, saveMerges)
			if err != nil {
				return err
			}

			return printTrainSummary(cmd.OutOrStdout(), cfg.Paths.ArtifactDir, m)
		},
	}

	cmd.Flags().BoolVar(&saveMerges, "save-merges", true, "Write merges.txt next to the vocabulary")

	return cmd
}

// runTrain trains on freqs and saves the artifact described by cfg.
func runTrain(cfg config.Config, freqs corpus.Frequencies, saveMerges bool) (model.Manifest, error) {
	format, err := cfg.VocabFormat()
	if err != nil {
		return model.Manifest{}, err
	}
	if err := cfg.ValidateTokenizer(); err != nil {
		return model.Manifest{}, err
	}

	tcfg := cfg.TrainerConfig()
	res, err := trainer.Train(freqs, tcfg)
	if err != nil {
		if errors.Is(err, trainer.ErrEmptyCorpus) {
			return model.Manifest{}, fmt.Errorf("%w: no words in %v", err, cfg.Paths.Corpus)
		}
		return model.Manifest{}, err
	}

	artifact := model.Artifact{
		Vocabulary: res.Vocabulary,
		Format:     format,
		Settings: model.Settings{
			UnkToken:             cfg.Tokenizer.UnkToken,
			ContinuationPrefix:   cfg.Train.ContinuationPrefix,
			MaxInputCharsPerWord: cfg.Tokenizer.MaxInputCharsPerWord,
			SpecialTokens:        cfg.Train.SpecialTokens,
		},
		Policy:   cfg.Normalize,
		Training: model.NewTrainingStats(res, tcfg, len(freqs), freqs.Total()),
	}
	if saveMerges {
		artifact.Merges = res.Merges
	}

	return model.Save(cfg.Paths.ArtifactDir, artifact)
}

func printTrainSummary(w io.Writer, dir string, m model.Manifest) error {
	_, err := fmt.Fprintf(w, "wrote %s: %d symbols, fingerprint %s\n", dir, m.Vocabulary.Size, m.Vocabulary.Fingerprint)
	if err != nil || m.Training == nil {
		return err
	}

	t := m.Training
	_, err = fmt.Fprintf(w, "alphabet %d, merges %d, truncated %t, exhausted %t\n", t.Alphabet, t.Merges, t.Truncated, t.Exhausted)
	if t.Exhausted {
		slog.Warn("vocabulary smaller than requested; no pair reached the minimum frequency",
			slog.Int("vocab", m.Vocabulary.Size),
			slog.Int("vocab_size", t.VocabSize),
			slog.Int("min_frequency", t.MinFrequency),
		)
	}
	return err
}
