package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/vocab"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Vocabulary artifact inspection and verification commands",
	}

	cmd.AddCommand(newVocabVerifyCmd())
	cmd.AddCommand(newVocabInspectCmd())
	cmd.AddCommand(newVocabConvertCmd())
	return cmd
}

func newVocabVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [artifact-dir]",
		Short: "Re-hash artifact files and compare them with the manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.ArtifactDir
			if len(args) == 1 {
				dir = args[0]
			}

			m, err := model.Verify(dir, model.VerifyOptions{
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "artifact ok: %d symbols\n", m.Vocabulary.Size)
			return err
		},
	}
}

func newVocabInspectCmd() *cobra.Command {
	var (
		limit     int
		showMerge bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [artifact-dir|vocab-file]",
		Short: "Print artifact settings, training stats and leading symbols",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			loaded, err := loadArtifact(cfg, path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printManifest(w, loaded)

			tokens := loaded.Vocabulary.Tokens()
			if limit >= 0 && limit < len(tokens) {
				tokens = tokens[:limit]
			}
			for i, tok := range tokens {
				_, _ = fmt.Fprintf(w, "%6d  %s\n", i, tok)
			}

			if !showMerge || loaded.Bare {
				return nil
			}
			if path == "" {
				path = cfg.Paths.ArtifactDir
			}
			merges, err := model.LoadMerges(path, loaded.Manifest.Tokenizer.ContinuationPrefix)
			if err != nil {
				return err
			}
			if limit >= 0 && limit < len(merges) {
				merges = merges[:limit]
			}
			for i, mg := range merges {
				_, _ = fmt.Fprintf(w, "merge %4d  %s + %s -> %s  (freq %d, score %.6g)\n",
					i+1, mg.Left, mg.Right, mg.Merged, mg.Frequency, mg.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of symbols (and merges) to print; -1 prints all")
	cmd.Flags().BoolVar(&showMerge, "merges", false, "Also print the recorded merges")

	return cmd
}

func printManifest(w io.Writer, l *model.Loaded) {
	m := l.Manifest
	s := m.Tokenizer

	_, _ = fmt.Fprintf(w, "vocabulary:    %s (%s)\n", m.Vocabulary.File, m.Vocabulary.Format)
	_, _ = fmt.Fprintf(w, "size:          %d\n", m.Vocabulary.Size)
	_, _ = fmt.Fprintf(w, "fingerprint:   %s\n", m.Vocabulary.Fingerprint)
	_, _ = fmt.Fprintf(w, "unk token:     %s\n", s.UnkToken)
	_, _ = fmt.Fprintf(w, "prefix:        %s\n", s.ContinuationPrefix)
	_, _ = fmt.Fprintf(w, "max chars:     %d\n", s.MaxInputCharsPerWord)
	_, _ = fmt.Fprintf(w, "normalization: %s\n", m.Policy)
	if len(s.SpecialTokens) > 0 {
		_, _ = fmt.Fprintf(w, "specials:      %s\n", strings.Join(s.SpecialTokens, " "))
	}
	if t := m.Training; t != nil {
		_, _ = fmt.Fprintf(w, "training:      %d words, %d occurrences, alphabet %d, %d merges\n",
			t.Words, t.Occurrences, t.Alphabet, t.Merges)
		if t.Truncated {
			_, _ = fmt.Fprintln(w, "               alphabet truncated to the vocabulary size")
		}
		if t.Exhausted {
			_, _ = fmt.Fprintf(w, "               stopped early: no pair reached min frequency %d\n", t.MinFrequency)
		}
	}
}

func newVocabConvertCmd() *cobra.Command {
	var (
		to  string
		out string
	)

	cmd := &cobra.Command{
		Use:   "convert [artifact-dir|vocab-file]",
		Short: "Write the vocabulary in another file format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			format, err := vocab.ParseFormat(to)
			if err != nil {
				return err
			}
			if out == "" {
				return errors.New("--out is required")
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			loaded, err := loadArtifact(cfg, path)
			if err != nil {
				return err
			}

			s := loaded.Manifest.Tokenizer
			settings := vocab.Settings{
				UnkToken:             s.UnkToken,
				ContinuationPrefix:   s.ContinuationPrefix,
				MaxInputCharsPerWord: s.MaxInputCharsPerWord,
			}

			if out == "-" {
				return vocab.Write(cmd.OutOrStdout(), loaded.Vocabulary, format, settings)
			}
			if err := vocab.Save(out, loaded.Vocabulary, format, settings); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d symbols)\n", out, format, loaded.Vocabulary.Len())
			return err
		},
	}

	cmd.Flags().StringVar(&to, "to", string(vocab.FormatHuggingFace), "Target format (text|json|huggingface)")
	cmd.Flags().StringVar(&out, "out", "", "Output file ('-' for stdout)")

	return cmd
}
