package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/config"
	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/server"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "wordpiece",
		Short:         "WordPiece vocabulary trainer and tokenizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newVocabCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ArtifactDir == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

// loadArtifact opens path, or the configured artifact directory when path is
// empty. Tokenizer settings and the normalization policy recorded in the
// manifest win unless they were set explicitly; bare vocabulary files take
// the configured policy and have their format inferred from the file name.
func loadArtifact(cfg config.Config, path string) (*model.Loaded, error) {
	if err := cfg.ValidateTokenizer(); err != nil {
		return nil, err
	}
	if path == "" {
		path = cfg.Paths.ArtifactDir
	}

	opts := model.LoadOptions{Settings: tokenizerOverrides(cfg)}
	if fi, err := os.Stat(path); cfg.IsSet("normalize") || err != nil || !fi.IsDir() {
		policy := cfg.Normalize
		opts.Policy = &policy
	}
	return model.Load(path, opts)
}

// tokenizerOverrides returns the segmenter settings given explicitly on the
// command line, in the environment or in the config file.
func tokenizerOverrides(cfg config.Config) model.Settings {
	var s model.Settings
	if cfg.IsSet("tokenizer.unk_token") {
		s.UnkToken = cfg.Tokenizer.UnkToken
	}
	if cfg.IsSet("train.continuation_prefix") {
		s.ContinuationPrefix = cfg.Train.ContinuationPrefix
	}
	if cfg.IsSet("tokenizer.max_input_chars_per_word") {
		s.MaxInputCharsPerWord = cfg.Tokenizer.MaxInputCharsPerWord
	}
	return s
}
