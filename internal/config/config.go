package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/tokenizer"
	"github.com/example/go-wordpiece/internal/trainer"
	"github.com/example/go-wordpiece/internal/vocab"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Train     TrainConfig     `mapstructure:"train"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Normalize text.Policy     `mapstructure:"normalize"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`

	// explicit holds the keys set by a changed flag, an environment
	// variable or the config file.
	explicit map[string]bool
}

// IsSet reports whether key, or a key nested below it, was set explicitly
// instead of coming from the defaults.
func (c Config) IsSet(key string) bool {
	for k := range c.explicit {
		if k == key || strings.HasPrefix(k, key+".") {
			return true
		}
	}
	return false
}

type PathsConfig struct {
	Corpus      []string `mapstructure:"corpus"`
	ArtifactDir string   `mapstructure:"artifact_dir"`
}

type TrainConfig struct {
	VocabSize          int      `mapstructure:"vocab_size"`
	MinFrequency       int      `mapstructure:"min_frequency"`
	ContinuationPrefix string   `mapstructure:"continuation_prefix"`
	SpecialTokens      []string `mapstructure:"special_tokens"`
	Workers            int      `mapstructure:"workers"`
}

type TokenizerConfig struct {
	UnkToken             string `mapstructure:"unk_token"`
	MaxInputCharsPerWord int    `mapstructure:"max_input_chars_per_word"`
	VocabFormat          string `mapstructure:"vocab_format"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	Workers         int           `mapstructure:"workers"`
	MaxTextBytes    int           `mapstructure:"max_text_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CacheSize       int           `mapstructure:"cache_size"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// DefaultSpecialTokens are the BERT reserved symbols used by the CLI.
var DefaultSpecialTokens = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Corpus:      nil,
			ArtifactDir: "artifacts/wordpiece",
		},
		Train: TrainConfig{
			VocabSize:          30000,
			MinFrequency:       2,
			ContinuationPrefix: vocab.DefaultContinuationPrefix,
			SpecialTokens:      append([]string(nil), DefaultSpecialTokens...),
			Workers:            1,
		},
		Tokenizer: TokenizerConfig{
			UnkToken:             tokenizer.DefaultUnkToken,
			MaxInputCharsPerWord: tokenizer.DefaultMaxInputCharsPerWord,
			VocabFormat:          string(vocab.FormatText),
		},
		Normalize: text.Policy{
			Lowercase: true,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    64 << 10,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CacheSize:       10000,
			CacheTTL:        10 * time.Minute,
		},
		LogLevel: "info",
	}
}

// flagKeys maps every command-line flag to its config key.
var flagKeys = map[string]string{
	"paths-corpus":             "paths.corpus",
	"paths-artifact-dir":       "paths.artifact_dir",
	"vocab-size":               "train.vocab_size",
	"min-frequency":            "train.min_frequency",
	"continuation-prefix":      "train.continuation_prefix",
	"special-tokens":           "train.special_tokens",
	"train-workers":            "train.workers",
	"unk-token":                "tokenizer.unk_token",
	"max-input-chars-per-word": "tokenizer.max_input_chars_per_word",
	"vocab-format":             "tokenizer.vocab_format",
	"lowercase":                "normalize.lowercase",
	"strip-punctuation":        "normalize.strip_punctuation",
	"strip-accents":            "normalize.strip_accents",
	"server-listen-addr":       "server.listen_addr",
	"workers":                  "server.workers",
	"max-text-bytes":           "server.max_text_bytes",
	"request-timeout":          "server.request_timeout",
	"shutdown-timeout":         "server.shutdown_timeout",
	"cache-size":               "server.cache_size",
	"cache-ttl":                "server.cache_ttl",
	"log-level":                "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.StringSlice("paths-corpus", defaults.Paths.Corpus, "Corpus text files used for training")
	fs.String("paths-artifact-dir", defaults.Paths.ArtifactDir, "Artifact directory (vocabulary, merges, manifest)")
	fs.Int("vocab-size", defaults.Train.VocabSize, "Target vocabulary size, special tokens included")
	fs.Int("min-frequency", defaults.Train.MinFrequency, "Minimum pair frequency considered for a merge")
	fs.String("continuation-prefix", defaults.Train.ContinuationPrefix, "Marker of non-initial symbols")
	fs.StringSlice("special-tokens", defaults.Train.SpecialTokens, "Reserved tokens placed first in the vocabulary")
	fs.Int("train-workers", defaults.Train.Workers, "Goroutines used for pair counting")
	fs.String("unk-token", defaults.Tokenizer.UnkToken, "Token emitted for words that cannot be segmented")
	fs.Int("max-input-chars-per-word", defaults.Tokenizer.MaxInputCharsPerWord, "Words longer than this (in characters) become the unknown token")
	fs.String("vocab-format", defaults.Tokenizer.VocabFormat, "Vocabulary file format (text|json|huggingface)")
	fs.Bool("lowercase", defaults.Normalize.Lowercase, "Lowercase text before splitting")
	fs.Bool("strip-punctuation", defaults.Normalize.StripPunctuation, "Drop punctuation instead of isolating it")
	fs.Bool("strip-accents", defaults.Normalize.StripAccents, "Remove combining accent marks")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent tokenization requests")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max request text size in bytes")
	fs.Duration("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout")
	fs.Duration("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout")
	fs.Int("cache-size", defaults.Server.CacheSize, "Word cache capacity (0 disables the cache)")
	fs.Duration("cache-ttl", defaults.Server.CacheTTL, "Word cache entry lifetime")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("wordpiece")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.explicit = explicitKeys(v, opts.Cmd)

	return cfg, nil
}

const envPrefix = "WORDPIECE"

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_", "__", "_")

// envName is the environment variable AutomaticEnv consults for key.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

// explicitKeys collects the flag-backed keys whose value did not come from
// the defaults. It returns nil when every key is a default.
func explicitKeys(v *viper.Viper, cmd flagBinder) map[string]bool {
	var fs *pflag.FlagSet
	if cmd != nil {
		fs = cmd.Flags()
	}

	set := make(map[string]bool)
	for name, key := range flagKeys {
		if fs != nil {
			if f := fs.Lookup(name); f != nil && f.Changed {
				set[key] = true
				continue
			}
		}
		if v.InConfig(key) {
			set[key] = true
			continue
		}
		if _, ok := os.LookupEnv(envName(key)); ok {
			set[key] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// bindFlags binds every registered flag present in fs to its nested key, so
// flags, env vars and config files all address the same setting.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.corpus", c.Paths.Corpus)
	v.SetDefault("paths.artifact_dir", c.Paths.ArtifactDir)
	v.SetDefault("train.vocab_size", c.Train.VocabSize)
	v.SetDefault("train.min_frequency", c.Train.MinFrequency)
	v.SetDefault("train.continuation_prefix", c.Train.ContinuationPrefix)
	v.SetDefault("train.special_tokens", c.Train.SpecialTokens)
	v.SetDefault("train.workers", c.Train.Workers)
	v.SetDefault("tokenizer.unk_token", c.Tokenizer.UnkToken)
	v.SetDefault("tokenizer.max_input_chars_per_word", c.Tokenizer.MaxInputCharsPerWord)
	v.SetDefault("tokenizer.vocab_format", c.Tokenizer.VocabFormat)
	v.SetDefault("normalize.lowercase", c.Normalize.Lowercase)
	v.SetDefault("normalize.strip_punctuation", c.Normalize.StripPunctuation)
	v.SetDefault("normalize.strip_accents", c.Normalize.StripAccents)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.cache_size", c.Server.CacheSize)
	v.SetDefault("server.cache_ttl", c.Server.CacheTTL)
	v.SetDefault("log_level", c.LogLevel)
}

// TrainerConfig converts the train section for trainer.Train.
func (c Config) TrainerConfig() trainer.Config {
	return trainer.Config{
		VocabSize:          c.Train.VocabSize,
		MinFrequency:       c.Train.MinFrequency,
		ContinuationPrefix: c.Train.ContinuationPrefix,
		SpecialTokens:      append([]string(nil), c.Train.SpecialTokens...),
		Workers:            c.Train.Workers,
	}
}
