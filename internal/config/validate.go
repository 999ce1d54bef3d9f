package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-wordpiece/internal/vocab"
)

// VocabFormat parses the configured vocabulary file format.
func (c Config) VocabFormat() (vocab.Format, error) {
	return vocab.ParseFormat(c.Tokenizer.VocabFormat)
}

// ValidateTokenizer checks the settings needed to load and run a segmenter.
func (c Config) ValidateTokenizer() error {
	var errs []error

	if strings.TrimSpace(c.Tokenizer.UnkToken) == "" {
		errs = append(errs, errors.New("tokenizer.unk_token must not be empty"))
	}
	if c.Tokenizer.MaxInputCharsPerWord <= 0 {
		errs = append(errs, fmt.Errorf("tokenizer.max_input_chars_per_word must be positive, got %d", c.Tokenizer.MaxInputCharsPerWord))
	}
	if _, err := c.VocabFormat(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateServer checks the serve settings on top of ValidateTokenizer.
func (c Config) ValidateServer() error {
	errs := []error{c.ValidateTokenizer()}

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers))
	}
	if c.Server.MaxTextBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_text_bytes must be positive, got %d", c.Server.MaxTextBytes))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout))
	}
	if c.Server.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("server.cache_size must not be negative, got %d", c.Server.CacheSize))
	}

	return errors.Join(errs...)
}
