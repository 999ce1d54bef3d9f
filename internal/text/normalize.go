// Package text holds the normalization policy and word splitting shared by
// vocabulary training and tokenization. Both sides must use the same Policy;
// the trained artifact records it so the tokenizer can re-apply it.
package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// ErrPolicyMismatch is returned when a tokenizer is configured with a
// normalization policy that differs from the one used at training time.
var ErrPolicyMismatch = errors.New("normalization policy mismatch")

// Normalize prepares raw input text for tokenization.
// It trims surrounding whitespace, normalizes line endings to \n,
// and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	// Normalize line endings: CRLF → LF, then bare CR → LF.
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// Policy selects the normalization steps applied to every word before it is
// counted during training or segmented at inference time.
type Policy struct {
	Lowercase        bool `mapstructure:"lowercase" yaml:"lowercase" json:"lowercase"`
	StripPunctuation bool `mapstructure:"strip_punctuation" yaml:"strip_punctuation" json:"strip_punctuation"`
	StripAccents     bool `mapstructure:"strip_accents" yaml:"strip_accents" json:"strip_accents"`
}

// String renders the policy as a compact flag list, e.g. "lowercase+strip_accents".
func (p Policy) String() string {
	var parts []string
	if p.Lowercase {
		parts = append(parts, "lowercase")
	}
	if p.StripPunctuation {
		parts = append(parts, "strip_punctuation")
	}
	if p.StripAccents {
		parts = append(parts, "strip_accents")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Check returns ErrPolicyMismatch when p and trained differ.
func (p Policy) Check(trained Policy) error {
	if p != trained {
		return fmt.Errorf("%w: configured %s, trained with %s", ErrPolicyMismatch, p, trained)
	}
	return nil
}

// Apply normalizes s according to the policy. Text is always brought to NFC
// so that composed and decomposed spellings of a word count as one word.
func (p Policy) Apply(s string) string {
	if p.StripAccents {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if out, _, err := transform.String(t, s); err == nil {
			s = out
		}
	} else {
		s = norm.NFC.String(s)
	}

	if p.Lowercase {
		s = strings.ToLower(s)
	}

	return s
}
