package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultBaselineEncoding is the OpenAI encoding compared against by bench.
const DefaultBaselineEncoding = "cl100k_base"

// Baseline counts tokens with an OpenAI BPE encoding so WordPiece output can
// be compared against a widely used reference.
type Baseline struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewBaseline loads the named tiktoken encoding. The first call for an
// encoding may download its ranks file.
func NewBaseline(encodingName string) (*Baseline, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &Baseline{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// Count returns the number of BPE tokens in text.
func (b *Baseline) Count(text string) int {
	return len(b.encoding.Encode(text, nil, nil))
}

// Name returns the encoding name.
func (b *Baseline) Name() string { return b.name }
