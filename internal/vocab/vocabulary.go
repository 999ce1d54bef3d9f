// Package vocab provides the ordered WordPiece vocabulary and its file
// codecs. Token ids are positions in the vocabulary.
package vocab

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultContinuationPrefix marks a symbol that continues the previous one
// inside a word.
const DefaultContinuationPrefix = "##"

// Vocabulary is an ordered set of symbols. The zero value is not usable; use
// New or FromTokens.
type Vocabulary struct {
	tokens []string
	index  map[string]int32
}

// New returns an empty vocabulary with room for capacity symbols.
func New(capacity int) *Vocabulary {
	return &Vocabulary{
		tokens: make([]string, 0, capacity),
		index:  make(map[string]int32, capacity),
	}
}

// FromTokens builds a vocabulary from tokens in order. Duplicates keep their
// first position.
func FromTokens(tokens []string) *Vocabulary {
	v := New(len(tokens))
	for _, t := range tokens {
		v.Add(t)
	}
	return v
}

// Add appends token and reports whether it was new.
func (v *Vocabulary) Add(token string) bool {
	if _, ok := v.index[token]; ok {
		return false
	}
	v.index[token] = int32(len(v.tokens)) //nolint:gosec // G115: vocabularies stay far below 2^31 entries.
	v.tokens = append(v.tokens, token)
	return true
}

// Contains reports whether token is in the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.index[token]
	return ok
}

// ID returns the id of token, or -1 and false when absent.
func (v *Vocabulary) ID(token string) (int32, bool) {
	id, ok := v.index[token]
	if !ok {
		return -1, false
	}
	return id, true
}

// Token returns the symbol with the given id.
func (v *Vocabulary) Token(id int32) (string, bool) {
	if id < 0 || int(id) >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Len returns the number of symbols.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// Tokens returns a copy of the symbols in id order.
func (v *Vocabulary) Tokens() []string {
	return append([]string(nil), v.tokens...)
}

// Fingerprint hashes the symbols in id order. Two vocabularies with the same
// fingerprint serialize to identical files in every format.
func (v *Vocabulary) Fingerprint() uint64 {
	h := xxhash.New()
	for _, t := range v.tokens {
		_, _ = h.WriteString(t)
		_, _ = h.Write([]byte{'\n'})
	}
	return h.Sum64()
}

// IsContinuation reports whether token carries the continuation prefix.
func IsContinuation(token, prefix string) bool {
	return prefix != "" && strings.HasPrefix(token, prefix) && len(token) > len(prefix)
}
