package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/vocab"
)

const (
	// DefaultUnkToken replaces words that cannot be segmented.
	DefaultUnkToken = "[UNK]"
	// DefaultMaxInputCharsPerWord is the longest word, in runes, that is
	// segmented at all.
	DefaultMaxInputCharsPerWord = 100
)

var (
	// ErrNilVocabulary is returned by NewWordPiece without a vocabulary.
	ErrNilVocabulary = errors.New("vocabulary is required")

	// ErrUnknownTokenMissing is returned by Encode when a word degrades to
	// the unknown token but the vocabulary has no id for it.
	ErrUnknownTokenMissing = errors.New("unknown token is not in the vocabulary")
)

type options struct {
	unkToken string
	maxChars int
	prefix   string
	policy   text.Policy
	specials []string
}

func defaultOptions() options {
	return options{
		unkToken: DefaultUnkToken,
		maxChars: DefaultMaxInputCharsPerWord,
		prefix:   vocab.DefaultContinuationPrefix,
	}
}

// Option configures a WordPiece tokenizer.
type Option func(*options)

// WithUnkToken sets the token emitted for unsegmentable words.
func WithUnkToken(tok string) Option {
	return func(o *options) { o.unkToken = tok }
}

// WithMaxInputCharsPerWord sets the longest word, in runes, that is segmented.
func WithMaxInputCharsPerWord(n int) Option {
	return func(o *options) { o.maxChars = n }
}

// WithContinuationPrefix sets the marker of non-initial symbols.
func WithContinuationPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}

// WithPolicy sets the normalization policy applied by Tokenize and Encode.
// It must match the policy used when the vocabulary was trained.
func WithPolicy(p text.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithSpecialTokens marks tokens reported by IsSpecialToken. The unknown
// token is always special.
func WithSpecialTokens(tokens ...string) Option {
	return func(o *options) { o.specials = append(o.specials, tokens...) }
}

// WordPiece is a read-only greedy longest-match-first segmenter. It is safe
// for concurrent use.
type WordPiece struct {
	vocab    *vocab.Vocabulary
	unk      string
	unkID    int32
	prefix   string
	maxChars int
	splitter *text.Splitter
	special  map[int32]struct{}
}

var _ Tokenizer = (*WordPiece)(nil)

// NewWordPiece builds a segmenter over v.
func NewWordPiece(v *vocab.Vocabulary, optFns ...Option) (*WordPiece, error) {
	if v == nil || v.Len() == 0 {
		return nil, ErrNilVocabulary
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.unkToken == "" {
		return nil, errors.New("unknown token must not be empty")
	}
	if opts.maxChars <= 0 {
		return nil, fmt.Errorf("max input chars per word must be positive, got %d", opts.maxChars)
	}

	unkID, _ := v.ID(opts.unkToken)

	special := make(map[int32]struct{}, len(opts.specials)+1)
	for _, tok := range append(opts.specials, opts.unkToken) {
		if id, ok := v.ID(tok); ok {
			special[id] = struct{}{}
		}
	}

	return &WordPiece{
		vocab:    v,
		unk:      opts.unkToken,
		unkID:    unkID,
		prefix:   opts.prefix,
		maxChars: opts.maxChars,
		splitter: text.NewSplitter(opts.policy),
		special:  special,
	}, nil
}

// TokenizeWord segments one word. Words longer than the rune limit, and words
// with a position no vocabulary symbol covers, become a single unknown token;
// symbols matched before the failure are discarded.
func (w *WordPiece) TokenizeWord(word string) []string {
	runes := []rune(word)
	if len(runes) > w.maxChars {
		return []string{w.unk}
	}

	tokens := make([]string, 0, 4)
	for start := 0; start < len(runes); {
		end := len(runes)
		match := ""
		for ; end > start; end-- {
			cand := string(runes[start:end])
			if start > 0 {
				cand = w.prefix + cand
			}
			if w.vocab.Contains(cand) {
				match = cand
				break
			}
		}
		if match == "" {
			return []string{w.unk}
		}
		tokens = append(tokens, match)
		start = end
	}

	return tokens
}

// Tokenize normalizes and splits text, then segments every word in order.
func (w *WordPiece) Tokenize(input string) []string {
	return w.tokenize(input, w)
}

func (w *WordPiece) tokenize(input string, seg WordSegmenter) []string {
	words := w.splitter.Split(input)
	tokens := make([]string, 0, len(words)*2)
	for _, word := range words {
		tokens = append(tokens, seg.TokenizeWord(word)...)
	}
	return tokens
}

// Encode tokenizes text and maps the tokens to vocabulary ids.
func (w *WordPiece) Encode(input string) ([]int32, error) {
	return w.IDs(w.Tokenize(input))
}

// IDs maps tokens to vocabulary ids.
func (w *WordPiece) IDs(tokens []string) ([]int32, error) {
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		id, ok := w.vocab.ID(tok)
		if !ok {
			if tok == w.unk {
				return nil, fmt.Errorf("%w: %q", ErrUnknownTokenMissing, w.unk)
			}
			return nil, fmt.Errorf("token %q is not in the vocabulary", tok)
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode maps ids back to symbols and joins them into text.
func (w *WordPiece) Decode(ids []int32) (string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tok, ok := w.vocab.Token(id)
		if !ok {
			return "", fmt.Errorf("token id %d out of range [0, %d)", id, w.vocab.Len())
		}
		tokens[i] = tok
	}
	return w.Join(tokens), nil
}

// Join glues continuation symbols onto the preceding symbol and separates
// words with a single space.
func (w *WordPiece) Join(tokens []string) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if vocab.IsContinuation(tok, w.prefix) {
			sb.WriteString(tok[len(w.prefix):])
			continue
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

// VocabSize returns the total vocabulary size.
func (w *WordPiece) VocabSize() int { return w.vocab.Len() }

// UnkToken returns the unknown token ID, or -1 when absent.
func (w *WordPiece) UnkToken() int32 { return w.unkID }

// IsSpecialToken reports whether id is the unknown token or one of the
// tokens given with WithSpecialTokens.
func (w *WordPiece) IsSpecialToken(id int32) bool {
	_, ok := w.special[id]
	return ok
}

// Vocabulary returns the underlying vocabulary.
func (w *WordPiece) Vocabulary() *vocab.Vocabulary { return w.vocab }

// Policy returns the normalization policy applied before splitting.
func (w *WordPiece) Policy() text.Policy { return w.splitter.Policy() }
