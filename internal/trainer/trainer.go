// Package trainer builds a WordPiece vocabulary from a word-frequency table.
//
// Training seeds the vocabulary with every character of the corpus (non-initial
// characters carry the continuation prefix) and then repeatedly merges the
// adjacent symbol pair with the highest likelihood score
//
//	score(a, b) = freq(ab) / (freq(a) * freq(b))
//
// until the vocabulary reaches its target size or no pair is left. Unlike BPE,
// which merges the most frequent pair, this prefers pairs whose parts rarely
// occur apart.
//
// Ties are broken by ascending left symbol, then ascending right symbol, so a
// given table and Config always produce the same vocabulary.
package trainer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/example/go-wordpiece/internal/vocab"
)

var (
	// ErrEmptyCorpus is returned when the word-frequency table has no word
	// with a positive count.
	ErrEmptyCorpus = errors.New("corpus has no words")

	// ErrInvalidConfig is returned for configurations rejected before training.
	ErrInvalidConfig = errors.New("invalid trainer configuration")
)

// Config controls a training run.
type Config struct {
	// VocabSize caps the final vocabulary, special tokens included.
	VocabSize int
	// MinFrequency drops pairs whose frequency is below it.
	MinFrequency int
	// ContinuationPrefix marks non-initial symbols, "##" in BERT.
	ContinuationPrefix string
	// SpecialTokens are reserved at the start of the vocabulary.
	SpecialTokens []string
	// Workers shards pair counting across goroutines. Values below 2 count
	// serially. Results do not depend on it.
	Workers int
	// Logger receives progress records. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns BERT-like defaults without special tokens.
func DefaultConfig() Config {
	return Config{
		VocabSize:          30000,
		MinFrequency:       2,
		ContinuationPrefix: vocab.DefaultContinuationPrefix,
		Workers:            1,
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	}
	if c.MinFrequency < 0 {
		return fmt.Errorf("%w: min frequency must not be negative, got %d", ErrInvalidConfig, c.MinFrequency)
	}
	if c.ContinuationPrefix == "" {
		return fmt.Errorf("%w: continuation prefix must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ContinuationPrefix) != c.ContinuationPrefix {
		return fmt.Errorf("%w: continuation prefix %q contains whitespace", ErrInvalidConfig, c.ContinuationPrefix)
	}
	if len(c.SpecialTokens) >= c.VocabSize {
		return fmt.Errorf("%w: %d special tokens leave no room in a vocabulary of %d",
			ErrInvalidConfig, len(c.SpecialTokens), c.VocabSize)
	}
	seen := make(map[string]struct{}, len(c.SpecialTokens))
	for _, tok := range c.SpecialTokens {
		if tok == "" {
			return fmt.Errorf("%w: empty special token", ErrInvalidConfig)
		}
		if _, dup := seen[tok]; dup {
			return fmt.Errorf("%w: duplicate special token %q", ErrInvalidConfig, tok)
		}
		seen[tok] = struct{}{}
	}
	return nil
}

// Merge records one merge step.
type Merge struct {
	Left      string
	Right     string
	Merged    string
	Score     float64
	Frequency int
}

// Result is the outcome of a training run.
type Result struct {
	Vocabulary *vocab.Vocabulary
	// Merges lists the performed merges in order.
	Merges []Merge
	// Alphabet is the number of distinct seed symbols found in the corpus.
	Alphabet int
	// Truncated is set when the seed symbols alone exceeded the cap and the
	// least frequent ones were dropped. No merges happen in that case.
	Truncated bool
	// Exhausted is set when training stopped because no pair met
	// MinFrequency before the vocabulary was full.
	Exhausted bool
}

// TrainVocabulary trains with default settings and returns only the vocabulary.
func TrainVocabulary(freqs map[string]int, vocabSize, minFrequency int) (*vocab.Vocabulary, error) {
	cfg := DefaultConfig()
	cfg.VocabSize = vocabSize
	cfg.MinFrequency = minFrequency

	res, err := Train(freqs, cfg)
	if err != nil {
		return nil, err
	}
	return res.Vocabulary, nil
}

// Train runs WordPiece training on freqs.
func Train(freqs map[string]int, cfg Config) (*Result, error) {
	s, err := NewSession(freqs, cfg)
	if err != nil {
		return nil, err
	}

	s.log.Info("training started",
		slog.Int("words", len(s.words)),
		slog.Int("alphabet", s.alphabet),
		slog.Int("vocab_size", cfg.VocabSize),
		slog.Int("min_frequency", cfg.MinFrequency),
	)

	exhausted := false
	for !s.Done() {
		if _, ok := s.Step(); !ok {
			exhausted = true
			break
		}
	}

	res := &Result{
		Vocabulary: s.vocab,
		Merges:     s.Merges(),
		Alphabet:   s.alphabet,
		Truncated:  s.truncated,
		Exhausted:  exhausted,
	}

	s.log.Info("training finished",
		slog.Int("vocab", res.Vocabulary.Len()),
		slog.Int("merges", len(res.Merges)),
		slog.Bool("truncated", res.Truncated),
		slog.Bool("exhausted", res.Exhausted),
	)

	return res, nil
}

type word struct {
	text    string
	count   int
	symbols []string
}

// Session is the mutable state of one training run: the symbol sequence of
// every distinct word, the growing vocabulary and the merges performed.
type Session struct {
	cfg       Config
	prefix    string
	words     []word
	vocab     *vocab.Vocabulary
	merges    []Merge
	alphabet  int
	truncated bool
	log       *slog.Logger
}

// NewSession validates cfg, splits every word into seed symbols and seeds
// the vocabulary.
func NewSession(freqs map[string]int, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		prefix: cfg.ContinuationPrefix,
		log:    log,
	}

	texts := make([]string, 0, len(freqs))
	var negative []string
	for w, n := range freqs {
		switch {
		case n < 0:
			negative = append(negative, w)
		case n > 0 && w != "":
			texts = append(texts, w)
		}
	}
	if len(negative) > 0 {
		sort.Strings(negative)
		return nil, fmt.Errorf("%w: word %q has negative count %d", ErrInvalidConfig, negative[0], freqs[negative[0]])
	}
	if len(texts) == 0 {
		return nil, ErrEmptyCorpus
	}
	sort.Strings(texts)

	occurrences := make(map[string]int)
	s.words = make([]word, len(texts))
	for i, w := range texts {
		syms := s.seed(w)
		for _, sym := range syms {
			occurrences[sym] += freqs[w]
		}
		s.words[i] = word{text: w, count: freqs[w], symbols: syms}
	}

	alphabet := make([]string, 0, len(occurrences))
	for sym := range occurrences {
		alphabet = append(alphabet, sym)
	}
	sort.Strings(alphabet)
	s.alphabet = len(alphabet)

	budget := cfg.VocabSize - len(cfg.SpecialTokens)
	if len(alphabet) > budget {
		sort.SliceStable(alphabet, func(i, j int) bool {
			return occurrences[alphabet[i]] > occurrences[alphabet[j]]
		})
		alphabet = alphabet[:budget]
		sort.Strings(alphabet)
		s.truncated = true
		log.Warn("corpus alphabet exceeds vocabulary size; keeping most frequent symbols",
			slog.Int("alphabet", s.alphabet),
			slog.Int("kept", budget),
		)
	}

	s.vocab = vocab.New(cfg.VocabSize)
	for _, tok := range cfg.SpecialTokens {
		s.vocab.Add(tok)
	}
	for _, sym := range alphabet {
		s.vocab.Add(sym)
	}

	return s, nil
}

// seed splits w into runes, prefixing every rune after the first.
func (s *Session) seed(w string) []string {
	syms := make([]string, 0, utf8.RuneCountInString(w))
	for i, r := range w {
		if i == 0 {
			syms = append(syms, string(r))
			continue
		}
		syms = append(syms, s.prefix+string(r))
	}
	return syms
}

// Done reports whether the vocabulary has reached its cap, or the seed
// alphabet had to be truncated.
func (s *Session) Done() bool {
	return s.truncated || s.vocab.Len() >= s.cfg.VocabSize
}

// Vocabulary returns the vocabulary built so far. It is shared with the
// session and grows with every Step.
func (s *Session) Vocabulary() *vocab.Vocabulary { return s.vocab }

// Merges returns a copy of the merges performed so far.
func (s *Session) Merges() []Merge { return append([]Merge(nil), s.merges...) }

// Segmentation returns the current symbols of a corpus word.
func (s *Session) Segmentation(w string) ([]string, bool) {
	i := sort.Search(len(s.words), func(i int) bool { return s.words[i].text >= w })
	if i == len(s.words) || s.words[i].text != w {
		return nil, false
	}
	return append([]string(nil), s.words[i].symbols...), true
}

// Step performs one iteration: count, score, select and apply the best pair.
// It reports false, leaving the session untouched, when no pair reaches
// MinFrequency. Step does not check the vocabulary cap; see Done.
func (s *Session) Step() (Merge, bool) {
	counts := s.Counts()

	best, ok := selectBest(counts, s.cfg.MinFrequency)
	if !ok {
		return Merge{}, false
	}

	best.Merged = best.Left + strings.TrimPrefix(best.Right, s.prefix)
	for i := range s.words {
		s.words[i].symbols = applyMerge(s.words[i].symbols, best.Left, best.Right, best.Merged)
	}

	added := s.vocab.Add(best.Merged)
	s.merges = append(s.merges, best)

	s.log.Debug("merge",
		slog.Int("step", len(s.merges)),
		slog.String("left", best.Left),
		slog.String("right", best.Right),
		slog.String("merged", best.Merged),
		slog.Float64("score", best.Score),
		slog.Int("frequency", best.Frequency),
		slog.Bool("new_symbol", added),
	)

	return best, true
}

// Score is the WordPiece likelihood heuristic for a pair.
func Score(pairFreq, leftFreq, rightFreq int) float64 {
	if leftFreq == 0 || rightFreq == 0 {
		return 0
	}
	return float64(pairFreq) / (float64(leftFreq) * float64(rightFreq))
}

// selectBest returns the eligible pair with the highest score. Equal scores
// fall back to byte order of left, then right. Float division of exact
// integers is correctly rounded, so equal ratios compare equal.
func selectBest(c Counts, minFrequency int) (Merge, bool) {
	var (
		best  Merge
		found bool
	)
	for p, freq := range c.Pairs {
		if freq < minFrequency {
			continue
		}
		score := Score(freq, c.Symbols[p.Left], c.Symbols[p.Right])
		if !found || better(score, p, best) {
			best = Merge{Left: p.Left, Right: p.Right, Score: score, Frequency: freq}
			found = true
		}
	}
	return best, found
}

func better(score float64, p Pair, cur Merge) bool {
	if score != cur.Score {
		return score > cur.Score
	}
	if p.Left != cur.Left {
		return p.Left < cur.Left
	}
	return p.Right < cur.Right
}

// applyMerge replaces every leftmost non-overlapping occurrence of
// (left, right) in symbols with merged. It reuses the backing array.
func applyMerge(symbols []string, left, right, merged string) []string {
	out := symbols[:0]
	for i := 0; i < len(symbols); i++ {
		if i+1 < len(symbols) && symbols[i] == left && symbols[i+1] == right {
			out = append(out, merged)
			i++
			continue
		}
		out = append(out, symbols[i])
	}
	return out
}
