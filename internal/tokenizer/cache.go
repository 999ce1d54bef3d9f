package tokenizer

import (
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cached memoizes per-word segmentation in a bounded TTL cache. Results are
// identical to the wrapped WordPiece.
type Cached struct {
	wp    *WordPiece
	cache *ttlcache.Cache[string, []string]
}

var _ Tokenizer = (*Cached)(nil)

// NewCached wraps wp. A zero capacity leaves the cache unbounded; a zero ttl
// keeps entries until evicted by capacity.
func NewCached(wp *WordPiece, capacity uint64, ttl time.Duration) *Cached {
	opts := []ttlcache.Option[string, []string]{
		ttlcache.WithDisableTouchOnHit[string, []string](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []string](capacity))
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, []string](ttl))
	}

	return &Cached{
		wp:    wp,
		cache: ttlcache.New(opts...),
	}
}

// Start runs the expiration loop until Stop is called. It blocks.
func (c *Cached) Start() { c.cache.Start() }

// Stop halts the expiration loop.
func (c *Cached) Stop() { c.cache.Stop() }

// TokenizeWord returns the cached segmentation of word, computing it on a miss.
func (c *Cached) TokenizeWord(word string) []string {
	if item := c.cache.Get(word); item != nil {
		return slices.Clone(item.Value())
	}
	tokens := c.wp.TokenizeWord(word)
	c.cache.Set(word, tokens, ttlcache.DefaultTTL)
	return slices.Clone(tokens)
}

// Tokenize splits text with the wrapped policy and segments through the cache.
func (c *Cached) Tokenize(input string) []string {
	return c.wp.tokenize(input, c)
}

// Encode tokenizes through the cache and maps tokens to ids.
func (c *Cached) Encode(input string) ([]int32, error) {
	return c.wp.IDs(c.Tokenize(input))
}

// IDs maps tokens to vocabulary ids.
func (c *Cached) IDs(tokens []string) ([]int32, error) { return c.wp.IDs(tokens) }

// Decode delegates to the wrapped WordPiece.
func (c *Cached) Decode(ids []int32) (string, error) { return c.wp.Decode(ids) }

// VocabSize returns the total vocabulary size.
func (c *Cached) VocabSize() int { return c.wp.VocabSize() }

// UnkToken returns the unknown token ID, or -1 when absent.
func (c *Cached) UnkToken() int32 { return c.wp.UnkToken() }

// WordPiece returns the wrapped segmenter.
func (c *Cached) WordPiece() *WordPiece { return c.wp }

// Len returns the number of cached words.
func (c *Cached) Len() int { return c.cache.Len() }

// Stats returns cache hit, miss and eviction counters.
func (c *Cached) Stats() ttlcache.Metrics { return c.cache.Metrics() }
