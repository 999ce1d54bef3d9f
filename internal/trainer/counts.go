package trainer

import (
	"golang.org/x/sync/errgroup"
)

// Pair is an adjacent symbol pair inside a word.
type Pair struct {
	Left  string
	Right string
}

// Counts holds the frequencies used for scoring one iteration. Every word
// contributes its count once per distinct adjacent pair and once per distinct
// symbol it contains.
type Counts struct {
	Pairs   map[Pair]int
	Symbols map[string]int
}

func newCounts() Counts {
	return Counts{
		Pairs:   make(map[Pair]int),
		Symbols: make(map[string]int),
	}
}

// Counts tallies pair and symbol frequencies over the current segmentation.
func (s *Session) Counts() Counts {
	workers := s.cfg.Workers
	if workers < 2 || len(s.words) < 2*workers {
		return countWords(s.words)
	}

	shardSize := (len(s.words) + workers - 1) / workers
	shards := make([]Counts, 0, workers)
	for start := 0; start < len(s.words); start += shardSize {
		shards = append(shards, Counts{})
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range shards {
		start := i * shardSize
		end := min(start+shardSize, len(s.words))
		g.Go(func() error {
			shards[i] = countWords(s.words[start:end])
			return nil
		})
	}
	_ = g.Wait() // shard counters never fail

	total := shards[0]
	for _, sh := range shards[1:] {
		for p, n := range sh.Pairs {
			total.Pairs[p] += n
		}
		for sym, n := range sh.Symbols {
			total.Symbols[sym] += n
		}
	}
	return total
}

func countWords(words []word) Counts {
	c := newCounts()
	seenPairs := make(map[Pair]struct{})
	seenSymbols := make(map[string]struct{})

	for _, w := range words {
		clear(seenPairs)
		clear(seenSymbols)

		for i, sym := range w.symbols {
			if _, ok := seenSymbols[sym]; !ok {
				seenSymbols[sym] = struct{}{}
				c.Symbols[sym] += w.count
			}
			if i == 0 {
				continue
			}
			p := Pair{Left: w.symbols[i-1], Right: sym}
			if _, ok := seenPairs[p]; !ok {
				seenPairs[p] = struct{}{}
				c.Pairs[p] += w.count
			}
		}
	}
	return c
}
