package text

import "unicode"

// Splitter breaks normalized text into words. Whitespace separates words;
// punctuation is either dropped or isolated as a one-rune word so that
// "end." and "end" share the same vocabulary entry.
type Splitter struct {
	policy Policy
}

// NewSplitter returns a Splitter applying p.
func NewSplitter(p Policy) *Splitter {
	return &Splitter{policy: p}
}

// Policy returns the normalization policy applied by the splitter.
func (s *Splitter) Policy() Policy { return s.policy }

// Split normalizes input and returns its words in order.
func (s *Splitter) Split(input string) []string {
	normalized := s.policy.Apply(input)

	words := make([]string, 0, len(normalized)/4+1)
	start := -1

	flush := func(end int) {
		if start >= 0 {
			words = append(words, normalized[start:end])
			start = -1
		}
	}

	for i, r := range normalized {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case isPunct(r):
			flush(i)
			if !s.policy.StripPunctuation {
				words = append(words, string(r))
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(normalized))

	return words
}

// Words is shorthand for NewSplitter(p).Split(input).
func Words(input string, p Policy) []string {
	return NewSplitter(p).Split(input)
}

// isPunct reports unicode punctuation plus the ASCII symbol ranges that BERT
// style pre-tokenizers also treat as punctuation ($, +, <, =, >, ^, `, |, ~).
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
