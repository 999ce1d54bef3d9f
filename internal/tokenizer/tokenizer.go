// Package tokenizer segments text with a trained WordPiece vocabulary.
// Words are matched greedily, longest prefix first; a word that cannot be
// covered by vocabulary symbols becomes a single unknown token.
package tokenizer

// Tokenizer is implemented by WordPiece and its cached variant.
type Tokenizer interface {
	// Tokenize splits text into words and segments each word into symbols.
	Tokenize(text string) []string

	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(ids []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// UnkToken returns the unknown token ID, or -1 when the vocabulary does
	// not contain it.
	UnkToken() int32
}

// WordSegmenter segments a single pre-split word.
type WordSegmenter interface {
	TokenizeWord(word string) []string
}
