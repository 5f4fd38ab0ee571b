// Package tokenizer provides the character-level vocabulary used by the
// model. Each distinct rune maps to one token id, with a single reserved
// begin-of-sequence token at id 0.
package tokenizer

// Tokenizer defines the minimal interface used by the CLI and the API server.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
	BOS() int
}
