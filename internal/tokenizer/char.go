package tokenizer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// bosID is always token 0 so a prompt can be seeded without knowing the
// vocabulary contents.
const bosID = 0

// CharTokenizer maps every distinct rune of its training corpus to one token
// id. Ids 1..n follow the sorted rune order so the same corpus always yields
// the same vocabulary.
type CharTokenizer struct {
	runeToID map[rune]int
	idToRune []rune // index 0 unused, reserved for BOS
}

// NewCharTokenizer builds a vocabulary from the distinct runes of corpus.
func NewCharTokenizer(corpus string) *CharTokenizer {
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}
	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	t := &CharTokenizer{
		runeToID: make(map[rune]int, len(runes)),
		idToRune: make([]rune, len(runes)+1),
	}
	for i, r := range runes {
		t.runeToID[r] = i + 1
		t.idToRune[i+1] = r
	}
	return t
}

// VocabSize returns the number of token ids, BOS included.
func (t *CharTokenizer) VocabSize() int {
	return len(t.idToRune)
}

// BOS returns the begin-of-sequence token id.
func (t *CharTokenizer) BOS() int {
	return bosID
}

// Encode maps text to token ids. A rune outside the vocabulary is an error
// rather than a silent substitution.
func (t *CharTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := t.runeToID[r]
		if !ok {
			return nil, fmt.Errorf("tokenizer: rune %q not in vocabulary", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode maps token ids back to text. BOS decodes to the empty string.
func (t *CharTokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id == bosID {
			continue
		}
		if id < 0 || id >= len(t.idToRune) {
			return "", fmt.Errorf("tokenizer: token id %d out of range [0,%d)", id, len(t.idToRune))
		}
		sb.WriteRune(t.idToRune[id])
	}
	return sb.String(), nil
}

// vocabFile is the on-disk vocabulary format.
type vocabFile struct {
	Runes string `json:"runes"`
}

// Save writes the vocabulary to path.
func (t *CharTokenizer) Save(path string) error {
	raw, err := json.Marshal(vocabFile{Runes: string(t.idToRune[1:])})
	if err != nil {
		return fmt.Errorf("tokenizer: encode vocabulary: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadCharTokenizer reads a vocabulary saved by Save.
func LoadCharTokenizer(path string) (*CharTokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vf vocabFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return nil, fmt.Errorf("tokenizer: parse vocabulary %s: %w", path, err)
	}
	return NewCharTokenizer(vf.Runes), nil
}
