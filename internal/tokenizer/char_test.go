package tokenizer

import (
	"path/filepath"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := NewCharTokenizer("hello world")
	ids, err := tok.Encode("hold")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hold" {
		t.Fatalf("round trip = %q, want %q", got, "hold")
	}
}

func TestVocabOrderDeterministic(t *testing.T) {
	// Distinct runes of "cab" sorted are a,b,c, so ids follow that order
	// regardless of corpus order.
	tok := NewCharTokenizer("cab")
	ids, err := tok.Encode("abc")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids = %v, want [1 2 3]", ids)
		}
	}
	if tok.VocabSize() != 4 {
		t.Fatalf("vocab size = %d, want 4 (3 runes + BOS)", tok.VocabSize())
	}
}

func TestBOSIsZeroAndDecodesEmpty(t *testing.T) {
	tok := NewCharTokenizer("ab")
	if tok.BOS() != 0 {
		t.Fatalf("BOS = %d, want 0", tok.BOS())
	}
	got, err := tok.Decode([]int{tok.BOS(), 1, 2})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "ab" {
		t.Fatalf("decode with BOS = %q, want %q", got, "ab")
	}
}

func TestEncodeUnknownRune(t *testing.T) {
	tok := NewCharTokenizer("abc")
	if _, err := tok.Encode("abd"); err == nil {
		t.Fatal("expected error for rune outside vocabulary")
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	tok := NewCharTokenizer("abc")
	if _, err := tok.Decode([]int{99}); err == nil {
		t.Fatal("expected error for out-of-range token id")
	}
	if _, err := tok.Decode([]int{-1}); err == nil {
		t.Fatal("expected error for negative token id")
	}
}

func TestSaveLoad(t *testing.T) {
	tok := NewCharTokenizer("héllo wörld")
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := tok.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadCharTokenizer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.VocabSize() != tok.VocabSize() {
		t.Fatalf("vocab size after reload = %d, want %d", loaded.VocabSize(), tok.VocabSize())
	}
	ids, err := tok.Encode("höw")
	if err == nil {
		// "w" present, "ö" present, "h" present: reload must agree exactly.
		ids2, err := loaded.Encode("höw")
		if err != nil {
			t.Fatalf("reloaded encode: %v", err)
		}
		for i := range ids {
			if ids[i] != ids2[i] {
				t.Fatalf("reloaded ids %v differ from original %v", ids2, ids)
			}
		}
	}
}
