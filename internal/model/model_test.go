package model

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/shunzh/llm.ipynb/internal/logger"
)

func testConfig() Config {
	return Config{
		HiddenSize:      32,
		FFHiddenSize:    64,
		NumHiddenLayers: 2,
		VocabSize:       50,
		MaxSeqLen:       16,
	}
}

func newTestModel(t *testing.T, cfg Config, seed int64) *SequenceModel {
	t.Helper()
	m, err := NewSequenceModel(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func TestForwardShape(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 1)

	logits, err := m.Forward([][]int{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if logits.B != 2 || logits.T != 3 || logits.H != cfg.VocabSize {
		t.Fatalf("logits shape = (%d,%d,%d), want (2,3,%d)", logits.B, logits.T, logits.H, cfg.VocabSize)
	}
}

func TestCachedLogitsMatchStateless(t *testing.T) {
	// Full-width model: hidden 512, two layers, vocab 10000, one sequence of
	// three tokens fed token by token through the cache.
	if testing.Short() {
		t.Skip("large model in short mode")
	}
	cfg := Config{
		HiddenSize:      512,
		FFHiddenSize:    2048,
		NumHiddenLayers: 2,
		VocabSize:       10000,
		MaxSeqLen:       16,
	}
	m := newTestModel(t, cfg, 7)
	tokens := []int{11, 222, 3333}

	full, err := m.Forward([][]int{tokens})
	if err != nil {
		t.Fatalf("stateless forward: %v", err)
	}

	cache := m.NewCache()
	for i, tok := range tokens {
		out, err := m.ForwardCached([][]int{{tok}}, cache)
		if err != nil {
			t.Fatalf("cached forward at step %d: %v", i, err)
		}
		if out.T != 1 {
			t.Fatalf("cached forward returned %d positions, want 1", out.T)
		}
		compareSlices(t, out.Vec(0, 0), full.Vec(0, i), 1e-5)

		n, err := cache.Length()
		if err != nil {
			t.Fatalf("cache length at step %d: %v", i, err)
		}
		if n != i+1 {
			t.Fatalf("cache length = %d after step %d, want %d", n, i, i+1)
		}
	}
}

func TestCachedChunkedPrefill(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 2)
	tokens := []int{3, 1, 4, 1, 5, 9}

	full, err := m.Forward([][]int{tokens})
	if err != nil {
		t.Fatalf("stateless forward: %v", err)
	}

	// Prefill four tokens at once, then two single steps.
	cache := m.NewCache()
	out, err := m.ForwardCached([][]int{tokens[:4]}, cache)
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	for s := 0; s < 4; s++ {
		compareSlices(t, out.Vec(0, s), full.Vec(0, s), 1e-5)
	}
	for i := 4; i < len(tokens); i++ {
		out, err = m.ForwardCached([][]int{{tokens[i]}}, cache)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		compareSlices(t, out.Vec(0, 0), full.Vec(0, i), 1e-5)
	}
}

func TestCacheResetReuse(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 3)
	cache := m.NewCache()

	if _, err := m.ForwardCached([][]int{{1, 2, 3}}, cache); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	cache.Reset()
	if n, err := cache.Length(); err != nil || n != 0 {
		t.Fatalf("after reset: length=%d err=%v, want 0,nil", n, err)
	}

	want, err := m.Forward([][]int{{7, 8}})
	if err != nil {
		t.Fatalf("stateless forward: %v", err)
	}
	got, err := m.ForwardCached([][]int{{7, 8}}, cache)
	if err != nil {
		t.Fatalf("reuse after reset: %v", err)
	}
	compareSlices(t, got.Vec(0, 1), want.Vec(0, 1), 1e-5)
}

func TestSequenceOverflowIsError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSeqLen = 4
	m := newTestModel(t, cfg, 4)

	if _, err := m.Forward([][]int{{1, 2, 3, 4, 5}}); err == nil {
		t.Fatal("expected error for sequence longer than max_seq_len")
	}

	cache := m.NewCache()
	if _, err := m.ForwardCached([][]int{{1, 2, 3, 4}}, cache); err != nil {
		t.Fatalf("fill to capacity: %v", err)
	}
	if _, err := m.ForwardCached([][]int{{1}}, cache); err == nil {
		t.Fatal("expected error when cache extension exceeds max_seq_len")
	}
	// The failed call must not have advanced the cache.
	if n, _ := cache.Length(); n != 4 {
		t.Fatalf("cache length = %d after failed call, want 4", n)
	}
}

func TestForwardInputValidation(t *testing.T) {
	m := newTestModel(t, testConfig(), 5)

	if _, err := m.Forward([][]int{}); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if _, err := m.Forward([][]int{{}}); err == nil {
		t.Fatal("expected error for empty sequence")
	}
	if _, err := m.Forward([][]int{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged batch")
	}
	if _, err := m.Forward([][]int{{-1}}); err == nil {
		t.Fatal("expected error for negative token id")
	}
	if _, err := m.Forward([][]int{{testConfig().VocabSize}}); err == nil {
		t.Fatal("expected error for out-of-range token id")
	}
	if _, err := m.ForwardCached([][]int{{1}}, nil); err == nil {
		t.Fatal("expected error for nil cache")
	}
	if _, err := m.ForwardCached([][]int{{1}}, NewCache(1)); err == nil {
		t.Fatal("expected error for cache layer count mismatch")
	}
}

func TestDeterministicInit(t *testing.T) {
	cfg := testConfig()
	a := newTestModel(t, cfg, 42)
	b := newTestModel(t, cfg, 42)
	compareSlices(t, a.TokEmb.Data[:64], b.TokEmb.Data[:64], 0)
	compareSlices(t, a.Layers[1].Attn.QKV.Data[:64], b.Layers[1].Attn.QKV.Data[:64], 0)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 6)
	path := filepath.Join(t.TempDir(), "model.json")

	if err := SaveCheckpoint(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	ck, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded, err := FromCheckpoint(ck)
	if err != nil {
		t.Fatalf("from checkpoint: %v", err)
	}

	tokens := [][]int{{1, 2, 3}}
	want, err := m.Forward(tokens)
	if err != nil {
		t.Fatalf("original forward: %v", err)
	}
	got, err := loaded.Forward(tokens)
	if err != nil {
		t.Fatalf("loaded forward: %v", err)
	}
	compareSlices(t, got.Data, want.Data, 0)
}

func TestLoadMissingCheckpointFallsBack(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "missing.json")

	m, err := Load(path, cfg, rand.New(rand.NewSource(9)), logger.Default())
	if err != nil {
		t.Fatalf("load with missing file: %v", err)
	}
	fresh := newTestModel(t, cfg, 9)
	compareSlices(t, m.TokEmb.Data[:32], fresh.TokEmb.Data[:32], 0)
}

func TestLoadMalformedCheckpointFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, testConfig(), rand.New(rand.NewSource(1)), logger.Default()); err == nil {
		t.Fatal("expected error for malformed checkpoint")
	}
}

func TestFromCheckpointShapeValidation(t *testing.T) {
	m := newTestModel(t, testConfig(), 8)
	path := filepath.Join(t.TempDir(), "model.json")
	if err := SaveCheckpoint(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	ck, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	p := ck.Params["tok_emb.weight"]
	p.Shape = []int{1, 1}
	p.Data = p.Data[:1]
	ck.Params["tok_emb.weight"] = p
	if _, err := FromCheckpoint(ck); err == nil {
		t.Fatal("expected error for wrong parameter shape")
	}

	delete(ck.Params, "tok_emb.weight")
	if _, err := FromCheckpoint(ck); err == nil {
		t.Fatal("expected error for missing parameter")
	}
}
