package model

import (
	"math/rand"
	"testing"

	"github.com/shunzh/llm.ipynb/internal/tensor"
)

func randTensor(b, t, h int, rng *rand.Rand) *tensor.Tensor {
	x := tensor.NewTensor(b, t, h)
	for i := range x.Data {
		x.Data[i] = (rng.Float32() - 0.5) * 2
	}
	return x
}

func sliceT(x *tensor.Tensor, lo, hi int) *tensor.Tensor {
	out := tensor.NewTensor(x.B, hi-lo, x.H)
	for b := 0; b < x.B; b++ {
		for t := lo; t < hi; t++ {
			copy(out.Vec(b, t-lo), x.Vec(b, t))
		}
	}
	return out
}

func TestAttentionIncrementalMatchesStateless(t *testing.T) {
	const (
		hidden = 32
		batch  = 2
		seqLen = 7
	)
	rng := rand.New(rand.NewSource(1))
	attn := NewCausalAttention(hidden, rng)
	x := randTensor(batch, seqLen, hidden, rng)

	full, fullKV, err := attn.Forward(x, Stateless{})
	if err != nil {
		t.Fatalf("stateless forward: %v", err)
	}
	if fullKV.Len() != seqLen {
		t.Fatalf("stateless KV holds %d positions, want %d", fullKV.Len(), seqLen)
	}

	// Feed the same sequence in several different chunkings; every chunking
	// must reproduce the stateless output position for position.
	for _, chunks := range [][]int{
		{seqLen},
		{1, 1, 1, 1, 1, 1, 1},
		{3, 4},
		{1, 2, 4},
		{6, 1},
	} {
		var kv *KV
		pos := 0
		for _, n := range chunks {
			part := sliceT(x, pos, pos+n)
			out, newKV, err := attn.Forward(part, Incremental{Past: kv})
			if err != nil {
				t.Fatalf("chunks %v: forward at pos %d: %v", chunks, pos, err)
			}
			for b := 0; b < batch; b++ {
				for s := 0; s < n; s++ {
					compareSlices(t, out.Vec(b, s), full.Vec(b, pos+s), 1e-5)
				}
			}
			kv = newKV
			pos += n
		}
		if kv.Len() != seqLen {
			t.Fatalf("chunks %v: KV holds %d positions, want %d", chunks, kv.Len(), seqLen)
		}
		compareSlices(t, kv.K.Data, fullKV.K.Data, 1e-5)
		compareSlices(t, kv.V.Data, fullKV.V.Data, 1e-5)
	}
}

func TestAttentionCausality(t *testing.T) {
	const (
		hidden = 16
		seqLen = 5
	)
	rng := rand.New(rand.NewSource(2))
	attn := NewCausalAttention(hidden, rng)
	x := randTensor(1, seqLen, hidden, rng)

	base, _, err := attn.Forward(x, Stateless{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	// Perturbing the last position must leave all earlier outputs untouched.
	mutated := x.Clone()
	for i, v := range mutated.Vec(0, seqLen-1) {
		mutated.Vec(0, seqLen-1)[i] = v + 10
	}
	out, _, err := attn.Forward(mutated, Stateless{})
	if err != nil {
		t.Fatalf("forward mutated: %v", err)
	}
	for s := 0; s < seqLen-1; s++ {
		compareSlices(t, out.Vec(0, s), base.Vec(0, s), 0)
	}
}

func TestAttentionSinglePosition(t *testing.T) {
	const hidden = 8
	rng := rand.New(rand.NewSource(3))
	attn := NewCausalAttention(hidden, rng)
	x := randTensor(1, 1, hidden, rng)

	// With one position and no past, attention weights collapse to 1 and the
	// output is just the projected value vector.
	out, kv, err := attn.Forward(x, Stateless{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if kv.Len() != 1 {
		t.Fatalf("KV holds %d positions, want 1", kv.Len())
	}

	want := make([]float32, hidden)
	tensor.MatVec(want, &attn.Proj, kv.V.Vec(0, 0))
	tensor.Add(want, attn.ProjBias)
	compareSlices(t, out.Vec(0, 0), want, 1e-6)
}

func TestAttentionHiddenMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	attn := NewCausalAttention(16, rng)
	x := randTensor(1, 2, 8, rng)

	if _, _, err := attn.Forward(x, Stateless{}); err == nil {
		t.Fatal("expected error for hidden size mismatch")
	}
}

func TestAttentionCacheBatchMismatch(t *testing.T) {
	const hidden = 8
	rng := rand.New(rand.NewSource(5))
	attn := NewCausalAttention(hidden, rng)

	_, kv, err := attn.Forward(randTensor(2, 3, hidden, rng), Stateless{})
	if err != nil {
		t.Fatalf("prime forward: %v", err)
	}
	_, _, err = attn.Forward(randTensor(1, 1, hidden, rng), Incremental{Past: kv})
	if err == nil {
		t.Fatal("expected error for cache batch mismatch")
	}
}

func TestAttentionCacheLengthMismatch(t *testing.T) {
	const hidden = 8
	rng := rand.New(rand.NewSource(6))
	attn := NewCausalAttention(hidden, rng)

	bad := &KV{
		K: randTensor(1, 3, hidden, rng),
		V: randTensor(1, 2, hidden, rng),
	}
	_, _, err := attn.Forward(randTensor(1, 1, hidden, rng), Incremental{Past: bad})
	if err == nil {
		t.Fatal("expected error for key/value length mismatch")
	}
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		g := got[i]
		w := want[i]
		if g < w-tol || g > w+tol {
			t.Fatalf("mismatch at %d: got %v want %v±%v", i, g, w, tol)
		}
	}
}
