package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shunzh/llm.ipynb/internal/tensor"
)

// Mode selects how attention treats the positions it is given.
//
// Stateless means the input covers the whole sequence from position zero.
// Incremental means the input covers only newly appended positions and Past
// holds the key/value state for everything before them (nil for an empty
// prefix). Dispatch is by type switch; there is no optional-argument variant
// of Forward.
type Mode interface {
	isMode()
}

// Stateless computes attention over the full input with no prior state.
type Stateless struct{}

// Incremental computes attention for new positions only, attending back into
// the prior key/value state.
type Incremental struct {
	Past *KV
}

func (Stateless) isMode()   {}
func (Incremental) isMode() {}

// KV is the cached key/value state of one attention layer, each of shape
// (batch, total_length, hidden_size).
type KV struct {
	K *tensor.Tensor
	V *tensor.Tensor
}

// Len returns the number of cached positions.
func (kv *KV) Len() int {
	if kv == nil {
		return 0
	}
	return kv.K.T
}

// CausalAttention is single-head self-attention with a causal constraint:
// position i attends only to positions <= i.
//
// The input projection is a single dense transform to 3*hidden_size whose
// output is split into equal query, key and value blocks in that fixed
// order. The q|k|v row ordering of the fused weight is part of the parameter
// compatibility contract.
type CausalAttention struct {
	QKV      tensor.Mat // (3*hidden_size, hidden_size), rows ordered q|k|v
	QKVBias  []float32
	Proj     tensor.Mat // (hidden_size, hidden_size)
	ProjBias []float32

	hidden int
}

// NewCausalAttention returns a randomly initialised attention layer using rng.
func NewCausalAttention(hidden int, rng *rand.Rand) *CausalAttention {
	a := &CausalAttention{
		QKV:      tensor.NewMat(3*hidden, hidden),
		QKVBias:  make([]float32, 3*hidden),
		Proj:     tensor.NewMat(hidden, hidden),
		ProjBias: make([]float32, hidden),
		hidden:   hidden,
	}
	tensor.FillRand(&a.QKV, rng)
	tensor.FillRand(&a.Proj, rng)
	return a
}

// Forward computes attention over x according to mode.
//
// In Stateless mode x is the whole sequence. In Incremental mode x holds only
// the newest positions; the returned KV is the concatenation of the prior
// state and the keys/values computed here, ready to be threaded into the next
// step. Both modes return the key/value state covering every position seen,
// and both produce identical outputs for identical underlying sequences.
func (a *CausalAttention) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, *KV, error) {
	if x.H != a.hidden {
		return nil, nil, fmt.Errorf("attention: input hidden size %d does not match configured %d", x.H, a.hidden)
	}

	var past *KV
	switch m := mode.(type) {
	case Stateless:
	case Incremental:
		past = m.Past
		if past != nil {
			if past.K.B != x.B || past.V.B != x.B {
				return nil, nil, fmt.Errorf("attention: cache batch %d does not match input batch %d", past.K.B, x.B)
			}
			if past.K.H != a.hidden || past.V.H != a.hidden {
				return nil, nil, fmt.Errorf("attention: cache hidden size %d does not match configured %d", past.K.H, a.hidden)
			}
			if past.K.T != past.V.T {
				return nil, nil, fmt.Errorf("attention: cache key length %d does not match value length %d", past.K.T, past.V.T)
			}
		}
	default:
		return nil, nil, fmt.Errorf("attention: unknown mode %T", mode)
	}

	h := a.hidden
	newK := tensor.NewTensor(x.B, x.T, h)
	newV := tensor.NewTensor(x.B, x.T, h)
	q := tensor.NewTensor(x.B, x.T, h)

	qkvBuf := make([]float32, 3*h)
	for b := 0; b < x.B; b++ {
		for t := 0; t < x.T; t++ {
			tensor.MatVec(qkvBuf, &a.QKV, x.Vec(b, t))
			tensor.Add(qkvBuf, a.QKVBias)
			copy(q.Vec(b, t), qkvBuf[:h])
			copy(newK.Vec(b, t), qkvBuf[h:2*h])
			copy(newV.Vec(b, t), qkvBuf[2*h:])
		}
	}

	k, v := newK, newV
	if past != nil {
		k = tensor.ConcatT(past.K, newK)
		v = tensor.ConcatT(past.V, newV)
	}
	prior := k.T - x.T

	// Each new query at absolute position prior+s attends to cached positions
	// and to new positions <= s: the bottom x.T rows of the full
	// lower-triangular mask.
	scale := float32(1.0 / math.Sqrt(float64(h)))
	attnOut := tensor.NewTensor(x.B, x.T, h)
	for b := 0; b < x.B; b++ {
		for s := 0; s < x.T; s++ {
			pos := prior + s
			scores := make([]float32, pos+1)
			qv := q.Vec(b, s)
			for t := 0; t <= pos; t++ {
				scores[t] = tensor.Dot(qv, k.Vec(b, t)) * scale
			}
			tensor.Softmax(scores)
			o := attnOut.Vec(b, s)
			for t := 0; t <= pos; t++ {
				w := scores[t]
				vt := v.Vec(b, t)
				for d := 0; d < h; d++ {
					o[d] += w * vt[d]
				}
			}
		}
	}

	out := tensor.NewTensor(x.B, x.T, h)
	for b := 0; b < x.B; b++ {
		for t := 0; t < x.T; t++ {
			o := out.Vec(b, t)
			tensor.MatVec(o, &a.Proj, attnOut.Vec(b, t))
			tensor.Add(o, a.ProjBias)
		}
	}

	return out, &KV{K: k, V: v}, nil
}
