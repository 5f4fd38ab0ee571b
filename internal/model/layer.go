package model

import (
	"math/rand"

	"github.com/shunzh/llm.ipynb/internal/tensor"
)

// DecoderLayer composes normalisation, attention and the feed-forward
// transform with residual connections.
//
// Both residuals are added to the normalised activation, not to the layer's
// original input. This diverges from canonical pre-norm wiring and is kept on
// purpose: the cache equivalence guarantee is defined against this model's
// own behaviour, and existing checkpoints were trained with it.
type DecoderLayer struct {
	Norm1 *LayerNorm
	Attn  *CausalAttention
	Norm2 *LayerNorm
	FFN   *FeedForward
}

// NewDecoderLayer returns a randomly initialised layer using rng.
func NewDecoderLayer(hidden, ffHidden int, rng *rand.Rand) *DecoderLayer {
	return &DecoderLayer{
		Norm1: NewLayerNorm(hidden),
		Attn:  NewCausalAttention(hidden, rng),
		Norm2: NewLayerNorm(hidden),
		FFN:   NewFeedForward(hidden, ffHidden, rng),
	}
}

// Forward runs one decoder layer over x, threading the attention cache state
// through mode. It returns the layer output and the updated key/value state.
func (l *DecoderLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, *KV, error) {
	n := l.Norm1.Forward(x)
	attn, kv, err := l.Attn.Forward(n, mode)
	if err != nil {
		return nil, nil, err
	}

	h := n.Clone()
	tensor.Add(h.Data, attn.Data)

	n2 := l.Norm2.Forward(h)
	ffn := l.FFN.Forward(n2)

	out := n2.Clone()
	tensor.Add(out.Data, ffn.Data)
	return out, kv, nil
}
