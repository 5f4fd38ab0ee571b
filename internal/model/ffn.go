package model

import (
	"math/rand"

	"github.com/shunzh/llm.ipynb/internal/tensor"
)

// FeedForward is the position-wise two-layer transform
// H -> ff_hidden_size -> H with a GELU between. There is no cross-position
// interaction; dropout is a no-op at inference.
type FeedForward struct {
	FC1     tensor.Mat // (ff_hidden_size, hidden_size)
	FC1Bias []float32
	FC2     tensor.Mat // (hidden_size, ff_hidden_size)
	FC2Bias []float32
}

// NewFeedForward returns a randomly initialised FeedForward using rng.
func NewFeedForward(hidden, ffHidden int, rng *rand.Rand) *FeedForward {
	f := &FeedForward{
		FC1:     tensor.NewMat(ffHidden, hidden),
		FC1Bias: make([]float32, ffHidden),
		FC2:     tensor.NewMat(hidden, ffHidden),
		FC2Bias: make([]float32, hidden),
	}
	tensor.FillRand(&f.FC1, rng)
	tensor.FillRand(&f.FC2, rng)
	return f
}

// Forward applies the transform independently to every position.
func (f *FeedForward) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.NewTensor(x.B, x.T, x.H)
	hiddenBuf := make([]float32, f.FC1.R)
	for b := 0; b < x.B; b++ {
		for t := 0; t < x.T; t++ {
			tensor.MatVec(hiddenBuf, &f.FC1, x.Vec(b, t))
			tensor.Add(hiddenBuf, f.FC1Bias)
			tensor.GELUInPlace(hiddenBuf)

			o := out.Vec(b, t)
			tensor.MatVec(o, &f.FC2, hiddenBuf)
			tensor.Add(o, f.FC2Bias)
		}
	}
	return out
}
