package model

import (
	"github.com/shunzh/llm.ipynb/internal/tensor"
)

const normEps = 1e-5

// LayerNorm normalises each position's feature vector and applies a learned
// scale and shift. Pure function of the input and parameters.
type LayerNorm struct {
	Scale []float32
	Shift []float32
	Eps   float32
}

// NewLayerNorm returns an identity-initialised LayerNorm over h features.
func NewLayerNorm(h int) *LayerNorm {
	scale := make([]float32, h)
	for i := range scale {
		scale[i] = 1
	}
	return &LayerNorm{
		Scale: scale,
		Shift: make([]float32, h),
		Eps:   normEps,
	}
}

// Forward returns a new tensor with every (batch, position) vector
// normalised independently.
func (n *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.NewTensor(x.B, x.T, x.H)
	for b := 0; b < x.B; b++ {
		for t := 0; t < x.T; t++ {
			tensor.LayerNorm(out.Vec(b, t), x.Vec(b, t), n.Scale, n.Shift, n.Eps)
		}
	}
	return out
}
