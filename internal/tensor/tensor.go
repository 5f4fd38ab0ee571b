package tensor

// Tensor is a dense rank-3 float32 array laid out row-major as
// (batch, position, feature). It is the activation container passed between
// model components; weights use Mat instead.
type Tensor struct {
	B, T, H int
	Data    []float32
}

// NewTensor allocates a zero-initialised tensor of shape (b, t, h).
func NewTensor(b, t, h int) *Tensor {
	if b < 0 || t < 0 || h < 0 {
		panic("negative dimension for tensor")
	}
	return &Tensor{
		B:    b,
		T:    t,
		H:    h,
		Data: make([]float32, b*t*h),
	}
}

// Vec returns a view of the feature vector at (batch b, position t).
// Modifications to the returned slice update the tensor.
func (x *Tensor) Vec(b, t int) []float32 {
	if b < 0 || b >= x.B || t < 0 || t >= x.T {
		panic("tensor index out of range")
	}
	off := (b*x.T + t) * x.H
	return x.Data[off : off+x.H]
}

// Clone returns a deep copy of the tensor.
func (x *Tensor) Clone() *Tensor {
	out := NewTensor(x.B, x.T, x.H)
	copy(out.Data, x.Data)
	return out
}

// ConcatT concatenates a and b along the position axis. Both must share batch
// and feature dimensions.
func ConcatT(a, b *Tensor) *Tensor {
	if a.B != b.B || a.H != b.H {
		panic("concat shape mismatch")
	}
	out := NewTensor(a.B, a.T+b.T, a.H)
	for bi := 0; bi < a.B; bi++ {
		for t := 0; t < a.T; t++ {
			copy(out.Vec(bi, t), a.Vec(bi, t))
		}
		for t := 0; t < b.T; t++ {
			copy(out.Vec(bi, a.T+t), b.Vec(bi, t))
		}
	}
	return out
}
