package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalises src across the feature axis and applies a learned
// affine transform: dst = (src - mean) / (std + eps) * scale + shift.
//
// eps is added to the standard deviation itself, not to the variance under
// the square root. Checkpoints were produced against this exact formula, so
// it must not be "fixed" to the conventional sqrt(var+eps) form.
func LayerNorm(dst, src, scale, shift []float32, eps float32) {
	var sum float32
	for _, v := range src {
		sum += v
	}
	mean := sum / float32(len(src))

	var sq float32
	for _, v := range src {
		d := v - mean
		sq += d * d
	}
	std := float32(math.Sqrt(float64(sq / float32(len(src)))))

	inv := float32(1.0) / (std + eps)
	for i := range src {
		dst[i] = (src[i]-mean)*inv*scale[i] + shift[i]
	}
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// GELU computes the Gaussian Error Linear Unit activation.
func GELU(x float32) float32 {
	return float32(0.5 * float64(x) * (1.0 + math.Erf(float64(x)/math.Sqrt2)))
}

// GELUInPlace applies GELU to every element of x.
func GELUInPlace(x []float32) {
	for i := range x {
		x[i] = GELU(x[i])
	}
}
