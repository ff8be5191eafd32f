// Package vecmath provides float32 slice kernels shared by the scene
// representation packages. This is an internal package - external users
// should go through the gaussian, field and relevancy packages.
package vecmath

import (
	"github.com/chewxy/math32"
)

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

// SquaredL2 calculates the squared L2 distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}
	return distance
}

// Norm returns the Euclidean norm of a.
func Norm(a []float32) float32 {
	return math32.Sqrt(Dot(a, a))
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Axpy computes dst[i] += alpha * x[i].
func Axpy(dst []float32, alpha float32, x []float32) {
	for i := range dst {
		dst[i] += alpha * x[i]
	}
}

// Normalize scales a to unit length in place. Vectors with a norm below
// eps are left untouched to avoid amplifying noise.
func Normalize(a []float32, eps float32) {
	n := Norm(a)
	if n <= eps {
		return
	}
	ScaleInPlace(a, 1/n)
}

// Sigmoid returns 1 / (1 + exp(-x)).
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Logit is the inverse of Sigmoid. The input is clamped away from 0 and 1
// so the result stays finite.
func Logit(p float32) float32 {
	const eps = 1e-10
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math32.Log(p / (1 - p))
}

// SoftmaxInPlace replaces a with its softmax. Uses the max-subtraction
// trick for numeric stability.
func SoftmaxInPlace(a []float32) {
	if len(a) == 0 {
		return
	}
	maxVal := a[0]
	for _, v := range a[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i := range a {
		a[i] = math32.Exp(a[i] - maxVal)
		sum += a[i]
	}
	if sum == 0 {
		return
	}
	ScaleInPlace(a, 1/sum)
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// MaxOf returns the maximum element of a. Returns 0 for an empty slice.
func MaxOf(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
