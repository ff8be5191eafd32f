package vecmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	assert.InDelta(t, 32.0, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
	assert.Equal(t, float32(0), Dot(nil, nil))
}

func TestSquaredL2(t *testing.T) {
	assert.InDelta(t, 27.0, SquaredL2([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v, 1e-12)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero, 1e-12)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestSigmoidLogit(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-6)
	for _, p := range []float32{0.085, 0.17, 0.5, 0.9} {
		assert.InDelta(t, p, Sigmoid(Logit(p)), 1e-5)
	}
}

func TestSoftmaxInPlace(t *testing.T) {
	a := []float32{1, 1}
	SoftmaxInPlace(a)
	assert.InDelta(t, 0.5, a[0], 1e-6)
	assert.InDelta(t, 0.5, a[1], 1e-6)

	b := []float32{1000, 1000} // must not overflow
	SoftmaxInPlace(b)
	assert.InDelta(t, 0.5, b[0], 1e-6)
}

func TestClampMax(t *testing.T) {
	assert.Equal(t, float32(1), Clamp(5, 0, 1))
	assert.Equal(t, float32(0), Clamp(-5, 0, 1))
	assert.Equal(t, float32(0.5), Clamp(0.5, 0, 1))
	assert.Equal(t, float32(3), MaxOf([]float32{1, 3, 2}))
	assert.Equal(t, float32(0), MaxOf(nil))
}
