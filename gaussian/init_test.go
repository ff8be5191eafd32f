package gaussian

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatgo/splatgo/internal/vecmath"
)

func TestRandomQuatIsUnit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var q [4]float32
	for range 100 {
		RandomQuat(rng, q[:])
		assert.InDelta(t, 1.0, vecmath.Norm(q[:]), 1e-5)
	}
}

func TestQuatToRotMatIdentity(t *testing.T) {
	var m [9]float32
	QuatToRotMat([]float32{1, 0, 0, 0}, m[:])

	want := []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}
	for i := range want {
		assert.InDelta(t, want[i], m[i], 1e-6)
	}
}

func TestQuatToRotMatPreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var q [4]float32
	var m [9]float32
	v := []float32{0.3, -1.2, 2.5}
	var out [3]float32

	for range 20 {
		RandomQuat(rng, q[:])
		QuatToRotMat(q[:], m[:])
		RotateVec(m[:], v, out[:])
		assert.InDelta(t, vecmath.Norm(v), vecmath.Norm(out[:]), 1e-4)
	}
}

func TestFromCloud(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points := []float32{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	colors := []float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0.5, 0.5, 0.5,
	}

	s, err := FromCloud(points, colors, 16, rng)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	// Isotropic log-scales from neighbor distances, finite and equal per axis.
	for i := range 4 {
		ls := s.LogScale(i)
		assert.Equal(t, ls[0], ls[1])
		assert.Equal(t, ls[1], ls[2])
		assert.False(t, math32.IsInf(ls[0], 0))
		assert.Greater(t, s.MaxScale(i), float32(0))
	}

	// Initial opacity sigmoid(logit) recovers the configured constant.
	for i := range 4 {
		assert.InDelta(t, 0.1, s.Opacity(i), 1e-5)
	}

	// DC coefficient holds the color; all higher coefficients zero.
	dc := s.DC(0)
	assert.InDelta(t, (1.0-0.5)/0.28209479177387814, dc[0], 1e-5)
	assert.Equal(t, make([]float32, 16*3-3), []float32(s.Color(0)[3:]))
}

func TestFromCloudShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := FromCloud([]float32{0, 0, 0}, []float32{1, 0}, 4, rng)
	assert.Error(t, err)
}

func TestRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	s, err := Random(15, 500, 16, rng)
	require.NoError(t, err)
	assert.Equal(t, 15, s.Len())

	for i := range 15 {
		p := s.Position(i)
		for _, v := range p {
			assert.LessOrEqual(t, math32.Abs(v), float32(500))
		}
	}
}
