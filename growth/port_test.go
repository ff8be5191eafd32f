package growth

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/optim"
	"github.com/splatgo/splatgo/refine"
	"github.com/splatgo/splatgo/resource"
	"github.com/splatgo/splatgo/sh"
)

func buildPort(t *testing.T, n int, ctrl *resource.Controller) (*gaussian.Store, *optim.Synchronizer, *refine.Engine, *Port) {
	t.Helper()
	rng := rand.New(rand.NewSource(31))

	store, err := gaussian.Random(n, 1.0, 4, rng)
	require.NoError(t, err)

	sync := optim.NewSynchronizer(store)
	for _, attr := range gaussian.Attributes {
		a := optim.NewAdam(store.Width(attr))
		require.NoError(t, sync.Track(attr, a))
		col := store.Column(attr)
		require.NoError(t, a.Step(col, make([]float32, len(col))))
	}

	engine := refine.NewEngine(sync, rng)
	port := NewPort(sync, engine, ctrl, rng)
	return store, sync, engine, port
}

func TestAddAppendsWithGrowthPolicy(t *testing.T) {
	store, sync, engine, port := buildPort(t, 10, nil)

	// Accumulate statistics so the growth reset is observable.
	grads := make([]float32, 10*2)
	radii := make([]float32, 10)
	for i := range radii {
		radii[i] = 1
	}
	require.NoError(t, engine.RecordFrame(grads, radii, 64, 64))
	for range 5 {
		engine.Advance()
	}
	require.True(t, engine.Stats().Started())

	points := []float32{0, 0, 0, 1, 1, 1, 2, 2, 2}
	colors := []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}

	added, err := port.Add(context.Background(), points, colors)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 13, store.Len())
	require.NoError(t, sync.Check())

	// Fast-adaptation fill on the new optimizer rows.
	m, v := sync.Optimizer(gaussian.AttrOpacity).Moments()
	for i := 10; i < 13; i++ {
		assert.Equal(t, float32(0.4), m[i])
		assert.Equal(t, float32(0.4), v[i])
	}

	// Growth resets statistics and the steps-since-growth counter.
	assert.False(t, engine.Stats().Started())
	assert.Equal(t, 0, engine.StepsSinceGrowth())

	// Grown-point initialization.
	for i := 10; i < 13; i++ {
		assert.InDelta(t, 0.2, store.Opacity(i), 1e-5)
		var s [3]float32
		store.Scale(i, s[:])
		for a := range 3 {
			assert.InDelta(t, 0.02, s[a], 1e-6)
		}
		assert.InDelta(t, 1.0, vecmath.Norm(store.Rotation(i)), 1e-5)
	}

	// DC coefficient carries the color, higher coefficients stay zero.
	dc := store.DC(10)
	assert.InDelta(t, (1.0-0.5)/sh.C0, dc[0], 1e-5)
	assert.InDelta(t, (0.0-0.5)/sh.C0, dc[1], 1e-5)
	for _, c := range store.Color(10)[3:] {
		assert.Equal(t, float32(0), c)
	}
}

func TestAddNormalizesByteColors(t *testing.T) {
	store, _, _, port := buildPort(t, 2, nil)

	added, err := port.Add(context.Background(), []float32{0, 0, 0}, []float32{255, 128, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	dc := store.DC(2)
	assert.InDelta(t, (1.0-0.5)/sh.C0, dc[0], 1e-5)
	assert.InDelta(t, (128.0/255.0-0.5)/sh.C0, dc[1], 1e-5)
	assert.InDelta(t, (0.0-0.5)/sh.C0, dc[2], 1e-5)
}

func TestAddEmptyBatch(t *testing.T) {
	store, _, engine, port := buildPort(t, 3, nil)
	for range 4 {
		engine.Advance()
	}

	added, err := port.Add(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 4, engine.StepsSinceGrowth(), "empty batch is not a growth event")
}

func TestAddShapeMismatch(t *testing.T) {
	_, _, _, port := buildPort(t, 2, nil)
	_, err := port.Add(context.Background(), []float32{0, 0, 0}, []float32{1, 1})
	assert.Error(t, err)
}

func TestAddRejectedByCap(t *testing.T) {
	ctrl := resource.NewController(resource.Config{MaxPopulation: 11, Policy: resource.Reject})
	store, _, _, port := buildPort(t, 10, ctrl)

	_, err := port.Add(context.Background(), make([]float32, 3*3), make([]float32, 3*3))
	var capErr *resource.ErrPopulationCap
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 10, store.Len(), "rejected batch must not mutate the store")
}

func TestAddForceCullReclaimsHeadroom(t *testing.T) {
	ctrl := resource.NewController(resource.Config{MaxPopulation: 11, Policy: resource.ForceCull})
	store, sync, _, port := buildPort(t, 10, ctrl)

	// Points 4 and 7 are the most transparent; they should be reclaimed.
	store.Column(gaussian.AttrOpacity)[4] = -10
	store.Column(gaussian.AttrOpacity)[7] = -9

	added, err := port.Add(context.Background(), make([]float32, 3*3), make([]float32, 3*3))
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 11, store.Len())
	require.NoError(t, sync.Check())

	for i := range store.Len() {
		assert.Greater(t, store.OpacityLogit(i), float32(-9))
	}
}
