package refine

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/optim"
)

// testOptions compresses the schedule so refinement windows are reachable
// in a handful of simulated steps.
func testOptions(o *Options) {
	o.WarmupLength = 10
	o.RefineEvery = 5
	o.ResetAlphaEvery = 100
	o.StopSplitAt = 10000
	o.StopScreenSizeAt = 10000
	o.NumTrainData = 2
	o.NSplitSamples = 2
	o.CullDwellMin = 0
	o.CullDwellMax = 1 << 30
}

func buildEngine(t *testing.T, n int, optFns ...func(*Options)) (*gaussian.Store, *optim.Synchronizer, *Engine) {
	t.Helper()
	store, err := gaussian.NewStore(4)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(21))
	rows := gaussian.Rows{
		Positions:     make([]float32, n*3),
		LogScales:     make([]float32, n*3),
		Rotations:     make([]float32, n*4),
		OpacityLogits: make([]float32, n),
		Colors:        make([]float32, n*4*3),
	}
	for i := range n {
		gaussian.RandomQuat(rng, rows.Rotations[i*4:i*4+4])
		rows.OpacityLogits[i] = vecmath.Logit(0.9) // well above cull threshold
		for a := range 3 {
			rows.Positions[i*3+a] = rng.Float32()
			rows.LogScales[i*3+a] = math32.Log(0.005) // small: dup candidate
		}
	}
	_, err = store.Append(rows)
	require.NoError(t, err)

	sync := optim.NewSynchronizer(store)
	for _, attr := range gaussian.Attributes {
		a := optim.NewAdam(store.Width(attr))
		require.NoError(t, sync.Track(attr, a))
		col := store.Column(attr)
		require.NoError(t, a.Step(col, make([]float32, len(col))))
	}

	opts := append([]func(*Options){testOptions}, optFns...)
	eng := NewEngine(sync, rng, opts...)
	return store, sync, eng
}

// advanceTo moves the cursor to an in-window densification step: past
// warmup and past the post-reset exclusion band.
func advanceTo(eng *Engine, step int) {
	for eng.Step() < step {
		eng.Advance()
	}
}

// recordHighGrad marks the given points as densify candidates via one frame
// of large screen-space gradients.
func recordHighGrad(t *testing.T, eng *Engine, n int, hot ...int) {
	t.Helper()
	grads := make([]float32, n*2)
	radii := make([]float32, n)
	for i := range n {
		radii[i] = 1
	}
	for _, i := range hot {
		grads[i*2] = 1 // avg norm 0.5*max(W,H) >> threshold
	}
	require.NoError(t, eng.RecordFrame(grads, radii, 100, 100))
}

func TestRefineWarmupIsNoop(t *testing.T) {
	store, _, eng := buildEngine(t, 5)
	recordHighGrad(t, eng, 5, 0, 1, 2)

	// Step 10 == WarmupLength: still warmup (inclusive bound).
	advanceTo(eng, 10)
	r, err := eng.Refine()
	require.NoError(t, err)
	assert.False(t, r.Mutated())
	assert.Equal(t, 5, store.Len())
	assert.True(t, eng.Stats().Started(), "warmup return leaves statistics accumulating")
}

func TestRefineDuplicateGrowth(t *testing.T) {
	store, sync, eng := buildEngine(t, 6)

	advanceTo(eng, 15) // 15 % 500 > 2+5, past warmup
	recordHighGrad(t, eng, 6, 1, 4)

	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Duplicated)
	assert.Equal(t, 0, r.Split)
	assert.Equal(t, 0, r.Culled)
	assert.Equal(t, 8, store.Len())
	require.NoError(t, sync.Check())

	// Duplicates are verbatim copies appended at the end, dups ordered by index.
	assert.Equal(t, store.Position(1), store.Position(6))
	assert.Equal(t, store.Position(4), store.Position(7))
	assert.Equal(t, store.Color(1), store.Color(6))

	assert.False(t, eng.Stats().Started(), "statistics cleared at end of pass")
}

func TestRefineSplitMassConservation(t *testing.T) {
	store, sync, eng := buildEngine(t, 5)

	// Make points 0 and 2 large enough to split.
	big := math32.Log(0.5)
	for _, i := range []int{0, 2} {
		ls := store.LogScale(i)
		ls[0], ls[1], ls[2] = big, big, big
	}

	advanceTo(eng, 15)
	recordHighGrad(t, eng, 5, 0, 2)

	before := store.Len()
	r, err := eng.Refine()
	require.NoError(t, err)

	// k=2 parents, n=2 samples: +k*n children, -k parents => net +k*(n-1).
	assert.Equal(t, 2, r.Split)
	assert.Equal(t, 4, r.SplitChildren)
	assert.Equal(t, 2, r.Culled, "split parents removed in the same pass")
	assert.Equal(t, before+2*(2-1), store.Len())
	require.NoError(t, sync.Check())
}

func TestRefineSplitScaleShrink(t *testing.T) {
	store, _, eng := buildEngine(t, 3, func(o *Options) {
		// Block criteria culls so the split parent survives for inspection:
		// only the parent-removal mask applies, which we also disable by
		// keeping dwell culls off and... parents are always removed, so
		// instead verify children directly and parent via pre-capture.
		o.CullDwellMin = 1 << 30
	})

	preScale := float32(0.5)
	ls0 := store.LogScale(0)
	ls0[0], ls0[1], ls0[2] = math32.Log(preScale), math32.Log(preScale), math32.Log(preScale)

	advanceTo(eng, 15)
	recordHighGrad(t, eng, 3, 0)

	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Split)
	assert.Equal(t, 2, r.SplitChildren)
	assert.Equal(t, 1, r.Culled, "parent removed even when dwell gating suppresses criteria culls")
	assert.Equal(t, 3-1+2, store.Len())

	// Children are appended after the two survivors; each child scale is
	// the pre-split scale divided by 1.6.
	for i := 2; i < 4; i++ {
		var s [3]float32
		store.Scale(i, s[:])
		for a := range 3 {
			assert.InDelta(t, preScale/1.6, s[a], 1e-4)
		}
	}
}

func TestRefineCullBelowAlpha(t *testing.T) {
	store, sync, eng := buildEngine(t, 5)

	// Point 3 transparent.
	store.Column(gaussian.AttrOpacity)[3] = vecmath.Logit(0.01)

	eng.NoteGrowth() // enable criteria culls (dwell min is 0 in testOptions)
	advanceTo(eng, 15)
	recordHighGrad(t, eng, 5) // no hot points: no densify candidates

	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Culled)
	assert.Equal(t, 1, r.BelowAlpha)
	assert.Equal(t, 4, store.Len())
	require.NoError(t, sync.Check())
}

func TestRefineGrowthCullProtection(t *testing.T) {
	store, _, eng := buildEngine(t, 5, func(o *Options) {
		o.CullDwellMin = 100
		o.CullDwellMax = 200
	})

	store.Column(gaussian.AttrOpacity)[2] = vecmath.Logit(0.01)

	eng.NoteGrowth()
	advanceTo(eng, 15)
	recordHighGrad(t, eng, 5)

	// Within the dwell window minimum: the transparent point must survive.
	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 0, r.Culled)
	assert.Equal(t, 5, store.Len())

	// Past the minimum dwell: the cull applies.
	advanceTo(eng, 15+110)
	recordHighGrad(t, eng, 5)
	r, err = eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Culled)
	assert.Equal(t, 4, store.Len())

	// Past the maximum dwell: criteria culls stop again.
	store.Column(gaussian.AttrOpacity)[0] = vecmath.Logit(0.01)
	advanceTo(eng, 15+250)
	recordHighGrad(t, eng, 4)
	r, err = eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 0, r.Culled)
}

func TestRefineOpacityReset(t *testing.T) {
	store, sync, eng := buildEngine(t, 4, func(o *Options) {
		o.ResetAlphaEvery = 3 // reset interval = 15
	})

	// Seed nonzero opacity moments to observe the zeroing.
	op := sync.Optimizer(gaussian.AttrOpacity)
	col := store.Column(gaussian.AttrOpacity)
	grads := make([]float32, len(col))
	for i := range grads {
		grads[i] = 0.5
	}
	require.NoError(t, op.Step(col, grads))

	advanceTo(eng, 20) // 20 % 15 == 5 == RefineEvery
	r, err := eng.Refine()
	require.NoError(t, err)
	assert.True(t, r.OpacityReset)

	ceiling := vecmath.Logit(2 * eng.Options().CullAlphaThresh)
	for i := range store.Len() {
		assert.LessOrEqual(t, store.OpacityLogit(i), ceiling)
	}

	m, v := op.Moments()
	for i := range m {
		assert.Equal(t, float32(0), m[i])
		assert.Equal(t, float32(0), v[i])
	}
	// Other attributes' moments untouched by the reset path.
	pm, _ := sync.Optimizer(gaussian.AttrPosition).Moments()
	assert.Len(t, pm, store.Len()*3)
}

func TestRefinePostCutoffCullOnly(t *testing.T) {
	store, _, eng := buildEngine(t, 5, func(o *Options) {
		o.StopSplitAt = 20
		o.ContinueCullPostDensification = true
	})

	store.Column(gaussian.AttrOpacity)[1] = vecmath.Logit(0.01)
	// Point 0 would be a split candidate, but densification is disabled.
	ls := store.LogScale(0)
	ls[0], ls[1], ls[2] = math32.Log(0.5), math32.Log(0.5), math32.Log(0.5)

	eng.NoteGrowth()
	advanceTo(eng, 25)

	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 0, r.Split)
	assert.Equal(t, 0, r.Duplicated)
	// Criteria cull still ran: transparent point gone, oversized point gone
	// (scale cull active once past the first reset cycle; 25 > 5*... with
	// testOptions reset interval 500, so scale cull is NOT active yet).
	assert.Equal(t, 1, r.Culled)
	assert.Equal(t, 4, store.Len())
}

func TestRefineScaleCullAfterFirstResetCycle(t *testing.T) {
	store, _, eng := buildEngine(t, 4, func(o *Options) {
		o.ResetAlphaEvery = 2 // reset interval = 10; scale cull active past step 10
		o.NumTrainData = 1    // densify window: step % 10 > 6 → step 17,18,19...
		o.CullScaleThresh = 0.3
	})

	ls := store.LogScale(2)
	ls[0], ls[1], ls[2] = math32.Log(0.9), math32.Log(0.9), math32.Log(0.9)

	eng.NoteGrowth()
	advanceTo(eng, 17)
	recordHighGrad(t, eng, 4)

	r, err := eng.Refine()
	require.NoError(t, err)
	assert.Equal(t, 1, r.TooBig)
	assert.Equal(t, 1, r.Culled)
	assert.Equal(t, 3, store.Len())
}

func TestRefineDueCadence(t *testing.T) {
	_, _, eng := buildEngine(t, 2)
	due := 0
	for range 20 {
		eng.Advance()
		if eng.Due() {
			due++
		}
	}
	assert.Equal(t, 4, due) // steps 5, 10, 15, 20
}
