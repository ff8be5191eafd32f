// Package refine implements the adaptive density-control engine: the
// periodic state machine that culls, splits and duplicates primitives while
// keeping optimizer momentum state aligned with the changing population.
package refine

import (
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/chewxy/math32"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/optim"
)

// sizeFactor shrinks both a split parent's and its children's scales to
// bound the rendered footprint across a split.
const sizeFactor = 1.6

// Options configures the density-control engine.
type Options struct {
	// WarmupLength is the number of steps before any structural mutation.
	WarmupLength int
	// RefineEvery is the refinement cadence in training steps.
	RefineEvery int
	// ResetAlphaEvery is the opacity-reset period, in refinement cycles.
	ResetAlphaEvery int
	// StopSplitAt permanently disables densification at this step.
	StopSplitAt int
	// StopScreenSizeAt disables the screen-size split and cull terms at
	// this step.
	StopScreenSizeAt int
	// NumTrainData sizes the post-reset exclusion band: densification waits
	// until every training view has been seen since the last opacity reset.
	NumTrainData int

	// DensifyGradThresh marks a point as a densify candidate when its
	// average screen-space gradient norm exceeds it.
	DensifyGradThresh float32
	// DensifySizeThresh partitions candidates into splits (above) and
	// duplicates (at or below), in world units of the largest scale axis.
	DensifySizeThresh float32
	// SplitScreenSize additionally marks candidates occupying more than
	// this screen fraction as splits, while below StopScreenSizeAt.
	SplitScreenSize float32
	// NSplitSamples is the number of children one split produces.
	NSplitSamples int

	// CullAlphaThresh culls points whose activated opacity falls below it.
	CullAlphaThresh float32
	// CullScaleThresh culls points whose largest scale axis exceeds it,
	// once past the first reset cycle.
	CullScaleThresh float32
	// CullScreenSize culls points whose observed screen footprint exceeds
	// it, while below StopScreenSizeAt.
	CullScreenSize float32
	// ContinueCullPostDensification keeps the cull-only mode running after
	// StopSplitAt.
	ContinueCullPostDensification bool

	// CullDwellMin and CullDwellMax bound the steps-since-growth window in
	// which criteria culls may run. Freshly grown points are protected
	// until the minimum dwell elapses, preventing growth/cull thrashing.
	CullDwellMin int
	CullDwellMax int
}

// DefaultOptions returns the reference refinement schedule.
func DefaultOptions() Options {
	return Options{
		WarmupLength:                  1000,
		RefineEvery:                   75,
		ResetAlphaEvery:               30,
		StopSplitAt:                   50000,
		StopScreenSizeAt:              4000,
		NumTrainData:                  100,
		DensifyGradThresh:             0.0002,
		DensifySizeThresh:             0.01,
		SplitScreenSize:               0.05,
		NSplitSamples:                 2,
		CullAlphaThresh:               0.085,
		CullScaleThresh:               0.5,
		CullScreenSize:                0.15,
		ContinueCullPostDensification: true,
		CullDwellMin:                  5500,
		CullDwellMax:                  10000,
	}
}

// Report summarizes one refinement pass.
type Report struct {
	// Split is the number of parent points superseded by children.
	Split int
	// SplitChildren is the number of children appended by splits.
	SplitChildren int
	// Duplicated is the number of points cloned verbatim.
	Duplicated int
	// Culled is the total number of rows compacted out, split parents
	// included.
	Culled int
	// BelowAlpha and TooBig break down the criteria culls.
	BelowAlpha int
	TooBig     int
	// OpacityReset reports whether this pass clamped all opacities.
	OpacityReset bool
	// Population is the post-pass population size.
	Population int
}

// Mutated reports whether the pass changed the population.
func (r Report) Mutated() bool {
	return r.SplitChildren > 0 || r.Duplicated > 0 || r.Culled > 0
}

// Engine drives the periodic densify/cull/reset state machine over a
// synchronized point store. It owns the training cursor: a monotonically
// increasing step counter and a steps-since-last-growth counter, both
// advanced once per training iteration by the external driver.
type Engine struct {
	opts  Options
	sync  *optim.Synchronizer
	store *gaussian.Store
	rng   *rand.Rand

	stats Stats

	step             int
	stepsSinceGrowth int
	grown            bool
}

// NewEngine creates a density-control engine over the synchronized store.
func NewEngine(sync *optim.Synchronizer, rng *rand.Rand, optFns ...func(*Options)) *Engine {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		opts:  opts,
		sync:  sync,
		store: sync.Store(),
		rng:   rng,
	}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Step returns the current training step.
func (e *Engine) Step() int { return e.step }

// StepsSinceGrowth returns the steps elapsed since the last growth event.
func (e *Engine) StepsSinceGrowth() int { return e.stepsSinceGrowth }

// Advance moves the training cursor forward one iteration.
func (e *Engine) Advance() {
	e.step++
	e.stepsSinceGrowth++
}

// SetStep positions the training cursor, for checkpoint restore.
func (e *Engine) SetStep(step int) { e.step = step }

// Due reports whether a refinement pass should run at the current step.
func (e *Engine) Due() bool {
	return e.opts.RefineEvery > 0 && e.step%e.opts.RefineEvery == 0
}

// StableWindow reports whether the cursor sits outside the post-reset
// exclusion band. Densification and field supervision both wait for every
// training view to be revisited after an opacity reset.
func (e *Engine) StableWindow() bool {
	resetInterval := e.opts.ResetAlphaEvery * e.opts.RefineEvery
	if resetInterval <= 0 {
		return true
	}
	return e.step%resetInterval > e.opts.NumTrainData+e.opts.RefineEvery
}

// NoteGrowth records an external growth event: accumulated statistics are
// invalid for the new population and freshly grown points enter the cull
// protection window.
func (e *Engine) NoteGrowth() {
	e.stats.Reset()
	e.stepsSinceGrowth = 0
	e.grown = true
}

// ResetStats clears accumulated statistics without touching the cursor.
func (e *Engine) ResetStats() { e.stats.Reset() }

// Stats exposes the accumulated statistics window.
func (e *Engine) Stats() *Stats { return &e.stats }

// RecordFrame folds one rendered frame's screen-space gradients and radii
// into the statistics window. Past the densification cutoff the update is
// skipped; the statistics no longer drive anything.
func (e *Engine) RecordFrame(screenGrads, radii []float32, width, height int) error {
	if e.step >= e.opts.StopSplitAt {
		return nil
	}
	return e.stats.Update(screenGrads, radii, width, height)
}

// cullAllowed gates criteria culls to the dwell window after a growth
// event, so freshly grown points get optimized before they can be removed.
func (e *Engine) cullAllowed() bool {
	return e.grown &&
		e.stepsSinceGrowth >= e.opts.CullDwellMin &&
		e.stepsSinceGrowth < e.opts.CullDwellMax
}

// Refine executes one refinement pass at the current training cursor. The
// pass may densify (split/duplicate), cull, and reset opacities, per the
// schedule; accumulated statistics are cleared at the end of every pass.
func (e *Engine) Refine() (Report, error) {
	r := Report{Population: e.store.Len()}
	if e.step <= e.opts.WarmupLength {
		return r, nil
	}

	resetInterval := e.opts.ResetAlphaEvery * e.opts.RefineEvery
	doDensify := e.step < e.opts.StopSplitAt && e.StableWindow()

	switch {
	case doDensify && e.stats.Started():
		if err := e.densify(&r); err != nil {
			return r, err
		}
	case e.step >= e.opts.StopSplitAt && e.opts.ContinueCullPostDensification:
		if e.cullAllowed() {
			culls := e.criteriaCulls(&r)
			if err := e.compact(culls, &r); err != nil {
				return r, err
			}
		}
	}

	if e.step < e.opts.StopSplitAt && e.step%resetInterval == e.opts.RefineEvery {
		if err := e.resetOpacities(); err != nil {
			return r, err
		}
		r.OpacityReset = true
	}

	e.stats.Reset()
	r.Population = e.store.Len()
	return r, nil
}

// densify runs the split/duplicate stage and the same-pass cull that
// removes split parents (plus criteria culls when the dwell window allows).
func (e *Engine) densify(r *Report) error {
	n := e.store.Len()
	avgGrad := e.stats.AvgGradNorm()
	max2D := e.stats.Max2D()

	highGrads := roaring.New()
	for i := range n {
		if avgGrad[i] > e.opts.DensifyGradThresh {
			highGrads.Add(uint32(i))
		}
	}

	// Candidates partition into splits (large) and duplicates (small); the
	// partition is mutually exclusive by construction.
	splits := roaring.New()
	dups := roaring.New()
	screenTerm := e.step < e.opts.StopScreenSizeAt
	it := highGrads.Iterator()
	for it.HasNext() {
		i := it.Next()
		big := e.store.MaxScale(int(i)) > e.opts.DensifySizeThresh
		if !big && screenTerm && max2D[i] > e.opts.SplitScreenSize {
			big = true
		}
		if big {
			splits.Add(i)
		} else {
			dups.Add(i)
		}
	}

	splitRows, err := e.splitRows(splits)
	if err != nil {
		return err
	}
	added, err := e.sync.Append(splitRows, optim.FillZero)
	if err != nil {
		return err
	}
	e.stats.extend(added)
	r.Split = int(splits.GetCardinality())
	r.SplitChildren = added

	dupRows := e.dupRows(dups)
	added, err = e.sync.Append(dupRows, optim.FillZero)
	if err != nil {
		return err
	}
	e.stats.extend(added)
	r.Duplicated = added

	// A split parent is superseded by its children and must not survive the
	// pass, even when the dwell window suppresses criteria culls; mass would
	// otherwise be double-counted.
	culls := roaring.New()
	if e.cullAllowed() {
		culls = e.criteriaCulls(r)
	}
	culls.Or(splits)

	return e.compact(culls, r)
}

// splitRows draws NSplitSamples children for every split parent: zero-mean
// unit Gaussian samples scaled by the parent's per-axis scale, rotated by
// its orientation and offset by its position. Children and parent both
// shrink by sizeFactor; all other attributes copy unchanged. The parent's
// scale is updated in place.
func (e *Engine) splitRows(splits *roaring.Bitmap) (gaussian.Rows, error) {
	var rows gaussian.Rows
	k := int(splits.GetCardinality())
	if k == 0 {
		return rows, nil
	}

	shrink := math32.Log(sizeFactor)
	var scale [3]float32
	var quat [4]float32
	var rot [9]float32
	var sample, offset [3]float32

	for s := 0; s < e.opts.NSplitSamples; s++ {
		it := splits.Iterator()
		for it.HasNext() {
			i := int(it.Next())

			// Sampling uses the parent's pre-shrink scale.
			e.store.Scale(i, scale[:])
			e.store.NormalizedRotation(i, quat[:])
			gaussian.QuatToRotMat(quat[:], rot[:])

			for a := range 3 {
				sample[a] = float32(e.rng.NormFloat64()) * scale[a]
			}
			gaussian.RotateVec(rot[:], sample[:], offset[:])

			pos := e.store.Position(i)
			rows.Positions = append(rows.Positions, pos[0]+offset[0], pos[1]+offset[1], pos[2]+offset[2])

			ls := e.store.LogScale(i)
			rows.LogScales = append(rows.LogScales, ls[0]-shrink, ls[1]-shrink, ls[2]-shrink)
			rows.Rotations = append(rows.Rotations, e.store.Rotation(i)...)
			rows.OpacityLogits = append(rows.OpacityLogits, e.store.OpacityLogit(i))
			rows.Colors = append(rows.Colors, e.store.Color(i)...)
		}
	}

	// Shrink parents in place after all children are sampled.
	it := splits.Iterator()
	for it.HasNext() {
		ls := e.store.LogScale(int(it.Next()))
		ls[0] -= shrink
		ls[1] -= shrink
		ls[2] -= shrink
	}
	return rows, nil
}

// dupRows copies each duplicate candidate's full attribute row once, with
// no perturbation; subsequent independent gradient updates differentiate
// the clones.
func (e *Engine) dupRows(dups *roaring.Bitmap) gaussian.Rows {
	var rows gaussian.Rows
	it := dups.Iterator()
	for it.HasNext() {
		e.store.CopyRow(int(it.Next()), &rows)
	}
	return rows
}

// criteriaCulls marks points below the opacity threshold, plus oversized
// points (world scale once past the first reset cycle, screen footprint
// while below the screen-size cutoff).
func (e *Engine) criteriaCulls(r *Report) *roaring.Bitmap {
	n := e.store.Len()
	culls := roaring.New()

	for i := range n {
		if e.store.Opacity(i) < e.opts.CullAlphaThresh {
			culls.Add(uint32(i))
			r.BelowAlpha++
		}
	}

	if e.step > e.opts.RefineEvery*e.opts.ResetAlphaEvery {
		max2D := e.stats.Max2D()
		screenTerm := e.step < e.opts.StopScreenSizeAt && max2D != nil
		for i := range n {
			tooBig := e.store.MaxScale(i) > e.opts.CullScaleThresh
			if !tooBig && screenTerm && max2D[i] > e.opts.CullScreenSize {
				tooBig = true
			}
			if tooBig {
				r.TooBig++
				culls.Add(uint32(i))
			}
		}
	}
	return culls
}

// compact removes the marked rows from the store and every optimizer.
func (e *Engine) compact(culls *roaring.Bitmap, r *Report) error {
	if culls.IsEmpty() {
		return nil
	}
	n := e.store.Len()
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	it := culls.Iterator()
	for it.HasNext() {
		keep[it.Next()] = false
	}

	removed, err := e.sync.Compact(keep)
	if err != nil {
		return err
	}
	r.Culled += removed
	return nil
}

// resetOpacities clamps every opacity logit to the reset ceiling (twice the
// cull threshold, in activated space) and zeroes the opacity optimizer's
// moment buffers, forcing re-evaluation of every point's visibility
// contribution without disturbing position, scale or rotation learning.
func (e *Engine) resetOpacities() error {
	ceiling := vecmath.Logit(2 * e.opts.CullAlphaThresh)
	col := e.store.Column(gaussian.AttrOpacity)
	for i := range col {
		if col[i] > ceiling {
			col[i] = ceiling
		}
	}
	return e.sync.ZeroMoments(gaussian.AttrOpacity)
}
