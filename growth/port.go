// Package growth implements the incremental growth port: externally
// deprojected 3D points with colors are appended as fresh primitives with
// initialization tuned for immediate visibility and fast adaptation.
package growth

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/optim"
	"github.com/splatgo/splatgo/refine"
	"github.com/splatgo/splatgo/resource"
	"github.com/splatgo/splatgo/sh"
)

// Options configures primitive initialization for grown points.
type Options struct {
	// InitOpacity is the activated opacity assigned to grown points. It is
	// deliberately higher than the seeding default so freshly observed
	// geometry is visible immediately.
	InitOpacity float32

	// IsoScale is the fixed isotropic scale assigned to grown points. A
	// constant, not a neighborhood statistic: newly observed points have no
	// trustworthy local neighborhood yet.
	IsoScale float32
}

// DefaultOptions returns the reference growth initialization.
func DefaultOptions() Options {
	return Options{
		InitOpacity: 0.2,
		IsoScale:    0.02,
	}
}

// Port appends externally observed points to a synchronized store. Every
// append extends the optimizer moment buffers with the fast-adaptation fill
// policy, resets the density-control statistics window and opens the cull
// protection window for the grown points.
type Port struct {
	opts   Options
	sync   *optim.Synchronizer
	store  *gaussian.Store
	engine *refine.Engine
	ctrl   *resource.Controller
	rng    *rand.Rand
}

// NewPort creates a growth port over the synchronized store. ctrl may be
// nil, disabling admission control.
func NewPort(sync *optim.Synchronizer, engine *refine.Engine, ctrl *resource.Controller, rng *rand.Rand, optFns ...func(*Options)) *Port {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Port{
		opts:   opts,
		sync:   sync,
		store:  sync.Store(),
		engine: engine,
		ctrl:   ctrl,
		rng:    rng,
	}
}

// Add appends the deprojected points (k*3 positions) with matching colors
// (k*3 RGB). Colors above 1 are treated as byte-valued and normalized by
// 255. Returns the number of primitives added; an empty batch is a no-op.
//
// Under the ForceCull overflow policy, the reported headroom is reclaimed
// by culling the lowest-opacity existing points before the batch lands.
func (p *Port) Add(ctx context.Context, points, colors []float32) (int, error) {
	if len(points)%3 != 0 || len(colors) != len(points) {
		return 0, fmt.Errorf("deprojected batch shape mismatch: %d position values, %d color values", len(points), len(colors))
	}
	k := len(points) / 3
	if k == 0 {
		return 0, nil
	}

	adm, err := p.ctrl.Admit(ctx, k, p.store.Len())
	if err != nil {
		return 0, err
	}
	if adm.CullHeadroom > 0 {
		if err := p.cullHeadroom(adm.CullHeadroom); err != nil {
			return 0, err
		}
	}

	rows := p.buildRows(points, colors, k)
	added, err := p.sync.Append(rows, optim.FillAdapt)
	if err != nil {
		return 0, err
	}

	p.engine.NoteGrowth()
	return added, nil
}

func (p *Port) buildRows(points, colors []float32, k int) gaussian.Rows {
	numCoeffs := p.store.NumCoeffs()
	rows := gaussian.Rows{
		Positions:     append([]float32(nil), points...),
		LogScales:     make([]float32, k*3),
		Rotations:     make([]float32, k*4),
		OpacityLogits: make([]float32, k),
		Colors:        make([]float32, k*numCoeffs*3),
	}

	normalized := colors
	if vecmath.MaxOf(colors) > 1 {
		normalized = make([]float32, len(colors))
		for i, c := range colors {
			normalized[i] = c / 255
		}
	}

	logScale := math32.Log(p.opts.IsoScale)
	opacity := vecmath.Logit(p.opts.InitOpacity)
	for i := range k {
		rows.LogScales[i*3+0] = logScale
		rows.LogScales[i*3+1] = logScale
		rows.LogScales[i*3+2] = logScale
		gaussian.RandomQuat(p.rng, rows.Rotations[i*4:i*4+4])
		rows.OpacityLogits[i] = opacity
		// Diffuse coefficient from the observed color; all higher-degree
		// coefficients start at zero.
		sh.RGBToDC(normalized[i*3:i*3+3], rows.Colors[i*numCoeffs*3:i*numCoeffs*3+3])
	}
	return rows
}

// cullHeadroom compacts out the n lowest-opacity points to make room for an
// admitted batch under the ForceCull policy.
func (p *Port) cullHeadroom(n int) error {
	total := p.store.Len()
	if n >= total {
		n = total
	}

	type cand struct {
		idx     int
		opacity float32
	}
	cands := make([]cand, total)
	for i := range total {
		cands[i] = cand{idx: i, opacity: p.store.OpacityLogit(i)}
	}
	// Partial selection of the n most transparent rows.
	for sel := 0; sel < n; sel++ {
		minAt := sel
		for j := sel + 1; j < total; j++ {
			if cands[j].opacity < cands[minAt].opacity {
				minAt = j
			}
		}
		cands[sel], cands[minAt] = cands[minAt], cands[sel]
	}

	keep := make([]bool, total)
	for i := range keep {
		keep[i] = true
	}
	for _, c := range cands[:n] {
		keep[c.idx] = false
	}
	_, err := p.sync.Compact(keep)
	return err
}
