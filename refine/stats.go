package refine

import (
	"fmt"

	"github.com/splatgo/splatgo/internal/vecmath"
)

// ErrStatsLength indicates a per-frame statistics update whose buffers do
// not match the population tracked since the last refinement pass.
type ErrStatsLength struct {
	Tracked int
	Got     int
}

func (e *ErrStatsLength) Error() string {
	return fmt.Sprintf("statistics update length mismatch: tracking %d points, frame has %d", e.Tracked, e.Got)
}

// Stats accumulates per-point screen-space statistics between refinement
// events: a running gradient-norm sum, a visibility count, and the maximum
// observed screen footprint as a fraction of the render size. All three are
// cleared at the end of every refinement pass and whenever the population
// changes outside a pass.
type Stats struct {
	gradNorm  []float32
	visCounts []float32
	max2D     []float32

	lastW, lastH int
}

// Started reports whether at least one frame has been recorded since the
// last reset.
func (st *Stats) Started() bool { return st.gradNorm != nil }

// Len returns the number of points tracked, or 0 before the first frame.
func (st *Stats) Len() int { return len(st.gradNorm) }

// Update folds one frame into the statistics. screenGrads holds per-point
// screen-space position gradients (n*2); radii holds per-point screen radii
// in pixels, with 0 marking invisible points. Invisible points contribute no
// gradient-norm or footprint update this frame.
func (st *Stats) Update(screenGrads, radii []float32, width, height int) error {
	n := len(radii)
	if len(screenGrads) != n*2 {
		return &ErrStatsLength{Tracked: n, Got: len(screenGrads) / 2}
	}
	if st.Started() && len(st.gradNorm) != n {
		return &ErrStatsLength{Tracked: len(st.gradNorm), Got: n}
	}

	st.lastW, st.lastH = width, height
	maxDim := float32(max(width, height))

	if !st.Started() {
		st.gradNorm = make([]float32, n)
		st.visCounts = make([]float32, n)
		st.max2D = make([]float32, n)
		for i := range n {
			st.gradNorm[i] = vecmath.Norm(screenGrads[i*2 : i*2+2])
			st.visCounts[i] = 1
		}
		for i := range n {
			if radii[i] > 0 {
				st.max2D[i] = radii[i] / maxDim
			}
		}
		return nil
	}

	for i := range n {
		if radii[i] <= 0 {
			continue
		}
		st.visCounts[i]++
		st.gradNorm[i] += vecmath.Norm(screenGrads[i*2 : i*2+2])
		if f := radii[i] / maxDim; f > st.max2D[i] {
			st.max2D[i] = f
		}
	}
	return nil
}

// AvgGradNorm returns the per-point moving-average screen-space gradient
// norm, normalized by visibility count and by half the maximum render
// dimension. Returns nil before the first frame.
func (st *Stats) AvgGradNorm() []float32 {
	if !st.Started() {
		return nil
	}
	out := make([]float32, len(st.gradNorm))
	scale := 0.5 * float32(max(st.lastW, st.lastH))
	for i := range out {
		out[i] = st.gradNorm[i] / st.visCounts[i] * scale
	}
	return out
}

// Max2D returns the per-point maximum observed screen footprint. The slice
// aliases internal memory; nil before the first frame.
func (st *Stats) Max2D() []float32 { return st.max2D }

// Reset clears all accumulated statistics. Counts from a prior window are
// never mixed into a new one.
func (st *Stats) Reset() {
	st.gradNorm = nil
	st.visCounts = nil
	st.max2D = nil
}

// extend appends k zero rows mid-pass so freshly split or duplicated points
// stay index-aligned until the end-of-pass reset.
func (st *Stats) extend(k int) {
	if !st.Started() {
		return
	}
	st.gradNorm = append(st.gradNorm, make([]float32, k)...)
	st.visCounts = append(st.visCounts, onesSlice(k)...)
	st.max2D = append(st.max2D, make([]float32, k)...)
}

func onesSlice(k int) []float32 {
	out := make([]float32, k)
	for i := range out {
		out[i] = 1
	}
	return out
}
