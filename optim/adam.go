// Package optim provides the per-attribute gradient-descent optimizer and
// the synchronizer that keeps optimizer momentum state aligned with the
// point store across structural mutations.
package optim

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var (
	// ErrGradientLength is returned when a gradient batch does not match the
	// parameter length.
	ErrGradientLength = errors.New("gradient length does not match parameters")
)

// ErrNotStepped indicates a structural mutation on an optimizer that has
// never taken a step, so its moment buffers do not exist yet. Mutating an
// unstepped optimizer is a precondition violation: callers must guarantee at
// least one optimization step before any structural mutation.
type ErrNotStepped struct {
	Attribute string
}

func (e *ErrNotStepped) Error() string {
	return fmt.Sprintf("optimizer for %s has never stepped; moment buffers not allocated", e.Attribute)
}

// Options configures an Adam optimizer.
type Options struct {
	LR    float32
	Beta1 float32
	Beta2 float32
	Eps   float32
}

// DefaultOptions returns standard Adam hyperparameters.
func DefaultOptions() Options {
	return Options{
		LR:    1e-3,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
	}
}

// Adam is an adaptive first/second-moment optimizer over one attribute
// column. Its moment buffers are indexed identically to the point store and
// are resized explicitly, never behind a fixed-size assumption.
type Adam struct {
	opts  Options
	width int // values per row

	m []float32 // first moment, nil until the first step
	v []float32 // second moment
	t int       // steps taken
}

// NewAdam creates an Adam optimizer for an attribute whose rows are width
// float32 values wide.
func NewAdam(width int, optFns ...func(*Options)) *Adam {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adam{opts: opts, width: width}
}

// Width returns the number of values per row.
func (a *Adam) Width() int { return a.width }

// Steps returns the number of optimization steps taken.
func (a *Adam) Steps() int { return a.t }

// Stepped reports whether moment buffers have been allocated.
func (a *Adam) Stepped() bool { return a.m != nil }

// Rows returns the number of rows tracked by the moment buffers, or -1 if
// the optimizer has never stepped.
func (a *Adam) Rows() int {
	if a.m == nil {
		return -1
	}
	return len(a.m) / a.width
}

// Moments exposes the first and second moment buffers. The slices alias
// internal memory; they are nil before the first step.
func (a *Adam) Moments() (m, v []float32) { return a.m, a.v }

// Step applies one Adam update to params given grads. Moment buffers are
// allocated on the first call.
func (a *Adam) Step(params, grads []float32) error {
	if len(grads) != len(params) {
		return fmt.Errorf("%w: %d params, %d grads", ErrGradientLength, len(params), len(grads))
	}
	if a.m == nil {
		a.m = make([]float32, len(params))
		a.v = make([]float32, len(params))
	} else if len(a.m) != len(params) {
		return fmt.Errorf("optimizer state has %d values, params have %d", len(a.m), len(params))
	}

	a.t++
	b1c := 1 - math32.Pow(a.opts.Beta1, float32(a.t))
	b2c := 1 - math32.Pow(a.opts.Beta2, float32(a.t))

	for i := range params {
		a.m[i] = a.opts.Beta1*a.m[i] + (1-a.opts.Beta1)*grads[i]
		a.v[i] = a.opts.Beta2*a.v[i] + (1-a.opts.Beta2)*grads[i]*grads[i]

		mHat := a.m[i] / b1c
		vHat := a.v[i] / b2c
		params[i] -= a.opts.LR * mHat / (math32.Sqrt(vHat) + a.opts.Eps)
	}
	return nil
}

// ZeroMoments resets both moment buffers to zero without changing their
// size. Used by the periodic opacity reset.
func (a *Adam) ZeroMoments() {
	for i := range a.m {
		a.m[i] = 0
	}
	for i := range a.v {
		a.v[i] = 0
	}
}

// extendRows appends rows to both moment buffers, filled with a constant.
func (a *Adam) extendRows(rows int, fill float32) {
	add := rows * a.width
	for range add {
		a.m = append(a.m, fill)
		a.v = append(a.v, fill)
	}
}

// compactRows boolean-indexes both moment buffers with the keep mask.
func (a *Adam) compactRows(keep []bool) {
	a.m = compactBuffer(a.m, keep, a.width)
	a.v = compactBuffer(a.v, keep, a.width)
}

func compactBuffer(buf []float32, keep []bool, width int) []float32 {
	out := buf[:0]
	for i, k := range keep {
		if !k {
			continue
		}
		out = append(out, buf[i*width:(i+1)*width]...)
	}
	return out
}
