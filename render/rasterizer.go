// Package render owns the call contract into the external projection and
// rasterization kernel: it prepares activated per-point values and the
// view/projection transforms, and interprets the returned per-pixel and
// per-point buffers.
package render

import (
	"context"
	"errors"
)

var (
	// ErrOutputShape is returned when the rasterizer's output buffers do
	// not match the requested render size or point count.
	ErrOutputShape = errors.New("rasterizer output shape mismatch")
)

// Input is the prepared per-call payload for the rasterizer. All per-point
// values are activated: scales exponentiated, rotations normalized,
// opacities passed through sigmoid. Channels carries an arbitrary per-point
// channel count; the same contract serves 3-channel color and N-channel
// semantic-feature rasterization.
type Input struct {
	Positions  []float32 // n*3 world space
	Scales     []float32 // n*3, exp(log_scale)
	Rotations  []float32 // n*4, unit quaternions (wxyz)
	Opacities  []float32 // n, sigmoid(logit)
	Channels   []float32 // n*ChannelDim
	ChannelDim int

	View Mat4
	Proj Mat4

	FX, FY, CX, CY float32
	Width, Height  int
	TileSize       int

	Background []float32 // ChannelDim values
}

// NumPoints returns the number of points in the call.
func (in *Input) NumPoints() int { return len(in.Opacities) }

// Output is the rasterizer's result. Image is H*W*ChannelDim; Alpha is the
// per-pixel accumulated opacity. ScreenXY, Depths and Radii are per-point;
// a radius of 0 marks a point that contributed to no pixel.
type Output struct {
	Image    []float32
	Alpha    []float32
	ScreenXY []float32
	Depths   []float32
	Radii    []float32
}

// Rasterizer is the opaque differentiable projection/compositing kernel.
// It must support arbitrary per-point channel counts and expose per-point
// screen radii and screen positions. The call is synchronous from this
// core's perspective regardless of how the kernel schedules work.
type Rasterizer interface {
	Rasterize(ctx context.Context, in *Input) (*Output, error)
}

func (in *Input) checkOutput(out *Output) error {
	n := in.NumPoints()
	if len(out.Image) != in.Width*in.Height*in.ChannelDim ||
		len(out.Alpha) != in.Width*in.Height ||
		len(out.ScreenXY) != n*2 ||
		len(out.Depths) != n ||
		len(out.Radii) != n {
		return ErrOutputShape
	}
	return nil
}
