package render

import (
	"context"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/sh"
)

// Options configures the projection/rasterization adapter.
type Options struct {
	// ZNear, ZFar bound the projection frustum.
	ZNear float32
	ZFar  float32

	// TileSize is the rasterizer's tile block width in pixels.
	TileSize int

	// SHDegreeInterval unlocks one spherical-harmonics degree every this
	// many steps. The maximum degree derives from the store's coefficients.
	SHDegreeInterval int

	// Background is the RGB color composited behind the scene.
	Background [3]float32

	// DepthBackground is the value behind the scene in depth renders.
	DepthBackground float32
}

// DefaultOptions returns the reference projection parameters.
func DefaultOptions() Options {
	return Options{
		ZNear:            0.001,
		ZFar:             1000,
		TileSize:         16,
		SHDegreeInterval: 1000,
		DepthBackground:  10,
	}
}

// Frame is one rendered view of the store.
type Frame struct {
	Width, Height int

	Image []float32 // H*W*3, clamped to [0,1]
	Alpha []float32 // H*W
	Depth []float32 // H*W, alpha-normalized

	// ScreenXY and Radii are per rendered point. With no crop active they
	// are store-aligned and feed the density-control statistics; with a
	// crop active they align to Indices instead.
	ScreenXY []float32
	Radii    []float32

	// Indices maps rendered rows to store rows when a crop is active; nil
	// otherwise.
	Indices []int

	// Visible counts points with a nonzero screen radius.
	Visible int
}

// ChannelFrame is one N-channel rasterization pass, used for rendering
// per-point semantic features like a color channel.
type ChannelFrame struct {
	Width, Height int
	ChannelDim    int
	Image         []float32 // H*W*ChannelDim
	Alpha         []float32
}

// Adapter prepares rasterizer calls from the point store: activated scales
// and opacities, normalized rotations, view-dependent colors, and the
// view/projection transforms.
type Adapter struct {
	store *gaussian.Store
	ras   Rasterizer
	opts  Options

	maxDegree int
	crop      *CropBox
}

// NewAdapter creates an adapter over the store and rasterizer.
func NewAdapter(store *gaussian.Store, ras Rasterizer, optFns ...func(*Options)) *Adapter {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{
		store:     store,
		ras:       ras,
		opts:      opts,
		maxDegree: sh.DegreeForBases(store.NumCoeffs()),
	}
}

// SetCrop restricts rendering to primitives inside the box.
func (a *Adapter) SetCrop(box CropBox) { a.crop = &box }

// ClearCrop removes the crop region.
func (a *Adapter) ClearCrop() { a.crop = nil }

// CropActive reports whether a crop region is set.
func (a *Adapter) CropActive() bool { return a.crop != nil }

// SetBackground sets the RGB background color.
func (a *Adapter) SetBackground(bg [3]float32) { a.opts.Background = bg }

// cropIndices returns the store rows to render, or nil when every row
// renders.
func (a *Adapter) cropIndices() []int {
	if a.crop == nil {
		return nil
	}
	idx := make([]int, 0, a.store.Len())
	for i := range a.store.Len() {
		if a.crop.Contains(a.store.Position(i)) {
			idx = append(idx, i)
		}
	}
	return idx
}

// prepare builds an Input with activated per-point values for the given
// rows (all rows when indices is nil), leaving channels to the caller.
func (a *Adapter) prepare(cam Camera, indices []int) *Input {
	n := a.store.Len()
	if indices != nil {
		n = len(indices)
	}
	row := func(i int) int {
		if indices != nil {
			return indices[i]
		}
		return i
	}

	in := &Input{
		Positions: make([]float32, n*3),
		Scales:    make([]float32, n*3),
		Rotations: make([]float32, n*4),
		Opacities: make([]float32, n),
		View:      cam.ViewMatrix(),
		Proj:      cam.ProjectionMatrix(a.opts.ZNear, a.opts.ZFar),
		FX:        cam.FX,
		FY:        cam.FY,
		CX:        cam.CX,
		CY:        cam.CY,
		Width:     cam.Width,
		Height:    cam.Height,
		TileSize:  a.opts.TileSize,
	}
	for i := range n {
		r := row(i)
		copy(in.Positions[i*3:], a.store.Position(r))
		a.store.Scale(r, in.Scales[i*3:i*3+3])
		a.store.NormalizedRotation(r, in.Rotations[i*4:i*4+4])
		in.Opacities[i] = a.store.Opacity(r)
	}
	return in
}

// shColors evaluates view-dependent colors for the prepared points at the
// degree active for the training step.
func (a *Adapter) shColors(in *Input, cam Camera, indices []int, step int) []float32 {
	n := in.NumPoints()
	degree := sh.ActiveDegree(step, a.opts.SHDegreeInterval, a.maxDegree)

	camX := cam.CameraToWorld[3]
	camY := cam.CameraToWorld[7]
	camZ := cam.CameraToWorld[11]

	colors := make([]float32, n*3)
	var dir [3]float32
	var rgb [3]float32
	for i := range n {
		r := i
		if indices != nil {
			r = indices[i]
		}
		p := a.store.Position(r)
		dir[0], dir[1], dir[2] = p[0]-camX, p[1]-camY, p[2]-camZ
		vecmath.Normalize(dir[:], 1e-12)

		sh.Eval(degree, a.store.Color(r), dir, rgb[:])
		for c := range 3 {
			colors[i*3+c] = vecmath.Clamp(rgb[c]+0.5, 0, 1)
		}
	}
	return colors
}

// Render produces a color and depth frame for a single camera at the given
// training step. A population (or crop selection) of zero points is a
// recoverable degenerate state and yields a background-filled frame.
func (a *Adapter) Render(ctx context.Context, cam Camera, step int) (*Frame, error) {
	indices := a.cropIndices()
	n := a.store.Len()
	if indices != nil {
		n = len(indices)
	}
	if n == 0 {
		return a.backgroundFrame(cam, indices), nil
	}

	in := a.prepare(cam, indices)
	in.Channels = a.shColors(in, cam, indices, step)
	in.ChannelDim = 3
	in.Background = a.opts.Background[:]

	out, err := a.ras.Rasterize(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := in.checkOutput(out); err != nil {
		return nil, err
	}

	frame := &Frame{
		Width:    cam.Width,
		Height:   cam.Height,
		Image:    out.Image,
		Alpha:    out.Alpha,
		ScreenXY: out.ScreenXY,
		Radii:    out.Radii,
		Indices:  indices,
	}
	for _, r := range out.Radii {
		if r > 0 {
			frame.Visible++
		}
	}
	if frame.Visible == 0 {
		bg := a.backgroundFrame(cam, indices)
		bg.ScreenXY = out.ScreenXY
		bg.Radii = out.Radii
		return bg, nil
	}

	depth, err := a.renderDepth(ctx, in, out.Depths)
	if err != nil {
		return nil, err
	}
	frame.Depth = depth
	return frame, nil
}

// renderDepth rasterizes per-point depths as a single channel and
// alpha-normalizes the result.
func (a *Adapter) renderDepth(ctx context.Context, in *Input, depths []float32) ([]float32, error) {
	din := *in
	din.Channels = depths
	din.ChannelDim = 1
	din.Background = []float32{a.opts.DepthBackground}

	out, err := a.ras.Rasterize(ctx, &din)
	if err != nil {
		return nil, err
	}
	if err := din.checkOutput(out); err != nil {
		return nil, err
	}

	depth := out.Image
	maxDepth := vecmath.MaxOf(depth)
	for i := range depth {
		if out.Alpha[i] > 0 {
			depth[i] /= out.Alpha[i]
		} else {
			depth[i] = maxDepth
		}
	}
	return depth, nil
}

// RenderChannels rasterizes arbitrary per-point channels (one row of dim
// values per store row) against a zero background. Used to project the
// semantic hash features into screen space.
func (a *Adapter) RenderChannels(ctx context.Context, cam Camera, channels []float32, dim int) (*ChannelFrame, error) {
	indices := a.cropIndices()
	n := a.store.Len()
	if indices != nil {
		n = len(indices)
	}
	if n == 0 {
		return &ChannelFrame{
			Width:      cam.Width,
			Height:     cam.Height,
			ChannelDim: dim,
			Image:      make([]float32, cam.Width*cam.Height*dim),
			Alpha:      make([]float32, cam.Width*cam.Height),
		}, nil
	}

	in := a.prepare(cam, indices)
	in.ChannelDim = dim
	in.Background = make([]float32, dim)
	if indices == nil {
		in.Channels = channels
	} else {
		in.Channels = make([]float32, n*dim)
		for i, r := range indices {
			copy(in.Channels[i*dim:(i+1)*dim], channels[r*dim:(r+1)*dim])
		}
	}

	out, err := a.ras.Rasterize(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := in.checkOutput(out); err != nil {
		return nil, err
	}
	return &ChannelFrame{
		Width:      cam.Width,
		Height:     cam.Height,
		ChannelDim: dim,
		Image:      out.Image,
		Alpha:      out.Alpha,
	}, nil
}

func (a *Adapter) backgroundFrame(cam Camera, indices []int) *Frame {
	px := cam.Width * cam.Height
	frame := &Frame{
		Width:   cam.Width,
		Height:  cam.Height,
		Image:   make([]float32, px*3),
		Alpha:   make([]float32, px),
		Depth:   make([]float32, px),
		Indices: indices,
	}
	for i := range px {
		frame.Image[i*3+0] = a.opts.Background[0]
		frame.Image[i*3+1] = a.opts.Background[1]
		frame.Image[i*3+2] = a.opts.Background[2]
		frame.Depth[i] = a.opts.DepthBackground
	}
	return frame
}
