package render

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatgo/splatgo/gaussian"
)

// stubRasterizer records its inputs and returns shape-correct buffers. Points
// splat their channels uniformly so tests can see which points reached the
// kernel.
type stubRasterizer struct {
	calls  []*Input
	radius float32
}

func (s *stubRasterizer) Rasterize(_ context.Context, in *Input) (*Output, error) {
	s.calls = append(s.calls, in)

	n := in.NumPoints()
	px := in.Width * in.Height
	out := &Output{
		Image:    make([]float32, px*in.ChannelDim),
		Alpha:    make([]float32, px),
		ScreenXY: make([]float32, n*2),
		Depths:   make([]float32, n),
		Radii:    make([]float32, n),
	}
	r := s.radius
	if r == 0 {
		r = 1
	}
	for i := range n {
		out.Radii[i] = r
	}
	if s.radius < 0 {
		for i := range n {
			out.Radii[i] = 0
		}
		return out, nil
	}
	var mean []float32
	if n > 0 {
		mean = make([]float32, in.ChannelDim)
		for i := range n {
			for c := range in.ChannelDim {
				mean[c] += in.Channels[i*in.ChannelDim+c] / float32(n)
			}
		}
	}
	for p := range px {
		out.Alpha[p] = 1
		copy(out.Image[p*in.ChannelDim:], mean)
	}
	return out, nil
}

func testCamera() Camera {
	return Camera{
		CameraToWorld: Identity4(),
		FX:            8, FY: 8, CX: 4, CY: 4,
		Width: 8, Height: 8,
	}
}

func buildStore(t *testing.T, positions [][3]float32) *gaussian.Store {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	pts := make([]float32, 0, len(positions)*3)
	cols := make([]float32, 0, len(positions)*3)
	for _, p := range positions {
		pts = append(pts, p[0], p[1], p[2])
		cols = append(cols, 0.5, 0.5, 0.5)
	}
	store, err := gaussian.FromCloud(pts, cols, 16, rng)
	require.NoError(t, err)
	return store
}

func TestRenderPreparesActivatedInputs(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}, {1, 0, -3}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)

	frame, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Visible)

	// Color pass plus depth pass.
	require.Len(t, ras.calls, 2)
	in := ras.calls[0]
	assert.Equal(t, 2, in.NumPoints())
	assert.Equal(t, 3, in.ChannelDim)

	var dst [3]float32
	for i := range 2 {
		assert.InDeltaSlice(t, store.Scale(i, dst[:]), in.Scales[i*3:i*3+3], 1e-6)
		assert.InDelta(t, float64(store.Opacity(i)), float64(in.Opacities[i]), 1e-6)
	}
	// Rotations arrive unit length.
	for i := range 2 {
		q := in.Rotations[i*4 : i*4+4]
		norm := q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3]
		assert.InDelta(t, 1, float64(norm), 1e-5)
	}
}

func TestRenderColorsClamped(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)

	_, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)

	colors := ras.calls[0].Channels
	for _, c := range colors {
		assert.GreaterOrEqual(t, c, float32(0))
		assert.LessOrEqual(t, c, float32(1))
	}
}

func TestRenderEmptyStoreFallsBackToBackground(t *testing.T) {
	store, err := gaussian.NewStore(16)
	require.NoError(t, err)

	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras, func(o *Options) {
		o.Background = [3]float32{0.2, 0.4, 0.6}
	})

	frame, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	assert.Empty(t, ras.calls, "empty store must not reach the kernel")
	assert.Equal(t, 0, frame.Visible)
	assert.Equal(t, float32(0.2), frame.Image[0])
	assert.Equal(t, float32(0.4), frame.Image[1])
	assert.Equal(t, float32(0.6), frame.Image[2])
	assert.Equal(t, float32(10), frame.Depth[0])
}

func TestRenderNoVisiblePointsFallsBackToBackground(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}})
	ras := &stubRasterizer{radius: -1}
	adapter := NewAdapter(store, ras)

	frame, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Visible)
	// Per-point buffers still come back for the statistics path.
	assert.Len(t, frame.Radii, 1)
	assert.Len(t, frame.ScreenXY, 2)
	assert.Equal(t, float32(0), frame.Image[0])
}

func TestRenderDepthAlphaNormalized(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}, {0.5, 0, -2}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)

	frame, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	require.Len(t, frame.Depth, 64)

	// The stub composites with alpha 1, so depth equals the mean splat depth.
	depthIn := ras.calls[1]
	assert.Equal(t, 1, depthIn.ChannelDim)
	assert.Equal(t, []float32{10}, depthIn.Background)
}

func TestRenderCropFiltersPoints(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}, {5, 0, -2}, {0.1, 0, -2.5}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)

	adapter.SetCrop(CropBox{Min: [3]float32{-1, -1, -3}, Max: [3]float32{1, 1, -1}})
	require.True(t, adapter.CropActive())

	frame, err := adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, frame.Indices)
	assert.Equal(t, 2, ras.calls[0].NumPoints())

	adapter.ClearCrop()
	frame, err = adapter.Render(context.Background(), testCamera(), 0)
	require.NoError(t, err)
	assert.Nil(t, frame.Indices)
	assert.Equal(t, 3, ras.calls[2].NumPoints())
}

func TestRenderChannels(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}, {1, 0, -2}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)

	channels := []float32{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
	}
	cf, err := adapter.RenderChannels(context.Background(), testCamera(), channels, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cf.ChannelDim)
	assert.Len(t, cf.Image, 64*5)

	in := ras.calls[0]
	assert.Equal(t, channels, in.Channels)
	assert.Equal(t, make([]float32, 5), in.Background)
}

func TestRenderChannelsCropRemapsRows(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}, {9, 9, 9}})
	ras := &stubRasterizer{}
	adapter := NewAdapter(store, ras)
	adapter.SetCrop(CropBox{Min: [3]float32{-1, -1, -3}, Max: [3]float32{1, 1, -1}})

	channels := []float32{1, 2, 3, 4}
	_, err := adapter.RenderChannels(context.Background(), testCamera(), channels, 2)
	require.NoError(t, err)

	in := ras.calls[0]
	assert.Equal(t, 1, in.NumPoints())
	assert.Equal(t, []float32{1, 2}, in.Channels)
}

func TestRenderOutputShapeChecked(t *testing.T) {
	store := buildStore(t, [][3]float32{{0, 0, -2}})
	adapter := NewAdapter(store, badRasterizer{})

	_, err := adapter.Render(context.Background(), testCamera(), 0)
	assert.ErrorIs(t, err, ErrOutputShape)
}

type badRasterizer struct{}

func (badRasterizer) Rasterize(context.Context, *Input) (*Output, error) {
	return &Output{}, nil
}

func TestDownscaleRoundTrip(t *testing.T) {
	img := make([]float32, 8*8*3)
	for i := range img {
		img[i] = 0.25
	}
	out, w, h := Downscale(img, 8, 8, 2)
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	require.Len(t, out, 4*4*3)
	for _, v := range out {
		assert.InDelta(t, 0.25, float64(v), 0.01)
	}

	same, w, h := Downscale(img, 8, 8, 1)
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)
	assert.Equal(t, &img[0], &same[0])
}
