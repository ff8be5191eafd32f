// Package testutil provides testing utilities for splatgo.
//
// This package is intended for use in tests and benchmarks only. It provides
// a seeded thread-safe RNG, synthetic point-cloud builders, and a scripted
// fake rasterizer implementing render.Rasterizer.
package testutil

import (
	"context"
	"math/rand"
	"sync"

	"github.com/splatgo/splatgo/render"
)

// RNG is a seeded, thread-safe random number generator.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates an RNG with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Rand returns an unsynchronized *rand.Rand seeded from this RNG, for APIs
// that take one directly.
func (r *RNG) Rand() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.New(rand.NewSource(r.rand.Int63()))
}

// Float32 returns a pseudo-random number in [0,1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills vec with uniform values in [lo, hi).
func (r *RNG) FillUniform(vec []float32, lo, hi float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range vec {
		vec[i] = lo + r.rand.Float32()*(hi-lo)
	}
}

// Cloud is a synthetic point cloud: flat n*3 positions and n*3 colors.
type Cloud struct {
	Positions []float32
	Colors    []float32
}

// Len returns the point count.
func (c Cloud) Len() int { return len(c.Positions) / 3 }

// UniformCloud builds n points uniform in a cube of the given half extent,
// with uniform [0,1] colors.
func UniformCloud(rng *RNG, n int, extent float32) Cloud {
	c := Cloud{
		Positions: make([]float32, n*3),
		Colors:    make([]float32, n*3),
	}
	rng.FillUniform(c.Positions, -extent, extent)
	rng.FillUniform(c.Colors, 0, 1)
	return c
}

// ClusteredCloud builds points grouped around the given centers, spread
// points per cluster, jittered by sigma. Useful for crop and relevancy
// tests that need separable geometry.
func ClusteredCloud(rng *RNG, centers [][3]float32, perCluster int, sigma float32) Cloud {
	n := len(centers) * perCluster
	c := Cloud{
		Positions: make([]float32, 0, n*3),
		Colors:    make([]float32, 0, n*3),
	}
	jitter := make([]float32, 3)
	for _, center := range centers {
		for range perCluster {
			rng.FillUniform(jitter, -sigma, sigma)
			c.Positions = append(c.Positions, center[0]+jitter[0], center[1]+jitter[1], center[2]+jitter[2])
			c.Colors = append(c.Colors, rng.Float32(), rng.Float32(), rng.Float32())
		}
	}
	return c
}

// FakeRasterizer implements render.Rasterizer deterministically: each point
// projects through the view and projection matrices and splats its channels
// onto its nearest pixel, nearer points on top. Per-point radii scale with
// the point's largest world-space extent over depth.
type FakeRasterizer struct {
	mu    sync.Mutex
	calls int
}

// Calls returns how many times Rasterize ran.
func (f *FakeRasterizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Rasterize implements render.Rasterizer.
func (f *FakeRasterizer) Rasterize(_ context.Context, in *render.Input) (*render.Output, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	n := in.NumPoints()
	px := in.Width * in.Height
	out := &render.Output{
		Image:    make([]float32, px*in.ChannelDim),
		Alpha:    make([]float32, px),
		ScreenXY: make([]float32, n*2),
		Depths:   make([]float32, n),
		Radii:    make([]float32, n),
	}
	for p := range px {
		copy(out.Image[p*in.ChannelDim:(p+1)*in.ChannelDim], in.Background)
	}

	// Nearest point wins each pixel.
	pixelDepth := make([]float32, px)
	for i := range n {
		wx := in.Positions[i*3]
		wy := in.Positions[i*3+1]
		wz := in.Positions[i*3+2]

		cx := in.View[0]*wx + in.View[1]*wy + in.View[2]*wz + in.View[3]
		cy := in.View[4]*wx + in.View[5]*wy + in.View[6]*wz + in.View[7]
		cz := in.View[8]*wx + in.View[9]*wy + in.View[10]*wz + in.View[11]
		out.Depths[i] = cz
		if cz <= 0 {
			continue // behind the camera
		}

		sx := in.FX*cx/cz + in.CX
		sy := in.FY*cy/cz + in.CY
		out.ScreenXY[i*2] = sx
		out.ScreenXY[i*2+1] = sy

		maxScale := in.Scales[i*3]
		for a := 1; a < 3; a++ {
			if in.Scales[i*3+a] > maxScale {
				maxScale = in.Scales[i*3+a]
			}
		}
		radius := in.FX * maxScale / cz
		if radius < 1 {
			radius = 1
		}

		ix, iy := int(sx), int(sy)
		if ix < 0 || ix >= in.Width || iy < 0 || iy >= in.Height {
			continue
		}
		out.Radii[i] = radius

		p := iy*in.Width + ix
		if out.Alpha[p] > 0 && pixelDepth[p] <= cz {
			continue
		}
		pixelDepth[p] = cz
		out.Alpha[p] = in.Opacities[i]
		copy(out.Image[p*in.ChannelDim:(p+1)*in.ChannelDim], in.Channels[i*in.ChannelDim:(i+1)*in.ChannelDim])
	}
	return out, nil
}
