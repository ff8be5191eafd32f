package gaussian

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/chewxy/math32"

	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/sh"
)

// SeedOptions controls primitive initialization.
type SeedOptions struct {
	// InitOpacity is the activated opacity assigned to seeded primitives.
	InitOpacity float32

	// ScaleNeighbors is the number of nearest neighbors whose mean distance
	// seeds the per-point isotropic scale.
	ScaleNeighbors int
}

// DefaultSeedOptions returns the standard seeding parameters.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		InitOpacity:    0.1,
		ScaleNeighbors: 3,
	}
}

// FromCloud creates a store seeded from a point cloud. points is k*3
// world-space positions, colors is k*3 RGB in [0,1]. Each point receives an
// isotropic log-scale from its mean nearest-neighbor distance, a random unit
// rotation and a constant initial opacity.
func FromCloud(points, colors []float32, numCoeffs int, rng *rand.Rand, optFns ...func(*SeedOptions)) (*Store, error) {
	opts := DefaultSeedOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(points)%3 != 0 || len(colors) != len(points) {
		return nil, fmt.Errorf("seed cloud shape mismatch: %d position values, %d color values", len(points), len(colors))
	}

	s, err := NewStore(numCoeffs)
	if err != nil {
		return nil, err
	}

	k := len(points) / 3
	if k == 0 {
		return s, nil
	}

	rows := Rows{
		Positions:     append([]float32(nil), points...),
		LogScales:     make([]float32, k*3),
		Rotations:     make([]float32, k*4),
		OpacityLogits: make([]float32, k),
		Colors:        make([]float32, k*numCoeffs*3),
	}

	dists := meanNeighborDistances(points, k, opts.ScaleNeighbors)
	opacity := vecmath.Logit(opts.InitOpacity)
	for i := range k {
		ls := math32.Log(dists[i])
		rows.LogScales[i*3+0] = ls
		rows.LogScales[i*3+1] = ls
		rows.LogScales[i*3+2] = ls
		RandomQuat(rng, rows.Rotations[i*4:i*4+4])
		rows.OpacityLogits[i] = opacity
		sh.RGBToDC(colors[i*3:i*3+3], rows.Colors[i*numCoeffs*3:i*numCoeffs*3+3])
	}

	if _, err := s.Append(rows); err != nil {
		return nil, err
	}
	return s, nil
}

// Random creates a store of num primitives sampled uniformly in a cube of
// half-extent extent, with random colors. Used when no seed cloud exists.
func Random(num int, extent float32, numCoeffs int, rng *rand.Rand, optFns ...func(*SeedOptions)) (*Store, error) {
	points := make([]float32, num*3)
	colors := make([]float32, num*3)
	for i := range points {
		points[i] = (rng.Float32()*2 - 1) * extent
	}
	for i := range colors {
		colors[i] = rng.Float32()
	}
	return FromCloud(points, colors, numCoeffs, rng, optFns...)
}

// meanNeighborDistances returns, for each point, the mean distance to its k
// nearest neighbors (excluding itself). Degenerate clouds fall back to a
// small constant so log-scales stay finite.
func meanNeighborDistances(points []float32, n, k int) []float32 {
	const fallback = 1e-2

	out := make([]float32, n)
	if n == 1 || k <= 0 {
		for i := range out {
			out[i] = fallback
		}
		return out
	}

	d2 := make([]float32, 0, n-1)
	for i := range n {
		pi := points[i*3 : i*3+3]
		d2 = d2[:0]
		for j := range n {
			if j == i {
				continue
			}
			d2 = append(d2, vecmath.SquaredL2(pi, points[j*3:j*3+3]))
		}
		sort.Slice(d2, func(a, b int) bool { return d2[a] < d2[b] })

		kk := k
		if kk > len(d2) {
			kk = len(d2)
		}
		var sum float32
		for _, v := range d2[:kk] {
			sum += math32.Sqrt(v)
		}
		mean := sum / float32(kk)
		if mean <= 0 {
			mean = fallback
		}
		out[i] = mean
	}
	return out
}
