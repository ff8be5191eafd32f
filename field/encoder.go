// Package field implements the semantic feature field: a multi-resolution
// spatial-hash encoder over world positions and a scale-conditioned decoder
// from hash features to language embeddings. Field parameters live in their
// own tables, so the point population can grow and shrink without touching
// them.
package field

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
)

// Spatial hashing primes. The x coordinate is left unmixed.
const (
	hashPrimeY uint32 = 2654435761
	hashPrimeZ uint32 = 805459861
)

// EncoderOptions configures the multi-resolution hash grid.
type EncoderOptions struct {
	// Levels is the number of grid resolutions.
	Levels int

	// FeaturesPerLevel is the feature width stored per table entry. The
	// encoder output dimension is Levels*FeaturesPerLevel.
	FeaturesPerLevel int

	// MinRes and MaxRes bound the coarsest and finest grid resolutions;
	// intermediate levels are spaced geometrically.
	MinRes, MaxRes int

	// Log2HashmapSize sets each level's table to 1<<Log2HashmapSize entries.
	Log2HashmapSize int

	// Extent is the half width of the world-space cube mapped onto [0,1]^3.
	// Positions outside the cube clamp to its surface.
	Extent float32
}

// DefaultEncoderOptions returns the reference grid configuration.
func DefaultEncoderOptions() EncoderOptions {
	return EncoderOptions{
		Levels:           12,
		FeaturesPerLevel: 4,
		MinRes:           16,
		MaxRes:           512,
		Log2HashmapSize:  19,
		Extent:           1,
	}
}

// HashEncoder maps a world position to a concatenation of trilinearly
// interpolated per-level features.
type HashEncoder struct {
	opts        EncoderOptions
	tableSize   int
	resolutions []int
	tables      [][]float32 // one table per level, tableSize*FeaturesPerLevel
}

// NewHashEncoder builds the grid and initializes every table entry with
// uniform noise in [-1e-4, 1e-4].
func NewHashEncoder(rng *rand.Rand, optFns ...func(*EncoderOptions)) (*HashEncoder, error) {
	opts := DefaultEncoderOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Levels <= 0 || opts.FeaturesPerLevel <= 0 {
		return nil, fmt.Errorf("field: levels and features per level must be positive, got %d and %d", opts.Levels, opts.FeaturesPerLevel)
	}
	if opts.MinRes < 1 || opts.MaxRes < opts.MinRes {
		return nil, fmt.Errorf("field: invalid resolution range [%d, %d]", opts.MinRes, opts.MaxRes)
	}

	e := &HashEncoder{
		opts:        opts,
		tableSize:   1 << opts.Log2HashmapSize,
		resolutions: make([]int, opts.Levels),
		tables:      make([][]float32, opts.Levels),
	}

	growth := float32(1)
	if opts.Levels > 1 {
		growth = math32.Exp((math32.Log(float32(opts.MaxRes)) - math32.Log(float32(opts.MinRes))) / float32(opts.Levels-1))
	}
	res := float32(opts.MinRes)
	for l := range opts.Levels {
		e.resolutions[l] = int(res)
		res *= growth

		table := make([]float32, e.tableSize*opts.FeaturesPerLevel)
		for i := range table {
			table[i] = (rng.Float32()*2 - 1) * 1e-4
		}
		e.tables[l] = table
	}
	return e, nil
}

// Dim returns the encoder output dimension.
func (e *HashEncoder) Dim() int { return e.opts.Levels * e.opts.FeaturesPerLevel }

// Params returns the mutable per-level tables. Their shapes never depend on
// the point population.
func (e *HashEncoder) Params() [][]float32 { return e.tables }

func (e *HashEncoder) cellIndex(x, y, z uint32, res int) int {
	// Dense indexing when the level fits its table, spatial hashing above.
	stride := uint32(res) + 1
	if int(stride)*int(stride)*int(stride) <= e.tableSize {
		return int((x*stride+y)*stride + z)
	}
	return int((x ^ y*hashPrimeY ^ z*hashPrimeZ) % uint32(e.tableSize))
}

// Encode writes the feature for world position p (length 3) into dst
// (length Dim) and returns dst. Allocates when dst is nil.
func (e *HashEncoder) Encode(p []float32, dst []float32) []float32 {
	if dst == nil {
		dst = make([]float32, e.Dim())
	}

	// Map the extent cube onto the unit cube.
	var u [3]float32
	for a := range 3 {
		v := p[a]/(2*e.opts.Extent) + 0.5
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		u[a] = v
	}

	fpl := e.opts.FeaturesPerLevel
	for l, res := range e.resolutions {
		var cell [3]uint32
		var frac [3]float32
		for a := range 3 {
			scaled := u[a] * float32(res)
			c := math32.Floor(scaled)
			if c > float32(res)-1 {
				c = float32(res) - 1
			}
			cell[a] = uint32(c)
			frac[a] = scaled - c
		}

		out := dst[l*fpl : (l+1)*fpl]
		for i := range out {
			out[i] = 0
		}
		table := e.tables[l]
		for corner := range 8 {
			dx := uint32(corner & 1)
			dy := uint32(corner >> 1 & 1)
			dz := uint32(corner >> 2 & 1)

			w := float32(1)
			for a, d := range [3]uint32{dx, dy, dz} {
				if d == 1 {
					w *= frac[a]
				} else {
					w *= 1 - frac[a]
				}
			}
			if w == 0 {
				continue
			}
			base := e.cellIndex(cell[0]+dx, cell[1]+dy, cell[2]+dz, res) * fpl
			for i := range out {
				out[i] += w * table[base+i]
			}
		}
	}
	return dst
}

// EncodeBatch encodes n positions (flat n*3) into a flat n*Dim buffer.
func (e *HashEncoder) EncodeBatch(positions []float32) []float32 {
	n := len(positions) / 3
	out := make([]float32, n*e.Dim())
	for i := range n {
		e.Encode(positions[i*3:i*3+3], out[i*e.Dim():(i+1)*e.Dim()])
	}
	return out
}
