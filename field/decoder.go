package field

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
)

// DecoderOptions configures the feature-to-embedding network.
type DecoderOptions struct {
	// EmbeddingDim is the output embedding width.
	EmbeddingDim int

	// HiddenDim and HiddenLayers shape the ReLU trunk.
	HiddenDim    int
	HiddenLayers int
}

// DefaultDecoderOptions returns the reference decoder configuration.
func DefaultDecoderOptions() DecoderOptions {
	return DecoderOptions{
		EmbeddingDim: 512,
		HiddenDim:    64,
		HiddenLayers: 2,
	}
}

type layer struct {
	in, out int
	w       []float32 // out*in, row major
	b       []float32 // out
}

// Decoder maps (hash feature, physical scale) pairs to embeddings. The extra
// scale input conditions the embedding on the physical size of the queried
// region, so one field answers queries at every scale of the ladder.
type Decoder struct {
	opts       DecoderOptions
	featureDim int
	layers     []layer
}

// NewDecoder builds a decoder for features of width featureDim. The network
// input is featureDim+1 for the appended scale.
func NewDecoder(featureDim int, rng *rand.Rand, optFns ...func(*DecoderOptions)) (*Decoder, error) {
	opts := DefaultDecoderOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if featureDim <= 0 {
		return nil, fmt.Errorf("field: feature dimension must be positive, got %d", featureDim)
	}
	if opts.EmbeddingDim <= 0 || opts.HiddenDim <= 0 || opts.HiddenLayers < 0 {
		return nil, fmt.Errorf("field: invalid decoder shape %+v", opts)
	}

	d := &Decoder{opts: opts, featureDim: featureDim}
	in := featureDim + 1
	for range opts.HiddenLayers {
		d.layers = append(d.layers, newLayer(in, opts.HiddenDim, rng))
		in = opts.HiddenDim
	}
	d.layers = append(d.layers, newLayer(in, opts.EmbeddingDim, rng))
	return d, nil
}

func newLayer(in, out int, rng *rand.Rand) layer {
	// Kaiming-style uniform bound for the ReLU trunk.
	bound := math32.Sqrt(6 / float32(in))
	l := layer{in: in, out: out, w: make([]float32, out*in), b: make([]float32, out)}
	for i := range l.w {
		l.w[i] = (rng.Float32()*2 - 1) * bound
	}
	return l
}

// EmbeddingDim returns the output width.
func (d *Decoder) EmbeddingDim() int { return d.opts.EmbeddingDim }

// FeatureDim returns the expected hash-feature width.
func (d *Decoder) FeatureDim() int { return d.featureDim }

// Params returns the mutable weight and bias slices, layer by layer.
func (d *Decoder) Params() [][]float32 {
	out := make([][]float32, 0, len(d.layers)*2)
	for i := range d.layers {
		out = append(out, d.layers[i].w, d.layers[i].b)
	}
	return out
}

// Decode writes the embedding for one feature at one physical scale into
// dst (length EmbeddingDim) and returns dst. Allocates when dst is nil.
func (d *Decoder) Decode(feature []float32, scale float32, dst []float32) []float32 {
	if dst == nil {
		dst = make([]float32, d.opts.EmbeddingDim)
	}

	buf := make([]float32, d.featureDim+1)
	copy(buf, feature)
	buf[d.featureDim] = scale

	for i, l := range d.layers {
		next := make([]float32, l.out)
		for o := range l.out {
			sum := l.b[o]
			row := l.w[o*l.in : (o+1)*l.in]
			for j, v := range buf {
				sum += row[j] * v
			}
			if i < len(d.layers)-1 && sum < 0 {
				sum = 0 // ReLU on hidden layers only
			}
			next[o] = sum
		}
		buf = next
	}
	copy(dst, buf)
	return dst
}

// DecodeBatch decodes n features (flat n*FeatureDim) at per-row scales into
// a flat n*EmbeddingDim buffer. A single scale value broadcasts to all rows.
func (d *Decoder) DecodeBatch(features []float32, scales []float32) []float32 {
	n := len(features) / d.featureDim
	out := make([]float32, n*d.opts.EmbeddingDim)
	for i := range n {
		s := scales[0]
		if len(scales) > 1 {
			s = scales[i]
		}
		d.Decode(features[i*d.featureDim:(i+1)*d.featureDim], s, out[i*d.opts.EmbeddingDim:(i+1)*d.opts.EmbeddingDim])
	}
	return out
}
