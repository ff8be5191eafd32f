package field

import (
	"math/rand"
)

// SupervisionDelay is the number of steps after a growth event during which
// embedding supervision stays disabled; freshly grown regions render too
// unstably to supervise.
const SupervisionDelay = 500

// HuberDelta is the transition point of the embedding loss.
const HuberDelta = 1.25

// Field bundles the hash encoder and the scale-conditioned decoder.
type Field struct {
	enc *HashEncoder
	dec *Decoder
}

// New builds a field with freshly initialized parameters.
func New(rng *rand.Rand, encFns []func(*EncoderOptions), decFns []func(*DecoderOptions)) (*Field, error) {
	enc, err := NewHashEncoder(rng, encFns...)
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoder(enc.Dim(), rng, decFns...)
	if err != nil {
		return nil, err
	}
	return &Field{enc: enc, dec: dec}, nil
}

// Encoder returns the hash encoder.
func (f *Field) Encoder() *HashEncoder { return f.enc }

// Decoder returns the embedding decoder.
func (f *Field) Decoder() *Decoder { return f.dec }

// FeatureDim returns the hash-feature width fed through the rasterizer.
func (f *Field) FeatureDim() int { return f.enc.Dim() }

// EmbeddingDim returns the decoded embedding width.
func (f *Field) EmbeddingDim() int { return f.dec.EmbeddingDim() }

// Features encodes n world positions (flat n*3) to rasterizable per-point
// channels.
func (f *Field) Features(positions []float32) []float32 {
	return f.enc.EncodeBatch(positions)
}

// Embeddings decodes rasterized (or point) features at per-row physical
// scales. A single scale broadcasts.
func (f *Field) Embeddings(features []float32, scales []float32) []float32 {
	return f.dec.DecodeBatch(features, scales)
}

// Params returns every mutable parameter slice of the field. The shapes are
// fixed at construction and never depend on the point population.
func (f *Field) Params() [][]float32 {
	return append(f.enc.Params(), f.dec.Params()...)
}

// Supervised reports whether embedding supervision is active given the
// steps elapsed since the last growth event.
func Supervised(stepsSinceGrowth int) bool {
	return stepsSinceGrowth > SupervisionDelay
}

// PixelScales derives per-pixel physical scales from an alpha-normalized
// depth buffer: scale = base * height * depth / fy.
func PixelScales(depth []float32, base float32, height int, fy float32) []float32 {
	out := make([]float32, len(depth))
	k := base * float32(height) / fy
	for i, d := range depth {
		out[i] = k * d
	}
	return out
}

// HuberLoss is the elementwise Huber loss summed per row and averaged over
// rows. pred and target are flat n*dim buffers.
func HuberLoss(pred, target []float32, dim int, delta float32) float32 {
	if len(pred) == 0 || dim <= 0 {
		return 0
	}
	n := len(pred) / dim
	var total float32
	for i := range n {
		var row float32
		for j := range dim {
			d := pred[i*dim+j] - target[i*dim+j]
			if d < 0 {
				d = -d
			}
			if d <= delta {
				row += 0.5 * d * d
			} else {
				row += delta * (d - 0.5*delta)
			}
		}
		total += row
	}
	return total / float32(n)
}
