package relevancy

import (
	"context"
	"sort"

	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/internal/vecmath"
	"github.com/splatgo/splatgo/render"
)

// smoothNeighbors is the neighbor count for point-feature smoothing, the
// queried point included.
const smoothNeighbors = 4

// Encoder maps world positions to hash features. Satisfied by
// field.HashEncoder.
type Encoder interface {
	Encode(p []float32, dst []float32) []float32
	Dim() int
}

// PointScores scores every point of the store for positive phrase j at the
// cached best scale. Features are smoothed over each point's 3 nearest
// neighbors plus itself, weighted by a softmax over the group's activated
// opacities, before decoding.
func (e *Engine) PointScores(ctx context.Context, store *gaussian.Store, enc Encoder, j int) ([]float32, error) {
	res := e.Cached()
	if res == nil {
		return nil, ErrNoQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := smoothedFeatures(store, enc)
	emb := e.dec.DecodeBatch(features, []float32{res.BestScales[j]})
	return e.scorer.ScoreBatch(emb, j), nil
}

// Localize returns the store row and position of the point most relevant to
// positive phrase 0.
func (e *Engine) Localize(ctx context.Context, store *gaussian.Store, enc Encoder) (int, [3]float32, error) {
	scores, err := e.PointScores(ctx, store, enc, 0)
	if err != nil {
		return 0, [3]float32{}, err
	}
	if len(scores) == 0 {
		return 0, [3]float32{}, ErrEmptySelection
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	p := store.Position(best)
	return best, [3]float32{p[0], p[1], p[2]}, nil
}

// Selection is the outcome of a crop query: the points above threshold,
// their centroid, and the axis-aligned box enclosing them.
type Selection struct {
	Indices  []int
	Centroid [3]float32
	Box      render.CropBox
}

// CropToPhrase selects the points whose phrase-0 relevancy exceeds the
// threshold. An empty selection returns ErrEmptySelection rather than a
// degenerate box.
func (e *Engine) CropToPhrase(ctx context.Context, store *gaussian.Store, enc Encoder, threshold float32) (*Selection, error) {
	scores, err := e.PointScores(ctx, store, enc, 0)
	if err != nil {
		return nil, err
	}

	sel := &Selection{}
	for i, s := range scores {
		if s > threshold {
			sel.Indices = append(sel.Indices, i)
		}
	}
	if len(sel.Indices) == 0 {
		return nil, ErrEmptySelection
	}

	for a := range 3 {
		sel.Box.Min[a] = store.Position(sel.Indices[0])[a]
		sel.Box.Max[a] = sel.Box.Min[a]
	}
	for _, i := range sel.Indices {
		p := store.Position(i)
		for a := range 3 {
			sel.Centroid[a] += p[a]
			if p[a] < sel.Box.Min[a] {
				sel.Box.Min[a] = p[a]
			}
			if p[a] > sel.Box.Max[a] {
				sel.Box.Max[a] = p[a]
			}
		}
	}
	for a := range 3 {
		sel.Centroid[a] /= float32(len(sel.Indices))
	}
	return sel, nil
}

// smoothedFeatures returns one opacity-weighted neighborhood feature per
// store row (flat n*enc.Dim()). Neighborhoods are brute-force nearest
// neighbors; stores small enough to query interactively stay well inside
// quadratic range.
func smoothedFeatures(store *gaussian.Store, enc Encoder) []float32 {
	n := store.Len()
	dim := enc.Dim()
	out := make([]float32, n*dim)

	k := smoothNeighbors
	if n < k {
		k = n
	}

	feat := make([]float32, dim)
	dists := make([]float32, n)
	order := make([]int, n)
	weights := make([]float32, k)
	for i := range n {
		pi := store.Position(i)
		for j := range n {
			dists[j] = vecmath.SquaredL2(pi, store.Position(j))
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })

		group := order[:k]
		for gi, j := range group {
			weights[gi] = store.Opacity(j)
		}
		vecmath.SoftmaxInPlace(weights)

		row := out[i*dim : (i+1)*dim]
		for gi, j := range group {
			enc.Encode(store.Position(j), feat)
			vecmath.Axpy(row, weights[gi], feat)
		}
	}
	return out
}
