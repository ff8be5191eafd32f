// Package relevancy answers natural-language queries against the semantic
// feature field: it scores embeddings against positive phrases relative to
// canonical negatives, scans an evenly spaced ladder of physical scales, and
// caches the per-phrase best scale for follow-on 3D queries.
package relevancy

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/splatgo/splatgo/internal/vecmath"
)

var (
	// ErrNoPhrases is returned when a scorer is built without positives.
	ErrNoPhrases = errors.New("relevancy: no positive phrases")

	// ErrNoQuery is returned by follow-on queries before any ladder scan
	// has produced a cached result.
	ErrNoQuery = errors.New("relevancy: no cached query result")

	// ErrEmptySelection is returned when a crop threshold selects nothing.
	ErrEmptySelection = errors.New("relevancy: selection is empty")
)

// Temperature sharpens the pairwise positive-versus-negative softmax.
const Temperature = 10

// Scorer holds normalized phrase embeddings. The score of an embedding for
// a phrase is its worst-case pairwise softmax against the negatives: for
// each negative, softmax over (temp*pos_sim, temp*neg_sim) yields a
// positive probability, and the minimum over negatives is the score.
type Scorer struct {
	dim       int
	positives [][]float32
	negatives [][]float32
}

// NewScorer copies and L2-normalizes the phrase embeddings. All embeddings
// must share one dimension; at least one positive is required. With no
// negatives, scores degenerate to 1 for any embedding.
func NewScorer(positives, negatives [][]float32) (*Scorer, error) {
	if len(positives) == 0 {
		return nil, ErrNoPhrases
	}
	dim := len(positives[0])
	norm := func(src [][]float32, kind string) ([][]float32, error) {
		out := make([][]float32, len(src))
		for i, e := range src {
			if len(e) != dim {
				return nil, fmt.Errorf("relevancy: %s embedding %d has dimension %d, want %d", kind, i, len(e), dim)
			}
			c := make([]float32, dim)
			copy(c, e)
			vecmath.Normalize(c, 1e-6)
			out[i] = c
		}
		return out, nil
	}

	pos, err := norm(positives, "positive")
	if err != nil {
		return nil, err
	}
	neg, err := norm(negatives, "negative")
	if err != nil {
		return nil, err
	}
	return &Scorer{dim: dim, positives: pos, negatives: neg}, nil
}

// NumPhrases returns the number of positive phrases.
func (s *Scorer) NumPhrases() int { return len(s.positives) }

// Dim returns the embedding dimension.
func (s *Scorer) Dim() int { return s.dim }

// Score computes the relevancy of one embedding for positive phrase j. The
// embedding is normalized in place of a copy held by the caller.
func (s *Scorer) Score(embedding []float32, j int) float32 {
	e := make([]float32, s.dim)
	copy(e, embedding)
	vecmath.Normalize(e, 1e-6)

	posSim := vecmath.Dot(e, s.positives[j])
	if len(s.negatives) == 0 {
		return 1
	}

	best := float32(1)
	for _, n := range s.negatives {
		negSim := vecmath.Dot(e, n)
		// Two-way softmax positive probability.
		p := math32.Exp(Temperature * posSim)
		q := math32.Exp(Temperature * negSim)
		prob := p / (p + q)
		if prob < best {
			best = prob
		}
	}
	return best
}

// ScoreBatch scores n embeddings (flat n*Dim) for phrase j into a slice of
// n scores.
func (s *Scorer) ScoreBatch(embeddings []float32, j int) []float32 {
	n := len(embeddings) / s.dim
	out := make([]float32, n)
	for i := range n {
		out[i] = s.Score(embeddings[i*s.dim:(i+1)*s.dim], j)
	}
	return out
}

// ScaleLadder returns steps evenly spaced scales from min to max inclusive.
func ScaleLadder(min, max float32, steps int) []float32 {
	if steps <= 1 {
		return []float32{min}
	}
	out := make([]float32, steps)
	d := (max - min) / float32(steps-1)
	for i := range out {
		out[i] = min + float32(i)*d
	}
	return out
}
