package relevancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScorerValidation(t *testing.T) {
	_, err := NewScorer(nil, nil)
	assert.ErrorIs(t, err, ErrNoPhrases)

	_, err = NewScorer([][]float32{{1, 0}}, [][]float32{{1, 0, 0}})
	assert.Error(t, err)
}

func TestScoreSeparatesPositiveAndNegative(t *testing.T) {
	s, err := NewScorer(
		[][]float32{{1, 0}},
		[][]float32{{0, 1}},
	)
	require.NoError(t, err)

	pos := s.Score([]float32{1, 0}, 0)
	neg := s.Score([]float32{0, 1}, 0)
	mid := s.Score([]float32{1, 1}, 0)

	assert.Greater(t, pos, float32(0.99))
	assert.Less(t, neg, float32(0.01))
	assert.InDelta(t, 0.5, float64(mid), 1e-5)
}

func TestScoreTakesWorstNegative(t *testing.T) {
	// The score is the minimum positive probability over all negatives, so
	// one close negative dominates any number of distant ones.
	s, err := NewScorer(
		[][]float32{{1, 0}},
		[][]float32{{0, 1}, {1, 0.1}},
	)
	require.NoError(t, err)

	got := s.Score([]float32{1, 0}, 0)

	only, err := NewScorer([][]float32{{1, 0}}, [][]float32{{1, 0.1}})
	require.NoError(t, err)
	want := only.Score([]float32{1, 0}, 0)

	assert.Equal(t, want, got)
	assert.Less(t, got, float32(0.9))
}

func TestScoreNoNegatives(t *testing.T) {
	s, err := NewScorer([][]float32{{1, 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1), s.Score([]float32{0, 1}, 0))
}

func TestScoreNormalizesInput(t *testing.T) {
	s, err := NewScorer([][]float32{{1, 0}}, [][]float32{{0, 1}})
	require.NoError(t, err)

	a := s.Score([]float32{2, 0.5}, 0)
	b := s.Score([]float32{4, 1}, 0)
	assert.InDelta(t, float64(a), float64(b), 1e-6)
}

func TestScoreBatch(t *testing.T) {
	s, err := NewScorer([][]float32{{1, 0}}, [][]float32{{0, 1}})
	require.NoError(t, err)

	got := s.ScoreBatch([]float32{1, 0, 0, 1}, 0)
	require.Len(t, got, 2)
	assert.Greater(t, got[0], got[1])
}

func TestScaleLadder(t *testing.T) {
	ladder := ScaleLadder(0, 1.5, 4)
	assert.InDeltaSlice(t, []float32{0, 0.5, 1.0, 1.5}, ladder, 1e-6)

	ladder = ScaleLadder(0, 1.5, 30)
	require.Len(t, ladder, 30)
	assert.Equal(t, float32(0), ladder[0])
	assert.InDelta(t, 1.5, float64(ladder[29]), 1e-6)

	assert.Equal(t, []float32{0.3}, ScaleLadder(0.3, 2, 1))
}
