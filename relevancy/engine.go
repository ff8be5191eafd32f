package relevancy

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Decoder turns rasterized hash features into embeddings at a physical
// scale. Satisfied by field.Decoder.
type Decoder interface {
	DecodeBatch(features, scales []float32) []float32
	FeatureDim() int
	EmbeddingDim() int
}

// Options configures the ladder scan.
type Options struct {
	// LadderMin, LadderMax, LadderSteps define the evenly spaced scales
	// scanned per query.
	LadderMin   float32
	LadderMax   float32
	LadderSteps int

	// Parallelism bounds concurrent per-scale decodes. Zero means one
	// goroutine per scale.
	Parallelism int
}

// DefaultOptions returns the reference ladder: 30 scales over [0, 1.5].
func DefaultOptions() Options {
	return Options{LadderMin: 0, LadderMax: 1.5, LadderSteps: 30}
}

// Result is one completed ladder scan. Per phrase it carries the score
// image at the winning scale, the winning scale itself, and per-pixel
// best-score and best-scale maps across the whole ladder.
type Result struct {
	Width, Height int

	// BestScales[j] is the scale whose score image contains phrase j's
	// global maximum. Follow-on 3D queries decode at this scale.
	BestScales []float32

	// Sims[j] is the H*W score image rendered at BestScales[j].
	Sims [][]float32

	// PixelBest[j] and PixelScale[j] are the per-pixel maximum score over
	// the ladder and the scale attaining it.
	PixelBest  [][]float32
	PixelScale [][]float32
}

// NumPhrases returns the phrase count of the scan.
func (r *Result) NumPhrases() int { return len(r.BestScales) }

// Engine runs ladder scans and caches the latest result. The cache is
// read-only snapshot data; Invalidate drops it whenever the point
// population mutates underneath it.
type Engine struct {
	scorer *Scorer
	dec    Decoder
	opts   Options

	mu     sync.Mutex
	cached *Result
}

// NewEngine builds a query engine over the scorer and decoder.
func NewEngine(scorer *Scorer, dec Decoder, optFns ...func(*Options)) *Engine {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{scorer: scorer, dec: dec, opts: opts}
}

// Ladder returns the scales the engine scans.
func (e *Engine) Ladder() []float32 {
	return ScaleLadder(e.opts.LadderMin, e.opts.LadderMax, e.opts.LadderSteps)
}

// Cached returns the latest scan result, or nil when none is valid.
func (e *Engine) Cached() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cached
}

// Invalidate drops the cached result. Called after any structural mutation
// of the point population, since cached best scales were computed against
// the old geometry.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cached = nil
	e.mu.Unlock()
}

// MaxAcross scans the scale ladder over a rasterized feature image (flat
// H*W*FeatureDim) and caches the result. Scales decode in parallel; every
// goroutine only reads shared state, writing into its own slot.
func (e *Engine) MaxAcross(ctx context.Context, features []float32, width, height int) (*Result, error) {
	ladder := e.Ladder()
	px := width * height

	type scaleScores struct {
		sims [][]float32 // per phrase, length px
	}
	perScale := make([]scaleScores, len(ladder))

	g, ctx := errgroup.WithContext(ctx)
	if e.opts.Parallelism > 0 {
		g.SetLimit(e.opts.Parallelism)
	}
	for si, scale := range ladder {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			emb := e.dec.DecodeBatch(features, []float32{scale})
			sims := make([][]float32, e.scorer.NumPhrases())
			for j := range sims {
				sims[j] = e.scorer.ScoreBatch(emb, j)
			}
			perScale[si] = scaleScores{sims: sims}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Width:      width,
		Height:     height,
		BestScales: make([]float32, e.scorer.NumPhrases()),
		Sims:       make([][]float32, e.scorer.NumPhrases()),
		PixelBest:  make([][]float32, e.scorer.NumPhrases()),
		PixelScale: make([][]float32, e.scorer.NumPhrases()),
	}
	for j := range res.Sims {
		var bestMax float32
		bestIdx := -1
		pixelBest := make([]float32, px)
		pixelScale := make([]float32, px)
		for si := range ladder {
			sims := perScale[si].sims[j]
			var m float32
			for p, v := range sims {
				if v > m {
					m = v
				}
				if si == 0 || v > pixelBest[p] {
					pixelBest[p] = v
					pixelScale[p] = ladder[si]
				}
			}
			if bestIdx < 0 || m > bestMax {
				bestMax = m
				bestIdx = si
			}
		}
		res.BestScales[j] = ladder[bestIdx]
		res.Sims[j] = perScale[bestIdx].sims[j]
		res.PixelBest[j] = pixelBest
		res.PixelScale[j] = pixelScale
	}

	e.mu.Lock()
	e.cached = res
	e.mu.Unlock()
	return res, nil
}
