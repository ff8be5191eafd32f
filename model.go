package splatgo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/splatgo/splatgo/blobstore"
	"github.com/splatgo/splatgo/checkpoint"
	"github.com/splatgo/splatgo/field"
	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/growth"
	"github.com/splatgo/splatgo/optim"
	"github.com/splatgo/splatgo/refine"
	"github.com/splatgo/splatgo/relevancy"
	"github.com/splatgo/splatgo/render"
	"github.com/splatgo/splatgo/resource"
)

// Model is the facade over the scene representation: the point store and its
// optimizers, the density-control engine, the growth port, the projection
// adapter, the semantic feature field and the relevancy query engine.
//
// Model methods are safe for use from a single training goroutine plus
// concurrent snapshot and query callers; structural mutations are
// serialized internally.
type Model struct {
	opts options
	rng  *rand.Rand

	store   *gaussian.Store
	sync    *optim.Synchronizer
	engine  *refine.Engine
	ctrl    *resource.Controller
	port    *growth.Port
	adapter *render.Adapter
	feat    *field.Field

	queries *relevancy.Engine

	mu sync.Mutex
}

// New creates a Model rendering through ras. The store starts empty; seed it
// with SeedFromCloud or SeedRandom, or restore a checkpoint with Load.
func New(ras render.Rasterizer, optFns ...Option) (*Model, error) {
	opts := applyOptions(optFns)

	store, err := gaussian.NewStore(opts.numCoeffs)
	if err != nil {
		return nil, err
	}

	m := &Model{
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.seed)),
		store: store,
		sync:  optim.NewSynchronizer(store),
		ctrl:  resource.NewController(opts.resourceCfg),
	}
	if err := m.trackOptimizers(); err != nil {
		return nil, err
	}

	m.engine = refine.NewEngine(m.sync, m.rng, opts.refineOpts...)
	m.port = growth.NewPort(m.sync, m.engine, m.ctrl, m.rng, opts.growthOpts...)
	m.adapter = render.NewAdapter(store, ras, opts.renderOpts...)

	m.feat, err = field.New(m.rng, opts.encoderOpts, opts.decoderOpts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) trackOptimizers() error {
	for _, attr := range gaussian.Attributes {
		lr := m.opts.learningRates[attr]
		a := optim.NewAdam(m.store.Width(attr), func(o *optim.Options) { o.LR = lr })
		if err := m.sync.Track(attr, a); err != nil {
			return err
		}
	}
	return nil
}

// Store exposes the point store for read access.
func (m *Model) Store() *gaussian.Store { return m.store }

// Field exposes the semantic feature field.
func (m *Model) Field() *field.Field { return m.feat }

// NumPoints returns the current population.
func (m *Model) NumPoints() int { return m.store.Len() }

// Step returns the current training step.
func (m *Model) Step() int { return m.engine.Step() }

// SeedFromCloud populates an empty store from a point cloud: flat n*3
// positions and n*3 colors in [0,1].
func (m *Model) SeedFromCloud(points, colors []float32) error {
	return m.seed(func() (*gaussian.Store, error) {
		return gaussian.FromCloud(points, colors, m.opts.numCoeffs, m.rng)
	})
}

// SeedRandom populates an empty store with n uniform points in a cube of
// the given half extent.
func (m *Model) SeedRandom(n int, extent float32) error {
	return m.seed(func() (*gaussian.Store, error) {
		return gaussian.Random(n, extent, m.opts.numCoeffs, m.rng)
	})
}

func (m *Model) seed(build func() (*gaussian.Store, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store.Len() > 0 {
		return ErrAlreadySeeded
	}
	seeded, err := build()
	if err != nil {
		return err
	}
	if _, err := m.store.Append(gaussian.Rows{
		Positions:     seeded.Column(gaussian.AttrPosition),
		LogScales:     seeded.Column(gaussian.AttrLogScale),
		Rotations:     seeded.Column(gaussian.AttrRotation),
		OpacityLogits: seeded.Column(gaussian.AttrOpacity),
		Colors:        seeded.Column(gaussian.AttrColor),
	}); err != nil {
		return err
	}
	m.opts.metrics.RecordPopulation(m.store.Len())
	m.opts.logger.LogGrowth(context.Background(), m.store.Len(), m.store.Len(), nil)
	return nil
}

// Render produces a color and depth frame for the camera at the current
// training step.
func (m *Model) Render(ctx context.Context, cam render.Camera) (*render.Frame, error) {
	start := time.Now()
	frame, err := m.adapter.Render(ctx, cam, m.engine.Step())
	m.opts.metrics.RecordRender(time.Since(start), err)
	return frame, err
}

// RecordFrame accumulates one rendered frame's screen-space gradient norms
// and radii into the densification statistics. Frames rendered with a crop
// active cover only a subset of the population and are skipped.
func (m *Model) RecordFrame(screenGrads, radii []float32, width, height int) error {
	if m.adapter.CropActive() {
		return nil
	}
	return m.engine.RecordFrame(screenGrads, radii, width, height)
}

// ApplyGradients runs one Adam step per supplied attribute. Gradient slices
// must match the attribute columns exactly.
func (m *Model) ApplyGradients(grads map[gaussian.Attribute][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, attr := range gaussian.Attributes {
		g, ok := grads[attr]
		if !ok {
			continue
		}
		if err := m.sync.Optimizer(attr).Step(m.store.Column(attr), g); err != nil {
			return translateError(err)
		}
	}
	return nil
}

// EndIteration advances the training cursor and, when a refinement pass is
// due, runs it. The returned report is zero when no pass ran.
func (m *Model) EndIteration(ctx context.Context) (refine.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.engine.Advance()
	if !m.engine.Due() {
		return refine.Report{}, nil
	}
	if err := ctx.Err(); err != nil {
		return refine.Report{}, err
	}

	start := time.Now()
	report, err := m.engine.Refine()
	err = translateError(err)
	m.opts.metrics.RecordRefine(report.Split, report.Duplicated, report.Culled, time.Since(start), err)
	m.opts.logger.LogRefine(ctx, m.engine.Step(), report.Split, report.Duplicated, report.Culled, m.store.Len(), err)
	if err != nil {
		return report, err
	}
	if report.Mutated() {
		m.invalidateQueries()
		m.opts.metrics.RecordPopulation(m.store.Len())
	}
	return report, nil
}

// AddPoints grows the population from deprojected world points and their
// colors (flat n*3 each; colors in [0,1] or [0,255]).
func (m *Model) AddPoints(ctx context.Context, points, colors []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	added, err := m.port.Add(ctx, points, colors)
	err = translateError(err)
	m.opts.metrics.RecordGrowth(added, time.Since(start), err)
	m.opts.logger.LogGrowth(ctx, added, m.store.Len(), err)
	if err != nil {
		return added, err
	}
	m.invalidateQueries()
	m.opts.metrics.RecordPopulation(m.store.Len())
	return added, nil
}

// SetPhrases installs the positive and negative phrase embeddings used by
// relevancy queries, replacing any previous set.
func (m *Model) SetPhrases(positives, negatives [][]float32) error {
	scorer, err := relevancy.NewScorer(positives, negatives)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.queries = relevancy.NewEngine(scorer, m.feat.Decoder(), m.opts.queryOpts...)
	m.mu.Unlock()
	return nil
}

func (m *Model) queryEngine() (*relevancy.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queries == nil {
		return nil, relevancy.ErrNoPhrases
	}
	return m.queries, nil
}

func (m *Model) invalidateQueries() {
	if m.queries != nil {
		m.queries.Invalidate()
	}
}

// MaxAcross rasterizes the field's hash features once for the camera and
// scans the scale ladder, returning per-phrase relevancy maps and best
// scales. The result stays cached until the population mutates.
func (m *Model) MaxAcross(ctx context.Context, cam render.Camera) (*relevancy.Result, error) {
	queries, err := m.queryEngine()
	if err != nil {
		return nil, err
	}
	if m.store.Len() == 0 {
		return nil, ErrNotSeeded
	}

	start := time.Now()
	features := m.featureChannels()
	cf, err := m.adapter.RenderChannels(ctx, cam, features, m.feat.FeatureDim())
	if err != nil {
		m.opts.metrics.RecordQuery(0, time.Since(start), err)
		return nil, err
	}

	res, err := queries.MaxAcross(ctx, cf.Image, cf.Width, cf.Height)
	phrases := 0
	if res != nil {
		phrases = res.NumPhrases()
	}
	m.opts.metrics.RecordQuery(phrases, time.Since(start), err)
	m.opts.logger.LogQuery(ctx, phrases, err)
	return res, err
}

func (m *Model) featureChannels() []float32 {
	return m.feat.Features(m.store.Column(gaussian.AttrPosition))
}

// Supervision is a per-pixel embedding target batch for the field loss.
type Supervision struct {
	Width, Height int
	Dim           int

	// Embeddings is H*W*Dim, decoded at per-pixel physical scales.
	Embeddings []float32

	// Scales is the H*W physical scale map derived from rendered depth.
	Scales []float32
}

// Supervise renders the field's features and depth for the camera and
// decodes per-pixel embeddings at depth-derived physical scales. It returns
// nil without error while supervision is gated off: after a growth event or
// inside the post-reset exclusion band.
func (m *Model) Supervise(ctx context.Context, cam render.Camera, baseScale float32) (*Supervision, error) {
	if !field.Supervised(m.engine.StepsSinceGrowth()) || !m.engine.StableWindow() {
		return nil, nil
	}
	if m.store.Len() == 0 {
		return nil, ErrNotSeeded
	}

	frame, err := m.Render(ctx, cam)
	if err != nil {
		return nil, err
	}
	scales := field.PixelScales(frame.Depth, baseScale, cam.Height, cam.FY)

	cf, err := m.adapter.RenderChannels(ctx, cam, m.featureChannels(), m.feat.FeatureDim())
	if err != nil {
		return nil, err
	}
	return &Supervision{
		Width:      cam.Width,
		Height:     cam.Height,
		Dim:        m.feat.EmbeddingDim(),
		Embeddings: m.feat.Embeddings(cf.Image, scales),
		Scales:     scales,
	}, nil
}

// CropToPhrase selects the points relevant to positive phrase 0 at the
// cached best scale and restricts rendering to their bounding box.
func (m *Model) CropToPhrase(ctx context.Context, threshold float32) (*relevancy.Selection, error) {
	queries, err := m.queryEngine()
	if err != nil {
		return nil, err
	}
	sel, err := queries.CropToPhrase(ctx, m.store, m.feat.Encoder(), threshold)
	if err != nil {
		return nil, translateError(err)
	}
	m.adapter.SetCrop(sel.Box)
	return sel, nil
}

// ClearCrop removes any active crop region.
func (m *Model) ClearCrop() { m.adapter.ClearCrop() }

// Localize returns the store row and position most relevant to positive
// phrase 0 at the cached best scale.
func (m *Model) Localize(ctx context.Context) (int, [3]float32, error) {
	queries, err := m.queryEngine()
	if err != nil {
		return 0, [3]float32{}, err
	}
	idx, pos, err := queries.Localize(ctx, m.store, m.feat.Encoder())
	return idx, pos, translateError(err)
}

// Save snapshots the store to the configured blob store under the canonical
// name for the current step, and returns that name. Concurrent saves are
// bounded by the resource controller's background-job budget.
func (m *Model) Save(ctx context.Context) (string, error) {
	if err := m.ctrl.AcquireBackground(ctx); err != nil {
		return "", err
	}
	defer m.ctrl.ReleaseBackground()

	name := checkpoint.Name(m.engine.Step())
	start := time.Now()

	m.mu.Lock()
	data, err := checkpoint.Encode(m.store, m.opts.ckptOpts...)
	m.mu.Unlock()
	if err != nil {
		m.opts.metrics.RecordSnapshot(0, time.Since(start), err)
		return "", err
	}

	err = m.opts.blobs.Put(ctx, name, data)
	m.opts.metrics.RecordSnapshot(len(data), time.Since(start), err)
	m.opts.logger.LogSnapshot(ctx, name, m.store.Len(), err)
	if err != nil {
		return "", err
	}
	return name, nil
}

// Load restores a snapshot into the store, resizing it to the snapshot's
// row count. Optimizer moments do not travel with snapshots; all optimizers
// restart unstepped, and cached query results are dropped.
func (m *Model) Load(ctx context.Context, name string) error {
	start := time.Now()
	data, err := m.opts.blobs.Get(ctx, name)
	if err != nil {
		err = translateError(err)
		m.opts.metrics.RecordSnapshot(0, time.Since(start), err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkpoint.Decode(data, m.store); err != nil {
		m.opts.metrics.RecordSnapshot(0, time.Since(start), err)
		return err
	}
	if err := m.trackOptimizers(); err != nil {
		return err
	}
	m.engine.ResetStats()
	m.invalidateQueries()
	m.opts.metrics.RecordSnapshot(len(data), time.Since(start), nil)
	m.opts.metrics.RecordPopulation(m.store.Len())
	m.opts.logger.LogSnapshot(ctx, name, m.store.Len(), nil)
	return nil
}

// Blobs exposes the configured checkpoint blob store.
func (m *Model) Blobs() blobstore.Store { return m.opts.blobs }
