package splatgo

import (
	"log/slog"

	"github.com/splatgo/splatgo/blobstore"
	"github.com/splatgo/splatgo/checkpoint"
	"github.com/splatgo/splatgo/field"
	"github.com/splatgo/splatgo/gaussian"
	"github.com/splatgo/splatgo/growth"
	"github.com/splatgo/splatgo/refine"
	"github.com/splatgo/splatgo/relevancy"
	"github.com/splatgo/splatgo/render"
	"github.com/splatgo/splatgo/resource"
	"github.com/splatgo/splatgo/sh"
)

type options struct {
	logger  *Logger
	metrics MetricsCollector

	blobs    blobstore.Store
	ckptOpts []func(*checkpoint.Options)

	seed      int64
	numCoeffs int

	learningRates map[gaussian.Attribute]float32

	refineOpts  []func(*refine.Options)
	renderOpts  []func(*render.Options)
	growthOpts  []func(*growth.Options)
	encoderOpts []func(*field.EncoderOptions)
	decoderOpts []func(*field.DecoderOptions)
	queryOpts   []func(*relevancy.Options)
	resourceCfg resource.Config
}

// Option configures Model constructor behavior.
type Option func(*options)

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithBlobStore configures where Save and Load put checkpoints.
// The default is an in-memory store.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.blobs = store
	}
}

// WithCheckpointCodec selects the snapshot compression codec.
func WithCheckpointCodec(c checkpoint.Codec) Option {
	return func(o *options) {
		o.ckptOpts = append(o.ckptOpts, func(co *checkpoint.Options) { co.Codec = c })
	}
}

// WithSeed sets the seed for all stochastic behavior (split sampling,
// random rotations, field initialization).
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithSHDegree sets the maximum spherical-harmonics degree for colors.
// The default is degree 3 (16 coefficients per channel).
func WithSHDegree(degree int) Option {
	return func(o *options) {
		o.numCoeffs = sh.NumBases(degree)
	}
}

// WithLearningRate overrides one attribute's optimizer learning rate.
func WithLearningRate(attr gaussian.Attribute, lr float32) Option {
	return func(o *options) {
		o.learningRates[attr] = lr
	}
}

// WithRefineOptions configures the density-control engine.
func WithRefineOptions(fns ...func(*refine.Options)) Option {
	return func(o *options) {
		o.refineOpts = append(o.refineOpts, fns...)
	}
}

// WithRenderOptions configures the projection adapter.
func WithRenderOptions(fns ...func(*render.Options)) Option {
	return func(o *options) {
		o.renderOpts = append(o.renderOpts, fns...)
	}
}

// WithGrowthOptions configures the incremental growth port.
func WithGrowthOptions(fns ...func(*growth.Options)) Option {
	return func(o *options) {
		o.growthOpts = append(o.growthOpts, fns...)
	}
}

// WithEncoderOptions configures the semantic field's hash grid.
func WithEncoderOptions(fns ...func(*field.EncoderOptions)) Option {
	return func(o *options) {
		o.encoderOpts = append(o.encoderOpts, fns...)
	}
}

// WithDecoderOptions configures the semantic field's embedding decoder.
func WithDecoderOptions(fns ...func(*field.DecoderOptions)) Option {
	return func(o *options) {
		o.decoderOpts = append(o.decoderOpts, fns...)
	}
}

// WithQueryOptions configures the relevancy scale ladder.
func WithQueryOptions(fns ...func(*relevancy.Options)) Option {
	return func(o *options) {
		o.queryOpts = append(o.queryOpts, fns...)
	}
}

// WithResourceConfig configures the population cap, growth rate limit and
// background-job budget.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceCfg = cfg
	}
}

// Reference per-attribute learning rates.
func defaultLearningRates() map[gaussian.Attribute]float32 {
	return map[gaussian.Attribute]float32{
		gaussian.AttrPosition: 1.6e-4,
		gaussian.AttrLogScale: 5e-3,
		gaussian.AttrRotation: 1e-3,
		gaussian.AttrOpacity:  5e-2,
		gaussian.AttrColor:    2.5e-3,
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:        NoopLogger(),
		metrics:       NoopMetricsCollector{},
		seed:          1,
		numCoeffs:     sh.NumBases(3),
		learningRates: defaultLearningRates(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.blobs == nil {
		o.blobs = blobstore.NewMemoryStore()
	}
	return o
}
