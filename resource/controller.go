// Package resource enforces population and concurrency limits around the
// point store. The core algorithms place no ceiling on growth; the
// controller layers a configurable cap with an explicit overflow policy on
// top, plus admission rate limiting for incremental growth and a semaphore
// for background jobs such as snapshot uploads.
package resource

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// OverflowPolicy decides what happens when admitting growth would exceed
// the population cap.
type OverflowPolicy int

const (
	// Reject refuses the growth batch outright.
	Reject OverflowPolicy = iota
	// ForceCull admits the batch and reports how much headroom the caller
	// must reclaim by extra culling.
	ForceCull
)

// Config holds resource limits.
type Config struct {
	// MaxPopulation is the hard primitive-count ceiling. 0 disables the cap.
	MaxPopulation int

	// Policy selects the overflow behavior when the cap would be exceeded.
	Policy OverflowPolicy

	// GrowthPerSec limits admitted growth points per second. 0 is unlimited.
	GrowthPerSec float64

	// MaxBackgroundJobs is the maximum number of concurrent background jobs.
	// If 0, defaults to 1.
	MaxBackgroundJobs int64
}

// ErrPopulationCap is returned under the Reject policy when a growth batch
// would push the population past the cap.
type ErrPopulationCap struct {
	Cap       int
	Current   int
	Requested int
}

func (e *ErrPopulationCap) Error() string {
	return fmt.Sprintf("population cap exceeded: cap %d, current %d, requested %d", e.Cap, e.Current, e.Requested)
}

// Admission is the result of a growth admission check.
type Admission struct {
	// CullHeadroom is the number of rows the caller must reclaim to respect
	// the cap; nonzero only under the ForceCull policy.
	CullHeadroom int
}

// Controller manages population and concurrency limits.
type Controller struct {
	cfg Config

	growthLimiter *rate.Limiter // nil if unlimited
	bgSem         *semaphore.Weighted
}

// NewController creates a resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundJobs <= 0 {
		cfg.MaxBackgroundJobs = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundJobs),
	}
	if cfg.GrowthPerSec > 0 {
		c.growthLimiter = rate.NewLimiter(rate.Limit(cfg.GrowthPerSec), int(cfg.GrowthPerSec))
	}
	return c
}

// Admit checks whether n new primitives may join a population of current
// rows. It blocks on the growth rate limiter when one is configured. Under
// Reject it returns ErrPopulationCap when the cap would be exceeded; under
// ForceCull it admits and reports the required cull headroom.
func (c *Controller) Admit(ctx context.Context, n, current int) (Admission, error) {
	if c == nil {
		return Admission{}, nil
	}
	if n <= 0 {
		return Admission{}, nil
	}

	if c.growthLimiter != nil {
		if err := c.growthLimiter.WaitN(ctx, n); err != nil {
			return Admission{}, err
		}
	}

	if c.cfg.MaxPopulation <= 0 || current+n <= c.cfg.MaxPopulation {
		return Admission{}, nil
	}

	switch c.cfg.Policy {
	case ForceCull:
		return Admission{CullHeadroom: current + n - c.cfg.MaxPopulation}, nil
	default:
		return Admission{}, &ErrPopulationCap{
			Cap:       c.cfg.MaxPopulation,
			Current:   current,
			Requested: n,
		}
	}
}

// AcquireBackground reserves a background job slot, blocking while all
// slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background job slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background job slot.
func (c *Controller) ReleaseBackground() {
	c.bgSem.Release(1)
}
