package splatgo

import (
	"errors"
	"fmt"

	"github.com/splatgo/splatgo/blobstore"
	"github.com/splatgo/splatgo/optim"
	"github.com/splatgo/splatgo/relevancy"
	"github.com/splatgo/splatgo/resource"
)

var (
	// ErrNotFound is returned when a requested checkpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotSeeded is returned by operations that need a populated store.
	ErrNotSeeded = errors.New("model has no points")

	// ErrAlreadySeeded is returned when seeding a model that already holds
	// points or has started training.
	ErrAlreadySeeded = errors.New("model is already seeded")

	// ErrPopulationFull is returned when growth would exceed the population
	// cap under the Reject overflow policy.
	ErrPopulationFull = errors.New("population cap reached")

	// ErrOptimizerNotStepped is returned when a structural mutation runs
	// before every optimizer has taken at least one gradient step.
	ErrOptimizerNotStepped = errors.New("optimizer has no moment state yet")

	// ErrNoQuery is returned by follow-on relevancy operations before any
	// ladder scan has cached a result.
	ErrNoQuery = errors.New("no cached relevancy query")
)

// ErrMisaligned indicates that an optimizer's moment buffers disagree with
// the store population, which means a structural mutation bypassed the
// synchronizer.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrMisaligned struct {
	Attribute string
	Store     int
	Optimizer int
	cause     error
}

func (e *ErrMisaligned) Error() string {
	return fmt.Sprintf("optimizer misaligned for %s: store has %d rows, optimizer has %d", e.Attribute, e.Store, e.Optimizer)
}

func (e *ErrMisaligned) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var ns *optim.ErrNotStepped
	if errors.As(err, &ns) {
		return fmt.Errorf("%w: %w", ErrOptimizerNotStepped, err)
	}
	var lm *optim.ErrLengthMismatch
	if errors.As(err, &lm) {
		return &ErrMisaligned{
			Attribute: lm.Attribute.String(),
			Store:     lm.Store,
			Optimizer: lm.Optimizer,
			cause:     err,
		}
	}

	var pc *resource.ErrPopulationCap
	if errors.As(err, &pc) {
		return fmt.Errorf("%w: %w", ErrPopulationFull, err)
	}

	if errors.Is(err, relevancy.ErrNoQuery) {
		return fmt.Errorf("%w: %w", ErrNoQuery, err)
	}

	return err
}
