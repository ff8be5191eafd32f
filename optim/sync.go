package optim

import (
	"fmt"

	"github.com/splatgo/splatgo/gaussian"
)

// FillPolicy selects the initialization of moment-buffer rows created for
// freshly appended primitives.
type FillPolicy int

const (
	// FillZero initializes new moment rows to zero. Used for split and
	// duplicated primitives, which inherit well-optimized parents.
	FillZero FillPolicy = iota

	// FillAdapt initializes new moment rows to a small nonzero constant so
	// freshly observed primitives adapt faster than zero-momentum starts.
	FillAdapt
)

// adaptFill is the moment value assigned under FillAdapt.
const adaptFill = 0.4

func (p FillPolicy) value() float32 {
	if p == FillAdapt {
		return adaptFill
	}
	return 0
}

// ErrLengthMismatch indicates that an optimizer's moment buffers and the
// point store disagree on the population size. This is fatal: gradient
// state is misaligned with primitive rows.
type ErrLengthMismatch struct {
	Attribute gaussian.Attribute
	Store     int
	Optimizer int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("optimizer state misaligned for %s: store has %d rows, optimizer has %d", e.Attribute, e.Store, e.Optimizer)
}

// ErrUntracked indicates a synchronizer operation on an attribute with no
// registered optimizer.
type ErrUntracked struct {
	Attribute gaussian.Attribute
}

func (e *ErrUntracked) Error() string {
	return fmt.Sprintf("no optimizer tracked for %s", e.Attribute)
}

// Synchronizer mirrors every structural change of the point store into the
// moment buffers of each tracked per-attribute optimizer, so gradient state
// stays aligned index-for-index with the store.
//
// Both mutation paths validate all preconditions before touching either the
// store or any optimizer, so a failed call leaves no partial mutation
// behind.
type Synchronizer struct {
	store      *gaussian.Store
	optimizers map[gaussian.Attribute]*Adam
}

// NewSynchronizer creates a synchronizer over the given store.
func NewSynchronizer(store *gaussian.Store) *Synchronizer {
	return &Synchronizer{
		store:      store,
		optimizers: make(map[gaussian.Attribute]*Adam),
	}
}

// Track registers the optimizer responsible for one store attribute.
func (s *Synchronizer) Track(attr gaussian.Attribute, a *Adam) error {
	if want := s.store.Width(attr); a.Width() != want {
		return fmt.Errorf("optimizer width %d does not match %s width %d", a.Width(), attr, want)
	}
	s.optimizers[attr] = a
	return nil
}

// Optimizer returns the optimizer tracked for attr, or nil.
func (s *Synchronizer) Optimizer(attr gaussian.Attribute) *Adam {
	return s.optimizers[attr]
}

// Store returns the synchronized point store.
func (s *Synchronizer) Store() *gaussian.Store { return s.store }

// Check verifies that every tracked optimizer's moment buffers match the
// store population.
func (s *Synchronizer) Check() error {
	n := s.store.Len()
	for attr, a := range s.optimizers {
		if !a.Stepped() {
			return &ErrNotStepped{Attribute: attr.String()}
		}
		if rows := a.Rows(); rows != n {
			return &ErrLengthMismatch{Attribute: attr, Store: n, Optimizer: rows}
		}
	}
	return nil
}

// Append inserts rows at the end of the store and extends every tracked
// optimizer's moment buffers by the same number of rows, filled per policy.
// Returns the number of rows added.
func (s *Synchronizer) Append(rows gaussian.Rows, policy FillPolicy) (int, error) {
	if err := s.Check(); err != nil {
		return 0, err
	}

	added, err := s.store.Append(rows)
	if err != nil {
		return 0, err
	}
	if added == 0 {
		return 0, nil
	}

	fill := policy.value()
	for _, a := range s.optimizers {
		a.extendRows(added, fill)
	}
	return added, nil
}

// Compact removes all rows where keep is false from the store and
// boolean-indexes every tracked optimizer's moment buffers with the same
// mask. Returns the number of rows removed.
func (s *Synchronizer) Compact(keep []bool) (int, error) {
	if err := s.Check(); err != nil {
		return 0, err
	}

	removed, err := s.store.Compact(keep)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	for _, a := range s.optimizers {
		a.compactRows(keep)
	}
	return removed, nil
}

// ZeroMoments zeroes the moment buffers of the optimizer tracking attr,
// leaving every other optimizer untouched.
func (s *Synchronizer) ZeroMoments(attr gaussian.Attribute) error {
	a, ok := s.optimizers[attr]
	if !ok {
		return &ErrUntracked{Attribute: attr}
	}
	if !a.Stepped() {
		return &ErrNotStepped{Attribute: attr.String()}
	}
	a.ZeroMoments()
	return nil
}
