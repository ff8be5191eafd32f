// Package gaussian implements the canonical point store for an anisotropic
// Gaussian scene representation.
//
// The store is columnar: every per-primitive attribute lives in its own
// contiguous []float32 slice, and all attribute columns always hold the same
// number of rows. The population only changes through Append (growth, split,
// duplicate) and Compact (cull); Compact preserves the relative order of
// surviving rows.
//
// Thread safety: the store is exclusively owned by a single training loop.
// Concurrent reads are safe only while no structural mutation is in flight.
package gaussian

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/splatgo/splatgo/internal/vecmath"
)

// Attribute identifies one per-primitive attribute column.
type Attribute int

const (
	// AttrPosition is the 3D world-space position.
	AttrPosition Attribute = iota
	// AttrLogScale is the per-axis scale, stored in log space.
	AttrLogScale
	// AttrRotation is the orientation quaternion (wxyz, not necessarily unit).
	AttrRotation
	// AttrOpacity is the opacity logit.
	AttrOpacity
	// AttrColor holds the spherical-harmonics color coefficients.
	AttrColor
)

// Attributes lists every column in store layout order.
var Attributes = []Attribute{AttrPosition, AttrLogScale, AttrRotation, AttrOpacity, AttrColor}

func (a Attribute) String() string {
	switch a {
	case AttrPosition:
		return "position"
	case AttrLogScale:
		return "log_scale"
	case AttrRotation:
		return "rotation"
	case AttrOpacity:
		return "opacity"
	case AttrColor:
		return "color"
	default:
		return fmt.Sprintf("attribute(%d)", int(a))
	}
}

var (
	// ErrInvalidCoeffs is returned when the configured number of color
	// coefficients is not positive.
	ErrInvalidCoeffs = errors.New("number of color coefficients must be positive")
)

// ErrRowShape indicates that an appended batch has a column whose length is
// not a multiple of the attribute width, or disagrees with the batch size.
type ErrRowShape struct {
	Attribute Attribute
	Want      int
	Got       int
}

func (e *ErrRowShape) Error() string {
	return fmt.Sprintf("row shape mismatch for %s: want %d values, got %d", e.Attribute, e.Want, e.Got)
}

// ErrMaskLength indicates a keep-mask whose length differs from the population.
type ErrMaskLength struct {
	Want int
	Got  int
}

func (e *ErrMaskLength) Error() string {
	return fmt.Sprintf("keep mask length mismatch: store has %d rows, mask has %d", e.Want, e.Got)
}

// Store is the variable-length table of per-primitive attributes.
type Store struct {
	numCoeffs int // spherical-harmonics bases per color channel
	n         int

	positions []float32 // n*3
	logScales []float32 // n*3
	rotations []float32 // n*4, wxyz
	opacities []float32 // n
	colors    []float32 // n*numCoeffs*3, coefficient-major per row
}

// NewStore creates an empty store with the given number of color
// coefficients per channel.
func NewStore(numCoeffs int) (*Store, error) {
	if numCoeffs <= 0 {
		return nil, ErrInvalidCoeffs
	}
	return &Store{numCoeffs: numCoeffs}, nil
}

// Len returns the current population size N.
func (s *Store) Len() int { return s.n }

// NumCoeffs returns the number of color coefficients per channel.
func (s *Store) NumCoeffs() int { return s.numCoeffs }

// Width returns the number of float32 values one row occupies in the given
// attribute column.
func (s *Store) Width(a Attribute) int {
	switch a {
	case AttrPosition, AttrLogScale:
		return 3
	case AttrRotation:
		return 4
	case AttrOpacity:
		return 1
	case AttrColor:
		return s.numCoeffs * 3
	default:
		return 0
	}
}

// Column returns the raw attribute column. The slice aliases internal
// memory and is invalidated by the next structural mutation.
func (s *Store) Column(a Attribute) []float32 {
	switch a {
	case AttrPosition:
		return s.positions
	case AttrLogScale:
		return s.logScales
	case AttrRotation:
		return s.rotations
	case AttrOpacity:
		return s.opacities
	case AttrColor:
		return s.colors
	default:
		return nil
	}
}

// Position returns row i of the position column. Aliases internal memory.
func (s *Store) Position(i int) []float32 { return s.positions[i*3 : i*3+3 : i*3+3] }

// LogScale returns row i of the log-scale column. Aliases internal memory.
func (s *Store) LogScale(i int) []float32 { return s.logScales[i*3 : i*3+3 : i*3+3] }

// Rotation returns row i of the rotation column as stored, which may not be
// normalized. Aliases internal memory.
func (s *Store) Rotation(i int) []float32 { return s.rotations[i*4 : i*4+4 : i*4+4] }

// OpacityLogit returns the stored opacity logit of row i.
func (s *Store) OpacityLogit(i int) float32 { return s.opacities[i] }

// Opacity returns the activated opacity sigmoid(logit) of row i.
func (s *Store) Opacity(i int) float32 { return vecmath.Sigmoid(s.opacities[i]) }

// Color returns all color coefficients of row i, coefficient-major.
// Aliases internal memory.
func (s *Store) Color(i int) []float32 {
	w := s.numCoeffs * 3
	return s.colors[i*w : i*w+w : i*w+w]
}

// DC returns the diffuse (zeroth) color coefficient of row i.
func (s *Store) DC(i int) []float32 { return s.Color(i)[:3] }

// Scale writes the activated per-axis scale exp(log_scale) of row i into dst
// (length 3) and returns it.
func (s *Store) Scale(i int, dst []float32) []float32 {
	ls := s.LogScale(i)
	for k := range 3 {
		dst[k] = math32.Exp(ls[k])
	}
	return dst[:3]
}

// MaxScale returns the largest activated scale axis of row i.
func (s *Store) MaxScale(i int) float32 {
	ls := s.LogScale(i)
	m := ls[0]
	if ls[1] > m {
		m = ls[1]
	}
	if ls[2] > m {
		m = ls[2]
	}
	return math32.Exp(m)
}

// NormalizedRotation writes the unit quaternion of row i into dst (length 4)
// and returns it. Rotations are renormalized on every geometric read.
func (s *Store) NormalizedRotation(i int, dst []float32) []float32 {
	copy(dst, s.Rotation(i))
	vecmath.Normalize(dst[:4], 1e-12)
	return dst[:4]
}

// Rows is a batch of primitives appended to the store in one operation.
// All columns must describe the same number of rows; zero-length batches
// are permitted.
type Rows struct {
	Positions     []float32 // k*3
	LogScales     []float32 // k*3
	Rotations     []float32 // k*4
	OpacityLogits []float32 // k
	Colors        []float32 // k*numCoeffs*3
}

// Len returns the number of rows in the batch, derived from the opacity
// column.
func (r *Rows) Len() int { return len(r.OpacityLogits) }

func (s *Store) validateRows(r Rows) error {
	k := r.Len()
	check := func(a Attribute, got int) error {
		if want := k * s.Width(a); got != want {
			return &ErrRowShape{Attribute: a, Want: want, Got: got}
		}
		return nil
	}
	if err := check(AttrPosition, len(r.Positions)); err != nil {
		return err
	}
	if err := check(AttrLogScale, len(r.LogScales)); err != nil {
		return err
	}
	if err := check(AttrRotation, len(r.Rotations)); err != nil {
		return err
	}
	if err := check(AttrColor, len(r.Colors)); err != nil {
		return err
	}
	return nil
}

// Append adds the batch at the end of every attribute column and returns the
// number of rows added. The relative order of existing rows is unchanged.
//
// Callers must mirror every successful Append into the optimizer state
// before the next gradient step; optim.Synchronizer wraps both.
func (s *Store) Append(r Rows) (int, error) {
	if err := s.validateRows(r); err != nil {
		return 0, err
	}
	k := r.Len()
	if k == 0 {
		return 0, nil
	}
	s.positions = append(s.positions, r.Positions...)
	s.logScales = append(s.logScales, r.LogScales...)
	s.rotations = append(s.rotations, r.Rotations...)
	s.opacities = append(s.opacities, r.OpacityLogits...)
	s.colors = append(s.colors, r.Colors...)
	s.n += k
	return k, nil
}

// Compact removes every row whose keep entry is false, preserving the
// relative order of survivors, and returns the number of rows removed.
func (s *Store) Compact(keep []bool) (int, error) {
	if len(keep) != s.n {
		return 0, &ErrMaskLength{Want: s.n, Got: len(keep)}
	}

	removed := 0
	for _, k := range keep {
		if !k {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	s.positions = compactColumn(s.positions, keep, 3)
	s.logScales = compactColumn(s.logScales, keep, 3)
	s.rotations = compactColumn(s.rotations, keep, 4)
	s.opacities = compactColumn(s.opacities, keep, 1)
	s.colors = compactColumn(s.colors, keep, s.numCoeffs*3)
	s.n -= removed
	return removed, nil
}

func compactColumn(col []float32, keep []bool, width int) []float32 {
	out := col[:0]
	for i, k := range keep {
		if !k {
			continue
		}
		out = append(out, col[i*width:(i+1)*width]...)
	}
	return out
}

// Resize sets the population to n rows, truncating or zero-extending every
// column. It exists for checkpoint loading, where the store must match the
// snapshot's declared row count before values are copied in.
func (s *Store) Resize(n int) {
	s.positions = resizeColumn(s.positions, n*3)
	s.logScales = resizeColumn(s.logScales, n*3)
	s.rotations = resizeColumn(s.rotations, n*4)
	s.opacities = resizeColumn(s.opacities, n)
	s.colors = resizeColumn(s.colors, n*s.numCoeffs*3)
	s.n = n
}

func resizeColumn(col []float32, size int) []float32 {
	if size <= cap(col) {
		col = col[:size]
		return col
	}
	out := make([]float32, size)
	copy(out, col)
	return out
}

// CopyRow appends a copy of row i to dst, growing each batch column.
func (s *Store) CopyRow(i int, dst *Rows) {
	dst.Positions = append(dst.Positions, s.Position(i)...)
	dst.LogScales = append(dst.LogScales, s.LogScale(i)...)
	dst.Rotations = append(dst.Rotations, s.Rotation(i)...)
	dst.OpacityLogits = append(dst.OpacityLogits, s.OpacityLogit(i))
	dst.Colors = append(dst.Colors, s.Color(i)...)
}
