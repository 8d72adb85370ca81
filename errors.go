// Package coverage models the coordinate systems of gridded geophysical datasets.
//
// A Dataset owns a set of coordinate axes, the coordinate systems built from
// them and the coverages (data variables) defined over those systems. Readers
// subset a coverage by physical coordinate (run date, valid time, level,
// ensemble member) and hand the resulting coordinate-set iterator to an
// external array reader.
package coverage

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrImmutable         = errors.New("object is immutable once wired")
	ErrMissingCoordSys   = errors.New("coordinate system not found")
	ErrMissingAxis       = errors.New("coordinate axis not found")
	ErrMissingDependency = errors.New("dependent axis names an axis outside its coordinate system")
	ErrInvalidAxis       = errors.New("invalid coordinate axis")
	ErrEmptySubset       = errors.New("subset selects no coordinates")
	ErrBadParam          = errors.New("invalid subset parameter")
	ErrNoRunDate         = errors.New("no run date for time coordinate")
	ErrNoReader          = errors.New("no reader attached")
)

// SubsetError reports why a subset request could not be satisfied. Callers
// usually turn it into a "no data for this request" response.
type SubsetError struct {
	Axis   string
	Reason string
	Err    error
}

func (e *SubsetError) Error() string {
	if e.Axis == "" {
		return fmt.Sprintf("subset: %s", e.Reason)
	}
	return fmt.Sprintf("subset %s: %s", e.Axis, e.Reason)
}

func (e *SubsetError) Unwrap() error {
	return e.Err
}

func emptySubset(axis, format string, args ...any) error {
	return &SubsetError{Axis: axis, Reason: fmt.Sprintf(format, args...), Err: ErrEmptySubset}
}

func badParam(axis, format string, args ...any) error {
	return &SubsetError{Axis: axis, Reason: fmt.Sprintf(format, args...), Err: ErrBadParam}
}
