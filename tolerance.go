package coverage

import (
	"gonum.org/v1/gonum/floats/scalar"
)

// SpacingTolerance is the relative tolerance used when deciding whether a
// nominal and a computed resolution describe the same regular step.
const SpacingTolerance = 1.0e-3

// valueTolerance is used to match stored coordinate values.
const valueTolerance = 1.0e-6

// CloseEnough reports whether a and b agree within tol, relative to their
// magnitude or absolutely when either is near zero.
func CloseEnough(a, b, tol float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, tol, tol)
}

// SameValue reports whether two stored coordinate values are the same.
func SameValue(a, b float64) bool {
	return CloseEnough(a, b, valueTolerance)
}
