package validation

import "math"

// Default numeric tolerance for money comparisons
const (
	DefaultAbsoluteTolerance = 0.01
	DefaultRelativeTolerance = 0.005
)

// Tolerance is the allowed difference between two amounts: the greater of a
// fixed epsilon and a fraction of the larger magnitude.
type Tolerance struct {
	Absolute float64
	Relative float64
}

// DefaultTolerance returns one cent or half a percent, whichever is larger
func DefaultTolerance() Tolerance {
	return Tolerance{
		Absolute: DefaultAbsoluteTolerance,
		Relative: DefaultRelativeTolerance,
	}
}

// Within reports whether a and b are equal for validation purposes
func (t Tolerance) Within(a, b float64) bool {
	limit := math.Max(t.Absolute, t.Relative*math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= limit
}
