package model

import (
	"fmt"
	"math"
)

// Infinity is the bound used for unbounded sides.
var Infinity = math.Inf(1)

// Object is anything the bridge may need to name. The empty string is the
// null name.
type Object interface {
	Name() string
	SetName(name string)
}

// Variable is a numeric decision variable of an LP/MIP model.
type Variable interface {
	Object
	Bounds() (lb, ub float64)
}

// Range is a two-sided linear constraint lb <= expr <= ub. Either side may
// be infinite.
type Range interface {
	Constraint
	Bounds() (lb, ub float64)
}

// Constraint is any model constraint.
type Constraint interface {
	Object
	Kind() ConstraintKind
	String() string
}

// ConstraintKind classifies constraints for the conflict refiner.
type ConstraintKind int

const (
	KindLinear ConstraintKind = iota
	KindLowerBound
	KindUpperBound
	KindQuadratic
	KindIndicator
	KindSOS
	KindAnd
	KindOr
	KindNot
)

var kindNames = map[ConstraintKind]string{
	KindLinear:     "lin",
	KindLowerBound: "lb",
	KindUpperBound: "ub",
	KindQuadratic:  "quad",
	KindIndicator:  "ind",
	KindSOS:        "sos",
	KindAnd:        "and",
	KindOr:         "or",
	KindNot:        "not",
}

func (k ConstraintKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Disjunctive reports whether the kind is a logical combination of other
// constraints.
func (k ConstraintKind) Disjunctive() bool {
	return k == KindAnd || k == KindOr || k == KindNot
}

// Parameters expose the solver parameters the bridge adjusts.
type Parameters interface {
	// TimeLimit returns the time limit in seconds and whether it still has
	// its default value.
	TimeLimit() (seconds float64, isDefault bool)
	SetTimeLimit(seconds float64)
}

// LPModel is the LP/MIP modeling surface.
type LPModel interface {
	Parameters
	Variables() []Variable
	Ranges() []Range
	IsMIP() bool
	ExportModel(path string) error
	WriteParameters(path string) error
}

// MIPStartWriter is implemented by models that carry MIP starts. The
// returned flag is false when there was nothing to write.
type MIPStartWriter interface {
	WriteMIPStart(path string) (bool, error)
}

// FilterWriter is implemented by models that carry solution-pool filters.
type FilterWriter interface {
	WriteFilters(path string) error
}

// AnnotationWriter is implemented by models that carry annotations.
type AnnotationWriter interface {
	NumAnnotations() int
	WriteAnnotations(path string) error
}

// CPModel is the constraint-programming modeling surface.
type CPModel interface {
	Parameters
	IntVars() []Object
	IntervalVars() []Object
	SequenceVars() []Object
	StateFunctions() []Object
	Constraints() []Constraint
	ExportModel(path string) error
}
