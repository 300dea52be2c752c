// Package directive encodes feasibility-relaxation and conflict-refinement
// requests as the XML documents the remote CPLEX worker reads next to the
// model.
//
// Both sets are built up front by the caller and encoded once. An empty set
// produces no document, and callers then send no attachment at all.
package directive

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/wmlbridge/internal/model"
)

// MissingNameError is returned by Encode when an object has the null name.
type MissingNameError struct {
	Object string
}

func (e *MissingNameError) Error() string {
	return fmt.Sprintf("missing name for %s", e.Object)
}

// UnsupportedConstraintError is returned when a constraint kind cannot be
// sent to the remote conflict refiner or relaxer.
type UnsupportedConstraintError struct {
	Kind       model.ConstraintKind
	Constraint string
}

func (e *UnsupportedConstraintError) Error() string {
	return fmt.Sprintf("constraint type %s is not supported remotely: %s", e.Kind, e.Constraint)
}

// IsMissingName reports whether err is a MissingNameError.
func IsMissingName(err error) bool {
	var me *MissingNameError
	return errors.As(err, &me)
}

// IsUnsupportedConstraint reports whether err is an
// UnsupportedConstraintError.
func IsUnsupportedConstraint(err error) bool {
	var ue *UnsupportedConstraintError
	return errors.As(err, &ue)
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func formatPreference(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}

func nameOf(obj model.Object) (string, error) {
	name := obj.Name()
	if name == "" {
		return "", &MissingNameError{Object: describe(obj)}
	}
	return name, nil
}

func describe(obj model.Object) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", obj)
}

func infinite(v float64) bool {
	return math.IsInf(v, 0) || math.Abs(v) >= math.MaxFloat64
}
