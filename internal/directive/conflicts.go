package directive

import (
	"strings"

	"github.com/roach88/wmlbridge/internal/model"
)

type conflictGroup struct {
	preference  float64
	constraints []model.Constraint
}

// Conflicts is the set of constraints handed to the conflict refiner,
// grouped by preference.
type Conflicts struct {
	groups []*conflictGroup
	index  map[float64]int
}

// NewConflicts creates an empty set.
func NewConflicts() *Conflicts {
	return &Conflicts{index: make(map[float64]int)}
}

// Add puts c in the group for preference p. Logical and/or/not constraints
// are rejected.
func (s *Conflicts) Add(c model.Constraint, p float64) error {
	if c.Kind().Disjunctive() {
		return &UnsupportedConstraintError{Kind: c.Kind(), Constraint: c.String()}
	}
	i, ok := s.index[p]
	if !ok {
		i = len(s.groups)
		s.index[p] = i
		s.groups = append(s.groups, &conflictGroup{preference: p})
	}
	s.groups[i].constraints = append(s.groups[i].constraints, c)
	return nil
}

// Len returns the number of constraints in all groups.
func (s *Conflicts) Len() int {
	n := 0
	for _, g := range s.groups {
		n += len(g.constraints)
	}
	return n
}

// Encode renders the CPLEXRefineconflictext document, groups in the order
// their preference was first seen. It returns false when the set is empty.
func (s *Conflicts) Encode() ([]byte, bool, error) {
	if s.Len() == 0 {
		return nil, false, nil
	}
	var b strings.Builder
	b.WriteString("<CPLEXRefineconflictext resultNames='true'>")
	for _, g := range s.groups {
		b.WriteString("<group preference='")
		b.WriteString(formatPreference(g.preference))
		b.WriteString("'>")
		for _, c := range g.constraints {
			name, err := nameOf(c)
			if err != nil {
				return nil, false, err
			}
			b.WriteString("<con name='")
			b.WriteString(attrEscaper.Replace(name))
			b.WriteString("' type='")
			b.WriteString(c.Kind().String())
			b.WriteString("'/>")
		}
		b.WriteString("</group>")
	}
	b.WriteString("</CPLEXRefineconflictext>")
	return []byte(b.String()), true, nil
}
