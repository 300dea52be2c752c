package directive

import (
	"strings"

	"github.com/roach88/wmlbridge/internal/model"
)

type relaxation struct {
	obj        model.Object
	preference float64
}

// Relaxations is the set of constraints and bounds the feasopt run may
// relax, with their preferences.
type Relaxations struct {
	rhs []relaxation
	rng []relaxation
	lb  []relaxation
	ub  []relaxation
}

// NewRelaxations creates an empty set.
func NewRelaxations() *Relaxations {
	return &Relaxations{}
}

// AddRange relaxes r with preference p. A range with one infinite side is a
// right-hand-side relaxation, otherwise a range relaxation.
func (s *Relaxations) AddRange(r model.Range, p float64) {
	lb, ub := r.Bounds()
	if infinite(lb) || infinite(ub) {
		s.rhs = append(s.rhs, relaxation{obj: r, preference: p})
		return
	}
	s.rng = append(s.rng, relaxation{obj: r, preference: p})
}

// AddBounds relaxes the lower and upper bound of obj, a variable or a
// range, with the given preferences.
func (s *Relaxations) AddBounds(obj model.Object, lb, ub float64) {
	s.lb = append(s.lb, relaxation{obj: obj, preference: lb})
	s.ub = append(s.ub, relaxation{obj: obj, preference: ub})
}

// Len returns the number of relaxation entries.
func (s *Relaxations) Len() int {
	return len(s.rhs) + len(s.rng) + len(s.lb) + len(s.ub)
}

// Encode renders the CPLEXFeasopt document. It returns false when the set
// is empty.
func (s *Relaxations) Encode() ([]byte, bool, error) {
	if s.Len() == 0 {
		return nil, false, nil
	}
	var b strings.Builder
	b.WriteString("<CPLEXFeasopt infeasibilityFile='true' resultNames='true'>")
	for _, g := range []struct {
		tag   string
		elems []relaxation
	}{
		{"rhs", s.rhs},
		{"rng", s.rng},
		{"lb", s.lb},
		{"ub", s.ub},
	} {
		if len(g.elems) == 0 {
			continue
		}
		b.WriteString("<" + g.tag + ">")
		for _, e := range g.elems {
			name, err := nameOf(e.obj)
			if err != nil {
				return nil, false, err
			}
			b.WriteString("<relax name='")
			b.WriteString(attrEscaper.Replace(name))
			b.WriteString("' preference='")
			b.WriteString(formatPreference(e.preference))
			b.WriteString("'/>")
		}
		b.WriteString("</" + g.tag + ">")
	}
	b.WriteString("</CPLEXFeasopt>")
	return []byte(b.String()), true, nil
}
