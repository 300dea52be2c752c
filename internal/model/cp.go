package model

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CP interval bounds and the no-state value of state functions.
const (
	IntervalMin = -1073741823
	IntervalMax = 1073741823
	NoState     = -1
)

// named is embedded by the CP reference objects.
type named struct {
	name string
}

func (n *named) Name() string { return n.name }

func (n *named) SetName(name string) { n.name = name }

// IntVar is an integer variable of the reference CP model.
type IntVar struct {
	named
	min, max int
}

// Domain returns the variable bounds.
func (v *IntVar) Domain() (int, int) { return v.min, v.max }

// IntervalVar is an interval variable.
type IntervalVar struct {
	named
	size     int
	optional bool
}

// Optional reports whether the interval may be absent.
func (v *IntervalVar) Optional() bool { return v.optional }

func (v *IntervalVar) String() string {
	return cpoName(v.name, "?")
}

// SequenceVar is an ordering of interval variables.
type SequenceVar struct {
	named
	intervals []*IntervalVar
}

// Intervals returns the sequenced intervals.
func (s *SequenceVar) Intervals() []*IntervalVar { return s.intervals }

// StateFunction is a CP state function.
type StateFunction struct {
	named
}

// CPConstraint is a constraint given in CPO expression syntax.
type CPConstraint struct {
	named
	expr string
}

func (c *CPConstraint) Kind() ConstraintKind { return KindLinear }

func (c *CPConstraint) String() string { return c.expr }

// CP is an in-memory constraint-programming model.
type CP struct {
	intVars   []*IntVar
	intervals []*IntervalVar
	sequences []*SequenceVar
	states    []*StateFunction
	cts       []*CPConstraint
	objective string
	maximize  bool

	timeLimit float64
}

// NewCP creates an empty model.
func NewCP() *CP {
	return &CP{timeLimit: DefaultTimeLimit}
}

// IntVar adds an integer variable with domain [min, max].
func (m *CP) IntVar(min, max int, name string) *IntVar {
	v := &IntVar{named: named{name}, min: min, max: max}
	m.intVars = append(m.intVars, v)
	return v
}

// IntervalVar adds an interval variable of fixed size.
func (m *CP) IntervalVar(size int, optional bool, name string) *IntervalVar {
	v := &IntervalVar{named: named{name}, size: size, optional: optional}
	m.intervals = append(m.intervals, v)
	return v
}

// SequenceVar adds a sequence over intervals.
func (m *CP) SequenceVar(intervals []*IntervalVar, name string) *SequenceVar {
	s := &SequenceVar{named: named{name}, intervals: intervals}
	m.sequences = append(m.sequences, s)
	return s
}

// StateFunction adds a state function.
func (m *CP) StateFunction(name string) *StateFunction {
	f := &StateFunction{named: named{name}}
	m.states = append(m.states, f)
	return f
}

// Add adds a constraint written in CPO syntax, for example "x + y <= 10".
func (m *CP) Add(expr, name string) *CPConstraint {
	c := &CPConstraint{named: named{name}, expr: expr}
	m.cts = append(m.cts, c)
	return c
}

// Minimize sets a minimization objective in CPO syntax.
func (m *CP) Minimize(expr string) {
	m.objective, m.maximize = expr, false
}

// Maximize sets a maximization objective in CPO syntax.
func (m *CP) Maximize(expr string) {
	m.objective, m.maximize = expr, true
}

func (m *CP) IntVars() []Object { return objects(m.intVars) }
func (m *CP) IntervalVars() []Object { return objects(m.intervals) }
func (m *CP) SequenceVars() []Object { return objects(m.sequences) }
func (m *CP) StateFunctions() []Object { return objects(m.states) }

// Constraints implements CPModel.
func (m *CP) Constraints() []Constraint {
	out := make([]Constraint, len(m.cts))
	for i, c := range m.cts {
		out[i] = c
	}
	return out
}

// TimeLimit implements Parameters.
func (m *CP) TimeLimit() (float64, bool) {
	return m.timeLimit, m.timeLimit == DefaultTimeLimit
}

// SetTimeLimit implements Parameters.
func (m *CP) SetTimeLimit(seconds float64) {
	m.timeLimit = seconds
}

// ExportModel writes the model in CPO format.
func (m *CP) ExportModel(path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, m.cpoText())
		return err
	})
}

func (m *CP) cpoText() string {
	var b strings.Builder
	b.WriteString("// CPO model generated by wmlbridge\n\n")

	for i, v := range m.intVars {
		fmt.Fprintf(&b, "%s = intVar(%d..%d);\n", cpoName(v.name, "_int"+strconv.Itoa(i)), v.min, v.max)
	}
	for i, v := range m.intervals {
		opt := ""
		if v.optional {
			opt = ", optional"
		}
		fmt.Fprintf(&b, "%s = intervalVar(size=%d%s);\n", cpoName(v.name, "_itv"+strconv.Itoa(i)), v.size, opt)
	}
	for i, s := range m.sequences {
		names := make([]string, len(s.intervals))
		for j, itv := range s.intervals {
			names[j] = cpoName(itv.name, "?")
		}
		fmt.Fprintf(&b, "%s = sequenceVar([%s]);\n", cpoName(s.name, "_seq"+strconv.Itoa(i)), strings.Join(names, ", "))
	}
	for i, f := range m.states {
		fmt.Fprintf(&b, "%s = stateFunction();\n", cpoName(f.name, "_sf"+strconv.Itoa(i)))
	}

	if len(m.cts) > 0 {
		b.WriteString("\n")
	}
	for _, c := range m.cts {
		if c.name != "" {
			fmt.Fprintf(&b, "%s = %s;\n", cpoName(c.name, ""), c.expr)
		} else {
			fmt.Fprintf(&b, "%s;\n", c.expr)
		}
	}

	if m.objective != "" {
		dir := "minimize"
		if m.maximize {
			dir = "maximize"
		}
		fmt.Fprintf(&b, "\n%s(%s);\n", dir, m.objective)
	}

	if limit, isDefault := m.TimeLimit(); !isDefault {
		fmt.Fprintf(&b, "\nparameters {\n  TimeLimit = %s;\n}\n", formatNum(limit))
	}
	return b.String()
}

// cpoName quotes identifiers that are not plain CPO identifiers.
func cpoName(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	for i, r := range name {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
		}
	}
	return name
}

func objects[T Object](in []T) []Object {
	out := make([]Object, len(in))
	for i, o := range in {
		out[i] = o
	}
	return out
}
