package model

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultTimeLimit is the solver default time limit in seconds.
const DefaultTimeLimit = 1e75

// NumVar is a numeric variable of the reference LP model.
type NumVar struct {
	name    string
	lb, ub  float64
	integer bool
}

func (v *NumVar) Name() string { return v.name }
func (v *NumVar) SetName(name string) { v.name = name }
func (v *NumVar) Bounds() (float64, float64) { return v.lb, v.ub }

// Integer reports whether the variable is integral.
func (v *NumVar) Integer() bool { return v.integer }

// Term is coef * variable.
type Term struct {
	Coef float64
	Var  *NumVar
}

// Prod builds a term.
func Prod(coef float64, v *NumVar) Term {
	return Term{Coef: coef, Var: v}
}

// LinExpr is a sum of terms.
type LinExpr []Term

// Sum builds a linear expression.
func Sum(terms ...Term) LinExpr {
	return LinExpr(terms)
}

func (e LinExpr) write(b *strings.Builder) {
	for i, t := range e {
		coef := t.Coef
		switch {
		case i == 0 && coef < 0:
			b.WriteString("-")
			coef = -coef
		case i > 0 && coef < 0:
			b.WriteString(" - ")
			coef = -coef
		case i > 0:
			b.WriteString(" + ")
		}
		if coef != 1 {
			b.WriteString(formatNum(coef))
			b.WriteString(" ")
		}
		b.WriteString(varName(t.Var))
	}
	if len(e) == 0 {
		b.WriteString("0")
	}
}

func (e LinExpr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

// RangeConstraint is lb <= expr <= ub.
type RangeConstraint struct {
	name   string
	lb, ub float64
	expr   LinExpr
}

func (r *RangeConstraint) Name() string { return r.name }
func (r *RangeConstraint) SetName(name string) { r.name = name }
func (r *RangeConstraint) Bounds() (float64, float64) { return r.lb, r.ub }
func (r *RangeConstraint) Kind() ConstraintKind { return KindLinear }

// Expr returns the constrained expression.
func (r *RangeConstraint) Expr() LinExpr { return r.expr }

func (r *RangeConstraint) String() string {
	var b strings.Builder
	if r.name != "" {
		b.WriteString(r.name)
		b.WriteString(": ")
	}
	switch {
	case r.lb == r.ub:
		r.expr.write(&b)
		b.WriteString(" = " + formatNum(r.lb))
	case math.IsInf(r.lb, -1):
		r.expr.write(&b)
		b.WriteString(" <= " + formatNum(r.ub))
	case math.IsInf(r.ub, 1):
		r.expr.write(&b)
		b.WriteString(" >= " + formatNum(r.lb))
	default:
		b.WriteString(formatNum(r.lb) + " <= ")
		r.expr.write(&b)
		b.WriteString(" <= " + formatNum(r.ub))
	}
	return b.String()
}

// LogicalConstraint is a non-linear constraint of the reference model
// (indicator, SOS or a logical combination). It is carried by name only.
type LogicalConstraint struct {
	name string
	kind ConstraintKind
	desc string
}

// NewLogicalConstraint creates a constraint of the given kind.
func NewLogicalConstraint(kind ConstraintKind, desc, name string) *LogicalConstraint {
	return &LogicalConstraint{name: name, kind: kind, desc: desc}
}

func (c *LogicalConstraint) Name() string { return c.name }
func (c *LogicalConstraint) SetName(name string) { c.name = name }
func (c *LogicalConstraint) Kind() ConstraintKind { return c.kind }
func (c *LogicalConstraint) String() string { return c.desc }

// LP is an in-memory LP/MIP model.
type LP struct {
	vars     []*NumVar
	ranges   []*RangeConstraint
	others   []Constraint
	obj      LinExpr
	maximize bool

	timeLimit float64
}

// NewLP creates an empty model.
func NewLP() *LP {
	return &LP{timeLimit: DefaultTimeLimit}
}

// NumVar adds a continuous variable.
func (m *LP) NumVar(lb, ub float64, name string) *NumVar {
	v := &NumVar{name: name, lb: lb, ub: ub}
	m.vars = append(m.vars, v)
	return v
}

// IntVar adds an integer variable.
func (m *LP) IntVar(lb, ub float64, name string) *NumVar {
	v := &NumVar{name: name, lb: lb, ub: ub, integer: true}
	m.vars = append(m.vars, v)
	return v
}

// AddRange adds lb <= expr <= ub.
func (m *LP) AddRange(lb float64, expr LinExpr, ub float64, name string) *RangeConstraint {
	r := &RangeConstraint{name: name, lb: lb, ub: ub, expr: expr}
	m.ranges = append(m.ranges, r)
	return r
}

// AddLe adds expr <= rhs.
func (m *LP) AddLe(expr LinExpr, rhs float64, name string) *RangeConstraint {
	return m.AddRange(math.Inf(-1), expr, rhs, name)
}

// AddGe adds expr >= rhs.
func (m *LP) AddGe(expr LinExpr, rhs float64, name string) *RangeConstraint {
	return m.AddRange(rhs, expr, math.Inf(1), name)
}

// AddEq adds expr == rhs.
func (m *LP) AddEq(expr LinExpr, rhs float64, name string) *RangeConstraint {
	return m.AddRange(rhs, expr, rhs, name)
}

// Add registers a non-range constraint.
func (m *LP) Add(c Constraint) Constraint {
	m.others = append(m.others, c)
	return c
}

// Minimize sets a minimization objective.
func (m *LP) Minimize(expr LinExpr) {
	m.obj, m.maximize = expr, false
}

// Maximize sets a maximization objective.
func (m *LP) Maximize(expr LinExpr) {
	m.obj, m.maximize = expr, true
}

// Variables implements LPModel.
func (m *LP) Variables() []Variable {
	out := make([]Variable, len(m.vars))
	for i, v := range m.vars {
		out[i] = v
	}
	return out
}

// Ranges implements LPModel.
func (m *LP) Ranges() []Range {
	out := make([]Range, len(m.ranges))
	for i, r := range m.ranges {
		out[i] = r
	}
	return out
}

// Constraints returns ranges followed by the other constraints.
func (m *LP) Constraints() []Constraint {
	out := make([]Constraint, 0, len(m.ranges)+len(m.others))
	for _, r := range m.ranges {
		out = append(out, r)
	}
	return append(out, m.others...)
}

// IsMIP implements LPModel.
func (m *LP) IsMIP() bool {
	for _, v := range m.vars {
		if v.integer {
			return true
		}
	}
	for _, c := range m.others {
		if c.Kind() == KindSOS || c.Kind() == KindIndicator {
			return true
		}
	}
	return false
}

// TimeLimit implements Parameters.
func (m *LP) TimeLimit() (float64, bool) {
	return m.timeLimit, m.timeLimit == DefaultTimeLimit
}

// SetTimeLimit implements Parameters.
func (m *LP) SetTimeLimit(seconds float64) {
	m.timeLimit = seconds
}

// ExportModel writes the model in CPLEX LP format. Paths ending in ".gz"
// are gzip-compressed.
func (m *LP) ExportModel(path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, m.lpText())
		return err
	})
}

// WriteParameters writes a CPLEX parameter file.
func (m *LP) WriteParameters(path string) error {
	return writeFile(path, func(w io.Writer) error {
		var b strings.Builder
		b.WriteString("CPLEX Parameter File Version 22.1.0\n")
		if limit, isDefault := m.TimeLimit(); !isDefault {
			b.WriteString("CPXPARAM_TimeLimit                               " + formatNum(limit) + "\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func (m *LP) lpText() string {
	var b strings.Builder
	b.WriteString("\\Problem name: wmlbridge\n\n")
	if m.maximize {
		b.WriteString("Maximize\n")
	} else {
		b.WriteString("Minimize\n")
	}
	b.WriteString(" obj: ")
	m.obj.write(&b)
	b.WriteString("\nSubject To\n")

	var rangeVars []string
	for i, r := range m.ranges {
		name := r.name
		if name == "" {
			name = "c" + strconv.Itoa(i+1)
		}
		b.WriteString(" " + name + ": ")
		r.expr.write(&b)
		switch {
		case r.lb == r.ub:
			b.WriteString(" = " + formatNum(r.lb))
		case math.IsInf(r.lb, -1):
			b.WriteString(" <= " + formatNum(r.ub))
		case math.IsInf(r.ub, 1):
			b.WriteString(" >= " + formatNum(r.lb))
		default:
			rg := "Rg" + name
			b.WriteString(" - " + rg + " = " + formatNum(r.lb))
			rangeVars = append(rangeVars, fmt.Sprintf(" 0 <= %s <= %s\n", rg, formatNum(r.ub-r.lb)))
		}
		b.WriteString("\n")
	}

	b.WriteString("Bounds\n")
	for _, v := range m.vars {
		name := varName(v)
		switch {
		case math.IsInf(v.lb, -1) && math.IsInf(v.ub, 1):
			b.WriteString(" " + name + " Free\n")
		case math.IsInf(v.ub, 1):
			if v.lb != 0 {
				b.WriteString(" " + name + " >= " + formatNum(v.lb) + "\n")
			}
		case math.IsInf(v.lb, -1):
			b.WriteString(" -inf <= " + name + " <= " + formatNum(v.ub) + "\n")
		default:
			b.WriteString(" " + formatNum(v.lb) + " <= " + name + " <= " + formatNum(v.ub) + "\n")
		}
	}
	for _, rv := range rangeVars {
		b.WriteString(rv)
	}

	var ints []string
	for _, v := range m.vars {
		if v.integer {
			ints = append(ints, varName(v))
		}
	}
	if len(ints) > 0 {
		b.WriteString("Generals\n " + strings.Join(ints, " ") + "\n")
	}
	b.WriteString("End\n")
	return b.String()
}

func varName(v *NumVar) string {
	if v == nil {
		return "?"
	}
	if v.name == "" {
		return fmt.Sprintf("x%p", v)
	}
	return v.name
}

func formatNum(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := fn(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
