package solution

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/ianaindex"
)

// XMLSolution is the first solution of a CPLEX XML solution file.
type XMLSolution struct {
	// Feasible is set once a CPLEXSolution element has been read.
	Feasible bool

	Objective      float64
	Status         int
	PrimalFeasible bool
	DualFeasible   bool

	Values       map[string]float64
	ReducedCosts map[string]float64
	Duals        map[string]float64
	Slacks       map[string]float64
}

func newXMLSolution() *XMLSolution {
	return &XMLSolution{
		Values:       make(map[string]float64),
		ReducedCosts: make(map[string]float64),
		Duals:        make(map[string]float64),
		Slacks:       make(map[string]float64),
	}
}

type xmlState int

const (
	xmlInitial xmlState = iota
	xmlSolution
	xmlHeader
	xmlQuality
	xmlVariables
	xmlConstraints
	xmlUnknown
	xmlFinished
)

var xmlStateNames = [...]string{
	xmlInitial:     "initial",
	xmlSolution:    "solution",
	xmlHeader:      "header",
	xmlQuality:     "quality",
	xmlVariables:   "variables",
	xmlConstraints: "linearConstraints",
	xmlUnknown:     "unknown",
	xmlFinished:    "finished",
}

func (s xmlState) String() string {
	return xmlStateNames[s]
}

// DecodeXML reads the first CPLEXSolution element from r. Variables are
// kept when vars accepts their name, linear and indicator constraints when
// cons does. A nil filter accepts nothing.
func DecodeXML(r io.Reader, vars, cons NameFilter) (*XMLSolution, error) {
	if vars == nil {
		vars = none
	}
	if cons == nil {
		cons = none
	}

	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader

	p := &xmlParser{sol: newXMLSolution(), vars: vars, cons: cons}
	for p.state != xmlFinished {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, malformed("document ended in state %s", p.state)
		}
		if err != nil {
			return nil, &MalformedError{Detail: "invalid XML", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			err = p.start(t)
		case xml.EndElement:
			err = p.end(t.Name.Local)
		}
		if err != nil {
			return nil, err
		}
	}
	return p.sol, nil
}

func none(string) bool { return false }

type xmlParser struct {
	state   xmlState
	unknown []string
	sol     *XMLSolution
	vars    NameFilter
	cons    NameFilter
}

func (p *xmlParser) start(el xml.StartElement) error {
	name := el.Name.Local
	switch p.state {
	case xmlInitial:
		if name != "CPLEXSolution" {
			return malformed("root element <%s>, want <CPLEXSolution>", name)
		}
		p.state = xmlSolution
		p.sol.Feasible = true
	case xmlHeader, xmlQuality:
		return malformed("unexpected <%s> in <%s>", name, p.state)
	case xmlSolution:
		switch name {
		case "header":
			p.state = xmlHeader
			return p.header(el)
		case "quality":
			p.state = xmlQuality
		case "variables":
			p.state = xmlVariables
		case "linearConstraints", "indicatorConstraints":
			p.state = xmlConstraints
		default:
			p.state = xmlUnknown
			p.unknown = append(p.unknown, name)
		}
	case xmlVariables:
		if name != "variable" {
			return malformed("unexpected <%s> in <variables>", name)
		}
		return p.variable(el)
	case xmlConstraints:
		return p.constraint(el)
	case xmlUnknown:
		p.unknown = append(p.unknown, name)
	}
	return nil
}

func (p *xmlParser) end(name string) error {
	switch p.state {
	case xmlSolution:
		if name != "CPLEXSolution" {
			return malformed("unexpected </%s> in <CPLEXSolution>", name)
		}
		p.state = xmlFinished
	case xmlHeader, xmlQuality:
		if name != p.state.String() {
			return malformed("<%s> closed by </%s>", p.state, name)
		}
		p.state = xmlSolution
	case xmlVariables:
		switch name {
		case "variable":
		case "variables":
			p.state = xmlSolution
		default:
			return malformed("<variables> closed by </%s>", name)
		}
	case xmlConstraints:
		switch name {
		case "constraint":
		case "linearConstraints", "indicatorConstraints":
			p.state = xmlSolution
		default:
			return malformed("<linearConstraints> closed by </%s>", name)
		}
	case xmlUnknown:
		n := len(p.unknown)
		if n == 0 || p.unknown[n-1] != name {
			return malformed("unexpected </%s> in unknown section", name)
		}
		p.unknown = p.unknown[:n-1]
		if len(p.unknown) == 0 {
			p.state = xmlSolution
		}
	default:
		return malformed("unexpected </%s> in state %s", name, p.state)
	}
	return nil
}

func (p *xmlParser) header(el xml.StartElement) error {
	a := attrs(el)
	obj, ok := a["objectiveValue"]
	if !ok {
		return malformed("no objective for solution")
	}
	var err error
	if p.sol.Objective, err = parseFloat("objectiveValue", obj); err != nil {
		return err
	}
	status, ok := a["solutionStatusValue"]
	if !ok {
		return malformed("no solution status for solution")
	}
	if p.sol.Status, err = parseInt("solutionStatusValue", status); err != nil {
		return err
	}
	if p.sol.PrimalFeasible, err = parseFlag(a, "primalFeasible"); err != nil {
		return err
	}
	if p.sol.DualFeasible, err = parseFlag(a, "dualFeasible"); err != nil {
		return err
	}
	return nil
}

func (p *xmlParser) variable(el xml.StartElement) error {
	a := attrs(el)
	name, ok := a["name"]
	if !ok || !p.vars(name) {
		return nil
	}
	if err := store(p.sol.Values, name, a, "value"); err != nil {
		return err
	}
	return store(p.sol.ReducedCosts, name, a, "reducedCost")
}

func (p *xmlParser) constraint(el xml.StartElement) error {
	a := attrs(el)
	name, ok := a["name"]
	if !ok || !p.cons(name) {
		return nil
	}
	if err := store(p.sol.Duals, name, a, "dual"); err != nil {
		return err
	}
	return store(p.sol.Slacks, name, a, "slack")
}

// store copies attribute key into m. A missing attribute (MIP solutions
// carry no duals) leaves the entry absent.
func store(m map[string]float64, name string, a map[string]string, key string) error {
	raw, ok := a[key]
	if !ok {
		return nil
	}
	v, err := parseFloat(key, raw)
	if err != nil {
		return err
	}
	m[name] = v
	return nil
}

func attrs(el xml.StartElement) map[string]string {
	m := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		m[a.Name.Local] = a.Value
	}
	return m
}

func parseFloat(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &MalformedError{Detail: fmt.Sprintf("attribute %s=%q", key, raw), Err: err}
	}
	return v, nil
}

func parseInt(key, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &MalformedError{Detail: fmt.Sprintf("attribute %s=%q", key, raw), Err: err}
	}
	return v, nil
}

func parseFlag(a map[string]string, key string) (bool, error) {
	raw, ok := a[key]
	if !ok {
		return false, nil
	}
	v, err := parseInt(key, raw)
	return v != 0, err
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q: unsupported", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
