package solution

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/model"
)

// Status is the CP Optimizer solve status.
type Status int

const (
	// StatusUnset means the document had no solutionStatus section.
	StatusUnset Status = iota
	StatusFeasible
	StatusOptimal
	StatusInfeasible
	StatusInfeasibleOrUnbounded
	StatusUnbounded
	StatusUnknown
	StatusError
)

var statusNames = map[Status]string{
	StatusUnset:                 "Unset",
	StatusFeasible:              "Feasible",
	StatusOptimal:               "Optimal",
	StatusInfeasible:            "Infeasible",
	StatusInfeasibleOrUnbounded: "InfeasibleOrUnbounded",
	StatusUnbounded:             "Unbounded",
	StatusUnknown:               "Unknown",
	StatusError:                 "Error",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Success reports whether a solution is available.
func (s Status) Success() bool {
	return s == StatusFeasible || s == StatusOptimal
}

// ParseStatus maps a solveStatus string. Anything unrecognized is
// StatusError.
func ParseStatus(s string) Status {
	for st, n := range statusNames {
		if st != StatusUnset && st != StatusError && n == s {
			return st
		}
	}
	return StatusError
}

// Interval is the solution of a present interval variable.
type Interval struct {
	Start float64
	Size  float64
	End   float64
}

// Segment is one piece of a state function.
type Segment struct {
	Start int
	End   int
	Value int
}

// JSONSolution is a decoded CP Optimizer solution document.
type JSONSolution struct {
	Status Status

	IntVars        map[string]float64
	Intervals      map[string]Interval
	Sequences      map[string][]string
	StateFunctions map[string][]Segment
	KPIs           map[string]float64

	Objectives []float64
	Bounds     []float64
	Gaps       []float64

	ConflictConstraints map[string]string
	ConflictIntervals   map[string]string
	HasConflicts        bool
}

// DecodeJSON decodes a solution document. Missing sections are empty.
func DecodeJSON(data []byte) (*JSONSolution, error) {
	if !gjson.ValidBytes(data) {
		return nil, malformed("invalid JSON document")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, malformed("solution document is %s, want object", root.Type)
	}

	sol := &JSONSolution{
		IntVars:             make(map[string]float64),
		Intervals:           make(map[string]Interval),
		Sequences:           make(map[string][]string),
		StateFunctions:      make(map[string][]Segment),
		KPIs:                make(map[string]float64),
		ConflictConstraints: make(map[string]string),
		ConflictIntervals:   make(map[string]string),
	}

	if st := root.Get("solutionStatus"); st.Exists() {
		sol.Status = ParseStatus(st.Get("solveStatus").String())
	}

	var err error
	if err = numberMap(root.Get("intVars"), sol.IntVars); err != nil {
		return nil, err
	}
	if err = numberMap(root.Get("KPIs"), sol.KPIs); err != nil {
		return nil, err
	}
	if err = decodeIntervals(root.Get("intervalVars"), sol.Intervals); err != nil {
		return nil, err
	}
	root.Get("sequenceVars").ForEach(func(k, v gjson.Result) bool {
		names := []string{}
		for _, item := range v.Array() {
			names = append(names, item.String())
		}
		sol.Sequences[k.String()] = names
		return true
	})
	if err = decodeStateFunctions(root.Get("stateFunctions"), sol.StateFunctions); err != nil {
		return nil, err
	}
	if sol.Objectives, err = numberList("objectives", root.Get("objectives")); err != nil {
		return nil, err
	}
	if sol.Bounds, err = numberList("bounds", root.Get("bounds")); err != nil {
		return nil, err
	}
	if sol.Gaps, err = numberList("gaps", root.Get("gaps")); err != nil {
		return nil, err
	}

	conflict := root.Get("conflict")
	if cs := conflict.Get("constraints"); cs.Exists() {
		sol.HasConflicts = true
		stringMap(cs, sol.ConflictConstraints)
	}
	if iv := conflict.Get("intervalVars"); iv.Exists() {
		sol.HasConflicts = true
		stringMap(iv, sol.ConflictIntervals)
	}
	return sol, nil
}

func numberMap(section gjson.Result, out map[string]float64) error {
	var err error
	section.ForEach(func(k, v gjson.Result) bool {
		var f float64
		if f, err = number(k.String(), v); err != nil {
			return false
		}
		out[k.String()] = f
		return true
	})
	return err
}

func stringMap(section gjson.Result, out map[string]string) {
	section.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
}

func numberList(key string, section gjson.Result) ([]float64, error) {
	out := []float64{}
	for i, v := range section.Array() {
		f, err := number(fmt.Sprintf("%s[%d]", key, i), v)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// decodeIntervals skips entries without a start: the interval is absent.
func decodeIntervals(section gjson.Result, out map[string]Interval) error {
	var err error
	section.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		start := v.Get("start")
		if !start.Exists() {
			return true
		}
		var iv Interval
		if iv.Start, err = number(name+".start", start); err != nil {
			return false
		}
		if iv.Size, err = number(name+".size", v.Get("size")); err != nil {
			return false
		}
		if iv.End, err = number(name+".end", v.Get("end")); err != nil {
			return false
		}
		out[name] = iv
		return true
	})
	return err
}

func decodeStateFunctions(section gjson.Result, out map[string][]Segment) error {
	var err error
	section.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		segments := []Segment{}
		for i, raw := range v.Array() {
			var seg Segment
			if seg, err = segment(fmt.Sprintf("%s[%d]", name, i), raw); err != nil {
				return false
			}
			segments = append(segments, seg)
		}
		out[name] = segments
		return true
	})
	return err
}

func segment(key string, raw gjson.Result) (Segment, error) {
	seg := Segment{Start: model.IntervalMin, End: model.IntervalMax, Value: model.NoState}
	var err error
	if v := raw.Get("start"); v.Exists() {
		if seg.Start, err = integer(key+".start", v, "intervalmin", model.IntervalMin); err != nil {
			return seg, err
		}
	}
	if v := raw.Get("end"); v.Exists() {
		if seg.End, err = integer(key+".end", v, "intervalmax", model.IntervalMax); err != nil {
			return seg, err
		}
	}
	if v := raw.Get("value"); v.Exists() {
		if seg.Value, err = integer(key+".value", v, "", 0); err != nil {
			return seg, err
		}
	}
	return seg, nil
}

// number accepts JSON numbers, numeric strings and "infinity".
func number(key string, v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Num, nil
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		switch strings.ToLower(s) {
		case "infinity", "+infinity":
			return math.Inf(1), nil
		case "-infinity":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &MalformedError{Detail: fmt.Sprintf("%s=%q", key, v.Str), Err: err}
		}
		return f, nil
	}
	return 0, malformed("%s: want number, got %s", key, v.Type)
}

func integer(key string, v gjson.Result, sentinel string, sentinelValue int) (int, error) {
	if v.Type == gjson.String && sentinel != "" && v.Str == sentinel {
		return sentinelValue, nil
	}
	f, err := number(key, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, malformed("%s: %v is not an integer", key, f)
	}
	return int(f), nil
}
