package bridge

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/roach88/wmlbridge/internal/model"
	"github.com/roach88/wmlbridge/internal/naming"
	"github.com/roach88/wmlbridge/internal/solution"
	"github.com/roach88/wmlbridge/internal/wml"
)

// Commands understood by the remote CP Optimizer worker.
const (
	CommandSolve          = "Solve"
	CommandRefineConflict = "RefineConflict"
	CommandPropagate      = "Propagate"
)

const conflictHeader = "// ------ Conflict members: ---------------------------------------------------"

// cpNames are the per-kind name spaces of one CP run. Unique names are only
// required within a kind.
type cpNames struct {
	table       *naming.Table
	intVars     *naming.Scope
	intervals   *naming.Scope
	sequences   *naming.Scope
	states      *naming.Scope
	constraints *naming.Scope

	// constraintText is the printed form of each constraint, taken before
	// it was renamed.
	constraintText map[string]string
}

type cpResult struct {
	sol       *solution.JSONSolution
	intVars   map[model.Object]float64
	intervals map[model.Object]solution.Interval
	sequences map[model.Object][]model.Object
	segments  map[model.Object][]solution.Segment

	conflictConstraints []string
	conflictIntervals   []string
}

// CPSolver solves a constraint-programming model on the remote service.
//
// Objects are given unique names per kind for the duration of a run: an
// unnamed integer variable i becomes IntVar_i, a name already used by
// another object of the same kind gets a _1, _2, ... suffix. Original names
// are restored when the run ends. Lookups by a name that was shared by
// several objects fail with a duplicate name error.
//
// A CPSolver is not safe for concurrent use.
type CPSolver struct {
	r     *runner
	model model.CPModel

	names  *cpNames
	status solution.Status
	result *cpResult
}

// NewCPSolver creates a solver for m.
func NewCPSolver(m model.CPModel, remote Remote, opts ...Option) *CPSolver {
	return &CPSolver{r: newRunner(remote, opts), model: m, status: solution.StatusUnknown}
}

func (s *CPSolver) resolveNames() *cpNames {
	t := naming.NewTable()
	n := &cpNames{
		table:          t,
		intVars:        t.Scope(),
		intervals:      t.Scope(),
		sequences:      t.Scope(),
		states:         t.Scope(),
		constraints:    t.Scope(),
		constraintText: make(map[string]string),
	}
	for i, v := range s.model.IntVars() {
		n.intVars.Add(v, "IntVar_"+strconv.Itoa(i))
	}
	for i, v := range s.model.IntervalVars() {
		n.intervals.Add(v, "IntervalVar_"+strconv.Itoa(i))
	}
	for i, v := range s.model.SequenceVars() {
		n.sequences.Add(v, "IntervalSequenceVar_"+strconv.Itoa(i))
	}
	for i, v := range s.model.StateFunctions() {
		n.states.Add(v, "StateFunction_"+strconv.Itoa(i))
	}
	for i, c := range s.model.Constraints() {
		text := c.String()
		name := n.constraints.Add(c, "Constraint_"+strconv.Itoa(i+1))
		n.constraintText[name] = text
	}
	return n
}

// Solve solves the model and reports whether a feasible or optimal
// solution was found.
func (s *CPSolver) Solve(ctx context.Context) (bool, error) {
	return s.solveWith(ctx, CommandSolve)
}

// Propagate runs constraint propagation only. The reduced domains are
// reported like a solution.
func (s *CPSolver) Propagate(ctx context.Context) (bool, error) {
	return s.solveWith(ctx, CommandPropagate)
}

func (s *CPSolver) solveWith(ctx context.Context, command string) (bool, error) {
	names := s.resolveNames()
	defer names.table.Restore()
	s.names = names
	s.result = nil
	s.status = solution.StatusError

	out, err := s.externalProcess(ctx, command)
	if err != nil {
		return false, err
	}
	if out.infeasible() {
		s.status = solution.StatusInfeasible
		return false, nil
	}

	sol, err := s.decode(out)
	if err != nil {
		return false, err
	}
	s.status = sol.Status
	s.result = s.rekey(names, sol)
	return s.status.Success(), nil
}

// RefineConflict runs the conflict refiner and reports whether a conflict
// was found. The conflict is printed by WriteConflict.
func (s *CPSolver) RefineConflict(ctx context.Context) (bool, error) {
	names := s.resolveNames()
	s.names = names
	s.result = nil
	s.status = solution.StatusError

	out, err := s.externalProcess(ctx, CommandRefineConflict)
	if err != nil {
		names.table.Restore()
		return false, err
	}
	sol, err := s.decode(out)
	if err != nil {
		names.table.Restore()
		return false, err
	}
	s.status = sol.Status
	res := s.rekey(names, sol)
	s.result = res

	// Intervals are printed with the names the user gave them.
	names.table.Restore()
	if !sol.HasConflicts {
		return false, nil
	}
	for _, name := range names.constraints.Names() {
		if _, ok := sol.ConflictConstraints[name]; ok {
			res.conflictConstraints = append(res.conflictConstraints, names.constraintText[name])
		}
	}
	for _, name := range names.intervals.Names() {
		if _, ok := sol.ConflictIntervals[name]; !ok {
			continue
		}
		if obj, ok := names.intervals.Object(name); ok {
			res.conflictIntervals = append(res.conflictIntervals, describe(obj))
		}
	}
	return true, nil
}

// RefineConflictWithPreferences is not offered by the remote worker.
func (s *CPSolver) RefineConflictWithPreferences(context.Context, []model.Constraint, []float64) (bool, error) {
	return false, notSupported("RefineConflictWithPreferences")
}

// WriteConflict prints the members of the last refined conflict.
func (s *CPSolver) WriteConflict(w io.Writer) error {
	if s.result == nil {
		return errNoSolution
	}
	if !s.result.sol.HasConflicts {
		return nil
	}
	if _, err := fmt.Fprintln(w, conflictHeader); err != nil {
		return err
	}
	for _, c := range s.result.conflictConstraints {
		if _, err := fmt.Fprintln(w, c); err != nil {
			return err
		}
	}
	for _, itv := range s.result.conflictIntervals {
		if _, err := fmt.Fprintln(w, itv); err != nil {
			return err
		}
	}
	return nil
}

func describe(obj model.Object) string {
	if st, ok := obj.(fmt.Stringer); ok {
		return st.String()
	}
	return obj.Name()
}

func (s *CPSolver) externalProcess(ctx context.Context, command string) (outcome, error) {
	s.r.applyTimeLimit(s.model)
	logger := s.r.logger

	tmp := s.r.scratch("cpo")
	defer tmp.remove()

	modelPath := tmp.path(".cpo")
	start := time.Now()
	if err := s.model.ExportModel(modelPath); err != nil {
		return outcome{}, fmt.Errorf("export model: %w", err)
	}
	logger.Info("exported cpo file", "path", modelPath, "elapsed", time.Since(start).Round(time.Millisecond))

	deploymentID, err := s.r.remote.GetOrMakeDeployment(ctx, wml.EngineCPO)
	if err != nil {
		return outcome{}, err
	}
	payload, err := s.r.remote.BuildPayload(wml.PayloadRequest{
		DeploymentID: deploymentID,
		Engine:       wml.EngineCPO,
		ModelName:    s.r.remote.DeploymentName(wml.EngineCPO) + ".cpo",
		ModelPath:    modelPath,
		Overrides:    map[string]string{wml.ParamCPOCommand: command},
	})
	if err != nil {
		return outcome{}, err
	}
	return s.r.run(ctx, deploymentID, payload, jsonSolutionOutput)
}

func (s *CPSolver) decode(out outcome) (*solution.JSONSolution, error) {
	if !out.found {
		s.r.logger.Warn("no solution", "job_id", out.jobID)
		sol, _ := solution.DecodeJSON([]byte("{}"))
		sol.Status = solution.StatusUnknown
		return sol, nil
	}
	return solution.DecodeJSON(out.artifact)
}

func (s *CPSolver) rekey(names *cpNames, sol *solution.JSONSolution) *cpResult {
	res := &cpResult{
		sol:       sol,
		intVars:   make(map[model.Object]float64),
		intervals: make(map[model.Object]solution.Interval),
		sequences: make(map[model.Object][]model.Object),
		segments:  make(map[model.Object][]solution.Segment),
	}
	for name, v := range sol.IntVars {
		if obj, ok := names.intVars.Object(name); ok {
			res.intVars[obj] = v
		}
	}
	for name, itv := range sol.Intervals {
		if obj, ok := names.intervals.Object(name); ok {
			res.intervals[obj] = itv
		}
	}
	for name, members := range sol.Sequences {
		seq, ok := names.sequences.Object(name)
		if !ok {
			continue
		}
		list := make([]model.Object, 0, len(members))
		for _, m := range members {
			if itv, ok := names.intervals.Object(m); ok {
				list = append(list, itv)
			}
		}
		res.sequences[seq] = list
	}
	for name, segs := range sol.StateFunctions {
		if obj, ok := names.states.Object(name); ok {
			res.segments[obj] = segs
		}
	}
	return res
}

// Status returns the status of the last run.
func (s *CPSolver) Status() solution.Status {
	return s.status
}

func (s *CPSolver) solved() (*cpResult, error) {
	if s.result == nil {
		return nil, errNoSolution
	}
	return s.result, nil
}

// ObjValue returns the first objective value.
func (s *CPSolver) ObjValue() (float64, error) {
	res, err := s.solved()
	if err != nil {
		return 0, err
	}
	if len(res.sol.Objectives) == 0 {
		return 0, unknownObject("objective", "0")
	}
	return res.sol.Objectives[0], nil
}

// ObjValues returns every objective value.
func (s *CPSolver) ObjValues() ([]float64, error) {
	res, err := s.solved()
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), res.sol.Objectives...), nil
}

// Bounds returns the objective bounds.
func (s *CPSolver) Bounds() ([]float64, error) {
	res, err := s.solved()
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), res.sol.Bounds...), nil
}

// Gaps returns the objective gaps.
func (s *CPSolver) Gaps() ([]float64, error) {
	res, err := s.solved()
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), res.sol.Gaps...), nil
}

// KPI returns the value of a named key performance indicator.
func (s *CPSolver) KPI(name string) (float64, error) {
	res, err := s.solved()
	if err != nil {
		return 0, err
	}
	v, ok := res.sol.KPIs[name]
	if !ok {
		return 0, unknownObject("KPI", name)
	}
	return v, nil
}

// Value returns the value of an integer variable.
func (s *CPSolver) Value(v model.Object) (float64, error) {
	res, err := s.solved()
	if err != nil {
		return 0, err
	}
	d, ok := res.intVars[v]
	if !ok {
		return 0, unknownObject("integer variable", v.Name())
	}
	return d, nil
}

// ValueByName returns the value of the integer variable called name.
func (s *CPSolver) ValueByName(name string) (float64, error) {
	res, err := s.solved()
	if err != nil {
		return 0, err
	}
	if err := s.names.intVars.Check(name); err != nil {
		return 0, err
	}
	d, ok := res.sol.IntVars[name]
	if !ok {
		return 0, unknownObject("integer variable", name)
	}
	return d, nil
}

// interval returns the solution of the interval called name; ok is false
// when the interval is absent.
func (s *CPSolver) interval(name string) (solution.Interval, bool, error) {
	res, err := s.solved()
	if err != nil {
		return solution.Interval{}, false, err
	}
	if err := s.names.intervals.Check(name); err != nil {
		return solution.Interval{}, false, err
	}
	if itv, ok := res.sol.Intervals[name]; ok {
		return itv, true, nil
	}
	if s.names.intervals.Has(name) {
		return solution.Interval{}, false, nil
	}
	return solution.Interval{}, false, unknownObject("interval variable", name)
}

func (s *CPSolver) presentInterval(name string) (solution.Interval, error) {
	itv, present, err := s.interval(name)
	if err != nil {
		return itv, err
	}
	if !present {
		return itv, &SolveError{Code: ErrCodeUnknownObject, Message: "interval variable is absent", Object: name}
	}
	return itv, nil
}

// IsPresent reports whether the interval called name is present.
func (s *CPSolver) IsPresent(name string) (bool, error) {
	_, present, err := s.interval(name)
	return present, err
}

// IsAbsent reports whether the interval called name is absent.
func (s *CPSolver) IsAbsent(name string) (bool, error) {
	_, present, err := s.interval(name)
	if err != nil {
		return false, err
	}
	return !present, nil
}

// Start returns the start of a present interval.
func (s *CPSolver) Start(name string) (float64, error) {
	itv, err := s.presentInterval(name)
	return itv.Start, err
}

// End returns the end of a present interval.
func (s *CPSolver) End(name string) (float64, error) {
	itv, err := s.presentInterval(name)
	return itv.End, err
}

// Size returns the size of a present interval.
func (s *CPSolver) Size(name string) (float64, error) {
	itv, err := s.presentInterval(name)
	return itv.Size, err
}

// Length returns end minus start of a present interval.
func (s *CPSolver) Length(name string) (float64, error) {
	itv, err := s.presentInterval(name)
	return itv.End - itv.Start, err
}

// Interval returns the solution of an interval variable; ok is false when
// it is absent.
func (s *CPSolver) Interval(v model.Object) (itv solution.Interval, ok bool, err error) {
	res, err := s.solved()
	if err != nil {
		return itv, false, err
	}
	itv, ok = res.intervals[v]
	return itv, ok, nil
}

// Sequence returns the intervals of seq in sequence order.
func (s *CPSolver) Sequence(seq model.Object) ([]model.Object, error) {
	res, err := s.solved()
	if err != nil {
		return nil, err
	}
	list, ok := res.sequences[seq]
	if !ok {
		return nil, unknownObject("sequence variable", seq.Name())
	}
	return append([]model.Object(nil), list...), nil
}

// Segments returns the segments of a state function.
func (s *CPSolver) Segments(sf model.Object) ([]solution.Segment, error) {
	res, err := s.solved()
	if err != nil {
		return nil, err
	}
	segs, ok := res.segments[sf]
	if !ok {
		return nil, unknownObject("state function", sf.Name())
	}
	return append([]solution.Segment(nil), segs...), nil
}

func (s *CPSolver) ObjGap() (float64, error) { return 0, notSupported("ObjGap") }
func (s *CPSolver) ExplainFailure(int) error { return notSupported("ExplainFailure") }
func (s *CPSolver) RunSeeds(context.Context, int) error {
	return notSupported("RunSeeds")
}
func (s *CPSolver) StartNewSearch(context.Context) error { return notSupported("StartNewSearch") }
func (s *CPSolver) Next(context.Context) (bool, error) { return false, notSupported("Next") }
func (s *CPSolver) CumulValue(string, int) (float64, error) {
	return 0, notSupported("CumulValue")
}
func (s *CPSolver) CumulSegments(string) ([]solution.Segment, error) {
	return nil, notSupported("CumulSegments")
}
