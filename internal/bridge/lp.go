package bridge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/roach88/wmlbridge/internal/directive"
	"github.com/roach88/wmlbridge/internal/model"
	"github.com/roach88/wmlbridge/internal/naming"
	"github.com/roach88/wmlbridge/internal/solution"
	"github.com/roach88/wmlbridge/internal/wml"
)

// CPLEX solution status codes the bridge interprets.
const (
	cplexUnknown            = 0
	cplexOptimal            = 1
	cplexUnbounded          = 2
	cplexInfeasible         = 3
	cplexInfOrUnbd          = 4
	cplexOptimalInfeas      = 5
	cplexMIPOptimal         = 101
	cplexMIPOptimalTol      = 102
	cplexMIPInfeasible      = 103
	cplexMIPUnbounded       = 118
	cplexMIPInfOrUnbd       = 119
	cplexMIPOptimalInfeas   = 115
	cplexFeasibleRelaxedSum = 14
)

// Feasibility is the answer to a primal or dual feasibility query.
type Feasibility int

const (
	FeasibilityUnknown Feasibility = iota
	FeasibilityFeasible
	FeasibilityInfeasible
)

func (f Feasibility) String() string {
	switch f {
	case FeasibilityFeasible:
		return "feasible"
	case FeasibilityInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

type lpResult struct {
	feasible     bool
	status       solution.Status
	solverStatus int
	objective    float64
	values       map[model.Variable]float64
	reducedCosts map[model.Variable]float64
	duals        map[model.Range]float64
	slacks       map[model.Range]float64
}

func newLPResult(status solution.Status, code int) *lpResult {
	return &lpResult{
		status:       status,
		solverStatus: code,
		values:       make(map[model.Variable]float64),
		reducedCosts: make(map[model.Variable]float64),
		duals:        make(map[model.Range]float64),
		slacks:       make(map[model.Range]float64),
	}
}

// LPSolver solves an LP/MIP model on the remote service.
//
// Every solve renames the variables vv1, vv2, ... and the ranges cc1, cc2,
// ... so the solution file can be read back by name, and restores the
// original names before returning. Results are kept until the next solve.
//
// An LPSolver is not safe for concurrent use.
type LPSolver struct {
	r     *runner
	model model.LPModel

	result *lpResult

	// lastSolution is the raw solution file of the last successful solve,
	// sent back as a warm start for MIP models.
	lastSolution []byte
}

// NewLPSolver creates a solver for m.
func NewLPSolver(m model.LPModel, remote Remote, opts ...Option) *LPSolver {
	return &LPSolver{r: newRunner(remote, opts), model: m}
}

// Solve solves the model and reports whether a feasible solution was found.
func (s *LPSolver) Solve(ctx context.Context) (bool, error) {
	return s.process(ctx, nil, nil)
}

// FeasOpt looks for a minimal relaxation of cts, weighted by prefs, that
// makes the model feasible. Only ranges can be relaxed.
func (s *LPSolver) FeasOpt(ctx context.Context, cts []model.Constraint, prefs []float64) (bool, error) {
	if len(cts) != len(prefs) {
		return false, badCall("feasopt: %d constraints but %d preferences", len(cts), len(prefs))
	}
	relax := directive.NewRelaxations()
	for i, c := range cts {
		r, ok := c.(model.Range)
		if !ok {
			return false, badCall("feasopt: only ranges can be relaxed, got %s", c.String())
		}
		relax.AddRange(r, prefs[i])
	}
	return s.process(ctx, relax, nil)
}

// FeasOptBounds relaxes the bounds of ranges and variables. rlbs and rubs
// are the lower and upper bound preferences of ranges, vlbs and vubs those
// of vars.
func (s *LPSolver) FeasOptBounds(ctx context.Context, ranges []model.Range, rlbs, rubs []float64, vars []model.Variable, vlbs, vubs []float64) (bool, error) {
	if len(ranges) != len(rlbs) || len(ranges) != len(rubs) {
		return false, badCall("feasopt: %d ranges but %d/%d preferences", len(ranges), len(rlbs), len(rubs))
	}
	if len(vars) != len(vlbs) || len(vars) != len(vubs) {
		return false, badCall("feasopt: %d variables but %d/%d preferences", len(vars), len(vlbs), len(vubs))
	}
	relax := directive.NewRelaxations()
	for i, r := range ranges {
		relax.AddBounds(r, rlbs[i], rubs[i])
	}
	for i, v := range vars {
		relax.AddBounds(v, vlbs[i], vubs[i])
	}
	return s.process(ctx, relax, nil)
}

// RefineConflict runs the conflict refiner on cts, grouped by preference.
func (s *LPSolver) RefineConflict(ctx context.Context, cts []model.Constraint, prefs []float64) (bool, error) {
	if len(cts) != len(prefs) {
		return false, badCall("refine conflict: %d constraints but %d preferences", len(cts), len(prefs))
	}
	if len(cts) == 0 {
		return false, badCall("refine conflict: no constraint given")
	}
	conflicts := directive.NewConflicts()
	for i, c := range cts {
		if err := conflicts.Add(c, prefs[i]); err != nil {
			return false, err
		}
	}
	return s.process(ctx, nil, conflicts)
}

func (s *LPSolver) process(ctx context.Context, relax *directive.Relaxations, conflicts *directive.Conflicts) (bool, error) {
	table := naming.NewTable()
	defer table.Restore()

	start := time.Now()
	varScope, rngScope := table.Scope(), table.Scope()
	vars := make(map[string]model.Variable)
	for _, v := range s.model.Variables() {
		vars[varScope.AddSequential(v, "vv")] = v
	}
	ranges := s.model.Ranges()
	rngs := make(map[string]model.Range, len(ranges))
	for _, r := range ranges {
		rngs[rngScope.AddSequential(r, "cc")] = r
	}
	s.r.logger.Info("naming strategy", "variables", len(vars), "ranges", len(rngs),
		"elapsed", time.Since(start).Round(time.Millisecond))

	sol, err := s.externalSolve(ctx, varScope.Names(), rngScope.Names(), relax, conflicts)
	if err != nil {
		s.result = nil
		return false, err
	}

	res := newLPResult(sol.status, sol.solverStatus)
	res.feasible = sol.feasible
	res.objective = sol.objective
	if x := sol.xml; x != nil {
		for name, val := range x.Values {
			if v, ok := vars[name]; ok {
				res.values[v] = val
			}
		}
		for name, val := range x.ReducedCosts {
			if v, ok := vars[name]; ok {
				res.reducedCosts[v] = val
			}
		}
		for name, val := range x.Duals {
			if r, ok := rngs[name]; ok {
				res.duals[r] = val
			}
		}
		for name, val := range x.Slacks {
			if r, ok := rngs[name]; ok {
				res.slacks[r] = val
			}
		}
	}
	for _, r := range ranges {
		if _, ok := res.duals[r]; !ok {
			res.duals[r] = 0
		}
		if _, ok := res.slacks[r]; !ok {
			res.slacks[r] = 0
		}
	}
	s.result = res
	return res.feasible, nil
}

type lpOutcome struct {
	feasible     bool
	status       solution.Status
	solverStatus int
	objective    float64
	xml          *solution.XMLSolution
}

func (s *LPSolver) externalSolve(ctx context.Context, vars, rngs []string, relax *directive.Relaxations, conflicts *directive.Conflicts) (*lpOutcome, error) {
	s.r.applyTimeLimit(s.model)
	settings := s.r.remote.Settings()
	logger := s.r.logger

	tmp := s.r.scratch("cpx")
	defer tmp.remove()

	modelPath := tmp.path(settings.CPLEXFormat)
	start := time.Now()
	if err := s.model.ExportModel(modelPath); err != nil {
		return nil, fmt.Errorf("export model: %w", err)
	}
	logger.Info("exported model", "path", modelPath, "elapsed", time.Since(start).Round(time.Millisecond))

	prmPath := tmp.path(".prm")
	if err := s.model.WriteParameters(prmPath); err != nil {
		return nil, fmt.Errorf("write parameters: %w", err)
	}

	mip := s.model.IsMIP()
	var mstPath, fltPath, annPath string
	if mip {
		if fw, ok := s.model.(model.FilterWriter); ok {
			fltPath = tmp.path(".flt")
			if err := fw.WriteFilters(fltPath); err != nil {
				return nil, fmt.Errorf("write filters: %w", err)
			}
		}
		if mw, ok := s.model.(model.MIPStartWriter); ok {
			p := tmp.path(".mst")
			wrote, err := mw.WriteMIPStart(p)
			if err != nil {
				return nil, fmt.Errorf("write MIP start: %w", err)
			}
			if wrote {
				mstPath = p
			}
		}
	}
	if aw, ok := s.model.(model.AnnotationWriter); ok && aw.NumAnnotations() > 0 {
		annPath = tmp.path(".ann")
		if err := aw.WriteAnnotations(annPath); err != nil {
			return nil, fmt.Errorf("write annotations: %w", err)
		}
		logger.Info("exported annotations", "count", aw.NumAnnotations())
	}

	name := s.r.remote.DeploymentName(wml.EngineCPLEX)
	prm, err := wml.DataFromFile(name+".prm", prmPath)
	if err != nil {
		return nil, err
	}
	inputs := []wml.InputItem{prm}
	if mip && s.lastSolution != nil {
		inputs = append(inputs, wml.DataFromBytes(name+".sol", s.lastSolution))
	}
	for _, f := range []struct{ ext, path string }{
		{".mst", mstPath},
		{".flt", fltPath},
		{".ann", annPath},
	} {
		if f.path == "" {
			continue
		}
		item, err := wml.DataFromFile(name+f.ext, f.path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, item)
	}

	if relax != nil {
		logger.Info("adding feasopt support", "elements", relax.Len())
		data, ok, err := relax.Encode()
		if err != nil {
			return nil, err
		}
		if ok {
			inputs = append(inputs, wml.DataFromBytes(name+"-relaxations.feasibility", data))
		} else {
			logger.Info("ignoring feasopt as empty input")
		}
	}
	if conflicts != nil {
		logger.Info("adding conflict support", "elements", conflicts.Len())
		data, ok, err := conflicts.Encode()
		if err != nil {
			return nil, err
		}
		if ok {
			inputs = append(inputs, wml.DataFromBytes(name+"-conflicts.feasibility", data))
		} else {
			logger.Info("ignoring conflicts as empty input")
		}
	}

	deploymentID, err := s.r.remote.GetOrMakeDeployment(ctx, wml.EngineCPLEX)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	payload, err := s.r.remote.BuildPayload(wml.PayloadRequest{
		DeploymentID: deploymentID,
		Engine:       wml.EngineCPLEX,
		ModelName:    name + settings.CPLEXFormat,
		ModelPath:    modelPath,
		Inputs:       inputs,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payload built", "bytes", len(payload), "elapsed", time.Since(start).Round(time.Millisecond))

	out, err := s.r.run(ctx, deploymentID, payload, xmlSolutionOutput)
	if err != nil {
		return nil, err
	}
	if out.infeasible() {
		return &lpOutcome{status: solution.StatusInfeasible, solverStatus: cplexInfeasible}, nil
	}
	if !out.found {
		logger.Warn("job completed without a solution file", "job_id", out.jobID)
		return &lpOutcome{status: solution.StatusUnknown, solverStatus: cplexUnknown}, nil
	}

	x, err := solution.DecodeXML(bytes.NewReader(out.artifact), solution.Known(vars...), solution.Known(rngs...))
	if err != nil {
		return nil, err
	}
	s.lastSolution = out.artifact
	return &lpOutcome{
		feasible:     x.Feasible,
		status:       lpStatus(x),
		solverStatus: x.Status,
		objective:    x.Objective,
		xml:          x,
	}, nil
}

// lpStatus maps a CPLEX solution status code to the solve status.
func lpStatus(x *solution.XMLSolution) solution.Status {
	switch x.Status {
	case cplexOptimal, cplexMIPOptimal, cplexMIPOptimalTol:
		return solution.StatusOptimal
	case cplexUnbounded, cplexMIPUnbounded:
		return solution.StatusUnbounded
	case cplexInfeasible, cplexMIPInfeasible:
		return solution.StatusInfeasible
	case cplexInfOrUnbd, cplexMIPInfOrUnbd:
		return solution.StatusInfeasibleOrUnbounded
	case cplexOptimalInfeas, cplexMIPOptimalInfeas, cplexFeasibleRelaxedSum:
		return solution.StatusFeasible
	}
	if x.Feasible && x.PrimalFeasible {
		return solution.StatusFeasible
	}
	return solution.StatusUnknown
}

// Status returns the status of the last solve, StatusUnknown before any.
func (s *LPSolver) Status() solution.Status {
	if s.result == nil {
		return solution.StatusUnknown
	}
	return s.result.status
}

// SolverStatus returns the raw CPLEX status code of the last solve.
func (s *LPSolver) SolverStatus() int {
	if s.result == nil {
		return cplexUnknown
	}
	return s.result.solverStatus
}

// IsPrimalFeasible is not reported by the service.
func (s *LPSolver) IsPrimalFeasible() Feasibility { return FeasibilityUnknown }

// IsDualFeasible is not reported by the service.
func (s *LPSolver) IsDualFeasible() Feasibility { return FeasibilityUnknown }

// ObjValue returns the objective value of the last solution.
func (s *LPSolver) ObjValue() (float64, error) {
	if s.result == nil {
		return 0, errNoSolution
	}
	return s.result.objective, nil
}

// Value returns the value of v in the last solution.
func (s *LPSolver) Value(v model.Variable) (float64, error) {
	if s.result == nil {
		return 0, errNoSolution
	}
	d, ok := s.result.values[v]
	if !ok {
		return 0, unknownObject("variable", v.Name())
	}
	return d, nil
}

// Values returns the values of vs in order.
func (s *LPSolver) Values(vs []model.Variable) ([]float64, error) {
	return collect(vs, s.Value)
}

// ReducedCost returns the reduced cost of v.
func (s *LPSolver) ReducedCost(v model.Variable) (float64, error) {
	if s.result == nil {
		return 0, errNoSolution
	}
	d, ok := s.result.reducedCosts[v]
	if !ok {
		return 0, unknownObject("variable", v.Name())
	}
	return d, nil
}

// ReducedCosts returns the reduced costs of vs in order.
func (s *LPSolver) ReducedCosts(vs []model.Variable) ([]float64, error) {
	return collect(vs, s.ReducedCost)
}

// Dual returns the dual value of r. Ranges the solution did not mention
// have a zero dual.
func (s *LPSolver) Dual(r model.Range) (float64, error) {
	if s.result == nil {
		return 0, errNoSolution
	}
	d, ok := s.result.duals[r]
	if !ok {
		return 0, unknownObject("range", r.Name())
	}
	return d, nil
}

// Duals returns the duals of rs in order.
func (s *LPSolver) Duals(rs []model.Range) ([]float64, error) {
	return collect(rs, s.Dual)
}

// Slack returns the slack of r.
func (s *LPSolver) Slack(r model.Range) (float64, error) {
	if s.result == nil {
		return 0, errNoSolution
	}
	d, ok := s.result.slacks[r]
	if !ok {
		return 0, unknownObject("range", r.Name())
	}
	return d, nil
}

// Slacks returns the slacks of rs in order.
func (s *LPSolver) Slacks(rs []model.Range) ([]float64, error) {
	return collect(rs, s.Slack)
}

func (s *LPSolver) ObjValueN(int) (float64, error) { return 0, notSupported("ObjValueN") }
func (s *LPSolver) BestObjValue() (float64, error) { return 0, notSupported("BestObjValue") }
func (s *LPSolver) MIPRelativeGap() (float64, error) {
	return 0, notSupported("MIPRelativeGap")
}
func (s *LPSolver) SolutionPoolSize() (int, error) { return 0, notSupported("SolutionPoolSize") }
func (s *LPSolver) SolutionPoolValue(int, model.Variable) (float64, error) {
	return 0, notSupported("SolutionPoolValue")
}

// Conflict would report the membership of cts in the refined conflict.
func (s *LPSolver) Conflict([]model.Constraint) ([]bool, error) {
	return nil, notSupported("Conflict")
}

func collect[T any](items []T, get func(T) (float64, error)) ([]float64, error) {
	out := make([]float64, len(items))
	for i, it := range items {
		v, err := get(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
