package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wmlbridge/internal/job"
	"github.com/roach88/wmlbridge/internal/solution"
	"github.com/roach88/wmlbridge/internal/wml"
)

// SolveOptions holds flags for the solve command.
type SolveOptions struct {
	*RootOptions
	Engine  string // "auto" | "cplex" | "cpo"
	Command string // CP Optimizer command
	Inputs  []string
	Output  string
}

// SolveResult is what a solve command reports.
type SolveResult struct {
	JobID       string             `json:"job_id"`
	State       string             `json:"state"`
	SolveStatus string             `json:"solve_status,omitempty"`
	Objective   *float64           `json:"objective,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
	KPIs        map[string]string  `json:"kpis,omitempty"`
	Artifacts   []string           `json:"artifacts,omitempty"`
}

func (r SolveResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "job %s %s", r.JobID, r.State)
	if r.SolveStatus != "" {
		fmt.Fprintf(&b, " (%s)", r.SolveStatus)
	}
	if r.Objective != nil {
		fmt.Fprintf(&b, "\nobjective: %g", *r.Objective)
	}
	for _, name := range sortedKeys(r.KPIs) {
		fmt.Fprintf(&b, "\nkpi %s: %s", name, r.KPIs[name])
	}
	for _, name := range sortedKeys(r.Values) {
		fmt.Fprintf(&b, "\n%s = %g", name, r.Values[name])
	}
	for _, a := range r.Artifacts {
		fmt.Fprintf(&b, "\nwrote %s", a)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve <model-file>",
		Short: "Solve an exported model remotely",
		Long: `Solve a model file exported by CPLEX (.sav, .lp, .mps, optionally
gzipped) or CP Optimizer (.cpo) on the shared deployment of its engine.

The deployment is created on first use. The remote job is always deleted,
even when the command fails or is interrupted.

Examples:
  wmlbridge solve -c wml.yaml model.sav.gz
  wmlbridge solve -c wml.yaml model.lp --input model.prm=params.prm
  wmlbridge solve -c wml.yaml plan.cpo --command RefineConflict --output out/`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Engine, "engine", "auto", "engine (auto|cplex|cpo), auto picks cpo for .cpo files")
	cmd.Flags().StringVar(&opts.Command, "command", "Solve", "CP Optimizer command (Solve|RefineConflict|Propagate)")
	cmd.Flags().StringArrayVar(&opts.Inputs, "input", nil, "extra attachment as id=path (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "directory receiving every job output")

	return cmd
}

func pickEngine(flag, modelPath string) (wml.Engine, error) {
	switch strings.ToLower(flag) {
	case "cplex":
		return wml.EngineCPLEX, nil
	case "cpo":
		return wml.EngineCPO, nil
	case "auto", "":
		if strings.EqualFold(filepath.Ext(modelPath), ".cpo") {
			return wml.EngineCPO, nil
		}
		return wml.EngineCPLEX, nil
	}
	return 0, fmt.Errorf("unknown engine %q", flag)
}

func parseInputs(specs []string) ([]wml.InputItem, error) {
	items := make([]wml.InputItem, 0, len(specs))
	for _, spec := range specs {
		id, path, ok := strings.Cut(spec, "=")
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("input %q is not id=path", spec)
		}
		item, err := wml.DataFromFile(id, path)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func runSolve(opts *SolveOptions, cmd *cobra.Command, modelPath string) error {
	engine, err := pickEngine(opts.Engine, modelPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --engine", err)
	}
	switch opts.Command {
	case "Solve", "RefineConflict", "Propagate":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --command %q", opts.Command))
	}
	if _, err := os.Stat(modelPath); err != nil {
		return WrapExitError(ExitCommandError, "model file not found", err)
	}
	inputs, err := parseInputs(opts.Inputs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --input", err)
	}

	return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
		depID, err := s.conn.GetOrMakeDeployment(ctx, engine)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to get deployment", err)
		}

		req := wml.PayloadRequest{
			DeploymentID: depID,
			Engine:       engine,
			ModelName:    filepath.Base(modelPath),
			ModelPath:    modelPath,
			Inputs:       inputs,
		}
		if engine == wml.EngineCPO {
			req.ModelName = s.conn.DeploymentName(engine) + ".cpo"
			req.Overrides = map[string]string{wml.ParamCPOCommand: opts.Command}
		}
		payload, err := s.conn.BuildPayload(req)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build payload", err)
		}

		ctrl := s.controller()
		var result SolveResult
		err = ctrl.Run(ctx, depID, payload, func(j *job.Job, state job.State) error {
			var serr error
			result, serr = summarize(j, state, engine, opts.Output)
			return serr
		})
		if err != nil {
			if job.IsSubmitError(err) {
				return WrapExitError(ExitCommandError, "job submission failed", err)
			}
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				return exitErr
			}
			return WrapExitError(ExitCommandError, "job failed", err)
		}
		return formatter(opts.RootOptions, cmd).Success(result)
	})
}

// summarize reads the terminal job. A job that did not complete is an
// ExitFailure carrying the remote failure detail.
func summarize(j *job.Job, state job.State, engine wml.Engine, outDir string) (SolveResult, error) {
	r := SolveResult{JobID: j.ID, State: state.String()}
	r.SolveStatus, _ = j.SolveStatus()
	if state != job.StateCompleted {
		failure, _ := j.Failure()
		return r, WrapExitError(ExitFailure, fmt.Sprintf("job %s %s", j.ID, state), fmt.Errorf("%s", failure))
	}

	if kpis := j.KPIs(); len(kpis) > 0 {
		r.KPIs = make(map[string]string, len(kpis))
		for _, k := range kpis {
			r.KPIs[k.Name] = k.Value
		}
	}

	outputs, err := j.Outputs()
	if err != nil {
		return r, WrapExitError(ExitCommandError, "failed to decode job outputs", err)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return r, WrapExitError(ExitCommandError, "failed to create output directory", err)
		}
		for _, a := range outputs {
			path := filepath.Join(outDir, filepath.Base(a.ID))
			if err := os.WriteFile(path, a.Content, 0o644); err != nil {
				return r, WrapExitError(ExitCommandError, "failed to write output", err)
			}
			r.Artifacts = append(r.Artifacts, path)
		}
	}

	for _, a := range outputs {
		switch {
		case engine == wml.EngineCPLEX && a.ID == job.ArtifactSolutionXML:
			sol, err := solution.DecodeXML(bytes.NewReader(a.Content), solution.Any, solution.Any)
			if err != nil {
				return r, WrapExitError(ExitFailure, "malformed solution", err)
			}
			if sol.Feasible {
				obj := sol.Objective
				r.Objective = &obj
				r.Values = sol.Values
			}
		case engine == wml.EngineCPO && a.ID == job.ArtifactSolutionJSON:
			sol, err := solution.DecodeJSON(a.Content)
			if err != nil {
				return r, WrapExitError(ExitFailure, "malformed solution", err)
			}
			if len(sol.Objectives) > 0 {
				obj := sol.Objectives[0]
				r.Objective = &obj
			}
			if len(sol.IntVars) > 0 {
				r.Values = sol.IntVars
			}
		}
	}
	return r, nil
}
