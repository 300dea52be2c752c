package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/journal"
	"github.com/roach88/wmlbridge/internal/testutil"
)

const solutionXML = `<?xml version="1.0" encoding="UTF-8"?>
<CPLEXSolution version="1.2">
 <header problemName="model" objectiveValue="42.5" solutionStatusValue="1" primalFeasible="1" dualFeasible="1"/>
 <variables>
  <variable name="x" index="0" value="10"/>
  <variable name="y" index="1" value="2.5"/>
 </variables>
</CPLEXSolution>`

// env is a fake service plus a settings file pointing at it.
type env struct {
	fake    *testutil.FakeWML
	dir     string
	config  string
	journal string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	f := testutil.NewFakeWML(t)
	dir := t.TempDir()

	var b strings.Builder
	creds := f.Credentials()
	for _, k := range creds.Keys() {
		fmt.Fprintf(&b, "%q: %q\n", k, creds.Lookup(k))
	}
	fmt.Fprintf(&b, "%q: 1\n", config.KeyStatusRate)
	path := filepath.Join(dir, "wml.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	return &env{fake: f, dir: dir, config: path, journal: filepath.Join(dir, "jobs.db")}
}

// run executes the CLI and returns stdout.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.config, "--journal", e.journal}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *env) entries(t *testing.T) []journal.Entry {
	t.Helper()
	j, err := journal.Open(e.journal)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.List(context.Background())
	require.NoError(t, err)
	return entries
}

func TestSolve_CPLEX(t *testing.T) {
	e := newEnv(t)
	e.fake.RunningPolls = 2
	e.fake.Solve = func([]byte) testutil.Outcome {
		return testutil.Outcome{
			SolveStatus: "optimal_solution",
			Outputs:     map[string][]byte{"solution.xml": []byte(solutionXML), "log.txt": []byte("done")},
		}
	}
	model := e.writeFile(t, "model.lp", "Minimize\n obj: x\nEnd\n")
	outDir := filepath.Join(e.dir, "out")

	out, err := e.run(t, "solve", model, "--format", "json", "--output", outDir)
	require.NoError(t, err)

	data := gjson.Get(out, "data")
	assert.Equal(t, "ok", gjson.Get(out, "status").String())
	assert.Equal(t, "completed", data.Get("state").String())
	assert.Equal(t, "optimal_solution", data.Get("solve_status").String())
	assert.Equal(t, 42.5, data.Get("objective").Float())
	assert.Equal(t, 2.5, data.Get("values.y").Float())
	assert.Equal(t, "12", data.Get("kpis.cost").String())

	written, err := os.ReadFile(filepath.Join(outDir, "solution.xml"))
	require.NoError(t, err)
	assert.Equal(t, solutionXML, string(written))

	payloads := e.fake.Payloads()
	require.Len(t, payloads, 1)
	inputs, err := testutil.InputData(payloads[0])
	require.NoError(t, err)
	assert.Contains(t, inputs, "model.lp")

	assert.Empty(t, e.fake.LiveJobs())
	entries := e.entries(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Deleted())
	assert.Equal(t, "deleted", entries[0].State)
}

func TestSolve_CPOCommand(t *testing.T) {
	e := newEnv(t)
	e.fake.Solve = func([]byte) testutil.Outcome {
		return testutil.Outcome{
			SolveStatus: "infeasible_solution",
			Outputs:     map[string][]byte{"solution.json": []byte(`{"solutionStatus": {"solveStatus": "Infeasible"}}`)},
		}
	}
	model := e.writeFile(t, "plan.cpo", "x = intVar(0..3);\n")

	out, err := e.run(t, "solve", model, "--command", "RefineConflict")
	require.NoError(t, err)
	assert.Contains(t, out, "completed (infeasible_solution)")

	payload := e.fake.Payloads()[0]
	params := gjson.GetBytes(payload, "decision_optimization.solve_parameters")
	assert.Equal(t, "RefineConflict", params.Get(`oaas\.cpo\.command`).String())
	assert.Equal(t, "JSON", params.Get(`oaas\.resultsFormat`).String())

	inputs, err := testutil.InputData(payload)
	require.NoError(t, err)
	assert.Equal(t, "x = intVar(0..3);\n", string(inputs["CPOWithWML.20.1.M.1.cpo"]))

	require.Len(t, e.fake.Deployments(), 1)
	assert.Equal(t, "CPOWithWML.20.1.M.1", e.fake.Deployments()[0].Name)
}

func TestSolve_FailedJob(t *testing.T) {
	e := newEnv(t)
	e.fake.Solve = func([]byte) testutil.Outcome {
		return testutil.Outcome{State: "failed", Failure: "out of memory"}
	}
	model := e.writeFile(t, "model.lp", "Minimize\n obj: x\nEnd\n")

	_, err := e.run(t, "solve", model)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "out of memory")
	assert.Empty(t, e.fake.LiveJobs())
}

func TestSolve_BadFlagsNeverReachTheService(t *testing.T) {
	e := newEnv(t)
	model := e.writeFile(t, "model.lp", "Minimize\n obj: x\nEnd\n")

	for _, args := range [][]string{
		{"solve", model, "--input", "no-equals-sign"},
		{"solve", model, "--engine", "gurobi"},
		{"solve", model, "--command", "Explain"},
		{"solve", filepath.Join(e.dir, "missing.lp")},
	} {
		_, err := e.run(t, args...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), "%v", args)
	}
	assert.Empty(t, e.fake.Requests())
}

func TestJobs_OrphansAndReap(t *testing.T) {
	e := newEnv(t)
	j, err := journal.Open(e.journal)
	require.NoError(t, err)
	require.NoError(t, j.RecordSubmitted(context.Background(), "job-lost", "dep-1"))
	require.NoError(t, j.Close())

	out, err := e.run(t, "jobs", "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "job-lost")
	assert.Contains(t, out, "dep-1")

	out, err = e.run(t, "jobs", "reap")
	require.NoError(t, err)
	assert.Contains(t, out, "reaped 1 job(s)")
	assert.Equal(t, 1, e.fake.Deletions("job-lost"))

	out, err = e.run(t, "jobs", "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	out, err = e.run(t, "jobs", "orphans", "--all", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "deleted", gjson.Get(out, "data.0.state").String())
}

func TestJobs_DeleteNeedsIDsOrAll(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "jobs", "delete")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = e.run(t, "jobs", "delete", "job-1", "--all")
	require.Error(t, err)
}

func TestDeployments_Ensure(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "deployments", "ensure", "--engine", "cpo", "--size", "S")
	require.NoError(t, err)
	assert.Contains(t, out, "CPOWithWML.20.1.S.1")
	require.Len(t, e.fake.Deployments(), 1)

	_, err = e.run(t, "deployments", "ensure", "--engine", "cpo", "--size", "S")
	require.NoError(t, err)
	assert.Len(t, e.fake.Deployments(), 1, "existing deployment reused")
	assert.Len(t, e.fake.Models(), 1)

	out, err = e.run(t, "deployments", "list", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data []map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "CPOWithWML.20.1.S.1", resp.Data[0]["name"])
}

func TestSpace_Clean(t *testing.T) {
	e := newEnv(t)
	e.fake.AddDeployment("dep-1", "CPLEXWithWML.20.1.M.1")
	e.fake.AddModel("model-1", "CPLEXWithWML.20.1.M.1")

	out, err := e.run(t, "space", "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 job(s), 1 deployment(s), 1 model(s)")
	assert.Empty(t, e.fake.Deployments())
	assert.Empty(t, e.fake.Models())
}

func TestBrowse(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "browse", "specs")
	require.NoError(t, err)
	assert.Contains(t, out, "do_22.1")

	out, err = e.run(t, "browse", "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog-1")

	_, err = e.run(t, "browse", "catalog", "space-unknown")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestBrowse_RuntimesNeedNoService(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"browse", "runtimes"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "20.1")
}
