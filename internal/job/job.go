package job

import (
	"encoding/base64"
	"encoding/csv"
	"path"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Status document paths.
const (
	pathDO          = "entity.decision_optimization"
	pathState       = pathDO + ".status.state"
	pathFailure     = pathDO + ".status.failure"
	pathSolveState  = pathDO + ".solve_state"
	pathSolveStatus = pathSolveState + ".solve_status"
	pathActivity    = pathSolveState + ".latest_engine_activity"
	pathDetails     = pathSolveState + ".details"
	pathOutputData  = pathDO + ".output_data"
)

// Well-known artifact ids.
const (
	ArtifactSolutionJSON = "solution.json"
	ArtifactSolutionXML  = "solution.xml"
	ArtifactLog          = "log.txt"
	ArtifactTables       = "*.csv"
)

// Job is a remote job handle together with its last known status document.
// It is owned by a single goroutine.
type Job struct {
	ID           string
	DeploymentID string

	status  []byte
	deleted bool
}

// Status returns the raw last status document, or nil before the first poll.
func (j *Job) Status() []byte {
	return j.status
}

// State derives the job state from the last status document.
func (j *Job) State() State {
	return ParseState(gjson.GetBytes(j.status, pathState).String())
}

// HasSolveState reports whether the engine published solve progress.
func (j *Job) HasSolveState() bool {
	return gjson.GetBytes(j.status, pathSolveState).Exists()
}

// SolveStatus returns the engine solve status, such as "optimal_solution".
func (j *Job) SolveStatus() (string, bool) {
	r := gjson.GetBytes(j.status, pathSolveStatus)
	return r.String(), r.Exists()
}

// LatestEngineActivity returns the tail of the engine log.
func (j *Job) LatestEngineActivity() []string {
	var lines []string
	for _, r := range gjson.GetBytes(j.status, pathActivity).Array() {
		lines = append(lines, r.String())
	}
	return lines
}

// KPI is one key performance indicator reported during the solve.
type KPI struct {
	Name  string
	Value string
}

// KPIs returns the "KPI."-prefixed solve details sorted by name.
func (j *Job) KPIs() []KPI {
	var kpis []KPI
	gjson.GetBytes(j.status, pathDetails).ForEach(func(key, value gjson.Result) bool {
		if name, ok := strings.CutPrefix(key.String(), "KPI."); ok {
			kpis = append(kpis, KPI{Name: name, Value: value.String()})
		}
		return true
	})
	sort.Slice(kpis, func(a, b int) bool { return kpis[a].Name < kpis[b].Name })
	return kpis
}

// Failure returns the failure detail of a failed job.
func (j *Job) Failure() (string, bool) {
	r := gjson.GetBytes(j.status, pathFailure)
	if !r.Exists() {
		return "missing failure in service answer", false
	}
	return r.Raw, true
}

// Artifact is one output item of a job.
type Artifact struct {
	ID      string
	Content []byte
}

// Outputs decodes every output item of the last status document. Items
// carrying a table (fields and values) instead of base64 content are
// rendered as CSV text preceded by their id.
func (j *Job) Outputs() ([]Artifact, error) {
	var (
		out  []Artifact
		ferr error
	)
	gjson.GetBytes(j.status, pathOutputData).ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if content := item.Get("content"); content.Exists() {
			data, err := base64.StdEncoding.DecodeString(content.String())
			if err != nil {
				ferr = err
				return false
			}
			out = append(out, Artifact{ID: id, Content: data})
			return true
		}
		if item.Get("fields").Exists() {
			out = append(out, Artifact{ID: id, Content: renderTable(id, item)})
		}
		return true
	})
	return out, ferr
}

// lookup returns the first output whose id equals pattern or matches it as
// a shell pattern ("*.csv"). Table outputs matching the pattern are
// concatenated.
func (j *Job) lookup(pattern string) ([]byte, bool) {
	outputs, err := j.Outputs()
	if err != nil {
		return nil, false
	}

	var tables []byte
	for _, a := range outputs {
		if a.ID == pattern {
			return a.Content, true
		}
		if ok, _ := path.Match(pattern, a.ID); ok {
			if strings.HasSuffix(a.ID, "csv") {
				tables = append(tables, a.Content...)
				continue
			}
			return a.Content, true
		}
	}
	if tables != nil {
		return tables, true
	}
	return nil, false
}

func renderTable(id string, item gjson.Result) []byte {
	var b strings.Builder
	b.WriteString(id)
	b.WriteString("\n")

	w := csv.NewWriter(&b)
	var header []string
	for _, f := range item.Get("fields").Array() {
		header = append(header, f.String())
	}
	_ = w.Write(header)
	for _, row := range item.Get("values").Array() {
		var rec []string
		for _, cell := range row.Array() {
			rec = append(rec, cell.String())
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return []byte(b.String())
}
