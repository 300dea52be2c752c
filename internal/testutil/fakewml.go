package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
)

// FakeToken is the bearer token the fake service hands out.
const FakeToken = "fake-token"

// RecordedRequest is one call received by FakeWML.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// FakeResource is a listed deployment, model or space.
type FakeResource struct {
	ID   string
	Name string
}

// Outcome is how a fake job ends.
type Outcome struct {
	// State is the terminal state, "completed" when empty.
	State string

	// SolveStatus is reported under solve_state.solve_status when set.
	SolveStatus string

	// Outputs are attached as output_data items.
	Outputs map[string][]byte

	Failure string
}

// FakeWML is an in-process stand-in for the remote job service.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeWML struct {
	*httptest.Server

	mu          sync.Mutex
	requests    []RecordedRequest
	deployments []FakeResource
	models      []FakeResource
	spaces      []FakeResource
	jobs        map[string]*fakeJob
	deleted     map[string]int
	nextID      int

	// Solve decides the outcome of a submitted payload.
	Solve func(payload []byte) Outcome

	// RunningPolls is the number of status polls answered with "running"
	// before the outcome is reported.
	RunningPolls int
}

type fakeJob struct {
	id      string
	payload []byte
	polls   int
	outcome Outcome
}

// NewFakeWML starts a fake service. It is closed when the test ends.
func NewFakeWML(t *testing.T) *FakeWML {
	t.Helper()

	f := &FakeWML{
		jobs:    make(map[string]*fakeJob),
		deleted: make(map[string]int),
		Solve:   func([]byte) Outcome { return Outcome{} },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity/token", f.token)
	mux.HandleFunc("GET /v1/preauth/validateAuth", f.token)
	mux.HandleFunc("POST /ml/v4/deployment_jobs", f.submit)
	mux.HandleFunc("GET /ml/v4/deployment_jobs", f.listJobs)
	mux.HandleFunc("GET /ml/v4/deployment_jobs/{id}", f.status)
	mux.HandleFunc("DELETE /ml/v4/deployment_jobs/{id}", f.deleteJob)
	mux.HandleFunc("GET /ml/v4/deployments", f.listOf(&f.deployments))
	mux.HandleFunc("POST /ml/v4/deployments", f.create(&f.deployments, "deployment"))
	mux.HandleFunc("DELETE /ml/v4/deployments/{id}", f.remove(&f.deployments))
	mux.HandleFunc("GET /ml/v4/models", f.listOf(&f.models))
	mux.HandleFunc("POST /ml/v4/models", f.create(&f.models, "model"))
	mux.HandleFunc("PUT /ml/v4/models/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /ml/v4/models/{id}", f.remove(&f.models))
	mux.HandleFunc("GET /ml/v4/instances", f.listOf(&[]FakeResource{{ID: "instance-1", Name: "wml"}}))
	mux.HandleFunc("GET /v2/spaces", f.listSpaces)
	mux.HandleFunc("POST /v2/spaces", f.create(&f.spaces, "space"))
	mux.HandleFunc("GET /v2/software_specifications", f.listOf(&[]FakeResource{
		{ID: "spec-1", Name: "do_20.1"},
		{ID: "spec-2", Name: "do_22.1"},
	}))
	mux.HandleFunc("GET /v2/catalogs", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"catalogs": []any{
				map[string]any{"metadata": map[string]any{"guid": "catalog-1"}, "entity": map[string]any{"space_id": "space-1"}},
			},
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Credentials returns a public credential table pointing at the fake.
func (f *FakeWML) Credentials() *config.Credentials {
	return config.NewCredentials(map[string]string{
		config.KeyIAMHost:  f.URL,
		config.KeyIAMURL:   "/identity/token",
		config.KeyWMLHost:  f.URL,
		config.KeyPlatform: f.URL,
		config.KeyAPIKey:   "test-api-key",
		config.KeySpaceID:  "space-1",
		config.KeyVersion:  "2021-06-01",
	})
}

// AddDeployment makes a deployment visible in listings.
func (f *FakeWML) AddDeployment(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployments = append(f.deployments, FakeResource{ID: id, Name: name})
}

// AddModel makes a model visible in listings.
func (f *FakeWML) AddModel(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, FakeResource{ID: id, Name: name})
}

// AddSpace makes a space visible in listings.
func (f *FakeWML) AddSpace(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spaces = append(f.spaces, FakeResource{ID: id, Name: name})
}

// Deployments returns the current deployments.
func (f *FakeWML) Deployments() []FakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeResource(nil), f.deployments...)
}

// Models returns the current models.
func (f *FakeWML) Models() []FakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeResource(nil), f.models...)
}

// Requests returns every request received so far.
func (f *FakeWML) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// RequestsTo returns the requests received for method and path.
func (f *FakeWML) RequestsTo(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Payloads returns the submitted job payloads in order.
func (f *FakeWML) Payloads() [][]byte {
	var out [][]byte
	for _, r := range f.RequestsTo(http.MethodPost, "/ml/v4/deployment_jobs") {
		out = append(out, r.Body)
	}
	return out
}

// Deletions returns how many times job id was deleted.
func (f *FakeWML) Deletions(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[id]
}

// LiveJobs returns the ids of jobs not deleted yet.
func (f *FakeWML) LiveJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InputData decodes the input_data attachments of a job payload.
func InputData(payload []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, item := range gjson.GetBytes(payload, "decision_optimization.input_data").Array() {
		data, err := base64.StdEncoding.DecodeString(item.Get("content").String())
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", item.Get("id").String(), err)
		}
		out[item.Get("id").String()] = data
	}
	return out, nil
}

func (f *FakeWML) record(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	return body
}

func (f *FakeWML) newID(kind string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", kind, f.nextID)
}

func (f *FakeWML) token(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	writeJSON(w, http.StatusOK, map[string]any{"access_token": FakeToken, "expires_in": 3600})
}

func (f *FakeWML) submit(w http.ResponseWriter, r *http.Request) {
	body := f.record(r)
	if !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []any{"invalid payload"}})
		return
	}
	outcome := f.Solve(body)

	f.mu.Lock()
	id := f.newID("job")
	f.jobs[id] = &fakeJob{id: id, payload: body, outcome: outcome}
	f.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"entity":   map[string]any{"decision_optimization": map[string]any{"status": map[string]any{"state": "queued"}}},
		"metadata": map[string]any{"id": id, "name": gjson.GetBytes(body, "name").String()},
	})
}

func (f *FakeWML) status(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	f.mu.Lock()
	j, ok := f.jobs[r.PathValue("id")]
	if !ok {
		f.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": []any{"no such job"}})
		return
	}
	j.polls++
	running := j.polls <= f.RunningPolls
	f.mu.Unlock()

	if running {
		writeJSON(w, http.StatusOK, statusDocument(j.id, Outcome{State: "running"}))
		return
	}
	writeJSON(w, http.StatusOK, statusDocument(j.id, j.outcome))
}

func statusDocument(id string, o Outcome) map[string]any {
	state := o.State
	if state == "" {
		state = "completed"
	}
	status := map[string]any{"state": state}
	if o.Failure != "" {
		status["failure"] = map[string]any{"errors": []any{map[string]any{"message": o.Failure}}}
	}
	do := map[string]any{"status": status}
	if o.SolveStatus != "" {
		do["solve_state"] = map[string]any{
			"solve_status":           o.SolveStatus,
			"latest_engine_activity": []any{"engine started", "engine finished"},
			"details":                map[string]any{"KPI.cost": "12"},
		}
	}
	if len(o.Outputs) > 0 {
		ids := make([]string, 0, len(o.Outputs))
		for k := range o.Outputs {
			ids = append(ids, k)
		}
		sort.Strings(ids)
		var outputs []any
		for _, k := range ids {
			outputs = append(outputs, map[string]any{
				"id":      k,
				"content": base64.StdEncoding.EncodeToString(o.Outputs[k]),
			})
		}
		do["output_data"] = outputs
	}
	return map[string]any{
		"metadata": map[string]any{"id": id},
		"entity":   map[string]any{"decision_optimization": do},
	}
}

func (f *FakeWML) deleteJob(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	id := r.PathValue("id")
	f.mu.Lock()
	f.deleted[id]++
	delete(f.jobs, id)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeWML) listJobs(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	f.mu.Lock()
	ids := make([]string, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	sort.Strings(ids)
	res := make([]FakeResource, 0, len(ids))
	for _, id := range ids {
		res = append(res, FakeResource{ID: id, Name: "Job"})
	}
	writeJSON(w, http.StatusOK, resourceList(res, "metadata"))
}

func (f *FakeWML) listSpaces(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	f.mu.Lock()
	spaces := append([]FakeResource(nil), f.spaces...)
	f.mu.Unlock()
	doc := resourceList(spaces, "entity")
	for _, item := range doc["resources"].([]any) {
		entity := item.(map[string]any)["entity"].(map[string]any)
		entity["storage"] = map[string]any{"type": "bmcos_object_storage"}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *FakeWML) listOf(list *[]FakeResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		items := append([]FakeResource(nil), *list...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, resourceList(items, "metadata"))
	}
}

func (f *FakeWML) create(list *[]FakeResource, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		f.mu.Lock()
		id := f.newID(kind)
		*list = append(*list, FakeResource{ID: id, Name: gjson.GetBytes(body, "name").String()})
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"metadata": map[string]any{"id": id}})
	}
}

func (f *FakeWML) remove(list *[]FakeResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		id := r.PathValue("id")
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, item := range *list {
			if item.ID == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

// resourceList renders items in the v4 list shape. nameIn selects whether
// names live under metadata (models, deployments) or entity (spaces).
func resourceList(items []FakeResource, nameIn string) map[string]any {
	res := make([]any, 0, len(items))
	for _, it := range items {
		md := map[string]any{"id": it.ID}
		entity := map[string]any{}
		if nameIn == "entity" {
			entity["name"] = it.Name
		} else {
			md["name"] = it.Name
		}
		res = append(res, map[string]any{"metadata": md, "entity": entity})
	}
	return map[string]any{"resources": res}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
