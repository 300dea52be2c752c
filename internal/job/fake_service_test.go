package job

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

// fakeService scripts answers to status polls and counts deletes.
type fakeService struct {
	mu        sync.Mutex
	submitRes []byte
	submitErr error
	statuses  []statusAnswer
	polls     int
	deletes   []string
	deleteErr error
}

type statusAnswer struct {
	body []byte
	err  error
}

func (f *fakeService) SubmitJob(ctx context.Context, payload []byte) ([]byte, error) {
	return f.submitRes, f.submitErr
}

func (f *fakeService) JobStatus(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i].body, f.statuses[i].err
}

func (f *fakeService) DeleteJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

var errNetwork = errors.New("connection reset by peer")

func statusDoc(state string, outputs ...string) []byte {
	out := ""
	for i := 0; i+1 < len(outputs); i += 2 {
		if out != "" {
			out += ","
		}
		out += fmt.Sprintf(`{"id":%q,"content":%q}`, outputs[i], base64.StdEncoding.EncodeToString([]byte(outputs[i+1])))
	}
	return []byte(fmt.Sprintf(`{"metadata":{"id":"job-1"},"entity":{"decision_optimization":{
		"status":{"state":%q},
		"solve_state":{"solve_status":"optimal_solution","latest_engine_activity":["line 1","line 2"],
			"details":{"KPI.cost":"12","KPI.alpha":"3","PROGRESS_GAP":"0"}},
		"output_data":[%s]}}}`, state, out))
}

func submitted(id string) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"id":%q,"name":"Job_for_dep"},"entity":{"deployment":{"id":"dep"}}}`, id))
}

type recordedEvent struct {
	kind, id, value string
}

type fakeRecorder struct {
	events []recordedEvent
}

func (r *fakeRecorder) RecordSubmitted(ctx context.Context, id, deploymentID string) error {
	r.events = append(r.events, recordedEvent{"submitted", id, deploymentID})
	return nil
}

func (r *fakeRecorder) RecordState(ctx context.Context, id, state string) error {
	r.events = append(r.events, recordedEvent{"state", id, state})
	return nil
}

func (r *fakeRecorder) RecordDeleted(ctx context.Context, id string) error {
	r.events = append(r.events, recordedEvent{"deleted", id, ""})
	return nil
}
