package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/export"
)

// Service is the remote surface the controller needs.
//
// Each method performs one request. A nil body with a nil error means the
// service answered with a non-success status.
type Service interface {
	SubmitJob(ctx context.Context, payload []byte) ([]byte, error)
	JobStatus(ctx context.Context, id string) ([]byte, error)
	DeleteJob(ctx context.Context, id string) error
}

// Recorder is notified of lifecycle transitions. It is used to keep a local
// ledger of remote jobs so leaked jobs can be found later.
type Recorder interface {
	RecordSubmitted(ctx context.Context, id, deploymentID string) error
	RecordState(ctx context.Context, id, state string) error
	RecordDeleted(ctx context.Context, id string) error
}

// Sleeper pauses between polls.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on a timer and honours context cancellation.
type RealSleeper struct{}

// Sleep implements Sleeper.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller runs jobs against a Service.
type Controller struct {
	svc      Service
	rate     time.Duration
	progress bool
	sleeper  Sleeper
	recorder Recorder
	exporter *export.Dir
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the pause between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.rate = d }
}

// WithEngineProgress enables logging of the engine log tail on every poll.
func WithEngineProgress(on bool) Option {
	return func(c *Controller) { c.progress = on }
}

// WithSleeper replaces the poll sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// WithRecorder attaches a lifecycle recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithExporter dumps the final status document and outputs of every job.
func WithExporter(d *export.Dir) Option {
	return func(c *Controller) { c.exporter = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller polling every 500ms by default.
func NewController(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		rate:     500 * time.Millisecond,
		progress: true,
		sleeper:  RealSleeper{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates the remote job. The job id is read from metadata.id,
// whichever of metadata and entity comes first in the answer.
func (c *Controller) Submit(ctx context.Context, deploymentID string, payload []byte) (*Job, error) {
	c.logger.Info("create engine job", "deployment_id", deploymentID, "bytes", len(payload))

	start := time.Now()
	res, err := c.svc.SubmitJob(ctx, payload)
	if err != nil {
		return nil, &SubmitError{DeploymentID: deploymentID, Message: "request failed", Err: err}
	}
	if res == nil {
		return nil, &SubmitError{DeploymentID: deploymentID, Message: "service returned no answer"}
	}
	id := gjson.GetBytes(res, "metadata.id").String()
	if id == "" {
		return nil, &SubmitError{DeploymentID: deploymentID, Message: "answer carries no metadata.id"}
	}

	c.logger.Info("job created", "job_id", id, "elapsed", time.Since(start).Round(time.Millisecond))
	c.record(func() error { return c.recorder.RecordSubmitted(ctx, id, deploymentID) })

	return &Job{ID: id, DeploymentID: deploymentID}, nil
}

// Refresh fetches the current status document of j.
func (c *Controller) Refresh(ctx context.Context, j *Job) error {
	res, err := c.svc.JobStatus(ctx, j.ID)
	if err != nil {
		return err
	}
	if res == nil || !gjson.ValidBytes(res) {
		return fmt.Errorf("job %s: unreadable status answer", j.ID)
	}
	j.status = res
	return nil
}

// AwaitTerminal polls j until it reaches a terminal state.
//
// A failed poll is logged and polling continues. There is no deadline of
// its own; cancel ctx to stop waiting.
func (c *Controller) AwaitTerminal(ctx context.Context, j *Job) (State, error) {
	for {
		if err := c.sleeper.Sleep(ctx, c.rate); err != nil {
			return StateUnknown, err
		}

		var state State
		if err := c.Refresh(ctx, j); err != nil {
			if ctx.Err() != nil {
				return StateUnknown, ctx.Err()
			}
			c.logger.Error("status refresh failed", "job_id", j.ID, "error", err)
		} else {
			state = j.State()
			c.logProgress(j)
		}

		c.logger.Info("job state", "job_id", j.ID, "state", state)
		if state == StateUnknown || state == StateFailed {
			failure, _ := j.Failure()
			c.logger.Error("job failure", "job_id", j.ID, "failure", failure)
		}

		if state.Terminal() {
			c.record(func() error { return c.recorder.RecordState(ctx, j.ID, string(state)) })
			c.exportAnswer(j)
			return state, nil
		}
	}
}

func (c *Controller) logProgress(j *Job) {
	if !j.HasSolveState() {
		return
	}
	if s, ok := j.SolveStatus(); ok {
		c.logger.Info("solve status", "job_id", j.ID, "status", s)
	}
	if c.progress {
		if lines := j.LatestEngineActivity(); len(lines) > 0 {
			c.logger.Info("latest engine activity", "job_id", j.ID, "log", strings.Join(lines, "\n"))
		}
	}
	for _, k := range j.KPIs() {
		c.logger.Info("kpi", "name", k.Name, "value", k.Value)
	}
}

// ExtractArtifact returns the content of the output matching pattern. It
// only yields data for completed jobs.
func (c *Controller) ExtractArtifact(j *Job, pattern string) ([]byte, bool) {
	if j.State() != StateCompleted {
		return nil, false
	}
	return j.lookup(pattern)
}

// Cleanup deletes the remote job. Only the first call on a given job
// reaches the service.
func (c *Controller) Cleanup(ctx context.Context, j *Job) error {
	if j == nil || j.deleted {
		return nil
	}
	j.deleted = true

	if err := c.svc.DeleteJob(ctx, j.ID); err != nil {
		c.logger.Error("delete job failed", "job_id", j.ID, "error", err)
		return fmt.Errorf("delete job %s: %w", j.ID, err)
	}
	c.logger.Info("job deleted", "job_id", j.ID)
	c.record(func() error { return c.recorder.RecordDeleted(ctx, j.ID) })
	return nil
}

// Run submits a job, waits for a terminal state and hands the job to fn.
// The remote job is deleted before Run returns, including when fn fails or
// panics and when ctx is canceled.
func (c *Controller) Run(ctx context.Context, deploymentID string, payload []byte, fn func(*Job, State) error) (err error) {
	j, err := c.Submit(ctx, deploymentID, payload)
	if err != nil {
		return err
	}
	defer func() {
		cerr := c.Cleanup(context.WithoutCancel(ctx), j)
		if err == nil {
			err = cerr
		}
	}()

	state, err := c.AwaitTerminal(ctx, j)
	if err != nil {
		return err
	}
	c.logger.Info("job final state", "job_id", j.ID, "state", state)
	return fn(j, state)
}

func (c *Controller) exportAnswer(j *Job) {
	s := c.exporter.Session()
	if s == nil {
		return
	}
	s.Write("wml_answer.json", j.Status())
	outputs, err := j.Outputs()
	if err != nil {
		c.logger.Info("ignoring export error", "error", err)
		return
	}
	for _, a := range outputs {
		s.Write(a.ID, a.Content)
	}
}

func (c *Controller) record(fn func() error) {
	if c.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		c.logger.Warn("job journal update failed", "error", err)
	}
}
