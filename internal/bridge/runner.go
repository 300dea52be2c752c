package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/job"
	"github.com/roach88/wmlbridge/internal/model"
	"github.com/roach88/wmlbridge/internal/wml"
)

// Names of the solution outputs produced by the remote engines.
const (
	xmlSolutionOutput  = "solution.xml"
	jsonSolutionOutput = "solution.json"
)

// Solve status reported by the service when the model has no solution.
const infeasibleSolution = "infeasible_solution"

// Remote is the service surface the solvers need. *wml.Connector
// implements it.
type Remote interface {
	job.Service
	Settings() config.Settings
	DeploymentName(e wml.Engine) string
	GetOrMakeDeployment(ctx context.Context, e wml.Engine) (string, error)
	BuildPayload(req wml.PayloadRequest) ([]byte, error)
}

// IDGenerator produces the unique part of temporary artifact names.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids, so leftover
// temporary files sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a solver.
type Option func(*runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithTempDir sets the directory receiving the temporary model files.
func WithTempDir(dir string) Option {
	return func(r *runner) { r.tempDir = dir }
}

// WithIDGenerator replaces the UUIDv7 generator used for temporary names.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *runner) { r.ids = g }
}

// WithJobOptions passes options to the job controller, after the ones
// derived from the remote settings.
func WithJobOptions(opts ...job.Option) Option {
	return func(r *runner) { r.jobOpts = append(r.jobOpts, opts...) }
}

// runner holds what the LP and CP solvers share: the remote service, the
// job controller and temporary file handling.
type runner struct {
	remote  Remote
	ctrl    *job.Controller
	ids     IDGenerator
	tempDir string
	logger  *slog.Logger
	jobOpts []job.Option
}

func newRunner(remote Remote, opts []Option) *runner {
	r := &runner{
		remote:  remote,
		ids:     UUIDv7Generator{},
		tempDir: os.TempDir(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	s := remote.Settings()
	base := []job.Option{
		job.WithPollInterval(s.StatusRate),
		job.WithEngineProgress(s.EngineProgress),
		job.WithLogger(r.logger),
	}
	r.ctrl = job.NewController(remote, append(base, r.jobOpts...)...)
	return r
}

// applyTimeLimit sets the configured time limit on models still at their
// default limit.
func (r *runner) applyTimeLimit(p model.Parameters) {
	if _, isDefault := p.TimeLimit(); !isDefault {
		return
	}
	limit := r.remote.Settings().TimeLimit
	if limit <= 0 {
		return
	}
	p.SetTimeLimit(limit.Seconds())
	r.logger.Info("applying default time limit", "seconds", limit.Seconds())
}

// scratch is the set of temporary files of one solve. They share a base
// name and are removed together.
type scratch struct {
	base   string
	paths  []string
	logger *slog.Logger
}

func (r *runner) scratch(prefix string) *scratch {
	return &scratch{
		base:   filepath.Join(r.tempDir, prefix+r.ids.Generate()),
		logger: r.logger,
	}
}

// path returns the temporary file with extension ext and schedules it for
// removal.
func (s *scratch) path(ext string) string {
	p := s.base + ext
	s.paths = append(s.paths, p)
	return p
}

func (s *scratch) remove() {
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove temporary file", "path", p, "error", err)
		}
	}
}

// outcome is what a finished job left behind.
type outcome struct {
	jobID       string
	solveStatus string
	artifact    []byte
	found       bool
}

// infeasible reports whether the service declared the model infeasible.
func (o outcome) infeasible() bool {
	return o.solveStatus == infeasibleSolution
}

// run submits payload, waits for the job and extracts the output named
// artifact. The remote job is deleted before run returns.
func (r *runner) run(ctx context.Context, deploymentID string, payload []byte, artifact string) (outcome, error) {
	var out outcome
	err := r.ctrl.Run(ctx, deploymentID, payload, func(j *job.Job, state job.State) error {
		out.jobID = j.ID
		if !j.HasSolveState() {
			msg := fmt.Sprintf("job %s ended %s without a solve state", j.ID, state)
			if failure, ok := j.Failure(); ok {
				msg += ": " + failure
			}
			return &SolveError{Code: ErrCodeNoSolveState, Message: msg, JobStatus: j.Status()}
		}
		out.solveStatus, _ = j.SolveStatus()
		r.logger.Info("solve status", "job_id", j.ID, "status", out.solveStatus)
		out.artifact, out.found = r.ctrl.ExtractArtifact(j, artifact)
		return nil
	})
	return out, err
}
