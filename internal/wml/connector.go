package wml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/export"
	"github.com/roach88/wmlbridge/internal/transport"
)

// REST endpoints.
const (
	pathJobs           = "/ml/v4/deployment_jobs"
	pathModels         = "/ml/v4/models"
	pathDeployments    = "/ml/v4/deployments"
	pathInstances      = "/ml/v4/instances"
	pathSoftwareSpecs  = "/v2/software_specifications"
	pathSpaces         = "/v2/spaces"
	pathCatalogs       = "/v2/catalogs"
	paramVersion       = "version"
	paramSpaceID       = "space_id"
	paramHardDelete    = "hard_delete"
	paramContentFormat = "content_format"
)

// ErrNoAnswer is returned when the service answered a request with a
// non-success status.
var ErrNoAnswer = errors.New("service returned no answer")

// Authorizer yields the current Authorization header value.
type Authorizer interface {
	Authorization() string
}

// Connector is a configured WML v4 client.
type Connector struct {
	client   *transport.Client
	auth     Authorizer
	creds    *config.Credentials
	settings config.Settings

	runtime Runtime
	size    TShirtSize
	nodes   int

	exporter *export.Dir
	logger   *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithRuntime selects the Decision Optimization runtime.
func WithRuntime(r Runtime) Option {
	return func(c *Connector) { c.runtime = r }
}

// WithSize selects the deployment hardware specification.
func WithSize(s TShirtSize) Option {
	return func(c *Connector) { c.size = s }
}

// WithNodes sets the deployment node count.
func WithNodes(n int) Option {
	return func(c *Connector) { c.nodes = n }
}

// WithExporter dumps every payload under the export root.
func WithExporter(d *export.Dir) Option {
	return func(c *Connector) { c.exporter = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// NewConnector creates a Connector. The defaults are runtime 20.1, size M
// and one node; a zero node count is rejected.
func NewConnector(client *transport.Client, auth Authorizer, creds *config.Credentials, settings config.Settings, opts ...Option) (*Connector, error) {
	c := &Connector{
		client:   client,
		auth:     auth,
		creds:    creds,
		settings: settings,
		runtime:  DefaultRuntime,
		size:     SizeM,
		nodes:    1,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nodes <= 0 {
		return nil, &config.Error{
			Code:    config.ErrCodeInvalidValue,
			Message: fmt.Sprintf("cannot deploy on %d nodes", c.nodes),
		}
	}
	if _, err := creds.Require(config.KeyWMLHost); err != nil {
		return nil, err
	}
	c.logger.Info("connector using v4 APIs",
		"runtime", c.runtime.String(),
		"size", string(c.size),
		"nodes", c.nodes,
		"token_refresh", c.settings.RefreshRate,
		"status_rate", c.settings.StatusRate)
	return c, nil
}

// Runtime returns the configured runtime.
func (c *Connector) Runtime() Runtime { return c.runtime }

// Size returns the configured T-shirt size.
func (c *Connector) Size() TShirtSize { return c.size }

// Nodes returns the configured node count.
func (c *Connector) Nodes() int { return c.nodes }

// Settings returns the tunables the connector was built with.
func (c *Connector) Settings() config.Settings { return c.settings }

// DeploymentName returns the name of the deployment used for engine.
func (c *Connector) DeploymentName(engine Engine) string {
	return DeploymentName(engine, c.runtime, c.size, c.nodes)
}

func (c *Connector) wmlHost() string {
	return c.creds.Lookup(config.KeyWMLHost)
}

func (c *Connector) platformParams() transport.Params {
	return transport.Params{paramVersion: c.creds.Lookup(config.KeyVersion)}
}

func (c *Connector) wmlParams() transport.Params {
	p := c.platformParams()
	p[paramSpaceID] = c.creds.Lookup(config.KeySpaceID)
	return p
}

func (c *Connector) platformHeaders() transport.Headers {
	return transport.Headers{transport.HeaderAuthorization: c.auth.Authorization()}
}

func (c *Connector) wmlHeaders() transport.Headers {
	h := c.platformHeaders()
	h[transport.HeaderCacheControl] = "no-cache"
	return h
}

func (c *Connector) jsonHeaders() transport.Headers {
	h := c.wmlHeaders()
	h[transport.HeaderAccept] = transport.ContentTypeJSON
	h[transport.HeaderContentType] = transport.ContentTypeJSON
	return h
}

func answer(op string, body []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoAnswer)
	}
	return body, nil
}

func parseJSON(op string, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON answer", op)
	}
	return gjson.ParseBytes(body), nil
}

// SubmitJob posts a job payload. It implements job.Service.
func (c *Connector) SubmitJob(ctx context.Context, payload []byte) ([]byte, error) {
	return c.client.Post(ctx, c.wmlHost(), pathJobs, c.wmlParams(), c.jsonHeaders(), payload)
}

// JobStatus fetches the status document of a job. It implements
// job.Service.
func (c *Connector) JobStatus(ctx context.Context, id string) ([]byte, error) {
	h := c.wmlHeaders()
	h[transport.HeaderAccept] = transport.ContentTypeJSON
	return c.client.Get(ctx, c.wmlHost(), pathJobs+"/"+id, c.wmlParams(), h)
}

// DeleteJob deletes a job, keeping its history unless the hard delete
// setting is on. It implements job.Service.
func (c *Connector) DeleteJob(ctx context.Context, id string) error {
	return c.delete(ctx, pathJobs+"/"+id, transport.Params{
		paramHardDelete: strconv.FormatBool(c.settings.HardDelete),
	})
}

func (c *Connector) delete(ctx context.Context, path string, extra transport.Params) error {
	h := c.wmlHeaders()
	h[transport.HeaderAccept] = transport.ContentTypeJSON
	p := c.wmlParams()
	for k, v := range extra {
		p[k] = v
	}
	body, err := c.client.Delete(ctx, c.wmlHost(), path, p, h)
	_, err = answer("delete "+path, body, err)
	return err
}
