package wml

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/transport"
)

// Resource is one entry of a list answer.
type Resource struct {
	ID        string
	Name      string
	CreatedAt string
}

func resources(list gjson.Result) []Resource {
	out := []Resource{}
	list.Get("resources").ForEach(func(_, r gjson.Result) bool {
		name := r.Get("metadata.name").String()
		if name == "" {
			name = r.Get("entity.name").String()
		}
		out = append(out, Resource{
			ID:        r.Get("metadata.id").String(),
			Name:      name,
			CreatedAt: r.Get("metadata.created_at").String(),
		})
		return true
	})
	return out
}

func (c *Connector) list(ctx context.Context, path string) ([]Resource, error) {
	h := c.wmlHeaders()
	h[transport.HeaderAccept] = transport.ContentTypeJSON
	body, err := c.client.Get(ctx, c.wmlHost(), path, c.wmlParams(), h)
	if body, err = answer("list "+path, body, err); err != nil {
		return nil, err
	}
	doc, err := parseJSON("list "+path, body)
	if err != nil {
		return nil, err
	}
	return resources(doc), nil
}

// Deployments lists the deployments of the space.
func (c *Connector) Deployments(ctx context.Context) ([]Resource, error) {
	return c.list(ctx, pathDeployments)
}

// Models lists the models of the space.
func (c *Connector) Models(ctx context.Context) ([]Resource, error) {
	return c.list(ctx, pathModels)
}

// Jobs lists the deployment jobs of the space.
func (c *Connector) Jobs(ctx context.Context) ([]Resource, error) {
	return c.list(ctx, pathJobs)
}

// DeploymentIDByName returns the id of the deployment called name.
func (c *Connector) DeploymentIDByName(ctx context.Context, name string) (string, bool, error) {
	deps, err := c.Deployments(ctx)
	if err != nil {
		return "", false, err
	}
	for _, d := range deps {
		if d.Name == name {
			return d.ID, true, nil
		}
	}
	c.logger.Info("deployment does not exist", "name", name)
	return "", false, nil
}

type modelRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Type         string   `json:"type"`
	SoftwareSpec namedRef `json:"software_spec"`
	SpaceID      string   `json:"space_id"`
}

type namedRef struct {
	Name string `json:"name"`
}

type idRef struct {
	ID string `json:"id"`
}

type deploymentRequest struct {
	Name         string   `json:"name"`
	SpaceID      string   `json:"space_id"`
	Asset        idRef    `json:"asset"`
	HardwareSpec namedRef `json:"hardware_spec"`
	NumNodes     int      `json:"num_nodes"`
	Batch        struct{} `json:"batch"`
}

func (c *Connector) postJSON(ctx context.Context, op, host, path string, params transport.Params, headers transport.Headers, v any) (gjson.Result, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	headers[transport.HeaderContentType] = transport.ContentTypeJSON
	body, err := c.client.Post(ctx, host, path, params, headers, payload)
	if body, err = answer(op, body, err); err != nil {
		return gjson.Result{}, err
	}
	return parseJSON(op, body)
}

// CreateModel creates an empty model asset of the given kind on the
// configured runtime and returns its id.
func (c *Connector) CreateModel(ctx context.Context, name string, kind ModelKind) (string, error) {
	doc, err := c.postJSON(ctx, "create model", c.wmlHost(), pathModels, c.platformParams(), c.wmlHeaders(), modelRequest{
		Name:         name,
		Description:  name,
		Type:         c.runtime.ModelType(kind),
		SoftwareSpec: namedRef{Name: c.runtime.SoftwareSpec()},
		SpaceID:      c.SpaceID(),
	})
	if err != nil {
		return "", err
	}
	id := doc.Get("metadata.id").String()
	if id == "" {
		return "", fmt.Errorf("create model %s: answer carries no metadata.id", name)
	}
	c.logger.Info("model created", "name", name, "model_id", id)
	return id, nil
}

// UploadModelContent stores a model archive as the content of a model
// asset.
func (c *Connector) UploadModelContent(ctx context.Context, modelID string, content []byte) error {
	p := c.wmlParams()
	p[paramContentFormat] = "native"
	body, err := c.client.Put(ctx, c.wmlHost(), pathModels+"/"+modelID+"/content", p, c.wmlHeaders(), content)
	_, err = answer("upload model content", body, err)
	return err
}

// DeployModel creates a batch deployment of a model with the configured
// size and node count and returns its id.
func (c *Connector) DeployModel(ctx context.Context, name, modelID string) (string, error) {
	doc, err := c.postJSON(ctx, "deploy model", c.wmlHost(), pathDeployments, c.platformParams(), c.wmlHeaders(), deploymentRequest{
		Name:         name,
		SpaceID:      c.SpaceID(),
		Asset:        idRef{ID: modelID},
		HardwareSpec: namedRef{Name: string(c.size)},
		NumNodes:     c.nodes,
	})
	if err != nil {
		return "", err
	}
	id := doc.Get("metadata.id").String()
	if id == "" {
		return "", fmt.Errorf("deploy model %s: answer carries no metadata.id", name)
	}
	c.logger.Info("deployment created", "name", name, "deployment_id", id)
	return id, nil
}

// GetOrMakeDeployment returns the id of the conventional deployment for
// engine, creating the model and the deployment when it does not exist.
func (c *Connector) GetOrMakeDeployment(ctx context.Context, engine Engine) (string, error) {
	name := c.DeploymentName(engine)
	id, ok, err := c.DeploymentIDByName(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		c.logger.Info("reusing deployment", "name", name, "deployment_id", id)
		return id, nil
	}

	c.logger.Info("creating model and deployment", "name", name, "runtime", c.runtime.String())
	modelID, err := c.CreateModel(ctx, name, engine.Kind())
	if err != nil {
		return "", err
	}
	return c.DeployModel(ctx, name, modelID)
}

// DeleteModel deletes a model asset.
func (c *Connector) DeleteModel(ctx context.Context, id string) error {
	return c.delete(ctx, pathModels+"/"+id, nil)
}

// DeleteDeployment deletes a deployment.
func (c *Connector) DeleteDeployment(ctx context.Context, id string) error {
	return c.delete(ctx, pathDeployments+"/"+id, nil)
}

func (c *Connector) deleteAll(ctx context.Context, what string, list func(context.Context) ([]Resource, error), del func(context.Context, string) error) (int, error) {
	items, err := list(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range items {
		if err := del(ctx, r.ID); err != nil {
			return 0, fmt.Errorf("delete %s %s: %w", what, r.ID, err)
		}
	}
	c.logger.Info("deleted "+what, "count", len(items))
	return len(items), nil
}

// CleanStats counts what CleanSpace removed.
type CleanStats struct {
	Jobs        int
	Deployments int
	Models      int
}

// CleanSpace deletes every job, deployment and model of the space, in
// that order.
func (c *Connector) CleanSpace(ctx context.Context) (CleanStats, error) {
	var (
		s   CleanStats
		err error
	)
	if s.Jobs, err = c.deleteAll(ctx, "jobs", c.Jobs, c.DeleteJob); err != nil {
		return s, err
	}
	if s.Deployments, err = c.deleteAll(ctx, "deployments", c.Deployments, c.DeleteDeployment); err != nil {
		return s, err
	}
	if s.Models, err = c.deleteAll(ctx, "models", c.Models, c.DeleteModel); err != nil {
		return s, err
	}
	c.logger.Info("space cleaned", "jobs", s.Jobs, "deployments", s.Deployments, "models", s.Models)
	return s, nil
}
