package wml

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/transport"
)

// ErrPrivatePlatform is returned by calls the private platform does not
// serve.
var ErrPrivatePlatform = errors.New("not available on the private platform")

// SpaceID is the configured deployment space.
func (c *Connector) SpaceID() string {
	return c.creds.Lookup(config.KeySpaceID)
}

func (c *Connector) platformHost() (string, error) {
	if h := c.creds.PlatformHost(); h != "" {
		return h, nil
	}
	return c.creds.Require(config.KeyPlatform)
}

func (c *Connector) private() bool {
	t, err := c.creds.DeploymentType()
	return err == nil && t == config.Private
}

func (c *Connector) getPlatform(ctx context.Context, op, path string, params transport.Params) (gjson.Result, error) {
	host, err := c.platformHost()
	if err != nil {
		return gjson.Result{}, err
	}
	body, err := c.client.Get(ctx, host, path, params, c.platformHeaders())
	if body, err = answer(op, body, err); err != nil {
		return gjson.Result{}, err
	}
	return parseJSON(op, body)
}

// SoftwareSpecifications lists the software specifications of the
// platform.
func (c *Connector) SoftwareSpecifications(ctx context.Context) ([]Resource, error) {
	doc, err := c.getPlatform(ctx, "list software specifications", pathSoftwareSpecs, c.platformParams())
	if err != nil {
		return nil, err
	}
	return resources(doc), nil
}

// Spaces lists the deployment spaces visible to the credentials.
func (c *Connector) Spaces(ctx context.Context) ([]Resource, error) {
	doc, err := c.getPlatform(ctx, "list spaces", pathSpaces, c.platformParams())
	if err != nil {
		return nil, err
	}
	return resources(doc), nil
}

// SpaceIDByName returns the id of the space called name.
func (c *Connector) SpaceIDByName(ctx context.Context, name string) (string, bool, error) {
	spaces, err := c.Spaces(ctx)
	if err != nil {
		return "", false, err
	}
	for _, s := range spaces {
		if s.Name == name {
			return s.ID, true, nil
		}
	}
	return "", false, nil
}

type spaceRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Storage     spaceStorage `json:"storage"`
	Compute     []spaceCRN   `json:"compute"`
}

type spaceStorage struct {
	ResourceCRN string `json:"resource_crn"`
}

type spaceCRN struct {
	Name string `json:"name"`
	CRN  string `json:"crn"`
}

// CreateSpace creates a deployment space backed by the object storage
// instance cosCRN and the compute instance computeName.
func (c *Connector) CreateSpace(ctx context.Context, name, cosCRN, computeName string) (string, error) {
	host, err := c.platformHost()
	if err != nil {
		return "", err
	}
	doc, err := c.postJSON(ctx, "create space", host, pathSpaces, c.platformParams(), c.platformHeaders(), spaceRequest{
		Name:        name,
		Description: name,
		Storage:     spaceStorage{ResourceCRN: cosCRN},
		Compute:     []spaceCRN{{Name: computeName, CRN: cosCRN}},
	})
	if err != nil {
		return "", err
	}
	id := doc.Get("metadata.id").String()
	if id == "" {
		return "", fmt.Errorf("create space %s: answer carries no metadata.id", name)
	}
	c.logger.Info("space created", "name", name, "space_id", id)
	return id, nil
}

// Instances lists the WML service instances. Only the public offering has
// them.
func (c *Connector) Instances(ctx context.Context) ([]Resource, error) {
	if c.private() {
		return nil, fmt.Errorf("list instances: %w", ErrPrivatePlatform)
	}
	body, err := c.client.Get(ctx, c.wmlHost(), pathInstances, c.wmlParams(), c.platformHeaders())
	if body, err = answer("list instances", body, err); err != nil {
		return nil, err
	}
	doc, err := parseJSON("list instances", body)
	if err != nil {
		return nil, err
	}
	return resources(doc), nil
}

// CatalogID returns the guid of the catalog attached to a space.
func (c *Connector) CatalogID(ctx context.Context, spaceID string) (string, bool, error) {
	doc, err := c.getPlatform(ctx, "list catalogs", pathCatalogs, c.wmlParams())
	if err != nil {
		return "", false, err
	}
	for _, cat := range doc.Get("catalogs").Array() {
		if cat.Get("entity.space_id").String() == spaceID {
			return cat.Get("metadata.guid").String(), true, nil
		}
	}
	return "", false, nil
}

// Storage returns the raw storage description of a space.
func (c *Connector) Storage(ctx context.Context, spaceID string) (string, bool, error) {
	doc, err := c.getPlatform(ctx, "list spaces", pathSpaces, c.wmlParams())
	if err != nil {
		return "", false, err
	}
	for _, s := range doc.Get("resources").Array() {
		if s.Get("metadata.id").String() == spaceID {
			st := s.Get("entity.storage")
			return st.Raw, st.Exists(), nil
		}
	}
	return "", false, nil
}
