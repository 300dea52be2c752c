package wml

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/transport"
	"github.com/roach88/wmlbridge/internal/testutil"
)

type staticAuth string

func (s staticAuth) Authorization() string { return "bearer " + string(s) }

func newTestConnector(t *testing.T, f *testutil.FakeWML, opts ...Option) *Connector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	client := transport.NewClient(transport.WithLogger(logger))
	opts = append([]Option{WithLogger(logger)}, opts...)
	c, err := NewConnector(client, staticAuth(testutil.FakeToken), f.Credentials(), config.DefaultSettings(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewConnector_RejectsZeroNodes(t *testing.T) {
	f := testutil.NewFakeWML(t)
	_, err := NewConnector(transport.NewClient(), staticAuth("x"), f.Credentials(), config.DefaultSettings(), WithNodes(0))
	require.Error(t, err)

	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, config.ErrCodeInvalidValue, ce.Code)
}

func TestNewConnector_RequiresHost(t *testing.T) {
	_, err := NewConnector(transport.NewClient(), staticAuth("x"), config.NewCredentials(nil), config.DefaultSettings())
	require.Error(t, err)
	assert.True(t, config.IsMissingKey(err))
}

func TestConnector_JobCalls(t *testing.T) {
	f := testutil.NewFakeWML(t)
	c := newTestConnector(t, f)
	ctx := context.Background()

	res, err := c.SubmitJob(ctx, []byte(`{"name":"Job_for_dep-1"}`))
	require.NoError(t, err)
	id := gjson.GetBytes(res, "metadata.id").String()
	require.NotEmpty(t, id)

	status, err := c.JobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", gjson.GetBytes(status, "entity.decision_optimization.status.state").String())

	require.NoError(t, c.DeleteJob(ctx, id))
	assert.Equal(t, 1, f.Deletions(id))

	submit := f.RequestsTo(http.MethodPost, "/ml/v4/deployment_jobs")
	require.Len(t, submit, 1)
	assert.Equal(t, "bearer "+testutil.FakeToken, submit[0].Header.Get("Authorization"))
	assert.Equal(t, "no-cache", submit[0].Header.Get("cache-control"))
	assert.Equal(t, "application/json", submit[0].Header.Get("Content-Type"))
	assert.Equal(t, "2021-06-01", submit[0].Query.Get("version"))
	assert.Equal(t, "space-1", submit[0].Query.Get("space_id"))

	del := f.RequestsTo(http.MethodDelete, "/ml/v4/deployment_jobs/"+id)
	require.Len(t, del, 1)
	assert.Equal(t, "false", del[0].Query.Get("hard_delete"))
}

func TestConnector_HardDelete(t *testing.T) {
	f := testutil.NewFakeWML(t)
	settings := config.DefaultSettings()
	settings.HardDelete = true
	c, err := NewConnector(transport.NewClient(), staticAuth("x"), f.Credentials(), settings)
	require.NoError(t, err)

	require.NoError(t, c.DeleteJob(context.Background(), "job-9"))
	del := f.RequestsTo(http.MethodDelete, "/ml/v4/deployment_jobs/job-9")
	require.Len(t, del, 1)
	assert.Equal(t, "true", del[0].Query.Get("hard_delete"))
}

func TestConnector_JobStatusUnknownJob(t *testing.T) {
	f := testutil.NewFakeWML(t)
	c := newTestConnector(t, f)

	body, err := c.JobStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestGetOrMakeDeployment_CreatesThenReuses(t *testing.T) {
	f := testutil.NewFakeWML(t)
	c := newTestConnector(t, f, WithRuntime(Runtime22_1), WithSize(SizeS), WithNodes(2))
	ctx := context.Background()

	id, err := c.GetOrMakeDeployment(ctx, EngineCPLEX)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	models := f.RequestsTo(http.MethodPost, "/ml/v4/models")
	require.Len(t, models, 1)
	body := models[0].Body
	assert.Equal(t, "CPLEXWithWML.22.1.S.2", gjson.GetBytes(body, "name").String())
	assert.Equal(t, "do-cplex_22.1", gjson.GetBytes(body, "type").String())
	assert.Equal(t, "do_22.1", gjson.GetBytes(body, "software_spec.name").String())
	assert.Equal(t, "space-1", gjson.GetBytes(body, "space_id").String())
	assert.Empty(t, models[0].Query.Get("space_id"))

	deps := f.RequestsTo(http.MethodPost, "/ml/v4/deployments")
	require.Len(t, deps, 1)
	body = deps[0].Body
	assert.Equal(t, "S", gjson.GetBytes(body, "hardware_spec.name").String())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "num_nodes").Int())
	assert.True(t, gjson.GetBytes(body, "batch").IsObject())
	assert.Equal(t, f.Models()[0].ID, gjson.GetBytes(body, "asset.id").String())

	again, err := c.GetOrMakeDeployment(ctx, EngineCPLEX)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, f.RequestsTo(http.MethodPost, "/ml/v4/deployments"), 1)

	cpo, err := c.GetOrMakeDeployment(ctx, EngineCPO)
	require.NoError(t, err)
	assert.NotEqual(t, id, cpo)
	assert.Equal(t, "do-cpo_22.1", gjson.GetBytes(f.RequestsTo(http.MethodPost, "/ml/v4/models")[1].Body, "type").String())
}

func TestUploadModelContent(t *testing.T) {
	f := testutil.NewFakeWML(t)
	c := newTestConnector(t, f)

	require.NoError(t, c.UploadModelContent(context.Background(), "model-7", []byte("zip")))
	put := f.RequestsTo(http.MethodPut, "/ml/v4/models/model-7/content")
	require.Len(t, put, 1)
	assert.Equal(t, "native", put[0].Query.Get("content_format"))
	assert.Equal(t, []byte("zip"), put[0].Body)
}

func TestCleanSpace(t *testing.T) {
	f := testutil.NewFakeWML(t)
	f.AddDeployment("dep-a", "a")
	f.AddDeployment("dep-b", "b")
	f.AddModel("model-a", "a")
	c := newTestConnector(t, f)
	ctx := context.Background()

	_, err := c.SubmitJob(ctx, []byte(`{}`))
	require.NoError(t, err)

	stats, err := c.CleanSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanStats{Jobs: 1, Deployments: 2, Models: 1}, stats)
	assert.Empty(t, f.Deployments())
	assert.Empty(t, f.Models())
	assert.Empty(t, f.LiveJobs())
}

func TestDeleteUnknownModel(t *testing.T) {
	f := testutil.NewFakeWML(t)
	c := newTestConnector(t, f)

	err := c.DeleteModel(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNoAnswer)
}

func TestBrowse(t *testing.T) {
	f := testutil.NewFakeWML(t)
	f.AddSpace("space-1", "dev")
	f.AddSpace("space-2", "prod")
	c := newTestConnector(t, f)
	ctx := context.Background()

	spaces, err := c.Spaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Resource{{ID: "space-1", Name: "dev"}, {ID: "space-2", Name: "prod"}}, spaces)

	id, ok, err := c.SpaceIDByName(ctx, "prod")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "space-2", id)

	_, ok, err = c.SpaceIDByName(ctx, "staging")
	require.NoError(t, err)
	assert.False(t, ok)

	specs, err := c.SoftwareSpecifications(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "do_20.1", specs[0].Name)

	instances, err := c.Instances(ctx)
	require.NoError(t, err)
	assert.Len(t, instances, 1)

	catalog, ok, err := c.CatalogID(ctx, "space-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "catalog-1", catalog)

	storage, ok, err := c.Storage(ctx, "space-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"type":"bmcos_object_storage"}`, storage)

	created, err := c.CreateSpace(ctx, "new", "crn:cos", "wml")
	require.NoError(t, err)
	assert.NotEmpty(t, created)
	post := f.RequestsTo(http.MethodPost, "/v2/spaces")
	require.Len(t, post, 1)
	assert.Equal(t, "crn:cos", gjson.GetBytes(post[0].Body, "storage.resource_crn").String())
	assert.Equal(t, "wml", gjson.GetBytes(post[0].Body, "compute.0.name").String())
}

func TestInstances_PrivatePlatform(t *testing.T) {
	f := testutil.NewFakeWML(t)
	creds := config.NewCredentials(map[string]string{
		config.KeyCPDUser: "admin",
		config.KeyCPDPass: "secret",
		config.KeyCPDURL:  "/icp4d-api/v1/authorize",
		config.KeyWMLHost: f.URL,
		config.KeySpaceID: "space-1",
		config.KeyVersion: "4.0",
	})
	c, err := NewConnector(transport.NewClient(), staticAuth("x"), creds, config.DefaultSettings())
	require.NoError(t, err)

	_, err = c.Instances(context.Background())
	require.ErrorIs(t, err, ErrPrivatePlatform)

	// The private platform serves its own spaces.
	_, err = c.Spaces(context.Background())
	require.NoError(t, err)
}

func TestConnector_WithTokenRenewer(t *testing.T) {
	f := testutil.NewFakeWML(t)
	client := transport.NewClient()
	renewer, err := transport.NewCredentialTokenRenewer(client, f.Credentials(), time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, renewer.Start(context.Background()))
	defer renewer.Stop()

	c, err := NewConnector(client, renewer, f.Credentials(), config.DefaultSettings())
	require.NoError(t, err)

	_, err = c.Deployments(context.Background())
	require.NoError(t, err)

	list := f.RequestsTo(http.MethodGet, "/ml/v4/deployments")
	require.Len(t, list, 1)
	assert.Equal(t, "bearer "+testutil.FakeToken, list[0].Header.Get("Authorization"))
}
