package bridge

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/job"
	"github.com/roach88/wmlbridge/internal/testutil"
	"github.com/roach88/wmlbridge/internal/transport"
	"github.com/roach88/wmlbridge/internal/wml"
)

type staticAuth string

func (s staticAuth) Authorization() string { return "bearer " + string(s) }

var quiet = slog.New(slog.DiscardHandler)

// harness wires a solver to a fake service with a fake sleeper and a
// private temp dir.
type harness struct {
	fake    *testutil.FakeWML
	remote  *wml.Connector
	sleeper *testutil.FakeSleeper
	tempDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewFakeWML(t)
	client := transport.NewClient(transport.WithLogger(quiet))
	c, err := wml.NewConnector(client, staticAuth(testutil.FakeToken), f.Credentials(), config.DefaultSettings(), wml.WithLogger(quiet))
	require.NoError(t, err)
	return &harness{
		fake:    f,
		remote:  c,
		sleeper: &testutil.FakeSleeper{},
		tempDir: t.TempDir(),
	}
}

func (h *harness) options() []Option {
	return []Option{
		WithLogger(quiet),
		WithTempDir(h.tempDir),
		WithIDGenerator(testutil.NewFixedIDGenerator("run")),
		WithJobOptions(job.WithSleeper(h.sleeper)),
	}
}

// lastInputs decodes the attachments of the last submitted payload.
func (h *harness) lastInputs(t *testing.T) (map[string][]byte, []string) {
	t.Helper()
	payloads := h.fake.Payloads()
	require.NotEmpty(t, payloads)
	last := payloads[len(payloads)-1]
	inputs, err := testutil.InputData(last)
	require.NoError(t, err)
	var ids []string
	for _, item := range gjson.GetBytes(last, "decision_optimization.input_data").Array() {
		ids = append(ids, item.Get("id").String())
	}
	return inputs, ids
}

// jobDeletes counts DELETE calls on job resources.
func (h *harness) jobDeletes() int {
	n := 0
	for _, r := range h.fake.Requests() {
		if r.Method == http.MethodDelete && strings.HasPrefix(r.Path, "/ml/v4/deployment_jobs/") {
			n++
		}
	}
	return n
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temporary files left behind")
}
