package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publicMap() map[string]string {
	return map[string]string{
		KeyIAMURL:   "/identity/token",
		KeyIAMHost:  "iam.cloud.ibm.com",
		KeyWMLHost:  "us-south.ml.cloud.ibm.com",
		KeyAPIKey:   "secret-key",
		KeySpaceID:  "space-1",
		KeyVersion:  "2021-06-01",
		KeyPlatform: "api.dataplatform.cloud.ibm.com",
	}
}

func TestDeploymentType_Public(t *testing.T) {
	c := NewCredentials(publicMap())
	dt, err := c.DeploymentType()
	require.NoError(t, err)
	assert.Equal(t, Public, dt)
	assert.Equal(t, "api.dataplatform.cloud.ibm.com", c.PlatformHost())
}

func TestDeploymentType_Private(t *testing.T) {
	c := NewCredentials(map[string]string{
		KeyCPDUser:  "admin",
		KeyCPDPass:  "pw",
		KeyCPDURL:   "https://cpd.example.com/icp4d-api/v1/authorize",
		KeyWMLHost:  "cpd.example.com",
		KeySpaceID:  "space-1",
		KeyVersion:  "2021-06-01",
		KeyPlatform: "ignored.example.com",
	})
	dt, err := c.DeploymentType()
	require.NoError(t, err)
	assert.Equal(t, Private, dt)
	assert.Equal(t, "cpd.example.com", c.PlatformHost())
}

func TestDeploymentType_Unknown(t *testing.T) {
	c := NewCredentials(map[string]string{KeyWMLHost: "h"})
	_, err := c.DeploymentType()
	require.Error(t, err)
	assert.True(t, IsUnknownDeployment(err))
}

func TestRequire_MissingKey(t *testing.T) {
	c := NewCredentials(map[string]string{KeyAPIKey: ""})
	_, err := c.Require(KeyAPIKey)
	require.Error(t, err)
	assert.True(t, IsMissingKey(err))
	assert.Contains(t, err.Error(), KeyAPIKey)
}

func TestNewCredentials_ExpandsEnvironment(t *testing.T) {
	t.Setenv("WMLBRIDGE_TEST_KEY", "from-env")
	c := NewCredentials(map[string]string{KeyAPIKey: "${WMLBRIDGE_TEST_KEY}"})
	assert.Equal(t, "from-env", c.Lookup(KeyAPIKey))
}

func TestWithPublicDefaults(t *testing.T) {
	c := NewCredentials(map[string]string{KeyWMLHost: "h"}).WithPublicDefaults()
	assert.Equal(t, DefaultIAMHost, c.Lookup(KeyIAMHost))
	assert.Equal(t, DefaultIAMURL, c.Lookup(KeyIAMURL))
	assert.Equal(t, DefaultVersion, c.Lookup(KeyVersion))
	assert.Equal(t, "h", c.Lookup(KeyWMLHost))
}

func TestRedacted(t *testing.T) {
	c := NewCredentials(publicMap())
	r := c.Redacted()
	assert.Equal(t, "****", r[KeyAPIKey])
	assert.Equal(t, "space-1", r[KeySpaceID])
}

func TestSettingsFrom_Defaults(t *testing.T) {
	s, err := SettingsFrom(NewCredentials(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, 500*time.Millisecond, s.StatusRate)
	assert.Equal(t, 10*time.Minute, s.RefreshRate)
}

func TestSettingsFrom_Overrides(t *testing.T) {
	s, err := SettingsFrom(NewCredentials(map[string]string{
		KeyRefreshRate:    "5",
		KeyStatusRate:     "250",
		KeyEngineProgress: "false",
		KeyEngineLogLevel: "warning",
		KeyHardDelete:     "true",
		KeyTimeLimit:      "2",
		KeyCPLEXFormat:    "lp",
		KeyExportPath:     "/tmp/dump",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.RefreshRate)
	assert.Equal(t, 250*time.Millisecond, s.StatusRate)
	assert.False(t, s.EngineProgress)
	assert.Equal(t, "WARNING", s.EngineLogLevel)
	assert.True(t, s.HardDelete)
	assert.Equal(t, 2*time.Minute, s.TimeLimit)
	assert.Equal(t, ".lp", s.CPLEXFormat)
	assert.Equal(t, "/tmp/dump", s.ExportPath)
}

func TestSettingsFrom_InvalidValue(t *testing.T) {
	_, err := SettingsFrom(NewCredentials(map[string]string{KeyStatusRate: "soon"}))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeInvalidValue, ce.Code)
	assert.Equal(t, KeyStatusRate, ce.Key)
}

func TestLoadFile_YAMLNested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  wml:
    host: us-south.ml.cloud.ibm.com
    api_key: k
    space_id: s
    version: "2021-06-01"
  iam:
    host: iam.cloud.ibm.com
    url: /identity/token
wmlconnector.v4.status_rate: 100
`), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "us-south.ml.cloud.ibm.com", c.Lookup(KeyWMLHost))
	assert.Equal(t, "2021-06-01", c.Lookup(KeyVersion))
	assert.Equal(t, "100", c.Lookup(KeyStatusRate))

	dt, err := c.DeploymentType()
	require.NoError(t, err)
	assert.Equal(t, Public, dt)
}

func TestLoadFile_CUE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
service: wml: {
	host:     "cpd.example.com"
	space_id: "s"
	version:  "2021-06-01"
}
service: cpd: {
	username: "admin"
	password: "pw"
	url:      "https://cpd.example.com/icp4d-api/v1/authorize"
}
wmlconnector: v4: hard_delete: true
`), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Lookup(KeyCPDUser))
	assert.Equal(t, "true", c.Lookup(KeyHardDelete))

	dt, err := c.DeploymentType()
	require.NoError(t, err)
	assert.Equal(t, Private, dt)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
