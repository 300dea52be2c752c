package config

import (
	"os"
	"sort"
	"strings"
)

// Credential keys understood by the bridge.
const (
	KeyIAMURL    = "service.iam.url"
	KeyIAMHost   = "service.iam.host"
	KeyWMLHost   = "service.wml.host"
	KeyAPIKey    = "service.wml.api_key"
	KeySpaceID   = "service.wml.space_id"
	KeyVersion   = "service.wml.version"
	KeyCPDUser   = "service.cpd.username"
	KeyCPDPass   = "service.cpd.password"
	KeyCPDURL    = "service.cpd.url"
	KeyPlatform  = "service.platform.host"
	KeyCOSEndpt  = "service.cos.endpoint"
	KeyCOSBucket = "service.cos.bucket"
	KeyCOSKeyID  = "service.cos.access_key_id"
	KeyCOSSecret = "service.cos.secret_access_key"
)

// DeploymentType is the flavour of the remote service.
type DeploymentType string

const (
	// Public is the managed cloud offering authenticated with an API key.
	Public DeploymentType = "public"

	// Private is an on-premises platform authenticated with user/password.
	Private DeploymentType = "private"
)

var (
	publicFields  = []string{KeyIAMURL, KeyIAMHost, KeyWMLHost, KeyAPIKey, KeySpaceID, KeyVersion}
	privateFields = []string{KeyCPDUser, KeyCPDPass, KeyCPDURL, KeyWMLHost, KeySpaceID, KeyVersion}
)

// Default hosts for the public offering when none are configured.
const (
	DefaultIAMHost = "iam.cloud.ibm.com"
	DefaultIAMURL  = "/identity/token"
	DefaultVersion = "2021-06-01"
)

// Credentials is a read-only key/value table.
type Credentials struct {
	values map[string]string
}

// NewCredentials copies m into a new table, expanding ${VAR} references
// against the process environment.
func NewCredentials(m map[string]string) *Credentials {
	c := &Credentials{values: make(map[string]string, len(m))}
	for k, v := range m {
		c.values[k] = os.ExpandEnv(v)
	}
	return c
}

// Get returns the value for key and whether it is set and non-empty.
func (c *Credentials) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok && v != ""
}

// Lookup returns the value for key or "" if unset.
func (c *Credentials) Lookup(key string) string {
	return c.values[key]
}

// Require returns the value for key or a missing-key error.
func (c *Credentials) Require(key string) (string, error) {
	v, ok := c.Get(key)
	if !ok {
		return "", missingKey(key)
	}
	return v, nil
}

// Has reports whether every key is set.
func (c *Credentials) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := c.Get(k); !ok {
			return false
		}
	}
	return true
}

// Keys returns all keys in sorted order.
func (c *Credentials) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeploymentType derives the service flavour from the populated fields.
// The public field set wins when both are complete.
func (c *Credentials) DeploymentType() (DeploymentType, error) {
	if c.Has(publicFields...) {
		return Public, nil
	}
	if c.Has(privateFields...) {
		return Private, nil
	}
	return "", &Error{
		Code:    ErrCodeUnknownDeployment,
		Message: "credentials match neither the public nor the private field set",
	}
}

// WithPublicDefaults fills the IAM host, IAM url and API version when they
// are missing. The receiver is not modified.
func (c *Credentials) WithPublicDefaults() *Credentials {
	out := &Credentials{values: make(map[string]string, len(c.values)+3)}
	for k, v := range c.values {
		out.values[k] = v
	}
	defaults := map[string]string{
		KeyIAMHost: DefaultIAMHost,
		KeyIAMURL:  DefaultIAMURL,
		KeyVersion: DefaultVersion,
	}
	for k, v := range defaults {
		if _, ok := out.Get(k); !ok {
			out.values[k] = v
		}
	}
	return out
}

// PlatformHost is the host serving the platform APIs (spaces, catalogs).
// On the private platform it is the WML host itself.
func (c *Credentials) PlatformHost() string {
	if t, err := c.DeploymentType(); err == nil && t == Private {
		return c.Lookup(KeyWMLHost)
	}
	return c.Lookup(KeyPlatform)
}

// HasObjectStorage reports whether the optional object-storage fields are
// all populated.
func (c *Credentials) HasObjectStorage() bool {
	return c.Has(KeyCOSEndpt, KeyCOSBucket, KeyCOSKeyID, KeyCOSSecret)
}

// Redacted returns a copy of the table with secrets masked, for logging.
func (c *Credentials) Redacted() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		if isSecret(k) && v != "" {
			v = "****"
		}
		out[k] = v
	}
	return out
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") ||
		strings.HasSuffix(key, "password") ||
		strings.HasSuffix(key, "secret_access_key")
}
