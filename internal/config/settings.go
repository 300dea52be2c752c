package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tunable keys. They live in the same table as the credentials.
const (
	KeyRefreshRate    = "wmlconnector.v4.refresh_rate"
	KeyStatusRate     = "wmlconnector.v4.status_rate"
	KeyEngineProgress = "wmlconnector.v4.engine_progress"
	KeyEngineLogLevel = "wmlconnector.v4.engine_log_level"
	KeyHardDelete     = "wmlconnector.v4.hard_delete"
	KeyTimeLimit      = "wmlconnector.v4.time_limit"
	KeyCPLEXFormat    = "wmlconnector.v4.cplex_format"
	KeyExportPath     = "wmlconnector.v4.export_path"
)

// Settings are the typed tunables of a bridge instance.
type Settings struct {
	// RefreshRate is the bearer-token renewal period.
	RefreshRate time.Duration

	// StatusRate is the pause between two job status polls.
	StatusRate time.Duration

	// EngineProgress enables logging of the latest engine activity lines.
	EngineProgress bool

	// EngineLogLevel is forwarded to the remote engine.
	EngineLogLevel string

	// HardDelete removes job history on cleanup instead of soft-deleting.
	HardDelete bool

	// TimeLimit is applied to models still at their default time limit.
	TimeLimit time.Duration

	// CPLEXFormat is the file extension used when exporting LP/MIP models.
	CPLEXFormat string

	// ExportPath, when set, receives a copy of every payload and the final
	// status document of each job.
	ExportPath string
}

// DefaultSettings returns the tunables used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RefreshRate:    10 * time.Minute,
		StatusRate:     500 * time.Millisecond,
		EngineProgress: true,
		EngineLogLevel: "INFO",
		HardDelete:     false,
		TimeLimit:      60 * time.Minute,
		CPLEXFormat:    ".sav.gz",
	}
}

// SettingsFrom reads the tunables out of a credential table, falling back to
// DefaultSettings for keys that are absent.
func SettingsFrom(c *Credentials) (Settings, error) {
	s := DefaultSettings()

	if v, ok := c.Get(KeyRefreshRate); ok {
		n, err := parsePositiveInt(KeyRefreshRate, v)
		if err != nil {
			return s, err
		}
		s.RefreshRate = time.Duration(n) * time.Minute
	}
	if v, ok := c.Get(KeyStatusRate); ok {
		n, err := parsePositiveInt(KeyStatusRate, v)
		if err != nil {
			return s, err
		}
		s.StatusRate = time.Duration(n) * time.Millisecond
	}
	if v, ok := c.Get(KeyEngineProgress); ok {
		b, err := parseBool(KeyEngineProgress, v)
		if err != nil {
			return s, err
		}
		s.EngineProgress = b
	}
	if v, ok := c.Get(KeyEngineLogLevel); ok {
		s.EngineLogLevel = strings.ToUpper(v)
	}
	if v, ok := c.Get(KeyHardDelete); ok {
		b, err := parseBool(KeyHardDelete, v)
		if err != nil {
			return s, err
		}
		s.HardDelete = b
	}
	if v, ok := c.Get(KeyTimeLimit); ok {
		n, err := parsePositiveInt(KeyTimeLimit, v)
		if err != nil {
			return s, err
		}
		s.TimeLimit = time.Duration(n) * time.Minute
	}
	if v, ok := c.Get(KeyCPLEXFormat); ok {
		if !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		s.CPLEXFormat = v
	}
	if v, ok := c.Get(KeyExportPath); ok {
		s.ExportPath = v
	}

	return s, nil
}

func parsePositiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, &Error{
			Code:    ErrCodeInvalidValue,
			Key:     key,
			Message: fmt.Sprintf("expected a positive integer, got %q", v),
			Err:     err,
		}
	}
	return n, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, &Error{
			Code:    ErrCodeInvalidValue,
			Key:     key,
			Message: fmt.Sprintf("expected a boolean, got %q", v),
			Err:     err,
		}
	}
	return b, nil
}
