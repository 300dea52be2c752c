// Package export writes debug copies of what is sent to and received from
// the remote service into timestamped directories under a root path.
//
// Export failures never interrupt a solve; they are logged and ignored.
package export

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// Dir is an export root. A nil *Dir disables exporting, so callers can hold
// one unconditionally.
type Dir struct {
	root   string
	now    Clock
	logger *slog.Logger
}

// New returns an exporter rooted at root, or nil when root is empty or does
// not exist.
func New(root string, now Clock, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	if root == "" {
		return nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		logger.Error("export path does not exist, ignoring debug export", "path", root)
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &Dir{root: root, now: now, logger: logger}
}

// Session opens a fresh timestamped directory. It returns nil if the
// exporter is disabled or the directory cannot be created.
func (d *Dir) Session() *Session {
	if d == nil {
		return nil
	}
	dir := filepath.Join(d.root, d.now().Format("20060102-150405.000000000"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Info("ignoring export error", "error", err)
		return nil
	}
	d.logger.Info("exporting service data", "dir", dir)
	return &Session{dir: dir, logger: d.logger}
}

// Session is one timestamped export directory.
type Session struct {
	dir    string
	logger *slog.Logger
}

// Path returns the session directory, or "" for a nil session.
func (s *Session) Path() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Write stores data under name inside the session directory.
func (s *Session) Write(name string, data []byte) {
	if s == nil {
		return
	}
	p := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		s.logger.Info("ignoring export error", "file", p, "error", err)
		return
	}
	s.logger.Debug("exported", "file", p)
}

// Copy stores a copy of the file at src under name.
func (s *Session) Copy(name, src string) {
	if s == nil {
		return
	}
	data, err := os.ReadFile(src)
	if err != nil {
		s.logger.Info("ignoring export error", "file", src, "error", err)
		return
	}
	s.Write(name, data)
}
