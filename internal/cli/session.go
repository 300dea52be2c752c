package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/wmlbridge/internal/config"
	"github.com/roach88/wmlbridge/internal/export"
	"github.com/roach88/wmlbridge/internal/job"
	"github.com/roach88/wmlbridge/internal/journal"
	"github.com/roach88/wmlbridge/internal/transport"
	"github.com/roach88/wmlbridge/internal/wml"
)

// session is everything a remote command needs: an authenticated
// connector and, when configured, the job journal.
type session struct {
	logger   *slog.Logger
	settings config.Settings
	renewer  *transport.TokenRenewer
	exporter *export.Dir
	conn     *wml.Connector
	journal  *journal.Journal
}

// openSession loads the settings file, fetches the first bearer token and
// builds the connector. Errors are already ExitErrors.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	if opts.Config == "" {
		return nil, NewExitError(ExitCommandError, "no settings file, use --config")
	}
	creds, err := config.LoadFile(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	if dt, err := creds.DeploymentType(); err != nil || dt == config.Public {
		creds = creds.WithPublicDefaults()
	}
	settings, err := config.SettingsFrom(creds)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	logger.Debug("settings loaded", "file", opts.Config, "credentials", creds.Redacted())

	wmlOpts := []wml.Option{wml.WithLogger(logger), wml.WithNodes(opts.Nodes)}
	if opts.Runtime != "" {
		rt, err := wml.ParseRuntime(opts.Runtime)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --runtime", err)
		}
		wmlOpts = append(wmlOpts, wml.WithRuntime(rt))
	}
	size, err := wml.ParseSize(opts.Size)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --size", err)
	}
	wmlOpts = append(wmlOpts, wml.WithSize(size))

	exporter := export.New(settings.ExportPath, nil, logger)
	if exporter != nil {
		wmlOpts = append(wmlOpts, wml.WithExporter(exporter))
	}

	client := transport.NewClient(transport.WithLogger(logger))
	renewer, err := transport.NewCredentialTokenRenewer(client, creds, settings.RefreshRate, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid credentials", err)
	}
	if err := renewer.Start(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "authentication failed", err)
	}

	s := &session{logger: logger, settings: settings, renewer: renewer, exporter: exporter}
	s.conn, err = wml.NewConnector(client, renewer, creds, settings, wmlOpts...)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "invalid connector settings", err)
	}

	if opts.Journal != "" {
		s.journal, err = journal.Open(opts.Journal)
		if err != nil {
			s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
	}
	return s, nil
}

// Close stops token renewal and closes the journal.
func (s *session) Close() {
	s.renewer.Stop()
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("closing journal", "error", err)
		}
	}
}

// controller returns a job controller wired to the session settings,
// exporter and journal.
func (s *session) controller() *job.Controller {
	opts := []job.Option{
		job.WithPollInterval(s.settings.StatusRate),
		job.WithEngineProgress(s.settings.EngineProgress),
		job.WithLogger(s.logger),
	}
	if s.exporter != nil {
		opts = append(opts, job.WithExporter(s.exporter))
	}
	if s.journal != nil {
		opts = append(opts, job.WithRecorder(s.journal))
	}
	return job.NewController(s.conn, opts...)
}

// withSession opens a session, runs fn and closes the session.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
