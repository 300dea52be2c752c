package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wmlbridge/internal/journal"
	"github.com/roach88/wmlbridge/internal/wml"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and delete remote jobs",
		Long: `List and delete the jobs of the space.

With --journal, the local ledger of submitted jobs can be inspected:
"orphans" lists jobs that were never deleted, "reap" deletes them.`,
	}
	cmd.AddCommand(newJobsListCommand(rootOpts))
	cmd.AddCommand(newJobsDeleteCommand(rootOpts))
	cmd.AddCommand(newJobsOrphansCommand(rootOpts))
	cmd.AddCommand(newJobsReapCommand(rootOpts))
	cmd.AddCommand(newJobsPruneCommand(rootOpts))
	return cmd
}

func resourceTable(items []wml.Resource) Table {
	t := Table{Header: []string{"ID", "Name", "Created"}}
	for _, r := range items {
		t.Rows = append(t.Rows, []string{r.ID, r.Name, r.CreatedAt})
	}
	return t
}

func entryTable(entries []journal.Entry) Table {
	t := Table{Header: []string{"ID", "Deployment", "State", "Submitted", "Deleted"}}
	for _, e := range entries {
		deleted := ""
		if e.DeletedAt != nil {
			deleted = e.DeletedAt.Format(time.RFC3339)
		}
		t.Rows = append(t.Rows, []string{e.ID, e.DeploymentID, e.State, e.SubmittedAt.Format(time.RFC3339), deleted})
	}
	return t
}

func newJobsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the jobs of the space",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				jobs, err := s.conn.Jobs(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list jobs", err)
				}
				return formatter(opts, cmd).Success(resourceTable(jobs))
			})
		},
	}
}

func newJobsDeleteCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [job-id...]",
		Short: "Delete jobs",
		Long: `Delete the given jobs, or every job of the space with --all.

Examples:
  wmlbridge jobs delete -c wml.yaml 6f3c...
  wmlbridge jobs delete -c wml.yaml --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return NewExitError(ExitCommandError, "give job ids or --all")
			}
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				ids := args
				if all {
					jobs, err := s.conn.Jobs(ctx)
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to list jobs", err)
					}
					for _, j := range jobs {
						ids = append(ids, j.ID)
					}
				}
				for _, id := range ids {
					if err := s.conn.DeleteJob(ctx, id); err != nil {
						return WrapExitError(ExitCommandError, "failed to delete job "+id, err)
					}
					s.forget(ctx, id)
				}
				return formatter(opts, cmd).Success(fmt.Sprintf("deleted %d job(s)", len(ids)))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every job of the space")
	return cmd
}

// forget marks a job deleted in the journal, if one is open. Jobs the
// journal never saw are ignored.
func (s *session) forget(ctx context.Context, id string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordDeleted(ctx, id); err != nil {
		s.logger.Debug("job not in journal", "job_id", id, "error", err)
	}
}

// openJournal opens the ledger named by --journal.
func openJournal(opts *RootOptions) (*journal.Journal, error) {
	if opts.Journal == "" {
		return nil, NewExitError(ExitCommandError, "no journal, use --journal")
	}
	j, err := journal.Open(opts.Journal)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

func newJobsOrphansCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List journaled jobs that were never deleted",
		Long: `List the jobs recorded in the journal whose deletion was never
observed, typically because the process was killed while polling.
With --all, deleted jobs are listed too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			list := j.Orphans
			if all {
				list = j.List
			}
			entries, err := list(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read journal", err)
			}
			return formatter(opts, cmd).Success(entryTable(entries))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deleted jobs")
	return cmd
}

func newJobsReapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reap",
		Short:         "Delete the orphans recorded in the journal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Journal == "" {
				return NewExitError(ExitCommandError, "no journal, use --journal")
			}
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				orphans, err := s.journal.Orphans(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read journal", err)
				}
				for _, e := range orphans {
					if err := s.conn.DeleteJob(ctx, e.ID); err != nil {
						return WrapExitError(ExitCommandError, "failed to delete job "+e.ID, err)
					}
					s.forget(ctx, e.ID)
				}
				return formatter(opts, cmd).Success(fmt.Sprintf("reaped %d job(s)", len(orphans)))
			})
		},
	}
}

func newJobsPruneCommand(opts *RootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Forget journaled jobs deleted long ago",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer j.Close()

			n, err := j.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to prune journal", err)
			}
			return formatter(opts, cmd).Success(fmt.Sprintf("pruned %d journal entries", n))
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of the deletion")
	return cmd
}
