package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSpaceCommand creates the space command group.
func NewSpaceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Create and clean deployment spaces",
	}
	cmd.AddCommand(newSpaceCleanCommand(rootOpts))
	cmd.AddCommand(newSpaceCreateCommand(rootOpts))
	return cmd
}

// CleanResult counts what a clean removed.
type CleanResult struct {
	Jobs        int `json:"jobs"`
	Deployments int `json:"deployments"`
	Models      int `json:"models"`
}

func (r CleanResult) String() string {
	return fmt.Sprintf("deleted %d job(s), %d deployment(s), %d model(s)", r.Jobs, r.Deployments, r.Models)
}

func newSpaceCleanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete every job, deployment and model of the space",
		Long: `Delete every job, then every deployment, then every model of the
configured space. Deleted jobs are also marked in the journal.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				jobs, err := s.conn.Jobs(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list jobs", err)
				}
				stats, err := s.conn.CleanSpace(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to clean space", err)
				}
				for _, j := range jobs {
					s.forget(ctx, j.ID)
				}
				return formatter(opts, cmd).Success(CleanResult{
					Jobs:        stats.Jobs,
					Deployments: stats.Deployments,
					Models:      stats.Models,
				})
			})
		},
	}
}

func newSpaceCreateCommand(opts *RootOptions) *cobra.Command {
	var cosCRN, compute string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a deployment space unless one with that name exists",
		Long: `Create a deployment space backed by an object storage instance and a
WML compute instance. An existing space with the same name is reused.

Examples:
  wmlbridge space create -c wml.yaml planning --cos-crn crn:v1:... --compute wml-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				id, ok, err := s.conn.SpaceIDByName(ctx, name)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list spaces", err)
				}
				if !ok {
					if id, err = s.conn.CreateSpace(ctx, name, cosCRN, compute); err != nil {
						return WrapExitError(ExitCommandError, "failed to create space", err)
					}
				}
				return formatter(opts, cmd).Success(Table{
					Header: []string{"ID", "Name"},
					Rows:   [][]string{{id, name}},
				})
			})
		},
	}
	cmd.Flags().StringVar(&cosCRN, "cos-crn", "", "CRN of the object storage instance (required)")
	_ = cmd.MarkFlagRequired("cos-crn")
	cmd.Flags().StringVar(&compute, "compute", "", "name of the WML compute instance (required)")
	_ = cmd.MarkFlagRequired("compute")
	return cmd
}
