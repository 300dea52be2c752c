package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wmlbridge/internal/wml"
)

// NewDeploymentsCommand creates the deployments command group.
func NewDeploymentsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deploy"},
		Short:   "Manage deployments and their models",
		Long: `Manage the deployments the bridge solves on, and the empty models they
are created from.

Deployments are shared and named after engine, runtime, size and node
count, for example CPLEXWithWML.20.1.M.1.`,
	}
	cmd.AddCommand(newDeploymentsListCommand(rootOpts))
	cmd.AddCommand(newDeploymentsEnsureCommand(rootOpts))
	cmd.AddCommand(newResourceDeleteCommand(rootOpts, "delete", "deployment",
		func(s *session) func(context.Context) ([]wml.Resource, error) { return s.conn.Deployments },
		func(s *session) func(context.Context, string) error { return s.conn.DeleteDeployment }))
	cmd.AddCommand(newModelsCommand(rootOpts))
	return cmd
}

func newDeploymentsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List deployments",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				deps, err := s.conn.Deployments(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list deployments", err)
				}
				return formatter(opts, cmd).Success(resourceTable(deps))
			})
		},
	}
}

func newDeploymentsEnsureCommand(opts *RootOptions) *cobra.Command {
	var engineFlag string
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the shared deployment of an engine unless it exists",
		Long: `Print the id of the shared deployment for the engine and the global
--runtime, --size and --nodes flags, creating it first when needed.

Examples:
  wmlbridge deployments ensure -c wml.yaml --engine cpo --size S`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := pickEngine(engineFlag, "")
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --engine", err)
			}
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				id, err := s.conn.GetOrMakeDeployment(ctx, engine)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to get deployment", err)
				}
				return formatter(opts, cmd).Success(Table{
					Header: []string{"ID", "Name"},
					Rows:   [][]string{{id, s.conn.DeploymentName(engine)}},
				})
			})
		},
	}
	cmd.Flags().StringVar(&engineFlag, "engine", "cplex", "engine (cplex|cpo)")
	return cmd
}

func newModelsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and delete model assets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List models",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				models, err := s.conn.Models(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list models", err)
				}
				return formatter(opts, cmd).Success(resourceTable(models))
			})
		},
	})
	cmd.AddCommand(newResourceDeleteCommand(opts, "delete", "model",
		func(s *session) func(context.Context) ([]wml.Resource, error) { return s.conn.Models },
		func(s *session) func(context.Context, string) error { return s.conn.DeleteModel }))
	return cmd
}

// newResourceDeleteCommand builds a "delete [id...] | --all" command for
// one kind of resource.
func newResourceDeleteCommand(
	opts *RootOptions,
	use, kind string,
	list func(*session) func(context.Context) ([]wml.Resource, error),
	del func(*session) func(context.Context, string) error,
) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:           use + " [id...]",
		Short:         fmt.Sprintf("Delete %ss", kind),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return NewExitError(ExitCommandError, "give ids or --all")
			}
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				ids := args
				if all {
					items, err := list(s)(ctx)
					if err != nil {
						return WrapExitError(ExitCommandError, fmt.Sprintf("failed to list %ss", kind), err)
					}
					for _, r := range items {
						ids = append(ids, r.ID)
					}
				}
				for _, id := range ids {
					if err := del(s)(ctx, id); err != nil {
						return WrapExitError(ExitCommandError, fmt.Sprintf("failed to delete %s %s", kind, id), err)
					}
				}
				return formatter(opts, cmd).Success(fmt.Sprintf("deleted %d %s(s)", len(ids), kind))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, fmt.Sprintf("delete every %s of the space", kind))
	return cmd
}
