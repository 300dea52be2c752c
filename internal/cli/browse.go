package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/wmlbridge/internal/wml"
)

// NewBrowseCommand creates the browse command group.
func NewBrowseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Inspect platform resources",
	}
	cmd.AddCommand(newBrowseListCommand(rootOpts, "spaces", "List deployment spaces",
		func(s *session) func(context.Context) ([]wml.Resource, error) { return s.conn.Spaces }))
	cmd.AddCommand(newBrowseListCommand(rootOpts, "specs", "List software specifications",
		func(s *session) func(context.Context) ([]wml.Resource, error) { return s.conn.SoftwareSpecifications }))
	cmd.AddCommand(newBrowseListCommand(rootOpts, "instances", "List WML instances (public service only)",
		func(s *session) func(context.Context) ([]wml.Resource, error) { return s.conn.Instances }))
	cmd.AddCommand(newBrowseLookupCommand(rootOpts, "catalog", "Show the catalog id of a space",
		func(s *session) func(context.Context, string) (string, bool, error) { return s.conn.CatalogID }))
	cmd.AddCommand(newBrowseLookupCommand(rootOpts, "storage", "Show the storage description of a space",
		func(s *session) func(context.Context, string) (string, bool, error) { return s.conn.Storage }))
	cmd.AddCommand(newRuntimesCommand(rootOpts))
	return cmd
}

func newBrowseListCommand(opts *RootOptions, use, short string, list func(*session) func(context.Context) ([]wml.Resource, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				items, err := list(s)(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list "+use, err)
				}
				return formatter(opts, cmd).Success(resourceTable(items))
			})
		},
	}
}

// newBrowseLookupCommand looks something up for a space id, the configured
// space when none is given.
func newBrowseLookupCommand(opts *RootOptions, use, short string, lookup func(*session) func(context.Context, string) (string, bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " [space-id]",
		Short:         short,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(ctx context.Context, s *session) error {
				spaceID := s.conn.SpaceID()
				if len(args) == 1 {
					spaceID = args[0]
				}
				value, ok, err := lookup(s)(ctx, spaceID)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to look up "+use, err)
				}
				if !ok {
					return NewExitError(ExitFailure, "no "+use+" for space "+spaceID)
				}
				return formatter(opts, cmd).Success(value)
			})
		},
	}
}

func newRuntimesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runtimes",
		Short: "List the supported Decision Optimization runtimes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := Table{Header: []string{"Runtime", "Software_spec", "CPLEX_model", "CPO_model"}}
			for _, r := range wml.Runtimes() {
				t.Rows = append(t.Rows, []string{r.String(), r.SoftwareSpec(), r.ModelType(wml.KindCPLEX), r.ModelType(wml.KindCPO)})
			}
			return formatter(opts, cmd).Success(t)
		},
	}
}
