package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// EraseOptions holds flags for the erase command.
type EraseOptions struct {
	*RootOptions
	Tenant string
	Yes    bool
}

// NewEraseCommand creates the erase command.
func NewEraseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EraseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete every stored record of a tenant",
		Long: `Delete a tenant's snapshots, drift events, metrics runs and ledger.
Other tenants are untouched. This cannot be undone, so --yes is required.

Example:
  evidence erase --tenant acme --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runErase(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the deletion")
	return cmd
}

func runErase(opts *EraseOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to erase without --yes")
	}

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	ctx := tenancy.WithTenant(commandContext(cmd), opts.Tenant)
	if err := e.repo.EraseTenant(ctx, opts.Tenant); err != nil {
		_ = e.out.Fault(err)
		return wrapFault("erase failed", err)
	}
	e.logger.Info("tenant erased", "tenant", opts.Tenant)
	return e.out.Success(map[string]string{"tenant_id": opts.Tenant}, func(w io.Writer) {
		fmt.Fprintf(w, "Erased tenant %s\n", opts.Tenant)
	})
}
