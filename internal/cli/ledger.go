package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/ledger"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// LedgerOptions holds flags for the ledger subcommands.
type LedgerOptions struct {
	*RootOptions
	Tenant string
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the first-occurrence ledger",
		Long: `Inspect the first-occurrence ledger. The ledger only moves through
ingested captures; there is no command that writes it.`,
	}
	cmd.AddCommand(newLedgerShowCommand(rootOpts))
	return cmd
}

func newLedgerShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a tenant's ledger",
		Long: `Show the earliest known instant of each kind of governance evidence.
Unknown instants print as NOT_AVAILABLE. The ledger is verified before it is
shown.

Example:
  evidence ledger show --tenant acme`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerShow(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runLedgerShow(opts *LedgerOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	ctx := tenancy.WithTenant(commandContext(cmd), opts.Tenant)
	l, err := e.pipeline().Ledger().Get(ctx, opts.Tenant)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("failed to read ledger", err)
	}
	return e.out.Success(l.View(), func(w io.Writer) { writeLedger(w, l) })
}

func writeLedger(w io.Writer, l *evidence.Ledger) {
	fmt.Fprintf(w, "tenant=%s\n", l.TenantID)
	for _, line := range ledger.Describe(l) {
		fmt.Fprintln(w, line)
	}
}
