package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/export"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Tenant string
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a self-describing evidence document for a tenant",
		Long: `Export every stored record of a tenant with its canonical JSON text and
SHA-256 digest. The document can be verified with "evidence verify" or any
SHA-256 tool, without access to the store.

Examples:
  evidence export --tenant acme -o acme-evidence.json
  evidence export --tenant acme > acme-evidence.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the document to this file instead of stdout")
	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	ctx := tenancy.WithTenant(commandContext(cmd), opts.Tenant)
	doc, err := export.Build(ctx, e.repo, opts.Tenant)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("export failed", err)
	}

	if opts.Output == "" {
		// The document is the output; it is not wrapped in a response.
		if err := export.Encode(cmd.OutOrStdout(), doc); err != nil {
			return WrapExitError(ExitCommandError, "failed to write export", err)
		}
		return nil
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	if err := export.Encode(f, doc); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}

	summary := map[string]any{"tenant_id": doc.TenantID, "records": len(doc.Records), "output": opts.Output}
	return e.out.Success(summary, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d records for %s to %s\n", len(doc.Records), doc.TenantID, opts.Output)
	})
}

// VerifyCheck is one record's outcome in verify output.
type VerifyCheck struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	TenantID string        `json:"tenant_id"`
	Verified int           `json:"verified"`
	Failed   int           `json:"failed"`
	Checks   []VerifyCheck `json:"checks"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <export-file>",
		Short: "Verify an exported evidence document",
		Long: `Recompute the SHA-256 digest of every record in an export document,
check that each canonical text is already canonical, and check that every
record belongs to the document's tenant. No store is opened.

Exits 1 when any record fails.

Example:
  evidence verify acme-evidence.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open export", err)
	}
	defer f.Close()

	doc, err := export.Decode(f)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("failed to read export", err)
	}

	rep := export.Verify(doc)
	res := VerifyResult{TenantID: rep.TenantID, Checks: make([]VerifyCheck, 0, len(rep.Checks))}
	for _, c := range rep.Checks {
		vc := VerifyCheck{Kind: string(c.Kind), ID: c.ID, OK: c.OK()}
		if c.OK() {
			res.Verified++
		} else {
			res.Failed++
			vc.Error = c.Err.Error()
		}
		res.Checks = append(res.Checks, vc)
	}

	err = out.Success(res, func(w io.Writer) {
		ok := color.New(color.FgGreen).Sprint("OK  ")
		fail := color.New(color.FgRed).Sprint("FAIL")
		for _, c := range res.Checks {
			if c.OK {
				fmt.Fprintf(w, "%s %s %s\n", ok, c.Kind, c.ID)
				continue
			}
			fmt.Fprintf(w, "%s %s %s: %s\n", fail, c.Kind, c.ID, c.Error)
		}
		fmt.Fprintf(w, "%d verified, %d failed\n", res.Verified, res.Failed)
	})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d of %d records failed verification", res.Failed, len(res.Checks)), rep.Err())
	}
	return nil
}
