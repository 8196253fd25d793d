package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/drift"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/snapshotio"
)

// DiffResult is the output of the diff command.
type DiffResult struct {
	TenantID       string                `json:"tenant_id"`
	CloudID        string                `json:"cloud_id"`
	FromSnapshotID string                `json:"from_snapshot_id"`
	ToSnapshotID   string                `json:"to_snapshot_id"`
	Events         []evidence.DriftEvent `json:"events"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from-snapshot> <to-snapshot>",
		Short: "Detect drift between two snapshot files",
		Long: `Compare two snapshots of the same tenant and cloud and print the
classified change events. Nothing is stored.

Snapshot documents are JSON or YAML, chosen by file extension.

Examples:
  evidence diff monday.yaml tuesday.yaml
  evidence diff a.json b.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, fromPath, toPath string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	a, err := snapshotio.LoadFile(fromPath)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("failed to load snapshot", err)
	}
	b, err := snapshotio.LoadFile(toPath)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("failed to load snapshot", err)
	}
	out.VerboseLog("Diffing %s (%s) -> %s (%s)", a.SnapshotID, fromPath, b.SnapshotID, toPath)

	events, err := drift.ComputeDrift(a.TenantID, a.CloudID, a, b)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("drift detection failed", err)
	}

	res := DiffResult{
		TenantID:       a.TenantID,
		CloudID:        a.CloudID,
		FromSnapshotID: a.SnapshotID,
		ToSnapshotID:   b.SnapshotID,
		Events:         events,
	}
	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s/%s: %s -> %s\n", res.TenantID, res.CloudID, res.FromSnapshotID, res.ToSnapshotID)
		writeEvents(w, events)
	})
}

func writeEvents(w io.Writer, events []evidence.DriftEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No drift.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANGE\tCLASSIFICATION\tOBJECT\tAT")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n", e.ChangeType, e.Classification, e.ObjectType, e.ObjectID,
			evidence.At(e.ToCapturedAt))
	}
	tw.Flush()
}
