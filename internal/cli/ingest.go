package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/pipeline"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/snapshotio"
)

// IngestSummary is the output of the ingest command.
type IngestSummary struct {
	Snapshots int                `json:"snapshots"`
	Stored    int                `json:"stored"`
	Events    int                `json:"events"`
	Results   []*pipeline.Result `json:"results"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Store snapshots and run drift, metrics and ledger updates",
		Long: `Load snapshot documents from files or directories and run them through
the pipeline. Tenants are processed concurrently; each tenant's snapshots are
processed one at a time in capture order.

Re-ingesting a stored snapshot changes nothing.

Examples:
  evidence ingest --db ./evidence.db ./snapshots
  evidence ingest --backend badger --db ./evidence-data a.yaml b.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	snaps, err := snapshotio.LoadPaths(paths)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("failed to load snapshots", err)
	}

	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	out.VerboseLog("Ingesting %d snapshots", len(snaps))
	results, err := e.pipeline().IngestAll(commandContext(cmd), snaps)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("ingest failed", err)
	}

	sum := IngestSummary{Snapshots: len(snaps), Results: results}
	for _, r := range results {
		if r.SnapshotStored {
			sum.Stored++
		}
		if r.EventsStored {
			sum.Events += len(r.Events)
		}
	}
	return out.Success(sum, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TENANT\tCLOUD\tSNAPSHOT\tSTORED\tEVENTS\tLEDGER")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%v\n", r.TenantID, r.CloudID, r.SnapshotID, r.SnapshotStored, len(r.Events), r.LedgerUpdates)
		}
		tw.Flush()
		fmt.Fprintf(w, "%d snapshots, %d newly stored, %d new drift events\n", sum.Snapshots, sum.Stored, sum.Events)
	})
}
