package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/page"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// DefaultPageSize is the page size of list commands.
const DefaultPageSize = 50

// QueryOptions holds flags shared by the list commands.
type QueryOptions struct {
	*RootOptions
	Tenant   string
	Cloud    string
	Cursor   string
	PageSize int
}

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&opts.Cloud, "cloud", "", "only this cloud")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "resume after this cursor")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", DefaultPageSize, "items per page")
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored drift events of a tenant",
		Long: `List a tenant's drift events newest first. Pages are stable: walking
next_cursor over an unchanged store visits every event exactly once.

Examples:
  evidence events --tenant acme
  evidence events --tenant acme --page-size 10 --cursor <next_cursor>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}
	addQueryFlags(cmd, opts)
	return cmd
}

func runEvents(opts *QueryOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	ctx := tenancy.WithTenant(commandContext(cmd), opts.Tenant)
	events, err := e.repo.ListEvents(ctx, opts.Tenant)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("failed to list events", err)
	}
	if opts.Cloud != "" {
		events = filter(events, func(ev evidence.DriftEvent) bool { return ev.CloudID == opts.Cloud })
	}

	res, err := page.After(events, page.Events, opts.Cursor, opts.PageSize)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("invalid page request", err)
	}
	return e.out.Success(res, func(w io.Writer) {
		writeEvents(w, res.Items)
		writeCursor(w, res.HasMore, res.NextCursor)
	})
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored metrics runs of a tenant",
		Long: `List a tenant's metrics runs newest first, with the same stable paging
as the events command.

Examples:
  evidence runs --tenant acme
  evidence runs --tenant acme --cloud cloud-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}
	addQueryFlags(cmd, opts)
	return cmd
}

func runRuns(opts *QueryOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e)

	ctx := tenancy.WithTenant(commandContext(cmd), opts.Tenant)
	runs, err := e.repo.ListRuns(ctx, opts.Tenant)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("failed to list runs", err)
	}
	if opts.Cloud != "" {
		runs = filter(runs, func(r evidence.MetricsRun) bool { return r.CloudID == opts.Cloud })
	}

	res, err := page.After(runs, page.Runs, opts.Cursor, opts.PageSize)
	if err != nil {
		_ = e.out.Fault(err)
		return wrapFault("invalid page request", err)
	}
	return e.out.Success(res, func(w io.Writer) {
		if len(res.Items) == 0 {
			fmt.Fprintln(w, "No metrics runs.")
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range res.Items {
			available := 0
			for _, m := range r.Metrics {
				if m.Availability == evidence.Available {
					available++
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d available\t%s\n", r.RunID, r.CloudID, r.SnapshotID,
				available, len(r.Metrics), evidence.At(r.ComputedAt))
		}
		tw.Flush()
		writeCursor(w, res.HasMore, res.NextCursor)
	})
}

func writeCursor(w io.Writer, hasMore bool, cursor string) {
	if hasMore {
		fmt.Fprintf(w, "More results: --cursor %s\n", cursor)
	}
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
