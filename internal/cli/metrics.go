package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/metrics"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/pipeline"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/snapshotio"
)

// MetricsOptions holds flags for the metrics command.
type MetricsOptions struct {
	*RootOptions
	EventsPath string
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MetricsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "metrics <snapshot>",
		Short: "Compute the metric catalogue for one snapshot file",
		Long: `Compute every metric for a snapshot over the configured window ending
at its capture time. Nothing is stored.

Without --events the drift history is unavailable and drift-based metrics
report NOT_AVAILABLE. --events reads a JSON array of drift events.

Examples:
  evidence metrics tuesday.yaml
  evidence metrics tuesday.yaml --events drift.json --window 168h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventsPath, "events", "", "JSON array of drift events")
	return cmd
}

func runMetrics(opts *MetricsOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	s, err := snapshotio.LoadFile(path)
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("failed to load snapshot", err)
	}

	var events []evidence.DriftEvent
	if opts.EventsPath != "" {
		data, err := os.ReadFile(opts.EventsPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		if err := json.Unmarshal(data, &events); err != nil {
			return WrapExitError(ExitCommandError, "failed to decode events", err)
		}
		if events == nil {
			events = []evidence.DriftEvent{}
		}
	}

	window := pipeline.WindowEnding(s.CapturedAt, cfg.Metrics.Window)
	out.VerboseLog("Window %s .. %s, drift history available: %t",
		evidence.At(window.Start), evidence.At(window.End), events != nil)

	run, err := metrics.ComputeMetrics(s.TenantID, s.CloudID, window, s, events, time.Now())
	if err != nil {
		_ = out.Fault(err)
		return wrapFault("metrics computation failed", err)
	}
	return out.Success(run, func(w io.Writer) { writeRun(w, run) })
}

func writeRun(w io.Writer, run *evidence.MetricsRun) {
	fmt.Fprintf(w, "Run %s (%s/%s, snapshot %s)\n", run.RunID, run.TenantID, run.CloudID, run.SnapshotID)
	fmt.Fprintf(w, "Window %s .. %s, completeness %.1f%%\n",
		evidence.At(run.Window.Start), evidence.At(run.Window.End), run.CompletenessPercentage)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE\tRATIO\tCONFIDENCE\tNOTE")
	for _, m := range run.Metrics {
		if m.Availability != evidence.Available {
			note := ""
			if m.NotAvailableReason != nil {
				note = *m.NotAvailableReason
			}
			fmt.Fprintf(tw, "%s\t%s\t-\t%s\t%s %v\n", m.MetricKey, m.Availability, m.ConfidenceLabel, note, m.MissingDependencies)
			continue
		}
		fmt.Fprintf(tw, "%s\t%g\t%d/%d\t%s\t\n", m.MetricKey, *m.Value, *m.Numerator, *m.Denominator, m.ConfidenceLabel)
	}
	tw.Flush()
}
