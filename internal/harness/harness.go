package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/ledger"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/logging"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/pipeline"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/snapshotio"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/store"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/testutil"
)

// Harness runs scenarios against a fresh in-memory store with a
// deterministic clock.
type Harness struct {
	repo     *store.Evidence
	pipeline *pipeline.Pipeline
	clock    *testutil.StepClock
	tenants  []string
	seq      int64
}

// New creates a harness for one scenario run.
func New(window time.Duration) *Harness {
	clock := testutil.NewStepClock(testutil.Epoch, time.Second)
	repo := store.NewEvidence(store.NewMemory(clock.Current), store.EvidenceOptions{})
	return &Harness{
		repo:  repo,
		clock: clock,
		pipeline: pipeline.New(repo, pipeline.Options{
			Window: window,
			Now:    clock.Now,
			Logger: logging.Discard(),
		}),
	}
}

// Repo returns the store the harness writes to.
func (h *Harness) Repo() *store.Evidence { return h.repo }

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation.
// Execution flow:
// 1. Run each step, recording a trace event
// 2. Check each step's error against expect_error
// 3. Evaluate assertions against the stored evidence
// 4. Render the final ledger of every touched tenant
func Run(scenario *Scenario) (*Result, error) {
	return New(scenario.Window).Run(context.Background(), scenario)
}

// Run executes scenario against the harness store.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()

	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			var fe *fault.Error
			if !errors.As(err, &fe) {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
			ev.Error = string(fe.Code)
			if step.ExpectError == "" {
				result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", i, err))
			}
		}
		if step.ExpectError != "" && ev.Error != step.ExpectError {
			got := ev.Error
			if got == "" {
				got = "success"
			}
			result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s", i, step.ExpectError, got))
		}
		result.Trace = append(result.Trace, ev)
	}

	actx := &AssertionContext{Ctx: ctx, Repo: h.repo}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	for _, tenant := range h.tenants {
		l, err := h.pipeline.Ledger().Get(ctx, tenant)
		switch {
		case fault.Is(err, fault.NotFound):
			result.Ledgers[tenant] = ledger.Describe(evidence.NewLedger(tenant))
		case err != nil:
			return nil, fmt.Errorf("read ledger %s: %w", tenant, err)
		default:
			result.Ledgers[tenant] = ledger.Describe(l)
		}
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Step: StepIngest}
	s, err := snapshotio.LoadFile(step.Ingest)
	if err != nil {
		return ev, err
	}
	ev.TenantID, ev.CloudID, ev.SnapshotID = s.TenantID, s.CloudID, s.SnapshotID
	h.touch(s.TenantID)

	res, err := h.pipeline.Ingest(ctx, s)
	if err != nil {
		return ev, err
	}
	ev.SnapshotStored = res.SnapshotStored
	ev.PreviousSnapshotID = res.PreviousSnapshotID
	for _, e := range res.Events {
		ev.Changes = append(ev.Changes, describeEvent(e))
	}
	if res.Run != nil {
		for _, m := range res.Run.Metrics {
			if m.Availability == evidence.Available {
				ev.MetricsAvailable = append(ev.MetricsAvailable, m.MetricKey)
			}
		}
	}
	for _, k := range res.LedgerUpdates {
		ev.LedgerUpdates = append(ev.LedgerUpdates, string(k))
	}
	return ev, nil
}

func (h *Harness) touch(tenant string) {
	if tenant != "" && !slices.Contains(h.tenants, tenant) {
		h.tenants = append(h.tenants, tenant)
		slices.Sort(h.tenants)
	}
}

func describeEvent(e evidence.DriftEvent) string {
	return fmt.Sprintf("%s/%s %s %s", e.ObjectType, e.ObjectID, e.ChangeType, e.Classification)
}
