// Package pipeline runs captured snapshots through drift detection,
// metrics and the continuity ledger, and persists every result.
//
// Work for one tenant is strictly sequential. Different tenants run in
// parallel and never share state.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/drift"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/ledger"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/metrics"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/store"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/telemetry"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// DefaultWindow is the metrics look-back when none is configured.
const DefaultWindow = 720 * time.Hour

// Options configures a Pipeline.
type Options struct {
	// Window is the metrics look-back ending at each snapshot's capture.
	Window time.Duration

	// Parallelism bounds how many tenants IngestAll runs at once.
	Parallelism int

	// Now supplies stored_at, computed_at and updated_at.
	Now func() time.Time

	Logger    *slog.Logger
	Telemetry *telemetry.Metrics
}

// Pipeline ingests snapshots.
type Pipeline struct {
	repo      *store.Evidence
	ledger    *ledger.Service
	telemetry *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
	window    time.Duration
	parallel  int
	locks     *tenancy.Locks
}

// New creates a pipeline over repo.
func New(repo *store.Evidence, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.New()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Pipeline{
		repo:      repo,
		ledger:    ledger.NewService(repo, opts.Now, opts.Logger),
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
		now:       opts.Now,
		window:    opts.Window,
		parallel:  opts.Parallelism,
		locks:     tenancy.NewLocks(),
	}
}

// Ledger returns the ledger service the pipeline writes through.
func (p *Pipeline) Ledger() *ledger.Service { return p.ledger }

// Result describes what one Ingest did.
type Result struct {
	TraceID    string `json:"trace_id"`
	TenantID   string `json:"tenant_id"`
	CloudID    string `json:"cloud_id"`
	SnapshotID string `json:"snapshot_id"`

	// SnapshotStored is false when the identical snapshot was already stored.
	SnapshotStored bool `json:"snapshot_stored"`

	// PreviousSnapshotID is the snapshot diffed against, if any.
	PreviousSnapshotID string `json:"previous_snapshot_id,omitempty"`

	Events       []evidence.DriftEvent `json:"events"`
	EventsStored bool                  `json:"events_stored"`

	Run       *evidence.MetricsRun `json:"run"`
	RunStored bool                 `json:"run_stored"`

	// LedgerUpdates lists the ledger fields this ingest moved.
	LedgerUpdates []evidence.EventKind `json:"ledger_updates"`
}

// MetricsWindow returns the window metrics are computed over for a
// snapshot captured at capturedAt. The end is one canonical millisecond
// past the capture so the snapshot's own drift is counted.
func (p *Pipeline) MetricsWindow(capturedAt time.Time) evidence.Window {
	return WindowEnding(capturedAt, p.window)
}

// WindowEnding is MetricsWindow for an explicit look-back.
func WindowEnding(capturedAt time.Time, lookBack time.Duration) evidence.Window {
	end := capturedAt.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	return evidence.Window{Start: end.Add(-lookBack), End: end}
}

// Ingest runs drift, metrics and ledger updates for s and stores the
// results.
//
// An unsealed snapshot is sealed; a sealed one must verify. Everything is
// computed before anything is written, and the writes go events, run,
// snapshot, latest marker, ledger, so a failed ingest is retried in full.
// Re-ingesting the same snapshot stores nothing new.
func (p *Pipeline) Ingest(ctx context.Context, s *evidence.Snapshot) (*Result, error) {
	started := p.now()
	if err := s.Validate(); err != nil {
		p.telemetry.RecordSnapshot(telemetry.OutcomeRejected)
		return nil, err
	}
	if err := sealOrVerify(s); err != nil {
		p.telemetry.RecordSnapshot(telemetry.OutcomeRejected)
		return nil, err
	}
	if _, ok := tenancy.TenantFromContext(ctx); !ok {
		ctx = tenancy.WithTenant(ctx, s.TenantID)
	}

	unlock := p.locks.Lock(s.TenantID)
	defer unlock()

	res := &Result{
		TraceID:       newTraceID(),
		TenantID:      s.TenantID,
		CloudID:       s.CloudID,
		SnapshotID:    s.SnapshotID,
		Events:        []evidence.DriftEvent{},
		LedgerUpdates: []evidence.EventKind{},
	}
	log := p.logger.With("trace_id", res.TraceID, "tenant", s.TenantID, "cloud", s.CloudID, "snapshot", s.SnapshotID)

	known, err := p.stored(ctx, s)
	if err != nil {
		p.telemetry.RecordSnapshot(telemetry.OutcomeRejected)
		return nil, err
	}

	d, err := p.diff(ctx, log, res, s, known)
	if err != nil {
		return nil, err
	}
	if err := p.computeMetrics(ctx, res, s, d); err != nil {
		return nil, err
	}

	if d != nil {
		stored, err := p.repo.PutDiff(ctx, d, res.Events)
		if err != nil {
			return nil, err
		}
		res.EventsStored = stored
		if stored {
			for _, e := range res.Events {
				p.telemetry.RecordDriftEvent(string(e.Classification))
			}
		}
	}
	if err := p.storeRun(ctx, res); err != nil {
		return nil, err
	}

	stored, err := p.repo.PutSnapshot(ctx, s)
	if err != nil {
		p.telemetry.RecordSnapshot(telemetry.OutcomeRejected)
		return nil, err
	}
	res.SnapshotStored = stored
	if stored {
		p.telemetry.RecordSnapshot(telemetry.OutcomeStored)
	} else {
		p.telemetry.RecordSnapshot(telemetry.OutcomeDuplicate)
	}
	if err := p.repo.SetLatest(ctx, s); err != nil {
		return nil, err
	}

	if err := p.signals(ctx, res, s); err != nil {
		return nil, err
	}

	p.telemetry.ObserveIngest(p.now().Sub(started))
	log.Info("snapshot ingested",
		"stored", res.SnapshotStored,
		"previous", res.PreviousSnapshotID,
		"events", len(res.Events),
		"run", res.Run.RunID,
		"run_completeness", res.Run.CompletenessPercentage,
	)
	return res, nil
}

func sealOrVerify(s *evidence.Snapshot) error {
	if s.CanonicalHash == "" {
		if err := s.Seal(); err != nil {
			return fault.Wrap(fault.InvalidSnapshot, err, "seal snapshot %s", s.SnapshotID).WithTenant(s.TenantID)
		}
		return nil
	}
	return evidence.Verify(s)
}

// stored reports whether s is already stored, failing when a different
// snapshot holds its id.
func (p *Pipeline) stored(ctx context.Context, s *evidence.Snapshot) (bool, error) {
	existing, err := p.repo.GetSnapshot(ctx, s.TenantID, s.SnapshotID)
	switch {
	case fault.Is(err, fault.NotFound):
		return false, nil
	case err != nil:
		return false, err
	case existing.CanonicalHash != s.CanonicalHash:
		return false, fault.New(fault.ImmutabilityViolation, "snapshot %s is already stored with different content", s.SnapshotID).
			WithTenant(s.TenantID).
			With("stored_hash", existing.CanonicalHash).
			With("attempted_hash", s.CanonicalHash)
	}
	return true, nil
}

// diff finds the drift of s. A diff already stored for s is reused.
// Otherwise a snapshot seen for the first time is compared with the
// cloud's latest snapshot. The returned diff is nil when s has no drift
// history.
func (p *Pipeline) diff(ctx context.Context, log *slog.Logger, res *Result, s *evidence.Snapshot, known bool) (*store.Diff, error) {
	d, err := p.repo.GetDiff(ctx, s.TenantID, s.SnapshotID)
	switch {
	case err == nil:
		events, err := p.repo.DiffEvents(ctx, d)
		if err != nil {
			return nil, err
		}
		res.PreviousSnapshotID = d.FromSnapshotID
		res.Events = events
		return d, nil
	case !fault.Is(err, fault.NotFound):
		return nil, err
	case known:
		return nil, nil
	}

	previous, err := p.repo.Latest(ctx, s.TenantID, s.CloudID)
	switch {
	case fault.Is(err, fault.NotFound):
		log.Debug("first snapshot of cloud; nothing to diff")
		return nil, nil
	case err != nil:
		return nil, err
	case previous.SnapshotID == s.SnapshotID:
		return nil, nil
	case previous.CapturedAt.After(s.CapturedAt):
		log.Warn("snapshot predates the latest capture; not diffed",
			"latest", previous.SnapshotID)
		return nil, nil
	}

	events, err := drift.ComputeDrift(s.TenantID, s.CloudID, previous, s)
	if err != nil {
		return nil, err
	}
	res.PreviousSnapshotID = previous.SnapshotID
	res.Events = events
	log.Debug("drift computed", "previous", previous.SnapshotID, "events", len(events))

	return &store.Diff{
		TenantID:       s.TenantID,
		CloudID:        s.CloudID,
		PairKey:        evidence.PairKey(s.TenantID, s.CloudID, previous.SnapshotID, s.SnapshotID),
		FromSnapshotID: previous.SnapshotID,
		ToSnapshotID:   s.SnapshotID,
		ToCapturedAt:   s.CapturedAt,
		StoredAt:       p.now(),
	}, nil
}

// computeMetrics evaluates the catalogue for s over the configured
// window. A run already stored for s is reused. Drift history is
// available only when s has a diff; the window's events are then the
// stored ones plus the diff's own.
func (p *Pipeline) computeMetrics(ctx context.Context, res *Result, s *evidence.Snapshot, d *store.Diff) error {
	window := p.MetricsWindow(s.CapturedAt)
	existing, err := p.repo.GetRun(ctx, s.TenantID, evidence.MetricsRunID(s.TenantID, s.CloudID, window, s.SnapshotID))
	switch {
	case err == nil:
		res.Run = existing
		return nil
	case !fault.Is(err, fault.NotFound):
		return err
	}

	var events []evidence.DriftEvent
	if d != nil {
		events, err = p.repo.WindowEvents(ctx, s.TenantID, s.CloudID, window)
		if err != nil {
			return err
		}
		seen := mapset.NewThreadUnsafeSet[string]()
		for _, e := range events {
			seen.Add(e.DriftEventID)
		}
		for _, e := range res.Events {
			if seen.Add(e.DriftEventID) {
				events = append(events, e)
			}
		}
	}

	run, err := metrics.ComputeMetrics(s.TenantID, s.CloudID, window, s, events, p.now())
	if err != nil {
		return err
	}
	res.Run = run
	return nil
}

// storeRun writes a freshly computed run. The first computation of a run
// id wins.
func (p *Pipeline) storeRun(ctx context.Context, res *Result) error {
	stored, err := p.repo.PutRun(ctx, res.Run)
	if err != nil {
		return err
	}
	res.RunStored = stored
	if !stored {
		p.telemetry.RecordRun(telemetry.OutcomeDuplicate)
		return nil
	}
	p.telemetry.RecordRun(telemetry.OutcomeStored)
	for _, m := range res.Run.Metrics {
		p.telemetry.RecordMetric(m.MetricKey, string(m.Availability))
	}
	return nil
}

// signals sends the ledger every first-occurrence signal this ingest
// carries. Only structural and configuration drift counts as drift; scope
// changes never do.
func (p *Pipeline) signals(ctx context.Context, res *Result, s *evidence.Snapshot) error {
	if s.InstallDetectedAt != nil {
		if err := p.signal(ctx, res, evidence.KindInstallDetected, *s.InstallDetectedAt); err != nil {
			return err
		}
	}
	if err := p.signal(ctx, res, evidence.KindSnapshotObserved, s.CapturedAt); err != nil {
		return err
	}
	if earliest, ok := earliestDrift(res.Events); ok {
		if err := p.signal(ctx, res, evidence.KindDriftObserved, earliest); err != nil {
			return err
		}
	}
	if res.Run.AnyAvailable() {
		return p.signal(ctx, res, evidence.KindMetricsObserved, s.CapturedAt)
	}
	return nil
}

func earliestDrift(events []evidence.DriftEvent) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, e := range events {
		if e.Classification != evidence.ClassStructural && e.Classification != evidence.ClassConfigChange {
			continue
		}
		if !found || e.ToCapturedAt.Before(earliest) {
			earliest, found = e.ToCapturedAt, true
		}
	}
	return earliest, found
}

// signal applies a first-occurrence signal when it would change the
// ledger. Anything else is not a first occurrence and is not sent.
func (p *Pipeline) signal(ctx context.Context, res *Result, kind evidence.EventKind, at time.Time) error {
	candidate, err := p.ledger.Candidate(ctx, res.TenantID, kind, at)
	if err != nil {
		return err
	}
	if !candidate {
		p.telemetry.RecordLedger(string(kind), telemetry.OutcomeUnchanged)
		return nil
	}
	_, changed, err := p.ledger.ApplyEvent(ctx, res.TenantID, kind, at)
	if err != nil {
		if fault.Is(err, fault.ImmutabilityViolation) {
			p.telemetry.RecordLedger(string(kind), telemetry.OutcomeRejected)
		}
		return err
	}
	if changed {
		p.telemetry.RecordLedger(string(kind), telemetry.OutcomeUpdated)
		res.LedgerUpdates = append(res.LedgerUpdates, kind)
	} else {
		p.telemetry.RecordLedger(string(kind), telemetry.OutcomeUnchanged)
	}
	return nil
}

// newTraceID returns a time-ordered id that correlates the log lines of
// one ingest. It is never stored or hashed.
func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
