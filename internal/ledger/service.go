package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/tenancy"
)

// Repository persists ledgers. GetLedger returns a NOT_FOUND fault when
// the tenant has none.
type Repository interface {
	GetLedger(ctx context.Context, tenantID string) (*evidence.Ledger, error)
	PutLedger(ctx context.Context, l *evidence.Ledger) error
}

// Service applies first-occurrence signals against stored ledgers.
// Updates for one tenant are serialized.
type Service struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
	locks  *tenancy.Locks
}

// NewService creates a ledger service. now supplies updated_at.
func NewService(repo Repository, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, now: now, logger: logger, locks: tenancy.NewLocks()}
}

// ApplyEvent loads the tenant's ledger, applies the signal and stores the
// result when it changed. A ledger is created only here, as a side effect
// of the first accepted signal.
func (s *Service) ApplyEvent(ctx context.Context, tenantID string, kind evidence.EventKind, observedAt time.Time) (*evidence.Ledger, bool, error) {
	if err := tenancy.Check(ctx, tenantID, tenantID); err != nil {
		return nil, false, err
	}
	unlock := s.locks.Lock(tenantID)
	defer unlock()

	current, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}

	next, changed, err := Apply(current, tenantID, kind, observedAt, s.now())
	if err != nil {
		if fault.Is(err, fault.ImmutabilityViolation) {
			s.logger.Warn("ledger update rejected",
				"tenant", tenantID,
				"kind", string(kind),
				"observed_at", formatTime(observedAt),
			)
		}
		return current, false, err
	}
	if !changed {
		return current, false, nil
	}
	if err := s.repo.PutLedger(ctx, next); err != nil {
		return current, false, err
	}

	s.logger.Info("ledger updated",
		"tenant", tenantID,
		"kind", string(kind),
		"observed_at", next.Field(kind).String(),
	)
	return next, true, nil
}

// Get returns the tenant's verified ledger.
func (s *Service) Get(ctx context.Context, tenantID string) (*evidence.Ledger, error) {
	l, err := s.repo.GetLedger(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Check(ctx, tenantID, l.TenantID); err != nil {
		return nil, err
	}
	if err := evidence.Verify(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Candidate reports whether a signal would change the stored ledger.
func (s *Service) Candidate(ctx context.Context, tenantID string, kind evidence.EventKind, observedAt time.Time) (bool, error) {
	l, err := s.load(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return IsCandidate(l, kind, observedAt), nil
}

func (s *Service) load(ctx context.Context, tenantID string) (*evidence.Ledger, error) {
	l, err := s.Get(ctx, tenantID)
	if fault.Is(err, fault.NotFound) {
		return nil, nil
	}
	return l, err
}
