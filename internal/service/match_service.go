package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/match"
	"github.com/lodgetix/reconcile/internal/store"
)

// Store is the storage contract required by the matching service.
type Store interface {
	PaymentByID(ctx context.Context, id string) (domain.Payment, error)
	RegistrationByID(ctx context.Context, id string) (domain.Registration, error)
	CandidateRegistrations(ctx context.Context, q store.CandidateQuery) ([]domain.Registration, error)
	ReprocessablePaymentIDs(ctx context.Context, q store.ReprocessQuery) ([]string, error)
	RecordMatch(ctx context.Context, rec store.MatchRecord) error
	RecordNoMatch(ctx context.Context, rec store.NoMatchRecord) error
	RecordError(ctx context.Context, paymentID, reason string) error
	RecordManualResolution(ctx context.Context, rec store.ManualRecord) error
	MatchStatistics(ctx context.Context, opts store.StatisticsOptions) (domain.MatchStatistics, error)
}

// MatchOutcome is the caller-facing result of one matching decision.
type MatchOutcome struct {
	PaymentID          string
	State              domain.MatchState
	Method             domain.MatchMethod
	Confidence         *int
	RegistrationID     string
	Details            []domain.MatchDetail
	DuplicateSuspectOf string
}

// ManualResolution describes an operator decision: either a forced match to a
// registration or marking the payment a duplicate.
type ManualResolution struct {
	RegistrationID string
	MarkDuplicate  bool
}

// MatchService orchestrates candidate selection, scoring, and persistence for
// payment-to-registration matching. Per-payment striped locks keep concurrent
// decisions for the same payment serialized within the process; the store's
// conditional claim update serializes across processes.
type MatchService struct {
	store  Store
	cfg    match.Config
	logger *slog.Logger
	locks  stripedLocks
	nowFn  func() time.Time
}

// NewMatchService constructs a MatchService.
func NewMatchService(st Store, cfg match.Config, logger *slog.Logger) *MatchService {
	return &MatchService{
		store:  st,
		cfg:    cfg,
		logger: logger,
		nowFn:  time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *MatchService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Payment fetches a payment record.
func (s *MatchService) Payment(ctx context.Context, id string) (domain.Payment, error) {
	return s.store.PaymentByID(ctx, id)
}

// FindMatchByID loads the payment and runs a matching decision for it.
func (s *MatchService) FindMatchByID(ctx context.Context, paymentID string) (MatchOutcome, error) {
	payment, err := s.store.PaymentByID(ctx, paymentID)
	if err != nil {
		return MatchOutcome{}, err
	}
	return s.FindMatch(ctx, payment)
}

// FindMatch decides and persists the match for one payment. Payments in a
// terminal state are returned as-is without re-deciding. "No match found" is a
// valid outcome, never an error; malformed payments are marked ERROR and the
// validation failure is surfaced to the caller.
func (s *MatchService) FindMatch(ctx context.Context, payment domain.Payment) (MatchOutcome, error) {
	unlock := s.locks.lock(payment.ID)
	defer unlock()

	if payment.MatchState.Terminal() {
		return outcomeFromPayment(payment), nil
	}

	if err := validatePayment(payment); err != nil {
		if recErr := s.store.RecordError(ctx, payment.ID, err.Error()); recErr != nil {
			s.logger.Error("failed to record validation error", "error", recErr, "paymentId", payment.ID)
		}
		return MatchOutcome{PaymentID: payment.ID, State: domain.MatchStateError, Method: domain.MatchMethodNone}, err
	}

	// One automatic retry after a lost claim race: the second pass sees the
	// winner's claim and downgrades to a duplicate suspect.
	var resolution match.Resolution
	for attempt := 0; attempt < 2; attempt++ {
		candidates, err := s.store.CandidateRegistrations(ctx, s.candidateQuery(payment))
		if err != nil {
			reason := fmt.Sprintf("candidate search failed: %v", err)
			if recErr := s.store.RecordError(ctx, payment.ID, reason); recErr != nil {
				s.logger.Error("failed to record candidate search error", "error", recErr, "paymentId", payment.ID)
			}
			return MatchOutcome{PaymentID: payment.ID, State: domain.MatchStateError, Method: domain.MatchMethodNone}, err
		}

		resolution = match.Resolve(payment, candidates, s.cfg)
		if !resolution.Accepted() {
			break
		}

		err = s.store.RecordMatch(ctx, store.MatchRecord{
			PaymentID:      payment.ID,
			RegistrationID: resolution.Registration.ID,
			Confidence:     resolution.Confidence,
			Method:         resolution.Method,
			Details:        resolution.Details,
		})
		if err == nil {
			confidence := resolution.Confidence
			s.logger.Info("payment matched",
				"paymentId", payment.ID,
				"registrationId", resolution.Registration.ID,
				"confidence", confidence,
				"method", resolution.Method,
			)
			return MatchOutcome{
				PaymentID:      payment.ID,
				State:          domain.MatchStateMatched,
				Method:         resolution.Method,
				Confidence:     &confidence,
				RegistrationID: resolution.Registration.ID,
				Details:        resolution.Details,
			}, nil
		}
		if !errors.Is(err, domain.ErrClaimConflict) {
			return MatchOutcome{}, err
		}
		s.logger.Warn("claim conflict, retrying",
			"paymentId", payment.ID, "registrationId", resolution.Registration.ID, "attempt", attempt+1)

		// Lost the race on the final attempt: report the claim holder for
		// duplicate review instead of reassigning.
		if attempt == 1 {
			resolution = s.downgradeToDuplicate(ctx, payment, resolution)
		}
	}

	if err := s.store.RecordNoMatch(ctx, store.NoMatchRecord{
		PaymentID:          payment.ID,
		Details:            resolution.Details,
		DuplicateSuspectOf: resolution.DuplicateSuspectOf,
	}); err != nil {
		return MatchOutcome{}, err
	}

	return MatchOutcome{
		PaymentID:          payment.ID,
		State:              domain.MatchStateUnmatched,
		Method:             domain.MatchMethodNone,
		Details:            resolution.Details,
		DuplicateSuspectOf: resolution.DuplicateSuspectOf,
	}, nil
}

// ResolveManually forces a terminal state decided by an operator. It is the
// only path allowed to overwrite a MATCHED payment; already-terminal payments
// are rejected. The note is mandatory for the audit trail.
func (s *MatchService) ResolveManually(ctx context.Context, paymentID string, resolution ManualResolution, note, operator string) error {
	if note == "" {
		return &domain.ValidationError{Field: "note", Reason: "an audit note is required"}
	}
	if resolution.MarkDuplicate == (resolution.RegistrationID != "") {
		return &domain.ValidationError{Field: "resolution", Reason: "exactly one of registrationId or duplicate must be provided"}
	}

	unlock := s.locks.lock(paymentID)
	defer unlock()

	err := s.store.RecordManualResolution(ctx, store.ManualRecord{
		PaymentID:      paymentID,
		RegistrationID: resolution.RegistrationID,
		MarkDuplicate:  resolution.MarkDuplicate,
		Note:           note,
		Operator:       operator,
		ResolvedAt:     s.nowFn().UTC(),
	})
	if err != nil {
		return err
	}

	s.logger.Info("payment manually resolved",
		"paymentId", paymentID,
		"registrationId", resolution.RegistrationID,
		"duplicate", resolution.MarkDuplicate,
		"operator", operator,
	)
	return nil
}

// MatchStatistics returns the read-side reconciliation snapshot.
func (s *MatchService) MatchStatistics(ctx context.Context) (domain.MatchStatistics, error) {
	return s.store.MatchStatistics(ctx, store.StatisticsOptions{
		AcceptThreshold: s.cfg.AcceptThreshold,
		HighConfidence:  s.cfg.HighConfidence,
	})
}

func (s *MatchService) candidateQuery(p domain.Payment) store.CandidateQuery {
	q := store.CandidateQuery{
		ProcessorIDs: p.ProcessorIdentifiers(),
		Email:        p.CustomerEmail,
		Amount:       p.Amount,
		Limit:        s.cfg.CandidateLimit,
	}
	if !p.OccurredAt.IsZero() {
		q.WindowStart = p.OccurredAt.Add(-s.cfg.DateWindow)
		q.WindowEnd = p.OccurredAt.Add(s.cfg.DateWindow)
	}
	return q
}

// downgradeToDuplicate turns an accepted resolution that lost the claim race
// into a no-match flagged with the current claim holder.
func (s *MatchService) downgradeToDuplicate(ctx context.Context, payment domain.Payment, res match.Resolution) match.Resolution {
	suspect := ""
	if reg, err := s.store.RegistrationByID(ctx, res.Registration.ID); err == nil {
		suspect = reg.ClaimedByPaymentID
	}
	return match.Resolution{
		Method:             domain.MatchMethodNone,
		Details:            res.Details,
		DuplicateSuspectOf: suspect,
	}
}

func validatePayment(p domain.Payment) error {
	switch {
	case p.ID == "":
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	case !p.Amount.IsPositive():
		return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	case p.Currency == "":
		return &domain.ValidationError{Field: "currency", Reason: "must not be empty"}
	case p.OccurredAt.IsZero():
		return &domain.ValidationError{Field: "occurredAt", Reason: "must be set"}
	}
	return nil
}

func outcomeFromPayment(p domain.Payment) MatchOutcome {
	return MatchOutcome{
		PaymentID:          p.ID,
		State:              p.MatchState,
		Method:             p.MatchMethod,
		Confidence:         p.MatchConfidence,
		RegistrationID:     p.MatchedRegistrationID,
		Details:            p.MatchDetails,
		DuplicateSuspectOf: p.DuplicateSuspectOf,
	}
}

// stripedLocks serializes work per key without a per-key allocation. Stripe
// collisions only over-serialize, never under-serialize.
type stripedLocks struct {
	mus [64]sync.Mutex
}

func (l *stripedLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.mus[h.Sum32()%uint32(len(l.mus))]
	mu.Lock()
	return mu.Unlock
}
