package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lodgetix/reconcile/internal/domain"
)

// MemoryClient is an in-memory implementation of the Client interface used for
// unit testing engine logic without a running document store. It enforces the
// same claim and terminal-state guards as the production client.
type MemoryClient struct {
	mu            sync.Mutex
	payments      map[string]domain.Payment
	registrations map[string]domain.Registration
	err           error
	connectivity  error
}

// NewMemoryClient instantiates an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		payments:      make(map[string]domain.Payment),
		registrations: make(map[string]domain.Registration),
	}
}

// WithError configures the client to return the provided error for subsequent
// data operations.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

func (m *MemoryClient) UpsertPayment(_ context.Context, p domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if p.MatchState == "" {
		p.MatchState = domain.MatchStateUnmatched
	}
	m.payments[p.ID] = p
	return nil
}

func (m *MemoryClient) UpsertRegistration(_ context.Context, r domain.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.registrations[r.ID] = r
	return nil
}

func (m *MemoryClient) PaymentByID(_ context.Context, id string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Payment{}, m.err
	}
	p, ok := m.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *MemoryClient) RegistrationByID(_ context.Context, id string) (domain.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Registration{}, m.err
	}
	r, ok := m.registrations[id]
	if !ok {
		return domain.Registration{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *MemoryClient) CandidateRegistrations(_ context.Context, q CandidateQuery) ([]domain.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	var matches []domain.Registration
	for _, r := range m.registrations {
		if matchesCandidateQuery(r, q) {
			matches = append(matches, r)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func matchesCandidateQuery(r domain.Registration, q CandidateQuery) bool {
	for _, pid := range q.ProcessorIDs {
		if pid == "" {
			continue
		}
		for _, lid := range r.LinkedPaymentIDs {
			if pid == lid {
				return true
			}
		}
	}

	if q.Email != "" && strings.EqualFold(strings.TrimSpace(r.ContactEmail), q.Email) {
		return true
	}

	if q.Amount.IsPositive() && !q.WindowStart.IsZero() && !q.WindowEnd.IsZero() {
		if r.TotalAmountPaid.Equal(q.Amount) &&
			!r.CreatedAt.Before(q.WindowStart) && !r.CreatedAt.After(q.WindowEnd) {
			return true
		}
	}
	return false
}

func (m *MemoryClient) ReprocessablePaymentIDs(_ context.Context, q ReprocessQuery) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	var ids []string
	for id, p := range m.payments {
		switch p.MatchState {
		case domain.MatchStateUnmatched, domain.MatchStateError:
			ids = append(ids, id)
		case domain.MatchStateMatched:
			if q.IncludeMatched {
				ids = append(ids, id)
			}
		}
	}

	sort.Strings(ids)
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids, nil
}

func (m *MemoryClient) RecordMatch(_ context.Context, rec MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	p, ok := m.payments[rec.PaymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MatchState.Terminal() {
		return domain.ErrTerminalState
	}

	r, ok := m.registrations[rec.RegistrationID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.ClaimedByOther(rec.PaymentID) {
		return domain.ErrClaimConflict
	}

	if p.MatchedRegistrationID != "" && p.MatchedRegistrationID != rec.RegistrationID {
		m.releaseClaim(p.MatchedRegistrationID, rec.PaymentID)
	}

	r.ClaimedByPaymentID = rec.PaymentID
	m.registrations[r.ID] = r

	confidence := rec.Confidence
	p.MatchState = domain.MatchStateMatched
	p.MatchedRegistrationID = rec.RegistrationID
	p.MatchConfidence = &confidence
	p.MatchMethod = rec.Method
	p.MatchDetails = rec.Details
	p.DuplicateSuspectOf = ""
	p.ErrorReason = ""
	m.payments[p.ID] = p
	return nil
}

func (m *MemoryClient) RecordNoMatch(_ context.Context, rec NoMatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	p, ok := m.payments[rec.PaymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MatchState.Terminal() {
		return domain.ErrTerminalState
	}

	if p.MatchedRegistrationID != "" {
		m.releaseClaim(p.MatchedRegistrationID, p.ID)
	}

	p.MatchState = domain.MatchStateUnmatched
	p.MatchedRegistrationID = ""
	p.MatchConfidence = nil
	p.MatchMethod = domain.MatchMethodNone
	p.MatchDetails = rec.Details
	p.DuplicateSuspectOf = rec.DuplicateSuspectOf
	p.ErrorReason = ""
	m.payments[p.ID] = p
	return nil
}

func (m *MemoryClient) RecordError(_ context.Context, paymentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	p, ok := m.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MatchState.Terminal() {
		return domain.ErrTerminalState
	}

	if p.MatchedRegistrationID != "" {
		m.releaseClaim(p.MatchedRegistrationID, p.ID)
	}

	p.MatchState = domain.MatchStateError
	p.MatchedRegistrationID = ""
	p.MatchConfidence = nil
	p.MatchMethod = domain.MatchMethodNone
	p.ErrorReason = reason
	m.payments[p.ID] = p
	return nil
}

func (m *MemoryClient) RecordManualResolution(_ context.Context, rec ManualRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	p, ok := m.payments[rec.PaymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MatchState.Terminal() {
		return domain.ErrTerminalState
	}

	if rec.MarkDuplicate {
		if p.MatchedRegistrationID != "" {
			m.releaseClaim(p.MatchedRegistrationID, p.ID)
		}
		p.MatchState = domain.MatchStateDuplicate
		p.MatchedRegistrationID = ""
		p.MatchConfidence = nil
	} else {
		r, ok := m.registrations[rec.RegistrationID]
		if !ok {
			return domain.ErrNotFound
		}
		if r.ClaimedByOther(rec.PaymentID) {
			return domain.ErrClaimConflict
		}
		if p.MatchedRegistrationID != "" && p.MatchedRegistrationID != rec.RegistrationID {
			m.releaseClaim(p.MatchedRegistrationID, p.ID)
		}
		r.ClaimedByPaymentID = rec.PaymentID
		m.registrations[r.ID] = r

		p.MatchState = domain.MatchStateManualResolved
		p.MatchedRegistrationID = rec.RegistrationID
		p.MatchConfidence = nil
	}

	resolvedAt := rec.ResolvedAt
	p.MatchMethod = domain.MatchMethodManual
	p.ResolvedBy = rec.Operator
	p.ResolutionNote = rec.Note
	p.ResolvedAt = &resolvedAt
	p.ErrorReason = ""
	p.DuplicateSuspectOf = ""
	m.payments[p.ID] = p
	return nil
}

func (m *MemoryClient) MatchStatistics(_ context.Context, opts StatisticsOptions) (domain.MatchStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.MatchStatistics{}, m.err
	}

	stats := domain.MatchStatistics{
		ByMethod: make(map[domain.MatchMethod]int64),
	}
	for _, p := range m.payments {
		stats.Total++
		switch p.MatchState {
		case domain.MatchStateMatched:
			stats.Matched++
		case domain.MatchStateUnmatched:
			stats.Unmatched++
		case domain.MatchStateError:
			stats.Errors++
		case domain.MatchStateDuplicate:
			stats.Duplicates++
		case domain.MatchStateManualResolved:
			stats.ManuallyResolved++
		}

		if p.MatchMethod != "" {
			stats.ByMethod[p.MatchMethod]++
		}

		if p.MatchState == domain.MatchStateMatched && p.MatchConfidence != nil {
			switch {
			case *p.MatchConfidence >= opts.HighConfidence:
				stats.ByConfidence.High++
			case *p.MatchConfidence >= opts.AcceptThreshold:
				stats.ByConfidence.Medium++
			default:
				stats.ByConfidence.Low++
			}
		}
	}
	return stats, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// Payment returns a snapshot of the stored payment, for test assertions.
func (m *MemoryClient) Payment(id string) (domain.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	return p, ok
}

// Registration returns a snapshot of the stored registration, for test
// assertions.
func (m *MemoryClient) Registration(id string) (domain.Registration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrations[id]
	return r, ok
}

// releaseClaim clears a claim held by paymentID. Caller holds the lock.
func (m *MemoryClient) releaseClaim(registrationID, paymentID string) {
	r, ok := m.registrations[registrationID]
	if !ok || r.ClaimedByPaymentID != paymentID {
		return
	}
	r.ClaimedByPaymentID = ""
	m.registrations[registrationID] = r
}
