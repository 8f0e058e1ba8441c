package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodgetix/reconcile/internal/domain"
)

// Client defines the minimal contract required by the reconciliation engine to
// interact with the underlying document store. All claim-touching writes are
// single conditional updates so concurrent attempts serialize without a global
// lock.
type Client interface {
	UpsertPayment(ctx context.Context, p domain.Payment) error
	UpsertRegistration(ctx context.Context, r domain.Registration) error
	PaymentByID(ctx context.Context, id string) (domain.Payment, error)
	RegistrationByID(ctx context.Context, id string) (domain.Registration, error)
	CandidateRegistrations(ctx context.Context, q CandidateQuery) ([]domain.Registration, error)
	ReprocessablePaymentIDs(ctx context.Context, q ReprocessQuery) ([]string, error)
	RecordMatch(ctx context.Context, rec MatchRecord) error
	RecordNoMatch(ctx context.Context, rec NoMatchRecord) error
	RecordError(ctx context.Context, paymentID, reason string) error
	RecordManualResolution(ctx context.Context, rec ManualRecord) error
	MatchStatistics(ctx context.Context, opts StatisticsOptions) (domain.MatchStatistics, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// CandidateQuery bounds the registration search space for one payment. The
// result is the union of the identifier, email, and amount-within-window
// clauses; empty clauses are skipped and an empty union is a valid outcome.
type CandidateQuery struct {
	ProcessorIDs []string
	Email        string
	Amount       decimal.Decimal
	WindowStart  time.Time
	WindowEnd    time.Time
	Limit        int
}

// ReprocessQuery selects payments eligible for another matching pass.
// Terminal payments are never returned.
type ReprocessQuery struct {
	Limit          int
	IncludeMatched bool
}

// MatchRecord persists an accepted match: the registration claim and the
// payment decision as one unit. The claim is guarded: it succeeds only when
// the registration is unclaimed or already claimed by this payment.
type MatchRecord struct {
	PaymentID      string
	RegistrationID string
	Confidence     int
	Method         domain.MatchMethod
	Details        []domain.MatchDetail
}

// NoMatchRecord persists a rejection. Details carry the best-scoring near miss
// for diagnostics; DuplicateSuspectOf flags a lost claim race for manual
// review.
type NoMatchRecord struct {
	PaymentID          string
	Details            []domain.MatchDetail
	DuplicateSuspectOf string
}

// ManualRecord persists an operator decision. It is the only write permitted
// to overwrite a MATCHED payment; already-terminal payments are rejected.
type ManualRecord struct {
	PaymentID      string
	RegistrationID string
	MarkDuplicate  bool
	Note           string
	Operator       string
	ResolvedAt     time.Time
}

// StatisticsOptions supplies the configured confidence band boundaries for the
// read-side snapshot.
type StatisticsOptions struct {
	AcceptThreshold int
	HighConfidence  int
}

// Options configures a store client implementation.
type Options struct {
	URI         string
	Database    string
	Timeout     time.Duration
	MaxPoolSize uint64
}

// ErrMissingURI indicates the store URI is not provided.
var ErrMissingURI = errors.New("store URI is required")
