package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceSystem identifies where a payment observation was captured.
type SourceSystem string

const (
	SourceStripe       SourceSystem = "stripe"
	SourceSquare       SourceSystem = "square"
	SourceLegacyImport SourceSystem = "legacy_import"
)

// MatchState tracks the reconciliation lifecycle of a payment.
type MatchState string

const (
	MatchStateUnmatched      MatchState = "UNMATCHED"
	MatchStateMatched        MatchState = "MATCHED"
	MatchStateError          MatchState = "ERROR"
	MatchStateDuplicate      MatchState = "DUPLICATE"
	MatchStateManualResolved MatchState = "MANUAL_RESOLVED"
)

// Terminal reports whether the state is final and must never be changed by the
// automatic engine.
func (s MatchState) Terminal() bool {
	return s == MatchStateDuplicate || s == MatchStateManualResolved
}

// MatchMethod records which strategy produced a match decision.
type MatchMethod string

const (
	MatchMethodExactID             MatchMethod = "EXACT_ID"
	MatchMethodEmailAmount         MatchMethod = "EMAIL_AMOUNT"
	MatchMethodAmountDateProximity MatchMethod = "AMOUNT_DATE_PROXIMITY"
	MatchMethodManual              MatchMethod = "MANUAL"
	MatchMethodNone                MatchMethod = "NONE"
)

// MatchDetail is one entry of the audit trail explaining a score composition.
// The details array is replaced wholesale on every decision, never patched.
type MatchDetail struct {
	FieldName         string
	PaymentValue      string
	RegistrationValue string
	PointsAwarded     int
}

// Payment is a normalized payment observation from one of the processors or a
// legacy import. Processor identifiers are unique within a source system only.
type Payment struct {
	ID                     string
	SourceSystem           SourceSystem
	ProcessorPaymentID     string
	ProcessorTransactionID string
	Amount                 decimal.Decimal
	Currency               string
	CustomerEmail          string
	CustomerName           string
	OccurredAt             time.Time

	MatchState            MatchState
	MatchedRegistrationID string
	MatchConfidence       *int
	MatchMethod           MatchMethod
	MatchDetails          []MatchDetail

	// DuplicateSuspectOf names the payment currently holding the claim on the
	// best-scoring candidate when this payment lost the claim race.
	DuplicateSuspectOf string
	ErrorReason        string

	ResolvedBy     string
	ResolutionNote string
	ResolvedAt     *time.Time
}

// ProcessorIdentifiers returns the non-empty natural identifiers of the payment.
func (p Payment) ProcessorIdentifiers() []string {
	var ids []string
	if p.ProcessorPaymentID != "" {
		ids = append(ids, p.ProcessorPaymentID)
	}
	if p.ProcessorTransactionID != "" {
		ids = append(ids, p.ProcessorTransactionID)
	}
	return ids
}
