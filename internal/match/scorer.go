package match

import (
	"time"

	"github.com/lodgetix/reconcile/internal/domain"
)

// Field names used in the audit trail.
const (
	fieldProcessorPaymentID = "processorPaymentId"
	fieldCustomerEmail      = "customerEmail"
	fieldAmount             = "amount"
	fieldOccurredAt         = "occurredAt"
	fieldCustomerName       = "customerName"
)

// Score is the outcome of evaluating one payment/registration pair.
type Score struct {
	Total   int
	Method  domain.MatchMethod
	Details []domain.MatchDetail
}

// Scorer applies the weighted rule table to payment/registration pairs. Rules
// are evaluated in a fixed order so the audit trail is reproducible for
// identical inputs.
type Scorer struct {
	cfg Config
}

// NewScorer returns a Scorer for the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score evaluates the rule table. An exact processor-identifier hit
// short-circuits at full confidence; the remaining rules accumulate and the
// total is capped at 100. Every fired rule contributes one detail entry so the
// trail always explains the full score composition.
func (s *Scorer) Score(p domain.Payment, r domain.Registration) Score {
	if points, matchedID := compareExactIdentifier(p.ProcessorIdentifiers(), r.LinkedPaymentIDs, s.cfg.ExactIDWeight); points > 0 {
		return Score{
			Total:  capConfidence(points),
			Method: domain.MatchMethodExactID,
			Details: []domain.MatchDetail{{
				FieldName:         fieldProcessorPaymentID,
				PaymentValue:      matchedID,
				RegistrationValue: matchedID,
				PointsAwarded:     points,
			}},
		}
	}

	var (
		details           []domain.MatchDetail
		total             int
		emailFired        bool
		amountOrDateFired bool
	)

	if points := compareEmail(p.CustomerEmail, r.ContactEmail, s.cfg.EmailWeight); points > 0 {
		emailFired = true
		total += points
		details = append(details, domain.MatchDetail{
			FieldName:         fieldCustomerEmail,
			PaymentValue:      p.CustomerEmail,
			RegistrationValue: r.ContactEmail,
			PointsAwarded:     points,
		})
	}

	if points := compareAmount(p.Amount, r.TotalAmountPaid, s.cfg.AmountToleranceCents, s.cfg.AmountWeight); points > 0 {
		amountOrDateFired = true
		total += points
		details = append(details, domain.MatchDetail{
			FieldName:         fieldAmount,
			PaymentValue:      p.Amount.String(),
			RegistrationValue: r.TotalAmountPaid.String(),
			PointsAwarded:     points,
		})
	}

	if points := compareDateProximity(p.OccurredAt, r.CreatedAt, s.cfg.DateWindow, s.cfg.DateWeight); points > 0 {
		amountOrDateFired = true
		total += points
		details = append(details, domain.MatchDetail{
			FieldName:         fieldOccurredAt,
			PaymentValue:      formatTime(p.OccurredAt),
			RegistrationValue: formatTime(r.CreatedAt),
			PointsAwarded:     points,
		})
	}

	if s.cfg.NameWeight > 0 {
		if points := compareName(p.CustomerName, r.ContactName, s.cfg.NameWeight); points > 0 {
			total += points
			details = append(details, domain.MatchDetail{
				FieldName:         fieldCustomerName,
				PaymentValue:      p.CustomerName,
				RegistrationValue: r.ContactName,
				PointsAwarded:     points,
			})
		}
	}

	method := domain.MatchMethodNone
	switch {
	case emailFired:
		method = domain.MatchMethodEmailAmount
	case amountOrDateFired:
		method = domain.MatchMethodAmountDateProximity
	}

	return Score{
		Total:   capConfidence(total),
		Method:  method,
		Details: details,
	}
}

func capConfidence(score int) int {
	if score > 100 {
		return 100
	}
	return score
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
