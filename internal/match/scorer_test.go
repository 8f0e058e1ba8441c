package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodgetix/reconcile/internal/domain"
)

func testPayment() domain.Payment {
	return domain.Payment{
		ID:                 "pay-1",
		SourceSystem:       domain.SourceStripe,
		ProcessorPaymentID: "pi_123",
		Amount:             decimal.RequireFromString("2360.43"),
		Currency:           "AUD",
		CustomerEmail:      "jane.doe@example.com",
		CustomerName:       "Jane Doe",
		OccurredAt:         time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func testRegistration() domain.Registration {
	return domain.Registration{
		ID:                 "reg-1",
		ConfirmationNumber: "REG-000001",
		TotalAmountPaid:    decimal.RequireFromString("2360.43"),
		ContactEmail:       "jane.doe@example.com",
		ContactName:        "Jane Doe",
		CreatedAt:          time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestScoreExactIdentifierShortCircuits(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()
	registration.LinkedPaymentIDs = []string{"pi_123"}
	// Deliberately diverging fields must not matter once the identifier hits.
	registration.ContactEmail = "someone.else@example.com"
	registration.TotalAmountPaid = decimal.RequireFromString("1.00")

	score := NewScorer(DefaultConfig()).Score(payment, registration)

	if score.Total != 100 {
		t.Fatalf("expected confidence 100, got %d", score.Total)
	}
	if score.Method != domain.MatchMethodExactID {
		t.Fatalf("expected method EXACT_ID, got %s", score.Method)
	}
	if len(score.Details) != 1 {
		t.Fatalf("expected a single detail entry, got %d", len(score.Details))
	}
	detail := score.Details[0]
	if detail.FieldName != "processorPaymentId" || detail.PaymentValue != "pi_123" || detail.PointsAwarded != 100 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestScoreEmailAmountDate(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()

	score := NewScorer(DefaultConfig()).Score(payment, registration)

	// 40 (email) + 40 (amount) + 20 (same-instant date) caps at 100.
	if score.Total != 100 {
		t.Fatalf("expected confidence 100, got %d", score.Total)
	}
	if score.Method != domain.MatchMethodEmailAmount {
		t.Fatalf("expected method EMAIL_AMOUNT, got %s", score.Method)
	}
	if len(score.Details) != 3 {
		t.Fatalf("expected 3 detail entries, got %d", len(score.Details))
	}

	wantFields := []string{"customerEmail", "amount", "occurredAt"}
	for i, want := range wantFields {
		if score.Details[i].FieldName != want {
			t.Fatalf("detail %d: expected field %s, got %s", i, want, score.Details[i].FieldName)
		}
	}
}

func TestScoreAmountDateOnly(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()
	registration.ContactEmail = "different@example.com"
	registration.CreatedAt = payment.OccurredAt.Add(12 * time.Hour)

	score := NewScorer(DefaultConfig()).Score(payment, registration)

	// 40 (amount) + 10 (half-window date decay).
	if score.Total != 50 {
		t.Fatalf("expected confidence 50, got %d", score.Total)
	}
	if score.Method != domain.MatchMethodAmountDateProximity {
		t.Fatalf("expected method AMOUNT_DATE_PROXIMITY, got %s", score.Method)
	}
}

func TestScoreNothingLinesUp(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()
	registration.ContactEmail = "different@example.com"
	registration.TotalAmountPaid = decimal.RequireFromString("99.00")
	registration.CreatedAt = payment.OccurredAt.Add(-30 * 24 * time.Hour)

	score := NewScorer(DefaultConfig()).Score(payment, registration)

	if score.Total != 0 {
		t.Fatalf("expected confidence 0, got %d", score.Total)
	}
	if score.Method != domain.MatchMethodNone {
		t.Fatalf("expected method NONE, got %s", score.Method)
	}
	if len(score.Details) != 0 {
		t.Fatalf("expected no details, got %d", len(score.Details))
	}
}

func TestScoreNameRuleDisabledByDefault(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()
	registration.ContactEmail = "different@example.com"
	registration.TotalAmountPaid = decimal.RequireFromString("99.00")
	registration.CreatedAt = payment.OccurredAt.Add(-30 * 24 * time.Hour)

	cfg := DefaultConfig()
	disabled := NewScorer(cfg).Score(payment, registration)
	if disabled.Total != 0 {
		t.Fatalf("expected 0 with name rule off, got %d", disabled.Total)
	}

	cfg.NameWeight = 10
	enabled := NewScorer(cfg).Score(payment, registration)
	if enabled.Total != 10 {
		t.Fatalf("expected 10 with name rule on, got %d", enabled.Total)
	}
	if enabled.Details[0].FieldName != "customerName" {
		t.Fatalf("expected customerName detail, got %s", enabled.Details[0].FieldName)
	}
}

func TestScoreDeterministic(t *testing.T) {
	payment := testPayment()
	registration := testRegistration()
	scorer := NewScorer(DefaultConfig())

	first := scorer.Score(payment, registration)
	for i := 0; i < 10; i++ {
		again := scorer.Score(payment, registration)
		if again.Total != first.Total || again.Method != first.Method || len(again.Details) != len(first.Details) {
			t.Fatalf("scoring is not deterministic: %+v vs %+v", first, again)
		}
	}
}
