package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Registration is a normalized event-registration observation. The linked
// payment identifiers were recorded at registration time and may be stale.
type Registration struct {
	ID                 string
	ConfirmationNumber string
	LinkedPaymentIDs   []string
	TotalAmountPaid    decimal.Decimal
	ContactEmail       string
	ContactName        string
	CreatedAt          time.Time

	// ClaimedByPaymentID is set exactly once a payment claims this
	// registration; a second payment must never overwrite it.
	ClaimedByPaymentID string
}

// ClaimedByOther reports whether the registration is already claimed by a
// payment other than the given one.
func (r Registration) ClaimedByOther(paymentID string) bool {
	return r.ClaimedByPaymentID != "" && r.ClaimedByPaymentID != paymentID
}
