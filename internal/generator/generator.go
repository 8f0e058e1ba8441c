package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lodgetix/reconcile/internal/domain"
)

// Dataset contains the generated registrations and payments.
type Dataset struct {
	Registrations []domain.Registration `json:"registrations"`
	Payments      []domain.Payment      `json:"payments"`
}

// Generator produces synthetic registration and payment data aligned with the
// reconciliation engine schema.
type Generator struct {
	cfg           Config
	rand          *rand.Rand
	nameFragments nameFragments
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	if cfg.NumRegistrations <= 0 {
		cfg.NumRegistrations = DefaultConfig().NumRegistrations
	}
	if cfg.ExactIDShare <= 0 {
		cfg.ExactIDShare = DefaultConfig().ExactIDShare
	}
	if cfg.EmailAmountShare <= 0 {
		cfg.EmailAmountShare = DefaultConfig().EmailAmountShare
	}
	if cfg.AmountDateShare <= 0 {
		cfg.AmountDateShare = DefaultConfig().AmountDateShare
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		nameFragments: defaultNameFragments(),
	}
}

// Generate synthesises registrations and payments. It respects context
// cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	registrations := make([]domain.Registration, 0, g.cfg.NumRegistrations)
	payments := make([]domain.Payment, 0, g.cfg.NumRegistrations)
	now := time.Now().UTC()

	for i := 0; i < g.cfg.NumRegistrations; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		name := g.randomFullName()
		email := g.randomEmail(name)
		amount := g.randomAmount()
		createdAt := now.Add(-time.Duration(g.rand.Intn(90*24)) * time.Hour)

		registration := domain.Registration{
			ID:                 uuid.NewString(),
			ConfirmationNumber: fmt.Sprintf("REG-%06d", i+1),
			TotalAmountPaid:    amount,
			ContactEmail:       email,
			ContactName:        name,
			CreatedAt:          createdAt,
		}

		payment := domain.Payment{
			ID:            uuid.NewString(),
			SourceSystem:  g.randomSourceSystem(),
			Amount:        amount,
			Currency:      "AUD",
			CustomerEmail: email,
			CustomerName:  name,
			OccurredAt:    createdAt.Add(time.Duration(g.rand.Intn(120)-60) * time.Minute),
			MatchState:    domain.MatchStateUnmatched,
			MatchMethod:   domain.MatchMethodNone,
		}
		g.assignProcessorIDs(&payment)

		// Degrade the payment according to its assigned match characteristic.
		roll := g.rand.Float64()
		switch {
		case roll < g.cfg.ExactIDShare:
			registration.LinkedPaymentIDs = []string{payment.ProcessorPaymentID}
		case roll < g.cfg.ExactIDShare+g.cfg.EmailAmountShare:
			// Email and amount line up but no processor identifier was recorded
			// on the registration.
		case roll < g.cfg.ExactIDShare+g.cfg.EmailAmountShare+g.cfg.AmountDateShare:
			// Only amount and timing survive; the payment came in under a
			// different email.
			payment.CustomerEmail = g.randomEmail(name)
		default:
			// Orphan payment: perturb the amount so nothing lines up.
			payment.CustomerEmail = g.randomEmail(g.randomFullName())
			payment.Amount = amount.Add(decimal.NewFromInt(int64(g.rand.Intn(500) + 1)))
		}

		registrations = append(registrations, registration)
		payments = append(payments, payment)
	}

	return Dataset{Registrations: registrations, Payments: payments}, nil
}

func (g *Generator) assignProcessorIDs(p *domain.Payment) {
	switch p.SourceSystem {
	case domain.SourceStripe:
		p.ProcessorPaymentID = fmt.Sprintf("pi_%s", randomHex(g.rand, 24))
	case domain.SourceSquare:
		p.ProcessorTransactionID = strings.ToUpper(randomHex(g.rand, 22))
	default:
		p.ProcessorPaymentID = fmt.Sprintf("legacy_%06d", g.rand.Intn(999999))
	}
}

func (g *Generator) randomAmount() decimal.Decimal {
	cents := int64(g.rand.Intn(495000) + 5000)
	return decimal.New(cents, -2)
}

func (g *Generator) randomSourceSystem() domain.SourceSystem {
	switch g.rand.Intn(10) {
	case 0:
		return domain.SourceLegacyImport
	case 1, 2, 3:
		return domain.SourceSquare
	default:
		return domain.SourceStripe
	}
}

func (g *Generator) randomFullName() string {
	return fmt.Sprintf("%s %s", g.nameFragments.first[g.rand.Intn(len(g.nameFragments.first))],
		g.nameFragments.last[g.rand.Intn(len(g.nameFragments.last))])
}

func (g *Generator) randomEmail(fullName string) string {
	domainName := g.nameFragments.domains[g.rand.Intn(len(g.nameFragments.domains))]
	local := strings.ToLower(strings.ReplaceAll(fullName, " ", "."))
	return fmt.Sprintf("%s%d@%s", local, g.rand.Intn(100), domainName)
}

func randomHex(r *rand.Rand, n int) string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(hexDigits[r.Intn(len(hexDigits))])
	}
	return b.String()
}

type nameFragments struct {
	first   []string
	last    []string
	domains []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:   []string{"Jane", "John", "Alex", "Priya", "Liu", "Maria", "Omar", "Sofia", "Noah", "Emma", "Lucas", "Mia", "Ava", "Ethan", "Zara"},
		last:    []string{"Doe", "Smith", "Chen", "Patel", "Garcia", "Khan", "Kim", "Ivanov", "Nguyen", "Silva", "Brown", "Lee"},
		domains: []string{"example.com", "mail.com", "lodges.org.au", "payments.net", "securepay.org"},
	}
}
