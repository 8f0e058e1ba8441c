package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/match"
	"github.com/lodgetix/reconcile/internal/store"
)

func newTestReprocessor(client *store.MemoryClient, workers int) *Reprocessor {
	svc := NewMatchService(client, match.DefaultConfig(), testLogger())
	return NewReprocessor(svc, client, workers, testLogger())
}

func TestReprocessorMatchesUnmatchedPayments(t *testing.T) {
	client := store.NewMemoryClient()

	var payments []domain.Payment
	var registrations []domain.Registration
	for _, id := range []string{"pay-1", "pay-2", "pay-3"} {
		p := servicePayment(id)
		r := serviceRegistration("reg-" + id)
		r.LinkedPaymentIDs = []string{"pi_" + id}
		payments = append(payments, p)
		registrations = append(registrations, r)
	}
	orphan := servicePayment("pay-orphan")
	orphan.ProcessorPaymentID = "pi_orphan"
	orphan.CustomerEmail = "nobody@example.com"
	orphan.Amount = orphan.Amount.Add(orphan.Amount)
	payments = append(payments, orphan)
	mustSeed(t, client, payments, registrations)

	rp := newTestReprocessor(client, 2)
	report, err := rp.Run(context.Background(), ReprocessOptions{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Processed != 4 {
		t.Fatalf("expected 4 processed, got %d", report.Processed)
	}
	if report.Matched != 3 {
		t.Fatalf("expected 3 matched, got %d", report.Matched)
	}
	if report.Errors != 0 {
		t.Fatalf("expected 0 errors, got %d", report.Errors)
	}

	stored, _ := client.Payment("pay-orphan")
	if stored.MatchState != domain.MatchStateUnmatched {
		t.Fatalf("orphan should stay UNMATCHED, got %s", stored.MatchState)
	}
}

func TestReprocessorSecondRunReportsNoNewMatches(t *testing.T) {
	client := store.NewMemoryClient()
	p := servicePayment("pay-1")
	r := serviceRegistration("reg-1")
	r.LinkedPaymentIDs = []string{"pi_pay-1"}
	mustSeed(t, client, []domain.Payment{p}, []domain.Registration{r})

	rp := newTestReprocessor(client, 1)
	first, err := rp.Run(context.Background(), ReprocessOptions{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Matched != 1 {
		t.Fatalf("expected 1 matched on first run, got %d", first.Matched)
	}

	second, err := rp.Run(context.Background(), ReprocessOptions{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Processed != 0 || second.Matched != 0 {
		t.Fatalf("second run should find nothing to do, got %+v", second)
	}

	// Force revisits matched payments but reports no new matches when the
	// decision is unchanged.
	forced, err := rp.Run(context.Background(), ReprocessOptions{Force: true})
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if forced.Processed != 1 || forced.Matched != 0 {
		t.Fatalf("forced run should re-score without counting a new match, got %+v", forced)
	}

	stored, _ := client.Payment("pay-1")
	if stored.MatchState != domain.MatchStateMatched || stored.MatchedRegistrationID != "reg-1" {
		t.Fatalf("match lost on reprocess: %+v", stored)
	}
}

func TestReprocessorSkipsTerminalPayments(t *testing.T) {
	client := store.NewMemoryClient()
	dup := servicePayment("pay-dup")
	dup.MatchState = domain.MatchStateDuplicate
	manual := servicePayment("pay-manual")
	manual.MatchState = domain.MatchStateManualResolved
	mustSeed(t, client, []domain.Payment{dup, manual}, nil)

	rp := newTestReprocessor(client, 2)
	report, err := rp.Run(context.Background(), ReprocessOptions{Force: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("terminal payments must not be processed, got %d", report.Processed)
	}
}

func TestReprocessorIsolatesPerPaymentFailures(t *testing.T) {
	client := store.NewMemoryClient()
	good := servicePayment("pay-good")
	goodReg := serviceRegistration("reg-good")
	goodReg.LinkedPaymentIDs = []string{"pi_pay-good"}
	bad := servicePayment("pay-bad")
	bad.Amount = bad.Amount.Neg()
	mustSeed(t, client, []domain.Payment{good, bad}, []domain.Registration{goodReg})

	rp := newTestReprocessor(client, 2)
	report, err := rp.Run(context.Background(), ReprocessOptions{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 2 || report.Matched != 1 || report.Errors != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	stored, _ := client.Payment("pay-bad")
	if stored.MatchState != domain.MatchStateError {
		t.Fatalf("expected ERROR for invalid payment, got %s", stored.MatchState)
	}
}

func TestReprocessorHonoursLimit(t *testing.T) {
	client := store.NewMemoryClient()
	var payments []domain.Payment
	for _, id := range []string{"pay-1", "pay-2", "pay-3"} {
		payments = append(payments, servicePayment(id))
	}
	mustSeed(t, client, payments, nil)

	rp := newTestReprocessor(client, 1)
	report, err := rp.Run(context.Background(), ReprocessOptions{Limit: 2})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 2 {
		t.Fatalf("expected limit of 2, got %d", report.Processed)
	}
}

func TestReprocessorContextCancellation(t *testing.T) {
	client := store.NewMemoryClient()
	mustSeed(t, client, []domain.Payment{servicePayment("pay-1")}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rp := newTestReprocessor(client, 1)
	_, err := rp.Run(ctx, ReprocessOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
