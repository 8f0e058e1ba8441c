package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/match"
	"github.com/lodgetix/reconcile/internal/service"
	"github.com/lodgetix/reconcile/internal/store"
)

func newTestHandlers(t *testing.T, client *store.MemoryClient) *APIHandlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewMatchService(client, match.DefaultConfig(), logger)
	rp := service.NewReprocessor(svc, client, 2, logger)
	return NewAPIHandlers(logger, svc, rp, client)
}

func seedMatchablePair(t *testing.T, client *store.MemoryClient) {
	t.Helper()
	ctx := context.Background()

	payment := domain.Payment{
		ID:                 "pay-1",
		SourceSystem:       domain.SourceStripe,
		ProcessorPaymentID: "pi_pay-1",
		Amount:             decimal.RequireFromString("2360.43"),
		Currency:           "AUD",
		CustomerEmail:      "jane@example.com",
		OccurredAt:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		MatchState:         domain.MatchStateUnmatched,
		MatchMethod:        domain.MatchMethodNone,
	}
	registration := domain.Registration{
		ID:               "reg-1",
		LinkedPaymentIDs: []string{"pi_pay-1"},
		TotalAmountPaid:  decimal.RequireFromString("2360.43"),
		ContactEmail:     "jane@example.com",
		CreatedAt:        time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := client.UpsertPayment(ctx, payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	if err := client.UpsertRegistration(ctx, registration); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
}

func TestHandleMatchPayment(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	req := httptest.NewRequest(http.MethodPost, "/payments/pay-1/match", nil)
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload matchOutcomeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.MatchState != "MATCHED" || payload.RegistrationID != "reg-1" {
		t.Fatalf("unexpected outcome: %+v", payload)
	}
	if payload.MatchConfidence == nil || *payload.MatchConfidence != 100 {
		t.Fatalf("expected confidence 100, got %v", payload.MatchConfidence)
	}
	if payload.MatchMethod != "EXACT_ID" {
		t.Fatalf("expected EXACT_ID, got %s", payload.MatchMethod)
	}
}

func TestHandleMatchPaymentNotFound(t *testing.T) {
	handlers := newTestHandlers(t, store.NewMemoryClient())

	req := httptest.NewRequest(http.MethodPost, "/payments/missing/match", nil)
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleGetPayment(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	req := httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil)
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload paymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.PaymentID != "pay-1" || payload.Amount != "2360.43" {
		t.Fatalf("unexpected payment: %+v", payload)
	}
}

func TestHandleResolvePaymentDuplicate(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	body := `{"duplicate": true, "note": "charged twice", "operator": "ops@lodgetix.com"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/pay-1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload paymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.MatchState != "DUPLICATE" || payload.ResolvedBy != "ops@lodgetix.com" {
		t.Fatalf("unexpected payment after resolution: %+v", payload)
	}
}

func TestHandleResolvePaymentRequiresNote(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	req := httptest.NewRequest(http.MethodPost, "/payments/pay-1/resolve", strings.NewReader(`{"duplicate": true}`))
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleResolvePaymentTerminalConflict(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	body := `{"duplicate": true, "note": "charged twice", "operator": "ops"}`
	first := httptest.NewRequest(http.MethodPost, "/payments/pay-1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handlers.handlePaymentSubtree(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first resolution should succeed, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/payments/pay-1/resolve", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handlers.handlePaymentSubtree(rec, second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for repeated resolution, got %d", rec.Code)
	}
}

func TestHandleReprocess(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	req := httptest.NewRequest(http.MethodPost, "/reprocess", strings.NewReader(`{"force": false}`))
	rec := httptest.NewRecorder()

	handlers.handleReprocess(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload reprocessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Processed != 1 || payload.Matched != 1 {
		t.Fatalf("unexpected report: %+v", payload)
	}
}

func TestHandleStats(t *testing.T) {
	client := store.NewMemoryClient()
	seedMatchablePair(t, client)
	handlers := newTestHandlers(t, client)

	// Match first so the stats have something to count.
	matchReq := httptest.NewRequest(http.MethodPost, "/payments/pay-1/match", nil)
	handlers.handlePaymentSubtree(httptest.NewRecorder(), matchReq)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	handlers.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Total != 1 || payload.Matched != 1 {
		t.Fatalf("unexpected stats: %+v", payload)
	}
	if payload.ByConfidence.High != 1 {
		t.Fatalf("expected 1 high-confidence match, got %+v", payload.ByConfidence)
	}
	if payload.ByMethod["EXACT_ID"] != 1 {
		t.Fatalf("expected 1 EXACT_ID match, got %+v", payload.ByMethod)
	}
}

func TestHandleUpsertPayment(t *testing.T) {
	client := store.NewMemoryClient()
	handlers := newTestHandlers(t, client)

	body := `{
		"paymentId": "pay-new",
		"sourceSystem": "stripe",
		"processorPaymentId": "pi_new",
		"amount": "120.50",
		"currency": "AUD",
		"customerEmail": "jane@example.com",
		"occurredAt": "2024-05-01T10:00:00Z"
	}`
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handlers.handlePayments(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, ok := client.Payment("pay-new")
	if !ok {
		t.Fatal("payment not persisted")
	}
	if !stored.Amount.Equal(decimal.RequireFromString("120.50")) || stored.MatchState != domain.MatchStateUnmatched {
		t.Fatalf("unexpected stored payment: %+v", stored)
	}
}

func TestHandleUpsertRegistration(t *testing.T) {
	client := store.NewMemoryClient()
	handlers := newTestHandlers(t, client)

	body := `{
		"registrationId": "reg-new",
		"confirmationNumber": "REG-000042",
		"linkedPaymentIds": ["pi_new"],
		"totalAmountPaid": "120.50",
		"contactEmail": "jane@example.com",
		"createdAt": "2024-05-01T09:00:00Z"
	}`
	req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handlers.handleRegistrations(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := client.Registration("reg-new"); !ok {
		t.Fatal("registration not persisted")
	}
}

func TestHandleMethodNotAllowed(t *testing.T) {
	handlers := newTestHandlers(t, store.NewMemoryClient())

	req := httptest.NewRequest(http.MethodDelete, "/payments/pay-1", nil)
	rec := httptest.NewRecorder()

	handlers.handlePaymentSubtree(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header GET, got %q", allow)
	}
}
