package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/service"
)

// APIHandlers exposes HTTP handlers for the reconciliation API.
type APIHandlers struct {
	logger      *slog.Logger
	service     *service.MatchService
	reprocessor *service.Reprocessor
	writer      RecordWriter
}

// RecordWriter is the subset of the store used by the ingestion endpoints.
type RecordWriter interface {
	UpsertPayment(ctx context.Context, p domain.Payment) error
	UpsertRegistration(ctx context.Context, r domain.Registration) error
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc *service.MatchService, rp *service.Reprocessor, writer RecordWriter) *APIHandlers {
	return &APIHandlers{
		logger:      logger,
		service:     svc,
		reprocessor: rp,
		writer:      writer,
	}
}

func (h *APIHandlers) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.upsertPayment(w, r)
}

// handlePaymentSubtree dispatches /payments/{id} and its match/resolve verbs.
func (h *APIHandlers) handlePaymentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/payments/"), "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "payment ID is required")
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.getPayment(w, r, id)
	case "match":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.matchPayment(w, r, id)
	case "resolve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.resolvePayment(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown payment action")
	}
}

func (h *APIHandlers) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.upsertRegistration(w, r)
}

func (h *APIHandlers) handleReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload reprocessRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := h.reprocessor.Run(r.Context(), service.ReprocessOptions{
		Force: payload.Force,
		Limit: payload.Limit,
	})
	if err != nil {
		h.logger.Error("reprocess run failed", "error", err)
		writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, reprocessResponse{
		Processed: report.Processed,
		Matched:   report.Matched,
		Errors:    report.Errors,
	})
}

func (h *APIHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := h.service.MatchStatistics(r.Context())
	if err != nil {
		h.logger.Error("failed to compute match statistics", "error", err)
		writeServiceError(w, err)
		return
	}

	resp := statsResponse{
		Total:            stats.Total,
		Matched:          stats.Matched,
		Unmatched:        stats.Unmatched,
		Errors:           stats.Errors,
		Duplicates:       stats.Duplicates,
		ManuallyResolved: stats.ManuallyResolved,
		ByConfidence: confidenceResponse{
			High:   stats.ByConfidence.High,
			Medium: stats.ByConfidence.Medium,
			Low:    stats.ByConfidence.Low,
		},
		ByMethod: make(map[string]int64, len(stats.ByMethod)),
	}
	for method, count := range stats.ByMethod {
		resp.ByMethod[string(method)] = count
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) upsertPayment(w http.ResponseWriter, r *http.Request) {
	var payload paymentRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.PaymentID == "" {
		writeError(w, http.StatusBadRequest, "paymentId is required")
		return
	}

	payment, err := payload.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.writer.UpsertPayment(r.Context(), payment); err != nil {
		h.logger.Error("failed to upsert payment", "error", err, "paymentId", payment.ID)
		writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: payment.ID})
}

func (h *APIHandlers) upsertRegistration(w http.ResponseWriter, r *http.Request) {
	var payload registrationRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.RegistrationID == "" {
		writeError(w, http.StatusBadRequest, "registrationId is required")
		return
	}

	registration, err := payload.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.writer.UpsertRegistration(r.Context(), registration); err != nil {
		h.logger.Error("failed to upsert registration", "error", err, "registrationId", registration.ID)
		writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: registration.ID})
}

func (h *APIHandlers) getPayment(w http.ResponseWriter, r *http.Request, id string) {
	payment, err := h.service.Payment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, paymentFromDomain(payment))
}

func (h *APIHandlers) matchPayment(w http.ResponseWriter, r *http.Request, id string) {
	outcome, err := h.service.FindMatchByID(r.Context(), id)
	if err != nil {
		if !domain.IsValidation(err) {
			h.logger.Error("match decision failed", "error", err, "paymentId", id)
		}
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcomeResponse(outcome))
}

func (h *APIHandlers) resolvePayment(w http.ResponseWriter, r *http.Request, id string) {
	var payload resolveRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.service.ResolveManually(r.Context(), id, service.ManualResolution{
		RegistrationID: payload.RegistrationID,
		MarkDuplicate:  payload.Duplicate,
	}, payload.Note, payload.Operator)
	if err != nil {
		if !domain.IsValidation(err) {
			h.logger.Error("manual resolution failed", "error", err, "paymentId", id)
		}
		writeServiceError(w, err)
		return
	}

	payment, err := h.service.Payment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, paymentFromDomain(payment))
}

// --- Request & Response DTOs ---

type paymentRequest struct {
	PaymentID              string          `json:"paymentId"`
	SourceSystem           string          `json:"sourceSystem"`
	ProcessorPaymentID     string          `json:"processorPaymentId"`
	ProcessorTransactionID string          `json:"processorTransactionId"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	CustomerEmail          string          `json:"customerEmail"`
	CustomerName           string          `json:"customerName"`
	OccurredAt             string          `json:"occurredAt"`
}

type registrationRequest struct {
	RegistrationID     string          `json:"registrationId"`
	ConfirmationNumber string          `json:"confirmationNumber"`
	LinkedPaymentIDs   []string        `json:"linkedPaymentIds"`
	TotalAmountPaid    decimal.Decimal `json:"totalAmountPaid"`
	ContactEmail       string          `json:"contactEmail"`
	ContactName        string          `json:"contactName"`
	CreatedAt          string          `json:"createdAt"`
}

type resolveRequest struct {
	RegistrationID string `json:"registrationId"`
	Duplicate      bool   `json:"duplicate"`
	Note           string `json:"note"`
	Operator       string `json:"operator"`
}

type reprocessRequest struct {
	Force bool `json:"force"`
	Limit int  `json:"limit"`
}

type reprocessResponse struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Errors    int `json:"errors"`
}

type statsResponse struct {
	Total            int64              `json:"total"`
	Matched          int64              `json:"matched"`
	Unmatched        int64              `json:"unmatched"`
	Errors           int64              `json:"errors"`
	Duplicates       int64              `json:"duplicates"`
	ManuallyResolved int64              `json:"manuallyResolved"`
	ByConfidence     confidenceResponse `json:"byConfidence"`
	ByMethod         map[string]int64   `json:"byMethod"`
}

type confidenceResponse struct {
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

type matchDetailResponse struct {
	FieldName         string `json:"fieldName"`
	PaymentValue      string `json:"paymentValue"`
	RegistrationValue string `json:"registrationValue"`
	PointsAwarded     int    `json:"pointsAwarded"`
}

type matchOutcomeResponse struct {
	PaymentID          string                `json:"paymentId"`
	MatchState         string                `json:"matchState"`
	MatchMethod        string                `json:"matchMethod"`
	MatchConfidence    *int                  `json:"matchConfidence"`
	RegistrationID     string                `json:"registrationId,omitempty"`
	Details            []matchDetailResponse `json:"details"`
	DuplicateSuspectOf string                `json:"duplicateSuspectOf,omitempty"`
}

type paymentResponse struct {
	PaymentID              string                `json:"paymentId"`
	SourceSystem           string                `json:"sourceSystem"`
	ProcessorPaymentID     string                `json:"processorPaymentId"`
	ProcessorTransactionID string                `json:"processorTransactionId"`
	Amount                 string                `json:"amount"`
	Currency               string                `json:"currency"`
	CustomerEmail          string                `json:"customerEmail"`
	CustomerName           string                `json:"customerName"`
	OccurredAt             string                `json:"occurredAt"`
	MatchState             string                `json:"matchState"`
	MatchedRegistrationID  string                `json:"matchedRegistrationId,omitempty"`
	MatchConfidence        *int                  `json:"matchConfidence"`
	MatchMethod            string                `json:"matchMethod"`
	MatchDetails           []matchDetailResponse `json:"matchDetails"`
	DuplicateSuspectOf     string                `json:"duplicateSuspectOf,omitempty"`
	ErrorReason            string                `json:"errorReason,omitempty"`
	ResolvedBy             string                `json:"resolvedBy,omitempty"`
	ResolutionNote         string                `json:"resolutionNote,omitempty"`
	ResolvedAt             string                `json:"resolvedAt,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// --- Helpers ---

func (req paymentRequest) toDomain() (domain.Payment, error) {
	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		return domain.Payment{}, errors.New("invalid occurredAt")
	}
	return domain.Payment{
		ID:                     req.PaymentID,
		SourceSystem:           domain.SourceSystem(req.SourceSystem),
		ProcessorPaymentID:     req.ProcessorPaymentID,
		ProcessorTransactionID: req.ProcessorTransactionID,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		CustomerEmail:          req.CustomerEmail,
		CustomerName:           req.CustomerName,
		OccurredAt:             occurredAt,
		MatchState:             domain.MatchStateUnmatched,
		MatchMethod:            domain.MatchMethodNone,
	}, nil
}

func (req registrationRequest) toDomain() (domain.Registration, error) {
	createdAt, err := time.Parse(time.RFC3339, req.CreatedAt)
	if err != nil {
		return domain.Registration{}, errors.New("invalid createdAt")
	}
	return domain.Registration{
		ID:                 req.RegistrationID,
		ConfirmationNumber: req.ConfirmationNumber,
		LinkedPaymentIDs:   req.LinkedPaymentIDs,
		TotalAmountPaid:    req.TotalAmountPaid,
		ContactEmail:       req.ContactEmail,
		ContactName:        req.ContactName,
		CreatedAt:          createdAt,
	}, nil
}

func outcomeResponse(o service.MatchOutcome) matchOutcomeResponse {
	return matchOutcomeResponse{
		PaymentID:          o.PaymentID,
		MatchState:         string(o.State),
		MatchMethod:        string(o.Method),
		MatchConfidence:    o.Confidence,
		RegistrationID:     o.RegistrationID,
		Details:            detailsResponse(o.Details),
		DuplicateSuspectOf: o.DuplicateSuspectOf,
	}
}

func paymentFromDomain(p domain.Payment) paymentResponse {
	return paymentResponse{
		PaymentID:              p.ID,
		SourceSystem:           string(p.SourceSystem),
		ProcessorPaymentID:     p.ProcessorPaymentID,
		ProcessorTransactionID: p.ProcessorTransactionID,
		Amount:                 p.Amount.String(),
		Currency:               p.Currency,
		CustomerEmail:          p.CustomerEmail,
		CustomerName:           p.CustomerName,
		OccurredAt:             formatTime(p.OccurredAt),
		MatchState:             string(p.MatchState),
		MatchedRegistrationID:  p.MatchedRegistrationID,
		MatchConfidence:        p.MatchConfidence,
		MatchMethod:            string(p.MatchMethod),
		MatchDetails:           detailsResponse(p.MatchDetails),
		DuplicateSuspectOf:     p.DuplicateSuspectOf,
		ErrorReason:            p.ErrorReason,
		ResolvedBy:             p.ResolvedBy,
		ResolutionNote:         p.ResolutionNote,
		ResolvedAt:             formatTimePtr(p.ResolvedAt),
	}
}

func detailsResponse(details []domain.MatchDetail) []matchDetailResponse {
	out := make([]matchDetailResponse, 0, len(details))
	for _, d := range details {
		out = append(out, matchDetailResponse{
			FieldName:         d.FieldName,
			PaymentValue:      d.PaymentValue,
			RegistrationValue: d.RegistrationValue,
			PointsAwarded:     d.PointsAwarded,
		})
	}
	return out
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment or registration not found")
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrClaimConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStorageTimeout):
		writeError(w, http.StatusGatewayTimeout, "storage timeout")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
