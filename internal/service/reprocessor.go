package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lodgetix/reconcile/internal/domain"
	"github.com/lodgetix/reconcile/internal/store"
)

// ReprocessOptions tunes one batch run. Force re-scores already-matched
// payments; terminal payments are never touched regardless.
type ReprocessOptions struct {
	Force bool
	Limit int
}

// ReprocessReport summarises one batch run. Matched counts only payments that
// were not matched before the run, so a repeat run over unchanged data reports
// zero.
type ReprocessReport struct {
	Processed int
	Matched   int
	Errors    int
}

// Reprocessor re-drives the matching pipeline over unresolved payments using a
// bounded worker pool. Safe to invoke repeatedly and concurrently with itself:
// decisions are serialized per payment and the store's claim guard resolves
// races. One payment's failure never aborts the batch.
type Reprocessor struct {
	service *MatchService
	store   Store
	workers int
	logger  *slog.Logger
}

// NewReprocessor creates a Reprocessor with the provided concurrency.
func NewReprocessor(svc *MatchService, st Store, workers int, logger *slog.Logger) *Reprocessor {
	if workers <= 0 {
		workers = 4
	}
	return &Reprocessor{
		service: svc,
		store:   st,
		workers: workers,
		logger:  logger,
	}
}

// Run executes one batch pass. Cancellation stops dispatching new payments;
// already-written decisions remain consistent.
func (r *Reprocessor) Run(ctx context.Context, opts ReprocessOptions) (ReprocessReport, error) {
	runID := uuid.NewString()

	ids, err := r.store.ReprocessablePaymentIDs(ctx, store.ReprocessQuery{
		Limit:          opts.Limit,
		IncludeMatched: opts.Force,
	})
	if err != nil {
		return ReprocessReport{}, err
	}

	r.logger.Info("reprocessing started", "runId", runID, "payments", len(ids), "workers", r.workers, "force", opts.Force)

	var (
		processed atomic.Int64
		matched   atomic.Int64
		failed    atomic.Int64
	)

	idCh := make(chan string)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for id := range idCh {
			payment, err := r.store.PaymentByID(ctx, id)
			if err != nil {
				failed.Add(1)
				processed.Add(1)
				r.logger.Error("failed to load payment", "runId", runID, "paymentId", id, "error", err)
				continue
			}

			wasMatched := payment.MatchState == domain.MatchStateMatched
			outcome, err := r.service.FindMatch(ctx, payment)
			processed.Add(1)
			if err != nil {
				failed.Add(1)
				r.logger.Error("reprocess decision failed", "runId", runID, "paymentId", id, "error", err)
				continue
			}
			if outcome.State == domain.MatchStateMatched && !wasMatched {
				matched.Add(1)
			}
		}
	}

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for _, id := range ids {
		select {
		case idCh <- id:
		case <-ctx.Done():
			break Loop
		}
	}
	close(idCh)
	wg.Wait()

	report := ReprocessReport{
		Processed: int(processed.Load()),
		Matched:   int(matched.Load()),
		Errors:    int(failed.Load()),
	}
	r.logger.Info("reprocessing finished",
		"runId", runID,
		"processed", report.Processed,
		"matched", report.Matched,
		"errors", report.Errors,
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
