package match

import (
	"sort"

	"github.com/lodgetix/reconcile/internal/domain"
)

// Resolution is the decision for one payment against its candidate set. When
// Registration is nil the payment stays unmatched; Details then hold the best
// near-miss for diagnostics. DuplicateSuspectOf is set when the winning
// candidate was already claimed by another payment.
type Resolution struct {
	Registration       *domain.Registration
	Confidence         int
	Method             domain.MatchMethod
	Details            []domain.MatchDetail
	DuplicateSuspectOf string
}

// Accepted reports whether the resolution assigns a registration.
func (r Resolution) Accepted() bool {
	return r.Registration != nil
}

type scoredCandidate struct {
	registration domain.Registration
	score        Score
}

// Resolve scores every candidate and picks the winner. Ties break on earliest
// registration createdAt, then lexicographic id, so repeated runs over
// unchanged data produce identical decisions. A candidate below the acceptance
// threshold, or one already claimed by a different payment, leaves the payment
// unmatched; the latter is surfaced for duplicate review rather than
// reassigned.
func Resolve(p domain.Payment, candidates []domain.Registration, cfg Config) Resolution {
	if len(candidates) == 0 {
		return Resolution{Method: domain.MatchMethodNone}
	}

	scorer := NewScorer(cfg)
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, scoredCandidate{
			registration: candidate,
			score:        scorer.Score(p, candidate),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score.Total != scored[j].score.Total {
			return scored[i].score.Total > scored[j].score.Total
		}
		if !scored[i].registration.CreatedAt.Equal(scored[j].registration.CreatedAt) {
			return scored[i].registration.CreatedAt.Before(scored[j].registration.CreatedAt)
		}
		return scored[i].registration.ID < scored[j].registration.ID
	})

	best := scored[0]
	if best.score.Total < cfg.AcceptThreshold {
		return Resolution{
			Method:  domain.MatchMethodNone,
			Details: best.score.Details,
		}
	}

	if best.registration.ClaimedByOther(p.ID) {
		return Resolution{
			Method:             domain.MatchMethodNone,
			Details:            best.score.Details,
			DuplicateSuspectOf: best.registration.ClaimedByPaymentID,
		}
	}

	winner := best.registration
	return Resolution{
		Registration: &winner,
		Confidence:   best.score.Total,
		Method:       best.score.Method,
		Details:      best.score.Details,
	}
}
