package match

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// compareExactIdentifier awards weight when any payment processor identifier
// appears among the registration's linked identifiers. Empty identifiers never
// match.
func compareExactIdentifier(paymentIDs, linkedIDs []string, weight int) (int, string) {
	for _, pid := range paymentIDs {
		if pid == "" {
			continue
		}
		for _, lid := range linkedIDs {
			if pid == lid {
				return weight, pid
			}
		}
	}
	return 0, ""
}

// compareAmount awards weight when the two amounts differ by at most
// toleranceCents. Tolerance defaults to zero for first-pass matching; a small
// slack absorbs rounding artifacts on reprocessing runs.
func compareAmount(a, b decimal.Decimal, toleranceCents int64, weight int) int {
	if a.IsZero() && b.IsZero() {
		return 0
	}
	tolerance := decimal.New(toleranceCents, -2)
	if a.Sub(b).Abs().LessThanOrEqual(tolerance) {
		return weight
	}
	return 0
}

// compareEmail awards weight on case-insensitive equality after trimming.
func compareEmail(a, b string, weight int) int {
	a = normalizeEmail(a)
	b = normalizeEmail(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return weight
	}
	return 0
}

// compareDateProximity awards up to maxWeight, decaying linearly to zero at
// the window edge. Zero timestamps contribute nothing.
func compareDateProximity(t1, t2 time.Time, window time.Duration, maxWeight int) int {
	if t1.IsZero() || t2.IsZero() || window <= 0 {
		return 0
	}
	diff := t1.Sub(t2)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return 0
	}
	points := int(math.Round(float64(maxWeight) * (1 - float64(diff)/float64(window))))
	if points < 0 {
		return 0
	}
	return points
}

// nameSimilarityThreshold guards against awarding points for coincidental
// partial overlaps between unrelated names.
const nameSimilarityThreshold = 0.8

// compareName awards a share of weight proportional to the Levenshtein
// similarity of the sanitized names, but only above the similarity threshold.
func compareName(a, b string, weight int) int {
	ratio := nameSimilarity(a, b)
	if ratio < nameSimilarityThreshold {
		return 0
	}
	return int(math.Round(ratio * float64(weight)))
}

// nameSimilarity returns the Levenshtein ratio of the sanitized, lowercased
// names in [0, 1]. Empty input yields 0.
func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(sanitizeString(a))
	b = strings.ToLower(sanitizeString(b))
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// normalizeEmail lowercases and trims the provided email.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}
