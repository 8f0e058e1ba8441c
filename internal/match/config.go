package match

import "time"

// Confidence buckets used for reporting. Low-confidence results are reported
// but never auto-accepted.
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// Config carries the tunable knobs of the matching engine. Thresholds and
// weights are configuration, not law; the historical scripts disagreed on the
// exact cutoffs.
type Config struct {
	AcceptThreshold      int
	HighConfidence       int
	AmountToleranceCents int64
	DateWindow           time.Duration
	CandidateLimit       int

	ExactIDWeight int
	EmailWeight   int
	AmountWeight  int
	DateWeight    int

	// NameWeight enables the optional customer-name similarity rule when
	// positive. Off by default: name data in legacy imports is too noisy for
	// first-pass matching.
	NameWeight int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold:      50,
		HighConfidence:       75,
		AmountToleranceCents: 0,
		DateWindow:           24 * time.Hour,
		CandidateLimit:       25,
		ExactIDWeight:        100,
		EmailWeight:          40,
		AmountWeight:         40,
		DateWeight:           20,
		NameWeight:           0,
	}
}

// ConfidenceBucket classifies a confidence score against the configured bands.
func (c Config) ConfidenceBucket(confidence int) Bucket {
	switch {
	case confidence >= c.HighConfidence:
		return BucketHigh
	case confidence >= c.AcceptThreshold:
		return BucketMedium
	default:
		return BucketLow
	}
}
