package domain

// ConfidenceBuckets counts matched payments by confidence band.
type ConfidenceBuckets struct {
	High   int64
	Medium int64
	Low    int64
}

// MatchStatistics is a point-in-time snapshot of reconciliation state,
// computed purely from persisted records.
type MatchStatistics struct {
	Total            int64
	Matched          int64
	Unmatched        int64
	Errors           int64
	Duplicates       int64
	ManuallyResolved int64
	ByConfidence     ConfidenceBuckets
	ByMethod         map[MatchMethod]int64
}
