package generator

// Config drives the synthetic data generator. The share fields control which
// fraction of generated payments carry each match characteristic; they are
// applied in order and the remainder becomes orphan payments with no
// corresponding registration.
type Config struct {
	NumRegistrations int
	ExactIDShare     float64
	EmailAmountShare float64
	AmountDateShare  float64
	Seed             int64
}

// DefaultConfig returns baseline settings producing a dataset with a realistic
// mix of easy matches, fuzzy matches, and orphans.
func DefaultConfig() Config {
	return Config{
		NumRegistrations: 5000,
		ExactIDShare:     0.55,
		EmailAmountShare: 0.25,
		AmountDateShare:  0.10,
		Seed:             42,
	}
}
