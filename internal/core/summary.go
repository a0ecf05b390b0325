package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	// Folded marks the synthetic entry TopN builds from the tail.
	Folded bool
}

// OthersCategory is the synthetic bucket that collects categories outside the top N.
const OthersCategory = "Others"

// PeriodAmount is the amount accumulated in a single period bucket.
type PeriodAmount struct {
	Period string
	Amount Money
}
