package aggregate

import "fatture/internal/core"

// IncomeMap accumulates amounts by category and period bucket. It remembers
// the order in which categories and buckets were first seen so that ranking
// ties and chart axes are stable across runs.
type IncomeMap struct {
	data       map[string]map[string]core.Money
	categories []string
	buckets    []string
	seenBucket map[string]struct{}
}

// NewIncomeMap returns an empty map ready for Add.
func NewIncomeMap() *IncomeMap {
	return &IncomeMap{
		data:       make(map[string]map[string]core.Money),
		seenBucket: make(map[string]struct{}),
	}
}

// Add accumulates amount into category/bucket, creating both at zero if missing.
func (m *IncomeMap) Add(category, bucket string, amount core.Money) {
	byBucket, ok := m.data[category]
	if !ok {
		byBucket = make(map[string]core.Money)
		m.data[category] = byBucket
		m.categories = append(m.categories, category)
	}
	if _, ok := m.seenBucket[bucket]; !ok {
		m.seenBucket[bucket] = struct{}{}
		m.buckets = append(m.buckets, bucket)
	}
	byBucket[bucket] = byBucket[bucket].Add(amount)
}

// Get returns the amount for category/bucket and whether it exists.
func (m *IncomeMap) Get(category, bucket string) (core.Money, bool) {
	byBucket, ok := m.data[category]
	if !ok {
		return core.Money{}, false
	}
	v, ok := byBucket[bucket]
	return v, ok
}

// Categories returns category names in first-insertion order.
func (m *IncomeMap) Categories() []string {
	return append([]string(nil), m.categories...)
}

// Buckets returns bucket labels in first-insertion order.
func (m *IncomeMap) Buckets() []string {
	return append([]string(nil), m.buckets...)
}

// Series returns the per-bucket amounts of one category in first-insertion bucket order.
func (m *IncomeMap) Series(category string) []core.PeriodAmount {
	byBucket := m.data[category]
	out := make([]core.PeriodAmount, 0, len(byBucket))
	for _, b := range m.buckets {
		if v, ok := byBucket[b]; ok {
			out = append(out, core.PeriodAmount{Period: b, Amount: v})
		}
	}
	return out
}

// Total sums a category across all buckets.
func (m *IncomeMap) Total(category string) core.Money {
	var sum core.Money
	for _, v := range m.data[category] {
		sum = sum.Add(v)
	}
	return sum
}

// GrandTotal sums every category and bucket.
func (m *IncomeMap) GrandTotal() core.Money {
	var sum core.Money
	for _, c := range m.categories {
		sum = sum.Add(m.Total(c))
	}
	return sum
}

// Len is the number of categories.
func (m *IncomeMap) Len() int {
	return len(m.categories)
}

// Map returns a copy as plain nested maps, convenient for JSON encoding.
func (m *IncomeMap) Map() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(m.data))
	for c, byBucket := range m.data {
		inner := make(map[string]int64, len(byBucket))
		for b, v := range byBucket {
			inner[b] = v.Cents
		}
		out[c] = inner
	}
	return out
}
