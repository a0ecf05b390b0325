// Package period maps invoice dates to dashboard bucket labels.
//
// Classification is a pure function of the date, the granularity and an
// explicit reference date (asOf); nothing in this package reads the clock.
package period

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fatture/internal/core"
)

type Granularity string

const (
	Month        Granularity = "month"
	Quarter      Granularity = "quarter"
	YTD          Granularity = "ytd"
	Last12Months Granularity = "last12Months"
	BiMonthly    Granularity = "biMonthly"
)

var (
	ErrUnknownGranularity = errors.New("unknown granularity")
	ErrInvalidDate        = errors.New("invalid date")
)

// Granularities lists the supported granularities in UI order.
func Granularities() []Granularity {
	return []Granularity{Month, BiMonthly, Quarter, YTD, Last12Months}
}

// ParseGranularity accepts the canonical names plus a few aliases
// ("year" for ytd, "bimonthly", "last12", "l12m").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly", "":
		return Month, nil
	case "quarter", "quarterly":
		return Quarter, nil
	case "ytd", "year":
		return YTD, nil
	case "last12months", "last12", "l12m":
		return Last12Months, nil
	case "bimonthly", "bi-monthly":
		return BiMonthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

func (g Granularity) Valid() bool {
	switch g {
	case Month, Quarter, YTD, Last12Months, BiMonthly:
		return true
	}
	return false
}

// Label is a human readable name for the granularity.
func (g Granularity) Label() string {
	switch g {
	case Month:
		return "Month"
	case Quarter:
		return "Quarter"
	case YTD:
		return "Year to date"
	case Last12Months:
		return "Last 12 months"
	case BiMonthly:
		return "Bi-monthly"
	}
	return string(g)
}

// Multiplier is the number of months a period of this granularity spans,
// used to scale the monthly social security payment.
func Multiplier(g Granularity) int64 {
	switch g {
	case Month:
		return 1
	case BiMonthly:
		return 2
	case Quarter:
		return 3
	case YTD, Last12Months:
		return 12
	}
	return 0
}

// Classify returns the bucket label for date under granularity g.
func Classify(date core.Date, g Granularity, asOf time.Time) (string, error) {
	if err := date.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	y, m := date.Year(), date.Month()
	switch g {
	case Month:
		return fmt.Sprintf("%d.%d", m, y), nil
	case Quarter:
		return fmt.Sprintf("Q%d.%d", (m+2)/3, y), nil
	case YTD:
		return fmt.Sprintf("YTD.%d", y), nil
	case Last12Months:
		start := firstOfMonth(asOf).AddDate(0, -12, 0)
		return fmt.Sprintf("L12M.%d.%d", int(start.Month()), start.Year()), nil
	case BiMonthly:
		odd := m
		if m%2 == 0 {
			odd = m - 1
		}
		return fmt.Sprintf("B%d.%d", odd, y), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, string(g))
}

// Window returns the half-open calendar range [start, end) of the period of
// granularity g that contains asOf.
func Window(g Granularity, asOf time.Time) (start, end time.Time, err error) {
	first := firstOfMonth(asOf)
	switch g {
	case Month:
		return first, first.AddDate(0, 1, 0), nil
	case BiMonthly:
		if first.Month()%2 == 0 {
			first = first.AddDate(0, -1, 0)
		}
		return first, first.AddDate(0, 2, 0), nil
	case Quarter:
		q := (int(first.Month()) - 1) / 3
		start = time.Date(first.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0), nil
	case YTD:
		start = time.Date(first.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, first.AddDate(0, 1, 0), nil
	case Last12Months:
		return first.AddDate(0, -12, 0), first.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownGranularity, string(g))
}

// InWindow reports whether date falls inside Window(g, asOf).
func InWindow(date core.Date, g Granularity, asOf time.Time) bool {
	start, end, err := Window(g, asOf)
	if err != nil {
		return false
	}
	return !date.Before(start) && date.Before(end)
}

// Sort orders bucket labels chronologically. Labels that do not parse keep
// their relative order after the parsed ones.
func Sort(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aok := sortKey(keys[i])
		b, bok := sortKey(keys[j])
		if aok != bok {
			return aok
		}
		return aok && a < b
	})
}

// sortKey maps a label to year*100+month of the first month it covers.
func sortKey(label string) (int, bool) {
	parts := strings.Split(label, ".")
	year, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, false
	}
	month := 1
	switch {
	case len(parts) == 2 && strings.HasPrefix(parts[0], "Q"):
		q, err := strconv.Atoi(parts[0][1:])
		if err != nil {
			return 0, false
		}
		month = (q-1)*3 + 1
	case len(parts) == 2 && strings.HasPrefix(parts[0], "B"):
		month, err = strconv.Atoi(parts[0][1:])
		if err != nil {
			return 0, false
		}
	case len(parts) == 2 && parts[0] == "YTD":
		month = 1
	case len(parts) == 3 && parts[0] == "L12M":
		month, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, false
		}
	case len(parts) == 2:
		month, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return year*100 + month, true
}

func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
