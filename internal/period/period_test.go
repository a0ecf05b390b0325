package period

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"fatture/internal/core"
)

var asOf = time.Date(2024, 11, 20, 15, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	cases := []struct {
		date core.Date
		g    Granularity
		want string
	}{
		{core.NewDate(2024, 3, 15), Month, "3.2024"},
		{core.NewDate(2024, 12, 1), Month, "12.2024"},
		{core.NewDate(2024, 1, 31), Quarter, "Q1.2024"},
		{core.NewDate(2024, 3, 31), Quarter, "Q1.2024"},
		{core.NewDate(2024, 4, 1), Quarter, "Q2.2024"},
		{core.NewDate(2023, 12, 31), Quarter, "Q4.2023"},
		{core.NewDate(2023, 6, 1), YTD, "YTD.2023"},
		{core.NewDate(2024, 3, 15), BiMonthly, "B3.2024"},
		{core.NewDate(2024, 4, 30), BiMonthly, "B3.2024"},
		{core.NewDate(2024, 12, 2), BiMonthly, "B11.2024"},
		{core.NewDate(2024, 3, 15), Last12Months, "L12M.11.2023"},
		{core.NewDate(2019, 1, 1), Last12Months, "L12M.11.2023"},
	}
	for _, tc := range cases {
		got, err := Classify(tc.date, tc.g, asOf)
		if err != nil {
			t.Fatalf("Classify(%s, %s) error: %v", tc.date, tc.g, err)
		}
		if got != tc.want {
			t.Errorf("Classify(%s, %s) = %q, want %q", tc.date, tc.g, got, tc.want)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	d := core.NewDate(2024, 7, 4)
	for _, g := range Granularities() {
		a, _ := Classify(d, g, asOf)
		b, _ := Classify(d, g, asOf)
		if a != b {
			t.Fatalf("%s: %q != %q", g, a, b)
		}
	}
}

func TestClassify_Last12MonthsDependsOnAsOf(t *testing.T) {
	d := core.NewDate(2024, 7, 4)
	a, _ := Classify(d, Last12Months, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	b, _ := Classify(d, Last12Months, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	if a != "L12M.1.2023" || b != "L12M.2.2023" {
		t.Fatalf("got %q and %q", a, b)
	}
}

func TestClassify_Errors(t *testing.T) {
	if _, err := Classify(core.Date{}, Month, asOf); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("zero date: expected ErrInvalidDate, got %v", err)
	}
	if _, err := Classify(core.NewDate(2024, 1, 1), "weekly", asOf); !errors.Is(err, ErrUnknownGranularity) {
		t.Fatalf("weekly: expected ErrUnknownGranularity, got %v", err)
	}
}

func TestParseGranularity(t *testing.T) {
	cases := map[string]Granularity{
		"":             Month,
		"month":        Month,
		"Quarter":      Quarter,
		"year":         YTD,
		"ytd":          YTD,
		"last12Months": Last12Months,
		"l12m":         Last12Months,
		"biMonthly":    BiMonthly,
	}
	for in, want := range cases {
		got, err := ParseGranularity(in)
		if err != nil || got != want {
			t.Errorf("ParseGranularity(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseGranularity("fortnight"); !errors.Is(err, ErrUnknownGranularity) {
		t.Fatalf("expected ErrUnknownGranularity, got %v", err)
	}
}

func TestMultiplier(t *testing.T) {
	want := map[Granularity]int64{Month: 1, BiMonthly: 2, Quarter: 3, YTD: 12, Last12Months: 12, "nope": 0}
	for g, m := range want {
		if got := Multiplier(g); got != m {
			t.Errorf("Multiplier(%s) = %d, want %d", g, got, m)
		}
	}
}

func TestWindow(t *testing.T) {
	day := func(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		g          Granularity
		start, end time.Time
	}{
		{Month, day(2024, 11, 1), day(2024, 12, 1)},
		{BiMonthly, day(2024, 11, 1), day(2025, 1, 1)},
		{Quarter, day(2024, 10, 1), day(2025, 1, 1)},
		{YTD, day(2024, 1, 1), day(2024, 12, 1)},
		{Last12Months, day(2023, 11, 1), day(2024, 12, 1)},
	}
	for _, tc := range cases {
		s, e, err := Window(tc.g, asOf)
		if err != nil {
			t.Fatalf("%s: %v", tc.g, err)
		}
		if !s.Equal(tc.start) || !e.Equal(tc.end) {
			t.Errorf("%s: got [%s, %s), want [%s, %s)", tc.g, s, e, tc.start, tc.end)
		}
	}
	if !InWindow(core.NewDate(2024, 10, 31), Quarter, asOf) {
		t.Errorf("Oct 31 should be in Q4 window")
	}
	if InWindow(core.NewDate(2024, 9, 30), Quarter, asOf) {
		t.Errorf("Sep 30 should not be in Q4 window")
	}
}

func TestSort(t *testing.T) {
	keys := []string{"12.2023", "3.2024", "garbage", "1.2024", "11.2023"}
	Sort(keys)
	want := []string{"11.2023", "12.2023", "1.2024", "3.2024", "garbage"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Sort = %v, want %v", keys, want)
	}

	q := []string{"Q2.2024", "Q4.2023", "Q1.2024"}
	Sort(q)
	if !reflect.DeepEqual(q, []string{"Q4.2023", "Q1.2024", "Q2.2024"}) {
		t.Fatalf("quarter sort = %v", q)
	}
}
