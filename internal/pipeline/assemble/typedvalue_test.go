package assemble

import (
	"testing"
	"time"
)

func countSet(tv TypedValue) int {
	n := 0
	if tv.Number != nil {
		n++
	}
	if tv.Date != nil {
		n++
	}
	if tv.MoneyAmount != nil {
		n++
	}
	if tv.Percent != nil {
		n++
	}
	if tv.Country != nil {
		n++
	}
	if tv.Code != nil {
		n++
	}
	return n
}

func TestDetectTypedValue(t *testing.T) {
	cases := []struct {
		name      string
		object    string
		predicate string
		check     func(t *testing.T, tv TypedValue)
	}{
		{"integer", "230", "employees", func(t *testing.T, tv TypedValue) {
			if tv.Number == nil || *tv.Number != 230 {
				t.Fatalf("expected number 230: %+v", tv)
			}
		}},
		{"decimal", "3.14", "ratio", func(t *testing.T, tv TypedValue) {
			if tv.Number == nil || *tv.Number != 3.14 {
				t.Fatalf("expected number 3.14: %+v", tv)
			}
		}},
		{"negative", "-12", "delta", func(t *testing.T, tv TypedValue) {
			if tv.Number == nil || *tv.Number != -12 {
				t.Fatalf("expected number -12: %+v", tv)
			}
		}},
		{"iso date", "2021-06-30", "founded", func(t *testing.T, tv TypedValue) {
			want := time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)
			if tv.Date == nil || !tv.Date.Equal(want) {
				t.Fatalf("expected date %s: %+v", want, tv)
			}
		}},
		{"bare year beats number", "1999", "founded", func(t *testing.T, tv TypedValue) {
			if tv.Date == nil || tv.Date.Year() != 1999 {
				t.Fatalf("expected year date: %+v", tv)
			}
			if tv.Number != nil {
				t.Fatalf("year must not also be a number")
			}
		}},
		{"money prefix currency", "USD 1,200.50", "revenue", func(t *testing.T, tv TypedValue) {
			if tv.MoneyAmount == nil || *tv.MoneyAmount != 1200.50 {
				t.Fatalf("expected money amount: %+v", tv)
			}
			if tv.MoneyCurrency == nil || *tv.MoneyCurrency != "USD" {
				t.Fatalf("expected USD: %+v", tv)
			}
			if tv.Number != nil {
				t.Fatalf("money must not also populate the number field")
			}
		}},
		{"money suffix currency", "500 EUR", "revenue", func(t *testing.T, tv TypedValue) {
			if tv.MoneyAmount == nil || *tv.MoneyAmount != 500 {
				t.Fatalf("expected money 500: %+v", tv)
			}
			if tv.MoneyCurrency == nil || *tv.MoneyCurrency != "EUR" {
				t.Fatalf("expected EUR: %+v", tv)
			}
		}},
		{"percent sign", "23%", "margin", func(t *testing.T, tv TypedValue) {
			if tv.Percent == nil || *tv.Percent != 23 {
				t.Fatalf("expected percent 23: %+v", tv)
			}
		}},
		{"percent word", "15 percent", "growth", func(t *testing.T, tv TypedValue) {
			if tv.Percent == nil || *tv.Percent != 15 {
				t.Fatalf("expected percent 15: %+v", tv)
			}
		}},
		{"country code", "DE", "hq_country", func(t *testing.T, tv TypedValue) {
			if tv.Country == nil || *tv.Country != "DE" {
				t.Fatalf("expected country DE: %+v", tv)
			}
		}},
		{"code with classification predicate", "GmbH", "legal_form", func(t *testing.T, tv TypedValue) {
			if tv.Code == nil || *tv.Code != "GmbH" {
				t.Fatalf("expected code: %+v", tv)
			}
		}},
		{"code gate on industry predicate", "NACE-62.01", "industry_classification", func(t *testing.T, tv TypedValue) {
			if tv.Code == nil {
				t.Fatalf("expected code for industry predicate: %+v", tv)
			}
		}},
		{"no code without classification predicate", "GmbH", "employees", func(t *testing.T, tv TypedValue) {
			if tv.Code != nil {
				t.Fatalf("code must be gated on predicate: %+v", tv)
			}
		}},
		{"free text", "a Berlin based maker of rockets", "description", func(t *testing.T, tv TypedValue) {
			if countSet(tv) != 0 {
				t.Fatalf("expected untyped: %+v", tv)
			}
		}},
		{"empty", "", "anything", func(t *testing.T, tv TypedValue) {
			if countSet(tv) != 0 {
				t.Fatalf("expected untyped: %+v", tv)
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tv := DetectTypedValue(tc.object, tc.predicate)
			if countSet(tv) > 1 {
				t.Fatalf("categories must be mutually exclusive: %+v", tv)
			}
			tc.check(t, tv)
		})
	}
}
