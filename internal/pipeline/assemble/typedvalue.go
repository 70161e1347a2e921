package assemble

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TypedValue is the structured interpretation of a fact's object string.
// At most one category is populated; the untyped object string is always
// kept alongside it.
type TypedValue struct {
	Number        *float64
	Date          *time.Time
	MoneyAmount   *float64
	MoneyCurrency *string
	Percent       *float64
	Country       *string
	Code          *string
}

var (
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	bareYearRe = regexp.MustCompile(`^(1[89]\d{2}|20\d{2})$`)
	numberRe   = regexp.MustCompile(`^[-+]?\d+(\.\d+)?$`)
	moneyPreRe = regexp.MustCompile(`^([A-Z]{3})\s?([\d,]+(?:\.\d+)?)$`)
	moneySufRe = regexp.MustCompile(`^([\d,]+(?:\.\d+)?)\s?([A-Z]{3})$`)
	percentRe  = regexp.MustCompile(`(?i)^([-+]?\d+(?:\.\d+)?)\s*(%|percent)$`)
	countryRe  = regexp.MustCompile(`^[A-Z]{2}$`)
	codeRe     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_./-]{0,31}$`)
)

var codePredicateHints = []string{"industry", "legal_form", "status"}

// DetectTypedValue tests the object string against the ordered rule set.
// Bare years beat plain numbers: a four-digit 19xx/20xx object is read as a
// date. The generic-code rule fires only when the predicate names a
// classification.
func DetectTypedValue(object, predicate string) TypedValue {
	obj := strings.TrimSpace(object)
	if obj == "" {
		return TypedValue{}
	}

	if m := isoDateRe.FindStringSubmatch(obj); m != nil {
		if d, err := time.Parse("2006-01-02", obj); err == nil {
			return TypedValue{Date: &d}
		}
	}
	if bareYearRe.MatchString(obj) {
		year, _ := strconv.Atoi(obj)
		d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return TypedValue{Date: &d}
	}
	if numberRe.MatchString(obj) {
		if n, err := strconv.ParseFloat(obj, 64); err == nil {
			return TypedValue{Number: &n}
		}
	}
	if m := moneyPreRe.FindStringSubmatch(obj); m != nil {
		if amount, ok := parseAmount(m[2]); ok {
			ccy := m[1]
			return TypedValue{MoneyAmount: &amount, MoneyCurrency: &ccy}
		}
	}
	if m := moneySufRe.FindStringSubmatch(obj); m != nil {
		if amount, ok := parseAmount(m[1]); ok {
			ccy := m[2]
			return TypedValue{MoneyAmount: &amount, MoneyCurrency: &ccy}
		}
	}
	if m := percentRe.FindStringSubmatch(obj); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			return TypedValue{Percent: &n}
		}
	}
	if countryRe.MatchString(obj) {
		c := obj
		return TypedValue{Country: &c}
	}
	if predicateSuggestsCode(predicate) && codeRe.MatchString(obj) {
		c := obj
		return TypedValue{Code: &c}
	}
	return TypedValue{}
}

func predicateSuggestsCode(predicate string) bool {
	p := strings.ToLower(predicate)
	for _, hint := range codePredicateHints {
		if strings.Contains(p, hint) {
			return true
		}
	}
	return false
}

func parseAmount(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
