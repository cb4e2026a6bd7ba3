package contracts

import (
	"time"
)

// ExpirationRule describes when contracts of one commodity stop trading.
// MonthOffset is relative to the delivery month (-1 = the month before).
type ExpirationRule struct {
	DayOfMonth       int
	MonthOffset      int
	BusinessDaysOnly bool
}

// DefaultRule applies to base symbols missing from the table: 20th of the prior month.
var DefaultRule = ExpirationRule{DayOfMonth: 20, MonthOffset: -1}

var expirationRules = map[string]ExpirationRule{
	"CL": {DayOfMonth: 20, MonthOffset: -1, BusinessDaysOnly: true},
	"BZ": {DayOfMonth: 31, MonthOffset: -2, BusinessDaysOnly: true},
	"NG": {DayOfMonth: 27, MonthOffset: -1, BusinessDaysOnly: true},
	"HO": {DayOfMonth: 31, MonthOffset: -1, BusinessDaysOnly: true},
	"RB": {DayOfMonth: 31, MonthOffset: -1, BusinessDaysOnly: true},
	"GC": {DayOfMonth: 27, MonthOffset: 0, BusinessDaysOnly: true},
	"SI": {DayOfMonth: 27, MonthOffset: 0, BusinessDaysOnly: true},
	"HG": {DayOfMonth: 27, MonthOffset: 0, BusinessDaysOnly: true},
	"PL": {DayOfMonth: 27, MonthOffset: 0, BusinessDaysOnly: true},
	"ZC": {DayOfMonth: 14, MonthOffset: 0, BusinessDaysOnly: true},
	"ZS": {DayOfMonth: 14, MonthOffset: 0, BusinessDaysOnly: true},
	"ZW": {DayOfMonth: 14, MonthOffset: 0, BusinessDaysOnly: true},
}

// RuleFor returns the expiration rule of a base symbol.
func RuleFor(base string) ExpirationRule {
	if r, ok := expirationRules[base]; ok {
		return r
	}
	return DefaultRule
}

// ExpirationDate computes the last trading day of (base, month, year). It is pure:
// the result depends only on its inputs and the Gregorian calendar.
func ExpirationDate(base, month string, year int) (time.Time, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return time.Time{}, err
	}
	b, err := NormalizeBase(base)
	if err != nil {
		return time.Time{}, err
	}
	return expiration(b, m, year), nil
}

// ExpirationForSymbol parses symbol and returns its expiration date.
func ExpirationForSymbol(symbol string) (ParsedSymbol, time.Time, error) {
	p, err := ParseSymbol(symbol)
	if err != nil {
		return ParsedSymbol{}, time.Time{}, err
	}
	return p, expiration(p.Base, time.Month(p.MonthNumber), p.Year), nil
}

func expiration(base string, m time.Month, year int) time.Time {
	rule := RuleFor(base)
	// normalize year/month after the offset
	first := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, rule.MonthOffset, 0)
	day := rule.DayOfMonth
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	d := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
	if rule.BusinessDaysOnly {
		d = previousWeekday(d)
	}
	return d
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func previousWeekday(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	a = truncateDay(a)
	b = truncateDay(b)
	return int(b.Sub(a).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
