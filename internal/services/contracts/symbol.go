// Package contracts encodes and decodes futures contract symbols, computes
// contract expiration dates and maps calendar horizons onto contracts.
package contracts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"FuturesCast/internal/domain/models"
)

// Month codes follow the standard futures alphabet.
var monthCodes = [12]byte{'F', 'G', 'H', 'J', 'K', 'M', 'N', 'Q', 'U', 'V', 'X', 'Z'}

// QuarterlyMonths are the March/June/September/December cycle months.
var QuarterlyMonths = []string{"March", "June", "September", "December"}

// AllMonths lists every contract month in calendar order.
var AllMonths = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// symbolRegex matches: {base 1-3 letters}{month code}{YY}, e.g. CLZ25.
var symbolRegex = regexp.MustCompile(`^([A-Z]{1,3})([FGHJKMNQUVXZ])(\d{2})$`)

var baseRegex = regexp.MustCompile(`^[A-Z]{1,3}$`)

// ParsedSymbol is the decoded form of a contract symbol.
type ParsedSymbol struct {
	Base        string `json:"base"`
	Month       string `json:"month"`
	MonthNumber int    `json:"month_number"`
	Year        int    `json:"year"`
}

// ParseMonth resolves a full or 3-letter English month name (any case).
func ParseMonth(name string) (time.Month, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) >= 3 {
		for i, m := range AllMonths {
			full := strings.ToLower(m)
			if n == full || n == full[:3] {
				return time.Month(i + 1), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", models.ErrInvalidMonth, name)
}

// MonthCode returns the single-letter code for a calendar month.
func MonthCode(m time.Month) byte { return monthCodes[m-1] }

// NormalizeBase upper-cases and validates a base symbol.
func NormalizeBase(base string) (string, error) {
	b := strings.ToUpper(strings.TrimSpace(base))
	if !baseRegex.MatchString(b) {
		return "", fmt.Errorf("%w: base %q (expected 1-3 letters)", models.ErrInvalidSymbolFormat, base)
	}
	return b, nil
}

// Two-digit symbol years cover one century.
const (
	MinContractYear = 2000
	MaxContractYear = 2099
)

// CheckYear rejects years a two-digit symbol cannot represent.
func CheckYear(year int) error {
	if year < MinContractYear || year > MaxContractYear {
		return fmt.Errorf("%w: %d outside %d-%d", models.ErrInvalidYear, year, MinContractYear, MaxContractYear)
	}
	return nil
}

// BuildSymbol concatenates base, month code and two-digit year.
func BuildSymbol(base, month string, year int) (string, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return "", err
	}
	b, err := NormalizeBase(base)
	if err != nil {
		return "", err
	}
	if err := CheckYear(year); err != nil {
		return "", err
	}
	return buildSymbol(b, m, year), nil
}

func buildSymbol(base string, m time.Month, year int) string {
	return fmt.Sprintf("%s%c%02d", base, MonthCode(m), year%100)
}

// ParseSymbol decodes a symbol produced by BuildSymbol.
func ParseSymbol(symbol string) (ParsedSymbol, error) {
	matches := symbolRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return ParsedSymbol{}, fmt.Errorf("%w: %s (expected {base}{month code}{YY})",
			models.ErrInvalidSymbolFormat, symbol)
	}
	code := matches[2][0]
	month := 0
	for i, c := range monthCodes {
		if c == code {
			month = i + 1
			break
		}
	}
	yy, err := strconv.Atoi(matches[3])
	if err != nil {
		return ParsedSymbol{}, fmt.Errorf("%w: year %s", models.ErrInvalidSymbolFormat, matches[3])
	}
	return ParsedSymbol{
		Base:        matches[1],
		Month:       AllMonths[month-1],
		MonthNumber: month,
		Year:        2000 + yy,
	}, nil
}
