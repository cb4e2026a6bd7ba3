package contracts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"FuturesCast/internal/domain/models"
)

// earlyExpiryPenalty is added to the score of contracts expiring before the target date;
// such a contract cannot represent that horizon.
const earlyExpiryPenalty = 1000

type MappingOptions struct {
	QuarterlyOnly       bool
	PreferredMonths     []string
	MinDaysToExpiration int
	MaxDaysToExpiration int
}

func DefaultMappingOptions() MappingOptions {
	return MappingOptions{MinDaysToExpiration: 30, MaxDaysToExpiration: 1095}
}

// Mapper selects the best contract for each calendar horizon.
type Mapper struct {
	now func() time.Time
}

type MapperOption func(*Mapper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MapperOption {
	return func(m *Mapper) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the mapper's current time.
func (m *Mapper) Now() time.Time { return m.now().UTC() }

// MapHorizonsToContracts returns one mapping per horizon (in months) that has a contract
// within the days-to-expiration bounds. Horizons without a candidate are absent.
func (m *Mapper) MapHorizonsToContracts(base string, horizons []int, opts MappingOptions) (map[int]models.ContractMapping, error) {
	b, err := NormalizeBase(base)
	if err != nil {
		return nil, err
	}
	months, err := candidateMonths(opts)
	if err != nil {
		return nil, err
	}
	if opts.MaxDaysToExpiration <= 0 {
		opts.MaxDaysToExpiration = DefaultMappingOptions().MaxDaysToExpiration
	}
	if opts.MinDaysToExpiration < 0 {
		opts.MinDaysToExpiration = 0
	}

	now := m.Now()
	out := make(map[int]models.ContractMapping, len(horizons))
	for _, h := range horizons {
		if mapping, ok := m.best(b, h, now, months, opts); ok {
			out[h] = mapping
		}
	}
	return out, nil
}

func (m *Mapper) best(base string, horizon int, now time.Time, months []time.Month, opts MappingOptions) (models.ContractMapping, bool) {
	target := now.AddDate(0, horizon, 0)
	var (
		best      models.ContractMapping
		bestScore = math.MaxInt
	)
	for _, year := range []int{target.Year(), target.Year() + 1} {
		for _, mo := range months {
			exp := expiration(base, mo, year)
			dte := DaysBetween(now, exp)
			if dte < opts.MinDaysToExpiration || dte > opts.MaxDaysToExpiration {
				continue
			}
			diff := DaysBetween(target, exp)
			score := diff
			if diff < 0 {
				score = -diff + earlyExpiryPenalty
			}
			if score < bestScore {
				bestScore = score
				best = models.ContractMapping{
					HorizonMonths:    horizon,
					HorizonLabel:     HorizonLabel(horizon),
					TargetDate:       target,
					ContractSymbol:   buildSymbol(base, mo, year),
					ContractMonth:    AllMonths[mo-1],
					ContractYear:     year,
					ExpirationDate:   exp,
					DaysToExpiration: dte,
				}
			}
		}
	}
	return best, bestScore != math.MaxInt
}

func candidateMonths(opts MappingOptions) ([]time.Month, error) {
	names := opts.PreferredMonths
	if len(names) == 0 {
		names = AllMonths
		if opts.QuarterlyOnly {
			names = QuarterlyMonths
		}
	}
	out := make([]time.Month, 0, len(names))
	for _, n := range names {
		mo, err := ParseMonth(n)
		if err != nil {
			return nil, err
		}
		out = append(out, mo)
	}
	return out, nil
}

// HorizonLabel formats a horizon as "6-month".
func HorizonLabel(months int) string { return fmt.Sprintf("%d-month", months) }

// ParseHorizonLabel accepts "6-month", "6m" or "6".
func ParseHorizonLabel(label string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimSuffix(s, "-month")
	s = strings.TrimSuffix(s, "m")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid horizon %q", label)
	}
	return n, nil
}
