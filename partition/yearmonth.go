package partition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// YearMonth partitions Date indices into one partition per UTC calendar
// month, named "YYYY-MM".
type YearMonth struct {
	coerce func(any) (time.Time, error)
}

// YearMonthOption configures a YearMonth partitioner.
type YearMonthOption func(*YearMonth)

// WithCoercion supplies a conversion from non-Date index values to a
// time, for indices that are merely date-coercible.
func WithCoercion(coerce func(any) (time.Time, error)) YearMonthOption {
	return func(p *YearMonth) {
		p.coerce = coerce
	}
}

// NewYearMonth creates a UTC year-month partitioner.
func NewYearMonth(opts ...YearMonthOption) *YearMonth {
	p := &YearMonth{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *YearMonth) Partition(index any) (string, error) {
	t, ok := index.(time.Time)
	if !ok {
		if p.coerce == nil {
			return "", fmt.Errorf("year-month partitioner needs a Date index, got %T", index)
		}
		coerced, err := p.coerce(index)
		if err != nil {
			return "", fmt.Errorf("coerce %T index: %w", index, err)
		}
		t = coerced
	}
	return t.UTC().Format("2006-01"), nil
}

// Range orders names by year*12+month, raw string order breaking ties.
func (p *YearMonth) Range(names []string) (Range, bool) {
	if len(names) == 0 {
		return Range{}, false
	}
	sorted := sortNames(names, monthRank)
	return Range{First: sorted[0], Last: sorted[len(sorted)-1]}, true
}

func monthRank(name string) float64 {
	year, month, ok := strings.Cut(name, "-")
	if !ok {
		return math.Inf(1)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return math.Inf(1)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return math.Inf(1)
	}
	return float64(y*12 + m)
}
