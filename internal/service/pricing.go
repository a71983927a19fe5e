package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/money"
)

// DefaultMonthDays is the number of days billed at the monthly rate.
const DefaultMonthDays = 30

// ErrNoRates is returned when a vehicle has neither a daily nor a monthly rate.
var ErrNoRates = fmt.Errorf("%w: vehicle has no rental rates", ErrConflict)

// PriceBreakdown explains how a rental total was reached.
type PriceBreakdown struct {
	Days            int
	Months          int
	MonthlyRate     decimal.Decimal
	MonthsAmount    decimal.Decimal
	RemainderDays   int
	DailyRate       decimal.Decimal
	RemainderAmount decimal.Decimal
	RemainderCapped bool // Remainder billed as one more month
	Total           decimal.Decimal
}

// PricingEngine computes rental totals from per-day and per-month rates.
type PricingEngine struct {
	monthDays int
}

// NewPricingEngine creates a new PricingEngine. monthDays <= 0 uses DefaultMonthDays.
func NewPricingEngine(monthDays int) *PricingEngine {
	if monthDays <= 0 {
		monthDays = DefaultMonthDays
	}
	return &PricingEngine{monthDays: monthDays}
}

// MonthDays returns the configured month length.
func (p *PricingEngine) MonthDays() int {
	return p.monthDays
}

// Price returns the amount owed for renting v over [start, end).
func (p *PricingEngine) Price(v *domain.Vehicle, start, end time.Time) (decimal.Decimal, error) {
	b, err := p.Breakdown(v, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Total, nil
}

// Breakdown prices [start, end) and returns each component.
//
// Whole months are billed at the monthly rate and the remaining days at the
// daily rate, with the remainder never exceeding one monthly rate. A zero
// monthly rate bills every day at the daily rate. A zero daily rate bills any
// remainder as a full month.
func (p *PricingEngine) Breakdown(v *domain.Vehicle, start, end time.Time) (*PriceBreakdown, error) {
	n := clock.DaysBetween(start, end)
	if n <= 0 {
		return nil, ErrEndBeforeStart
	}

	daily := money.Round(v.RentPerDay)
	monthly := money.Round(v.RentPerMonth)
	if daily.IsNegative() || monthly.IsNegative() {
		return nil, fmt.Errorf("%w: negative rental rate", ErrValidation)
	}
	if daily.IsZero() && monthly.IsZero() {
		return nil, ErrNoRates
	}

	b := &PriceBreakdown{
		Days:        n,
		MonthlyRate: monthly,
		DailyRate:   daily,
	}

	if monthly.IsZero() {
		b.RemainderDays = n
		b.RemainderAmount = money.Times(daily, n)
		b.MonthsAmount = decimal.Zero
		b.Total = b.RemainderAmount
		return b, nil
	}

	b.Months = n / p.monthDays
	b.RemainderDays = n % p.monthDays
	b.MonthsAmount = money.Times(monthly, b.Months)

	if b.RemainderDays > 0 {
		remainder := money.Times(daily, b.RemainderDays)
		if daily.IsZero() || remainder.GreaterThan(monthly) {
			remainder = monthly
			b.RemainderCapped = true
		}
		b.RemainderAmount = remainder
	} else {
		b.RemainderAmount = decimal.Zero
	}

	b.Total = money.Round(b.MonthsAmount.Add(b.RemainderAmount))
	return b, nil
}
