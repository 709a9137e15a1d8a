// Package fees computes posting fees, commission rates and settlement splits.
// Everything here is pure and uses exact decimal arithmetic.
package fees

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidAmount  = errors.New("invalid settlement amount")
	ErrInvalidRate    = errors.New("commission rate must be in (0, 1]")
)

// centPlaces is the rounding precision of every money value.
const centPlaces = 2

// Schedule is the fee schedule of one job type.
type Schedule struct {
	PostingFee     decimal.Decimal
	CommissionRate decimal.Decimal
}

// Policy holds the platform fee schedules and minimums.
type Policy struct {
	Schedules map[models.JobType]Schedule
	MinBudget decimal.Decimal
	MinBid    decimal.Decimal
}

// DefaultPolicy returns the current platform fee schedule.
func DefaultPolicy() Policy {
	return Policy{
		Schedules: map[models.JobType]Schedule{
			models.JobTypeCustom: {
				PostingFee:     decimal.RequireFromString("25.00"),
				CommissionRate: decimal.RequireFromString("0.25"),
			},
			models.JobTypeSponsored: {
				PostingFee:     decimal.RequireFromString("50.00"),
				CommissionRate: decimal.RequireFromString("0.30"),
			},
		},
		MinBudget: decimal.RequireFromString("50.00"),
		MinBid:    decimal.RequireFromString("10.00"),
	}
}

// Validate checks that every schedule is usable.
func (p Policy) Validate() error {
	for _, t := range []models.JobType{models.JobTypeCustom, models.JobTypeSponsored} {
		s, ok := p.Schedules[t]
		if !ok {
			return fmt.Errorf("missing fee schedule for job type %q", t)
		}
		if err := validateRate(s.CommissionRate); err != nil {
			return fmt.Errorf("job type %q: %w", t, err)
		}
		if s.PostingFee.IsNegative() {
			return fmt.Errorf("job type %q: posting fee must not be negative", t)
		}
	}
	if p.MinBudget.IsNegative() || p.MinBid.IsNegative() {
		return errors.New("platform minimums must not be negative")
	}
	return nil
}

// PostingFee returns the flat activation fee for a job type.
func (p Policy) PostingFee(t models.JobType) (decimal.Decimal, error) {
	s, ok := p.Schedules[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	return s.PostingFee.Round(centPlaces), nil
}

// CommissionRate returns the platform share for a job type. The caller is
// expected to freeze the value onto the job.
func (p Policy) CommissionRate(t models.JobType) (decimal.Decimal, error) {
	s, ok := p.Schedules[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	return s.CommissionRate, nil
}

// Split is the platform/pilot division of a settlement amount.
type Split struct {
	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
	PilotPayout decimal.Decimal
}

// Conserved reports whether fee and payout add up to the amount without
// either side going negative.
func (s Split) Conserved() bool {
	return s.PlatformFee.Add(s.PilotPayout).Equal(s.Amount) &&
		!s.PlatformFee.IsNegative() && !s.PilotPayout.IsNegative()
}

// SplitAmount divides amount by rate. The fee is rounded half-up to the cent
// and the remainder goes to the pilot.
func SplitAmount(amount, rate decimal.Decimal) (Split, error) {
	if amount.IsNegative() {
		return Split{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Round(centPlaces)) {
		return Split{}, fmt.Errorf("%w: %s has sub-cent precision", ErrInvalidAmount, amount)
	}
	if err := validateRate(rate); err != nil {
		return Split{}, err
	}
	fee := amount.Mul(rate).Round(centPlaces)
	return Split{
		Amount:      amount,
		PlatformFee: fee,
		PilotPayout: amount.Sub(fee),
	}, nil
}

func validateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", ErrInvalidRate, rate)
	}
	return nil
}
