package fees_test

import (
	"math/rand"
	"testing"

	"github.com/kiranshivaraju/skybid/internal/fees"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefaultPolicy_Rates(t *testing.T) {
	p := fees.DefaultPolicy()
	require.NoError(t, p.Validate())

	rate, err := p.CommissionRate(models.JobTypeCustom)
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("0.25")))

	rate, err = p.CommissionRate(models.JobTypeSponsored)
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("0.30")))
}

func TestPostingFee_SponsoredCostsMore(t *testing.T) {
	p := fees.DefaultPolicy()
	custom, err := p.PostingFee(models.JobTypeCustom)
	require.NoError(t, err)
	sponsored, err := p.PostingFee(models.JobTypeSponsored)
	require.NoError(t, err)
	assert.True(t, sponsored.GreaterThan(custom))
}

func TestUnknownJobType(t *testing.T) {
	p := fees.DefaultPolicy()
	_, err := p.PostingFee("premium")
	assert.ErrorIs(t, err, fees.ErrUnknownJobType)
	_, err = p.CommissionRate("premium")
	assert.ErrorIs(t, err, fees.ErrUnknownJobType)
}

func TestSplitAmount_Scenario(t *testing.T) {
	s, err := fees.SplitAmount(d("500"), d("0.25"))
	require.NoError(t, err)
	assert.Equal(t, "125.00", s.PlatformFee.StringFixed(2))
	assert.Equal(t, "375.00", s.PilotPayout.StringFixed(2))
}

func TestSplitAmount_Rounding(t *testing.T) {
	tests := []struct {
		amount, rate, fee, payout string
	}{
		{"0.01", "0.25", "0.00", "0.01"},
		{"0.02", "0.25", "0.01", "0.01"},
		{"33.33", "0.30", "10.00", "23.33"},
		{"99.99", "0.25", "25.00", "74.99"},
		{"10.05", "0.30", "3.02", "7.03"},
		{"100", "1", "100.00", "0.00"},
		{"0", "0.25", "0.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+"@"+tt.rate, func(t *testing.T) {
			s, err := fees.SplitAmount(d(tt.amount), d(tt.rate))
			require.NoError(t, err)
			assert.True(t, s.PlatformFee.Equal(d(tt.fee)), "fee: got %s", s.PlatformFee)
			assert.True(t, s.PilotPayout.Equal(d(tt.payout)), "payout: got %s", s.PilotPayout)
			assert.True(t, s.Conserved())
		})
	}
}

func TestSplitAmount_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		amount := decimal.New(rng.Int63n(10_000_000), -2)
		rate := decimal.New(rng.Int63n(10_000)+1, -4)

		s, err := fees.SplitAmount(amount, rate)
		require.NoError(t, err)
		require.True(t, s.Conserved(), "amount=%s rate=%s fee=%s payout=%s", amount, rate, s.PlatformFee, s.PilotPayout)
	}
}

func TestSplitAmount_InvalidInput(t *testing.T) {
	_, err := fees.SplitAmount(d("-1"), d("0.25"))
	assert.ErrorIs(t, err, fees.ErrInvalidAmount)

	_, err = fees.SplitAmount(d("1.005"), d("0.25"))
	assert.ErrorIs(t, err, fees.ErrInvalidAmount)

	_, err = fees.SplitAmount(d("10"), d("0"))
	assert.ErrorIs(t, err, fees.ErrInvalidRate)

	_, err = fees.SplitAmount(d("10"), d("1.01"))
	assert.ErrorIs(t, err, fees.ErrInvalidRate)
}

func TestValidate_RejectsBadSchedule(t *testing.T) {
	p := fees.DefaultPolicy()
	p.Schedules[models.JobTypeCustom] = fees.Schedule{PostingFee: d("10"), CommissionRate: d("1.5")}
	assert.ErrorIs(t, p.Validate(), fees.ErrInvalidRate)

	p = fees.DefaultPolicy()
	delete(p.Schedules, models.JobTypeSponsored)
	assert.Error(t, p.Validate())
}
