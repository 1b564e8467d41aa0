package score

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(delayed, pastDue, utilization, debt, cards string) domain.Profile {
	return domain.Profile{
		domain.FieldNumOfDelayedPayment: delayed,
		domain.FieldDelayFromDueDate:    pastDue,
		domain.FieldCreditUtilization:   utilization,
		domain.FieldOutstandingDebt:     debt,
		domain.FieldNumCreditCard:       cards,
	}
}

func TestCompute(t *testing.T) {
	calc := NewCalculator()

	t.Run("reference profile", func(t *testing.T) {
		res, err := calc.Compute(profile("2", "5", "20", "1000", "2"))
		require.NoError(t, err)

		// 30-2-0, 30-6, 30-1, 30-2
		assert.Equal(t, 28, res.Repayment)
		assert.Equal(t, 24, res.Utilization)
		assert.Equal(t, 29, res.Outstanding)
		assert.Equal(t, 28, res.Inquiries)
		assert.Equal(t, 609, res.Final)
	})

	t.Run("three delayed payments", func(t *testing.T) {
		res, err := calc.Compute(profile("3", "5", "20", "1000", "2"))
		require.NoError(t, err)

		assert.Equal(t, 27, res.Repayment)
		assert.Equal(t, 608, res.Final)
	})

	t.Run("fractional outstanding contributes before rounding", func(t *testing.T) {
		res, err := calc.Compute(profile("0", "0", "0", "1700", "0"))
		require.NoError(t, err)

		// 30 + 30 + 28.3 + 30 = 118.3
		assert.Equal(t, 28, res.Outstanding)
		assert.Equal(t, 618, res.Final)
	})

	t.Run("perfect profile", func(t *testing.T) {
		res, err := calc.Compute(profile("0", "0", "0", "0", "0"))
		require.NoError(t, err)
		assert.Equal(t, 620, res.Final)
	})

	t.Run("case-insensitive fields", func(t *testing.T) {
		res, err := calc.Compute(domain.Profile{
			"Num_of_Delayed_Payment":   "2",
			"Delay_from_due_date":      "5",
			"Credit_Utilization_Ratio": "20",
			"Outstanding_Debt":         "1000",
			"Num_Credit_Card":          "2",
		})
		require.NoError(t, err)
		assert.Equal(t, 609, res.Final)
	})
}

func TestSubScoresNeverNegative(t *testing.T) {
	res, err := NewCalculator().Compute(profile("50", "900", "100", "1000000", "40"))
	require.NoError(t, err)

	assert.Zero(t, res.Repayment)
	assert.Zero(t, res.Utilization)
	assert.Zero(t, res.Outstanding)
	assert.Zero(t, res.Inquiries)
	assert.Equal(t, Base, res.Final)
}

func TestSubScoresCapped(t *testing.T) {
	res := Score(Inputs{DelayedPayments: -10, DaysPastDue: -50, UtilizationRatio: -30, OutstandingDebt: -5000, CreditLines: -4})

	assert.Equal(t, SubScoreCap, res.Repayment)
	assert.Equal(t, SubScoreCap, res.Utilization)
	assert.Equal(t, SubScoreCap, res.Outstanding)
	assert.Equal(t, SubScoreCap, res.Inquiries)
	assert.LessOrEqual(t, res.Final, Max)
}

func TestRepaymentMonotonic(t *testing.T) {
	base := Inputs{UtilizationRatio: 10, OutstandingDebt: 100, CreditLines: 1}

	prev := Score(base).Repayment
	for delayed := 1; delayed <= 40; delayed++ {
		in := base
		in.DelayedPayments = delayed
		got := Score(in).Repayment
		assert.LessOrEqual(t, got, prev, "delayed=%d", delayed)
		prev = got
	}

	prev = Score(base).Repayment
	for days := 0; days <= 400; days += 7 {
		in := base
		in.DaysPastDue = days
		got := Score(in).Repayment
		assert.LessOrEqual(t, got, prev, "days=%d", days)
		prev = got
	}
}

func TestFinalScoreBounds(t *testing.T) {
	for delayed := 0; delayed < 40; delayed += 3 {
		for util := 0.0; util <= 120; util += 17.5 {
			for debt := 0.0; debt <= 60000; debt += 7500 {
				res := Score(Inputs{DelayedPayments: delayed, DaysPastDue: delayed * 4, UtilizationRatio: util, OutstandingDebt: debt, CreditLines: delayed / 2})
				assert.GreaterOrEqual(t, res.Final, Base)
				assert.LessOrEqual(t, res.Final, Max)
			}
		}
	}
}

func TestComputeInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.Profile
	}{
		{"non-numeric delayed payments", profile("many", "5", "20", "1000", "2")},
		{"fractional count", profile("2.5", "5", "20", "1000", "2")},
		{"non-numeric utilization", profile("2", "5", "high", "1000", "2")},
		{"NaN utilization", profile("2", "5", "NaN", "1000", "2")},
		{"infinite debt", profile("2", "5", "20", "Inf", "2")},
		{"negative infinite debt", profile("2", "5", "20", "-Inf", "2")},
		{"missing debt", domain.Profile{
			domain.FieldNumOfDelayedPayment: "2",
			domain.FieldDelayFromDueDate:    "5",
			domain.FieldCreditUtilization:   "20",
			domain.FieldNumCreditCard:       "2",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalculator().Compute(tt.profile)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
}

func TestScoreNaNStaysInBounds(t *testing.T) {
	res := Score(Inputs{DelayedPayments: 2, DaysPastDue: 5, UtilizationRatio: math.NaN(), OutstandingDebt: 1000, CreditLines: 2})
	assert.Equal(t, 0, res.Utilization)
	assert.Equal(t, 585, res.Final)
}

func TestWholeValuedDecimalCounts(t *testing.T) {
	res, err := NewCalculator().Compute(profile("2.0", "5", "20", "1000", "2"))
	require.NoError(t, err)
	assert.Equal(t, 28, res.Repayment)
}
