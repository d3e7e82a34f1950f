package accrual

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func TestAccrueDailyBalance(t *testing.T) {
	// 10000 for the first 20 days of June, 15000 for the last 10, at 6%/365.
	got, err := Accrue(AccrueInput{
		History: []BalancePoint{
			{Date: day(2024, 6, 1), Balance: d("10000")},
			{Date: day(2024, 6, 21), Balance: d("15000")},
		},
		AnnualRatePercent: d("6"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 6, 1),
		PeriodEnd:         day(2024, 7, 1),
		Convention:        Convention{DayCountBasis: 365, Scale: 2},
	})
	require.NoError(t, err)
	// 10000*0.06*20/365 + 15000*0.06*10/365 = 32.8767 + 24.6575 = 57.53
	require.True(t, got.Equal(d("57.53")), "got %s", got)
}

func TestAccrueSingleInterval(t *testing.T) {
	got, err := Accrue(AccrueInput{
		History:           []BalancePoint{{Date: day(2024, 1, 1), Balance: d("100000")}},
		AnnualRatePercent: d("7.3"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 3, 1),
		PeriodEnd:         day(2024, 3, 31),
		Convention:        Convention{DayCountBasis: 365, Scale: 2},
	})
	require.NoError(t, err)
	// 100000 * 0.073 * 30/365 = 600.00
	require.True(t, got.Equal(d("600")), "got %s", got)
}

func TestAccrueRoundsOnceAtTheEnd(t *testing.T) {
	// Fifteen one-day intervals of 1000 at 5%/365. Each contributes
	// ~0.136986; per-interval rounding would give 15*0.14 = 2.10.
	history := make([]BalancePoint, 0, 15)
	for i := 0; i < 15; i++ {
		history = append(history, BalancePoint{Date: day(2024, 5, 1+i), Balance: d("1000")})
	}
	got, err := Accrue(AccrueInput{
		History:           history,
		AnnualRatePercent: d("5"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 5, 1),
		PeriodEnd:         day(2024, 5, 16),
		Convention:        Convention{DayCountBasis: 365, Scale: 2},
	})
	require.NoError(t, err)
	// 1000 * 0.05 * 15/365 = 2.0547...
	require.True(t, got.Equal(d("2.05")), "got %s", got)
}

func TestAccrueIgnoresHistoryOutsidePeriod(t *testing.T) {
	got, err := Accrue(AccrueInput{
		History: []BalancePoint{
			{Date: day(2023, 12, 1), Balance: d("5000")},
			{Date: day(2024, 2, 1), Balance: d("8000")},
			{Date: day(2024, 9, 1), Balance: d("9999")},
		},
		AnnualRatePercent: d("10"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 3, 1),
		PeriodEnd:         day(2024, 3, 11),
		Convention:        Convention{DayCountBasis: 365, Scale: 2},
	})
	require.NoError(t, err)
	// Only the 8000 balance is live during the period: 8000*0.1*10/365.
	require.True(t, got.Equal(d("21.92")), "got %s", got)
}

func TestAccrueInputGuards(t *testing.T) {
	base := AccrueInput{
		History:           []BalancePoint{{Date: day(2024, 1, 1), Balance: d("1000")}},
		AnnualRatePercent: d("5"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 1, 1),
		PeriodEnd:         day(2024, 2, 1),
	}

	in := base
	in.Method = "COMPOUND_DAILY"
	_, err := Accrue(in)
	require.ErrorIs(t, err, ErrUnsupportedMethod)

	in = base
	in.PeriodEnd = in.PeriodStart
	_, err = Accrue(in)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	in = base
	in.AnnualRatePercent = d("-1")
	_, err = Accrue(in)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestAccrueEmptyHistoryIsZero(t *testing.T) {
	got, err := Accrue(AccrueInput{
		History:           nil,
		AnnualRatePercent: d("5"),
		Method:            MethodDailyBalance,
		PeriodStart:       day(2024, 1, 1),
		PeriodEnd:         day(2024, 2, 1),
	})
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestNextPostingDate(t *testing.T) {
	cases := []struct {
		name  string
		freq  PostingFrequency
		after time.Time
		want  time.Time
	}{
		{"monthly mid-month", PostMonthly, day(2024, 3, 15), day(2024, 3, 31)},
		{"monthly on boundary", PostMonthly, day(2024, 3, 31), day(2024, 4, 30)},
		{"quarterly mid-quarter", PostQuarterly, day(2024, 2, 10), day(2024, 3, 31)},
		{"quarterly on boundary", PostQuarterly, day(2024, 3, 31), day(2024, 6, 30)},
		{"annually mid-year", PostAnnually, day(2024, 7, 4), day(2024, 12, 31)},
		{"annually on boundary", PostAnnually, day(2024, 12, 31), day(2025, 12, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NextPostingDate(tc.freq, tc.after))
		})
	}
}

func TestPrevPostingDate(t *testing.T) {
	cases := []struct {
		name string
		freq PostingFrequency
		at   time.Time
		want time.Time
	}{
		{"monthly mid-month", PostMonthly, day(2024, 3, 15), day(2024, 2, 29)},
		{"monthly on boundary", PostMonthly, day(2024, 3, 31), day(2024, 3, 31)},
		{"quarterly mid-quarter", PostQuarterly, day(2024, 5, 10), day(2024, 3, 31)},
		{"quarterly on boundary", PostQuarterly, day(2024, 6, 30), day(2024, 6, 30)},
		{"annually mid-year", PostAnnually, day(2024, 7, 4), day(2023, 12, 31)},
		{"annually on boundary", PostAnnually, day(2024, 12, 31), day(2024, 12, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PrevPostingDate(tc.freq, tc.at))
		})
	}
}
