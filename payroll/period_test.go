package payroll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tierpay/payroll"
	"github.com/warp/tierpay/payroll/store"
)

func TestParseDate_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-03-10", "2025-03-10"},
		{"2025-03-10T14:30:00", "2025-03-10"},
		{"03/10/2025", "2025-03-10"},
		{"3/9/2025", "2025-03-09"},
		{" 2025-03-10 ", "2025-03-10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := payroll.ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}

	_, err := payroll.ParseDate("not a date")
	assert.Error(t, err)
}

func TestPayPeriod_Days(t *testing.T) {
	p := payroll.PayPeriod{Start: payroll.NewDate(2025, 2, 27), End: payroll.NewDate(2025, 3, 2)}

	days := p.Days()

	require.Len(t, days, 4)
	assert.Equal(t, "2025-02-28", days[1].String())
	assert.True(t, p.Contains(payroll.NewDate(2025, 3, 1)))
	assert.False(t, p.Contains(payroll.NewDate(2025, 3, 3)))
}

func TestPayPeriod_Validate(t *testing.T) {
	bad := payroll.PayPeriod{Start: payroll.NewDate(2025, 3, 2), End: payroll.NewDate(2025, 3, 1)}
	assert.ErrorIs(t, bad.Validate(), payroll.ErrValidation)

	tz := payroll.PayPeriod{Start: payroll.NewDate(2025, 3, 1), End: payroll.NewDate(2025, 3, 1), Timezone: "Mars/Olympus"}
	assert.ErrorIs(t, tz.Validate(), payroll.ErrValidation)

	ok := payroll.PayPeriod{Start: payroll.NewDate(2025, 3, 1), End: payroll.NewDate(2025, 3, 15), Timezone: "America/Chicago"}
	assert.NoError(t, ok.Validate())

	leap := payroll.PayPeriod{Start: payroll.NewDate(2024, 1, 1), End: payroll.NewDate(2024, 12, 31)}
	assert.NoError(t, leap.Validate())

	long := payroll.PayPeriod{Start: payroll.NewDate(2, 1, 1), End: payroll.NewDate(9999, 12, 31)}
	assert.ErrorIs(t, long.Validate(), payroll.ErrValidation)
}

func TestDate_CountThrough(t *testing.T) {
	start := payroll.NewDate(2025, 2, 27)

	assert.Equal(t, 4, start.CountThrough(payroll.NewDate(2025, 3, 2)))
	assert.Equal(t, 1, start.CountThrough(start))
	assert.Equal(t, 0, start.CountThrough(payroll.NewDate(2025, 2, 26)))
	assert.Equal(t, len(start.DaysThrough(payroll.NewDate(2026, 2, 27))), start.CountThrough(payroll.NewDate(2026, 2, 27)))

	// Spans far beyond time.Duration still count exactly
	assert.Equal(t, 3652059, payroll.NewDate(1, 1, 1).CountThrough(payroll.NewDate(9999, 12, 31)))
}

func TestFindCovering_FallsBackToTransientUTC(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.SavePayPeriod(ctx, payroll.PayPeriod{
		ID: "p1", Start: payroll.NewDate(2025, 3, 1), End: payroll.NewDate(2025, 3, 15), Timezone: "America/Chicago",
	}))

	// Covered range resolves to the stored period
	p, err := payroll.FindCovering(ctx, s, payroll.NewDate(2025, 3, 3), payroll.NewDate(2025, 3, 9))
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodID("p1"), p.ID)

	// Uncovered range gets a transient period spanning exactly the request
	p, err = payroll.FindCovering(ctx, s, payroll.NewDate(2025, 3, 10), payroll.NewDate(2025, 3, 20))
	require.NoError(t, err)
	assert.True(t, p.Transient())
	assert.Equal(t, "UTC", p.Timezone)
	assert.Equal(t, "2025-03-10", p.Start.String())
	assert.Equal(t, "2025-03-20", p.End.String())
}
