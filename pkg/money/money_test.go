package money

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("25.00").Equal(FromMinorUnits(2500)))
	assert.True(t, decimal.RequireFromString("0.01").Equal(FromMinorUnits(1)))
	assert.True(t, decimal.Zero.Equal(FromMinorUnits(0)))
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"187.50", 18750},
		{"25", 2500},
		{"0.01", 1},
		{"10.005", 1001},
		{"10.004", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMinorUnits_Overflow(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("1e20"))
	assert.ErrorIs(t, err, ErrMinorOverflow)
}

func TestParsePositive(t *testing.T) {
	d, err := ParsePositive("25.50")
	require.NoError(t, err)
	assert.Equal(t, "25.5", d.String())

	_, err = ParsePositive("0")
	assert.ErrorIs(t, err, ErrNotPositive)

	_, err = ParsePositive("-3.00")
	assert.ErrorIs(t, err, ErrNotPositive)

	_, err = ParsePositive("1.234")
	assert.ErrorIs(t, err, ErrTooPrecise)

	_, err = ParsePositive("abc")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestValidatePositive_TrailingZerosAllowed(t *testing.T) {
	assert.NoError(t, ValidatePositive(decimal.RequireFromString("12.500")))
}

func TestHoursTimesRate(t *testing.T) {
	// 09:00-17:00 with a 30 minute break.
	got := HoursTimesRate(8*time.Hour-30*time.Minute, decimal.RequireFromString("25.00"))
	assert.Equal(t, "187.5", got.String())

	minor, err := ToMinorUnits(got)
	require.NoError(t, err)
	assert.Equal(t, int64(18750), minor)

	// 20 minutes at 10.00 is 3.333.. -> 3.33
	assert.Equal(t, "3.33", HoursTimesRate(20*time.Minute, decimal.RequireFromString("10")).String())

	// Seconds count: 1h0m36s at 100.00 is 101.00.
	assert.Equal(t, "101", HoursTimesRate(time.Hour+36*time.Second, decimal.RequireFromString("100")).String())
}
