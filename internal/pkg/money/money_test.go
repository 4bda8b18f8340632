package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want Cents
	}{
		{in: "1.234,50 €", want: 123450},
		{in: "97€", want: 9700},
		{in: "€ 1.500", want: 150000},
		{in: "49,9", want: 4990},
		{in: "  300 ", want: 30000},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	for _, in := range []string{"", "gratis", "€"} {
		_, err := ParsePrice(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1234,5")
	require.NoError(t, err)
	assert.Equal(t, Cents(123450), got)

	got, err = ParseAmount("90.99")
	require.NoError(t, err)
	assert.Equal(t, Cents(9099), got)

	got, err = ParseAmount("90 €")
	require.NoError(t, err)
	assert.Equal(t, Cents(9000), got)

	_, err = ParseAmount("-5")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPercentRoundsHalfAwayFromZero(t *testing.T) {
	// 6.4% of 10.05 = 0.6432 -> 0.64
	assert.Equal(t, Cents(64), Percent(1005, decimal.RequireFromString("6.4")))
	// 10% of 0.05 = 0.005 -> 0.01
	assert.Equal(t, Cents(1), Percent(5, decimal.NewFromInt(10)))
	assert.Equal(t, Cents(0), Percent(0, decimal.NewFromInt(50)))
}

func TestCentsString(t *testing.T) {
	assert.Equal(t, "1234.50", Cents(123450).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, Cents(500), Cents(-500).Abs())
	assert.Equal(t, Cents(90000), FromMajor(900))
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		in   string
		want Cents
	}{
		{in: "1.234,50", want: 123450},
		{in: "1234,50", want: 123450},
		{in: "90.99", want: 9099},
		{in: "1.234,50 €", want: 123450},
	}
	for _, tt := range tests {
		got, err := ParseInput(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, in := range []string{"-5", "gratis", "", "12abc", "1O0", "EUR 90", "1e3"} {
		_, err := ParseInput(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}
