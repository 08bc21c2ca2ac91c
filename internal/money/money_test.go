package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30,00", 30.0},
		{"30.00", 30.0},
		{"30", 30.0},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"30,00 €", 30.0},
		{"€ 30,00", 30.0},
		{"1,234,567", 1234567.0},
		{"1.234.567,89", 1234567.89},
		{"", 0.0},
		{"abc", 0.0},
		{"  20 ", 20.0},
		{"-5,50", -5.5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToFloat(tc.in), "input %q", tc.in)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 20.0, Round(19.999999999))
	assert.Equal(t, 3.33, Round(3.333))
	assert.Equal(t, 0.0, Round(0))
	assert.Equal(t, 1.01, Round(1.005))
}

func TestToCanonicalString(t *testing.T) {
	assert.Equal(t, "30.00", ToCanonicalString(ToFloat("30,00")))
	assert.Equal(t, "1234.56", ToCanonicalString(ToFloat("1.234,56")))
	assert.Equal(t, "0.00", ToCanonicalString(0))
	assert.Equal(t, "20.00", ToCanonicalString(19.999999999))
}
