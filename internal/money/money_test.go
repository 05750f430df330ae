package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name string
		cost string
		want int64
	}{
		{name: "whole rupees", cost: "100", want: 10000},
		{name: "two decimals", cost: "249.99", want: 24999},
		{name: "one decimal", cost: "10.5", want: 1050},
		{name: "boundary half rounds up", cost: "19.995", want: 2000},
		{name: "just below half rounds down", cost: "19.994", want: 1999},
		{name: "extra precision", cost: "0.126", want: 13},
		{name: "smallest unit", cost: "0.01", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToMinorUnits(decimal.RequireFromString(tt.cost))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	// Для любой суммы, представимой двумя знаками, обратное деление на 100
	// восстанавливает исходное значение.
	for _, cost := range []string{"0.01", "1.00", "19.99", "249.50", "999999.99"} {
		c := decimal.RequireFromString(cost)
		back := FromMinorUnits(ToMinorUnits(c))
		assert.True(t, back.Equal(c), "round trip of %s got %s", c, back)
	}
}

func TestRoundToMajor(t *testing.T) {
	got := RoundToMajor(decimal.RequireFromString("19.995"))
	assert.True(t, got.Equal(decimal.RequireFromString("20.00")), "got %s", got)
}
