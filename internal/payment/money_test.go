package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		currency string
		amount   float64
		want     int64
	}{
		{"EUR", 50, 5000},
		{"eur", 19.99, 1999},
		{"CHF", 0.1 + 0.2, 30},
		{"JPY", 1500.4, 1500},
		{"KWD", 1.234, 1230},
		{"BHD", 1.236, 1240},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToMinorUnits(tt.currency, tt.amount), "%s %v", tt.currency, tt.amount)
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, 19.99, FromMinorUnits("USD", 1999))
	assert.Equal(t, 1500.0, FromMinorUnits("JPY", 1500))
	assert.Equal(t, 1.23, FromMinorUnits("KWD", 1230))
}
