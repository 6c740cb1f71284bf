package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"serbian format with currency", "1.200,00 din", "1200.00"},
		{"us format with currency", "1,200.00 RSD", "1200.00"},
		{"plain integer", "474", "474"},
		{"integer with currency suffix", "474 RSD", "474"},
		{"comma as decimal separator", "1200,50", "1200.50"},
		{"comma as thousands separator", "1,200", "1200"},
		{"dot thousands comma decimal large", "12.345,67", "12345.67"},
		{"comma thousands dot decimal large", "12,345.67", "12345.67"},
		{"currency symbol prefix", "RSD 999,99", "999.99"},
		{"whitespace noise", "  1.500,00   din. ", "1500.00"},
		{"single digit", "5", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := ParsePrice(tt.input)
			require.NoError(t, err)
			assert.True(t, price.Equal(decimal.RequireFromString(tt.expected)),
				"ParsePrice(%q) = %s, want %s", tt.input, price, tt.expected)
		})
	}
}

func TestParsePriceFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"letters only", "abc"},
		{"currency only", "RSD"},
		{"bare comma", ","},
		{"bare dot", "."},
		{"ambiguous double dot", "1.200.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrice(tt.input)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}
