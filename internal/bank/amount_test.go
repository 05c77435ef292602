package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Run("accepts valid inputs", func(t *testing.T) {
		cases := map[string]int64{
			"500":      50000,
			"500.5":    50050,
			"500.50":   50050,
			"0.01":     1,
			"  12.34 ": 1234,
			"1":        100,
		}
		for input, want := range cases {
			got, err := ParseAmount(input)
			require.NoError(t, err, "input %q", input)
			assert.Equal(t, want, got, "input %q", input)
		}
	})

	t.Run("rejects invalid inputs", func(t *testing.T) {
		for _, input := range []string{
			"", "abc", "-5", "+5", "0", "0.00", "1.234", "1.", ".50",
			"1,50", "1e3", "92233720368547758.08",
		} {
			_, err := ParseAmount(input)
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", input)
		}
	})
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1000.00", FormatAmount(100000))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "12.34", FormatAmount(1234))
	assert.Equal(t, "-3.50", FormatAmount(-350))
}
