package bank

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amounts are carried as int64 hundredths of the currency unit.

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts user input like "500", "500.5" or "500.00" into
// hundredths. Anything non-numeric, non-positive, or with more than two
// decimal places is an input error.
func ParseAmount(input string) (int64, error) {
	text := strings.TrimSpace(input)
	if text == "" || strings.HasPrefix(text, "-") || strings.HasPrefix(text, "+") {
		return 0, ErrInvalidAmount
	}

	whole, fraction, hasFraction := strings.Cut(text, ".")
	if whole == "" {
		return 0, ErrInvalidAmount
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	var cents int64
	if hasFraction {
		if fraction == "" || len(fraction) > 2 {
			return 0, ErrInvalidAmount
		}
		cents, err = strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		if len(fraction) == 1 {
			cents *= 10
		}
	}

	const maxUnits = (1<<63 - 1) / 100
	if units > maxUnits-1 {
		return 0, ErrInvalidAmount
	}

	amount := units*100 + cents
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// FormatAmount renders hundredths as a fixed two-decimal string.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
