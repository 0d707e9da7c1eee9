package entity

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal price string ("19.99", "$1999.00") into
// integer minor currency units. This is the only place in the service where
// display strings become money; everything downstream works with int64 cents.
// Extra fractional digits are truncated, never rounded.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}

	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}

	var units int64
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
		units = units*10 + int64(r-'0')
		if units < 0 {
			return 0, ErrInvalidAmount
		}
	}

	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}

	// Truncate beyond cents. "19.999" pays 19.99, never 20.00.
	if len(fracPart) > 2 {
		fracPart = fracPart[:2]
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	cents := int64(fracPart[0]-'0')*10 + int64(fracPart[1]-'0')
	total := units*100 + cents
	if total < 0 {
		return 0, ErrInvalidAmount
	}
	return total, nil
}

// FormatAmount renders minor units back to the display string ParseAmount
// accepted: FormatAmount(1999) == "19.99".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
