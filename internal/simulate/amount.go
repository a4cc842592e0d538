package simulate

import (
	"fmt"
	"math/big"
	"strings"
)

// splitAmount splits a decimal string on its first '.' and validates both
// parts as plain digit runs. The integer part must be non-empty.
func splitAmount(amount string) (string, string, error) {
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" || !isDigits(whole) {
		return "", "", fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidInput, amount)
	}
	if frac != "" && !isDigits(frac) {
		return "", "", fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidInput, amount)
	}
	return whole, frac, nil
}

// ParseAmount converts a human decimal string into smallest units.
// More fractional digits than decimals is an error, never a truncation.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	whole, frac, err := splitAmount(amount)
	if err != nil {
		return nil, err
	}
	return toUnits(whole, frac, decimals, amount)
}

func toUnits(whole, frac string, decimals uint8, original string) (*big.Int, error) {
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrInvalidInput, original, decimals)
	}
	value, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", int(decimals)-len(frac)), 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidInput, original)
	}
	return value, nil
}

// FormatAmount renders smallest units as a decimal string with trailing
// fractional zeros (and a bare '.') removed.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	text := new(big.Rat).SetFrac(value, denom).FloatString(int(decimals))
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
