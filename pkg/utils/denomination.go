package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Denominations of value, expressed in wei.
const (
	Wei   uint64 = 1
	Gwei  uint64 = 1_000_000_000
	Ether uint64 = 1_000_000_000_000_000_000
)

var ErrInvalidAmount = errors.New("invalid amount")

var units = map[string]struct {
	factor   uint64
	decimals int
}{
	"wei":   {Wei, 0},
	"gwei":  {Gwei, 9},
	"ether": {Ether, 18},
	"eth":   {Ether, 18},
}

// ParseAmount converts a human amount such as "1 gwei", "0.5ether" or
// "1000" (wei) into wei. Fractions finer than one wei are rejected, as are
// amounts that do not fit in a uint64.
func ParseAmount(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	number, unit := splitUnit(s)
	u, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidAmount, unit)
	}

	whole, frac, _ := strings.Cut(number, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: missing number in %q", ErrInvalidAmount, s)
	}
	if len(frac) > u.decimals {
		return 0, fmt.Errorf("%w: %q is finer than one wei", ErrInvalidAmount, s)
	}
	digits := whole + frac + strings.Repeat("0", u.decimals-len(frac))
	if strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, number)
	}

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || !n.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return n.Uint64(), nil
}

func splitUnit(s string) (number, unit string) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i < 0 {
		return s, "wei"
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i:])
}

// FormatAmount renders wei in the largest denomination that represents it
// exactly, e.g. 1500000000 → "1.5 gwei".
func FormatAmount(wei uint64) string {
	switch {
	case wei >= Ether:
		return formatIn(wei, Ether, "ether")
	case wei >= Gwei:
		return formatIn(wei, Gwei, "gwei")
	default:
		return fmt.Sprintf("%d wei", wei)
	}
}

func formatIn(wei, factor uint64, unit string) string {
	whole, rem := wei/factor, wei%factor
	if rem == 0 {
		return fmt.Sprintf("%d %s", whole, unit)
	}
	width := len(fmt.Sprint(factor)) - 1
	frac := strings.TrimRight(fmt.Sprintf("%0*d", width, rem), "0")
	return fmt.Sprintf("%d.%s %s", whole, frac, unit)
}
