package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBigInt converts a raw integer amount to its decimal string using exact integer division.
// Trailing fractional zeros are trimmed. Nothing is rounded: the result is always the floor.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals uint8) string {
	return FormatBigIntPrecision(amount, decimals, int(decimals))
}

// FormatBigIntPrecision is FormatBigInt with at most maxFraction fractional digits, truncated.
func FormatBigIntPrecision(amount *big.Int, decimals uint8, maxFraction int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	abs := new(big.Int).Abs(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	fracStr := frac.String()
	if pad := int(decimals) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	if maxFraction >= 0 && maxFraction < len(fracStr) {
		fracStr = fracStr[:maxFraction]
	}
	fracStr = strings.TrimRight(fracStr, "0")

	var sb strings.Builder
	if amount.Sign() < 0 {
		sb.WriteByte('-')
	}
	sb.WriteString(whole.String())
	if fracStr != "" {
		sb.WriteByte('.')
		sb.WriteString(fracStr)
	}
	out := sb.String()
	if out == "-0" {
		return "0"
	}
	return out
}

// ParseDisplay converts a decimal display string back to the raw integer amount.
// Digits beyond the token's decimals are truncated, matching FormatBigInt.
func ParseDisplay(display string, decimals uint8) (*big.Int, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(display)
	if err != nil {
		return nil, fmt.Errorf("invalid display amount %q: %w", display, err)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// ToDecimal converts a raw amount into display units as a decimal.Decimal.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ScaledUnits returns units * 10^decimals, e.g. ScaledUnits(1000, 18) for an airdrop of 1000 tokens.
func ScaledUnits(units int64, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(units), scale)
}
