package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad big int %s", s)
	return v
}

func TestFormatBigInt(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{"nil", nil, 18, "0"},
		{"zero", big.NewInt(0), 18, "0"},
		{"whole", mustBig(t, "1000000000000000000000"), 18, "1000"},
		{"fraction", mustBig(t, "1234500000000000000"), 18, "1.2345"},
		{"one wei", big.NewInt(1), 18, "0.000000000000000001"},
		{"no decimals", big.NewInt(42), 0, "42"},
		{"six decimals", big.NewInt(1500000), 6, "1.5"},
		{"negative", big.NewInt(-2500000), 6, "-2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBigInt(tt.amount, tt.decimals))
		})
	}
}

func TestFormatBigIntPrecisionTruncates(t *testing.T) {
	// 1.999999 with 2 places must floor to 1.99, never round up to 2.
	assert.Equal(t, "1.99", FormatBigIntPrecision(big.NewInt(1999999), 6, 2))
	assert.Equal(t, "0", FormatBigIntPrecision(big.NewInt(9), 6, 2))
	assert.Equal(t, "12", FormatBigIntPrecision(big.NewInt(12000001), 6, 4))
}

func TestParseDisplayRoundTrip(t *testing.T) {
	values := []string{
		"0",
		"1",
		"999999999999999999",
		"1000000000000000000000",
		"123456789012345678901234567890",
		"1000000000000000001",
	}
	for _, decimals := range []uint8{0, 6, 18} {
		for _, s := range values {
			raw := mustBig(t, s)
			got, err := ParseDisplay(FormatBigInt(raw, decimals), decimals)
			require.NoError(t, err)
			assert.Equal(t, 0, raw.Cmp(got), "decimals=%d value=%s got=%s", decimals, s, got)
		}
	}
}

func TestParseDisplayFloorsExtraDigits(t *testing.T) {
	got, err := ParseDisplay("1.0000009", 6)
	require.NoError(t, err)
	assert.Equal(t, "1000000", got.String())

	got, err = ParseDisplay("", 18)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Sign())

	_, err = ParseDisplay("abc", 18)
	assert.Error(t, err)
}

func TestTruncatedDisplayNeverOvershoots(t *testing.T) {
	// 999.9999 PLAY shown with 2 places is "999.99"; parsing it back stays below the 1000 threshold.
	raw := mustBig(t, "999999900000000000000")
	shown := FormatBigIntPrecision(raw, 18, 2)
	assert.Equal(t, "999.99", shown)

	parsed, err := ParseDisplay(shown, 18)
	require.NoError(t, err)
	assert.Equal(t, -1, parsed.Cmp(ScaledUnits(1000, 18)))
	assert.True(t, parsed.Cmp(raw) <= 0)
}

func TestToDecimal(t *testing.T) {
	d := ToDecimal(ScaledUnits(1000, 18), 18)
	assert.Equal(t, "1000", d.String())
	assert.True(t, ToDecimal(nil, 18).IsZero())
}
