package covenant

import (
	"math/big"
	"strings"
)

var (
	bigHundred = big.NewInt(100)
	bigTen     = big.NewInt(10)
	bigNano    = big.NewInt(1_000_000_000)
)

// FormatDecimal renders a fixed-point quantity: the value is interpreted as
// an integer scaled by 10^decimals. Trailing fractional zeros are stripped
// and the decimal point is omitted when nothing remains after it.
func FormatDecimal(v *big.Int, decimals int) string {
	negative := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	if decimals <= 0 {
		if negative {
			return "-" + abs.String()
		}
		return abs.String()
	}

	raw := abs.String()
	if len(raw) < decimals+1 {
		raw = strings.Repeat("0", decimals+1-len(raw)) + raw
	}
	whole := raw[:len(raw)-decimals]
	fraction := strings.TrimRight(raw[len(raw)-decimals:], "0")

	result := whole
	if fraction != "" {
		result = whole + "." + fraction
	}
	if negative {
		return "-" + result
	}
	return result
}

// FormatXecFromSats renders satoshis as XEC (2 decimal places).
func FormatXecFromSats(sats *big.Int) string {
	return FormatDecimal(sats, 2)
}

// FormatTokenAmount renders token atoms at the token's decimal precision.
func FormatTokenAmount(atoms *big.Int, decimals int) string {
	return FormatDecimal(atoms, decimals)
}

// FormatXecPerToken renders the per-token unit price in XEC with at least
// four fractional digits, zero padded and never stripped below four, so
// price displays stay visually stable.
func FormatXecPerToken(totalSats, sellAtoms *big.Int, decimals int) string {
	if sellAtoms == nil || sellAtoms.Sign() == 0 {
		return "0.0000"
	}

	// (totalSats / 100) / (sellAtoms / 10^decimals), scaled by 10^6 to keep
	// six fractional digits before formatting.
	scale := new(big.Int).Exp(bigTen, big.NewInt(6), nil)
	numerator := new(big.Int).Exp(bigTen, big.NewInt(int64(decimals)), nil)
	numerator.Mul(numerator, totalSats)
	numerator.Mul(numerator, scale)
	denominator := new(big.Int).Mul(bigHundred, sellAtoms)
	scaled := numerator.Quo(numerator, denominator)

	fixed := FormatDecimal(scaled, 6)
	whole, fraction, found := strings.Cut(fixed, ".")
	if !found {
		return fixed + ".0000"
	}
	if len(fraction) < 4 {
		fraction = fraction + strings.Repeat("0", 4-len(fraction))
	}
	return whole + "." + fraction
}
