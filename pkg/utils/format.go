// Package utils provides common formatting and time helpers for coinscan.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatExchangePrice formats an exchange price in USD. Sub-cent prices get
// 8 decimal places so micro-cap quotes stay readable; everything else gets 2.
// Both forms use thousands separators.
func FormatExchangePrice(price float64) string {
	if price < 0.01 {
		return "$" + groupThousands(price, 8)
	}
	return "$" + groupThousands(price, 2)
}

// FormatMarketPrice formats a market-data price in USD. Sub-cent prices get
// 8 plain decimal places; everything else 4 with thousands separators.
func FormatMarketPrice(price float64) string {
	if price < 0.01 {
		return fmt.Sprintf("$%.8f", price)
	}
	return "$" + groupThousands(price, 4)
}

// FormatVolumeUSD formats a quote-currency volume with 2 decimal places
// and thousands separators.
func FormatVolumeUSD(volume float64) string {
	return "$" + groupThousands(volume, 2)
}

// FormatPct formats a percentage change with 2 decimal places, e.g. "5.00%".
func FormatPct(pct float64) string {
	return fmt.Sprintf("%.2f%%", pct)
}

// groupThousands renders a non-negative number with the given number of
// decimal places and comma-separated thousands in the integer part.
func groupThousands(n float64, decimals int) string {
	negative := n < 0
	n = math.Abs(n)

	s := fmt.Sprintf("%.*f", decimals, n)
	intPart := s
	decPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, decPart = s[:i], s[i:]
	}

	// Insert commas every 3 digits from the right.
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
		if len(intPart) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(',')
		}
	}

	out := b.String() + decPart
	if negative {
		return "-" + out
	}
	return out
}
