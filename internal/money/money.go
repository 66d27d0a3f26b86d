package money

import "github.com/dustin/go-humanize"

// LineTotal returns qty * price. Inputs are expected to be non-negative and
// finite; the marketplace parse boundary enforces that, so no validation
// happens here.
func LineTotal(qty int, price float64) float64 {
	return float64(qty) * price
}

// FormatAmount renders an amount with thousands separators for display.
// Whole amounts print without a fraction; fractional amounts keep two digits.
// The formatted string is presentation only, never stored.
func FormatAmount(n float64) string {
	if n == float64(int64(n)) {
		return humanize.Comma(int64(n))
	}
	return humanize.CommafWithDigits(n, 2)
}
