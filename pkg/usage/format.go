package usage

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatUSD renders a dollar amount with 5 decimal places
func FormatUSD(v float64) string {
	return fmt.Sprintf("$%.5f", v)
}

// FormatINR renders a rupee amount with 2 decimal places
func FormatINR(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}

// FormatNumber renders a count with thousands separators
func FormatNumber(n int) string {
	return humanize.Comma(int64(n))
}
