package render

import (
	"math"
	"strconv"
	"strings"
)

// FormatUSD prints v as US currency with thousands separators: $1,234.50.
func FormatUSD(v float64) string {
	digits := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	whole, frac, _ := strings.Cut(digits, ".")

	var sb strings.Builder
	if v < 0 && digits != "0.00" {
		sb.WriteByte('-')
	}
	sb.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	if frac != "" {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sb.String()
}

// FormatNumber prints v in its shortest decimal form: 450, 150.5, 0.04.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
