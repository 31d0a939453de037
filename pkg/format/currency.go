// Package format renders money and rates for reports.
package format

import (
	"strings"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/shopspring/decimal"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(constants.DecimalPrecision)
	if d.IsNegative() {
		return "-$" + group(d.Abs())
	}
	return "$" + group(d)
}

// Plain returns the amount rounded to cents without separators (e.g., "-1234.56").
func Plain(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(constants.DecimalPrecision)
}

func group(value decimal.Decimal) string {
	formatted := value.StringFixed(constants.DecimalPrecision)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + "." + decPart
}
