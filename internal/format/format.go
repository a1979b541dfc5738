// Package format renders money, percentages, and dates for API
// responses and chart labels.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/Rhymond/go-money"
)

// Money renders a dollar amount with currency symbol and separators,
// for example "$1,234.56" or "-$12.30".
func Money(amount float64) string {
	cents := int64(math.Round(amount * 100))
	return money.New(cents, money.USD).Display()
}

// MoneyCompact renders a dollar amount abbreviated for tight spaces,
// for example "$1.2K" or "$3.4M". Small amounts fall back to Money.
func MoneyCompact(amount float64) string {
	abs := math.Abs(amount)
	sign := ""
	if amount < 0 {
		sign = "-"
	}

	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.1fB", sign, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.1fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.1fK", sign, abs/1e3)
	default:
		return Money(amount)
	}
}

// Percent renders a signed percentage with two decimal places,
// for example "+3.21%" or "-0.50%".
func Percent(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// Date renders a time as YYYY-MM-DD
func Date(t time.Time) string {
	return t.Format("2006-01-02")
}
