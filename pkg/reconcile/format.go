package reconcile

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Display layouts used by exports
const (
	FileDateLayout    = "2006-01-02"
	CountedAtLayout   = "2006-01-02 15:04"
	GeneratedAtLayout = "2006-01-02 15:04:05"
	SummaryDateLayout = "01/02/2006"
)

// FormatMoney renders an amount as "$1234.50"
// 金額を表示用文字列に変換
func FormatMoney(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// FormatMoneyDecimal renders a decimal amount as "$1234.50"
func FormatMoneyDecimal(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatPercent renders a percentage with one decimal place, e.g. "12.5%"
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "%"
}

// FormatQuantity renders a quantity without trailing zeros
func FormatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatOptionalQuantity renders nil as "0"
func FormatOptionalQuantity(v *float64) string {
	if v == nil {
		return "0"
	}
	return FormatQuantity(*v)
}

// FormatHours renders a duration in hours with one decimal place
func FormatHours(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "h"
}

// FormatCountedAt renders the counted timestamp or "N/A"
func FormatCountedAt(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format(CountedAtLayout)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// FormatPercentDecimal renders a decimal percentage with one decimal place
func FormatPercentDecimal(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}
