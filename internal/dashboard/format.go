package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Change direction classes used by the card template.
const (
	ClassPositive = "positive"
	ClassNegative = "negative"
	ClassNeutral  = "neutral"
)

// NotAvailable is shown for absent percentages and ranks.
const NotAvailable = "N/A"

var (
	printer = message.NewPrinter(language.AmericanEnglish)

	one      = decimal.NewFromInt(1)
	million  = decimal.New(1, 6)
	billion  = decimal.New(1, 9)
	trillion = decimal.New(1, 12)
)

// FormatPrice renders values of at least one unit with thousands separators
// and two decimals, and smaller values with six decimals.
func FormatPrice(d decimal.Decimal) string {
	if d.GreaterThanOrEqual(one) {
		return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
	}
	return d.StringFixed(6)
}

// FormatLargeNumber abbreviates market caps and volumes with a T, B or M
// suffix. Below one million it falls back to grouped digits with at most three
// fraction digits.
func FormatLargeNumber(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(trillion):
		return d.Div(trillion).StringFixed(2) + "T"
	case d.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	}

	r := d.Round(3)
	places := 0
	if s := r.String(); strings.Contains(s, ".") {
		places = len(s) - strings.IndexByte(s, '.') - 1
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df", places), r.InexactFloat64())
}

// FormatPercentage renders a signed percentage with two decimals, or
// NotAvailable when the value is absent. Zero is shown as "+0.00%".
func FormatPercentage(nd decimal.NullDecimal) string {
	if !nd.Valid {
		return NotAvailable
	}

	fixed := nd.Decimal.StringFixed(2)
	switch {
	case nd.Decimal.Sign() >= 0:
		return "+" + fixed + "%"
	case !strings.HasPrefix(fixed, "-"):
		// negative values that round to zero keep their sign
		return "-" + fixed + "%"
	default:
		return fixed + "%"
	}
}

// ChangeClass maps a percentage change to its styling class. Absent values
// are neutral.
func ChangeClass(nd decimal.NullDecimal) string {
	if !nd.Valid {
		return ClassNeutral
	}
	switch nd.Decimal.Sign() {
	case 1:
		return ClassPositive
	case -1:
		return ClassNegative
	default:
		return ClassNeutral
	}
}

// FormatRank renders a market cap rank as "#n", or NotAvailable.
func FormatRank(rank *int) string {
	if rank == nil || *rank <= 0 {
		return NotAvailable
	}
	return "#" + strconv.Itoa(*rank)
}
