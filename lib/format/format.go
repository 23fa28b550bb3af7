package format

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// USD renders a price the way US-dollar amounts are displayed, with comma
// thousand separators. Alert text always carries at least two decimals; small
// prices get more so they stay readable.
func USD(price decimal.Decimal) string {
	decimals := 6

	v := price.InexactFloat64()
	if v >= 1.2 {
		decimals = 2
	} else if v < 0.00001 {
		decimals = 8
	}

	return printer.Sprintf("%.*f", decimals, v)
}

// Percent renders the absolute percent change to two decimal places.
func Percent(change decimal.Decimal) string {
	return change.Abs().StringFixed(2)
}

// RelTime renders a timestamp as a relative phrase for status output,
// e.g. "3 minutes ago". The zero time reads as "never".
func RelTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
