package utils

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands grouping, e.g. "$15,000.00".
// Non-USD amounts carry the currency code as a suffix.
func FormatMoney(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return moneyPrinter.Sprintf("$%.2f", amount)
	}
	return moneyPrinter.Sprintf("%.2f %s", amount, currency)
}
