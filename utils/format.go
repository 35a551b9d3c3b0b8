package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders base units with thousands separators for log lines.
func FormatAmount(amount uint64, asset string) string {
	return amountPrinter.Sprintf("%d %s", amount, asset)
}
