package format

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/fillesume/storefront/internal/domain"
)

var symbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"JPY": "¥",
}

// Money formats an amount the way the storefront shows prices: the currency symbol
// glued to the grouped major units, e.g. "€1,280.00". Unknown currencies fall back to
// "CODE 12.00".
func Money(m domain.Money) string {
	code := strings.ToUpper(strings.TrimSpace(m.Currency))
	if code == "" {
		code = domain.DefaultCurrency
	}
	scale := domain.Scale(code)
	value := float64(m.Minor) / math.Pow10(scale)
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	printer := message.NewPrinter(language.English)
	digits := printer.Sprint(number.Decimal(value, number.Scale(scale)))
	if symbol, ok := symbols[code]; ok {
		return sign + symbol + digits
	}
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
	}
	return fmt.Sprintf("%s%s %s", sign, code, digits)
}

// Symbol returns the display symbol for a currency code, or the code itself.
func Symbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if symbol, ok := symbols[code]; ok {
		return symbol
	}
	return code
}

// Amount parses and formats a decimal string. Unparsable input is returned as-is after
// the currency symbol.
func Amount(amount, code string) string {
	m, err := domain.ParseMoney(amount, code)
	if err != nil {
		return strings.TrimSpace(Symbol(code) + " " + amount)
	}
	return Money(m)
}
