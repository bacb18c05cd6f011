package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// DefaultCurrency is the storefront currency when the backend omits one.
const DefaultCurrency = "EUR"

// ErrInvalidAmount reports an unparsable decimal amount.
var ErrInvalidAmount = errors.New("domain: invalid amount")

// Money is an amount in minor units together with its ISO currency. Amount mirrors the
// decimal string the commerce backend reports so the browser can display it verbatim.
type Money struct {
	Amount   string `json:"amount"`
	Minor    int64  `json:"minor"`
	Currency string `json:"currencyCode"`
}

// NewMoney builds a Money value from minor units.
func NewMoney(minor int64, code string) Money {
	code = normalizeCurrency(code)
	return Money{Amount: formatMinor(minor, Scale(code)), Minor: minor, Currency: code}
}

// ParseMoney parses a decimal amount such as "10", "10.5" or "280.00".
func ParseMoney(amount, code string) (Money, error) {
	code = normalizeCurrency(code)
	scale := Scale(code)
	minor, err := parseMinor(strings.TrimSpace(amount), scale)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(minor, code), nil
}

// Times multiplies by an integer quantity.
func (m Money) Times(n int) Money {
	return NewMoney(m.Minor*int64(n), m.Currency)
}

// Plus adds two amounts of the same currency. A zero-valued receiver adopts the other currency.
func (m Money) Plus(other Money) Money {
	code := m.Currency
	if code == "" {
		code = other.Currency
	}
	return NewMoney(m.Minor+other.Minor, code)
}

// Float returns the major-unit value, used for range filtering.
func (m Money) Float() float64 {
	return float64(m.Minor) / math.Pow10(Scale(m.Currency))
}

// Scale returns the number of minor digits for an ISO currency code, two when unknown.
func Scale(code string) int {
	unit, err := currency.ParseISO(normalizeCurrency(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

func parseMinor(amount string, scale int) (int64, error) {
	if amount == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	neg := strings.HasPrefix(amount, "-")
	amount = strings.TrimPrefix(amount, "-")
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > scale {
		for _, c := range frac[scale:] {
			if c != '0' {
				return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, scale)
			}
		}
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	var cents int64
	if frac != "" {
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
		}
	}
	minor := units*int64(math.Pow10(scale)) + cents
	if neg {
		minor = -minor
	}
	return minor, nil
}

func formatMinor(minor int64, scale int) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	s := strconv.FormatInt(minor, 10)
	if scale > 0 {
		if len(s) <= scale {
			s = strings.Repeat("0", scale-len(s)+1) + s
		}
		s = s[:len(s)-scale] + "." + s[len(s)-scale:]
	}
	if neg {
		return "-" + s
	}
	return s
}
