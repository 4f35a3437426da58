package flight

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var priceRegex = regexp.MustCompile(`^\$?(\d[\d,]*(?:\.\d+)?)\s*([A-Z]{3})?$`)

// Price is a provider price. The provider sends a bare number while cached
// results carry "<amount> <currency>"; both decode into Price.
type Price string

// FormatPrice renders amount and currency as "500 USD".
func FormatPrice(amount float64, currency string) Price {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if currency != "" {
		s += " " + currency
	}
	return Price(s)
}

// UnmarshalJSON accepts a JSON number or string.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Price(n.String())
	return nil
}

// Amount parses the numeric part. ok is false when the price is empty or
// malformed.
func (p Price) Amount() (amount float64, ok bool) {
	m := priceRegex.FindStringSubmatch(strings.TrimSpace(string(p)))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Currency returns the ISO currency suffix, if any.
func (p Price) Currency() string {
	m := priceRegex.FindStringSubmatch(strings.TrimSpace(string(p)))
	if m == nil {
		return ""
	}
	return m[2]
}
