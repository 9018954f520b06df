package queries

import (
	"regexp"
	"strings"

	"northwind-go/config"
	"northwind-go/dataset"
)

const (
	Cheap      = "Cheap"
	Reasonable = "Reasonable"
	Expensive  = "Expensive"
)

var nonDigit = regexp.MustCompile(wrongPostalPattern)

// PriceBucket classifies a unit price with the configured bounds: at or above
// expensive_min is Expensive, strictly between cheap_max and expensive_min is
// Reasonable, anything else is Cheap.
func PriceBucket(price float64) string {
	q := config.GetConfig().Query
	switch {
	case price >= q.ExpensiveMin:
		return Expensive
	case price > q.CheapMax && price < q.ExpensiveMin:
		return Reasonable
	default:
		return Cheap
	}
}

// IsWrongClient reports whether c has no region, a phone number without an
// area code, or a postal code with a non-digit in it.
func IsWrongClient(c dataset.Customer) bool {
	return c.Region == nil ||
		!strings.HasPrefix(c.Phone, phoneAreaPrefix) ||
		(c.PostalCode != "" && nonDigit.MatchString(c.PostalCode))
}
