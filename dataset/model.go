// Package dataset holds the static customers, orders, products and suppliers
// that every query reads, and exposes them as Arrow tables.
package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidDataset = errors.New("invalid dataset")

// Customer owns its orders. Region is nil when the customer has none.
type Customer struct {
	ID          string
	CompanyName string
	City        string
	Country     string
	PostalCode  string
	Phone       string
	Region      *string
	Orders      []Order
}

type Order struct {
	ID         int64
	CustomerID string
	Total      float64
	OrderDate  time.Time
}

type Product struct {
	Name         string
	Category     string
	UnitPrice    float64
	UnitsInStock int64
}

type Supplier struct {
	Name    string
	City    string
	Country string
}

// Turnover is the sum of the customer's order totals, 0 without orders.
func (c Customer) Turnover() float64 {
	var sum float64
	for _, o := range c.Orders {
		sum += o.Total
	}
	return sum
}

// Validate reports every violated invariant at once, wrapped in ErrInvalidDataset.
func Validate(customers []Customer, products []Product) error {
	var problems []string
	seen := make(map[string]struct{}, len(customers))
	orderIDs := make(map[int64]struct{})
	for _, c := range customers {
		if c.ID == "" {
			problems = append(problems, fmt.Sprintf("customer %q has no id", c.CompanyName))
		}
		if _, dup := seen[c.ID]; dup {
			problems = append(problems, fmt.Sprintf("customer id %s is not unique", c.ID))
		}
		seen[c.ID] = struct{}{}
		for _, o := range c.Orders {
			if o.CustomerID != c.ID {
				problems = append(problems, fmt.Sprintf("order %d belongs to %s but is listed under %s", o.ID, o.CustomerID, c.ID))
			}
			if o.Total < 0 {
				problems = append(problems, fmt.Sprintf("order %d has negative total %v", o.ID, o.Total))
			}
			if o.OrderDate.IsZero() {
				problems = append(problems, fmt.Sprintf("order %d has no order date", o.ID))
			}
			if _, dup := orderIDs[o.ID]; dup {
				problems = append(problems, fmt.Sprintf("order id %d is not unique", o.ID))
			}
			orderIDs[o.ID] = struct{}{}
		}
	}
	for _, p := range products {
		if p.UnitsInStock < 0 {
			problems = append(problems, fmt.Sprintf("product %q has negative stock %d", p.Name, p.UnitsInStock))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDataset, strings.Join(problems, "; "))
	}
	return nil
}
