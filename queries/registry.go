// Package queries holds the query exercises. Each one is a pipeline of columnar
// operators over the dataset tables, listed in an explicit registry.
package queries

import (
	"errors"
	"fmt"
	"math"
	"time"

	"northwind-go/dataset"
	"northwind-go/logger"
	"northwind-go/operators"
	"northwind-go/operators/aggr"
	"northwind-go/operators/filter"

	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrUnknownQuery = func(id string) error {
		return fmt.Errorf("unknown query %q", id)
	}
	// ErrDivisionByZero reports an average taken over no rows.
	ErrDivisionByZero = errors.New("division by zero")
)

// Query is one exercise. Build returns a fresh, undrained pipeline.
type Query struct {
	ID          string
	Title       string
	Category    string
	Description string
	Build       func(t *dataset.Tables) (operators.Operator, error)
}

var registry = []Query{
	{
		ID: "numbers-below-five", Title: "Where: numbers below five", Category: "Restriction",
		Description: "Every element of a fixed integer sequence with a value less than 5.",
		Build:       buildNumbersBelowFive,
	},
	{
		ID: "products-in-stock", Title: "Where: products in stock", Category: "Restriction",
		Description: "Every product with at least one unit in stock.",
		Build:       buildProductsInStock,
	},
	{
		ID: "turnover-above", Title: "Customers above a turnover threshold", Category: "Aggregation",
		Description: "Customers whose order totals sum to more than the turnover threshold.",
		Build:       buildTurnoverAbove,
	},
	{
		ID: "customers-with-local-suppliers", Title: "Customers with local suppliers", Category: "Join",
		Description: "Customer and supplier pairs located in the same city and country.",
		Build:       buildCustomersWithLocalSuppliers,
	},
	{
		ID: "large-order-customers", Title: "Customers with a large order", Category: "Aggregation",
		Description: "Customers with any order above the large order threshold, with their largest order.",
		Build:       buildLargeOrderCustomers,
	},
	{
		ID: "first-order-date", Title: "First order date", Category: "Aggregation",
		Description: "The date of each customer's first order, for customers that ordered.",
		Build:       buildFirstOrderDate,
	},
	{
		ID: "first-order-by-month", Title: "First order date by month", Category: "Ordering",
		Description: "First order dates ordered by the month of the first order.",
		Build:       buildFirstOrderByMonth,
	},
	{
		ID: "first-order-by-year", Title: "First order date by year", Category: "Ordering",
		Description: "First order dates ordered by the year of the first order.",
		Build:       buildFirstOrderByYear,
	},
	{
		ID: "turnover-descending", Title: "Customers by turnover", Category: "Ordering",
		Description: "Customers that ordered, highest turnover first.",
		Build:       buildTurnoverDescending,
	},
	{
		ID: "clients-by-name", Title: "Customers by name", Category: "Ordering",
		Description: "Customers that ordered, ordered by company name.",
		Build:       buildClientsByName,
	},
	{
		ID: "wrong-clients", Title: "Customers with incomplete contact data", Category: "Restriction",
		Description: "Customers without a region, without an area code in the phone number, or with a non-numeric postal code.",
		Build:       buildWrongClients,
	},
	{
		ID: "products-by-category-stock-price", Title: "Products by category, stock and price", Category: "Ordering",
		Description: "Products ordered by category, then by whether they are in stock, then by unit price.",
		Build:       buildProductsByCategoryStockPrice,
	},
	{
		ID: "price-buckets", Title: "Products by price bucket", Category: "Grouping",
		Description: "Products classified as Cheap, Reasonable or Expensive by unit price.",
		Build:       buildPriceBuckets,
	},
	{
		ID: "city-statistics", Title: "Average revenue and intensity per city", Category: "Grouping",
		Description: "Per city: average order total and average number of orders per customer.",
		Build:       buildCityStatistics,
	},
	{
		ID: "monthly-intensity", Title: "Average orders per month", Category: "Grouping",
		Description: "Orders per calendar month over all years, divided by the span of years.",
		Build:       buildMonthlyIntensity,
	},
	{
		ID: "yearly-orders", Title: "Orders per year", Category: "Grouping",
		Description: "Number of orders placed in each year.",
		Build:       buildYearlyOrders,
	},
}

// Registry lists every query in exercise order.
func Registry() []Query {
	return append([]Query(nil), registry...)
}

func Lookup(id string) (Query, error) {
	for _, q := range registry {
		if q.ID == id {
			return q, nil
		}
	}
	return Query{}, ErrUnknownQuery(id)
}

// Run builds q over t and materializes the whole result.
func Run(q Query, t *dataset.Tables) (*operators.RecordBatch, error) {
	log := logger.Component("queries")
	start := time.Now()
	op, err := q.Build(t)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", q.ID, err)
	}
	rb, err := operators.Collect(op, memory.NewGoAllocator())
	if cerr := op.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", q.ID, err)
	}
	log.Debug("query finished", "query", q.ID, "rows", rb.RowCount, "elapsed", time.Since(start))
	return rb, nil
}

// Limit caps a pipeline at n rows. A pipeline that ends in a sort is turned
// into a top-k sort; anything else gets a LimitExec on top.
func Limit(op operators.Operator, n uint64) (operators.Operator, error) {
	if s, ok := op.(*aggr.SortExec); ok && n <= math.MaxUint16 {
		return s.TopK(uint16(n))
	}
	return filter.NewLimitExec(op, n)
}
