package dataset

import (
	"northwind-go/operators"
	"northwind-go/operators/project"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	CustomersSchema = operators.NewRecordBatchBuilder().SchemaBuilder.
		WithField("customer_id", arrow.BinaryTypes.String, false).
		WithField("company_name", arrow.BinaryTypes.String, false).
		WithField("city", arrow.BinaryTypes.String, false).
		WithField("country", arrow.BinaryTypes.String, false).
		WithField("postal_code", arrow.BinaryTypes.String, true).
		WithField("phone", arrow.BinaryTypes.String, false).
		WithField("region", arrow.BinaryTypes.String, true).
		Build()
	OrdersSchema = operators.NewRecordBatchBuilder().SchemaBuilder.
		WithField("order_id", arrow.PrimitiveTypes.Int64, false).
		WithField("customer_id", arrow.BinaryTypes.String, false).
		WithField("total", arrow.PrimitiveTypes.Float64, false).
		WithField("order_date", arrow.FixedWidthTypes.Date32, false).
		Build()
	ProductsSchema = operators.NewRecordBatchBuilder().SchemaBuilder.
		WithField("product_name", arrow.BinaryTypes.String, false).
		WithField("category", arrow.BinaryTypes.String, false).
		WithField("unit_price", arrow.PrimitiveTypes.Float64, false).
		WithField("units_in_stock", arrow.PrimitiveTypes.Int64, false).
		Build()
	SuppliersSchema = operators.NewRecordBatchBuilder().SchemaBuilder.
		WithField("supplier_name", arrow.BinaryTypes.String, false).
		WithField("city", arrow.BinaryTypes.String, false).
		WithField("country", arrow.BinaryTypes.String, false).
		Build()
)

// Tables is a validated, read-only snapshot of the dataset. Every table
// accessor returns a new operator, since operators can only be drained once.
type Tables struct {
	customers []Customer
	products  []Product
	suppliers []Supplier
}

func NewTables(customers []Customer, products []Product, suppliers []Supplier) (*Tables, error) {
	if err := Validate(customers, products); err != nil {
		return nil, err
	}
	return &Tables{
		customers: cloneCustomers(customers),
		products:  append([]Product(nil), products...),
		suppliers: append([]Supplier(nil), suppliers...),
	}, nil
}

// Default returns the built-in fixtures.
func Default() *Tables {
	t, err := NewTables(fixtureCustomers(), fixtureProducts(), fixtureSuppliers())
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tables) CustomerList() []Customer { return cloneCustomers(t.customers) }
func (t *Tables) ProductList() []Product   { return append([]Product(nil), t.products...) }
func (t *Tables) SupplierList() []Supplier { return append([]Supplier(nil), t.suppliers...) }

func (t *Tables) Customers() (operators.Operator, error) {
	n := len(t.customers)
	ids, names, cities, countries, phones := make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	postal, regions := make([]*string, n), make([]*string, n)
	for i, c := range t.customers {
		ids[i], names[i], cities[i], countries[i], phones[i] = c.ID, c.CompanyName, c.City, c.Country, c.Phone
		if c.PostalCode != "" {
			pc := c.PostalCode
			postal[i] = &pc
		}
		regions[i] = c.Region
	}
	return project.NewInMemoryProjectExec(fieldNames(CustomersSchema),
		[]any{ids, names, cities, countries, postal, phones, regions})
}

// Orders flattens every customer's orders, customers in dataset order and each
// customer's orders in their stored order.
func (t *Tables) Orders() (operators.Operator, error) {
	var (
		ids       []int64
		customers []string
		totals    []float64
		dates     []arrow.Date32
	)
	for _, c := range t.customers {
		for _, o := range c.Orders {
			ids = append(ids, o.ID)
			customers = append(customers, c.ID)
			totals = append(totals, o.Total)
			dates = append(dates, arrow.Date32FromTime(o.OrderDate))
		}
	}
	if len(ids) == 0 {
		ids, customers, totals, dates = []int64{}, []string{}, []float64{}, []arrow.Date32{}
	}
	return project.NewInMemoryProjectExec(fieldNames(OrdersSchema), []any{ids, customers, totals, dates})
}

func (t *Tables) Products() (operators.Operator, error) {
	n := len(t.products)
	names, categories := make([]string, n), make([]string, n)
	prices, stock := make([]float64, n), make([]int64, n)
	for i, p := range t.products {
		names[i], categories[i], prices[i], stock[i] = p.Name, p.Category, p.UnitPrice, p.UnitsInStock
	}
	return project.NewInMemoryProjectExec(fieldNames(ProductsSchema), []any{names, categories, prices, stock})
}

func (t *Tables) Suppliers() (operators.Operator, error) {
	n := len(t.suppliers)
	names, cities, countries := make([]string, n), make([]string, n), make([]string, n)
	for i, s := range t.suppliers {
		names[i], cities[i], countries[i] = s.Name, s.City, s.Country
	}
	return project.NewInMemoryProjectExec(fieldNames(SuppliersSchema), []any{names, cities, countries})
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}

func cloneCustomers(in []Customer) []Customer {
	out := make([]Customer, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Orders = append([]Order(nil), c.Orders...)
		if c.Region != nil {
			r := *c.Region
			out[i].Region = &r
		}
	}
	return out
}
