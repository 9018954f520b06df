package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"northwind-go/logger"
	"northwind-go/operators"
	"northwind-go/operators/project"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

const (
	CustomersFile = "customers.csv"
	OrdersFile    = "orders.csv"
	ProductsFile  = "products.csv"
	SuppliersFile = "suppliers.csv"
)

// LoadCSV reads the four table files from dir. Headers name the columns of the
// matching schema; empty or NULL cells are null. Orders are attached to their
// customers in file order.
func LoadCSV(dir string) (*Tables, error) {
	log := logger.Component("dataset")
	customers, err := readTable(filepath.Join(dir, CustomersFile), CustomersSchema)
	if err != nil {
		return nil, err
	}
	defer operators.ReleaseArrays(customers.Columns)
	orders, err := readTable(filepath.Join(dir, OrdersFile), OrdersSchema)
	if err != nil {
		return nil, err
	}
	defer operators.ReleaseArrays(orders.Columns)
	products, err := readTable(filepath.Join(dir, ProductsFile), ProductsSchema)
	if err != nil {
		return nil, err
	}
	defer operators.ReleaseArrays(products.Columns)
	suppliers, err := readTable(filepath.Join(dir, SuppliersFile), SuppliersSchema)
	if err != nil {
		return nil, err
	}
	defer operators.ReleaseArrays(suppliers.Columns)

	cs := decodeCustomers(customers)
	index := make(map[string]int, len(cs))
	for i, c := range cs {
		index[c.ID] = i
	}
	for _, o := range decodeOrders(orders) {
		i, ok := index[o.CustomerID]
		if !ok {
			return nil, fmt.Errorf("%w: order %d references unknown customer %s", ErrInvalidDataset, o.ID, o.CustomerID)
		}
		cs[i].Orders = append(cs[i].Orders, o)
	}
	log.Debug("dataset loaded", "dir", dir, "customers", customers.RowCount, "orders", orders.RowCount,
		"products", products.RowCount, "suppliers", suppliers.RowCount)
	return NewTables(cs, decodeProducts(products), decodeSuppliers(suppliers))
}

func readTable(path string, schema *arrow.Schema) (*operators.RecordBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := project.NewCSVSourceWithSchema(f, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	defer src.Close()
	rb, err := operators.Collect(src, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rb, nil
}

func stringAt(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	return col.(*array.String).Value(i)
}

func decodeCustomers(rb *operators.RecordBatch) []Customer {
	out := make([]Customer, rb.RowCount)
	regions := rb.Column("region")
	for i := range out {
		out[i] = Customer{
			ID:          stringAt(rb.Column("customer_id"), i),
			CompanyName: stringAt(rb.Column("company_name"), i),
			City:        stringAt(rb.Column("city"), i),
			Country:     stringAt(rb.Column("country"), i),
			PostalCode:  stringAt(rb.Column("postal_code"), i),
			Phone:       stringAt(rb.Column("phone"), i),
		}
		if !regions.IsNull(i) {
			r := stringAt(regions, i)
			out[i].Region = &r
		}
	}
	return out
}

func decodeOrders(rb *operators.RecordBatch) []Order {
	out := make([]Order, rb.RowCount)
	ids := rb.Column("order_id").(*array.Int64)
	totals := rb.Column("total").(*array.Float64)
	dates := rb.Column("order_date").(*array.Date32)
	for i := range out {
		out[i] = Order{
			ID:         ids.Value(i),
			CustomerID: stringAt(rb.Column("customer_id"), i),
			Total:      totals.Value(i),
			OrderDate:  dates.Value(i).ToTime(),
		}
	}
	return out
}

func decodeProducts(rb *operators.RecordBatch) []Product {
	out := make([]Product, rb.RowCount)
	prices := rb.Column("unit_price").(*array.Float64)
	stock := rb.Column("units_in_stock").(*array.Int64)
	for i := range out {
		out[i] = Product{
			Name:         stringAt(rb.Column("product_name"), i),
			Category:     stringAt(rb.Column("category"), i),
			UnitPrice:    prices.Value(i),
			UnitsInStock: stock.Value(i),
		}
	}
	return out
}

func decodeSuppliers(rb *operators.RecordBatch) []Supplier {
	out := make([]Supplier, rb.RowCount)
	for i := range out {
		out[i] = Supplier{
			Name:    stringAt(rb.Column("supplier_name"), i),
			City:    stringAt(rb.Column("city"), i),
			Country: stringAt(rb.Column("country"), i),
		}
	}
	return out
}

// WriteCSV writes t into dir in the layout LoadCSV reads.
func WriteCSV(dir string, t *Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var customerRows, orderRows [][]string
	for _, c := range t.customers {
		region := ""
		if c.Region != nil {
			region = *c.Region
		}
		customerRows = append(customerRows, []string{c.ID, c.CompanyName, c.City, c.Country, c.PostalCode, c.Phone, region})
		for _, o := range c.Orders {
			orderRows = append(orderRows, []string{
				strconv.FormatInt(o.ID, 10), c.ID,
				strconv.FormatFloat(o.Total, 'f', -1, 64),
				o.OrderDate.Format("2006-01-02"),
			})
		}
	}
	var productRows, supplierRows [][]string
	for _, p := range t.products {
		productRows = append(productRows, []string{p.Name, p.Category,
			strconv.FormatFloat(p.UnitPrice, 'f', -1, 64), strconv.FormatInt(p.UnitsInStock, 10)})
	}
	for _, s := range t.suppliers {
		supplierRows = append(supplierRows, []string{s.Name, s.City, s.Country})
	}
	files := []struct {
		name   string
		schema *arrow.Schema
		rows   [][]string
	}{
		{CustomersFile, CustomersSchema, customerRows},
		{OrdersFile, OrdersSchema, orderRows},
		{ProductsFile, ProductsSchema, productRows},
		{SuppliersFile, SuppliersSchema, supplierRows},
	}
	for _, f := range files {
		if err := writeCSVFile(filepath.Join(dir, f.name), fieldNames(f.schema), f.rows); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
