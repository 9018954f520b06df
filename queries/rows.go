package queries

import (
	"time"

	"northwind-go/dataset"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow/array"
)

type NumberRow struct {
	N int64
}

type ProductRow struct {
	Name         string
	Category     string
	UnitPrice    float64
	UnitsInStock int64
}

type CustomerRow struct {
	CustomerID  string
	CompanyName string
	City        string
	Country     string
	Turnover    float64
}

type CustomerSupplierRow struct {
	CustomerID   string
	CompanyName  string
	SupplierName string
	City         string
	Country      string
}

type MaxOrderRow struct {
	CompanyName   string
	MaxOrderTotal float64
}

type FirstOrderRow struct {
	CompanyName    string
	FirstOrderDate time.Time
}

type TurnoverRow struct {
	CompanyName string
	Turnover    float64
}

type ClientNameRow struct {
	CompanyName string
}

type WrongClientRow struct {
	CompanyName string
	PostalCode  string
	Phone       string
	Region      *string
}

type ProductStockRow struct {
	Name      string
	Category  string
	Exist     string
	UnitPrice float64
}

type PriceBucketRow struct {
	Name      string
	Bucket    string
	UnitPrice float64
}

type CityStatsRow struct {
	City             string
	AverageSum       float64
	AverageIntensity float64
}

type MonthIntensityRow struct {
	Month            string
	AverageIntensity float64
}

type YearCountRow struct {
	Year   int64
	Orders int64
}

func str(rb *operators.RecordBatch, name string, i int) string {
	c := rb.Column(name)
	if c.IsNull(i) {
		return ""
	}
	return c.(*array.String).Value(i)
}

func nullableStr(rb *operators.RecordBatch, name string, i int) *string {
	c := rb.Column(name)
	if c.IsNull(i) {
		return nil
	}
	v := c.(*array.String).Value(i)
	return &v
}

func f64(rb *operators.RecordBatch, name string, i int) float64 {
	return rb.Column(name).(*array.Float64).Value(i)
}

func i64(rb *operators.RecordBatch, name string, i int) int64 {
	return rb.Column(name).(*array.Int64).Value(i)
}

func date(rb *operators.RecordBatch, name string, i int) time.Time {
	return rb.Column(name).(*array.Date32).Value(i).ToTime()
}

func rows[T any](id string, t *dataset.Tables, decode func(rb *operators.RecordBatch, i int) T) ([]T, error) {
	q, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	rb, err := Run(q, t)
	if err != nil {
		return nil, err
	}
	defer operators.ReleaseArrays(rb.Columns)
	out := make([]T, rb.RowCount)
	for i := range out {
		out[i] = decode(rb, i)
	}
	return out, nil
}

func NumbersBelowFive(t *dataset.Tables) ([]NumberRow, error) {
	return rows("numbers-below-five", t, func(rb *operators.RecordBatch, i int) NumberRow {
		return NumberRow{N: i64(rb, "n", i)}
	})
}

func decodeProduct(rb *operators.RecordBatch, i int) ProductRow {
	return ProductRow{
		Name:         str(rb, "product_name", i),
		Category:     str(rb, "category", i),
		UnitPrice:    f64(rb, "unit_price", i),
		UnitsInStock: i64(rb, "units_in_stock", i),
	}
}

func ProductsInStock(t *dataset.Tables) ([]ProductRow, error) {
	return rows("products-in-stock", t, decodeProduct)
}

func TurnoverAbove(t *dataset.Tables) ([]CustomerRow, error) {
	return rows("turnover-above", t, func(rb *operators.RecordBatch, i int) CustomerRow {
		return CustomerRow{
			CustomerID:  str(rb, "customer_id", i),
			CompanyName: str(rb, "company_name", i),
			City:        str(rb, "city", i),
			Country:     str(rb, "country", i),
			Turnover:    f64(rb, "turnover", i),
		}
	})
}

func CustomersWithLocalSuppliers(t *dataset.Tables) ([]CustomerSupplierRow, error) {
	return rows("customers-with-local-suppliers", t, func(rb *operators.RecordBatch, i int) CustomerSupplierRow {
		return CustomerSupplierRow{
			CustomerID:   str(rb, "customer_id", i),
			CompanyName:  str(rb, "company_name", i),
			SupplierName: str(rb, "supplier_name", i),
			City:         str(rb, "city", i),
			Country:      str(rb, "country", i),
		}
	})
}

func LargeOrderCustomers(t *dataset.Tables) ([]MaxOrderRow, error) {
	return rows("large-order-customers", t, func(rb *operators.RecordBatch, i int) MaxOrderRow {
		return MaxOrderRow{CompanyName: str(rb, "company_name", i), MaxOrderTotal: f64(rb, "max_order_total", i)}
	})
}

func decodeFirstOrder(rb *operators.RecordBatch, i int) FirstOrderRow {
	return FirstOrderRow{CompanyName: str(rb, "company_name", i), FirstOrderDate: date(rb, "first_order_date", i)}
}

func FirstOrderDate(t *dataset.Tables) ([]FirstOrderRow, error) {
	return rows("first-order-date", t, decodeFirstOrder)
}

func FirstOrderByMonth(t *dataset.Tables) ([]FirstOrderRow, error) {
	return rows("first-order-by-month", t, decodeFirstOrder)
}

func FirstOrderByYear(t *dataset.Tables) ([]FirstOrderRow, error) {
	return rows("first-order-by-year", t, decodeFirstOrder)
}

func TurnoverDescending(t *dataset.Tables) ([]TurnoverRow, error) {
	return rows("turnover-descending", t, func(rb *operators.RecordBatch, i int) TurnoverRow {
		return TurnoverRow{CompanyName: str(rb, "company_name", i), Turnover: f64(rb, "turnover", i)}
	})
}

func ClientsByName(t *dataset.Tables) ([]ClientNameRow, error) {
	return rows("clients-by-name", t, func(rb *operators.RecordBatch, i int) ClientNameRow {
		return ClientNameRow{CompanyName: str(rb, "company_name", i)}
	})
}

func WrongClients(t *dataset.Tables) ([]WrongClientRow, error) {
	return rows("wrong-clients", t, func(rb *operators.RecordBatch, i int) WrongClientRow {
		return WrongClientRow{
			CompanyName: str(rb, "company_name", i),
			PostalCode:  str(rb, "postal_code", i),
			Phone:       str(rb, "phone", i),
			Region:      nullableStr(rb, "region", i),
		}
	})
}

func ProductsByCategoryStockPrice(t *dataset.Tables) ([]ProductStockRow, error) {
	return rows("products-by-category-stock-price", t, func(rb *operators.RecordBatch, i int) ProductStockRow {
		return ProductStockRow{
			Name:      str(rb, "product_name", i),
			Category:  str(rb, "category", i),
			Exist:     str(rb, "exist", i),
			UnitPrice: f64(rb, "unit_price", i),
		}
	})
}

func PriceBuckets(t *dataset.Tables) ([]PriceBucketRow, error) {
	return rows("price-buckets", t, func(rb *operators.RecordBatch, i int) PriceBucketRow {
		return PriceBucketRow{
			Name:      str(rb, "product_name", i),
			Bucket:    str(rb, "bucket", i),
			UnitPrice: f64(rb, "unit_price", i),
		}
	})
}

func CityStatistics(t *dataset.Tables) ([]CityStatsRow, error) {
	return rows("city-statistics", t, func(rb *operators.RecordBatch, i int) CityStatsRow {
		return CityStatsRow{
			City:             str(rb, "city", i),
			AverageSum:       f64(rb, "average_sum", i),
			AverageIntensity: f64(rb, "average_intensity", i),
		}
	})
}

func MonthlyIntensity(t *dataset.Tables) ([]MonthIntensityRow, error) {
	return rows("monthly-intensity", t, func(rb *operators.RecordBatch, i int) MonthIntensityRow {
		return MonthIntensityRow{Month: str(rb, "month", i), AverageIntensity: f64(rb, "average_intensity", i)}
	})
}

func YearlyOrders(t *dataset.Tables) ([]YearCountRow, error) {
	return rows("yearly-orders", t, func(rb *operators.RecordBatch, i int) YearCountRow {
		return YearCountRow{Year: i64(rb, "year", i), Orders: i64(rb, "orders", i)}
	})
}
