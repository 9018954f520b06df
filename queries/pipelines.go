package queries

import (
	"fmt"

	"northwind-go/Expr"
	"northwind-go/config"
	"northwind-go/dataset"
	"northwind-go/operators"
	"northwind-go/operators/aggr"
	"northwind-go/operators/filter"
	join "northwind-go/operators/Join"
	"northwind-go/operators/project"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Numbers is the literal sequence numbers-below-five filters.
var Numbers = []int64{5, 4, 1, 3, 9, 8, 6, 7, 2, 0}

const (
	wrongPostalPattern = `\D`
	phoneAreaPrefix    = "("
)

func col(name string) *Expr.ColumnResolve { return Expr.NewColumnResolve(name) }

func as(e Expr.Expression, name string) *Expr.Alias { return Expr.NewAlias(e, name) }

func sum(name, out string) aggr.AggregateFunctions {
	return aggr.NewAggregateFunctions(aggr.Sum, col(name)).As(out)
}

// zeroIfNull replaces the nulls a left join leaves behind with zero.
func zeroIfNull(name string, zero Expr.Expression) *Expr.CaseExpr {
	return Expr.NewCaseExpr(col(name), Expr.When(Expr.IsNull(col(name)), zero))
}

// money rounds an amount to cents.
func money(e Expr.Expression) Expr.Expression {
	return Expr.NewBinaryExpr(
		Expr.NewScalarFunction(Expr.Round, Expr.NewBinaryExpr(e, Expr.Multiplication, Expr.Float(100))),
		Expr.Division,
		Expr.Float(100),
	)
}

// byName sorts ascending on a text column, ignoring case.
func byName(column string) *aggr.SortKey {
	return aggr.NewSortKey(Expr.NewScalarFunction(Expr.Lower, col(column)), true)
}

// ordersPerCustomer groups the orders table by customer_id.
func ordersPerCustomer(t *dataset.Tables, aggs ...aggr.AggregateFunctions) (operators.Operator, error) {
	orders, err := t.Orders()
	if err != nil {
		return nil, err
	}
	return aggr.NewGroupByExec(orders, aggs, Expr.NewExpressions(col("customer_id")))
}

// customersWithOrderStats joins every customer (left, so output keeps customer
// order) to its per-customer aggregates. An inner join drops customers
// without orders, which is the existence guard min and max rely on.
func customersWithOrderStats(t *dataset.Tables, joinType join.JoinType, aggs ...aggr.AggregateFunctions) (operators.Operator, error) {
	customers, err := t.Customers()
	if err != nil {
		return nil, err
	}
	stats, err := ordersPerCustomer(t, aggs...)
	if err != nil {
		return nil, err
	}
	return join.NewHashJoinExec(customers, stats, join.OnColumns("customer_id", "customer_id"), joinType)
}

func buildNumbersBelowFive(_ *dataset.Tables) (operators.Operator, error) {
	src, err := project.NewInMemoryProjectExec([]string{"n"}, []any{append([]int64(nil), Numbers...)})
	if err != nil {
		return nil, err
	}
	return filter.NewFilterExec(src, Expr.NewBinaryExpr(col("n"), Expr.LessThan, Expr.Int(5)))
}

func buildProductsInStock(t *dataset.Tables) (operators.Operator, error) {
	products, err := t.Products()
	if err != nil {
		return nil, err
	}
	return filter.NewFilterExec(products, Expr.NewBinaryExpr(col("units_in_stock"), Expr.GreaterThan, Expr.Int(0)))
}

func buildTurnoverAbove(t *dataset.Tables) (operators.Operator, error) {
	threshold := config.GetConfig().Query.TurnoverThreshold
	joined, err := customersWithOrderStats(t, join.LeftJoin, sum("total", "turnover"))
	if err != nil {
		return nil, err
	}
	// customers without orders have turnover 0
	withTurnover, err := project.NewProjectExec(joined, Expr.NewExpressions(
		as(col("left_customer_id"), "customer_id"),
		col("company_name"), col("city"), col("country"),
		as(money(zeroIfNull("turnover", Expr.Float(0))), "turnover"),
	))
	if err != nil {
		return nil, err
	}
	return filter.NewFilterExec(withTurnover, Expr.NewBinaryExpr(col("turnover"), Expr.GreaterThan, Expr.Float(threshold)))
}

func buildCustomersWithLocalSuppliers(t *dataset.Tables) (operators.Operator, error) {
	customers, err := t.Customers()
	if err != nil {
		return nil, err
	}
	suppliers, err := t.Suppliers()
	if err != nil {
		return nil, err
	}
	joined, err := join.NewHashJoinExec(customers, suppliers,
		join.OnColumns("country", "country", "city", "city"), join.InnerJoin)
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(joined, Expr.NewExpressions(
		col("customer_id"), col("company_name"), col("supplier_name"),
		as(col("left_city"), "city"), as(col("left_country"), "country"),
	))
}

func buildLargeOrderCustomers(t *dataset.Tables) (operators.Operator, error) {
	threshold := config.GetConfig().Query.LargeOrderThreshold
	customers, err := t.Customers()
	if err != nil {
		return nil, err
	}
	perCustomer, err := ordersPerCustomer(t, aggr.NewAggregateFunctions(aggr.Max, col("total")).As("max_order_total"))
	if err != nil {
		return nil, err
	}
	// any order above the threshold <=> the largest one is above it
	large, err := aggr.NewHavingExec(perCustomer, Expr.NewBinaryExpr(col("max_order_total"), Expr.GreaterThan, Expr.Float(threshold)))
	if err != nil {
		return nil, err
	}
	joined, err := join.NewHashJoinExec(customers, large, join.OnColumns("customer_id", "customer_id"), join.InnerJoin)
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(joined, Expr.NewExpressions(col("company_name"), col("max_order_total")))
}

func firstOrders(t *dataset.Tables) (operators.Operator, error) {
	joined, err := customersWithOrderStats(t, join.InnerJoin,
		aggr.NewAggregateFunctions(aggr.Min, col("order_date")).As("first_order_date"))
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(joined, Expr.NewExpressions(col("company_name"), col("first_order_date")))
}

func buildFirstOrderDate(t *dataset.Tables) (operators.Operator, error) {
	return firstOrders(t)
}

func firstOrdersSortedBy(t *dataset.Tables, part Expr.Expression) (operators.Operator, error) {
	first, err := firstOrders(t)
	if err != nil {
		return nil, err
	}
	return aggr.NewSortExec(first, aggr.CombineSortKeys(aggr.NewSortKey(part, true)))
}

func buildFirstOrderByMonth(t *dataset.Tables) (operators.Operator, error) {
	return firstOrdersSortedBy(t, Expr.NewScalarFunction(Expr.Month, col("first_order_date")))
}

func buildFirstOrderByYear(t *dataset.Tables) (operators.Operator, error) {
	return firstOrdersSortedBy(t, Expr.NewScalarFunction(Expr.Year, col("first_order_date")))
}

func buildTurnoverDescending(t *dataset.Tables) (operators.Operator, error) {
	joined, err := customersWithOrderStats(t, join.InnerJoin, sum("total", "turnover"))
	if err != nil {
		return nil, err
	}
	sorted, err := aggr.NewSortExec(joined, aggr.CombineSortKeys(aggr.Desc("turnover")))
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(sorted, Expr.NewExpressions(col("company_name"), as(money(col("turnover")), "turnover")))
}

func buildClientsByName(t *dataset.Tables) (operators.Operator, error) {
	joined, err := customersWithOrderStats(t, join.InnerJoin,
		aggr.NewAggregateFunctions(aggr.Count, col("order_id")).As("order_count"))
	if err != nil {
		return nil, err
	}
	sorted, err := aggr.NewSortExec(joined, aggr.CombineSortKeys(byName("company_name")))
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(sorted, Expr.NewExpressions(col("company_name")))
}

// wrongClientPredicate: region is null OR phone lacks the area code prefix OR
// the postal code contains a non-digit anywhere. A null postal code does not
// satisfy the last disjunct.
func wrongClientPredicate() (Expr.Expression, error) {
	nonDigit, err := Expr.NewRegexSearch(col("postal_code"), wrongPostalPattern)
	if err != nil {
		return nil, err
	}
	return Expr.NewBinaryExpr(
		Expr.NewBinaryExpr(
			Expr.IsNull(col("region")),
			Expr.Or,
			Expr.NewNotExpr(Expr.NewStartsWith(col("phone"), phoneAreaPrefix)),
		),
		Expr.Or,
		nonDigit,
	), nil
}

func buildWrongClients(t *dataset.Tables) (operators.Operator, error) {
	customers, err := t.Customers()
	if err != nil {
		return nil, err
	}
	pred, err := wrongClientPredicate()
	if err != nil {
		return nil, err
	}
	wrong, err := filter.NewFilterExec(customers, pred)
	if err != nil {
		return nil, err
	}
	sorted, err := aggr.NewSortExec(wrong, aggr.CombineSortKeys(byName("company_name")))
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(sorted, Expr.NewExpressions(
		col("company_name"), col("postal_code"), col("phone"), col("region"),
	))
}

func buildProductsByCategoryStockPrice(t *dataset.Tables) (operators.Operator, error) {
	products, err := t.Products()
	if err != nil {
		return nil, err
	}
	exist := Expr.NewCaseExpr(Expr.String("False"),
		Expr.When(Expr.NewBinaryExpr(col("units_in_stock"), Expr.GreaterThan, Expr.Int(0)), Expr.String("True")))
	withExist, err := project.NewProjectExec(products, Expr.NewExpressions(
		col("product_name"), col("category"), as(exist, "exist"), col("unit_price"),
	))
	if err != nil {
		return nil, err
	}
	return aggr.NewSortExec(withExist, aggr.CombineSortKeys(
		byName("category"), aggr.Asc("exist"), aggr.Asc("unit_price"),
	))
}

// priceBucketExpr is the columnar form of PriceBucket.
func priceBucketExpr(price Expr.Expression) Expr.Expression {
	q := config.GetConfig().Query
	return Expr.NewCaseExpr(Expr.String(Cheap),
		Expr.When(Expr.NewBinaryExpr(price, Expr.GreaterThanOrEqual, Expr.Float(q.ExpensiveMin)), Expr.String(Expensive)),
		Expr.When(Expr.NewBinaryExpr(
			Expr.NewBinaryExpr(price, Expr.GreaterThan, Expr.Float(q.CheapMax)),
			Expr.And,
			Expr.NewBinaryExpr(price, Expr.LessThan, Expr.Float(q.ExpensiveMin)),
		), Expr.String(Reasonable)),
	)
}

func buildPriceBuckets(t *dataset.Tables) (operators.Operator, error) {
	products, err := t.Products()
	if err != nil {
		return nil, err
	}
	bucketed, err := project.NewProjectExec(products, Expr.NewExpressions(
		col("product_name"), as(priceBucketExpr(col("unit_price")), "bucket"), col("unit_price"),
	))
	if err != nil {
		return nil, err
	}
	return aggr.NewSortExec(bucketed, aggr.CombineSortKeys(aggr.Asc("bucket"), aggr.Asc("unit_price")))
}

// buildCityStatistics: average_sum divides a city's turnover by its order
// count, average_intensity averages the order count over the city's customers
// (customers without orders count as zero). A city whose customers never
// ordered has no average order total and fails with ErrDivisionByZero.
func buildCityStatistics(t *dataset.Tables) (operators.Operator, error) {
	joined, err := customersWithOrderStats(t, join.LeftJoin,
		sum("total", "turnover"),
		aggr.NewAggregateFunctions(aggr.Count, col("order_id")).As("order_count"),
	)
	if err != nil {
		return nil, err
	}
	perCustomer, err := project.NewProjectExec(joined, Expr.NewExpressions(
		as(col("left_customer_id"), "customer_id"), col("city"),
		as(zeroIfNull("turnover", Expr.Float(0)), "turnover"),
		as(zeroIfNull("order_count", Expr.Int(0)), "order_count"),
	))
	if err != nil {
		return nil, err
	}
	perCity, err := aggr.NewGroupByExec(perCustomer, []aggr.AggregateFunctions{
		sum("turnover", "city_turnover"),
		sum("order_count", "city_orders"),
		aggr.NewAggregateFunctions(aggr.Avg, col("order_count")).As("average_intensity"),
	}, Expr.NewExpressions(col("city")))
	if err != nil {
		return nil, err
	}
	ordered, err := filter.NewRejectExec(perCity,
		Expr.NewBinaryExpr(col("city_orders"), Expr.Equal, Expr.Float(0)),
		func(rb *operators.RecordBatch, row int) error {
			return fmt.Errorf("average order total of %s: no orders: %w", rb.Column("city").ValueStr(row), ErrDivisionByZero)
		})
	if err != nil {
		return nil, err
	}
	stats, err := project.NewProjectExec(ordered, Expr.NewExpressions(
		col("city"),
		as(Expr.NewBinaryExpr(money(col("city_turnover")), Expr.Division, col("city_orders")), "average_sum"),
		col("average_intensity"),
	))
	if err != nil {
		return nil, err
	}
	return aggr.NewSortExec(stats, aggr.CombineSortKeys(byName("city")))
}

// orderYearSpan is max(year) - min(year) over every order. It fails with
// aggr.ErrEmptyAggregate when there are no orders.
func orderYearSpan(t *dataset.Tables) (float64, error) {
	orders, err := t.Orders()
	if err != nil {
		return 0, err
	}
	year := Expr.NewScalarFunction(Expr.Year, col("order_date"))
	span, err := aggr.NewGlobalAggrExec(orders, []aggr.AggregateFunctions{
		aggr.NewAggregateFunctions(aggr.Max, year).As("max_year"),
		aggr.NewAggregateFunctions(aggr.Min, year).As("min_year"),
	})
	if err != nil {
		return 0, err
	}
	defer span.Close()
	rb, err := operators.Collect(span, memory.NewGoAllocator())
	if err != nil {
		return 0, err
	}
	defer operators.ReleaseArrays(rb.Columns)
	maxYear := rb.Column("max_year").(*array.Float64).Value(0)
	minYear := rb.Column("min_year").(*array.Float64).Value(0)
	return maxYear - minYear, nil
}

// buildMonthlyIntensity divides each month's order count by the year span
// without guarding it: a dataset whose orders all fall in one year yields +Inf.
func buildMonthlyIntensity(t *dataset.Tables) (operators.Operator, error) {
	span, err := orderYearSpan(t)
	if err != nil {
		return nil, fmt.Errorf("year span: %w", err)
	}
	orders, err := t.Orders()
	if err != nil {
		return nil, err
	}
	perMonth, err := aggr.NewGroupByExec(orders, []aggr.AggregateFunctions{
		aggr.NewAggregateFunctions(aggr.Count, col("order_id")).As("orders"),
	}, Expr.NewExpressions(as(Expr.NewScalarFunction(Expr.Month, col("order_date")), "month")))
	if err != nil {
		return nil, err
	}
	sorted, err := aggr.NewSortExec(perMonth, aggr.CombineSortKeys(aggr.Asc("month")))
	if err != nil {
		return nil, err
	}
	return project.NewProjectExec(sorted, Expr.NewExpressions(
		as(Expr.NewScalarFunction(Expr.MonthName, col("month")), "month"),
		as(Expr.NewBinaryExpr(
			Expr.NewCastExpr(col("orders"), arrow.PrimitiveTypes.Float64), Expr.Division, Expr.Float(span),
		), "average_intensity"),
	))
}

func buildYearlyOrders(t *dataset.Tables) (operators.Operator, error) {
	orders, err := t.Orders()
	if err != nil {
		return nil, err
	}
	perYear, err := aggr.NewGroupByExec(orders, []aggr.AggregateFunctions{
		aggr.NewAggregateFunctions(aggr.Count, col("order_id")).As("orders"),
	}, Expr.NewExpressions(as(Expr.NewScalarFunction(Expr.Year, col("order_date")), "year")))
	if err != nil {
		return nil, err
	}
	return aggr.NewSortExec(perYear, aggr.CombineSortKeys(aggr.Asc("year")))
}
