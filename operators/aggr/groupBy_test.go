package aggr

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"northwind-go/Expr"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

func TestGroupBySchema(t *testing.T) {
	g, err := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Sum, Expr.NewColumnResolve("total")).As("turnover"),
		NewAggregateFunctions(Min, Expr.NewColumnResolve("order_date")),
		NewAggregateFunctions(Count, Expr.NewColumnResolve("order_id")),
	}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []struct {
		name string
		dt   arrow.DataType
	}{
		{"customer_id", arrow.BinaryTypes.String},
		{"turnover", arrow.PrimitiveTypes.Float64},
		{"min_order_date", arrow.FixedWidthTypes.Date32},
		{"count_order_id", arrow.PrimitiveTypes.Int64},
	}
	for i, e := range expected {
		f := g.Schema().Field(i)
		if f.Name != e.name || !arrow.TypeEqual(f.Type, e.dt) {
			t.Errorf("field %d: expected %s %s, got %s %s", i, e.name, e.dt, f.Name, f.Type)
		}
	}
}

func TestGroupByPerCustomer(t *testing.T) {
	g, err := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Sum, Expr.NewColumnResolve("total")).As("turnover"),
		NewAggregateFunctions(Max, Expr.NewColumnResolve("total")).As("max_total"),
		NewAggregateFunctions(Min, Expr.NewColumnResolve("order_date")).As("first_order"),
		NewAggregateFunctions(Count, Expr.NewColumnResolve("order_id")).As("orders"),
		NewAggregateFunctions(Avg, Expr.NewColumnResolve("total")).As("avg_total"),
	}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g.Close()
	rb := collect(t, g)

	// first-seen order of the key
	ids := rb.Column("customer_id").(*array.String)
	expectedIDs := []string{"ALFKI", "ANATR", "AROUT", "ANTON"}
	if ids.Len() != len(expectedIDs) {
		t.Fatalf("expected %d groups, got %d", len(expectedIDs), ids.Len())
	}
	for i, id := range expectedIDs {
		if ids.Value(i) != id {
			t.Errorf("group %d: expected %s, got %s", i, id, ids.Value(i))
		}
	}
	turnover := rb.Column("turnover").(*array.Float64)
	expectedTurnover := []float64{2022.5, 888.55, 1379, 403.2}
	for i, want := range expectedTurnover {
		if math.Abs(turnover.Value(i)-want) > 1e-9 {
			t.Errorf("%s: expected turnover %v, got %v", expectedIDs[i], want, turnover.Value(i))
		}
	}
	if got := rb.Column("max_total").(*array.Float64).Value(2); got != 899 {
		t.Errorf("AROUT: expected max 899, got %v", got)
	}
	first := rb.Column("first_order").(*array.Date32)
	if got := first.Value(0).ToTime(); !got.Equal(day(1997, time.August, 25)) {
		t.Errorf("ALFKI: expected first order 1997-08-25, got %v", got)
	}
	if got := first.Value(1).ToTime(); !got.Equal(day(1996, time.September, 18)) {
		t.Errorf("ANATR: expected first order 1996-09-18, got %v", got)
	}
	orders := rb.Column("orders").(*array.Int64)
	for i, want := range []int64{3, 3, 2, 1} {
		if orders.Value(i) != want {
			t.Errorf("%s: expected %d orders, got %d", expectedIDs[i], want, orders.Value(i))
		}
	}
	if got := rb.Column("avg_total").(*array.Float64).Value(2); got != 689.5 {
		t.Errorf("AROUT: expected avg 689.5, got %v", got)
	}
}

func TestGroupByDerivedKey(t *testing.T) {
	g, err := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Count, Expr.NewColumnResolve("order_id")).As("orders"),
	}, []Expr.Expression{Expr.NewAlias(Expr.NewScalarFunction(Expr.Year, Expr.NewColumnResolve("order_date")), "year")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb := collect(t, g)
	years := rb.Column("year").(*array.Int64)
	counts := rb.Column("orders").(*array.Int64)
	expected := map[int64]int64{1997: 4, 1996: 4, 1998: 1}
	if years.Len() != 3 {
		t.Fatalf("expected 3 years, got %d", years.Len())
	}
	if years.Value(0) != 1997 || years.Value(1) != 1996 || years.Value(2) != 1998 {
		t.Errorf("expected first-seen year order [1997 1996 1998], got %v", years)
	}
	for i := 0; i < years.Len(); i++ {
		if counts.Value(i) != expected[years.Value(i)] {
			t.Errorf("year %d: expected %d, got %d", years.Value(i), expected[years.Value(i)], counts.Value(i))
		}
	}
}

func TestGroupByNullKeys(t *testing.T) {
	g, err := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Count, Expr.NewColumnResolve("order_id")).As("orders"),
	}, []Expr.Expression{Expr.NewColumnResolve("ship_region")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb := collect(t, g)
	region := rb.Column("ship_region")
	if region.Len() != 3 {
		t.Fatalf("expected groups WA, null, Essex; got %d groups", region.Len())
	}
	if !region.IsNull(1) {
		t.Errorf("expected the second group to be the null region")
	}
	if got := rb.Column("orders").(*array.Int64).Value(1); got != 4 {
		t.Errorf("expected 4 orders without region, got %d", got)
	}
}

func TestGroupByMultipleKeys(t *testing.T) {
	g, _ := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Sum, Expr.NewColumnResolve("total")),
	}, []Expr.Expression{
		Expr.NewColumnResolve("customer_id"),
		Expr.NewAlias(Expr.NewScalarFunction(Expr.Year, Expr.NewColumnResolve("order_date")), "year"),
	})
	rb := collect(t, g)
	// ALFKI 1997, ALFKI 1998, ANATR 1996, ANATR 1997, AROUT 1996, ANTON 1996
	if rb.RowCount != 6 {
		t.Fatalf("expected 6 (customer, year) groups, got %d", rb.RowCount)
	}
}

func TestGroupByBatchesAndEmpty(t *testing.T) {
	t.Run("batches", func(t *testing.T) {
		g, _ := NewGroupByExec(aggProject(), []AggregateFunctions{
			NewAggregateFunctions(Count, Expr.NewColumnResolve("order_id")),
		}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
		first, err := g.Next(3)
		if err != nil || first.RowCount != 3 {
			t.Fatalf("expected 3 rows, got %v (err %v)", first, err)
		}
		second, err := g.Next(3)
		if err != nil || second.RowCount != 1 {
			t.Fatalf("expected 1 row, got %v (err %v)", second, err)
		}
		if _, err := g.Next(3); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
		if _, err := g.Next(0); !errors.Is(err, operators.ErrZeroBatchSize) {
			t.Fatalf("expected ErrZeroBatchSize, got %v", err)
		}
	})
	t.Run("empty input has no groups", func(t *testing.T) {
		g, _ := NewGroupByExec(emptyProject(), []AggregateFunctions{
			NewAggregateFunctions(Min, Expr.NewColumnResolve("order_date")),
		}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
		if _, err := g.Next(10); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	})
	t.Run("no keys", func(t *testing.T) {
		if _, err := NewGroupByExec(aggProject(), nil, nil); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("bad key", func(t *testing.T) {
		if _, err := NewGroupByExec(aggProject(), nil, []Expr.Expression{Expr.NewColumnResolve("nope")}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestGroupKey(t *testing.T) {
	rbb := operators.NewRecordBatchBuilder()
	cols := []arrow.Array{rbb.GenNullableStringArray(nil, strPtr(""), strPtr("N;"))}
	keys := map[string]bool{}
	for i := 0; i < 3; i++ {
		keys[groupKey(cols, i)] = true
	}
	if len(keys) != 3 {
		t.Fatalf("expected null, empty string and \"N;\" to be distinct keys, got %v", keys)
	}
}
