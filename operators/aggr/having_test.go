package aggr

import (
	"testing"

	"northwind-go/Expr"

	"github.com/apache/arrow/go/v17/arrow/array"
)

func TestHavingExec(t *testing.T) {
	g, err := NewGroupByExec(aggProject(), []AggregateFunctions{
		NewAggregateFunctions(Sum, Expr.NewColumnResolve("total")).As("turnover"),
	}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, err := NewHavingExec(g, Expr.NewBinaryExpr(Expr.NewColumnResolve("turnover"), Expr.GreaterThan, Expr.Float(1000)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer h.Close()
	rb := collect(t, h)
	ids := rb.Column("customer_id").(*array.String)
	if ids.Len() != 2 || ids.Value(0) != "ALFKI" || ids.Value(1) != "AROUT" {
		t.Fatalf("expected [ALFKI AROUT], got %v", ids)
	}
	if !h.Schema().Equal(g.Schema()) {
		t.Errorf("having must not change the schema")
	}

	t.Run("predicate must reference aggregate output", func(t *testing.T) {
		g, _ := NewGroupByExec(aggProject(), []AggregateFunctions{
			NewAggregateFunctions(Sum, Expr.NewColumnResolve("total")).As("turnover"),
		}, []Expr.Expression{Expr.NewColumnResolve("customer_id")})
		if _, err := NewHavingExec(g, Expr.NewBinaryExpr(Expr.NewColumnResolve("total"), Expr.GreaterThan, Expr.Float(1))); err == nil {
			t.Fatal("expected error for column not in the grouped schema")
		}
	})
}
