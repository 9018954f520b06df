package filter

import (
	"errors"
	"io"
	"testing"

	"northwind-go/Expr"
	"northwind-go/operators"
	"northwind-go/operators/project"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

func strPtr(s string) *string { return &s }

func generateTestColumns() ([]string, []any) {
	names := []string{
		"product_name",
		"category",
		"unit_price",
		"units_in_stock",
		"discontinued",
		"region",
	}
	columns := []any{
		[]string{
			"Chai", "Chang", "Aniseed Syrup", "Chef Anton's Cajun Seasoning", "Grandma's Boysenberry Spread",
			"Uncle Bob's Organic Dried Pears", "Northwoods Cranberry Sauce", "Mishi Kobe Niku", "Ikura", "Queso Cabrales",
		},
		[]string{
			"Beverages", "Beverages", "Condiments", "Condiments", "Condiments",
			"Produce", "Condiments", "Meat/Poultry", "Seafood", "Dairy Products",
		},
		[]float64{18, 19, 10, 22, 25, 30, 40, 97, 31, 21},
		[]int64{39, 17, 13, 53, 0, 15, 6, 29, 31, 22},
		[]bool{false, false, false, false, false, false, false, true, false, false},
		[]*string{strPtr("WA"), nil, strPtr("LA"), nil, strPtr("OR"), strPtr("MI"), nil, nil, strPtr("WA"), nil},
	}
	return names, columns
}

func basicProject() *project.InMemorySource {
	names, col := generateTestColumns()
	v, _ := project.NewInMemoryProjectExec(names, col)
	return v
}

func collectStrings(t *testing.T, op operators.Operator, column string) []string {
	t.Helper()
	var out []string
	for {
		rb, err := op.Next(3)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		col := rb.Column(column).(*array.String)
		for i := 0; i < col.Len(); i++ {
			out = append(out, col.Value(i))
		}
	}
}

func TestFilterInit(t *testing.T) {
	t.Run("simple greater-than predicate", func(t *testing.T) {
		predicate := Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.GreaterThan, Expr.Float(20))
		if _, err := NewFilterExec(basicProject(), predicate); err != nil {
			t.Fatalf("failed to create filter exec: %v", err)
		}
	})
	t.Run("invalid column name", func(t *testing.T) {
		predicate := Expr.NewBinaryExpr(Expr.NewColumnResolve("does_not_exist"), Expr.Equal, Expr.Int(1))
		if _, err := NewFilterExec(basicProject(), predicate); err == nil {
			t.Fatalf("expected error for missing column, got nil")
		}
	})
	t.Run("nil predicate should fail", func(t *testing.T) {
		if _, err := NewFilterExec(basicProject(), nil); err == nil {
			t.Fatalf("expected error for nil predicate")
		}
	})
	t.Run("non boolean predicate", func(t *testing.T) {
		predicate := Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.Addition, Expr.Float(30))
		if _, err := NewFilterExec(basicProject(), predicate); err == nil {
			t.Fatalf("expected error for arithmetic predicate")
		}
	})
	t.Run("incompatible predicate types", func(t *testing.T) {
		predicate := Expr.NewBinaryExpr(Expr.NewColumnResolve("units_in_stock"), Expr.Equal, Expr.String("bad"))
		if _, err := NewFilterExec(basicProject(), predicate); err == nil {
			t.Fatalf("expected type error for invalid predicate")
		}
	})
	t.Run("bare column resolve of non boolean", func(t *testing.T) {
		if _, err := NewFilterExec(basicProject(), Expr.NewColumnResolve("category")); err == nil {
			t.Fatalf("expected error for string column as predicate")
		}
	})
}

func TestFilterExec_BasicPredicates(t *testing.T) {
	t.Run("units_in_stock > 0", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("units_in_stock"), Expr.GreaterThan, Expr.Int(0)))
		got := collectStrings(t, f, "product_name")
		if len(got) != 9 {
			t.Fatalf("expected 9 in-stock products, got %d: %v", len(got), got)
		}
		for _, name := range got {
			if name == "Grandma's Boysenberry Spread" {
				t.Fatalf("out-of-stock product leaked through")
			}
		}
	})
	t.Run("category == 'Condiments' keeps input order", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("category"), Expr.Equal, Expr.String("Condiments")))
		got := collectStrings(t, f, "product_name")
		expected := []string{"Aniseed Syrup", "Chef Anton's Cajun Seasoning", "Grandma's Boysenberry Spread", "Northwoods Cranberry Sauce"}
		if len(got) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Fatalf("index %d: expected %s got %s", i, expected[i], got[i])
			}
		}
	})
	t.Run("boolean column as predicate", func(t *testing.T) {
		f, err := NewFilterExec(basicProject(), Expr.NewColumnResolve("discontinued"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := collectStrings(t, f, "product_name")
		if len(got) != 1 || got[0] != "Mishi Kobe Niku" {
			t.Fatalf("expected only Mishi Kobe Niku, got %v", got)
		}
	})
	t.Run("price between bounds with AND", func(t *testing.T) {
		pred := Expr.NewBinaryExpr(
			Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.GreaterThan, Expr.Float(25)),
			Expr.And,
			Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.LessThan, Expr.Float(50)),
		)
		f, err := NewFilterExec(basicProject(), pred)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := collectStrings(t, f, "product_name")
		expected := []string{"Uncle Bob's Organic Dried Pears", "Northwoods Cranberry Sauce", "Ikura"}
		if len(got) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})
}

func TestFilterExec_Nulls(t *testing.T) {
	t.Run("comparison on null drops the row", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("region"), Expr.Equal, Expr.String("WA")))
		got := collectStrings(t, f, "product_name")
		if len(got) != 2 || got[0] != "Chai" || got[1] != "Ikura" {
			t.Fatalf("expected [Chai Ikura], got %v", got)
		}
	})
	t.Run("is null", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.IsNull(Expr.NewColumnResolve("region")))
		got := collectStrings(t, f, "product_name")
		if len(got) != 5 {
			t.Fatalf("expected 5 rows with null region, got %v", got)
		}
	})
}

func TestFilterExec_EdgeCases(t *testing.T) {
	pred := Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.GreaterThan, Expr.Float(0))
	t.Run("Next(0) returns error", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), pred)
		if _, err := f.Next(0); !errors.Is(err, operators.ErrZeroBatchSize) {
			t.Fatalf("expected ErrZeroBatchSize but got %v", err)
		}
	})
	t.Run("EOF after consuming all rows", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), pred)
		_, _ = f.Next(50)
		if _, err := f.Next(10); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	})
	t.Run("predicate that always returns false", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.LessThan, Expr.Float(-1)))
		if _, err := f.Next(3); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF error but got %v", err)
		}
	})
	t.Run("empty batches are skipped", func(t *testing.T) {
		// only the 8th row (index 7) matches; the first two batches of 3 filter to nothing
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.GreaterThan, Expr.Float(90)))
		rb, err := f.Next(3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rb.RowCount != 1 {
			t.Fatalf("expected 1 row, got %d", rb.RowCount)
		}
	})
}

func TestFilterExecVariantCase(t *testing.T) {
	predicate := Expr.NewBinaryExpr(Expr.NewColumnResolve("unit_price"), Expr.GreaterThan, Expr.Float(30))
	t.Run("filter done", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), predicate)
		f.done = true
		if _, err := f.Next(1); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF error, got %v", err)
		}
	})
	t.Run("filter schema", func(t *testing.T) {
		proj := basicProject()
		f, _ := NewFilterExec(proj, predicate)
		if !f.Schema().Equal(proj.Schema()) {
			t.Fatalf("expected schema to match input schema")
		}
	})
	t.Run("filter close", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), predicate)
		if f.Close() != nil {
			t.Fatalf("expected nil error on close")
		}
	})
}

func TestApplyBooleanMask(t *testing.T) {
	rbb := operators.NewRecordBatchBuilder()
	col := rbb.GenFloatArray(1, 2, 3, 4)
	mask := rbb.GenBoolArray(true, false, false, true).(*array.Boolean)
	out, err := ApplyBooleanMask(col, mask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if !arrow.TypeEqual(out.DataType(), arrow.PrimitiveTypes.Float64) {
		t.Fatalf("expected float64 result, got %s", out.DataType())
	}
	vals := out.(*array.Float64)
	if vals.Len() != 2 || vals.Value(0) != 1 || vals.Value(1) != 4 {
		t.Fatalf("expected [1 4], got %v", vals)
	}
}
