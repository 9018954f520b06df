package filter

import (
	"errors"
	"io"
	"testing"

	"northwind-go/Expr"
	"northwind-go/operators"
)

func TestLimitExec(t *testing.T) {
	t.Run("limit smaller than input", func(t *testing.T) {
		l, _ := NewLimitExec(basicProject(), 4)
		got := collectStrings(t, l, "product_name")
		expected := []string{"Chai", "Chang", "Aniseed Syrup", "Chef Anton's Cajun Seasoning"}
		if len(got) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Fatalf("index %d: expected %s got %s", i, expected[i], got[i])
			}
		}
	})
	t.Run("limit larger than input", func(t *testing.T) {
		l, _ := NewLimitExec(basicProject(), 100)
		if got := collectStrings(t, l, "product_name"); len(got) != 10 {
			t.Fatalf("expected all 10 rows, got %d", len(got))
		}
	})
	t.Run("limit zero", func(t *testing.T) {
		l, _ := NewLimitExec(basicProject(), 0)
		if _, err := l.Next(5); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	})
	t.Run("zero batch size", func(t *testing.T) {
		l, _ := NewLimitExec(basicProject(), 3)
		if _, err := l.Next(0); !errors.Is(err, operators.ErrZeroBatchSize) {
			t.Fatalf("expected ErrZeroBatchSize, got %v", err)
		}
	})
	t.Run("over a filter", func(t *testing.T) {
		f, _ := NewFilterExec(basicProject(), Expr.NewBinaryExpr(Expr.NewColumnResolve("category"), Expr.Equal, Expr.String("Condiments")))
		l, _ := NewLimitExec(f, 2)
		got := collectStrings(t, l, "product_name")
		if len(got) != 2 || got[0] != "Aniseed Syrup" {
			t.Fatalf("expected first two condiments, got %v", got)
		}
		if l.Close() != nil {
			t.Fatalf("expected nil error on close")
		}
	})
}
