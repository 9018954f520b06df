package project

import (
	"errors"
	"io"
	"testing"
	"time"

	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

func strPtr(s string) *string { return &s }

func generateCustomers() ([]string, []any) {
	names := []string{"customer_id", "company_name", "region", "total", "first_order"}
	columns := []any{
		[]string{"ALFKI", "ANATR", "ANTON", "AROUT", "BERGS"},
		[]string{"Alfreds Futterkiste", "Ana Trujillo", "Antonio Moreno", "Around the Horn", "Berglunds snabbkop"},
		[]*string{nil, strPtr("DF"), nil, strPtr("Essex"), nil},
		[]float64{814.5, 88.8, 403.2, 2142.9, 3471.68},
		[]time.Time{
			time.Date(1997, time.August, 25, 0, 0, 0, 0, time.UTC),
			time.Date(1996, time.September, 18, 0, 0, 0, 0, time.UTC),
			time.Date(1996, time.November, 27, 0, 0, 0, 0, time.UTC),
			time.Date(1996, time.November, 15, 0, 0, 0, 0, time.UTC),
			time.Date(1996, time.August, 12, 0, 0, 0, 0, time.UTC),
		},
	}
	return names, columns
}

func customerSource(t *testing.T) *InMemorySource {
	t.Helper()
	names, cols := generateCustomers()
	src, err := NewInMemoryProjectExec(names, cols)
	if err != nil {
		t.Fatalf("failed to build in memory source: %v", err)
	}
	return src
}

func TestInMemorySource_Schema(t *testing.T) {
	src := customerSource(t)
	defer src.Close()
	expected := []struct {
		name     string
		dt       arrow.DataType
		nullable bool
	}{
		{"customer_id", arrow.BinaryTypes.String, false},
		{"company_name", arrow.BinaryTypes.String, false},
		{"region", arrow.BinaryTypes.String, true},
		{"total", arrow.PrimitiveTypes.Float64, false},
		{"first_order", arrow.FixedWidthTypes.Date32, false},
	}
	schema := src.Schema()
	if schema.NumFields() != len(expected) {
		t.Fatalf("expected %d fields, got %d", len(expected), schema.NumFields())
	}
	for i, e := range expected {
		f := schema.Field(i)
		if f.Name != e.name || !arrow.TypeEqual(f.Type, e.dt) || f.Nullable != e.nullable {
			t.Errorf("field %d: expected %s %s nullable=%v, got %s %s nullable=%v", i, e.name, e.dt, e.nullable, f.Name, f.Type, f.Nullable)
		}
	}
}

func TestInMemorySource_Batches(t *testing.T) {
	src := customerSource(t)
	defer src.Close()

	sizes := []uint64{2, 2, 1}
	var ids []string
	for i, want := range sizes {
		rb, err := src.Next(2)
		if err != nil {
			t.Fatalf("batch %d: unexpected error: %v", i, err)
		}
		if rb.RowCount != want {
			t.Fatalf("batch %d: expected %d rows, got %d", i, want, rb.RowCount)
		}
		col := rb.Column("customer_id").(*array.String)
		for j := 0; j < col.Len(); j++ {
			ids = append(ids, col.Value(j))
		}
	}
	if _, err := src.Next(2); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	expected := []string{"ALFKI", "ANATR", "ANTON", "AROUT", "BERGS"}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("index %d: expected %s, got %s", i, expected[i], ids[i])
		}
	}
}

func TestInMemorySource_NullsAndDates(t *testing.T) {
	src := customerSource(t)
	defer src.Close()
	rb, err := src.Next(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	region := rb.Column("region")
	if region.NullN() != 3 {
		t.Errorf("expected 3 null regions, got %d", region.NullN())
	}
	if !region.IsNull(0) || region.IsNull(1) {
		t.Errorf("unexpected null layout in region column")
	}
	dates := rb.Column("first_order").(*array.Date32)
	got := dates.Value(0).ToTime()
	if got.Year() != 1997 || got.Month() != time.August || got.Day() != 25 {
		t.Errorf("expected 1997-08-25, got %v", got)
	}
}

func TestInMemorySource_Errors(t *testing.T) {
	t.Run("names and columns mismatch", func(t *testing.T) {
		_, err := NewInMemoryProjectExec([]string{"a", "b"}, []any{[]int{1}})
		if err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unsupported type", func(t *testing.T) {
		_, err := NewInMemoryProjectExec([]string{"a"}, []any{[]complex64{1}})
		if err == nil {
			t.Fatal("expected error for unsupported column type")
		}
	})
	t.Run("ragged columns", func(t *testing.T) {
		_, err := NewInMemoryProjectExec([]string{"a", "b"}, []any{[]int{1, 2}, []string{"x"}})
		if err == nil {
			t.Fatal("expected error for columns of different length")
		}
	})
	t.Run("zero batch size", func(t *testing.T) {
		src := customerSource(t)
		if _, err := src.Next(0); !errors.Is(err, operators.ErrZeroBatchSize) {
			t.Fatalf("expected ErrZeroBatchSize, got %v", err)
		}
	})
}

func TestNewInMemorySource(t *testing.T) {
	rbb := operators.NewRecordBatchBuilder()
	schema := rbb.SchemaBuilder.
		WithField("product_name", arrow.BinaryTypes.String, false).
		WithField("unit_price", arrow.PrimitiveTypes.Float64, false).
		Build()
	names := rbb.GenStringArray("Chai", "Chang")
	prices := rbb.GenFloatArray(18, 19)
	defer names.Release()
	defer prices.Release()

	src, err := NewInMemorySource(schema, []arrow.Array{names, prices})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb, err := src.Next(5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rb.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", rb.RowCount)
	}
	src.Close()
	// caller's reference survives Close
	if names.Len() != 2 {
		t.Errorf("expected caller's array to remain usable")
	}

	t.Run("type mismatch", func(t *testing.T) {
		if _, err := NewInMemorySource(schema, []arrow.Array{prices, names}); err == nil {
			t.Fatal("expected type mismatch error")
		}
	})
}

func TestInMemorySource_WithFields(t *testing.T) {
	src := customerSource(t)
	defer src.Close()
	if err := src.WithFields("total", "customer_id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Schema().NumFields() != 2 || src.Schema().Field(0).Name != "total" {
		t.Fatalf("expected [total customer_id], got %s", src.Schema())
	}
	if err := src.WithFields("nope"); !errors.Is(err, ErrProjectColumnNotFound) {
		t.Fatalf("expected ErrProjectColumnNotFound, got %v", err)
	}
	if err := src.WithFields(); !errors.Is(err, ErrEmptyColumnsToProject) {
		t.Fatalf("expected ErrEmptyColumnsToProject, got %v", err)
	}
}
