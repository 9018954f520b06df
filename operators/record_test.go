package operators

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// batchesOperator replays fixed batches, then io.EOF
type batchesOperator struct {
	schema  *arrow.Schema
	batches []*RecordBatch
	pos     int
	failAt  int
}

func (b *batchesOperator) Next(n uint16) (*RecordBatch, error) {
	if b.failAt > 0 && b.pos == b.failAt {
		return nil, errors.New("boom")
	}
	if b.pos >= len(b.batches) {
		return nil, io.EOF
	}
	rb := b.batches[b.pos]
	b.pos++
	return rb, nil
}
func (b *batchesOperator) Schema() *arrow.Schema { return b.schema }
func (b *batchesOperator) Close() error          { return nil }

func customerSchema() *arrow.Schema {
	return NewRecordBatchBuilder().SchemaBuilder.
		WithField("customer_id", arrow.BinaryTypes.String, false).
		WithField("total", arrow.PrimitiveTypes.Float64, false).
		Build()
}

func TestSchemaBuilder(t *testing.T) {
	sb := &SchemaBuilder{fields: make([]arrow.Field, 0, 4)}
	sb.WithField("customer_id", arrow.BinaryTypes.String, false).
		WithField("region", arrow.BinaryTypes.String, true).
		WithField("total", arrow.PrimitiveTypes.Float64, false)
	if len(sb.fields) != 3 {
		t.Fatalf("Expected 3 fields, got %d", len(sb.fields))
	}
	if !sb.fields[1].Nullable {
		t.Errorf("Field 'region': expected nullable=true")
	}
	schema := sb.WithoutField("region").Build()
	if schema.NumFields() != 2 {
		t.Fatalf("Expected 2 fields after removal, got %d", schema.NumFields())
	}
	if schema.Field(1).Name != "total" {
		t.Errorf("Expected 'total' at index 1, got %s", schema.Field(1).Name)
	}
}

func TestGenArrays(t *testing.T) {
	rbb := NewRecordBatchBuilder()
	t.Run("nullable strings", func(t *testing.T) {
		wa := "WA"
		arr := rbb.GenNullableStringArray(&wa, nil, &wa)
		defer arr.Release()
		if arr.NullN() != 1 {
			t.Fatalf("expected 1 null, got %d", arr.NullN())
		}
		if !arr.IsNull(1) {
			t.Errorf("expected index 1 to be null")
		}
		if got := arr.(*array.String).Value(2); got != "WA" {
			t.Errorf("expected WA, got %s", got)
		}
	})
	t.Run("dates", func(t *testing.T) {
		d := time.Date(1997, time.August, 25, 0, 0, 0, 0, time.UTC)
		arr := rbb.GenDate32Array(d)
		defer arr.Release()
		if !arrow.TypeEqual(arr.DataType(), arrow.FixedWidthTypes.Date32) {
			t.Fatalf("expected date32, got %s", arr.DataType())
		}
		got := arr.(*array.Date32).Value(0).ToTime()
		if !got.Equal(d) {
			t.Errorf("expected %v, got %v", d, got)
		}
	})
	t.Run("int64", func(t *testing.T) {
		arr := rbb.GenInt64Array(39, 0, 17)
		defer arr.Release()
		if arr.(*array.Int64).Value(2) != 17 {
			t.Errorf("expected 17, got %d", arr.(*array.Int64).Value(2))
		}
	})
}

func TestNewRecordBatch(t *testing.T) {
	rbb := NewRecordBatchBuilder()
	schema := customerSchema()
	t.Run("aligned", func(t *testing.T) {
		rb, err := rbb.NewRecordBatch(schema, []arrow.Array{
			rbb.GenStringArray("ALFKI", "ANATR"),
			rbb.GenFloatArray(814.5, 88.8),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rb.RowCount != 2 {
			t.Errorf("expected 2 rows, got %d", rb.RowCount)
		}
		if rb.Column("total") == nil {
			t.Errorf("expected total column to resolve")
		}
		if rb.Column("missing") != nil {
			t.Errorf("expected unknown column to resolve to nil")
		}
	})
	t.Run("type mismatch", func(t *testing.T) {
		_, err := rbb.NewRecordBatch(schema, []arrow.Array{
			rbb.GenStringArray("ALFKI"),
			rbb.GenIntArray(1),
		})
		if err == nil {
			t.Fatal("expected type mismatch error")
		}
	})
	t.Run("column count mismatch", func(t *testing.T) {
		_, err := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("ALFKI")})
		if err == nil {
			t.Fatal("expected column count error")
		}
	})
}

func TestRecordBatchDeepEqual(t *testing.T) {
	rbb := NewRecordBatchBuilder()
	schema := customerSchema()
	a, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("ALFKI"), rbb.GenFloatArray(1)})
	b, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("ALFKI"), rbb.GenFloatArray(1)})
	c, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("ALFKI"), rbb.GenFloatArray(2)})
	if !a.DeepEqual(b) {
		t.Error("expected identical batches to be equal")
	}
	if a.DeepEqual(c) {
		t.Error("expected batches with different values to differ")
	}
}

func TestCollect(t *testing.T) {
	rbb := NewRecordBatchBuilder()
	schema := customerSchema()
	t.Run("concatenates batches in order", func(t *testing.T) {
		b1, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("A", "B"), rbb.GenFloatArray(1, 2)})
		b2, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("C"), rbb.GenFloatArray(3)})
		op := &batchesOperator{schema: schema, batches: []*RecordBatch{b1, b2}}
		rb, err := Collect(op, memory.NewGoAllocator())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rb.RowCount != 3 {
			t.Fatalf("expected 3 rows, got %d", rb.RowCount)
		}
		ids := rb.Columns[0].(*array.String)
		for i, want := range []string{"A", "B", "C"} {
			if ids.Value(i) != want {
				t.Errorf("index %d: expected %s, got %s", i, want, ids.Value(i))
			}
		}
	})
	t.Run("empty input yields typed zero-row batch", func(t *testing.T) {
		op := &batchesOperator{schema: schema}
		rb, err := Collect(op, memory.NewGoAllocator())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rb.RowCount != 0 || len(rb.Columns) != 2 {
			t.Fatalf("expected 0 rows and 2 columns, got %d rows %d columns", rb.RowCount, len(rb.Columns))
		}
		if !arrow.TypeEqual(rb.Columns[1].DataType(), arrow.PrimitiveTypes.Float64) {
			t.Errorf("expected float64 column, got %s", rb.Columns[1].DataType())
		}
	})
	t.Run("propagates child errors", func(t *testing.T) {
		b1, _ := rbb.NewRecordBatch(schema, []arrow.Array{rbb.GenStringArray("A"), rbb.GenFloatArray(1)})
		op := &batchesOperator{schema: schema, batches: []*RecordBatch{b1, b1}, failAt: 1}
		if _, err := Collect(op, memory.NewGoAllocator()); err == nil {
			t.Fatal("expected error from child")
		}
	})
}
