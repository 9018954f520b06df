package project

import (
	"fmt"
	"io"
	"northwind-go/operators"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&InMemorySource{})
)

var (
	ErrInvalidInMemoryDataType = func(Type any) error {
		return fmt.Errorf("%T is not a supported in memory dataType for InMemorySource", Type)
	}
)

// InMemorySource serves already materialized columns in batches of at most n rows.
// Every call to Next hands out zero-copy slices.
type InMemorySource struct {
	schema  *arrow.Schema
	columns []arrow.Array
	pos     int64
	length  int64
}

// NewInMemoryProjectExec builds a source from plain Go slices. A []*string column
// is nullable (nil entries are nulls), []time.Time becomes date32.
func NewInMemoryProjectExec(names []string, columns []any) (*InMemorySource, error) {
	if len(names) != len(columns) {
		return nil, operators.ErrInvalidSchema("number of column names and columns do not match")
	}
	fields := make([]arrow.Field, 0, len(names))
	arrays := make([]arrow.Array, 0, len(names))
	for i, col := range columns {
		field, arr, err := unpackColumn(names[i], col)
		if err != nil {
			operators.ReleaseArrays(arrays)
			return nil, err
		}
		fields = append(fields, field)
		arrays = append(arrays, arr)
	}
	schema := arrow.NewSchema(fields, nil)
	if err := sameLength(schema, arrays); err != nil {
		operators.ReleaseArrays(arrays)
		return nil, err
	}
	return newSource(schema, arrays), nil
}

// NewInMemorySource wraps existing arrays. The source takes its own reference on
// each array, so the caller keeps ownership of theirs.
func NewInMemorySource(schema *arrow.Schema, columns []arrow.Array) (*InMemorySource, error) {
	if schema.NumFields() != len(columns) {
		return nil, operators.ErrInvalidSchema("number of fields and columns do not match")
	}
	for i, f := range schema.Fields() {
		if !arrow.TypeEqual(f.Type, columns[i].DataType()) {
			return nil, operators.ErrInvalidSchema(fmt.Sprintf("column %s is %s, schema says %s", f.Name, columns[i].DataType(), f.Type))
		}
	}
	if err := sameLength(schema, columns); err != nil {
		return nil, err
	}
	for _, c := range columns {
		c.Retain()
	}
	return newSource(schema, columns), nil
}

func newSource(schema *arrow.Schema, columns []arrow.Array) *InMemorySource {
	var length int64
	if len(columns) > 0 {
		length = int64(columns[0].Len())
	}
	return &InMemorySource{
		schema:  schema,
		columns: columns,
		length:  length,
	}
}

func sameLength(schema *arrow.Schema, columns []arrow.Array) error {
	for i := 1; i < len(columns); i++ {
		if columns[i].Len() != columns[0].Len() {
			return operators.ErrInvalidSchema(fmt.Sprintf("column %s has %d rows, expected %d", schema.Field(i).Name, columns[i].Len(), columns[0].Len()))
		}
	}
	return nil
}

// WithFields narrows the source down to the named columns, in the given order.
func (ms *InMemorySource) WithFields(names ...string) error {
	newSchema, cols, err := ProjectSchemaFilterDown(ms.schema, ms.columns, names...)
	if err != nil {
		return err
	}
	operators.ReleaseArrays(ms.columns)
	ms.schema = newSchema
	ms.columns = cols
	return nil
}

func (ms *InMemorySource) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if len(ms.columns) == 0 || ms.pos >= ms.length {
		return nil, io.EOF
	}
	end := ms.pos + int64(n)
	if end > ms.length {
		end = ms.length
	}
	outPutCols := make([]arrow.Array, len(ms.columns))
	for i, col := range ms.columns {
		outPutCols[i] = array.NewSlice(col, ms.pos, end)
	}
	rows := uint64(end - ms.pos)
	ms.pos = end

	return &operators.RecordBatch{
		Schema:   ms.schema,
		Columns:  outPutCols,
		RowCount: rows,
	}, nil
}

func (ms *InMemorySource) Close() error {
	operators.ReleaseArrays(ms.columns)
	ms.columns = nil
	return nil
}

func (ms *InMemorySource) Schema() *arrow.Schema {
	return ms.schema
}

func unpackColumn(name string, col any) (arrow.Field, arrow.Array, error) {
	mem := memory.DefaultAllocator
	field := arrow.Field{Name: name}
	switch data := col.(type) {
	case []int:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range data {
			b.Append(int64(v))
		}
		return field, b.NewArray(), nil
	case []int32:
		field.Type = arrow.PrimitiveTypes.Int32
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []int64:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []float32:
		field.Type = arrow.PrimitiveTypes.Float32
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []float64:
		field.Type = arrow.PrimitiveTypes.Float64
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []string:
		field.Type = arrow.BinaryTypes.String
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []*string:
		field.Type = arrow.BinaryTypes.String
		field.Nullable = true
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range data {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(*v)
		}
		return field, b.NewArray(), nil
	case []bool:
		field.Type = arrow.FixedWidthTypes.Boolean
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	case []time.Time:
		field.Type = arrow.FixedWidthTypes.Date32
		b := array.NewDate32Builder(mem)
		defer b.Release()
		for _, v := range data {
			b.Append(arrow.Date32FromTime(v))
		}
		return field, b.NewArray(), nil
	case []arrow.Date32:
		field.Type = arrow.FixedWidthTypes.Date32
		b := array.NewDate32Builder(mem)
		defer b.Release()
		b.AppendValues(data, nil)
		return field, b.NewArray(), nil
	}
	return arrow.Field{}, nil, fmt.Errorf("column %s: %w", name, ErrInvalidInMemoryDataType(col))
}
