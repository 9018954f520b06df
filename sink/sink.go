// Package sink renders query results. A sink receives batches in emission
// order and never reorders or transforms rows.
package sink

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"northwind-go/logger"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	ErrUnknownFormat = func(format string) error {
		return fmt.Errorf("unknown output format %q", format)
	}
	ErrUnsupportedColumn = func(name string, dt arrow.DataType) error {
		return fmt.Errorf("column %s: cannot render values of type %s", name, dt)
	}
)

const dateLayout = "2006-01-02"

type Sink interface {
	WriteBatch(rb *operators.RecordBatch) error
	// Flush finishes the output; no batch may follow it.
	Flush() error
}

// New returns the text sink for format ("table" or "json").
func New(format string, w io.Writer, schema *arrow.Schema) (Sink, error) {
	switch format {
	case "table":
		return NewTableSink(w, schema), nil
	case "json":
		return NewJSONSink(w, schema), nil
	default:
		return nil, ErrUnknownFormat(format)
	}
}

// Drain pulls op until io.EOF in batches of batchSize and hands every batch to
// s, then flushes s. It returns the number of rows written.
func Drain(op operators.Operator, s Sink, batchSize uint16) (uint64, error) {
	var rows uint64
	for {
		rb, err := op.Next(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		if err := s.WriteBatch(rb); err != nil {
			return rows, err
		}
		rows += rb.RowCount
		operators.ReleaseArrays(rb.Columns)
	}
	logger.Component("sink").Debug("sink drained", "rows", rows)
	return rows, s.Flush()
}

func checkColumns(schema *arrow.Schema) error {
	for _, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.STRING, arrow.BOOL, arrow.DATE32, arrow.INT32, arrow.INT64, arrow.FLOAT64:
		default:
			return ErrUnsupportedColumn(f.Name, f.Type)
		}
	}
	return nil
}

// formatFloat keeps the shortest exact representation and spells out NaN and
// the infinities.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cell renders one value as text; nulls render as NULL.
func cell(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return "NULL"
	}
	switch arr := col.(type) {
	case *array.String:
		return arr.Value(i)
	case *array.Float64:
		return formatFloat(arr.Value(i))
	case *array.Int64:
		return strconv.FormatInt(arr.Value(i), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(i)), 10)
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(i))
	case *array.Date32:
		return arr.Value(i).ToTime().Format(dateLayout)
	default:
		return arr.ValueStr(i)
	}
}
