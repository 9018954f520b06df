package sink

import (
	"bufio"
	"io"
	"math"

	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/goccy/go-json"
)

// JSONSink writes one JSON object per row, keys in schema order. Dates are
// "YYYY-MM-DD" strings, nulls are null, and NaN or infinite floats are
// written as the strings "NaN", "+Inf" and "-Inf".
type JSONSink struct {
	w      *bufio.Writer
	schema *arrow.Schema
	keys   [][]byte
}

func NewJSONSink(w io.Writer, schema *arrow.Schema) *JSONSink {
	return &JSONSink{w: bufio.NewWriter(w), schema: schema}
}

func jsonValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch arr := col.(type) {
	case *array.String:
		return arr.Value(i)
	case *array.Float64:
		v := arr.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return formatFloat(v)
		}
		return v
	case *array.Int64:
		return arr.Value(i)
	case *array.Int32:
		return arr.Value(i)
	case *array.Boolean:
		return arr.Value(i)
	case *array.Date32:
		return arr.Value(i).ToTime().Format(dateLayout)
	default:
		return arr.ValueStr(i)
	}
}

func (j *JSONSink) WriteBatch(rb *operators.RecordBatch) error {
	if j.keys == nil {
		if err := checkColumns(j.schema); err != nil {
			return err
		}
		j.keys = make([][]byte, j.schema.NumFields())
		for i, f := range j.schema.Fields() {
			k, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			j.keys[i] = k
		}
	}
	for row := 0; row < int(rb.RowCount); row++ {
		j.w.WriteByte('{')
		for c, col := range rb.Columns {
			if c > 0 {
				j.w.WriteByte(',')
			}
			j.w.Write(j.keys[c])
			j.w.WriteByte(':')
			v, err := json.Marshal(jsonValue(col, row))
			if err != nil {
				return err
			}
			j.w.Write(v)
		}
		if _, err := j.w.WriteString("}\n"); err != nil {
			return err
		}
	}
	return nil
}

func (j *JSONSink) Flush() error {
	return j.w.Flush()
}
