package sink

import (
	"io"
	"strings"
	"text/tabwriter"

	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

// TableSink writes an aligned text table: a header row, a rule, then one line
// per row.
type TableSink struct {
	tw          *tabwriter.Writer
	schema      *arrow.Schema
	wroteHeader bool
}

func NewTableSink(w io.Writer, schema *arrow.Schema) *TableSink {
	return &TableSink{
		tw:     tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		schema: schema,
	}
}

func (t *TableSink) header() error {
	names := make([]string, t.schema.NumFields())
	rules := make([]string, len(names))
	for i, f := range t.schema.Fields() {
		names[i] = f.Name
		rules[i] = strings.Repeat("-", len(f.Name))
	}
	if _, err := io.WriteString(t.tw, strings.Join(names, "\t")+"\n"); err != nil {
		return err
	}
	_, err := io.WriteString(t.tw, strings.Join(rules, "\t")+"\n")
	t.wroteHeader = true
	return err
}

func (t *TableSink) WriteBatch(rb *operators.RecordBatch) error {
	if !t.wroteHeader {
		if err := checkColumns(t.schema); err != nil {
			return err
		}
		if err := t.header(); err != nil {
			return err
		}
	}
	cells := make([]string, len(rb.Columns))
	for row := 0; row < int(rb.RowCount); row++ {
		for c, col := range rb.Columns {
			cells[c] = cell(col, row)
		}
		if _, err := io.WriteString(t.tw, strings.Join(cells, "\t")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the header even for an empty result.
func (t *TableSink) Flush() error {
	if !t.wroteHeader {
		if err := t.header(); err != nil {
			return err
		}
	}
	return t.tw.Flush()
}
