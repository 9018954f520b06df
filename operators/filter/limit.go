package filter

import (
	"io"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	_ = (operators.Operator)(&LimitExec{})
)

// LimitExec passes through at most count rows of its input.
type LimitExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	remaining uint64
}

func NewLimitExec(input operators.Operator, count uint64) (*LimitExec, error) {
	return &LimitExec{
		input:     input,
		schema:    input.Schema(),
		remaining: count,
	}, nil
}

func (l *LimitExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if l.remaining == 0 {
		return nil, io.EOF
	}
	childBatch, err := l.input.Next(n)
	if err != nil {
		return nil, err
	}
	if childBatch.RowCount <= l.remaining {
		l.remaining -= childBatch.RowCount
		return childBatch, nil
	}
	// child handed back more than we still owe; trim the tail
	keep := int64(l.remaining)
	cols := make([]arrow.Array, len(childBatch.Columns))
	for i, c := range childBatch.Columns {
		cols[i] = array.NewSlice(c, 0, keep)
	}
	operators.ReleaseArrays(childBatch.Columns)
	l.remaining = 0
	return &operators.RecordBatch{
		Schema:   l.schema,
		Columns:  cols,
		RowCount: uint64(keep),
	}, nil
}
func (l *LimitExec) Schema() *arrow.Schema {
	return l.schema
}

func (l *LimitExec) Close() error {
	return l.input.Close()
}
