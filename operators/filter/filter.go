package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
)

var (
	_ = (operators.Operator)(&FilterExec{})
)

var (
	ErrInvalidPredicate = func(pred Expr.Expression, reason error) error {
		return fmt.Errorf("predicate %s passed to FilterExec is invalid: %w", pred, reason)
	}
)

// FilterExec is an operator that filters input records according to a predicate expression.
// Rows where the predicate is null are dropped.
type FilterExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	predicate Expr.Expression
	done      bool
}

func NewFilterExec(input operators.Operator, pred Expr.Expression) (*FilterExec, error) {
	if pred == nil {
		return nil, errors.New("FilterExec requires a predicate")
	}
	if err := validPredicate(pred, input.Schema()); err != nil {
		return nil, ErrInvalidPredicate(pred, err)
	}
	logger.Component("filter").Debug("filter created", "predicate", pred.String())
	return &FilterExec{
		input:     input,
		predicate: pred,
		schema:    input.Schema(),
	}, nil
}
func (f *FilterExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if f.done {
		return nil, io.EOF
	}
	// batches where every row is filtered out are skipped
	for {
		childBatch, err := f.input.Next(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.done = true
				return nil, io.EOF
			}
			return nil, err
		}
		out, err := f.apply(childBatch)
		operators.ReleaseArrays(childBatch.Columns)
		if err != nil {
			return nil, err
		}
		if out.RowCount == 0 {
			operators.ReleaseArrays(out.Columns)
			continue
		}
		return out, nil
	}
}

func (f *FilterExec) apply(childBatch *operators.RecordBatch) (*operators.RecordBatch, error) {
	booleanMask, err := Expr.EvalExpression(f.predicate, childBatch)
	if err != nil {
		return nil, err
	}
	defer booleanMask.Release()
	boolArr, ok := booleanMask.(*array.Boolean) // impossible for this to not be a boolean array,assuming validPredicate works as it should
	if !ok {
		return nil, errors.New("predicate did not evaluate to boolean array")
	}
	filteredCol := make([]arrow.Array, len(childBatch.Columns))
	for i, col := range childBatch.Columns {
		filteredCol[i], err = ApplyBooleanMask(col, boolArr)
		if err != nil {
			operators.ReleaseArrays(filteredCol)
			return nil, err
		}
	}
	var size uint64
	if len(filteredCol) > 0 {
		size = uint64(filteredCol[0].Len())
	}

	return &operators.RecordBatch{
		Schema:   f.schema,
		Columns:  filteredCol,
		RowCount: size,
	}, nil
}
func (f *FilterExec) Schema() *arrow.Schema {
	return f.schema
}

func (f *FilterExec) Close() error {
	return f.input.Close()
}

func ApplyBooleanMask(col arrow.Array, mask *array.Boolean) (arrow.Array, error) {
	datum, err := compute.Filter(
		context.TODO(),
		compute.NewDatum(col),
		compute.NewDatum(mask),
		*compute.DefaultFilterOptions(),
	)
	if err != nil {
		return nil, err
	}

	arr := datum.(*compute.ArrayDatum).MakeArray()
	return arr, nil
}

// a predicate must type-check against the schema and produce booleans
func validPredicate(pred Expr.Expression, schema *arrow.Schema) error {
	dt, err := Expr.ExprDataType(pred, schema)
	if err != nil {
		return err
	}
	if dt.ID() != arrow.BOOL {
		return fmt.Errorf("expected boolean predicate, got %s", dt)
	}
	if b, ok := pred.(*Expr.BinaryExpr); ok && b.Op != Expr.And && b.Op != Expr.Or && b.Op != Expr.Like {
		dt1, err := Expr.ExprDataType(b.Left, schema)
		if err != nil {
			return err
		}
		dt2, err := Expr.ExprDataType(b.Right, schema)
		if err != nil {
			return err
		}
		if !arrow.TypeEqual(dt1, dt2) {
			return Expr.ErrCantCompareDifferentTypes(dt1, dt2)
		}
	}
	return nil
}
