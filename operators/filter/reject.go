package filter

import (
	"errors"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

var (
	_ = (operators.Operator)(&RejectExec{})
)

// RejectExec passes its input through untouched and fails on the first row
// where the predicate is true. reject builds the error for that row.
type RejectExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	predicate Expr.Expression
	reject    func(rb *operators.RecordBatch, row int) error
}

func NewRejectExec(input operators.Operator, pred Expr.Expression, reject func(rb *operators.RecordBatch, row int) error) (*RejectExec, error) {
	if pred == nil || reject == nil {
		return nil, errors.New("RejectExec requires a predicate and a reject func")
	}
	if err := validPredicate(pred, input.Schema()); err != nil {
		return nil, ErrInvalidPredicate(pred, err)
	}
	logger.Component("filter").Debug("reject created", "predicate", pred.String())
	return &RejectExec{
		input:     input,
		schema:    input.Schema(),
		predicate: pred,
		reject:    reject,
	}, nil
}

func (r *RejectExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	childBatch, err := r.input.Next(n)
	if err != nil {
		return nil, err
	}
	mask, err := Expr.EvalExpression(r.predicate, childBatch)
	if err != nil {
		operators.ReleaseArrays(childBatch.Columns)
		return nil, err
	}
	defer mask.Release()
	hits, ok := mask.(*array.Boolean)
	if !ok {
		operators.ReleaseArrays(childBatch.Columns)
		return nil, errors.New("predicate did not evaluate to boolean array")
	}
	for i := 0; i < hits.Len(); i++ {
		if hits.IsValid(i) && hits.Value(i) {
			err := r.reject(childBatch, i)
			operators.ReleaseArrays(childBatch.Columns)
			return nil, err
		}
	}
	return childBatch, nil
}

func (r *RejectExec) Schema() *arrow.Schema {
	return r.schema
}

func (r *RejectExec) Close() error {
	return r.input.Close()
}
