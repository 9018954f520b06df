package aggr

import (
	"northwind-go/Expr"
	"northwind-go/operators"
	"northwind-go/operators/filter"
)

var (
	_ = (operators.Operator)(&HavingExec{})
)

// HavingExec filters groups after aggregation. It is a FilterExec whose
// predicate may reference aggregate output columns by name.
type HavingExec struct {
	*filter.FilterExec
}

func NewHavingExec(input operators.Operator, havingFilter Expr.Expression) (*HavingExec, error) {
	f, err := filter.NewFilterExec(input, havingFilter)
	if err != nil {
		return nil, err
	}
	return &HavingExec{FilterExec: f}, nil
}
