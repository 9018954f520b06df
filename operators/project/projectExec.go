package project

import (
	"errors"
	"fmt"
	"io"
	"northwind-go/Expr"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	_ = (operators.Operator)(&ProjectExec{})
)

var (
	ErrEmptyColumnsToProject = errors.New("no columns passed in")
	ErrProjectColumnNotFound = errors.New("invalid column passed in to be pruned")
)

// ProjectExec evaluates one expression per output column against every
// input batch. Output columns are named after the expression (alias or
// column name).
type ProjectExec struct {
	input  operators.Operator
	exprs  []Expr.Expression
	schema *arrow.Schema
	done   bool
}

func NewProjectExec(input operators.Operator, exprs []Expr.Expression) (*ProjectExec, error) {
	if len(exprs) == 0 {
		return nil, ErrEmptyColumnsToProject
	}
	inSchema := input.Schema()
	fields := make([]arrow.Field, len(exprs))
	for i, e := range exprs {
		dt, err := Expr.ExprDataType(e, inSchema)
		if err != nil {
			return nil, fmt.Errorf("project expression %s: %w", e, err)
		}
		nullable := true
		if c, ok := e.(*Expr.ColumnResolve); ok {
			f, _ := inSchema.FieldsByName(c.Name)
			if len(f) > 0 {
				nullable = f[0].Nullable
			}
		}
		fields[i] = arrow.Field{Name: Expr.OutputName(e), Type: dt, Nullable: nullable}
	}
	return &ProjectExec{
		input:  input,
		exprs:  exprs,
		schema: arrow.NewSchema(fields, nil),
	}, nil
}

func (p *ProjectExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if p.done {
		return nil, io.EOF
	}
	childBatch, err := p.input.Next(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.done = true
		}
		return nil, err
	}
	defer operators.ReleaseArrays(childBatch.Columns)
	cols := make([]arrow.Array, len(p.exprs))
	for i, e := range p.exprs {
		cols[i], err = Expr.EvalExpression(e, childBatch)
		if err != nil {
			operators.ReleaseArrays(cols)
			return nil, err
		}
	}
	return &operators.RecordBatch{
		Schema:   p.schema,
		Columns:  cols,
		RowCount: childBatch.RowCount,
	}, nil
}

func (p *ProjectExec) Schema() *arrow.Schema {
	return p.schema
}

func (p *ProjectExec) Close() error {
	return p.input.Close()
}

// handle keeping only the request columns but make sure the schema and columns are also aligned
// returns error if a column doesnt exist
func ProjectSchemaFilterDown(schema *arrow.Schema, cols []arrow.Array, keepCols ...string) (*arrow.Schema, []arrow.Array, error) {
	if len(keepCols) == 0 {
		return arrow.NewSchema([]arrow.Field{}, nil), nil, ErrEmptyColumnsToProject
	}

	fieldIndex := make(map[string]int)
	for i, f := range schema.Fields() {
		fieldIndex[f.Name] = i
	}

	newFields := make([]arrow.Field, 0, len(keepCols))
	newCols := make([]arrow.Array, 0, len(keepCols))

	// Preserve order from keepCols, not schema order
	for _, name := range keepCols {
		idx, exists := fieldIndex[name]
		if !exists {
			return arrow.NewSchema([]arrow.Field{}, nil), []arrow.Array{}, fmt.Errorf("%w: %s", ErrProjectColumnNotFound, name)
		}
		newFields = append(newFields, schema.Field(idx))
		col := cols[idx]
		col.Retain()
		newCols = append(newCols, col)
	}
	return arrow.NewSchema(newFields, nil), newCols, nil
}
