package aggr

import (
	"errors"
	"fmt"
	"io"
	"math"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

/*
rules for group by:
1.Every non-aggregated column in SELECT must be in GROUP BY
2.You can group by multiple columns - creates groups for each unique combination
3.Use HAVING to filter groups (WHERE filters before grouping, HAVING filters after)
*/
var (
	_ = (operators.Operator)(&GroupByExec{})
)

// GroupByExec places every distinct group-by key into a hash table, each key
// getting its own accumulators. Groups are emitted in the order their key was
// first seen in the input, null keys form a group of their own.
type GroupByExec struct {
	child       operators.Operator
	schema      *arrow.Schema
	groupExpr   []AggregateFunctions
	groupByExpr []Expr.Expression
	mem         memory.Allocator

	groups      map[string]int  // key -> position in order
	accs        [][]accumulator // per group, per aggregate
	keyBuilders []array.Builder // first-seen value of every key column

	output []arrow.Array
	rows   int64
	pos    int64
	built  bool
}

func NewGroupByExec(child operators.Operator, groupExpr []AggregateFunctions, groupBy []Expr.Expression) (*GroupByExec, error) {
	if len(groupBy) == 0 {
		return nil, errors.New("group by needs at least one key, use NewGlobalAggrExec otherwise")
	}
	s, err := buildGroupBySchema(child.Schema(), groupBy, groupExpr)
	if err != nil {
		return nil, err
	}
	logger.Component("aggr").Debug("group by created", "keys", len(groupBy), "aggregates", len(groupExpr))
	return &GroupByExec{
		child:       child,
		schema:      s,
		groupExpr:   groupExpr,
		groupByExpr: groupBy,
		mem:         memory.NewGoAllocator(),
		groups:      make(map[string]int),
	}, nil
}

func (g *GroupByExec) Next(batchSize uint16) (*operators.RecordBatch, error) {
	if batchSize == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if !g.built {
		if err := g.build(); err != nil {
			return nil, err
		}
		g.built = true
	}
	if g.pos >= g.rows {
		return nil, io.EOF
	}
	end := g.pos + int64(batchSize)
	if end > g.rows {
		end = g.rows
	}
	rb := operators.SliceBatch(g.schema, g.output, g.pos, end)
	g.pos = end
	return rb, nil
}

func (g *GroupByExec) build() error {
	g.keyBuilders = make([]array.Builder, len(g.groupByExpr))
	for i := range g.groupByExpr {
		g.keyBuilders[i] = array.NewBuilder(g.mem, g.schema.Field(i).Type)
	}
	defer func() {
		for _, b := range g.keyBuilders {
			b.Release()
		}
	}()

	for {
		childBatch, err := g.child.Next(math.MaxUint16)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := g.consume(childBatch); err != nil {
			return err
		}
		operators.ReleaseArrays(childBatch.Columns)
	}

	output := make([]arrow.Array, 0, g.schema.NumFields())
	for _, b := range g.keyBuilders {
		output = append(output, b.NewArray())
	}
	for i := range g.groupExpr {
		b := array.NewBuilder(g.mem, g.schema.Field(len(g.groupByExpr)+i).Type)
		for _, groupAccs := range g.accs {
			appendAccumulator(b, groupAccs[i])
		}
		output = append(output, b.NewArray())
		b.Release()
	}
	g.output = output
	g.rows = int64(len(g.accs))
	logger.Component("aggr").Debug("group by finished", "groups", g.rows)
	return nil
}

func (g *GroupByExec) consume(batch *operators.RecordBatch) error {
	keyCols := make([]arrow.Array, len(g.groupByExpr))
	defer operators.ReleaseArrays(keyCols)
	for i, e := range g.groupByExpr {
		arr, err := Expr.EvalExpression(e, batch)
		if err != nil {
			return err
		}
		keyCols[i] = arr
	}
	values := make([][]float64, len(g.groupExpr))
	valid := make([][]bool, len(g.groupExpr))
	for i, agg := range g.groupExpr {
		v, ok, err := evalAggrInput(agg, batch)
		if err != nil {
			return err
		}
		values[i], valid[i] = v, ok
	}

	for row := 0; row < int(batch.RowCount); row++ {
		key := groupKey(keyCols, row)
		idx, seen := g.groups[key]
		if !seen {
			idx = len(g.accs)
			g.groups[key] = idx
			accs := make([]accumulator, len(g.groupExpr))
			for i, agg := range g.groupExpr {
				accs[i] = agg.newAccumulator()
			}
			g.accs = append(g.accs, accs)
			for i, col := range keyCols {
				if err := appendAt(g.keyBuilders[i], col, row); err != nil {
					return err
				}
			}
		}
		for i := range g.groupExpr {
			if valid[i][row] {
				g.accs[idx][i].Update(values[i][row])
			}
		}
	}
	return nil
}

func (g *GroupByExec) Schema() *arrow.Schema {
	return g.schema
}

func (g *GroupByExec) Close() error {
	operators.ReleaseArrays(g.output)
	g.output = nil
	return g.child.Close()
}

// length-prefixed values, nulls get a marker that no value can produce
func groupKey(cols []arrow.Array, row int) string {
	var b strings.Builder
	for _, col := range cols {
		if col.IsNull(row) {
			b.WriteString("N;")
			continue
		}
		v := col.ValueStr(row)
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

func appendAt(b array.Builder, arr arrow.Array, row int) error {
	if arr.IsNull(row) {
		b.AppendNull()
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		b.(*array.StringBuilder).Append(a.Value(row))
	case *array.Int64:
		b.(*array.Int64Builder).Append(a.Value(row))
	case *array.Int32:
		b.(*array.Int32Builder).Append(a.Value(row))
	case *array.Float64:
		b.(*array.Float64Builder).Append(a.Value(row))
	case *array.Boolean:
		b.(*array.BooleanBuilder).Append(a.Value(row))
	case *array.Date32:
		b.(*array.Date32Builder).Append(a.Value(row))
	default:
		return fmt.Errorf("group by on %s columns is not supported", arr.DataType())
	}
	return nil
}

// handles validation and building of schema for group by
func buildGroupBySchema(childSchema *arrow.Schema, groupByExpr []Expr.Expression, aggrExprs []AggregateFunctions) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(groupByExpr)+len(aggrExprs))

	// 1. group-by columns
	for _, expr := range groupByExpr {
		dt, err := Expr.ExprDataType(expr, childSchema)
		if err != nil {
			return nil, fmt.Errorf("group-by expr %s has invalid type: %w", expr.String(), err)
		}
		fields = append(fields, arrow.Field{
			Name:     Expr.OutputName(expr),
			Type:     dt,
			Nullable: true,
		})
	}

	// 2. aggregate columns
	for _, agg := range aggrExprs {
		dt, err := agg.outputType(childSchema)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{
			Name:     agg.OutputName(),
			Type:     dt,
			Nullable: true,
		})
	}

	return arrow.NewSchema(fields, nil), nil
}
