package aggr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrUnsupportedAggrFunc = func(aggr int) error {
		return fmt.Errorf("%d is an unsupported aggregate function", aggr)
	}
	ErrInvalidAggrColumnType = func(fn AggrFunc, dt arrow.DataType) error {
		return fmt.Errorf("%s cannot aggregate a column of type %v", fn, dt)
	}
	// ErrEmptyAggregate is returned when MIN or MAX is asked for over an input
	// with no non-null values. Callers are expected to filter such inputs out first.
	ErrEmptyAggregate = errors.New("empty input has no minimum or maximum")
)

// AggrFunc represents the type of aggregation function to be performed.
type AggrFunc int

const (
	Min AggrFunc = iota
	Max
	Count
	Sum
	Avg
)

func (f AggrFunc) String() string {
	switch f {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	default:
		return "UNKNOWN_AGGREGATE_FUNCTION"
	}
}

var (
	_ = (accumulator)(&MinAggrAccumulator{})
	_ = (accumulator)(&MaxAggrAccumulator{})
	_ = (accumulator)(&CountAggrAccumulator{})
	_ = (accumulator)(&SumAggrAccumulator{})
	_ = (accumulator)(&AvgAggrAccumulator{})
	_ = (operators.Operator)(&AggrExec{})
)

func NewAggregateFunctions(aggrFunc AggrFunc, child Expr.Expression) AggregateFunctions {
	return AggregateFunctions{
		AggrFunc: aggrFunc,
		Child:    child,
	}
}

type AggregateFunctions struct {
	AggrFunc AggrFunc        // switch to deal with separate aggregate functions
	Child    Expr.Expression // resolves to a column generally
	Name     string          // output column name, defaults to func_column
}

// As names the output column.
func (a AggregateFunctions) As(name string) AggregateFunctions {
	a.Name = name
	return a
}

func (a AggregateFunctions) OutputName() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%s_%s", strings.ToLower(a.AggrFunc.String()), Expr.OutputName(a.Child))
}

// output type: COUNT is int64, MIN/MAX of a date stay dates, everything else is float64
func (a AggregateFunctions) outputType(childSchema *arrow.Schema) (arrow.DataType, error) {
	dt, err := Expr.ExprDataType(a.Child, childSchema)
	if err != nil {
		return nil, err
	}
	switch a.AggrFunc {
	case Count:
		return arrow.PrimitiveTypes.Int64, nil
	case Min, Max:
		if dt.ID() == arrow.DATE32 {
			return arrow.FixedWidthTypes.Date32, nil
		}
	case Sum, Avg:
	default:
		return nil, ErrUnsupportedAggrFunc(int(a.AggrFunc))
	}
	if !validAggrType(dt) {
		return nil, ErrInvalidAggrColumnType(a.AggrFunc, dt)
	}
	return arrow.PrimitiveTypes.Float64, nil
}

func (a AggregateFunctions) newAccumulator() accumulator {
	switch a.AggrFunc {
	case Min:
		return newMinAggr()
	case Max:
		return newMaxAggr()
	case Count:
		return NewCountAggr()
	case Sum:
		return NewSumAggr()
	default:
		return newAvgAggr()
	}
}

type accumulator interface {
	Update(value float64)
	Finalize() float64
	// Defined is false for MIN/MAX that never saw a value
	Defined() bool
}

func newMinAggr() accumulator {
	return &MinAggrAccumulator{}
}

type MinAggrAccumulator struct {
	minV       float64
	firstValue bool
}

func (m *MinAggrAccumulator) Update(value float64) {
	if !m.firstValue {
		m.minV = value
		m.firstValue = true
		return
	}
	m.minV = min(m.minV, value)
}
func (m *MinAggrAccumulator) Finalize() float64 { return m.minV }
func (m *MinAggrAccumulator) Defined() bool     { return m.firstValue }

func newMaxAggr() accumulator {
	return &MaxAggrAccumulator{}
}

type MaxAggrAccumulator struct {
	maxV       float64
	firstValue bool
}

func (m *MaxAggrAccumulator) Update(value float64) {
	if !m.firstValue {
		m.maxV = value
		m.firstValue = true
		return
	}
	m.maxV = max(m.maxV, value)
}
func (m *MaxAggrAccumulator) Finalize() float64 { return m.maxV }
func (m *MaxAggrAccumulator) Defined() bool     { return m.firstValue }

func NewCountAggr() accumulator {
	return &CountAggrAccumulator{}
}

type CountAggrAccumulator struct {
	count float64
}

func (c *CountAggrAccumulator) Update(_ float64) {
	c.count++
}
func (c *CountAggrAccumulator) Finalize() float64 { return c.count }
func (c *CountAggrAccumulator) Defined() bool     { return true }

func NewSumAggr() accumulator {
	return &SumAggrAccumulator{}
}

// sum over nothing is 0
type SumAggrAccumulator struct {
	summation float64
}

func (s *SumAggrAccumulator) Update(value float64) {
	s.summation += value
}
func (s *SumAggrAccumulator) Finalize() float64 { return s.summation }
func (s *SumAggrAccumulator) Defined() bool     { return true }

func newAvgAggr() accumulator {
	return &AvgAggrAccumulator{}
}

type AvgAggrAccumulator struct {
	used   bool
	values float64
	count  float64
}

func (a *AvgAggrAccumulator) Update(value float64) {
	a.used = true
	a.values += value
	a.count++
}
func (a *AvgAggrAccumulator) Finalize() float64 {
	// handles divide by zero
	if !a.used {
		return 0.0
	}
	return a.values / a.count
}
func (a *AvgAggrAccumulator) Defined() bool { return true }

// ===================
// Aggregator Operator
// ===================
// handles global aggregations without group by, always a single output row
type AggrExec struct {
	child          operators.Operator   // child operator
	schema         *arrow.Schema        // output schema
	aggExpressions []AggregateFunctions // list of wanted aggregate expressions
	accumulators   []accumulator        // one per aggExpression
	done           bool                 // know when to return io.EOF
}

func NewGlobalAggrExec(child operators.Operator, aggExprs []AggregateFunctions) (*AggrExec, error) {
	if len(aggExprs) == 0 {
		return nil, errors.New("global aggregate needs at least one aggregate expression")
	}
	accs := make([]accumulator, len(aggExprs))
	fields := make([]arrow.Field, len(aggExprs))
	for i, agg := range aggExprs {
		dt, err := agg.outputType(child.Schema())
		if err != nil {
			return nil, err
		}
		accs[i] = agg.newAccumulator()
		fields[i] = arrow.Field{
			Name:     agg.OutputName(),
			Type:     dt,
			Nullable: true,
		}
	}
	return &AggrExec{
		child:          child,
		schema:         arrow.NewSchema(fields, nil),
		aggExpressions: aggExprs,
		accumulators:   accs,
	}, nil
}

// AggrExec is a pipeline breaker: the first Next consumes the whole input and
// returns the single result row, the second returns io.EOF.
func (a *AggrExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if a.done {
		return nil, io.EOF
	}
	for {
		childBatch, err := a.child.Next(math.MaxUint16)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		for i, aggExpr := range a.aggExpressions {
			values, valid, err := evalAggrInput(aggExpr, childBatch)
			if err != nil {
				return nil, err
			}
			for j := range values {
				if valid[j] {
					a.accumulators[i].Update(values[j])
				}
			}
		}
		operators.ReleaseArrays(childBatch.Columns)
	}
	a.done = true

	mem := memory.NewGoAllocator()
	resultColumns := make([]arrow.Array, len(a.accumulators))
	for i, acc := range a.accumulators {
		if !acc.Defined() {
			operators.ReleaseArrays(resultColumns)
			return nil, fmt.Errorf("%s: %w", a.aggExpressions[i].OutputName(), ErrEmptyAggregate)
		}
		b := array.NewBuilder(mem, a.schema.Field(i).Type)
		appendAccumulator(b, acc)
		resultColumns[i] = b.NewArray()
		b.Release()
	}
	logger.Component("aggr").Debug("global aggregate finished", "columns", len(resultColumns))
	return &operators.RecordBatch{
		Schema:   a.schema,
		Columns:  resultColumns,
		RowCount: 1,
	}, nil
}

func (a *AggrExec) Schema() *arrow.Schema {
	return a.schema
}
func (a *AggrExec) Close() error {
	return a.child.Close()
}

func validAggrType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64, arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return true
	default:
		return false
	}
}

// evalAggrInput evaluates the aggregate's child and flattens it into float64
// values plus a validity mask. Dates become days since the epoch. COUNT only
// needs validity so any column type works.
func evalAggrInput(agg AggregateFunctions, batch *operators.RecordBatch) ([]float64, []bool, error) {
	arr, err := Expr.EvalExpression(agg.Child, batch)
	if err != nil {
		return nil, nil, err
	}
	defer arr.Release()
	n := arr.Len()
	values := make([]float64, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		valid[i] = arr.IsValid(i)
	}
	if agg.AggrFunc == Count {
		return values, valid, nil
	}
	if dates, ok := arr.(*array.Date32); ok {
		for i := 0; i < n; i++ {
			values[i] = float64(dates.Value(i))
		}
		return values, valid, nil
	}
	casted, err := castArrayToFloat64(arr)
	if err != nil {
		return nil, nil, err
	}
	defer casted.Release()
	floats := casted.(*array.Float64)
	for i := 0; i < n; i++ {
		values[i] = floats.Value(i)
	}
	return values, valid, nil
}

func appendAccumulator(b array.Builder, acc accumulator) {
	if !acc.Defined() {
		b.AppendNull()
		return
	}
	switch bb := b.(type) {
	case *array.Int64Builder:
		bb.Append(int64(acc.Finalize()))
	case *array.Date32Builder:
		bb.Append(arrow.Date32(int32(acc.Finalize())))
	case *array.Float64Builder:
		bb.Append(acc.Finalize())
	default:
		b.AppendNull()
	}
}

func castArrayToFloat64(arr arrow.Array) (arrow.Array, error) {
	if arr.DataType().ID() == arrow.FLOAT64 {
		arr.Retain()
		return arr, nil
	}
	return compute.CastArray(context.TODO(), arr, compute.NewCastOptions(arrow.PrimitiveTypes.Float64, true))
}
