package join

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidJoinClauseCount = func(l, r int) error {
		return fmt.Errorf("mismatched number of join expressions between left and right, left: %d vs right: %d", l, r)
	}
	ErrJoinKeyTypes = func(i int, l, r arrow.DataType) error {
		return fmt.Errorf("join key %d compares %s with %s", i, l, r)
	}
)

var (
	_ = (operators.Operator)(&HashJoinExec{})
)

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "INNER JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	default:
		return "UNKNOWN JOIN TYPE"
	}
}

// taking in arrays of expressions allows for multiple join clauses
// Example: JOIN suppliers ON c.country = s.country AND c.city = s.city
type JoinClause struct {
	leftS  []Expr.Expression
	rightS []Expr.Expression
}

func (j *JoinClause) String() string {
	var b bytes.Buffer
	n := len(j.leftS)
	if len(j.rightS) < n {
		n = len(j.rightS)
	}
	for i := 0; i < n; i++ {
		b.WriteString(j.leftS[i].String())
		b.WriteString(" = ")
		b.WriteString(j.rightS[i].String())
		if i < n-1 {
			b.WriteString(" AND ")
		}
	}
	return b.String()
}

func NewJoinClause(leftS, rightS []Expr.Expression) JoinClause {
	return JoinClause{
		leftS:  leftS,
		rightS: rightS,
	}
}

// OnColumns is the common equi-join on same-named columns pairs,
// OnColumns("country", "country", "city", "city").
func OnColumns(pairs ...string) JoinClause {
	var l, r []Expr.Expression
	for i := 0; i+1 < len(pairs); i += 2 {
		l = append(l, Expr.NewColumnResolve(pairs[i]))
		r = append(r, Expr.NewColumnResolve(pairs[i+1]))
	}
	return NewJoinClause(l, r)
}

// HashJoinExec builds a hash table over the right input and probes it with every
// left row. Output follows left input order, and for one left row its matches
// follow right input order. Rows whose key contains a null never match.
// A left join keeps unmatched left rows with nulls on the right side.
type HashJoinExec struct {
	leftSource  operators.Operator
	rightSource operators.Operator
	clause      JoinClause
	joinType    JoinType
	schema      *arrow.Schema
	mem         memory.Allocator
	// materialized result, handed out in slices
	output []arrow.Array
	rows   int64
	pos    int64
	built  bool
}

type joinPair struct {
	leftRow  int
	rightRow int // -1 when a left join found no match
}

func NewHashJoinExec(left operators.Operator, right operators.Operator, clause JoinClause, joinType JoinType) (*HashJoinExec, error) {
	if len(clause.leftS) != len(clause.rightS) {
		return nil, ErrInvalidJoinClauseCount(len(clause.leftS), len(clause.rightS))
	}
	if len(clause.leftS) == 0 {
		return nil, ErrInvalidJoinClauseCount(0, 0)
	}
	for i := range clause.leftS {
		lt, err := Expr.ExprDataType(clause.leftS[i], left.Schema())
		if err != nil {
			return nil, err
		}
		rt, err := Expr.ExprDataType(clause.rightS[i], right.Schema())
		if err != nil {
			return nil, err
		}
		if !arrow.TypeEqual(lt, rt) {
			return nil, ErrJoinKeyTypes(i, lt, rt)
		}
	}
	logger.Component("join").Debug("hash join created", "clause", clause.String(), "type", joinType.String())
	return &HashJoinExec{
		leftSource:  left,
		rightSource: right,
		clause:      clause,
		joinType:    joinType,
		schema:      joinSchemas(left.Schema(), right.Schema(), joinType),
		mem:         memory.NewGoAllocator(),
	}, nil
}

func (hj *HashJoinExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if !hj.built {
		if err := hj.build(); err != nil {
			return nil, err
		}
		hj.built = true
	}
	if hj.pos >= hj.rows {
		return nil, io.EOF
	}
	end := hj.pos + int64(n)
	if end > hj.rows {
		end = hj.rows
	}
	cols := make([]arrow.Array, len(hj.output))
	for i, c := range hj.output {
		cols[i] = array.NewSlice(c, hj.pos, end)
	}
	rows := uint64(end - hj.pos)
	hj.pos = end
	return &operators.RecordBatch{
		Schema:   hj.schema,
		Columns:  cols,
		RowCount: rows,
	}, nil
}

func (hj *HashJoinExec) build() error {
	left, err := operators.Collect(hj.leftSource, hj.mem)
	if err != nil {
		return err
	}
	defer operators.ReleaseArrays(left.Columns)
	right, err := operators.Collect(hj.rightSource, hj.mem)
	if err != nil {
		return err
	}
	defer operators.ReleaseArrays(right.Columns)

	leftComp, err := buildComptables(hj.clause.leftS, left)
	if err != nil {
		return err
	}
	defer operators.ReleaseArrays(leftComp)
	rightComp, err := buildComptables(hj.clause.rightS, right)
	if err != nil {
		return err
	}
	defer operators.ReleaseArrays(rightComp)

	ht := buildRightHashTable(rightComp, int(right.RowCount))
	pairs := probeJoin(leftComp, ht, int(left.RowCount), hj.joinType)
	logger.Component("join").Debug("hash join probed",
		"left_rows", left.RowCount, "right_rows", right.RowCount, "pairs", len(pairs))

	leftIdxArr, rightIdxArr := buildIndexArrays(hj.mem, pairs)
	defer leftIdxArr.Release()
	defer rightIdxArr.Release()

	out, err := takeColumns(left.Columns, leftIdxArr)
	if err != nil {
		return err
	}
	rightOut, err := takeColumns(right.Columns, rightIdxArr)
	if err != nil {
		operators.ReleaseArrays(out)
		return err
	}
	hj.output = append(out, rightOut...)
	hj.rows = int64(len(pairs))
	return nil
}

func (hj *HashJoinExec) Schema() *arrow.Schema { return hj.schema }

func (hj *HashJoinExec) Close() error {
	operators.ReleaseArrays(hj.output)
	hj.output = nil
	err1 := hj.leftSource.Close()
	err2 := hj.rightSource.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// left schema + right schema, if left and right have same column name, prefix with left_ and right_
// produces left_customer_id, company_name, ..., right_customer_id, turnover
func joinSchemas(left, right *arrow.Schema, joinType JoinType) *arrow.Schema {
	fields := make([]arrow.Field, 0, left.NumFields()+right.NumFields())

	leftNames := map[string]bool{}
	rightNames := map[string]bool{}
	for _, f := range left.Fields() {
		leftNames[f.Name] = true
	}
	for _, f := range right.Fields() {
		rightNames[f.Name] = true
	}
	for _, f := range left.Fields() {
		name := f.Name
		if rightNames[name] {
			name = "left_" + name
		}
		fields = append(fields, arrow.Field{Name: name, Type: f.Type, Nullable: f.Nullable, Metadata: f.Metadata})
	}
	for _, f := range right.Fields() {
		name := f.Name
		if leftNames[name] {
			name = "right_" + name
		}
		// unmatched left rows fill the right side with nulls
		nullable := f.Nullable || joinType == LeftJoin
		fields = append(fields, arrow.Field{Name: name, Type: f.Type, Nullable: nullable, Metadata: f.Metadata})
	}
	return arrow.NewSchema(fields, nil)
}

func buildComptables(exprs []Expr.Expression, batch *operators.RecordBatch) ([]arrow.Array, error) {
	compArr := make([]arrow.Array, len(exprs))
	for i, expr := range exprs {
		arr, err := Expr.EvalExpression(expr, batch)
		if err != nil {
			operators.ReleaseArrays(compArr)
			return nil, err
		}
		compArr[i] = arr
	}
	return compArr, nil
}

// buildRowKey length-prefixes every value so separators inside strings cannot
// collide. ok is false when any key column is null.
func buildRowKey(cols []arrow.Array, row int) (key string, ok bool) {
	var b strings.Builder
	for _, col := range cols {
		if col.IsNull(row) {
			return "", false
		}
		v := col.ValueStr(row)
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String(), true
}

func buildRightHashTable(rightComp []arrow.Array, rowCount int) map[string][]int {
	ht := make(map[string][]int, rowCount)
	for r := 0; r < rowCount; r++ {
		key, ok := buildRowKey(rightComp, r)
		if !ok {
			continue
		}
		ht[key] = append(ht[key], r)
	}
	return ht
}

func probeJoin(leftComp []arrow.Array, rightHT map[string][]int, leftRowCount int, joinType JoinType) []joinPair {
	var pairs []joinPair
	for l := 0; l < leftRowCount; l++ {
		var matches []int
		if key, ok := buildRowKey(leftComp, l); ok {
			matches = rightHT[key]
		}
		if len(matches) == 0 {
			if joinType == LeftJoin {
				pairs = append(pairs, joinPair{leftRow: l, rightRow: -1})
			}
			continue
		}
		for _, r := range matches {
			pairs = append(pairs, joinPair{leftRow: l, rightRow: r})
		}
	}
	return pairs
}

// int32 indices; a null right index makes Take emit a null row
func buildIndexArrays(mem memory.Allocator, pairs []joinPair) (arrow.Array, arrow.Array) {
	lb := array.NewInt32Builder(mem)
	rb := array.NewInt32Builder(mem)
	defer lb.Release()
	defer rb.Release()
	for _, p := range pairs {
		lb.Append(int32(p.leftRow))
		if p.rightRow < 0 {
			rb.AppendNull()
			continue
		}
		rb.Append(int32(p.rightRow))
	}
	return lb.NewArray(), rb.NewArray()
}

func takeColumns(cols []arrow.Array, idx arrow.Array) ([]arrow.Array, error) {
	ctx := context.TODO()
	out := make([]arrow.Array, len(cols))
	for i, col := range cols {
		taken, err := compute.TakeArray(ctx, col, idx)
		if err != nil {
			operators.ReleaseArrays(out)
			return nil, err
		}
		out[i] = taken
	}
	return out, nil
}
