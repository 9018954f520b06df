package aggr

import (
	"context"
	"fmt"
	"io"
	"math"
	"northwind-go/Expr"
	"northwind-go/logger"
	"northwind-go/operators"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// order by col asc, col 2 desc .... etc
var (
	_ = (operators.Operator)(&SortExec{})
	_ = (operators.Operator)(&TopKSortExec{})
)

// SortKey orders rows by Expr. Nulls compare lower than any value, so they
// come first ascending and last descending.
type SortKey struct {
	Expr      Expr.Expression
	Ascending bool // by default false -- DESC (highest values first -> smaller values)
}

func NewSortKey(expr Expr.Expression, ascending ...bool) *SortKey {
	var asc bool
	if len(ascending) > 0 {
		asc = ascending[0]
	}
	return &SortKey{
		Expr:      expr,
		Ascending: asc,
	}
}

func CombineSortKeys(sk ...*SortKey) []SortKey {
	var res []SortKey
	for _, s := range sk {
		res = append(res, *s)
	}
	return res
}

// Asc and Desc are shorthands for sorting on a named column.
func Asc(column string) *SortKey  { return NewSortKey(Expr.NewColumnResolve(column), true) }
func Desc(column string) *SortKey { return NewSortKey(Expr.NewColumnResolve(column), false) }

func (sk SortKey) String() string {
	dir := "DESC"
	if sk.Ascending {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s", sk.Expr, dir)
}

// SortExec reads its whole input into memory and sorts it. The sort is
// stable: rows with equal keys keep their input order in either direction.
type SortExec struct {
	child    operators.Operator
	schema   *arrow.Schema
	sortKeys []SortKey // resolves to columns
	limit    int64     // < 0 means keep everything
	// internal book keeping
	totalColumns   []arrow.Array
	consumedOffset int64
	totalRows      int64
	consumed       bool // did we finish reading all of the child record batches?
}

func NewSortExec(child operators.Operator, sortKeys []SortKey) (*SortExec, error) {
	if err := validSortKeys(child.Schema(), sortKeys); err != nil {
		return nil, err
	}
	logger.Component("sort").Debug("sort created", "keys", sortKeysString(sortKeys))
	return &SortExec{
		child:    child,
		schema:   child.Schema(),
		sortKeys: sortKeys,
		limit:    -1,
	}, nil
}

func (s *SortExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if !s.consumed {
		if err := s.sortInput(); err != nil {
			return nil, err
		}
		s.consumed = true
	}
	if s.consumedOffset >= s.totalRows {
		return nil, io.EOF
	}
	end := s.consumedOffset + int64(n)
	if end > s.totalRows {
		end = s.totalRows
	}
	rb := operators.SliceBatch(s.schema, s.totalColumns, s.consumedOffset, end)
	s.consumedOffset = end
	return rb, nil
}

func (s *SortExec) sortInput() error {
	mem := memory.NewGoAllocator()
	all, err := operators.Collect(s.child, mem)
	if err != nil {
		return err
	}
	defer operators.ReleaseArrays(all.Columns)
	idx, err := sortBatches(all, s.sortKeys)
	if err != nil {
		return err
	}
	if s.limit >= 0 && int64(len(idx)) > s.limit {
		idx = idx[:s.limit]
	}
	takeIdx := idxToArrowArray(idx, mem)
	defer takeIdx.Release()
	sorted := make([]arrow.Array, len(all.Columns))
	for i, col := range all.Columns {
		arr, err := compute.TakeArray(context.TODO(), col, takeIdx)
		if err != nil {
			operators.ReleaseArrays(sorted)
			return err
		}
		sorted[i] = arr
	}
	s.totalColumns = sorted
	s.totalRows = int64(len(idx))
	return nil
}

func (s *SortExec) Schema() *arrow.Schema {
	return s.schema
}

func (s *SortExec) Close() error {
	operators.ReleaseArrays(s.totalColumns)
	s.totalColumns = nil
	return s.child.Close()
}

// TopKSortExec keeps only the first k rows of the sorted input.
type TopKSortExec struct {
	*SortExec
	k uint16
}

func NewTopKSortExec(child operators.Operator, sortKeys []SortKey, k uint16) (*TopKSortExec, error) {
	s, err := NewSortExec(child, sortKeys)
	if err != nil {
		return nil, err
	}
	s.limit = int64(k)
	return &TopKSortExec{SortExec: s, k: k}, nil
}

// TopK turns a sort that has not started yet into a top-k sort over the same
// child and keys.
func (s *SortExec) TopK(k uint16) (*TopKSortExec, error) {
	if s.consumed || s.limit >= 0 {
		return nil, fmt.Errorf("sort on %s already started or limited", sortKeysString(s.sortKeys))
	}
	return NewTopKSortExec(s.child, s.sortKeys, k)
}

/*
shared functions
*/
func validSortKeys(schema *arrow.Schema, sortKeys []SortKey) error {
	if len(sortKeys) == 0 {
		return fmt.Errorf("sort needs at least one sort key")
	}
	for _, sk := range sortKeys {
		dt, err := Expr.ExprDataType(sk.Expr, schema)
		if err != nil {
			return fmt.Errorf("sort key %s: %w", sk, err)
		}
		if !sortableType(dt) {
			return fmt.Errorf("sort key %s: cannot order values of type %s", sk, dt)
		}
	}
	return nil
}

func sortableType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.STRING, arrow.BOOL, arrow.DATE32,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

func sortKeysString(sortKeys []SortKey) string {
	parts := make([]string, len(sortKeys))
	for i, sk := range sortKeys {
		parts[i] = sk.String()
	}
	return strings.Join(parts, ", ")
}

func sortBatches(fullRC *operators.RecordBatch, sortKeys []SortKey) ([]uint64, error) {
	keyColumns := make([]arrow.Array, len(sortKeys))
	defer operators.ReleaseArrays(keyColumns)
	for i, sk := range sortKeys {
		arr, err := Expr.EvalExpression(sk.Expr, fullRC)
		if err != nil {
			return nil, fmt.Errorf("sort batches: failed to eval sort expression: %w", err)
		}
		keyColumns[i] = arr
	}
	idVector := make([]uint64, fullRC.RowCount)
	for i := range idVector {
		idVector[i] = uint64(i)
	}
	sortIndexVector(idVector, keyColumns, sortKeys)
	return idVector, nil
}

// sortIndexVector stably sorts idVec based on keyColumns + sortKeys.
// keyColumns[i] corresponds to sortKeys[i].
func sortIndexVector(idVec []uint64, keyColumns []arrow.Array, sortKeys []SortKey) {
	sort.SliceStable(idVec, func(a, b int) bool {
		i := idVec[a]
		j := idVec[b]

		// lexicographic: go through each sort key
		for k, col := range keyColumns {
			cmp := compareArrowValues(col, i, j)
			if cmp == 0 {
				continue // equal -> move to next key
			}
			if sortKeys[k].Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		// completely equal for all keys, keep input order
		return false
	})
}

func compareArrowValues(col arrow.Array, i, j uint64) int {
	// nulls are the lowest value
	if col.IsNull(int(i)) && col.IsNull(int(j)) {
		return 0
	}
	if col.IsNull(int(i)) {
		return -1
	}
	if col.IsNull(int(j)) {
		return 1
	}

	switch arr := col.(type) {
	case *array.String:
		return strings.Compare(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Int8:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Int16:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Int32:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Int64:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Uint8:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Uint16:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Uint32:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Uint64:
		return compareNumeric(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Date32:
		return compareNumeric(int32(arr.Value(int(i))), int32(arr.Value(int(j))))
	case *array.Float32:
		return compareFloat(float64(arr.Value(int(i))), float64(arr.Value(int(j))))
	case *array.Float64:
		return compareFloat(arr.Value(int(i)), arr.Value(int(j)))
	case *array.Boolean:
		vi, vj := arr.Value(int(i)), arr.Value(int(j))
		if vi == vj {
			return 0
		}
		if !vi && vj {
			return -1
		}
		return 1
	default:
		// validSortKeys rejects everything else up front
		return 0
	}
}

func compareNumeric[T int64 | int32 | int16 | int8 | uint64 | uint32 | uint16 | uint8](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NaN sorts above every number so the ordering stays total
func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func idxToArrowArray(v []uint64, mem memory.Allocator) arrow.Array {
	b := array.NewUint64Builder(mem)
	defer b.Release()
	b.AppendValues(v, nil)
	return b.NewArray()
}
