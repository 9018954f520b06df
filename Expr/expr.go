package Expr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"northwind-go/operators"
	"regexp"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression passed to EvalExpression: %s", info)
	}
	ErrCantCompareDifferentTypes = func(leftType, rightType arrow.DataType) error {
		return fmt.Errorf("cannot compare different data types: %s and %s", leftType, rightType)
	}
	ErrCaseBranchTypes = errors.New("all CASE branches must resolve to the same data type")
)

type binaryOperator int

const (
	// arithmetic
	Addition       binaryOperator = 1
	Subtraction    binaryOperator = 2
	Multiplication binaryOperator = 3
	Division       binaryOperator = 4
	// comparison
	Equal              binaryOperator = 6
	NotEqual           binaryOperator = 7
	LessThan           binaryOperator = 8
	LessThanOrEqual    binaryOperator = 9
	GreaterThan        binaryOperator = 10
	GreaterThanOrEqual binaryOperator = 11
	// logical
	And binaryOperator = 12
	Or  binaryOperator = 13
	// RegEx expressions
	Like binaryOperator = 14 // where column_name like "patte%n_with_wi%dcard_"
)

func (op binaryOperator) String() string {
	switch op {
	case Addition:
		return "+"
	case Subtraction:
		return "-"
	case Multiplication:
		return "*"
	case Division:
		return "/"
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	case And:
		return "AND"
	case Or:
		return "OR"
	case Like:
		return "LIKE"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsPredicate reports whether op yields a boolean array.
func (op binaryOperator) IsPredicate() bool {
	switch op {
	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, And, Or, Like:
		return true
	}
	return false
}

type supportedFunctions int

const (
	Lower supportedFunctions = 2
	// half to even, to the nearest integer
	Round supportedFunctions = 4
	// date parts, date32 in -> int64 out
	Year  supportedFunctions = 5
	Month supportedFunctions = 6
	// integer month number (1-12) -> English month name
	MonthName supportedFunctions = 7
)

func (f supportedFunctions) String() string {
	switch f {
	case Lower:
		return "LOWER"
	case Round:
		return "ROUND"
	case Year:
		return "YEAR"
	case Month:
		return "MONTH"
	case MonthName:
		return "MONTHNAME"
	}
	return fmt.Sprintf("fn(%d)", int(f))
}

var (
	_ = (Expression)(&Alias{})
	_ = (Expression)(&ColumnResolve{})
	_ = (Expression)(&LiteralResolve{})
	_ = (Expression)(&BinaryExpr{})
	_ = (Expression)(&ScalarFunction{})
	_ = (Expression)(&CastExpr{})
	_ = (Expression)(&NullCheckExpr{})
	_ = (Expression)(&NotExpr{})
	_ = (Expression)(&StringMatchExpr{})
	_ = (Expression)(&CaseExpr{})
)

/*
Eval(expr):

	match expr:
	    Literal(x) -> return x
	    Column(name) -> return array of that column
	    BinaryExpr(left > right) -> eval left, eval right, apply operator
	    ScalarFunction(upper(name)) -> evaluate function
	    Alias(expr, name) -> just a name wrapper
	    Case(when c then v ... else e) -> first matching branch per row
*/
type Expression interface {
	// empty method, only for the sake of polymorphism
	ExprNode()
	fmt.Stringer
}

func EvalExpression(expr Expression, batch *operators.RecordBatch) (arrow.Array, error) {
	switch e := expr.(type) {
	case *Alias:
		return EvalAlias(e, batch)
	case *ColumnResolve:
		return EvalColumn(e, batch)
	case *LiteralResolve:
		return EvalLiteral(e, batch)
	case *BinaryExpr:
		return EvalBinary(e, batch)
	case *ScalarFunction:
		return EvalScalarFunction(e, batch)
	case *CastExpr:
		return EvalCast(e, batch)
	case *NullCheckExpr:
		return EvalNullCheckMask(e.Expr, batch)
	case *NotExpr:
		return EvalNot(e, batch)
	case *StringMatchExpr:
		return EvalStringMatch(e, batch)
	case *CaseExpr:
		return EvalCase(e, batch)
	default:
		return nil, ErrUnsupportedExpression(expr.String())
	}
}

func ExprDataType(e Expression, inputSchema *arrow.Schema) (arrow.DataType, error) {
	switch ex := e.(type) {

	case *LiteralResolve:
		return ex.Type, nil

	case *ColumnResolve:
		idx := inputSchema.FieldIndices(ex.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("exprDataType: unknown column %q", ex.Name)
		}
		return inputSchema.Field(idx[0]).Type, nil
	case *Alias:
		// alias does NOT change type
		return ExprDataType(ex.Expr, inputSchema)

	case *CastExpr:
		return ex.TargetType, nil

	case *BinaryExpr:
		leftType, err := ExprDataType(ex.Left, inputSchema)
		if err != nil {
			return nil, err
		}
		rightType, err := ExprDataType(ex.Right, inputSchema)
		if err != nil {
			return nil, err
		}
		return inferBinaryType(leftType, ex.Op, rightType)

	case *ScalarFunction:
		argType, err := ExprDataType(ex.Arguments, inputSchema)
		if err != nil {
			return nil, err
		}
		return inferScalarFunctionType(ex.Function, argType)
	case *NullCheckExpr:
		if _, err := ExprDataType(ex.Expr, inputSchema); err != nil {
			return nil, err
		}
		return arrow.FixedWidthTypes.Boolean, nil
	case *NotExpr:
		dt, err := ExprDataType(ex.Expr, inputSchema)
		if err != nil {
			return nil, err
		}
		if dt.ID() != arrow.BOOL {
			return nil, fmt.Errorf("NOT requires a boolean operand, got %s", dt)
		}
		return arrow.FixedWidthTypes.Boolean, nil
	case *StringMatchExpr:
		dt, err := ExprDataType(ex.Expr, inputSchema)
		if err != nil {
			return nil, err
		}
		if dt.ID() != arrow.STRING {
			return nil, fmt.Errorf("%s requires a string operand, got %s", ex.Kind, dt)
		}
		return arrow.FixedWidthTypes.Boolean, nil
	case *CaseExpr:
		return caseDataType(ex, inputSchema)

	default:
		return nil, ErrUnsupportedExpression(ex.String())
	}
}
func NewExpressions(exprs ...Expression) []Expression {
	return exprs
}

// OutputName is the column name an expression produces in a projection.
func OutputName(e Expression) string {
	switch ex := e.(type) {
	case *Alias:
		return ex.Name
	case *ColumnResolve:
		return ex.Name
	default:
		return e.String()
	}
}

/*
Alias | sql: select col1 as new_name from table_source
updates the column name in the output schema.
*/
type Alias struct {
	Expr Expression
	Name string
}

func NewAlias(expr Expression, name string) *Alias {
	return &Alias{
		Expr: expr,
		Name: name,
	}
}

func EvalAlias(a *Alias, batch *operators.RecordBatch) (arrow.Array, error) {
	return EvalExpression(a.Expr, batch)
}
func (a *Alias) ExprNode() {}
func (a *Alias) String() string {
	return fmt.Sprintf("Alias(%s AS %s)", a.Expr, a.Name)

}

// resolves the arrow array corresponding to name passed in
// sql: select age
type ColumnResolve struct {
	Name string
}

func NewColumnResolve(name string) *ColumnResolve {
	return &ColumnResolve{Name: name}
}

func EvalColumn(c *ColumnResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	// schema and columns are always aligned
	for i, f := range batch.Schema.Fields() {
		if f.Name == c.Name {
			col := batch.Columns[i]
			col.Retain()
			return col, nil
		}
	}
	return nil, fmt.Errorf("column %s not found", c.Name)
}
func (c *ColumnResolve) ExprNode() {}
func (c *ColumnResolve) String() string {
	return fmt.Sprintf("Column(%s)", c.Name)
}

// Evaluates to a column of length = batch-size, filled with this literal.
// sql: select 1
type LiteralResolve struct {
	Type arrow.DataType
	// dont forget to cast the value. so string("hello") not just "hello"
	Value any
}

func NewLiteralResolve(Type arrow.DataType, Value any) *LiteralResolve {
	var castVal any

	switch v := Value.(type) {
	case int:
		switch Type.ID() {
		case arrow.INT32:
			castVal = int32(v)
		case arrow.INT64:
			castVal = int64(v)
		case arrow.FLOAT64:
			castVal = float64(v)
		default:
			castVal = v
		}
	case float64:
		switch Type.ID() {
		case arrow.FLOAT32:
			castVal = float32(v)
		default:
			castVal = v
		}
	case time.Time:
		castVal = arrow.Date32FromTime(v)
	default:
		castVal = Value
	}
	return &LiteralResolve{Type: Type, Value: castVal}
}

// literal helpers for the common column types
func Float(v float64) *LiteralResolve {
	return NewLiteralResolve(arrow.PrimitiveTypes.Float64, v)
}
func Int(v int64) *LiteralResolve {
	return NewLiteralResolve(arrow.PrimitiveTypes.Int64, v)
}
func String(v string) *LiteralResolve {
	return NewLiteralResolve(arrow.BinaryTypes.String, v)
}

func EvalLiteral(l *LiteralResolve, batch *operators.RecordBatch) (arrow.Array, error) {
	n := int(batch.RowCount)

	switch l.Type.ID() {
	case arrow.BOOL:
		val, ok := l.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("literal %v is not a bool", l.Value)
		}
		b := array.NewBooleanBuilder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(val)
		}
		return b.NewArray(), nil

	case arrow.INT32:
		v, ok := l.Value.(int32)
		if !ok {
			return nil, fmt.Errorf("literal %v is not an int32", l.Value)
		}
		b := array.NewInt32Builder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil

	case arrow.INT64:
		v, ok := l.Value.(int64)
		if !ok {
			return nil, fmt.Errorf("literal %v is not an int64", l.Value)
		}
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil

	case arrow.FLOAT64:
		v, ok := l.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("literal %v is not a float64", l.Value)
		}
		b := array.NewFloat64Builder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil

	case arrow.STRING:
		v, ok := l.Value.(string)
		if !ok {
			return nil, fmt.Errorf("literal %v is not a string", l.Value)
		}
		b := array.NewStringBuilder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil

	case arrow.DATE32:
		v, ok := l.Value.(arrow.Date32)
		if !ok {
			return nil, fmt.Errorf("literal %v is not a date", l.Value)
		}
		b := array.NewDate32Builder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.Append(v)
		}
		return b.NewArray(), nil

	case arrow.NULL:
		b := array.NewNullBuilder(memory.DefaultAllocator)
		defer b.Release()
		for i := 0; i < n; i++ {
			b.AppendNull()
		}
		return b.NewArray(), nil

	default:
		return nil, fmt.Errorf("literal type %s not supported", l.Type)
	}
}

func (l *LiteralResolve) ExprNode() {}
func (l *LiteralResolve) String() string {
	return fmt.Sprintf("Literal(%v)", l.Value)
}

type BinaryExpr struct {
	Left  Expression
	Op    binaryOperator
	Right Expression
}

func NewBinaryExpr(left Expression, op binaryOperator, right Expression) *BinaryExpr {
	return &BinaryExpr{
		Left:  left,
		Op:    op,
		Right: right,
	}
}

var comparisonKernels = map[binaryOperator]string{
	Equal:              "equal",
	NotEqual:           "not_equal",
	LessThan:           "less",
	LessThanOrEqual:    "less_equal",
	GreaterThan:        "greater",
	GreaterThanOrEqual: "greater_equal",
	And:                "and",
	Or:                 "or",
}

func EvalBinary(b *BinaryExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	leftArr, err := EvalExpression(b.Left, batch)
	if err != nil {
		return nil, err
	}
	defer leftArr.Release()
	rightArr, err := EvalExpression(b.Right, batch)
	if err != nil {
		return nil, err
	}
	defer rightArr.Release()
	ctx := context.TODO()
	opt := compute.ArithmeticOptions{}
	switch b.Op {
	// arithmetic
	case Addition:
		datum, err := compute.Add(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Subtraction:
		datum, err := compute.Subtract(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Multiplication:
		datum, err := compute.Multiply(ctx, opt, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Division:
		// unchecked so float division by zero follows IEEE 754 (+Inf / NaN)
		datum, err := compute.Divide(ctx, compute.ArithmeticOptions{NoCheckOverflow: true}, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)

	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, And, Or:
		if !arrow.TypeEqual(leftArr.DataType(), rightArr.DataType()) {
			return nil, ErrCantCompareDifferentTypes(leftArr.DataType(), rightArr.DataType())
		}
		if ls, ok := leftArr.(*array.String); ok {
			return compareStrings(ls, b.Op, rightArr.(*array.String))
		}
		datum, err := compute.CallFunction(ctx, comparisonKernels[b.Op], nil, compute.NewDatum(leftArr), compute.NewDatum(rightArr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)

	case Like:
		if leftArr.DataType() != arrow.BinaryTypes.String || rightArr.DataType() != arrow.BinaryTypes.String {
			return nil, errors.New("binary operator Like only works on arrays of strings")
		}
		if rightArr.Len() == 0 {
			return array.NewBooleanBuilder(memory.DefaultAllocator).NewArray(), nil
		}
		compiledRegEx, err := regexp.Compile(compileSqlRegEx(rightArr.ValueStr(0)))
		if err != nil {
			return nil, err
		}
		filterBuilder := array.NewBooleanBuilder(memory.DefaultAllocator)
		defer filterBuilder.Release()
		leftStrArray := leftArr.(*array.String)
		for i := 0; i < leftStrArray.Len(); i++ {
			if leftStrArray.IsNull(i) {
				filterBuilder.Append(false)
				continue
			}
			filterBuilder.Append(compiledRegEx.MatchString(leftStrArray.Value(i)))
		}
		return filterBuilder.NewArray(), nil

	}
	return nil, fmt.Errorf("binary operator %d not supported", b.Op)
}

// compareStrings evaluates a comparison row by row; a null on either side
// yields null like the compute kernels do.
func compareStrings(left *array.String, op binaryOperator, right *array.String) (arrow.Array, error) {
	b := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer b.Release()
	b.Reserve(left.Len())
	for i := 0; i < left.Len(); i++ {
		if left.IsNull(i) || right.IsNull(i) {
			b.AppendNull()
			continue
		}
		c := strings.Compare(left.Value(i), right.Value(i))
		switch op {
		case Equal:
			b.Append(c == 0)
		case NotEqual:
			b.Append(c != 0)
		case LessThan:
			b.Append(c < 0)
		case LessThanOrEqual:
			b.Append(c <= 0)
		case GreaterThan:
			b.Append(c > 0)
		case GreaterThanOrEqual:
			b.Append(c >= 0)
		default:
			return nil, fmt.Errorf("operator %s is not defined for strings", op)
		}
	}
	return b.NewArray(), nil
}

func (b *BinaryExpr) ExprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("BinaryExpr(%s %s %s)", b.Left, b.Op, b.Right)
}
func unpackDatum(d compute.Datum) (arrow.Array, error) {
	array, ok := d.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("datum %v is not of type array", d)
	}
	return array.MakeArray(), nil
}

type ScalarFunction struct {
	Function  supportedFunctions
	Arguments Expression // resolve to something you can process IE, literal/coloumn Resolve
}

func NewScalarFunction(function supportedFunctions, Argument Expression) *ScalarFunction {
	return &ScalarFunction{
		Function:  function,
		Arguments: Argument,
	}
}

func EvalScalarFunction(s *ScalarFunction, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(s.Arguments, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	switch s.Function {
	case Lower:
		return mapStrings(arr, strings.ToLower)
	case Round:
		datum, err := compute.Round(context.TODO(), compute.DefaultRoundOptions, compute.NewDatum(arr))
		if err != nil {
			return nil, err
		}
		return unpackDatum(datum)
	case Year:
		return datePart(arr, func(t time.Time) int64 { return int64(t.Year()) })
	case Month:
		return datePart(arr, func(t time.Time) int64 { return int64(t.Month()) })
	case MonthName:
		return monthNames(arr)
	}
	return nil, fmt.Errorf("unsupported scalar function %v", s.Function)
}
func (s *ScalarFunction) ExprNode() {}
func (s *ScalarFunction) String() string {
	return fmt.Sprintf("%s(%v)", s.Function, s.Arguments)
}

// If cast succeeds → return the casted value
// If cast fails → throw a runtime error
type CastExpr struct {
	Expr       Expression // can be a Literal or Column (check for datatype when you resolve)
	TargetType arrow.DataType
}

func NewCastExpr(expr Expression, targetType arrow.DataType) *CastExpr {
	return &CastExpr{
		Expr:       expr,
		TargetType: targetType,
	}
}

func EvalCast(c *CastExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(c.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	castOpts := compute.SafeCastOptions(c.TargetType)
	out, err := compute.CastArray(context.TODO(), arr, castOpts)
	if err != nil {
		return nil, fmt.Errorf("cast error: cannot cast %s to %s: %w",
			arr.DataType(), c.TargetType, err)
	}

	return out, nil
}

func (c *CastExpr) ExprNode() {}
func (c *CastExpr) String() string {
	return fmt.Sprintf("Cast(%s AS %s)", c.Expr, c.TargetType)
}

// NullCheckExpr is true for every row where Expr is NOT null.
type NullCheckExpr struct {
	Expr Expression
}

func NewNullCheckExpr(expr Expression) *NullCheckExpr {
	return &NullCheckExpr{Expr: expr}
}
func (n *NullCheckExpr) ExprNode() {}
func (n *NullCheckExpr) String() string {
	return fmt.Sprintf("NullCheck(%s)", n.Expr.String())
}
func EvalNullCheckMask(expr Expression, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	length := arr.Len()
	builder := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer builder.Release()
	builder.Reserve(length)
	for i := 0; i < length; i++ {
		builder.Append(!arr.IsNull(i)) // true = not null
	}
	return builder.NewArray(), nil
}

// IsNull is true for every row where expr is null.
func IsNull(expr Expression) *NotExpr {
	return NewNotExpr(NewNullCheckExpr(expr))
}

// NotExpr negates a boolean expression; null stays null.
type NotExpr struct {
	Expr Expression
}

func NewNotExpr(expr Expression) *NotExpr {
	return &NotExpr{Expr: expr}
}
func (n *NotExpr) ExprNode() {}
func (n *NotExpr) String() string {
	return fmt.Sprintf("Not(%s)", n.Expr)
}
func EvalNot(n *NotExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(n.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	boolArr, ok := arr.(*array.Boolean)
	if !ok {
		return nil, fmt.Errorf("NOT requires a boolean operand, got %s", arr.DataType())
	}
	b := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer b.Release()
	b.Reserve(boolArr.Len())
	for i := 0; i < boolArr.Len(); i++ {
		if boolArr.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(!boolArr.Value(i))
	}
	return b.NewArray(), nil
}

type MatchKind int

const (
	StartsWith MatchKind = iota
	// RegexSearch matches anywhere in the value, not only the full string
	RegexSearch
)

func (k MatchKind) String() string {
	if k == StartsWith {
		return "STARTS_WITH"
	}
	return "REGEX_SEARCH"
}

// StringMatchExpr tests each string against a prefix or a regular expression.
// Null strings never match.
type StringMatchExpr struct {
	Expr    Expression
	Kind    MatchKind
	Pattern string
	re      *regexp.Regexp
}

func NewStartsWith(expr Expression, prefix string) *StringMatchExpr {
	return &StringMatchExpr{Expr: expr, Kind: StartsWith, Pattern: prefix}
}

func NewRegexSearch(expr Expression, pattern string) (*StringMatchExpr, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &StringMatchExpr{Expr: expr, Kind: RegexSearch, Pattern: pattern, re: re}, nil
}
func (s *StringMatchExpr) ExprNode() {}
func (s *StringMatchExpr) String() string {
	return fmt.Sprintf("%s(%s, %q)", s.Kind, s.Expr, s.Pattern)
}
func EvalStringMatch(s *StringMatchExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	arr, err := EvalExpression(s.Expr, batch)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	strArr, ok := arr.(*array.String)
	if !ok {
		return nil, fmt.Errorf("%s only supports string arrays, got %s", s.Kind, arr.DataType())
	}
	match := func(v string) bool { return strings.HasPrefix(v, s.Pattern) }
	if s.Kind == RegexSearch {
		match = s.re.MatchString
	}
	b := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer b.Release()
	b.Reserve(strArr.Len())
	for i := 0; i < strArr.Len(); i++ {
		if strArr.IsNull(i) {
			b.Append(false)
			continue
		}
		b.Append(match(strArr.Value(i)))
	}
	return b.NewArray(), nil
}

type WhenClause struct {
	Cond Expression
	Then Expression
}

func When(cond, then Expression) WhenClause {
	return WhenClause{Cond: cond, Then: then}
}

// CaseExpr picks, per row, the Then of the first true Cond, otherwise Else.
// sql: CASE WHEN price >= 50 THEN 'Expensive' ... ELSE 'Cheap' END
type CaseExpr struct {
	Whens []WhenClause
	Else  Expression
}

func NewCaseExpr(elseExpr Expression, whens ...WhenClause) *CaseExpr {
	return &CaseExpr{Whens: whens, Else: elseExpr}
}
func (c *CaseExpr) ExprNode() {}
func (c *CaseExpr) String() string {
	var b strings.Builder
	b.WriteString("Case(")
	for _, w := range c.Whens {
		fmt.Fprintf(&b, "WHEN %s THEN %s ", w.Cond, w.Then)
	}
	fmt.Fprintf(&b, "ELSE %s)", c.Else)
	return b.String()
}

func caseDataType(c *CaseExpr, schema *arrow.Schema) (arrow.DataType, error) {
	if len(c.Whens) == 0 {
		return nil, errors.New("CASE needs at least one WHEN branch")
	}
	out, err := ExprDataType(c.Else, schema)
	if err != nil {
		return nil, err
	}
	for _, w := range c.Whens {
		ct, err := ExprDataType(w.Cond, schema)
		if err != nil {
			return nil, err
		}
		if ct.ID() != arrow.BOOL {
			return nil, fmt.Errorf("CASE condition %s is not boolean", w.Cond)
		}
		tt, err := ExprDataType(w.Then, schema)
		if err != nil {
			return nil, err
		}
		if !arrow.TypeEqual(tt, out) {
			return nil, ErrCaseBranchTypes
		}
	}
	return out, nil
}

func EvalCase(c *CaseExpr, batch *operators.RecordBatch) (arrow.Array, error) {
	if _, err := caseDataType(c, batch.Schema); err != nil {
		return nil, err
	}
	conds := make([]*array.Boolean, len(c.Whens))
	values := make([]arrow.Array, len(c.Whens)+1)
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Release()
			}
		}
		for _, cond := range conds {
			if cond != nil {
				cond.Release()
			}
		}
	}()
	for i, w := range c.Whens {
		ca, err := EvalExpression(w.Cond, batch)
		if err != nil {
			return nil, err
		}
		boolArr, ok := ca.(*array.Boolean)
		if !ok {
			ca.Release()
			return nil, fmt.Errorf("CASE condition %s did not evaluate to boolean", w.Cond)
		}
		conds[i] = boolArr
		if values[i], err = EvalExpression(w.Then, batch); err != nil {
			return nil, err
		}
	}
	elseArr, err := EvalExpression(c.Else, batch)
	if err != nil {
		return nil, err
	}
	values[len(c.Whens)] = elseArr

	n := int(batch.RowCount)
	b := array.NewBuilder(memory.DefaultAllocator, elseArr.DataType())
	defer b.Release()
	for row := 0; row < n; row++ {
		pick := len(c.Whens)
		for i, cond := range conds {
			if cond.IsValid(row) && cond.Value(row) {
				pick = i
				break
			}
		}
		if err := appendValue(b, values[pick], row); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// appendValue copies arr[row] into b; both must share a data type.
func appendValue(b array.Builder, arr arrow.Array, row int) error {
	if arr.IsNull(row) {
		b.AppendNull()
		return nil
	}
	switch src := arr.(type) {
	case *array.String:
		b.(*array.StringBuilder).Append(src.Value(row))
	case *array.Float64:
		b.(*array.Float64Builder).Append(src.Value(row))
	case *array.Int64:
		b.(*array.Int64Builder).Append(src.Value(row))
	case *array.Int32:
		b.(*array.Int32Builder).Append(src.Value(row))
	case *array.Boolean:
		b.(*array.BooleanBuilder).Append(src.Value(row))
	case *array.Date32:
		b.(*array.Date32Builder).Append(src.Value(row))
	default:
		return fmt.Errorf("CASE does not support %s values", arr.DataType())
	}
	return nil
}

func mapStrings(arr arrow.Array, fn func(string) string) (arrow.Array, error) {
	strArr, ok := arr.(*array.String)
	if !ok {
		return nil, fmt.Errorf("string function only supports string arrays, got %s", arr.DataType())
	}
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()
	for i := 0; i < strArr.Len(); i++ {
		if strArr.IsNull(i) {
			b.AppendNull()
		} else {
			b.Append(fn(strArr.Value(i)))
		}
	}
	return b.NewArray(), nil
}

func datePart(arr arrow.Array, part func(time.Time) int64) (arrow.Array, error) {
	dates, ok := arr.(*array.Date32)
	if !ok {
		return nil, fmt.Errorf("date functions only support date32 arrays, got %s", arr.DataType())
	}
	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	for i := 0; i < dates.Len(); i++ {
		if dates.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(part(dates.Value(i).ToTime()))
	}
	return b.NewArray(), nil
}

func monthNames(arr arrow.Array) (arrow.Array, error) {
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()
	appendMonth := func(m int64) error {
		if m < 1 || m > 12 {
			return fmt.Errorf("month number %d out of range", m)
		}
		b.Append(time.Month(m).String())
		return nil
	}
	switch months := arr.(type) {
	case *array.Int64:
		for i := 0; i < months.Len(); i++ {
			if months.IsNull(i) {
				b.AppendNull()
				continue
			}
			if err := appendMonth(months.Value(i)); err != nil {
				return nil, err
			}
		}
	case *array.Int32:
		for i := 0; i < months.Len(); i++ {
			if months.IsNull(i) {
				b.AppendNull()
				continue
			}
			if err := appendMonth(int64(months.Value(i))); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("MONTHNAME only supports int32/int64 arrays, got %s", arr.DataType())
	}
	return b.NewArray(), nil
}

func inferScalarFunctionType(fn supportedFunctions, argType arrow.DataType) (arrow.DataType, error) {
	switch fn {
	case Lower:
		if argType.ID() != arrow.STRING {
			return nil, fmt.Errorf("%s only supports string types, got %s", fn, argType)
		}
		return arrow.BinaryTypes.String, nil

	case Round:
		return argType, nil // numeric-in numeric-out

	case Year, Month:
		if argType.ID() != arrow.DATE32 {
			return nil, fmt.Errorf("%s only supports date32, got %s", fn, argType)
		}
		return arrow.PrimitiveTypes.Int64, nil

	case MonthName:
		if argType.ID() != arrow.INT64 && argType.ID() != arrow.INT32 {
			return nil, fmt.Errorf("%s only supports integer months, got %s", fn, argType)
		}
		return arrow.BinaryTypes.String, nil

	default:
		return nil, fmt.Errorf("unknown scalar function %v", fn)
	}
}

func inferBinaryType(left arrow.DataType, op binaryOperator, right arrow.DataType) (arrow.DataType, error) {
	switch op {
	case Addition, Subtraction, Multiplication, Division:
		if arrow.TypeEqual(left, right) {
			return left, nil
		}
		return nil, fmt.Errorf("arithmetic %s needs matching operand types, got %s and %s", op, left, right)

	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, And, Or, Like:
		return arrow.FixedWidthTypes.Boolean, nil

	default:
		return nil, fmt.Errorf("inferBinaryType: unsupported operator %v", op)
	}
}

func compileSqlRegEx(s string) string {
	var buf bytes.Buffer

	// Track anchoring rules
	startsWithWildcard := len(s) > 0 && s[0] == '%'
	endsWithWildcard := len(s) > 0 && s[len(s)-1] == '%'

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '_':
			buf.WriteString(".")
		case '%':
			buf.WriteString(".*")
		default:
			// Escape regex meta chars
			if strings.ContainsRune(`.^$|()[]*+?{}\`, rune(s[i])) {
				buf.WriteByte('\\')
			}
			buf.WriteByte(s[i])
		}
	}

	regex := buf.String()
	if !startsWithWildcard {
		regex = "^" + regex
	}
	if !endsWithWildcard {
		regex = regex + "$"
	}

	return regex
}
