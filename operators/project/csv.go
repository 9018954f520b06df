package project

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"northwind-go/operators"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&CSVSource{})
)

const csvDateLayout = "2006-01-02"

var (
	ErrCSVColumnMissing = func(name string) error {
		return fmt.Errorf("csv header has no column %q", name)
	}
	ErrCSVCell = func(line int, column string, cell string, err error) error {
		return fmt.Errorf("csv line %d, column %s: cannot parse %q: %w", line, column, cell, err)
	}
)

type CSVSource struct {
	r            *csv.Reader
	schema       *arrow.Schema // columns to project as well as types to cast to
	colPosition  map[string]int
	firstDataRow []string
	line         int
	done         bool // if this is set in Next, we have reached EOF
}

// NewProjectCSVLeaf infers the schema from the header and the first data row.
func NewProjectCSVLeaf(source io.Reader) (*CSVSource, error) {
	r := csv.NewReader(source)
	proj := &CSVSource{
		r:           r,
		colPosition: make(map[string]int),
	}
	var err error
	proj.schema, err = proj.parseHeader()
	return proj, err
}

// NewCSVSourceWithSchema reads the columns named by schema, matched against the
// header by name, and parses every cell into the field's type. Cells that do not
// parse are an error.
func NewCSVSourceWithSchema(source io.Reader, schema *arrow.Schema) (*CSVSource, error) {
	r := csv.NewReader(source)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, f := range schema.Fields() {
		if _, ok := pos[f.Name]; !ok {
			return nil, ErrCSVColumnMissing(f.Name)
		}
	}
	return &CSVSource{
		r:           r,
		schema:      schema,
		colPosition: pos,
		line:        1,
	}, nil
}

func (csvS *CSVSource) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if csvS.done {
		return nil, io.EOF
	}

	builders := csvS.initBuilders()
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	rowsRead := uint16(0)

	// Process stored first row (from parseHeader)
	if csvS.firstDataRow != nil {
		if err := csvS.processRow(csvS.firstDataRow, builders); err != nil {
			return nil, err
		}
		csvS.firstDataRow = nil // consume it once
		rowsRead++
	}

	for rowsRead < n {
		row, err := csvS.r.Read()
		if errors.Is(err, io.EOF) {
			csvS.done = true
			if rowsRead == 0 {
				return nil, io.EOF
			}
			break
		}
		if err != nil {
			return nil, err
		}
		csvS.line++
		if err := csvS.processRow(row, builders); err != nil {
			return nil, err
		}
		rowsRead++
	}

	return &operators.RecordBatch{
		Schema:   csvS.schema,
		Columns:  csvS.finalizeBuilders(builders),
		RowCount: uint64(rowsRead),
	}, nil
}

func (csvS *CSVSource) Close() error {
	csvS.r = nil
	csvS.done = true
	return nil
}

func (csvS *CSVSource) Schema() *arrow.Schema {
	return csvS.schema
}

func (csvS *CSVSource) initBuilders() []array.Builder {
	fields := csvS.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(memory.DefaultAllocator, f.Type)
	}
	return builders
}

func isNullCell(cell string) bool {
	return cell == "" || cell == "NULL"
}

func (csvS *CSVSource) processRow(content []string, builders []array.Builder) error {
	for i, f := range csvS.schema.Fields() {
		colIdx := csvS.colPosition[f.Name]
		if colIdx >= len(content) {
			return ErrCSVCell(csvS.line, f.Name, "", errors.New("row is too short"))
		}
		cell := strings.TrimSpace(content[colIdx])
		if isNullCell(cell) {
			builders[i].AppendNull()
			continue
		}

		switch b := builders[i].(type) {
		case *array.Int64Builder:
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				return ErrCSVCell(csvS.line, f.Name, cell, err)
			}
			b.Append(v)
		case *array.Int32Builder:
			v, err := strconv.ParseInt(cell, 10, 32)
			if err != nil {
				return ErrCSVCell(csvS.line, f.Name, cell, err)
			}
			b.Append(int32(v))
		case *array.Float64Builder:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return ErrCSVCell(csvS.line, f.Name, cell, err)
			}
			b.Append(v)
		case *array.StringBuilder:
			b.Append(cell)
		case *array.BooleanBuilder:
			v, err := strconv.ParseBool(cell)
			if err != nil {
				return ErrCSVCell(csvS.line, f.Name, cell, err)
			}
			b.Append(v)
		case *array.Date32Builder:
			t, err := time.Parse(csvDateLayout, cell)
			if err != nil {
				return ErrCSVCell(csvS.line, f.Name, cell, err)
			}
			b.Append(arrow.Date32FromTime(t))
		default:
			return fmt.Errorf("unsupported Arrow type: %s", f.Type)
		}
	}
	return nil
}

func (csvS *CSVSource) finalizeBuilders(builders []array.Builder) []arrow.Array {
	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
	}
	return columns
}

// first call to csv.Reader
func (csvS *CSVSource) parseHeader() (*arrow.Schema, error) {
	header, err := csvS.r.Read()
	if err != nil {
		return nil, err
	}
	firstDataRow, err := csvS.r.Read()
	if err != nil {
		return nil, err
	}
	csvS.firstDataRow = firstDataRow
	csvS.line = 2
	newFields := make([]arrow.Field, 0, len(header))
	for i, colName := range header {
		newFields = append(newFields, arrow.Field{
			Name:     colName,
			Type:     parseDataType(firstDataRow[i]),
			Nullable: true,
		})
		csvS.colPosition[colName] = i
	}
	return arrow.NewSchema(newFields, nil), nil
}

func parseDataType(sample string) arrow.DataType {
	sample = strings.TrimSpace(sample)

	// Nulls or empty fields → treat as nullable string in inference
	if isNullCell(sample) {
		return arrow.BinaryTypes.String
	}
	if sample == "true" || sample == "false" {
		return arrow.FixedWidthTypes.Boolean
	}
	if _, err := strconv.Atoi(sample); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}
	if _, err := time.Parse(csvDateLayout, sample); err == nil {
		return arrow.FixedWidthTypes.Date32
	}
	return arrow.BinaryTypes.String
}
