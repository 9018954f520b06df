package project

import (
	"context"
	"errors"
	"io"
	"northwind-go/logger"
	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var (
	_ = (operators.Operator)(&ParquetSource{})
)

const parquetReadBatch = 1024

type ParquetSource struct {
	schema     *arrow.Schema
	fileReader *file.Reader
	reader     pqarrow.RecordReader
	// record currently being handed out and how far into it we are
	current arrow.Record
	offset  int64
	done    bool // if set to true always return io.EOF
}

func NewParquetSource(r parquet.ReaderAtSeeker) (*ParquetSource, error) {
	return newParquetSource(r, nil)
}

// NewParquetSourcePushDown only decodes the named columns.
func NewParquetSourcePushDown(r parquet.ReaderAtSeeker, columns []string) (*ParquetSource, error) {
	if len(columns) == 0 {
		return nil, errors.New("no columns were provided for projection push down")
	}
	return newParquetSource(r, columns)
}

func newParquetSource(r parquet.ReaderAtSeeker, columns []string) (*ParquetSource, error) {
	fileReader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, err
	}
	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{BatchSize: parquetReadBatch},
		memory.NewGoAllocator(),
	)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	var wanted []int
	if len(columns) > 0 {
		s, err := arrowReader.Schema()
		if err != nil {
			fileReader.Close()
			return nil, err
		}
		for _, col := range columns {
			idx := s.FieldIndices(col)
			if len(idx) == 0 {
				fileReader.Close()
				return nil, ErrProjectColumnNotFound
			}
			wanted = append(wanted, idx...)
		}
	}
	rdr, err := arrowReader.GetRecordReader(context.TODO(), wanted, nil)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	return &ParquetSource{
		schema:     rdr.Schema(),
		fileReader: fileReader,
		reader:     rdr,
	}, nil
}

func (ps *ParquetSource) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, operators.ErrZeroBatchSize
	}
	if ps.done || ps.reader == nil {
		return nil, io.EOF
	}
	for ps.current == nil || ps.offset >= ps.current.NumRows() {
		if ps.current != nil {
			ps.current.Release()
			ps.current = nil
		}
		if !ps.reader.Next() {
			ps.done = true
			if err := ps.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, io.EOF
		}
		ps.current = ps.reader.Record()
		ps.current.Retain()
		ps.offset = 0
	}
	end := ps.offset + int64(n)
	if end > ps.current.NumRows() {
		end = ps.current.NumRows()
	}
	columns := make([]arrow.Array, ps.current.NumCols())
	for i, col := range ps.current.Columns() {
		columns[i] = array.NewSlice(col, ps.offset, end)
	}
	rows := uint64(end - ps.offset)
	ps.offset = end
	return &operators.RecordBatch{
		Schema:   ps.schema,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

func (ps *ParquetSource) Close() error {
	if ps.current != nil {
		ps.current.Release()
		ps.current = nil
	}
	if ps.reader != nil {
		ps.reader.Release()
		ps.reader = nil
	}
	if ps.fileReader != nil {
		if err := ps.fileReader.Close(); err != nil {
			logger.Component("parquet").Warn("failed to close parquet reader", "error", err)
			return err
		}
		ps.fileReader = nil
	}
	return nil
}

func (ps *ParquetSource) Schema() *arrow.Schema {
	return ps.schema
}
