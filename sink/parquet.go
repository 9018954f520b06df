package sink

import (
	"fmt"
	"io"
	"strings"

	"northwind-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

// ParquetSink writes every batch as a row group of a single Parquet file.
type ParquetSink struct {
	fw *pqarrow.FileWriter
}

// ParseCompression maps a config name (snappy, gzip, zstd, brotli, none) to
// a parquet codec.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	}
	return compress.Codecs.Uncompressed, fmt.Errorf("unknown parquet compression %q", name)
}

func NewParquetSink(w io.Writer, schema *arrow.Schema, compression string) (*ParquetSink, error) {
	codec, err := ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(codec))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	return &ParquetSink{fw: fw}, nil
}

func (p *ParquetSink) WriteBatch(rb *operators.RecordBatch) error {
	if rb.RowCount == 0 {
		return nil
	}
	rec := array.NewRecord(rb.Schema, rb.Columns, int64(rb.RowCount))
	defer rec.Release()
	return p.fw.Write(rec)
}

func (p *ParquetSink) Flush() error {
	return p.fw.Close()
}
