// Package datafile reads and writes the two interchange formats the bulk API
// accepts: row-oriented line-delimited JSON (optionally gzip-compressed) and
// column-oriented parquet tables. Format detection goes by leading magic
// bytes, never by file extension.
package datafile

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Format identifies the on-disk encoding of a data file.
type Format int

const (
	// FormatJSONL is plain line-delimited JSON.
	FormatJSONL Format = iota
	// FormatJSONLGzip is gzip-compressed line-delimited JSON.
	FormatJSONLGzip
	// FormatParquet is a parquet column table.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatJSONLGzip:
		return "jsonl.gz"
	case FormatParquet:
		return "parquet"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

var (
	gzipMagic    = []byte{0x1f, 0x8b}
	parquetMagic = []byte("PAR1")
)

// Detect sniffs the format of the file at path from its leading bytes.
// Anything that is neither gzip nor parquet is treated as plain JSONL.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("read data file header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatJSONLGzip, nil
	case bytes.HasPrefix(head, parquetMagic):
		return FormatParquet, nil
	}
	return FormatJSONL, nil
}
