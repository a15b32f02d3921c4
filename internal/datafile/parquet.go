package datafile

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// PKRow is the minimal single-column key-list shape used by delete
// operations: a file of primary keys and nothing else.
type PKRow struct {
	ID int64 `json:"id" parquet:"id"`
}

// WriteParquet writes rows as a parquet table at path. Column names come
// from the parquet struct tags on T.
func WriteParquet[T any](path string, rows []T) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	return nil
}

// ReadParquet reads all rows of the parquet table at path into T values.
func ReadParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet file: %w", err)
	}
	return rows, nil
}

// WritePKFile writes a primary-key-only data file for a bulk delete. The
// format follows the path: ".parquet" writes a parquet table, anything else
// writes JSONL (gzipped when the path ends in ".gz").
func WritePKFile(path string, ids []int64) error {
	rows := make([]PKRow, len(ids))
	for i, id := range ids {
		rows[i] = PKRow{ID: id}
	}
	if strings.HasSuffix(path, ".parquet") {
		return WriteParquet(path, rows)
	}
	return WriteJSONL(path, rows)
}
