package datafile

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// WriteJSONL writes rows as line-delimited JSON to path. Output is gzip
// compressed when path ends in ".gz".
func WriteJSONL[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create jsonl file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush jsonl file: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	return f.Close()
}

// ReadJSONL reads all rows from a JSONL file, transparently decompressing
// gzip input. Blank lines are skipped.
func ReadJSONL[T any](path string) ([]T, error) {
	r, closeAll, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	var rows []T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row T
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl file: %w", err)
	}
	return rows, nil
}

// JSONLRowCount counts non-blank lines without decoding them.
func JSONLRowCount(path string) (int, error) {
	r, closeAll, err := openMaybeGzip(path)
	if err != nil {
		return 0, err
	}
	defer closeAll()

	count := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read jsonl file: %w", err)
	}
	return count, nil
}

// openMaybeGzip opens path and layers a gzip reader when the content is
// compressed, going by magic bytes rather than extension.
func openMaybeGzip(path string) (io.Reader, func(), error) {
	format, err := Detect(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open jsonl file: %w", err)
	}
	if format != FormatJSONLGzip {
		return f, func() { f.Close() }, nil
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return gz, func() { gz.Close(); f.Close() }, nil
}
