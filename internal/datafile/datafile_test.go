package datafile

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type testRow struct {
	ID   int64  `json:"id" parquet:"id"`
	Name string `json:"name" parquet:"name"`
}

func TestDetect_PlainJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	if err := os.WriteFile(path, []byte(`{"id":1}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	format, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if format != FormatJSONL {
		t.Errorf("format: got %v, want jsonl", format)
	}
}

func TestDetect_GzipByMagicNotExtension(t *testing.T) {
	// Deliberately misleading extension: detection must go by content.
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte(`{"id":1}` + "\n"))
	gz.Close()
	f.Close()

	format, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if format != FormatJSONLGzip {
		t.Errorf("format: got %v, want jsonl.gz", format)
	}
}

func TestDetect_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.parquet")
	if err := WriteParquet(path, []testRow{{ID: 1, Name: "a"}}); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	format, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if format != FormatParquet {
		t.Errorf("format: got %v, want parquet", format)
	}
}

func TestDetect_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	format, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if format != FormatJSONL {
		t.Errorf("format: got %v, want jsonl fallback", format)
	}
}

func TestJSONL_RoundTrip(t *testing.T) {
	rows := []testRow{{ID: 1, Name: "spine"}, {ID: 2, Name: "leaf"}}

	for _, name := range []string{"rows.jsonl", "rows.jsonl.gz"} {
		path := filepath.Join(t.TempDir(), name)
		if err := WriteJSONL(path, rows); err != nil {
			t.Fatalf("%s: WriteJSONL: %v", name, err)
		}
		got, err := ReadJSONL[testRow](path)
		if err != nil {
			t.Fatalf("%s: ReadJSONL: %v", name, err)
		}
		if !reflect.DeepEqual(got, rows) {
			t.Errorf("%s: round trip: got %+v", name, got)
		}
		count, err := JSONLRowCount(path)
		if err != nil {
			t.Fatalf("%s: JSONLRowCount: %v", name, err)
		}
		if count != len(rows) {
			t.Errorf("%s: row count: got %d, want %d", name, count, len(rows))
		}
	}
}

func TestReadJSONL_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	content := `{"id":1,"name":"a"}` + "\n\n  \n" + `{"id":2,"name":"b"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSONL[testRow](path)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("rows: got %d, want 2", len(got))
	}
}

func TestReadJSONL_BadLineReportsLineNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	content := `{"id":1,"name":"a"}` + "\n" + `{broken` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadJSONL[testRow](path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestParquet_RoundTrip(t *testing.T) {
	rows := []testRow{{ID: 10, Name: "cable-a"}, {ID: 11, Name: "cable-b"}}
	path := filepath.Join(t.TempDir(), "rows.parquet")
	if err := WriteParquet(path, rows); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	got, err := ReadParquet[testRow](path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("round trip: got %+v", got)
	}
}

func TestWritePKFile(t *testing.T) {
	ids := []int64{3, 1, 2}

	jsonlPath := filepath.Join(t.TempDir(), "pks.jsonl")
	if err := WritePKFile(jsonlPath, ids); err != nil {
		t.Fatalf("WritePKFile jsonl: %v", err)
	}
	gotJSONL, err := ReadJSONL[PKRow](jsonlPath)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}

	parquetPath := filepath.Join(t.TempDir(), "pks.parquet")
	if err := WritePKFile(parquetPath, ids); err != nil {
		t.Fatalf("WritePKFile parquet: %v", err)
	}
	gotParquet, err := ReadParquet[PKRow](parquetPath)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}

	want := []PKRow{{ID: 3}, {ID: 1}, {ID: 2}}
	if !reflect.DeepEqual(gotJSONL, want) {
		t.Errorf("jsonl PK rows: got %+v", gotJSONL)
	}
	if !reflect.DeepEqual(gotParquet, want) {
		t.Errorf("parquet PK rows: got %+v", gotParquet)
	}
}
