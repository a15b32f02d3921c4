package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager_ExplicitRoot(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Root() != root {
		t.Errorf("root: got %q, want %q", m.Root(), root)
	}
}

func TestNewManager_EnvFallback(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TURBOBULK_WORKDIR", root)

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Root() != root {
		t.Errorf("root: got %q, want env value %q", m.Root(), root)
	}
}

func TestManager_NewRun(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	run, err := m.NewRun()
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID is empty")
	}

	for _, sub := range []string{"payloads", "exports"} {
		info, err := os.Stat(filepath.Join(run.Path, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("missing run subdir %s: %v", sub, err)
		}
	}

	if got := run.PayloadPath("devices.parquet"); got != filepath.Join(run.Path, "payloads", "devices.parquet") {
		t.Errorf("PayloadPath: got %q", got)
	}
	if got := run.ExportPath("cables.jsonl.gz"); got != filepath.Join(run.Path, "exports", "cables.jsonl.gz") {
		t.Errorf("ExportPath: got %q", got)
	}
}

func TestManager_NewRun_IDsAreUnique(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	a, err := m.NewRun()
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	b, err := m.NewRun()
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("run IDs collide: %q", a.ID)
	}
}
