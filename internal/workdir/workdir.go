// Package workdir manages the local directory layout for bulk runs:
// generated payload files on the way up, downloaded export files on the way
// back. Files placed here are owned by the caller and never deleted by the
// client.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manager resolves and prepares the working directory tree.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at root. An empty root falls back to
// the TURBOBULK_WORKDIR environment variable, then to a "turbobulk"
// directory under the OS user cache dir.
func NewManager(root string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = os.Getenv("TURBOBULK_WORKDIR")
	}
	if root == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user cache dir: %w", err)
		}
		root = filepath.Join(cache, "turbobulk")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Manager{root: abs}, nil
}

// Root returns the resolved working directory root.
func (m *Manager) Root() string {
	return m.root
}

// EnsureStructure creates the root and the runs/ subdirectory.
func (m *Manager) EnsureStructure() error {
	if m.root == "" {
		return errors.New("workdir not set")
	}
	return os.MkdirAll(filepath.Join(m.root, "runs"), 0o755)
}

// Run is one bulk run's directory: payloads/ for generated data files,
// exports/ for downloaded export files.
type Run struct {
	ID   string
	Path string
}

// NewRun creates a fresh run directory named by timestamp and a short unique
// suffix, with payloads/ and exports/ inside.
func (m *Manager) NewRun() (*Run, error) {
	if err := m.EnsureStructure(); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s_%s", time.Now().UTC().Format("2006-01-02_150405"), uuid.NewString()[:8])
	path := filepath.Join(m.root, "runs", id)
	for _, d := range []string{"payloads", "exports"} {
		if err := os.MkdirAll(filepath.Join(path, d), 0o755); err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
	}
	return &Run{ID: id, Path: path}, nil
}

// PayloadPath returns the path for a generated data file named name.
func (r *Run) PayloadPath(name string) string {
	return filepath.Join(r.Path, "payloads", name)
}

// ExportPath returns the path for a downloaded export file named name.
func (r *Run) ExportPath(name string) string {
	return filepath.Join(r.Path, "exports", name)
}
