// Package filestore keeps every record set in one JSON document per file. Each
// mutation rewrites its document with a crash-safe replace before returning.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"telegram-smm-shop/internal/domain"
)

// jsonFile is one document on disk. mu serializes the in-memory mutation together
// with its durable write, so the file always matches an acknowledged state.
type jsonFile struct {
	path string
	mu   sync.RWMutex

	// write is replaced in tests to simulate a failing disk.
	write func(path string, data []byte) error
}

func newJSONFile(path string) *jsonFile {
	return &jsonFile{path: path, write: writeFileAtomic}
}

// load decodes the document into v. A missing or empty file leaves v untouched
// and reports found=false.
func (f *jsonFile) load(v any) (found bool, err error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// save marshals v and replaces the document. The caller holds f.mu.
func (f *jsonFile) save(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrPersistence, f.path, err)
	}
	if err := f.write(f.path, b); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, fsyncs it,
// renames it over path and fsyncs the directory.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsync dir %s: %w", dir, err)
	}
	return nil
}

// corrupt wraps a load-time validation failure.
func corrupt(path string, what string, err error) error {
	return fmt.Errorf("%s: malformed %s: %w", path, what, err)
}
