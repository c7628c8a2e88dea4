package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores the snapshot as a single JSON document on disk.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Save writes the document through a temp file and rename so a crashed
// write never leaves a half-written snapshot behind.
func (b *FileBackend) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(encodeDocument(snap))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load returns an empty snapshot when the file is missing or corrupt.
func (b *FileBackend) Load(ctx context.Context) Snapshot {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return Snapshot{}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}
	}
	return decodeDocument(doc)
}

func (b *FileBackend) Close() error { return nil }
