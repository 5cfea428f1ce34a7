package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/okian/vidrank/internal/domain/model"
)

// FileLog keeps the history as a JSON array in a single file. Every write
// replaces the file atomically.
type FileLog struct {
	mu      sync.RWMutex
	path    string
	records []model.Record
}

// OpenFileLog loads the log from dir, creating dir if needed. A missing file
// is an empty log.
func OpenFileLog(dir string, opts ...Option) (*FileLog, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	l := &FileLog{path: filepath.Join(dir, o.fileName)}
	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", l.path, err)
		}
	}
	return l, nil
}

// Path returns the file backing the log.
func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Records(ctx context.Context) ([]model.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

func (l *FileLog) Get(ctx context.Context, id string) (model.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.index(id); i >= 0 {
		return l.records[i], nil
	}
	return model.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

func (l *FileLog) Append(ctx context.Context, rec model.Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index(rec.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
	}
	next := append(l.records[:len(l.records):len(l.records)], rec)
	if err := l.flush(next); err != nil {
		return err
	}
	l.records = next
	return nil
}

func (l *FileLog) Pop(ctx context.Context, id string) (model.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return model.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	rec := l.records[i]
	next := make([]model.Record, 0, len(l.records)-1)
	next = append(next, l.records[:i]...)
	next = append(next, l.records[i+1:]...)
	if err := l.flush(next); err != nil {
		return model.Record{}, err
	}
	l.records = next
	return rec, nil
}

func (l *FileLog) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

func (l *FileLog) Close() error { return nil }

func (l *FileLog) index(id string) int {
	for i := range l.records {
		if l.records[i].ID == id {
			return i
		}
	}
	return -1
}

// flush writes records to a temp file and renames it over the log.
func (l *FileLog) flush(records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".records-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace %s: %w", l.path, err)
	}
	return nil
}
