package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/vidrank/internal/domain/model"
)

// MemoryLog is a Log that lives only as long as the process.
type MemoryLog struct {
	mu      sync.RWMutex
	records []model.Record
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog(records ...model.Record) *MemoryLog {
	return &MemoryLog{records: append([]model.Record(nil), records...)}
}

func (l *MemoryLog) Records(ctx context.Context) ([]model.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Record(nil), l.records...), nil
}

func (l *MemoryLog) Get(ctx context.Context, id string) (model.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, rec := range l.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return model.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

func (l *MemoryLog) Append(ctx context.Context, rec model.Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == rec.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
		}
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *MemoryLog) Pop(ctx context.Context, id string) (model.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, rec := range l.records {
		if rec.ID == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return rec, nil
		}
	}
	return model.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

func (l *MemoryLog) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

func (l *MemoryLog) Close() error { return nil }
