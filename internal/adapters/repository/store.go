// Package repository stores the ordered judgment history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/vidrank/internal/domain/model"
)

// Sentinel kinds for judgment log errors.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrDuplicateRecord = errors.New("record already exists")
	ErrUnknownBackend  = errors.New("unknown log backend")
)

// Log is the append-only judgment history. Records come back in append order.
type Log interface {
	Records(ctx context.Context) ([]model.Record, error)
	Get(ctx context.Context, id string) (model.Record, error)
	Append(ctx context.Context, rec model.Record) error
	// Pop removes the record with id and returns it.
	Pop(ctx context.Context, id string) (model.Record, error)
	Count(ctx context.Context) (int, error)
	io.Closer
}

// Backend names a Log implementation.
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// Open creates the Log for backend. dir is ignored by the memory backend.
func Open(backend Backend, dir string, opts ...Option) (Log, error) {
	switch backend {
	case BackendBadger:
		return OpenBadgerLog(dir, opts...)
	case BackendFile:
		return OpenFileLog(dir, opts...)
	case BackendMemory, "":
		return NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func validate(rec model.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if err := rec.ChoiceSet.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
