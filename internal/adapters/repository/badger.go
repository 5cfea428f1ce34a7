package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/vidrank/internal/domain/model"
)

var bg = context.Background()

// Key layout. Records sort by sequence so iteration yields append order.
const (
	recordKeyPrefix = "record:"
	recordIDPrefix  = "record_id:"
	sequenceKey     = "seq:record"
	sequenceLease   = 100
)

// BadgerLog implements Log on an embedded BadgerDB.
type BadgerLog struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerLog opens or creates a badger-backed log in dir.
func OpenBadgerLog(dir string, opts ...Option) (*BadgerLog, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(dir).WithSyncWrites(o.syncWrites)
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil
	if o.log != nil {
		bopts.Logger = badgerLogger{l: o.log.Named("badger")}
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for records: %w", err)
	}
	return NewBadgerLog(db)
}

// NewBadgerLog wraps an open database. Close releases the sequence lease
// and closes db.
func NewBadgerLog(db *badger.DB) (*BadgerLog, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLease)
	if err != nil {
		return nil, fmt.Errorf("get record sequence: %w", err)
	}
	return &BadgerLog{db: db, seq: seq}, nil
}

func recordKey(seq []byte) []byte {
	return append([]byte(recordKeyPrefix), seq...)
}

func indexKey(id string) []byte {
	return []byte(recordIDPrefix + id)
}

// Records returns every record in append order.
func (s *BadgerLog) Records(ctx context.Context) ([]model.Record, error) {
	var records []model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec model.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns the record with id.
func (s *BadgerLog) Get(ctx context.Context, id string) (model.Record, error) {
	var rec model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, _, err = lookup(txn, id)
		return err
	})
	return rec, err
}

// Append stores rec after the current last record.
func (s *BadgerLog) Append(ctx context.Context, rec model.Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next record sequence: %w", err)
	}
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, n)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(rec.ID)); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check record index: %w", err)
		}
		if err := txn.Set(recordKey(seq), data); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		if err := txn.Set(indexKey(rec.ID), seq); err != nil {
			return fmt.Errorf("set record index: %w", err)
		}
		return nil
	})
}

// Pop deletes the record with id and returns it.
func (s *BadgerLog) Pop(ctx context.Context, id string) (model.Record, error) {
	var rec model.Record
	err := s.db.Update(func(txn *badger.Txn) error {
		var (
			seq []byte
			err error
		)
		rec, seq, err = lookup(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(seq)); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if err := txn.Delete(indexKey(id)); err != nil {
			return fmt.Errorf("delete record index: %w", err)
		}
		return nil
	})
	return rec, err
}

// Count returns the number of stored records.
func (s *BadgerLog) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordIDPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close releases the sequence and closes the database.
func (s *BadgerLog) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release record sequence: %w", err)
	}
	return s.db.Close()
}

func lookup(txn *badger.Txn, id string) (model.Record, []byte, error) {
	var rec model.Record
	idx, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return rec, nil, fmt.Errorf("get record index: %w", err)
	}
	seq, err := idx.ValueCopy(nil)
	if err != nil {
		return rec, nil, fmt.Errorf("read record index: %w", err)
	}

	item, err := txn.Get(recordKey(seq))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return rec, nil, fmt.Errorf("get record: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return rec, nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, seq, nil
}
