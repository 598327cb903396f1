// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Compile-time interface implementation check.
var _ Store = (*BadgerStore)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// Store persists audit records and reads them back in append order.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append persists a sealed record at the end of its session's chain.
	//
	// # Inputs
	//
	//   - ctx: Cancellation context.
	//   - record: A record with RecordHash and ChainHash populated.
	//
	// # Outputs
	//
	//   - error: Non-nil if the record is invalid or the write failed.
	Append(ctx context.Context, record *Record) error

	// ListBySession returns a session's records in append order.
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)

	// LastChainHash returns the chain hash of a session's newest record,
	// or empty when the session has no records yet.
	LastChainHash(ctx context.Context, sessionID string) (string, error)

	// Close releases the underlying storage.
	Close() error
}

// =============================================================================
// BadgerStore
// =============================================================================

// Config holds configuration for the Badger-backed audit store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode, used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and
// periodic value log GC.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// BadgerStore implements Store on an embedded BadgerDB.
//
// # Description
//
// Records live under `audit/<sessionID>/<seq>` with a zero-padded
// sequence number, so a prefix iteration returns them in append order.
// A per-session counter key makes Append transactional: the counter
// read, the record write, and the counter bump commit together.
//
// # Thread Safety
//
// Thread-safe. BadgerDB transactions serialize conflicting appends.
type BadgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens the audit database with the given configuration.
//
// # Inputs
//
//   - cfg: Store configuration. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *BadgerStore: The opened store. Caller must Close() when done.
//   - error: Non-nil if the database cannot be opened.
func OpenBadgerStore(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent audit store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(&badgerLogger{logger: slog.Default()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	store := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.stopGC = make(chan struct{})
		store.doneGC = make(chan struct{})
		go store.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return store, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Audit store value log GC error", "error", err)
			}
		}
	}
}

// recordKey returns the storage key for one record.
func recordKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("audit/%s/%012d", sessionID, seq))
}

// sessionPrefix returns the iteration prefix for a session's records.
func sessionPrefix(sessionID string) []byte {
	return []byte(fmt.Sprintf("audit/%s/", sessionID))
}

// counterKey returns the per-session sequence counter key.
func counterKey(sessionID string) []byte {
	return []byte(fmt.Sprintf("auditmeta/%s/seq", sessionID))
}

// Append implements the Store interface.
func (s *BadgerStore) Append(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if record.RecordHash == "" || record.ChainHash == "" {
		return errors.New("audit record must be sealed before append")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize audit record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		seq, err := readCounter(txn, record.SessionID)
		if err != nil {
			return err
		}
		next := seq + 1
		if err := txn.Set(recordKey(record.SessionID, next), payload); err != nil {
			return fmt.Errorf("failed to write audit record: %w", err)
		}
		if err := txn.Set(counterKey(record.SessionID), []byte(fmt.Sprintf("%d", next))); err != nil {
			return fmt.Errorf("failed to bump audit sequence: %w", err)
		}
		return nil
	})
}

// readCounter reads a session's sequence counter, zero when absent.
func readCounter(txn *badger.Txn, sessionID string) (uint64, error) {
	item, err := txn.Get(counterKey(sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read audit sequence: %w", err)
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		_, scanErr := fmt.Sscanf(string(val), "%d", &seq)
		return scanErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to parse audit sequence: %w", err)
	}
	return seq, nil
}

// ListBySession implements the Store interface.
func (s *BadgerStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	records := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := sessionPrefix(sessionID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record Record
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("corrupt audit record at %s: %w", it.Item().Key(), err)
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LastChainHash implements the Store interface.
func (s *BadgerStore) LastChainHash(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	var chainHash string
	err := s.db.View(func(txn *badger.Txn) error {
		seq, err := readCounter(txn, sessionID)
		if err != nil {
			return err
		}
		if seq == 0 {
			return nil
		}
		item, err := txn.Get(recordKey(sessionID, seq))
		if err != nil {
			return fmt.Errorf("failed to read newest audit record: %w", err)
		}
		return item.Value(func(val []byte) error {
			var record Record
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("corrupt audit record: %w", err)
			}
			chainHash = record.ChainHash
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return chainHash, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}
