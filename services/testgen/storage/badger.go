// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// Key layout. Session snapshots and diagrams share one keyspace; the
// case index maps (session, case, type) to the owning diagram id so
// upserts keep a stable identifier.
const (
	sessionKeyPrefix = "session/"
	diagramKeyPrefix = "diagram/"
	caseIdxKeyPrefix = "diagram-case/"
)

// Config holds configuration for the BadgerDB-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and periodic
// value log garbage collection.
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
		GCInterval: 0,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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

// BadgerStore implements SessionStore and DiagramStore on one BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
}

var (
	_ SessionStore = (*BadgerStore)(nil)
	_ DiagramStore = (*BadgerStore)(nil)
)

// OpenBadger opens the database and starts the GC loop if configured.
//
// The caller must Close the returned store.
func OpenBadger(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	store := &BadgerStore{db: db, stopGC: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go store.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return store, nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	close(s.stopGC)
	return s.db.Close()
}

func (s *BadgerStore) runGC(interval time.Duration, discardRatio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// to collect; that is the normal idle case.
			if err := s.db.RunValueLogGC(discardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Badger value log GC failed", "error", err)
			}
		}
	}
}

// =============================================================================
// SessionStore
// =============================================================================

// Create implements SessionStore.
func (s *BadgerStore) Create(ctx context.Context, state *datatypes.SessionState) error {
	key := []byte(sessionKeyPrefix + state.SessionID)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("session %s already exists", state.SessionID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.setJSON(txn, key, state)
	})
}

// Load implements SessionStore.
func (s *BadgerStore) Load(ctx context.Context, sessionID string) (*datatypes.SessionState, error) {
	var state datatypes.SessionState
	err := s.db.View(func(txn *badger.Txn) error {
		return s.getJSON(txn, []byte(sessionKeyPrefix+sessionID), &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save implements SessionStore.
func (s *BadgerStore) Save(ctx context.Context, state *datatypes.SessionState) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.setJSON(txn, []byte(sessionKeyPrefix+state.SessionID), state)
	})
}

// Delete implements SessionStore. Diagrams scoped to the session are
// removed in the same transaction.
func (s *BadgerStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + sessionID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return s.deleteSessionDiagrams(txn, sessionID)
	})
}

// List implements SessionStore.
func (s *BadgerStore) List(ctx context.Context) ([]*datatypes.SessionState, error) {
	var sessions []*datatypes.SessionState
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var state datatypes.SessionState
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, &state)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	return sessions, nil
}

// =============================================================================
// DiagramStore
// =============================================================================

// SaveDiagram implements DiagramStore.
func (s *BadgerStore) SaveDiagram(ctx context.Context, d *datatypes.Diagram) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.setJSON(txn, []byte(diagramKeyPrefix+d.ID), d); err != nil {
			return err
		}
		return txn.Set([]byte(caseIdxKey(d.SessionID, d.TestCaseID, d.DiagramType)), []byte(d.ID))
	})
}

// LoadDiagram implements DiagramStore.
func (s *BadgerStore) LoadDiagram(ctx context.Context, diagramID string) (*datatypes.Diagram, error) {
	var d datatypes.Diagram
	err := s.db.View(func(txn *badger.Txn) error {
		return s.getJSON(txn, []byte(diagramKeyPrefix+diagramID), &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDiagramByCase implements DiagramStore.
func (s *BadgerStore) FindDiagramByCase(ctx context.Context, sessionID, testCaseID, diagramType string) (*datatypes.Diagram, error) {
	var d datatypes.Diagram
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(caseIdxKey(sessionID, testCaseID, diagramType)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		var diagramID string
		if err := item.Value(func(val []byte) error {
			diagramID = string(val)
			return nil
		}); err != nil {
			return err
		}
		return s.getJSON(txn, []byte(diagramKeyPrefix+diagramID), &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BadgerStore) deleteSessionDiagrams(txn *badger.Txn, sessionID string) error {
	prefix := []byte(caseIdxKeyPrefix + sessionID + "/")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var doomed [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		doomed = append(doomed, item.KeyCopy(nil))
		if err := item.Value(func(val []byte) error {
			doomed = append(doomed, []byte(diagramKeyPrefix+string(val)))
			return nil
		}); err != nil {
			return err
		}
	}
	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func caseIdxKey(sessionID, testCaseID, diagramType string) string {
	return caseIdxKeyPrefix + sessionID + "/" + testCaseID + "/" + diagramType
}

func (s *BadgerStore) setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
