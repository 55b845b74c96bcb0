// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage persists session state and diagrams.
//
// The store is the sole source of truth between requests: the engine loads
// a snapshot, computes a successor, and saves it back. Nothing is cached
// across requests.
package storage

import (
	"context"
	"errors"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// ErrNotFound is returned when a session or diagram id does not resolve.
var ErrNotFound = errors.New("record not found")

// SessionStore persists session state snapshots by session id.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Save replaces the whole
// snapshot atomically; readers never observe a partially merged state.
type SessionStore interface {
	// Create stores a brand-new session. Fails if the id already exists.
	Create(ctx context.Context, state *datatypes.SessionState) error

	// Load returns the last committed snapshot for the session.
	Load(ctx context.Context, sessionID string) (*datatypes.SessionState, error)

	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, state *datatypes.SessionState) error

	// Delete removes the session and all diagrams scoped to it.
	Delete(ctx context.Context, sessionID string) error

	// List returns all stored sessions, newest first.
	List(ctx context.Context) ([]*datatypes.SessionState, error)
}

// DiagramStore persists rendered diagrams.
//
// At most one diagram exists per (test case, diagram type); Save upserts
// on that pair while the diagram id stays stable across updates.
type DiagramStore interface {
	// SaveDiagram inserts or replaces a diagram.
	SaveDiagram(ctx context.Context, d *datatypes.Diagram) error

	// LoadDiagram returns a diagram by its id.
	LoadDiagram(ctx context.Context, diagramID string) (*datatypes.Diagram, error)

	// FindDiagramByCase returns the diagram for a (test case, type) pair, if any.
	FindDiagramByCase(ctx context.Context, sessionID, testCaseID, diagramType string) (*datatypes.Diagram, error)
}
