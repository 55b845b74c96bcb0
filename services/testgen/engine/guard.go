// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard is the per-session single-flight lock.
//
// # Description
//
// One weighted semaphore of capacity 1 exists per session. An operation
// that triggers a model call acquires it for its full duration, streaming
// included. Contending requests fail immediately; nothing queues.
//
// # Thread Safety
//
// Safe for concurrent use.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[string]*semaphore.Weighted)}
}

// TryAcquire takes the session's lock without blocking.
//
// # Outputs
//
//   - release: must be called exactly once on every exit path
//   - error: ErrGenerationInProgress if the lock is already held
func (g *Guard) TryAcquire(sessionID string) (release func(), err error) {
	g.mu.Lock()
	sem, ok := g.locks[sessionID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		g.locks[sessionID] = sem
	}
	g.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, ErrGenerationInProgress
	}
	return func() { sem.Release(1) }, nil
}

// Forget drops the lock entry for a deleted session.
//
// Callers must ensure no operation holds or will take the lock; this is
// only called after the session record itself is gone.
func (g *Guard) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.locks, sessionID)
	g.mu.Unlock()
}
