// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes workflow frames to an HTTP response as Server-Sent
// Events.
//
// # Description
//
// SSEWriter abstracts frame serialization and the SSE wire format
// (event: type\ndata: json\n\n) away from the streaming handlers.
// Each frame is automatically assigned:
//   - ID: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of frame content for integrity
//   - PrevHash: Hash of the previous frame for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the keepalive ticker
// writes from a separate goroutine.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders() before the first write
type SSEWriter interface {
	// WriteFrame populates frame metadata, serializes to JSON, and
	// writes one SSE event. Flushes immediately.
	WriteFrame(frame datatypes.Frame) error

	// WriteStatus writes a status frame with the given message.
	WriteStatus(message string) error

	// WriteKeepAlive sends an SSE comment (": ping\n\n") to keep the
	// connection alive through load balancer idle timeouts. Comments
	// are ignored by clients and do not update the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// The writer maintains a hash chain for integrity verification: each
// frame's Hash is SHA-256 of its content and PrevHash links it to the
// previous frame, giving chain of custody over text, state, and
// timestamps.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write frames.
//   - error: Non-nil if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteFrame writes a single frame to the response.
func (w *sseWriter) WriteFrame(frame datatypes.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame.ID = uuid.New().String()
	frame.CreatedAt = time.Now().UnixMilli()
	frame.PrevHash = w.prevHash
	frame.Hash = frame.ComputeHash()

	// Advance the chain for the next frame.
	w.prevHash = frame.Hash

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", frame.Type, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteStatus writes a status frame with the given message.
func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteFrame(datatypes.Frame{
		Type:    datatypes.FrameStatus,
		Message: message,
	})
}

// WriteKeepAlive sends a comment line to keep the connection alive.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures the response headers for SSE streaming.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
