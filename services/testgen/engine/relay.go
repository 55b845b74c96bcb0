// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"strings"
	"sync"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// FrameSink receives relay frames in emission order. Returning an error
// abandons the stream; the engine aborts the underlying model call.
type FrameSink func(frame datatypes.Frame) error

// Relay enforces the streaming frame contract over an arbitrary sink:
// zero or more token frames, then exactly one terminal frame, and
// nothing after the terminal one.
//
// # Thread Safety
//
// Safe for concurrent use, though frames for one invocation are emitted
// sequentially by the engine.
type Relay struct {
	sink FrameSink

	mu       sync.Mutex
	acc      strings.Builder
	terminal bool
}

// NewRelay wraps a sink.
func NewRelay(sink FrameSink) *Relay {
	if sink == nil {
		panic("relay sink must not be nil")
	}
	return &Relay{sink: sink}
}

// Token appends one chunk and emits a token frame carrying the full
// accumulated text of the invocation so far. Each token frame replaces
// the previous one (last-value-wins).
func (r *Relay) Token(delta string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return nil
	}
	r.acc.WriteString(delta)
	return r.sink(datatypes.Frame{Type: datatypes.FrameToken, Text: r.acc.String()})
}

// Complete emits the successful terminal frame with the merged state.
func (r *Relay) Complete(state *datatypes.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return nil
	}
	r.terminal = true
	return r.sink(datatypes.Frame{Type: datatypes.FrameComplete, State: state})
}

// Fail emits the failing terminal frame with a sanitized message and
// returns the original error for the caller to propagate.
func (r *Relay) Fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.terminal {
		r.terminal = true
		// The sink may already be gone (client disconnect); the error
		// frame is best effort.
		_ = r.sink(datatypes.Frame{Type: datatypes.FrameError, Error: SanitizeError(err)})
	}
	return err
}

// SanitizeError maps an engine error to a client-safe message. Taxonomy
// errors pass through; anything else collapses to a generic message so
// backend details never leak into responses.
func SanitizeError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidStageTransition):
		return ErrInvalidStageTransition.Error()
	case errors.Is(err, ErrGenerationInProgress):
		return ErrGenerationInProgress.Error()
	case errors.Is(err, ErrPreconditionNotMet):
		return ErrPreconditionNotMet.Error()
	case errors.Is(err, ErrRenderFailure):
		return ErrRenderFailure.Error()
	case errors.Is(err, ErrGenerationFailure):
		return "the model did not produce a usable result; try again"
	default:
		return "internal error"
	}
}
