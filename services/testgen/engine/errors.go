// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the generation workflow: the stage resolver,
// the orchestrator driving model calls and state merges, the per-session
// concurrency guard, and the streaming relay.
package engine

import "errors"

// The error taxonomy surfaced to callers. Handlers map these to HTTP
// status codes; no error is retried by the engine itself.
var (
	// ErrGenerationFailure wraps a model call that errored or returned
	// content that cannot be parsed into the requested shape. Session
	// state is left unchanged.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrInvalidStageTransition marks an operation that is not legal for
	// the session's current resolved stage.
	ErrInvalidStageTransition = errors.New("operation not legal for current stage")

	// ErrGenerationInProgress is returned when the per-session guard is
	// already held. Callers retry; requests are never queued.
	ErrGenerationInProgress = errors.New("a generation is already in progress for this session")

	// ErrPreconditionNotMet marks a diagram request whose subtree is not
	// fully expanded yet.
	ErrPreconditionNotMet = errors.New("test case subtree is not complete")

	// ErrRenderFailure marks diagram markup that the renderer rejected.
	ErrRenderFailure = errors.New("diagram rendering failed")
)
