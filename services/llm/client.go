// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the model capability used by the test case
// generation engine.
//
// # Description
//
// The package defines a small backend-agnostic interface (LLMClient) plus
// concrete clients for OpenAI-compatible APIs, Ollama, and Anthropic.
// Callers build a prompt, pick generation parameters, and either collect
// the full completion (Generate) or receive incremental tokens through a
// callback (GenerateStream).
//
// # Backend Selection
//
// NewClient reads the backend name ("openai", "ollama", "claude") and
// returns the matching implementation. Each constructor reads its own
// credentials from the environment with a /run/secrets fallback.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrStreamingNotSupported is returned by GenerateStream when the backend
// has no token streaming transport. Callers may fall back to Generate.
var ErrStreamingNotSupported = errors.New("backend does not support token streaming")

// GenerationParams tunes a single completion request.
//
// All fields are optional. Nil pointer fields mean "use the backend
// default" so that zero values are never sent by accident.
type GenerationParams struct {
	Temperature *float32
	TopK        *int
	TopP        *float32
	MaxTokens   *int
	Stop        []string

	// SystemPrompt overrides the backend's default system role content.
	SystemPrompt string
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken carries one incremental chunk of completion text.
	StreamEventToken StreamEventType = "token"

	// StreamEventError carries a mid-stream failure. The stream ends
	// after an error event.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single unit of streamed model output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   error
}

// StreamCallback receives stream events in order. Returning an error
// aborts the stream; the client stops reading and returns that error.
type StreamCallback func(event StreamEvent) error

// LLMClient is the interface every model backend implements.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the engine shares one
// client across all sessions.
type LLMClient interface {
	// Generate returns the complete response for the prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// GenerateStream delivers the response incrementally through the
	// callback. Implementations without a streaming transport return
	// ErrStreamingNotSupported without invoking the callback.
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error
}

// NewClient constructs the backend named by backendType.
//
// # Inputs
//
//   - backendType: "openai", "ollama", or "claude". Empty defaults to "ollama".
//
// # Outputs
//
//   - LLMClient: ready-to-use client
//   - error: unknown backend name or missing credentials
func NewClient(backendType string) (LLMClient, error) {
	switch backendType {
	case "", "ollama", "local":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	case "claude", "anthropic":
		return NewAnthropicClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend type: %q", backendType)
	}
}
