// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestOllamaClient returns a client pointed at a test server.
func newTestOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		model:      "test-model",
	}
}

func TestOllamaGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"model":"test-model","response":"[{\"id\":1}]","done":true}`)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	got, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `[{"id":1}]` {
		t.Errorf("Generate() = %q, want %q", got, `[{"id":1}]`)
	}
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'test-model' not found"}`)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	_, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("expected actionable pull hint in error, got: %v", err)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []string{
			`{"response":"Hello","done":false}`,
			`{"response":" world","done":false}`,
			`{"response":"","done":true}`,
		}
		for _, c := range chunks {
			fmt.Fprintln(w, c)
		}
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)

	var tokens []string
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{}, func(event StreamEvent) error {
		if event.Type == StreamEventToken {
			tokens = append(tokens, event.Content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}
	if got := strings.Join(tokens, ""); got != "Hello world" {
		t.Errorf("accumulated stream = %q, want %q", got, "Hello world")
	}
}

func TestOllamaGenerateStream_MidStreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"partial","done":false}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)

	var sawErrorEvent bool
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{}, func(event StreamEvent) error {
		if event.Type == StreamEventError {
			sawErrorEvent = true
		}
		return nil
	})
	if err == nil {
		t.Fatal("GenerateStream() expected error, got nil")
	}
	if !sawErrorEvent {
		t.Error("expected an error event before the stream ended")
	}
}

func TestOllamaGenerateStream_CallbackAborts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			fmt.Fprintln(w, `{"response":"x","done":false}`)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)

	abort := fmt.Errorf("client gone")
	count := 0
	err := client.GenerateStream(context.Background(), "prompt", GenerationParams{}, func(event StreamEvent) error {
		count++
		if count >= 3 {
			return abort
		}
		return nil
	})
	if err != abort {
		t.Fatalf("GenerateStream() error = %v, want callback abort error", err)
	}
	if count != 3 {
		t.Errorf("callback invoked %d times after abort, want 3", count)
	}
}
