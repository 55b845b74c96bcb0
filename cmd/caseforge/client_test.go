// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req datatypes.CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "checkout flow", req.UserPrompt)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(datatypes.SessionState{
			SessionID:  "sess-1",
			RootPrompt: req.UserPrompt,
		})
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "secret")
	state, err := api.createSession(context.Background(), "checkout flow", "")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", state.SessionID)
}

func TestGetStateReturnsStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/sess-1/state", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state": datatypes.SessionState{SessionID: "sess-1"},
			"stage": "tree_view",
		})
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	state, stage, err := api.getState(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", state.SessionID)
	assert.Equal(t, "tree_view", stage)
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "another generation is already running for this session",
			"code":  "generation_in_progress",
		})
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	_, err := api.createSession(context.Background(), "prompt", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation_in_progress")
	assert.Contains(t, err.Error(), "already running")
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	err := api.deleteSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestOpenStreamPassesBodyThrough(t *testing.T) {
	payload := "event: complete\ndata: {\"type\":\"complete\"}\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/sess-1/start/stream", r.URL.Path)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	body, err := api.startStream(context.Background(), "sess-1")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestOpenStreamSurfacesGuardConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "generation already in progress",
			"code":  "generation_in_progress",
		})
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	_, err := api.selectCaseStream(context.Background(), "sess-1", "l1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation_in_progress")
}
