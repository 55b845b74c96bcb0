// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// Constants for default connection settings
const (
	DefaultServerURL = "http://localhost:12310"

	// Streaming requests have no overall deadline; generation can run
	// for minutes. Non-streaming calls get a tight timeout.
	requestTimeout = 30 * time.Second
)

// apiClient talks to the caseforge server's v1 HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
}

// newAPIClient creates a client for the given server base URL.
func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
	}
}

// apiError is the server's JSON error envelope.
type apiError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// do executes a JSON request and decodes the response into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// openStream starts a streaming POST and returns the response body for
// SSE processing. The caller must close it.
func (c *apiClient) openStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request POST %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeAPIError(resp)
	}

	return resp.Body, nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return &apiErr
}

// =============================================================================
// Session Operations
// =============================================================================

func (c *apiClient) createSession(ctx context.Context, prompt, title string) (*datatypes.SessionState, error) {
	var state datatypes.SessionState
	req := datatypes.CreateSessionRequest{UserPrompt: prompt, Title: title}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *apiClient) listSessions(ctx context.Context) ([]map[string]any, error) {
	var resp struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *apiClient) deleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil, nil)
}

// getState fetches the session snapshot plus its resolved stage.
func (c *apiClient) getState(ctx context.Context, sessionID string) (*datatypes.SessionState, string, error) {
	var resp struct {
		State *datatypes.SessionState `json:"state"`
		Stage string                  `json:"stage"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/state", nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.State, resp.Stage, nil
}

func (c *apiClient) getTree(ctx context.Context, sessionID string) (*datatypes.SessionTree, error) {
	var tree datatypes.SessionTree
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/tree", nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// =============================================================================
// Workflow Streams
// =============================================================================

func (c *apiClient) startStream(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/v1/sessions/"+sessionID+"/start/stream", nil)
}

func (c *apiClient) submitAnswersStream(ctx context.Context, sessionID string, level string, answers map[string]string) (io.ReadCloser, error) {
	req := datatypes.SubmitAnswersRequest{Level: level, Answers: answers}
	return c.openStream(ctx, "/v1/sessions/"+sessionID+"/answers/stream", req)
}

func (c *apiClient) selectCaseStream(ctx context.Context, sessionID string, level string, index int) (io.ReadCloser, error) {
	req := datatypes.SelectCaseRequest{Level: level, Index: index}
	return c.openStream(ctx, "/v1/sessions/"+sessionID+"/select/stream", req)
}

// =============================================================================
// Diagram Operations
// =============================================================================

func (c *apiClient) generateDiagram(ctx context.Context, sessionID, testCaseID, diagramType, title string) (*datatypes.Diagram, error) {
	var diagram datatypes.Diagram
	req := datatypes.GenerateDiagramRequest{
		TestCaseID:  testCaseID,
		DiagramType: diagramType,
		Title:       title,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/diagrams", req, &diagram); err != nil {
		return nil, err
	}
	return &diagram, nil
}

func (c *apiClient) getDiagram(ctx context.Context, diagramID string) (*datatypes.Diagram, error) {
	var diagram datatypes.Diagram
	if err := c.do(ctx, http.MethodGet, "/v1/diagrams/"+diagramID, nil, &diagram); err != nil {
		return nil, err
	}
	return &diagram, nil
}

func (c *apiClient) editDiagram(ctx context.Context, diagramID, editPrompt string) (*datatypes.Diagram, error) {
	var diagram datatypes.Diagram
	req := datatypes.EditDiagramRequest{EditPrompt: editPrompt}
	if err := c.do(ctx, http.MethodPut, "/v1/diagrams/"+diagramID, req, &diagram); err != nil {
		return nil, err
	}
	return &diagram, nil
}
