// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/services/llm"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/diagram"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/storage"
)

// scriptedModel answers each prompt kind with a canned payload.
type scriptedModel struct {
	failCases bool
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "session title"):
		return "Scripted Title", nil
	case strings.Contains(prompt, "2-3 sentences"):
		return "Summary.", nil
	case strings.Contains(prompt, "clarification questions you need"):
		return `[]`, nil
	case strings.Contains(prompt, "PlantUML"):
		return "@startuml\nactor Tester\n@enduml", nil
	default:
		if m.failCases {
			return "", errors.New("backend exploded")
		}
		if strings.Contains(prompt, "high-level") {
			return `[{"title":"Scenario A","description":"a"},{"title":"Scenario B","description":"b"}]`, nil
		}
		if strings.Contains(prompt, "mid-level") {
			return `[{"title":"Case A1","description":"a1"}]`, nil
		}
		return `[{"title":"Step case","description":"d","test_steps":["open"],"expected_result":"works"}]`, nil
	}
}

func (m *scriptedModel) GenerateStream(ctx context.Context, prompt string, params llm.GenerationParams, callback llm.StreamCallback) error {
	out, err := m.Generate(ctx, prompt, params)
	if err != nil {
		return err
	}
	mid := len(out) / 2
	for _, chunk := range []string{out[:mid], out[mid:]} {
		if chunk == "" {
			continue
		}
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: chunk}); err != nil {
			return err
		}
	}
	return nil
}

type staticRenderer struct{}

func (staticRenderer) Render(ctx context.Context, source string) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func newTestRouter(t *testing.T, model llm.LLMClient) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.OpenBadger(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	orch := engine.NewOrchestrator(store, model)
	diagrams := diagram.NewService(store, store, model, staticRenderer{})

	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/sessions", CreateSession(orch))
	v1.GET("/sessions", ListSessions(orch))
	v1.GET("/sessions/:sessionId", GetSession(orch))
	v1.DELETE("/sessions/:sessionId", DeleteSession(orch))
	v1.POST("/sessions/:sessionId/start", StartGeneration(orch))
	v1.POST("/sessions/:sessionId/start/stream", StartGenerationStream(orch))
	v1.POST("/sessions/:sessionId/answers", SubmitAnswers(orch))
	v1.POST("/sessions/:sessionId/select", SelectCase(orch))
	v1.GET("/sessions/:sessionId/state", GetState(orch))
	v1.GET("/sessions/:sessionId/tree", GetTree(orch))
	v1.POST("/sessions/:sessionId/diagrams", GenerateDiagram(diagrams))
	v1.GET("/diagrams/:diagramId", GetDiagram(diagrams))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/sessions", gin.H{"user_prompt": "checkout flow"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var st datatypes.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotEmpty(t, st.SessionID)
	return st.SessionID
}

func TestCreateSessionValidation(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})

	w := doJSON(t, r, http.MethodPost, "/v1/sessions", gin.H{"user_prompt": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartAndState(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var st datatypes.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Len(t, st.L1Cases, 2)

	// Starting an already started session conflicts.
	w = doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Stage string `json:"stage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tree_view", resp.Stage)
}

func TestSelectAndTree(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start", nil).Code)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/select", gin.H{"level": "l1", "index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+id+"/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tree datatypes.SessionTree
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree.Roots, 2)
	assert.NotEmpty(t, tree.Roots[0].Children)

	// Out-of-range selection maps to 409.
	w = doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/select", gin.H{"level": "l1", "index": 42})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerationFailureMapsToBadGateway(t *testing.T) {
	model := &scriptedModel{failCases: true}
	r := newTestRouter(t, model)
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "generation_failure", resp.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})

	w := doJSON(t, r, http.MethodGet, "/v1/sessions/nope/state", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodDelete, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+id+"/state", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartStreamEmitsSSE(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, "event: token")
	assert.Contains(t, body, "event: complete")

	// The complete frame arrives last and carries the merged state.
	events := parseSSEEvents(t, body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, datatypes.FrameComplete, last.Type)
	require.NotNil(t, last.State)
	assert.Len(t, last.State.L1Cases, 2)

	// Frames are hash-chained in order.
	prev := ""
	for _, ev := range events {
		assert.Equal(t, prev, ev.PrevHash)
		assert.NotEmpty(t, ev.Hash)
		prev = ev.Hash
	}
}

func TestStartStreamErrorFrame(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{failCases: true})
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSEEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, datatypes.FrameError, last.Type)
	assert.NotEmpty(t, last.Error)
	assert.NotContains(t, last.Error, "exploded", "internal details must not leak")
}

func TestDiagramEndpoints(t *testing.T) {
	r := newTestRouter(t, &scriptedModel{})
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/start", nil).Code)

	// An L1 case without a complete subtree is rejected.
	w := doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/diagrams",
		gin.H{"test_case_id": "L1_001", "diagram_type": "structural"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Expand L1_001 down to L3, then the diagram succeeds.
	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/select", gin.H{"level": "l1", "index": 0}).Code)
	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/select", gin.H{"level": "l2", "index": 0}).Code)

	w = doJSON(t, r, http.MethodPost, "/v1/sessions/"+id+"/diagrams",
		gin.H{"test_case_id": "L1_001", "diagram_type": "structural"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var d datatypes.Diagram
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	require.NotEmpty(t, d.ID)

	w = doJSON(t, r, http.MethodGet, "/v1/diagrams/"+d.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// parseSSEEvents decodes the data lines of an SSE body into frames.
func parseSSEEvents(t *testing.T, body string) []datatypes.Frame {
	t.Helper()
	var frames []datatypes.Frame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f datatypes.Frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}
	return frames
}
