// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/observability"
)

// sessionSummary is the list projection of a session. The full state
// with every generated case is only returned by the state endpoint.
type sessionSummary struct {
	SessionID     string `json:"session_id"`
	Title         string `json:"title,omitempty"`
	RootPrompt    string `json:"root_prompt"`
	GlobalSummary string `json:"global_summary,omitempty"`
	Stage         string `json:"stage"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

func summarize(st *datatypes.SessionState) sessionSummary {
	return sessionSummary{
		SessionID:     st.SessionID,
		Title:         st.Title,
		RootPrompt:    st.RootPrompt,
		GlobalSummary: st.GlobalSummary,
		Stage:         string(engine.ResolveStage(st)),
		CreatedAt:     st.CreatedAt,
		UpdatedAt:     st.UpdatedAt,
	}
}

// CreateSession creates a new generation session from a business prompt.
func CreateSession(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, observability.OperationStart, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeValidationError(c, observability.OperationStart, err)
			return
		}

		st, err := orch.CreateSession(c.Request.Context(), req.UserPrompt, req.Title)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			writeError(c, observability.OperationStart, err)
			return
		}

		slog.Info("created session", "session_id", st.SessionID)
		c.JSON(http.StatusCreated, st)
	}
}

// ListSessions returns summaries of all stored sessions, newest first.
func ListSessions(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		states, err := orch.ListSessions(c.Request.Context())
		if err != nil {
			slog.Error("failed to list sessions", "error", err)
			writeError(c, observability.OperationStart, err)
			return
		}

		summaries := make([]sessionSummary, 0, len(states))
		for _, st := range states {
			summaries = append(summaries, summarize(st))
		}
		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}

// GetSession returns the summary of a single session.
func GetSession(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := orch.GetState(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, observability.OperationStart, err)
			return
		}
		c.JSON(http.StatusOK, summarize(st))
	}
}

// DeleteSession removes a session and its diagrams.
func DeleteSession(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if err := orch.DeleteSession(c.Request.Context(), sessionID); err != nil {
			slog.Error("failed to delete session", "session_id", sessionID, "error", err)
			writeError(c, observability.OperationStart, err)
			return
		}

		slog.Info("deleted session", "session_id", sessionID)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
