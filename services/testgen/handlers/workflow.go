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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/observability"
)

// recordOutcome records request count and duration for one operation.
func recordOutcome(op observability.Operation, start time.Time, err error) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(op, err == nil)
		m.RecordDuration(op, err == nil, time.Since(start).Seconds())
	}
}

// StartGeneration kicks off L1 question generation for a session.
//
// The response is the merged session state after the model call. If the
// model asked no clarification questions the state already carries L1
// cases and sits in tree view.
func StartGeneration(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		sessionID := c.Param("sessionId")

		st, err := orch.Start(c.Request.Context(), sessionID)
		recordOutcome(observability.OperationStart, began, err)
		if err != nil {
			slog.Error("start failed", "session_id", sessionID, "error", err)
			writeError(c, observability.OperationStart, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// SubmitAnswers records clarification answers for one level and expands
// the next layer of the tree.
func SubmitAnswers(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		sessionID := c.Param("sessionId")

		var req datatypes.SubmitAnswersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, observability.OperationSubmitAnswers, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeValidationError(c, observability.OperationSubmitAnswers, err)
			return
		}

		st, err := orch.SubmitAnswers(c.Request.Context(), sessionID, datatypes.Level(req.Level), req.Answers)
		recordOutcome(observability.OperationSubmitAnswers, began, err)
		if err != nil {
			slog.Error("submit answers failed", "session_id", sessionID, "level", req.Level, "error", err)
			writeError(c, observability.OperationSubmitAnswers, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// SelectCase marks a case as the active branch and lazily expands its
// children.
func SelectCase(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		sessionID := c.Param("sessionId")

		var req datatypes.SelectCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, observability.OperationSelectCase, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeValidationError(c, observability.OperationSelectCase, err)
			return
		}

		st, err := orch.SelectCase(c.Request.Context(), sessionID, datatypes.Level(req.Level), req.Index)
		recordOutcome(observability.OperationSelectCase, began, err)
		if err != nil {
			slog.Error("select case failed", "session_id", sessionID, "level", req.Level, "index", req.Index, "error", err)
			writeError(c, observability.OperationSelectCase, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GetState returns the full session state. Never blocks on an in-flight
// generation.
func GetState(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := orch.GetState(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, observability.OperationStart, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": st, "stage": string(engine.ResolveStage(st))})
	}
}

// GetTree returns the hierarchical projection of the session's cases.
func GetTree(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := orch.GetState(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, observability.OperationStart, err)
			return
		}
		c.JSON(http.StatusOK, st.BuildTree())
	}
}
