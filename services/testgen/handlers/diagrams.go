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
	"github.com/caseforge/caseforge/services/testgen/diagram"
	"github.com/caseforge/caseforge/services/testgen/observability"
)

// GenerateDiagram creates or regenerates the diagram for a test case.
func GenerateDiagram(svc *diagram.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		sessionID := c.Param("sessionId")

		var req datatypes.GenerateDiagramRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, observability.OperationDiagram, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeValidationError(c, observability.OperationDiagram, err)
			return
		}

		d, err := svc.Generate(c.Request.Context(), sessionID, req)
		recordOutcome(observability.OperationDiagram, began, err)
		if err != nil {
			slog.Error("diagram generation failed",
				"session_id", sessionID,
				"test_case_id", req.TestCaseID,
				"error", err,
			)
			writeError(c, observability.OperationDiagram, err)
			return
		}

		slog.Info("generated diagram",
			"session_id", sessionID,
			"diagram_id", d.ID,
			"diagram_type", d.DiagramType,
		)
		c.JSON(http.StatusCreated, d)
	}
}

// EditDiagram rewrites an existing diagram per an edit instruction.
func EditDiagram(svc *diagram.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		diagramID := c.Param("diagramId")

		var req datatypes.EditDiagramRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidationError(c, observability.OperationDiagram, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeValidationError(c, observability.OperationDiagram, err)
			return
		}

		d, err := svc.Edit(c.Request.Context(), diagramID, req.EditPrompt)
		recordOutcome(observability.OperationDiagram, began, err)
		if err != nil {
			slog.Error("diagram edit failed", "diagram_id", diagramID, "error", err)
			writeError(c, observability.OperationDiagram, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// GetDiagram returns a diagram by id.
func GetDiagram(svc *diagram.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.Get(c.Request.Context(), c.Param("diagramId"))
		if err != nil {
			writeError(c, observability.OperationDiagram, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}
