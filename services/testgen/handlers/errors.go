// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the test case
// generation API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/observability"
	"github.com/caseforge/caseforge/services/testgen/storage"
)

// mapError translates a workflow error into an HTTP status, a stable
// machine-readable code, and a sanitized client message.
func mapError(err error) (int, observability.ErrorCode, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, observability.ErrorCodeValidation, "not found"
	case errors.Is(err, engine.ErrGenerationInProgress):
		return http.StatusConflict, observability.ErrorCodeInProgress, engine.SanitizeError(err)
	case errors.Is(err, engine.ErrInvalidStageTransition):
		return http.StatusConflict, observability.ErrorCodeStageTransition, engine.SanitizeError(err)
	case errors.Is(err, engine.ErrPreconditionNotMet):
		return http.StatusUnprocessableEntity, observability.ErrorCodePrecondition, engine.SanitizeError(err)
	case errors.Is(err, engine.ErrGenerationFailure):
		return http.StatusBadGateway, observability.ErrorCodeGeneration, engine.SanitizeError(err)
	case errors.Is(err, engine.ErrRenderFailure):
		return http.StatusBadGateway, observability.ErrorCodeRender, engine.SanitizeError(err)
	default:
		return http.StatusInternalServerError, observability.ErrorCodeInternal, "internal error"
	}
}

// writeError records metrics and sends the JSON error response.
func writeError(c *gin.Context, op observability.Operation, err error) {
	status, code, msg := mapError(err)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(op, code)
		if code == observability.ErrorCodeInProgress {
			m.RecordGuardContention()
		}
	}
	c.JSON(status, gin.H{"error": msg, "code": string(code)})
}

// writeValidationError sends a 400 for a malformed or invalid request.
func writeValidationError(c *gin.Context, op observability.Operation, err error) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(op, observability.ErrorCodeValidation)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(observability.ErrorCodeValidation)})
}
