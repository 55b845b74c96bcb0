// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/observability"
)

const (
	// heartbeatInterval is the keepalive ping interval. 15s stays well
	// under typical load balancer idle timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// streamFn runs one workflow operation, delivering frames to the sink.
type streamFn func(ctx context.Context, sink engine.FrameSink) error

// StartGenerationStream streams Start over SSE.
func StartGenerationStream(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		runStreaming(c, observability.OperationStart, "Generating test scenarios...",
			func(ctx context.Context, sink engine.FrameSink) error {
				return orch.StartStream(ctx, sessionID, sink)
			})
	}
}

// SubmitAnswersStream streams SubmitAnswers over SSE.
func SubmitAnswersStream(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
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

		runStreaming(c, observability.OperationSubmitAnswers, "Expanding the test case tree...",
			func(ctx context.Context, sink engine.FrameSink) error {
				return orch.SubmitAnswersStream(ctx, sessionID, datatypes.Level(req.Level), req.Answers, sink)
			})
	}
}

// SelectCaseStream streams SelectCase over SSE.
func SelectCaseStream(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
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

		runStreaming(c, observability.OperationSelectCase, "Expanding the selected case...",
			func(ctx context.Context, sink engine.FrameSink) error {
				return orch.SelectCaseStream(ctx, sessionID, datatypes.Level(req.Level), req.Index, sink)
			})
	}
}

// runStreaming is the shared SSE driver for the streaming variants.
//
// It sets SSE headers, starts the keepalive heartbeat, forwards frames
// from the engine to the wire, and records streaming metrics. Terminal
// frames (complete or error) are produced by the engine's relay; this
// function never fabricates its own.
func runStreaming(c *gin.Context, op observability.Operation, statusMsg string, run streamFn) {
	tracer := otel.Tracer("caseforge.testgen.handlers")
	ctx, span := tracer.Start(c.Request.Context(), "handlers.stream",
		trace.WithAttributes(
			attribute.String("stream.operation", string(op)),
			attribute.String("session.id", c.Param("sessionId")),
		))
	defer span.End()

	began := time.Now()
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(op)
		defer m.StreamEnded(op)
	}
	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(op, success)
			m.RecordDuration(op, success, time.Since(began).Seconds())
		}
	}()

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	if err := writer.WriteStatus(statusMsg); err != nil {
		span.RecordError(err)
		slog.Error("failed to write status frame", "error", err)
		return
	}

	heartbeatDone := make(chan struct{})
	go runHeartbeat(writer, op, heartbeatDone)

	var firstToken time.Time
	sink := func(frame datatypes.Frame) error {
		if frame.Type == datatypes.FrameToken && firstToken.IsZero() {
			firstToken = time.Now()
		}
		return writer.WriteFrame(frame)
	}

	streamErr := run(ctx, sink)
	close(heartbeatDone)

	if !firstToken.IsZero() {
		ttft := firstToken.Sub(began).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(op, ttft)
		}
	}

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "workflow streaming failed")
		slog.Error("workflow streaming failed",
			"operation", string(op),
			"session_id", c.Param("sessionId"),
			"error", streamErr,
		)

		if m := observability.DefaultMetrics; m != nil {
			if errors.Is(streamErr, context.Canceled) {
				m.RecordError(op, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(op)
			} else {
				_, code, _ := mapError(streamErr)
				m.RecordError(op, code)
				if code == observability.ErrorCodeInProgress {
					m.RecordGuardContention()
				}
			}
		}
		return
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed")
}

// runHeartbeat pings the client until the done channel closes.
func runHeartbeat(writer SSEWriter, op observability.Operation, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("keepalive write failed, client likely disconnected", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(op)
			}
		case <-done:
			return
		}
	}
}
