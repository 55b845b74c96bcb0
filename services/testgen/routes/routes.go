// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the HTTP surface of the test case generation
// service onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caseforge/caseforge/services/testgen/diagram"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/handlers"
	"github.com/caseforge/caseforge/services/testgen/middleware"
)

// Options carries the dependencies and policies for route setup.
type Options struct {
	// AuthProvider validates bearer tokens. Defaults to NopAuthProvider.
	AuthProvider middleware.AuthProvider

	// RateLimiter throttles the v1 API per client. Nil disables limiting.
	RateLimiter *middleware.RateLimiter
}

// SetupRoutes registers every endpoint on the router.
//
// Health and metrics stay outside the authenticated group so probes
// and scrapers need no credentials.
func SetupRoutes(router *gin.Engine, orch *engine.Orchestrator, diagrams *diagram.Service, opts Options) {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &middleware.NopAuthProvider{}
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	if opts.RateLimiter != nil {
		v1.Use(opts.RateLimiter.Middleware())
	}
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(orch))
			sessions.GET("", handlers.ListSessions(orch))
			sessions.GET("/:sessionId", handlers.GetSession(orch))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(orch))

			// Workflow operations, each with a streaming variant.
			sessions.POST("/:sessionId/start", handlers.StartGeneration(orch))
			sessions.POST("/:sessionId/start/stream", handlers.StartGenerationStream(orch))
			sessions.POST("/:sessionId/answers", handlers.SubmitAnswers(orch))
			sessions.POST("/:sessionId/answers/stream", handlers.SubmitAnswersStream(orch))
			sessions.POST("/:sessionId/select", handlers.SelectCase(orch))
			sessions.POST("/:sessionId/select/stream", handlers.SelectCaseStream(orch))

			sessions.GET("/:sessionId/state", handlers.GetState(orch))
			sessions.GET("/:sessionId/tree", handlers.GetTree(orch))
			sessions.GET("/:sessionId/ws", handlers.HandleWorkflowWebSocket(orch))

			sessions.POST("/:sessionId/diagrams", handlers.GenerateDiagram(diagrams))
		}

		diagramRoutes := v1.Group("/diagrams")
		{
			diagramRoutes.GET("/:diagramId", handlers.GetDiagram(diagrams))
			diagramRoutes.PUT("/:diagramId", handlers.EditDiagram(diagrams))
		}
	}
}
