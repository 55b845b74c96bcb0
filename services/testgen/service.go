// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package testgen provides the test case generation service.
//
// The package contains the service type that coordinates all components:
// HTTP routing, the LLM client, the workflow engine, diagram rendering,
// persistent storage, and observability infrastructure.
//
// # Usage
//
//	cfg := testgen.Config{Port: 12310, LLMBackend: "ollama"}
//	svc, err := testgen.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package testgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/services/llm"
	"github.com/caseforge/caseforge/services/testgen/diagram"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/middleware"
	"github.com/caseforge/caseforge/services/testgen/observability"
	"github.com/caseforge/caseforge/services/testgen/routes"
	"github.com/caseforge/caseforge/services/testgen/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the lifecycle contract of the generation server.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases the store and tracer without starting the server.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration options. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int `yaml:"port"`

	// LLMBackend specifies the model provider.
	// Valid values: "ollama", "local", "openai", "claude", "anthropic"
	// Default: "ollama"
	LLMBackend string `yaml:"llm_backend"`

	// DataDir is the Badger database directory.
	// Default: "./data/caseforge"
	DataDir string `yaml:"data_dir"`

	// InMemoryStore replaces the on-disk database with a transient one.
	// Used by tests and throwaway sessions.
	InMemoryStore bool `yaml:"in_memory_store"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Empty disables tracing export.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// EnableMetrics enables the Prometheus /metrics endpoint collectors.
	// Default: true
	EnableMetrics bool `yaml:"enable_metrics"`

	// GinMode sets the Gin framework mode: "debug", "release", "test".
	GinMode string `yaml:"gin_mode"`

	// RateLimitRPS is the sustained per-client request rate.
	// Default: 5. Zero or negative disables rate limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// RateLimitBurst is the per-client burst size. Default: 10
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// LoadConfig reads a YAML config file into a Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/caseforge"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 10
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *storage.BadgerStore
	llmClient     llm.LLMClient
	orchestrator  *engine.Orchestrator
	diagrams      *diagram.Service
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// metricsInitialized guards the process-global Prometheus registration
// so multiple New() calls in tests do not panic on re-registration.
var metricsInitialized bool

// New creates a ready-to-run service.
//
// # Description
//
// Initialization order:
//  1. Apply configuration defaults
//  2. Initialize OpenTelemetry tracing (if an endpoint is configured)
//  3. Initialize Prometheus metrics
//  4. Open the Badger store
//  5. Create the LLM client for the configured backend
//  6. Wire the workflow engine and diagram service
//  7. Set up HTTP routes
//
// On any failure the partially constructed resources are released.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics && !metricsInitialized {
		observability.InitMetrics()
		metricsInitialized = true
		slog.Info("Initialized Prometheus metrics for generation workflow")
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.orchestrator = engine.NewOrchestrator(s.store, s.llmClient)
	s.diagrams = diagram.NewService(s.store, s.store, s.llmClient, diagram.NewPlantUMLRenderer())

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting caseforge server",
		"port", s.config.Port,
		"llm_backend", s.config.LLMBackend,
		"data_dir", s.config.DataDir,
	)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases resources without starting the server.
func (s *service) Close() error {
	s.cleanup()
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("caseforge-testgen")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the Badger database.
func (s *service) initStore() error {
	storeCfg := storage.DefaultConfig(s.config.DataDir)
	if s.config.InMemoryStore {
		storeCfg = storage.InMemoryConfig()
	}

	store, err := storage.OpenBadger(storeCfg)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initLLMClient creates the model client for the configured backend.
func (s *service) initLLMClient() error {
	client, err := llm.NewClient(s.config.LLMBackend)
	if err != nil {
		return err
	}
	s.llmClient = client
	slog.Info("Using LLM backend", "backend", s.config.LLMBackend)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("caseforge-testgen"))

	opts := routes.Options{AuthProvider: &middleware.NopAuthProvider{}}
	if s.config.RateLimitRPS > 0 {
		opts.RateLimiter = middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
	}

	routes.SetupRoutes(s.router, s.orchestrator, s.diagrams, opts)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("store close error", "error", err)
		}
		s.store = nil
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}
