// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command caseforged starts the caseforge test generation HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from environment variables, with an optional YAML config
// file as the base layer, and starts the server.
//
// # Environment Variables
//
//   - CASEFORGE_CONFIG: path to a YAML config file (optional)
//   - CASEFORGE_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, local, openai, claude (default: ollama)
//   - CASEFORGE_DATA_DIR: Badger database directory (default: ./data/caseforge)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o caseforged ./cmd/caseforged
//
//	# Run
//	./caseforged
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/caseforge/caseforge/services/testgen"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Optional YAML config file as the base layer
	var cfg testgen.Config
	if path := os.Getenv("CASEFORGE_CONFIG"); path != "" {
		fileCfg, err := testgen.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		cfg = fileCfg
	}

	// Environment variables override the file
	cfg.Port = getEnvInt("CASEFORGE_PORT", cfg.Port)
	cfg.LLMBackend = getEnvString("LLM_BACKEND_TYPE", cfg.LLMBackend)
	cfg.DataDir = getEnvString("CASEFORGE_DATA_DIR", cfg.DataDir)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.EnableMetrics = true

	slog.Info("Starting caseforge server",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"data_dir", cfg.DataDir,
	)

	svc, err := testgen.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
