// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b"

	// Large generations on CPU-only hosts can take minutes.
	ollamaRequestTimeout = 5 * time.Minute

	// maxStreamLineBytes bounds a single NDJSON line from Ollama.
	maxStreamLineBytes = 1024 * 1024
)

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient talks to a local Ollama daemon over its REST API.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient builds a client from OLLAMA_HOST and OLLAMA_MODEL.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_HOST")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = defaultOllamaModel
		slog.Info("OLLAMA_MODEL not set, defaulting to", "model", model)
	}

	return &OllamaClient{
		httpClient: &http.Client{Timeout: ollamaRequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	tracer := otel.Tracer("caseforge.llm.ollama")
	ctx, span := tracer.Start(ctx, "ollama.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.prompt_length", len(prompt)),
	)

	body, err := o.doGenerate(ctx, prompt, params, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}

	var resp ollamaGenerateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}
	if resp.Error != "" {
		return "", o.friendlyError(resp.Error)
	}

	span.SetAttributes(attribute.Int("llm.response_length", len(resp.Response)))
	return resp.Response, nil
}

// GenerateStream implements the LLMClient interface.
//
// Ollama emits newline-delimited JSON chunks; each chunk's "response"
// field is forwarded as one token event. The final chunk has done=true.
func (o *OllamaClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error {
	tracer := otel.Tracer("caseforge.llm.ollama")
	ctx, span := tracer.Start(ctx, "ollama.generate_stream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	body, err := o.doGenerate(ctx, prompt, params, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

	tokens := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("Skipping malformed ollama stream chunk", "error", err)
			continue
		}
		if chunk.Error != "" {
			streamErr := o.friendlyError(chunk.Error)
			_ = callback(StreamEvent{Type: StreamEventError, Error: streamErr})
			return streamErr
		}
		if chunk.Response != "" {
			tokens++
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Response}); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ollama stream read failed: %w", err)
	}

	span.SetAttributes(attribute.Int("llm.stream_tokens", tokens))
	return nil
}

// doGenerate issues the /api/generate request and returns the body on 200.
func (o *OllamaClient) doGenerate(ctx context.Context, prompt string, params GenerationParams, stream bool) (io.ReadCloser, error) {
	reqPayload := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		System: params.SystemPrompt,
		Stream: stream,
	}

	options := map[string]any{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	if len(options) > 0 {
		reqPayload.Options = options
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Sending request to Ollama", "model", o.model, "stream", stream)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, o.friendlyError(fmt.Sprintf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}
	return resp.Body, nil
}

// friendlyError turns Ollama's model-not-found message into an
// actionable error for operators.
func (o *OllamaClient) friendlyError(msg string) error {
	if strings.Contains(msg, "not found") {
		return fmt.Errorf("ollama model %q is not available; run 'ollama pull %s' (%s)", o.model, o.model, msg)
	}
	return fmt.Errorf("ollama API error: %s", msg)
}
