// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainedStream builds an SSE payload with a valid hash chain, the way
// the server writes it.
func chainedStream(t *testing.T, frames []StreamFrame) string {
	t.Helper()
	var sb strings.Builder
	prev := ""
	for i := range frames {
		frames[i].ID = fmt.Sprintf("frame-%d", i)
		frames[i].CreatedAt = int64(1000 + i)
		frames[i].PrevHash = prev
		frames[i].Hash = frames[i].computeHash()
		prev = frames[i].Hash

		data, err := json.Marshal(frames[i])
		require.NoError(t, err)
		sb.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", frames[i].Type, data))
	}
	return sb.String()
}

func TestStreamProcessorPrintsDeltas(t *testing.T) {
	payload := chainedStream(t, []StreamFrame{
		{Type: StreamFrameStatus, Message: "Generating..."},
		{Type: StreamFrameToken, FullText: "Hello"},
		{Type: StreamFrameToken, FullText: "Hello, world"},
		{Type: StreamFrameComplete, FullText: "Hello, world", State: json.RawMessage(`{"session_id":"s1"}`)},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMinimal)
	result, err := proc.Process(strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, "Hello, world", result.FullText)
	assert.JSONEq(t, `{"session_id":"s1"}`, string(result.State))
	assert.Equal(t, 4, result.Frames)
	// Accumulated text arrives once, not doubled.
	assert.Equal(t, 1, strings.Count(out.String(), "Hello, world"))
}

func TestStreamProcessorMachineMode(t *testing.T) {
	payload := chainedStream(t, []StreamFrame{
		{Type: StreamFrameStatus, Message: "Working"},
		{Type: StreamFrameToken, FullText: "partial"},
		{Type: StreamFrameComplete, FullText: "final answer"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	result, err := proc.Process(strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, "final answer", result.FullText)
	assert.Contains(t, out.String(), "STATUS: Working")
	assert.Contains(t, out.String(), "RESULT: final answer")
	// Tokens are buffered in machine mode.
	assert.NotContains(t, out.String(), "partial")
}

func TestStreamProcessorErrorFrame(t *testing.T) {
	payload := chainedStream(t, []StreamFrame{
		{Type: StreamFrameStatus, Message: "Working"},
		{Type: StreamFrameError, Error: "generation failed"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	_, err := proc.Process(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")
}

func TestStreamProcessorDetectsTamperedText(t *testing.T) {
	frames := []StreamFrame{
		{Type: StreamFrameToken, FullText: "honest output"},
		{Type: StreamFrameComplete, FullText: "honest output"},
	}
	payload := chainedStream(t, frames)

	// Flip the text after hashing.
	payload = strings.Replace(payload, "honest output", "doctored output", 1)

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	_, err := proc.Process(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken")
}

func TestStreamProcessorDetectsDroppedFrame(t *testing.T) {
	frames := []StreamFrame{
		{Type: StreamFrameToken, FullText: "a"},
		{Type: StreamFrameToken, FullText: "ab"},
		{Type: StreamFrameComplete, FullText: "ab"},
	}
	payload := chainedStream(t, frames)

	// Drop the middle event.
	events := strings.SplitAfter(payload, "\n\n")
	require.Len(t, events, 4) // 3 events plus trailing empty split
	payload = events[0] + events[2]

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	_, err := proc.Process(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prev_hash mismatch")
}

func TestStreamProcessorIgnoresKeepalives(t *testing.T) {
	payload := ": ping\n\n" + chainedStream(t, []StreamFrame{
		{Type: StreamFrameComplete, FullText: "done"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	result, err := proc.Process(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "done", result.FullText)
}

func TestStreamProcessorNoTerminalFrame(t *testing.T) {
	payload := chainedStream(t, []StreamFrame{
		{Type: StreamFrameToken, FullText: "cut off"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	_, err := proc.Process(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a terminal frame")
}
