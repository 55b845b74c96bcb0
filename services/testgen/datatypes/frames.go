// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FrameType discriminates streaming relay frames.
type FrameType string

const (
	// FrameStatus carries a human-readable progress message. Status
	// frames are informational and never terminal.
	FrameStatus FrameType = "status"

	// FrameToken carries the accumulated completion text so far. Each
	// token frame replaces the previous one; consumers only need the
	// latest value to render progress.
	FrameToken FrameType = "token"

	// FrameComplete is the successful terminal frame carrying the merged
	// session state. Exactly one terminal frame ends every stream.
	FrameComplete FrameType = "complete"

	// FrameError is the failing terminal frame.
	FrameError FrameType = "error"
)

// Frame is one unit of a streamed workflow operation.
//
// ID, CreatedAt, Hash, and PrevHash are populated by the transport when
// the frame is written to the wire. Hash is SHA-256 of the frame content
// and PrevHash links to the preceding frame, giving the client a
// verifiable chain over the whole stream.
type Frame struct {
	Type FrameType `json:"type"`

	ID        string `json:"id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Hash      string `json:"hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`

	// Message is a progress description (status frames only).
	Message string `json:"message,omitempty"`

	// Text is the accumulated completion text (token frames only).
	Text string `json:"full_text,omitempty"`

	// State is the merged session state (complete frames only).
	State *SessionState `json:"state,omitempty"`

	// Error is a sanitized failure description (error frames only).
	Error string `json:"error,omitempty"`
}

// ComputeHash returns the SHA-256 hash of the frame's content.
//
// The hash covers every field except Hash itself, with the state payload
// JSON-serialized for determinism. Producers set Hash to this value and
// consumers recompute it to verify the chain.
func (f Frame) ComputeHash() string {
	stateJSON := ""
	if f.State != nil {
		if data, err := json.Marshal(f.State); err == nil {
			stateJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		f.ID,
		f.Type,
		f.CreatedAt,
		f.PrevHash,
		f.Message,
		f.Text,
		f.Error,
		stateJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// Diagram is a rendered visualization of one test case's subtree.
//
// The id is assigned once at generation and survives edits; clients can
// hold a stable reference while the source and image change underneath.
type Diagram struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	TestCaseID  string `json:"test_case_id"`
	DiagramType string `json:"diagram_type"`
	Title       string `json:"title,omitempty"`

	// Source is the PlantUML text the image was rendered from.
	Source string `json:"source"`

	// ImagePNG is the rendered diagram.
	ImagePNG []byte `json:"image_png,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}
