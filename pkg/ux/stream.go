// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamFrameType represents the type of a streamed workflow frame
type StreamFrameType string

const (
	StreamFrameStatus   StreamFrameType = "status"
	StreamFrameToken    StreamFrameType = "token"
	StreamFrameComplete StreamFrameType = "complete"
	StreamFrameError    StreamFrameType = "error"
)

// StreamFrame mirrors the server's SSE frame wire format.
//
// Token frames carry the accumulated text so far, not a delta. State is
// kept as raw JSON so hash verification sees the exact bytes the server
// hashed.
type StreamFrame struct {
	Type      StreamFrameType `json:"type"`
	ID        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	Message   string          `json:"message,omitempty"`
	FullText  string          `json:"full_text,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// computeHash recomputes the server-side content hash of the frame.
func (f StreamFrame) computeHash() string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		f.ID,
		f.Type,
		f.CreatedAt,
		f.PrevHash,
		f.Message,
		f.FullText,
		f.Error,
		string(f.State),
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// StreamResult contains the complete result of processing a stream
type StreamResult struct {
	// FullText is the final accumulated generation text.
	FullText string

	// State is the merged session state from the complete frame.
	State json.RawMessage

	// Frames is the number of frames processed.
	Frames int
}

// StreamProcessor defines the interface for processing streaming responses.
type StreamProcessor interface {
	// Process reads an SSE stream from the reader, printing progress as
	// it goes, and returns the final result.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for the workflow SSE format
type sseStreamProcessor struct {
	writer       io.Writer
	personality  PersonalityLevel
	verifyChain  bool
	spinner      *Spinner
	printed      int
	lastFullText string
	prevHash     string
	result       StreamResult
}

// NewStreamProcessor creates a new SSE stream processor with hash chain
// verification enabled.
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
		verifyChain: true,
	}
}

// NewStreamProcessorWithWriter creates a stream processor with custom
// writer (for testing). Chain verification stays on.
func NewStreamProcessorWithWriter(w io.Writer, personality PersonalityLevel) StreamProcessor {
	return &sseStreamProcessor{
		writer:      w,
		personality: personality,
		verifyChain: true,
	}
}

// Process reads and processes a streaming response
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Skip blanks, SSE comments (keepalives), and event: lines; the
		// frame type is carried in the JSON payload too.
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") ||
			strings.HasPrefix(line, "event: ") {
			continue
		}

		line = strings.TrimPrefix(line, "data: ")

		var frame StreamFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}

		if err := p.checkChain(frame); err != nil {
			p.finalize()
			return nil, err
		}
		p.result.Frames++

		switch frame.Type {
		case StreamFrameStatus:
			p.handleStatus(frame.Message)
		case StreamFrameToken:
			p.handleText(frame.FullText)
		case StreamFrameComplete:
			p.result.FullText = frame.FullText
			if p.result.FullText == "" {
				p.result.FullText = p.accumulated()
			}
			p.result.State = frame.State
			p.finalize()
			return &p.result, nil
		case StreamFrameError:
			p.finalize()
			return nil, fmt.Errorf("%s", frame.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	p.finalize()
	return nil, fmt.Errorf("stream ended without a terminal frame")
}

// checkChain verifies the frame's content hash and its link to the
// previous frame.
func (p *sseStreamProcessor) checkChain(frame StreamFrame) error {
	if !p.verifyChain || frame.Hash == "" {
		return nil
	}
	if frame.PrevHash != p.prevHash {
		return fmt.Errorf("frame chain broken at frame %d: prev_hash mismatch", p.result.Frames)
	}
	if got := frame.computeHash(); got != frame.Hash {
		return fmt.Errorf("frame chain broken at frame %d: content hash mismatch", p.result.Frames)
	}
	p.prevHash = frame.Hash
	return nil
}

func (p *sseStreamProcessor) handleStatus(message string) {
	if p.personality == PersonalityMachine {
		fmt.Fprintf(p.writer, "STATUS: %s\n", message)
		return
	}

	if p.spinner == nil {
		p.spinner = NewSpinner(message)
		p.spinner.Start()
	} else {
		p.spinner.UpdateMessage(message)
	}
}

func (p *sseStreamProcessor) handleText(fullText string) {
	// Stop spinner when generation output starts
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
		if p.personality != PersonalityMachine {
			fmt.Fprintln(p.writer)
		}
	}

	if len(fullText) <= p.printed {
		return
	}
	delta := fullText[p.printed:]
	p.printed = len(fullText)
	p.lastFullText = fullText

	if p.personality == PersonalityMachine {
		// Buffer until the terminal frame
		return
	}

	fmt.Fprint(p.writer, delta)
}

func (p *sseStreamProcessor) accumulated() string {
	return p.lastFullText
}

func (p *sseStreamProcessor) finalize() {
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}

	if p.personality == PersonalityMachine {
		if p.result.FullText != "" {
			fmt.Fprintf(p.writer, "RESULT: %s\n", p.result.FullText)
		}
		return
	}

	if p.printed > 0 {
		fmt.Fprintln(p.writer)
	}
}
