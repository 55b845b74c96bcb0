// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

func collectFrames(frames *[]datatypes.Frame) FrameSink {
	return func(f datatypes.Frame) error {
		*frames = append(*frames, f)
		return nil
	}
}

func TestRelayFrameOrdering(t *testing.T) {
	var frames []datatypes.Frame
	relay := NewRelay(collectFrames(&frames))

	_ = relay.Token("Hel")
	_ = relay.Token("lo")
	_ = relay.Complete(&datatypes.SessionState{SessionID: "s1"})

	// Nothing after the terminal frame.
	_ = relay.Token("late")
	_ = relay.Complete(nil)
	_ = relay.Fail(errors.New("late failure"))

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Type != datatypes.FrameToken || frames[0].Text != "Hel" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Text != "Hello" {
		t.Errorf("token frames must carry accumulated text, got %q", frames[1].Text)
	}
	if frames[2].Type != datatypes.FrameComplete || frames[2].State.SessionID != "s1" {
		t.Errorf("terminal frame = %+v", frames[2])
	}
}

func TestRelayErrorBeforeAnyToken(t *testing.T) {
	var frames []datatypes.Frame
	relay := NewRelay(collectFrames(&frames))

	cause := fmt.Errorf("%w: backend down", ErrGenerationFailure)
	if got := relay.Fail(cause); !errors.Is(got, ErrGenerationFailure) {
		t.Errorf("Fail() should return the original error, got %v", got)
	}

	if len(frames) != 1 || frames[0].Type != datatypes.FrameError {
		t.Fatalf("expected exactly one error frame, got %+v", frames)
	}
	if frames[0].Error == "" {
		t.Error("error frame carries no message")
	}
}

func TestRelayNoCompleteAfterError(t *testing.T) {
	var frames []datatypes.Frame
	relay := NewRelay(collectFrames(&frames))

	_ = relay.Fail(errors.New("boom"))
	_ = relay.Complete(&datatypes.SessionState{})

	if len(frames) != 1 {
		t.Fatalf("frames after terminal error were delivered: %+v", frames)
	}
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"taxonomy passes through", ErrGenerationInProgress, ErrGenerationInProgress.Error()},
		{"wrapped taxonomy passes through", fmt.Errorf("%w: detail", ErrInvalidStageTransition), ErrInvalidStageTransition.Error()},
		{"generation failure is generic", fmt.Errorf("%w: connect refused 10.0.0.5", ErrGenerationFailure), "the model did not produce a usable result; try again"},
		{"unknown errors collapse", errors.New("pq: password authentication failed"), "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeError(tt.err); got != tt.want {
				t.Errorf("SanitizeError() = %q, want %q", got, tt.want)
			}
		})
	}
}
