// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data structures for the test case
// generation service: session state, the three-level case hierarchy,
// clarification questions, stream frames, and validated request types.
package datatypes

import (
	"encoding/json"
	"fmt"
)

// Level identifies one tier of the test case hierarchy.
type Level string

const (
	// LevelL1 holds high-level test scenarios derived from the business prompt.
	LevelL1 Level = "l1"
	// LevelL2 holds mid-level cases refining one selected L1 scenario.
	LevelL2 Level = "l2"
	// LevelL3 holds concrete executable cases with steps and expected results.
	LevelL3 Level = "l3"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	return l == LevelL1 || l == LevelL2 || l == LevelL3
}

// Question is one clarification question posed to the user.
//
// A question either stands alone or carries suggested answers the user can
// pick from. Model output is ambiguous here: older prompt formats return a
// bare string, newer ones an object with a suggested_answers list. The
// ambiguity is resolved once, at ingestion, by UnmarshalJSON; the rest of
// the system only ever sees this resolved form.
type Question struct {
	Text             string   `json:"question"`
	SuggestedAnswers []string `json:"suggested_answers,omitempty"`
}

// UnmarshalJSON accepts either a bare string or a question object.
func (q *Question) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		q.Text = plain
		q.SuggestedAnswers = nil
		return nil
	}

	type questionAlias Question
	var obj questionAlias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("question is neither a string nor an object: %w", err)
	}
	if obj.Text == "" {
		return fmt.Errorf("question object is missing the question field")
	}
	*q = Question(obj)
	return nil
}

// TestCase is one node in the L1/L2/L3 hierarchy.
//
// ParentL1ID is set only on L2 cases, ParentL2ID only on L3 cases.
// TestSteps and ExpectedResult are populated only at L3.
type TestCase struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	ParentL1ID string `json:"parent_l1_id,omitempty"`
	ParentL2ID string `json:"parent_l2_id,omitempty"`

	TestSteps      []string `json:"test_steps,omitempty"`
	ExpectedResult string   `json:"expected_result,omitempty"`
}

// AnsweredQuestion is one entry in the cross-level answer history.
type AnsweredQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Level    Level  `json:"level"`
	Context  string `json:"context,omitempty"`
}

// SessionState is the complete state of one generation session.
//
// # Description
//
// The state is a snapshot: the engine reads one, computes a successor, and
// the successor replaces the stored state atomically. Partial mutation is
// never persisted. Collections for deeper levels may contain entries from
// abandoned branches; those stay in place and are simply not part of the
// active path (see SelectedL1ID / SelectedL2ID).
//
// # Thread Safety
//
// Not safe for concurrent mutation. The engine's per-session guard ensures
// only one generating operation touches a session at a time.
type SessionState struct {
	SessionID  string `json:"session_id"`
	Title      string `json:"title,omitempty"`
	RootPrompt string `json:"root_prompt"`

	L1Questions []Question        `json:"l1_questions,omitempty"`
	L1Answers   map[string]string `json:"l1_answers,omitempty"`
	L1Cases     []TestCase        `json:"l1_cases,omitempty"`

	L2Questions []Question        `json:"l2_questions,omitempty"`
	L2Answers   map[string]string `json:"l2_answers,omitempty"`
	L2Cases     []TestCase        `json:"l2_cases,omitempty"`

	L3Questions []Question        `json:"l3_questions,omitempty"`
	L3Answers   map[string]string `json:"l3_answers,omitempty"`
	L3Cases     []TestCase        `json:"l3_cases,omitempty"`

	SelectedL1ID string `json:"selected_l1_id,omitempty"`
	SelectedL2ID string `json:"selected_l2_id,omitempty"`

	AnsweredHistory []AnsweredQuestion `json:"answered_history,omitempty"`
	GlobalSummary   string             `json:"global_summary,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Clone returns a deep copy of the state.
//
// The engine mutates only clones so that a failed operation leaves the
// stored snapshot untouched.
func (s *SessionState) Clone() *SessionState {
	out := *s
	out.L1Questions = append([]Question(nil), s.L1Questions...)
	out.L2Questions = append([]Question(nil), s.L2Questions...)
	out.L3Questions = append([]Question(nil), s.L3Questions...)
	out.L1Cases = append([]TestCase(nil), s.L1Cases...)
	out.L2Cases = append([]TestCase(nil), s.L2Cases...)
	out.L3Cases = append([]TestCase(nil), s.L3Cases...)
	out.AnsweredHistory = append([]AnsweredQuestion(nil), s.AnsweredHistory...)
	out.L1Answers = cloneAnswers(s.L1Answers)
	out.L2Answers = cloneAnswers(s.L2Answers)
	out.L3Answers = cloneAnswers(s.L3Answers)
	for i := range out.L1Cases {
		out.L1Cases[i].TestSteps = append([]string(nil), s.L1Cases[i].TestSteps...)
	}
	for i := range out.L2Cases {
		out.L2Cases[i].TestSteps = append([]string(nil), s.L2Cases[i].TestSteps...)
	}
	for i := range out.L3Cases {
		out.L3Cases[i].TestSteps = append([]string(nil), s.L3Cases[i].TestSteps...)
	}
	for i := range out.L1Questions {
		out.L1Questions[i].SuggestedAnswers = append([]string(nil), s.L1Questions[i].SuggestedAnswers...)
	}
	for i := range out.L2Questions {
		out.L2Questions[i].SuggestedAnswers = append([]string(nil), s.L2Questions[i].SuggestedAnswers...)
	}
	for i := range out.L3Questions {
		out.L3Questions[i].SuggestedAnswers = append([]string(nil), s.L3Questions[i].SuggestedAnswers...)
	}
	return &out
}

func cloneAnswers(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CaseByID finds a case by id across all three levels.
func (s *SessionState) CaseByID(id string) (TestCase, bool) {
	for _, cases := range [][]TestCase{s.L1Cases, s.L2Cases, s.L3Cases} {
		for _, tc := range cases {
			if tc.ID == id {
				return tc, true
			}
		}
	}
	return TestCase{}, false
}

// CaseLevel returns the level a case id belongs to.
func (s *SessionState) CaseLevel(id string) (Level, bool) {
	for _, tc := range s.L1Cases {
		if tc.ID == id {
			return LevelL1, true
		}
	}
	for _, tc := range s.L2Cases {
		if tc.ID == id {
			return LevelL2, true
		}
	}
	for _, tc := range s.L3Cases {
		if tc.ID == id {
			return LevelL3, true
		}
	}
	return "", false
}

// L2ChildrenOf returns the L2 cases whose parent is the given L1 id.
func (s *SessionState) L2ChildrenOf(l1ID string) []TestCase {
	var out []TestCase
	for _, tc := range s.L2Cases {
		if tc.ParentL1ID == l1ID {
			out = append(out, tc)
		}
	}
	return out
}

// L3ChildrenOf returns the L3 cases whose parent is the given L2 id.
func (s *SessionState) L3ChildrenOf(l2ID string) []TestCase {
	var out []TestCase
	for _, tc := range s.L3Cases {
		if tc.ParentL2ID == l2ID {
			out = append(out, tc)
		}
	}
	return out
}

// Questions returns the question list for a level.
func (s *SessionState) Questions(level Level) []Question {
	switch level {
	case LevelL1:
		return s.L1Questions
	case LevelL2:
		return s.L2Questions
	case LevelL3:
		return s.L3Questions
	}
	return nil
}

// Answers returns the answer map for a level.
func (s *SessionState) Answers(level Level) map[string]string {
	switch level {
	case LevelL1:
		return s.L1Answers
	case LevelL2:
		return s.L2Answers
	case LevelL3:
		return s.L3Answers
	}
	return nil
}

// Cases returns the case collection for a level.
func (s *SessionState) Cases(level Level) []TestCase {
	switch level {
	case LevelL1:
		return s.L1Cases
	case LevelL2:
		return s.L2Cases
	case LevelL3:
		return s.L3Cases
	}
	return nil
}
