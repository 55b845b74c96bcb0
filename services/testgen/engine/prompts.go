// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// promptContext assembles the shared preamble every generation prompt
// starts from: the immutable root prompt, the rolling summary, and the
// answered clarification history.
func promptContext(s *datatypes.SessionState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business requirement:\n%s\n", s.RootPrompt)
	if s.GlobalSummary != "" {
		fmt.Fprintf(&sb, "\nContext gathered so far:\n%s\n", s.GlobalSummary)
	}
	if len(s.AnsweredHistory) > 0 {
		sb.WriteString("\nClarifications provided by the user:\n")
		for _, aq := range s.AnsweredHistory {
			fmt.Fprintf(&sb, "- Q (%s): %s\n  A: %s\n", aq.Level, aq.Question, aq.Answer)
		}
	}
	return sb.String()
}

func questionsPrompt(s *datatypes.SessionState, level datatypes.Level) string {
	var focus string
	switch level {
	case datatypes.LevelL1:
		focus = "high-level test scenarios for the requirement"
	case datatypes.LevelL2:
		parent, _ := s.CaseByID(s.SelectedL1ID)
		focus = fmt.Sprintf("mid-level test cases refining the scenario %q (%s)", parent.Title, parent.Description)
	case datatypes.LevelL3:
		parent, _ := s.CaseByID(s.SelectedL2ID)
		focus = fmt.Sprintf("detailed executable test cases for %q (%s)", parent.Title, parent.Description)
	}

	return fmt.Sprintf(`%s
You are about to produce %s.
List the clarification questions you need answered first, if any.

Return a JSON array. Each element is an object:
  {"question": "<text>", "suggested_answers": ["<option>", ...]}
suggested_answers may be empty. Return [] if no clarification is needed.
Ask at most 4 questions. Return only the JSON array.`, promptContext(s), focus)
}

func casesPrompt(s *datatypes.SessionState, level datatypes.Level) string {
	ctx := promptContext(s)

	switch level {
	case datatypes.LevelL1:
		return fmt.Sprintf(`%s
Produce 3 to 6 high-level test scenarios (L1) covering the requirement.

Return a JSON array of objects:
  {"title": "<short name>", "description": "<what the scenario verifies>"}
Return only the JSON array.`, ctx)

	case datatypes.LevelL2:
		parent, _ := s.CaseByID(s.SelectedL1ID)
		return fmt.Sprintf(`%s
Selected scenario: %q - %s

Produce 3 to 6 mid-level test cases (L2) that decompose this scenario.

Return a JSON array of objects:
  {"title": "<short name>", "description": "<what the case verifies>"}
Return only the JSON array.`, ctx, parent.Title, parent.Description)

	default:
		parent, _ := s.CaseByID(s.SelectedL2ID)
		return fmt.Sprintf(`%s
Selected test case: %q - %s

Produce 2 to 5 concrete executable test cases (L3) for it. Each needs
ordered steps a tester can follow verbatim and one expected result.

Return a JSON array of objects:
  {"title": "<short name>", "description": "<purpose>",
   "test_steps": ["<step 1>", "<step 2>", ...],
   "expected_result": "<observable outcome>"}
Return only the JSON array.`, ctx, parent.Title, parent.Description)
	}
}

func titlePrompt(rootPrompt string) string {
	return fmt.Sprintf(`Summarize the following test requirement as a session title of at most 8 words. Return only the title text, no quotes.

%s`, rootPrompt)
}

func summaryPrompt(s *datatypes.SessionState) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following requirement and clarifications in 2-3 sentences. The summary seeds later generation steps, so keep every constraint the user stated. Return only the summary text.\n\n")
	fmt.Fprintf(&sb, "Requirement: %s\n", s.RootPrompt)
	for _, aq := range s.AnsweredHistory {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", aq.Question, aq.Answer)
	}
	return sb.String()
}
