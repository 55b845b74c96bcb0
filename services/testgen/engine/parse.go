// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// extractJSONArray pulls the first JSON array out of raw model output.
//
// Models wrap payloads in markdown fences or prose despite instructions;
// everything outside the outermost brackets is discarded.
func extractJSONArray(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array found in model output")
	}
	return text[start : end+1], nil
}

// parseQuestions parses model output into clarification questions.
//
// Each element may be a bare string or an object with question text and
// suggested answers; the Question type resolves the two shapes. An empty
// array is valid and means no clarification is needed.
func parseQuestions(raw string) ([]datatypes.Question, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: questions: %s", ErrGenerationFailure, err)
	}

	var questions []datatypes.Question
	if err := json.Unmarshal([]byte(body), &questions); err != nil {
		return nil, fmt.Errorf("%w: questions: %s", ErrGenerationFailure, err)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("%w: question %d has empty text", ErrGenerationFailure, i)
		}
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return questions, nil
}

// rawCase mirrors the shape the prompts request from the model. Ids and
// parent references the model invents are ignored; the engine assigns
// both at merge time.
type rawCase struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	TestSteps      []string `json:"test_steps"`
	ExpectedResult string   `json:"expected_result"`
}

// parseTestCases parses model output into cases for one level.
//
// Required fields: title always; test_steps and expected_result at L3.
// Any missing required field fails the whole batch so that merges stay
// all-or-nothing.
func parseTestCases(raw string, level datatypes.Level) ([]datatypes.TestCase, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s cases: %s", ErrGenerationFailure, level, err)
	}

	var rawCases []rawCase
	if err := json.Unmarshal([]byte(body), &rawCases); err != nil {
		return nil, fmt.Errorf("%w: %s cases: %s", ErrGenerationFailure, level, err)
	}
	if len(rawCases) == 0 {
		return nil, fmt.Errorf("%w: model returned zero %s cases", ErrGenerationFailure, level)
	}

	cases := make([]datatypes.TestCase, 0, len(rawCases))
	for i, rc := range rawCases {
		if strings.TrimSpace(rc.Title) == "" {
			return nil, fmt.Errorf("%w: %s case %d is missing a title", ErrGenerationFailure, level, i)
		}
		tc := datatypes.TestCase{
			Title:       strings.TrimSpace(rc.Title),
			Description: strings.TrimSpace(rc.Description),
		}
		if level == datatypes.LevelL3 {
			if len(rc.TestSteps) == 0 {
				return nil, fmt.Errorf("%w: l3 case %d has no test steps", ErrGenerationFailure, i)
			}
			if strings.TrimSpace(rc.ExpectedResult) == "" {
				return nil, fmt.Errorf("%w: l3 case %d has no expected result", ErrGenerationFailure, i)
			}
			tc.TestSteps = rc.TestSteps
			tc.ExpectedResult = strings.TrimSpace(rc.ExpectedResult)
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// nextCaseID assigns the next sequential id for a level, scanning the
// existing collection so retained dead branches never cause collisions.
func nextCaseID(level datatypes.Level, existing []datatypes.TestCase) func() string {
	prefix := strings.ToUpper(string(level)) + "_"
	max := 0
	for _, tc := range existing {
		var n int
		if _, err := fmt.Sscanf(tc.ID, prefix+"%03d", &n); err == nil && n > max {
			max = n
		}
	}
	return func() string {
		max++
		return fmt.Sprintf("%s%03d", prefix, max)
	}
}
