// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"testing"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

func TestParseQuestions(t *testing.T) {
	t.Run("fenced mixed shapes", func(t *testing.T) {
		raw := "```json\n[\"Plain question?\", {\"question\":\"Pick one\",\"suggested_answers\":[\"a\",\"b\"]}]\n```"
		qs, err := parseQuestions(raw)
		if err != nil {
			t.Fatalf("parseQuestions() error = %v", err)
		}
		if len(qs) != 2 {
			t.Fatalf("got %d questions, want 2", len(qs))
		}
		if qs[0].Text != "Plain question?" || len(qs[1].SuggestedAnswers) != 2 {
			t.Errorf("unexpected questions: %+v", qs)
		}
	})

	t.Run("prose around the array", func(t *testing.T) {
		qs, err := parseQuestions("Sure, here are the questions:\n[]\nLet me know!")
		if err != nil {
			t.Fatalf("parseQuestions() error = %v", err)
		}
		if len(qs) != 0 {
			t.Errorf("got %d questions, want 0", len(qs))
		}
	})

	t.Run("no array at all", func(t *testing.T) {
		_, err := parseQuestions("I cannot help with that.")
		if !errors.Is(err, ErrGenerationFailure) {
			t.Errorf("error = %v, want ErrGenerationFailure", err)
		}
	})
}

func TestParseTestCases(t *testing.T) {
	t.Run("valid l1", func(t *testing.T) {
		raw := `[{"title":"Login","description":"auth path"},{"title":"Logout","description":""}]`
		cases, err := parseTestCases(raw, datatypes.LevelL1)
		if err != nil {
			t.Fatalf("parseTestCases() error = %v", err)
		}
		if len(cases) != 2 || cases[0].Title != "Login" {
			t.Errorf("unexpected cases: %+v", cases)
		}
	})

	t.Run("missing title fails the batch", func(t *testing.T) {
		raw := `[{"title":"ok","description":"d"},{"description":"no title"}]`
		_, err := parseTestCases(raw, datatypes.LevelL1)
		if !errors.Is(err, ErrGenerationFailure) {
			t.Errorf("error = %v, want ErrGenerationFailure", err)
		}
	})

	t.Run("l3 requires steps and expected result", func(t *testing.T) {
		raw := `[{"title":"t","description":"d","test_steps":[],"expected_result":"r"}]`
		if _, err := parseTestCases(raw, datatypes.LevelL3); !errors.Is(err, ErrGenerationFailure) {
			t.Errorf("empty steps: error = %v, want ErrGenerationFailure", err)
		}

		raw = `[{"title":"t","description":"d","test_steps":["s1"],"expected_result":""}]`
		if _, err := parseTestCases(raw, datatypes.LevelL3); !errors.Is(err, ErrGenerationFailure) {
			t.Errorf("empty result: error = %v, want ErrGenerationFailure", err)
		}

		raw = `[{"title":"t","description":"d","test_steps":["s1","s2"],"expected_result":"done"}]`
		cases, err := parseTestCases(raw, datatypes.LevelL3)
		if err != nil {
			t.Fatalf("valid l3 rejected: %v", err)
		}
		if len(cases[0].TestSteps) != 2 {
			t.Errorf("steps lost in parse: %+v", cases[0])
		}
	})

	t.Run("empty array is a failure", func(t *testing.T) {
		if _, err := parseTestCases("[]", datatypes.LevelL1); !errors.Is(err, ErrGenerationFailure) {
			t.Errorf("error = %v, want ErrGenerationFailure", err)
		}
	})
}

func TestNextCaseID(t *testing.T) {
	existing := []datatypes.TestCase{
		{ID: "L2_001"}, {ID: "L2_007"}, {ID: "L2_003"},
	}
	assign := nextCaseID(datatypes.LevelL2, existing)
	if got := assign(); got != "L2_008" {
		t.Errorf("first assigned id = %s, want L2_008", got)
	}
	if got := assign(); got != "L2_009" {
		t.Errorf("second assigned id = %s, want L2_009", got)
	}

	fresh := nextCaseID(datatypes.LevelL1, nil)
	if got := fresh(); got != "L1_001" {
		t.Errorf("fresh id = %s, want L1_001", got)
	}
}
