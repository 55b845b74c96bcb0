// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"testing"
)

func TestQuestionUnmarshal(t *testing.T) {
	t.Run("bare string", func(t *testing.T) {
		var q Question
		if err := json.Unmarshal([]byte(`"What browsers must be supported?"`), &q); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if q.Text != "What browsers must be supported?" {
			t.Errorf("Text = %q", q.Text)
		}
		if q.SuggestedAnswers != nil {
			t.Errorf("expected no suggested answers, got %v", q.SuggestedAnswers)
		}
	})

	t.Run("object with suggestions", func(t *testing.T) {
		data := `{"question":"Which auth method?","suggested_answers":["OAuth2","SAML"]}`
		var q Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if q.Text != "Which auth method?" {
			t.Errorf("Text = %q", q.Text)
		}
		if len(q.SuggestedAnswers) != 2 || q.SuggestedAnswers[0] != "OAuth2" {
			t.Errorf("SuggestedAnswers = %v", q.SuggestedAnswers)
		}
	})

	t.Run("object without question field", func(t *testing.T) {
		var q Question
		if err := json.Unmarshal([]byte(`{"suggested_answers":["a"]}`), &q); err == nil {
			t.Fatal("expected error for missing question field")
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		var q Question
		if err := json.Unmarshal([]byte(`42`), &q); err == nil {
			t.Fatal("expected error for numeric question")
		}
	})
}

func TestSessionStateClone(t *testing.T) {
	orig := &SessionState{
		SessionID:   "s1",
		RootPrompt:  "checkout flow",
		L1Questions: []Question{{Text: "q1", SuggestedAnswers: []string{"a"}}},
		L1Answers:   map[string]string{"q1": "yes"},
		L1Cases:     []TestCase{{ID: "L1_001", Title: "login"}},
		L3Cases:     []TestCase{{ID: "L3_001", ParentL2ID: "L2_001", TestSteps: []string{"step"}}},
	}

	clone := orig.Clone()
	clone.L1Answers["q1"] = "no"
	clone.L1Cases[0].Title = "changed"
	clone.L1Questions[0].SuggestedAnswers[0] = "b"
	clone.L3Cases[0].TestSteps[0] = "other"

	if orig.L1Answers["q1"] != "yes" {
		t.Error("clone shares answer map with original")
	}
	if orig.L1Cases[0].Title != "login" {
		t.Error("clone shares case slice with original")
	}
	if orig.L1Questions[0].SuggestedAnswers[0] != "a" {
		t.Error("clone shares suggested answers with original")
	}
	if orig.L3Cases[0].TestSteps[0] != "step" {
		t.Error("clone shares test steps with original")
	}
}

func TestCaseLookups(t *testing.T) {
	s := &SessionState{
		L1Cases: []TestCase{{ID: "L1_001"}, {ID: "L1_002"}},
		L2Cases: []TestCase{
			{ID: "L2_001", ParentL1ID: "L1_001"},
			{ID: "L2_002", ParentL1ID: "L1_001"},
			{ID: "L2_003", ParentL1ID: "L1_002"},
		},
		L3Cases: []TestCase{{ID: "L3_001", ParentL2ID: "L2_002"}},
	}

	if lvl, ok := s.CaseLevel("L2_003"); !ok || lvl != LevelL2 {
		t.Errorf("CaseLevel(L2_003) = %v, %v", lvl, ok)
	}
	if _, ok := s.CaseByID("missing"); ok {
		t.Error("CaseByID returned a hit for a missing id")
	}
	if got := len(s.L2ChildrenOf("L1_001")); got != 2 {
		t.Errorf("L2ChildrenOf(L1_001) = %d children, want 2", got)
	}
	if got := len(s.L3ChildrenOf("L2_001")); got != 0 {
		t.Errorf("L3ChildrenOf(L2_001) = %d children, want 0", got)
	}
}

func TestBuildTree(t *testing.T) {
	s := &SessionState{
		SessionID:    "s1",
		RootPrompt:   "inventory sync",
		SelectedL1ID: "L1_002",
		L1Cases:      []TestCase{{ID: "L1_001", Title: "import"}, {ID: "L1_002", Title: "export"}},
		L2Cases: []TestCase{
			{ID: "L2_001", ParentL1ID: "L1_002", Title: "csv export"},
		},
		L3Cases: []TestCase{
			{ID: "L3_001", ParentL2ID: "L2_001", TestSteps: []string{"open", "export"}, ExpectedResult: "file saved"},
		},
	}

	tree := s.BuildTree()
	if len(tree.Roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(tree.Roots))
	}
	if tree.Roots[0].Selected || !tree.Roots[1].Selected {
		t.Error("selection flag not projected onto the active L1 branch")
	}
	if len(tree.Roots[0].Children) != 0 {
		t.Error("abandoned branch grew children it never generated")
	}

	l2 := tree.Roots[1].Children
	if len(l2) != 1 || l2[0].ID != "L2_001" {
		t.Fatalf("unexpected L2 children: %+v", l2)
	}
	l3 := l2[0].Children
	if len(l3) != 1 || l3[0].ExpectedResult != "file saved" {
		t.Fatalf("unexpected L3 children: %+v", l3)
	}
}
