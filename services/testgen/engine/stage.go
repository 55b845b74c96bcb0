// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "github.com/caseforge/caseforge/services/testgen/datatypes"

// Stage is the next user-facing action a session requires.
type Stage string

const (
	// StageAwaitingL1Questions means L1 clarification questions are open.
	StageAwaitingL1Questions Stage = "awaiting_l1_questions"
	// StageAwaitingL2Questions means L2 clarification questions are open.
	StageAwaitingL2Questions Stage = "awaiting_l2_questions"
	// StageAwaitingL3Questions means L3 clarification questions are open.
	StageAwaitingL3Questions Stage = "awaiting_l3_questions"
	// StageTreeView means no questions are pending; the user browses the
	// tree and selects cases to drill into.
	StageTreeView Stage = "tree_view"
)

// ResolveStage maps a session snapshot to its stage.
//
// Pure function of the snapshot; rules are evaluated in order and the
// first match wins. L1 keys on the case collection because answering L1
// questions immediately produces L1 cases; deeper levels key on their
// answer maps, which become non-empty (skipped questions included) the
// moment answers are submitted.
func ResolveStage(s *datatypes.SessionState) Stage {
	switch {
	case len(s.L1Questions) > 0 && len(s.L1Cases) == 0:
		return StageAwaitingL1Questions
	case len(s.L2Questions) > 0 && len(s.L2Answers) == 0:
		return StageAwaitingL2Questions
	case len(s.L3Questions) > 0 && len(s.L3Answers) == 0:
		return StageAwaitingL3Questions
	default:
		return StageTreeView
	}
}

// stageForLevel returns the awaiting stage that must be active for
// answers at the given level to be legal.
func stageForLevel(level datatypes.Level) Stage {
	switch level {
	case datatypes.LevelL1:
		return StageAwaitingL1Questions
	case datatypes.LevelL2:
		return StageAwaitingL2Questions
	default:
		return StageAwaitingL3Questions
	}
}
