// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// TreeNode is one node of the aggregated L1/L2/L3 projection.
type TreeNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       Level  `json:"level"`

	TestSteps      []string `json:"test_steps,omitempty"`
	ExpectedResult string   `json:"expected_result,omitempty"`

	Selected bool       `json:"selected,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// SessionTree is the full-tree projection returned by the tree endpoint.
type SessionTree struct {
	SessionID  string     `json:"session_id"`
	Title      string     `json:"title,omitempty"`
	RootPrompt string     `json:"root_prompt"`
	Summary    string     `json:"summary,omitempty"`
	Roots      []TreeNode `json:"roots"`
}

// BuildTree derives the aggregated hierarchy from the flat per-level
// collections. Abandoned branches appear with their generated children;
// the active path is marked via the Selected flag.
func (s *SessionState) BuildTree() SessionTree {
	tree := SessionTree{
		SessionID:  s.SessionID,
		Title:      s.Title,
		RootPrompt: s.RootPrompt,
		Summary:    s.GlobalSummary,
		Roots:      []TreeNode{},
	}

	for _, l1 := range s.L1Cases {
		l1Node := TreeNode{
			ID:          l1.ID,
			Title:       l1.Title,
			Description: l1.Description,
			Level:       LevelL1,
			Selected:    l1.ID == s.SelectedL1ID,
		}
		for _, l2 := range s.L2ChildrenOf(l1.ID) {
			l2Node := TreeNode{
				ID:          l2.ID,
				Title:       l2.Title,
				Description: l2.Description,
				Level:       LevelL2,
				Selected:    l2.ID == s.SelectedL2ID,
			}
			for _, l3 := range s.L3ChildrenOf(l2.ID) {
				l2Node.Children = append(l2Node.Children, TreeNode{
					ID:             l3.ID,
					Title:          l3.Title,
					Description:    l3.Description,
					Level:          LevelL3,
					TestSteps:      l3.TestSteps,
					ExpectedResult: l3.ExpectedResult,
				})
			}
			l1Node.Children = append(l1Node.Children, l2Node)
		}
		tree.Roots = append(tree.Roots, l1Node)
	}
	return tree
}
