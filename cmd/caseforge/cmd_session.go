// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/ux"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// fail prints the error and exits.
func fail(err error) {
	ux.Error(err.Error())
	os.Exit(1)
}

// runListSessions handles `caseforge session list`.
func runListSessions(cmd *cobra.Command, args []string) {
	sessions, err := client().listSessions(context.Background())
	if err != nil {
		fail(err)
	}

	if len(sessions) == 0 {
		ux.Muted("No sessions yet. Start one with: caseforge generate \"...\"")
		return
	}

	ux.Title("Sessions")
	for _, s := range sessions {
		id, _ := s["session_id"].(string)
		title, _ := s["title"].(string)
		stage, _ := s["stage"].(string)
		prompt, _ := s["root_prompt"].(string)

		label := title
		if label == "" {
			label = truncate(prompt, 60)
		}
		fmt.Printf("%s %s  %s %s\n",
			ux.IconBullet.Render(),
			ux.Styles.Bold.Render(id),
			label,
			ux.Styles.Muted.Render("["+stage+"]"),
		)
	}
}

// runDeleteSession handles `caseforge session delete`.
func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]

	if ux.IsInteractive() {
		ok, err := ux.Confirm(fmt.Sprintf("Delete session %s and all its cases?", sessionID))
		if err != nil {
			fail(err)
		}
		if !ok {
			ux.Muted("Aborted.")
			return
		}
	}

	if err := client().deleteSession(context.Background(), sessionID); err != nil {
		fail(err)
	}
	ux.Success(fmt.Sprintf("Deleted session %s", sessionID))
}

// runTree handles `caseforge tree`.
func runTree(cmd *cobra.Command, args []string) {
	tree, err := client().getTree(context.Background(), args[0])
	if err != nil {
		fail(err)
	}
	printTree(tree)
}

// printTree renders the session tree with box-drawing connectors.
func printTree(tree *datatypes.SessionTree) {
	title := tree.Title
	if title == "" {
		title = truncate(tree.RootPrompt, 72)
	}
	ux.Title(title)
	if tree.Summary != "" {
		ux.Muted(tree.Summary)
	}

	for i, root := range tree.Roots {
		printTreeNode(root, "", i == len(tree.Roots)-1)
	}
}

func printTreeNode(node datatypes.TreeNode, prefix string, last bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}

	label := fmt.Sprintf("[%s] %s", node.ID, node.Title)
	style := ux.Styles.TreeLeaf
	if node.Selected {
		style = ux.Styles.TreeActive
	}
	fmt.Printf("%s%s\n", ux.Styles.TreeBranch.Render(prefix+connector), style.Render(label))

	// Executable detail lives on the leaves.
	if len(node.TestSteps) > 0 {
		for _, step := range node.TestSteps {
			fmt.Printf("%s%s\n", childPrefix, ux.Styles.Muted.Render("· "+step))
		}
		if node.ExpectedResult != "" {
			fmt.Printf("%s%s\n", childPrefix, ux.Styles.Muted.Render("⇒ "+node.ExpectedResult))
		}
	}

	for i, child := range node.Children {
		printTreeNode(child, childPrefix, i == len(node.Children)-1)
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
