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
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/ux"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// runGenerate handles `caseforge generate [prompt]`.
//
// Creates a session, runs the initial L1 generation, then drops into
// the interactive loop: answer clarification questions, browse the
// tree, and drill into cases until the user is done.
func runGenerate(cmd *cobra.Command, args []string) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		fail(fmt.Errorf("a business prompt is required, e.g.: caseforge generate \"checkout flow for a grocery app\""))
	}

	ctx := context.Background()
	api := client()

	state, err := api.createSession(ctx, prompt, sessionTitle)
	if err != nil {
		fail(err)
	}
	ux.Success(fmt.Sprintf("Created session %s", state.SessionID))

	if err := runStream(func() (io.ReadCloser, error) {
		return api.startStream(ctx, state.SessionID)
	}); err != nil {
		fail(err)
	}

	interactiveLoop(ctx, api, state.SessionID)
}

// runResume handles `caseforge resume [session_id]`.
func runResume(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	api := client()
	sessionID := args[0]

	state, _, err := api.getState(ctx, sessionID)
	if err != nil {
		fail(err)
	}

	// A session that was created but never started needs its initial
	// generation kicked off first.
	if len(state.L1Cases) == 0 && len(state.L1Questions) == 0 {
		if err := runStream(func() (io.ReadCloser, error) {
			return api.startStream(ctx, sessionID)
		}); err != nil {
			fail(err)
		}
	}

	interactiveLoop(ctx, api, sessionID)
}

// runStream opens a workflow stream and renders it to the terminal.
func runStream(open func() (io.ReadCloser, error)) error {
	body, err := open()
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	_, err = ux.NewStreamProcessor().Process(body)
	return err
}

// interactiveLoop drives the session until the user quits.
func interactiveLoop(ctx context.Context, api *apiClient, sessionID string) {
	for {
		state, stage, err := api.getState(ctx, sessionID)
		if err != nil {
			fail(err)
		}

		switch stage {
		case "awaiting_l1_questions":
			answerQuestions(ctx, api, sessionID, "l1", state.L1Questions)
		case "awaiting_l2_questions":
			answerQuestions(ctx, api, sessionID, "l2", state.L2Questions)
		case "awaiting_l3_questions":
			answerQuestions(ctx, api, sessionID, "l3", state.L3Questions)
		case "tree_view":
			if done := treeViewMenu(ctx, api, sessionID, state); done {
				return
			}
		default:
			fail(fmt.Errorf("unknown session stage %q", stage))
		}
	}
}

// answerQuestions collects answers for the pending questions and streams
// the resulting generation.
func answerQuestions(ctx context.Context, api *apiClient, sessionID, level string, questions []datatypes.Question) {
	if !ux.IsInteractive() {
		fail(fmt.Errorf("session has open clarification questions; rerun in an interactive terminal"))
	}

	ux.Title(fmt.Sprintf("A few questions before generating %s cases", strings.ToUpper(level)))

	clarifications := make([]ux.Clarification, 0, len(questions))
	for _, q := range questions {
		clarifications = append(clarifications, ux.Clarification{
			ID:        q.Text,
			Text:      q.Text,
			Suggested: q.SuggestedAnswers,
		})
	}

	answers, err := ux.AskClarifications(clarifications)
	if err != nil {
		fail(err)
	}

	if err := runStream(func() (io.ReadCloser, error) {
		return api.submitAnswersStream(ctx, sessionID, level, answers)
	}); err != nil {
		fail(err)
	}
}

// treeViewMenu shows the tree and the available next actions. Returns
// true when the user is done.
func treeViewMenu(ctx context.Context, api *apiClient, sessionID string, state *datatypes.SessionState) bool {
	tree, err := api.getTree(ctx, sessionID)
	if err != nil {
		fail(err)
	}
	fmt.Println()
	printTree(tree)
	fmt.Println()

	if !ux.IsInteractive() {
		return true
	}

	options := []string{}
	actions := []string{}
	if len(state.L1Cases) > 0 {
		options = append(options, "Expand a scenario into mid-level cases")
		actions = append(actions, "l1")
	}
	if len(state.L2Cases) > 0 {
		options = append(options, "Expand a mid-level case into executable steps")
		actions = append(actions, "l2")
	}
	options = append(options, "Done")
	actions = append(actions, "done")

	choice, err := ux.SelectOption("What next?", options)
	if err != nil {
		fail(err)
	}

	switch actions[choice] {
	case "l1":
		expandCase(ctx, api, sessionID, "l1", state.L1Cases)
	case "l2":
		expandCase(ctx, api, sessionID, "l2", state.L2Cases)
	default:
		ux.Success(fmt.Sprintf("Session %s saved. Resume anytime with: caseforge resume %s", sessionID, sessionID))
		return true
	}
	return false
}

// expandCase asks which case to drill into and streams the expansion.
func expandCase(ctx context.Context, api *apiClient, sessionID, level string, cases []datatypes.TestCase) {
	titles := make([]string, 0, len(cases))
	for _, tc := range cases {
		titles = append(titles, fmt.Sprintf("[%s] %s", tc.ID, tc.Title))
	}

	index, err := ux.SelectOption("Which case?", titles)
	if err != nil {
		fail(err)
	}

	if err := runStream(func() (io.ReadCloser, error) {
		return api.selectCaseStream(ctx, sessionID, level, index)
	}); err != nil {
		fail(err)
	}
}
