// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Clarification is one question posed back to the user during case
// generation, with optional suggested answers.
type Clarification struct {
	ID        string
	Text      string
	Suggested []string
}

// AskClarifications prompts the user for answers to the given questions.
//
// Every question gets an entry in the returned map, keyed by question
// ID. A question left blank maps to the empty string, which the server
// treats as explicitly skipped.
func AskClarifications(questions []Clarification) (map[string]string, error) {
	answers := make(map[string]string, len(questions))
	if len(questions) == 0 {
		return answers, nil
	}

	values := make([]string, len(questions))
	fields := make([]huh.Field, 0, len(questions))
	for i, q := range questions {
		input := huh.NewInput().
			Title(q.Text).
			Value(&values[i])
		if len(q.Suggested) > 0 {
			input = input.
				Suggestions(q.Suggested).
				Description("Tab completes a suggested answer; leave blank to skip.")
		} else {
			input = input.Description("Leave blank to skip.")
		}
		fields = append(fields, input)
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("answer form: %w", err)
	}

	for i, q := range questions {
		answers[q.ID] = values[i]
	}
	return answers, nil
}

// SelectOption presents a single-choice picker and returns the selected
// index.
func SelectOption(title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no options to select from")
	}

	opts := make([]huh.Option[int], 0, len(options))
	for i, o := range options {
		opts = append(opts, huh.NewOption(o, i))
	}

	var selected int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title(title).
			Options(opts...).
			Value(&selected),
	))
	if err := form.Run(); err != nil {
		return 0, fmt.Errorf("selection form: %w", err)
	}
	return selected, nil
}

// Confirm asks a yes/no question.
func Confirm(title string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirm form: %w", err)
	}
	return confirmed, nil
}
