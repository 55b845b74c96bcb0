// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MaxPromptBytes bounds user-supplied prompt text. Large prompts blow up
// model context windows long before they hit transport limits.
const MaxPromptBytes = 32 * 1024

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("failed to register maxbytes validator: %v", err))
	}
	if err := validate.RegisterValidation("caselevel", validateCaseLevel); err != nil {
		panic(fmt.Sprintf("failed to register caselevel validator: %v", err))
	}
}

// validateMaxBytes checks byte length, not rune count. Multi-byte content
// must not bypass storage limits.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPromptBytes
}

func validateCaseLevel(fl validator.FieldLevel) bool {
	return Level(fl.Field().String()).Valid()
}

// CreateSessionRequest opens a new generation session.
type CreateSessionRequest struct {
	UserPrompt string `json:"user_prompt" validate:"required,min=1,maxbytes"`
	Title      string `json:"title" validate:"omitempty,max=200"`
}

// Validate checks the request against its constraints.
func (r *CreateSessionRequest) Validate() error {
	return validate.Struct(r)
}

// SubmitAnswersRequest records clarification answers for one level and
// triggers case generation for that level.
//
// Answers are keyed by the exact question text. Empty values are allowed;
// the question still counts as asked.
type SubmitAnswersRequest struct {
	Level   string            `json:"level" validate:"required,caselevel"`
	Answers map[string]string `json:"answers" validate:"omitempty,dive,keys,required,endkeys,maxbytes"`
}

// Validate checks the request against its constraints.
func (r *SubmitAnswersRequest) Validate() error {
	return validate.Struct(r)
}

// SelectCaseRequest chooses a case for drill-down by positional index.
type SelectCaseRequest struct {
	Level string `json:"level" validate:"required,oneof=l1 l2"`
	Index int    `json:"index" validate:"min=0"`
}

// Validate checks the request against its constraints.
func (r *SelectCaseRequest) Validate() error {
	return validate.Struct(r)
}

// GenerateDiagramRequest asks for a diagram of one test case's subtree.
type GenerateDiagramRequest struct {
	TestCaseID  string `json:"test_case_id" validate:"required,min=1,max=64"`
	DiagramType string `json:"diagram_type" validate:"required,oneof=structural activity"`
	Title       string `json:"title" validate:"omitempty,max=200"`
}

// Validate checks the request against its constraints.
func (r *GenerateDiagramRequest) Validate() error {
	return validate.Struct(r)
}

// EditDiagramRequest applies a natural language edit to an existing diagram.
type EditDiagramRequest struct {
	EditPrompt string `json:"edit_prompt" validate:"required,min=1,maxbytes"`
}

// Validate checks the request against its constraints.
func (r *EditDiagramRequest) Validate() error {
	return validate.Struct(r)
}
