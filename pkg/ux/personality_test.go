// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"MACHINE", PersonalityMachine},
		{"nonsense", PersonalityStandard},
		{"", PersonalityStandard},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePersonalityLevel(tt.input))
		})
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	original := GetPersonality()
	t.Cleanup(func() { SetPersonality(original) })

	SetPersonalityLevel(PersonalityMachine)
	assert.Equal(t, PersonalityMachine, GetPersonality().Level)

	SetPersonalityLevel(PersonalityFull)
	assert.Equal(t, PersonalityFull, GetPersonality().Level)
}

func TestInitPersonalityHonorsEnvironment(t *testing.T) {
	original := GetPersonality()
	t.Cleanup(func() { SetPersonality(original) })

	t.Setenv("CASEFORGE_PERSONALITY", "minimal")
	InitPersonality()
	assert.Equal(t, PersonalityMinimal, GetPersonality().Level)
}

func TestIconRender(t *testing.T) {
	// Styled or not, the glyph must survive rendering.
	assert.Contains(t, IconSuccess.Render(), string(IconSuccess))
	assert.Contains(t, IconError.Render(), string(IconError))
	assert.Contains(t, IconArrow.Render(), string(IconArrow))
}
