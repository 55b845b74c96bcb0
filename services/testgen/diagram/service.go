// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/services/llm"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/storage"
)

// Service generates and edits diagrams for test case subtrees.
//
// # Description
//
// Diagram content is synthesized from descendant test steps, so a case
// qualifies only once its subtree is fully expanded: an L1 case needs
// every child L2 case to carry at least one L3 case, an L2 case needs at
// least one L3 case. One diagram exists per (case, type) pair; the id is
// assigned on first generation and survives both regeneration and edits.
type Service struct {
	sessions storage.SessionStore
	diagrams storage.DiagramStore
	model    llm.LLMClient
	renderer Renderer
	now      func() int64
}

// NewService wires the diagram service. Panics on nil dependencies.
func NewService(sessions storage.SessionStore, diagrams storage.DiagramStore, model llm.LLMClient, renderer Renderer) *Service {
	if sessions == nil || diagrams == nil || model == nil || renderer == nil {
		panic("diagram service requires all dependencies")
	}
	return &Service{
		sessions: sessions,
		diagrams: diagrams,
		model:    model,
		renderer: renderer,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Generate produces (or regenerates) the diagram for a case.
func (s *Service) Generate(ctx context.Context, sessionID string, req datatypes.GenerateDiagramRequest) (*datatypes.Diagram, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	target, ok := state.CaseByID(req.TestCaseID)
	if !ok {
		return nil, fmt.Errorf("test case %s: %w", req.TestCaseID, storage.ErrNotFound)
	}
	if err := s.checkSubtreeComplete(state, target); err != nil {
		return nil, err
	}

	source, err := s.generateSource(ctx, diagramPrompt(state, target, req.DiagramType))
	if err != nil {
		return nil, err
	}
	png, err := s.renderer.Render(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrRenderFailure, err)
	}

	d := &datatypes.Diagram{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		TestCaseID:  req.TestCaseID,
		DiagramType: req.DiagramType,
		Title:       req.Title,
		Source:      source,
		ImagePNG:    png,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}

	// Regeneration keeps the existing identifier so held references
	// keep resolving to the latest version.
	if existing, err := s.diagrams.FindDiagramByCase(ctx, sessionID, req.TestCaseID, req.DiagramType); err == nil {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := s.diagrams.SaveDiagram(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Edit rewrites an existing diagram's source per the edit instruction,
// re-renders, and replaces it in place under the same id.
func (s *Service) Edit(ctx context.Context, diagramID, editPrompt string) (*datatypes.Diagram, error) {
	d, err := s.diagrams.LoadDiagram(ctx, diagramID)
	if err != nil {
		return nil, err
	}

	source, err := s.generateSource(ctx, editDiagramPrompt(d.Source, editPrompt, d.DiagramType))
	if err != nil {
		return nil, err
	}
	png, err := s.renderer.Render(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrRenderFailure, err)
	}

	d.Source = source
	d.ImagePNG = png
	d.UpdatedAt = s.now()
	if err := s.diagrams.SaveDiagram(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns a diagram by id.
func (s *Service) Get(ctx context.Context, diagramID string) (*datatypes.Diagram, error) {
	return s.diagrams.LoadDiagram(ctx, diagramID)
}

// checkSubtreeComplete enforces the generation precondition.
func (s *Service) checkSubtreeComplete(state *datatypes.SessionState, target datatypes.TestCase) error {
	level, _ := state.CaseLevel(target.ID)
	switch level {
	case datatypes.LevelL1:
		children := state.L2ChildrenOf(target.ID)
		if len(children) == 0 {
			return fmt.Errorf("%w: L1 case %s has no L2 cases yet", engine.ErrPreconditionNotMet, target.ID)
		}
		for _, l2 := range children {
			if len(state.L3ChildrenOf(l2.ID)) == 0 {
				return fmt.Errorf("%w: L2 case %s has no L3 cases yet", engine.ErrPreconditionNotMet, l2.ID)
			}
		}
	case datatypes.LevelL2:
		if len(state.L3ChildrenOf(target.ID)) == 0 {
			return fmt.Errorf("%w: L2 case %s has no L3 cases yet", engine.ErrPreconditionNotMet, target.ID)
		}
	default:
		return fmt.Errorf("%w: diagrams attach to L1 or L2 cases only", engine.ErrPreconditionNotMet)
	}
	return nil
}

// generateSource runs the model and extracts the PlantUML block.
func (s *Service) generateSource(ctx context.Context, prompt string) (string, error) {
	out, err := s.model.Generate(ctx, prompt, llm.GenerationParams{
		SystemPrompt: "You are a PlantUML expert. Return only valid PlantUML source.",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrGenerationFailure, err)
	}
	return extractPlantUML(out)
}

// extractPlantUML pulls the @startuml/@enduml block out of model output.
func extractPlantUML(raw string) (string, error) {
	start := strings.Index(raw, "@startuml")
	end := strings.LastIndex(raw, "@enduml")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: model output contains no PlantUML block", engine.ErrGenerationFailure)
	}
	return raw[start : end+len("@enduml")], nil
}

// =============================================================================
// Prompts
// =============================================================================

func diagramPrompt(state *datatypes.SessionState, target datatypes.TestCase, diagramType string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business requirement:\n%s\n\n", state.RootPrompt)
	fmt.Fprintf(&sb, "Test case: %s - %s\n\n", target.Title, target.Description)
	sb.WriteString("Descendant test cases and steps:\n")

	level, _ := state.CaseLevel(target.ID)
	writeL3 := func(l2ID string) {
		for _, l3 := range state.L3ChildrenOf(l2ID) {
			fmt.Fprintf(&sb, "  - %s (expect: %s)\n", l3.Title, l3.ExpectedResult)
			for i, step := range l3.TestSteps {
				fmt.Fprintf(&sb, "      %d. %s\n", i+1, step)
			}
		}
	}
	if level == datatypes.LevelL1 {
		for _, l2 := range state.L2ChildrenOf(target.ID) {
			fmt.Fprintf(&sb, "- %s: %s\n", l2.Title, l2.Description)
			writeL3(l2.ID)
		}
	} else {
		writeL3(target.ID)
	}

	kind := "component diagram showing the structures under test and their relationships"
	if diagramType == "activity" {
		kind = "activity diagram showing the flow of the test steps"
	}
	fmt.Fprintf(&sb, "\nProduce a PlantUML %s. Return only the PlantUML source between @startuml and @enduml.\n", kind)
	return sb.String()
}

func editDiagramPrompt(source, editPrompt, diagramType string) string {
	return fmt.Sprintf(`Here is an existing PlantUML %s diagram:

%s

Apply this change: %s

Return the full updated PlantUML source between @startuml and @enduml, nothing else.`, diagramType, source, editPrompt)
}
