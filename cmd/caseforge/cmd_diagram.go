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

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/ux"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
)

// runDiagramGenerate handles `caseforge diagram generate`.
func runDiagramGenerate(cmd *cobra.Command, args []string) {
	sessionID, testCaseID := args[0], args[1]

	var diagram *datatypes.Diagram
	err := ux.WithSpinner("Generating diagram", func() error {
		var genErr error
		diagram, genErr = client().generateDiagram(context.Background(), sessionID, testCaseID, diagramType, "")
		return genErr
	})
	if err != nil {
		fail(err)
	}

	ux.Success(fmt.Sprintf("Generated %s diagram %s for case %s", diagram.DiagramType, diagram.ID, diagram.TestCaseID))
	writeDiagram(diagram)
}

// runDiagramGet handles `caseforge diagram get`.
func runDiagramGet(cmd *cobra.Command, args []string) {
	diagram, err := client().getDiagram(context.Background(), args[0])
	if err != nil {
		fail(err)
	}
	writeDiagram(diagram)
}

// runDiagramEdit handles `caseforge diagram edit`.
func runDiagramEdit(cmd *cobra.Command, args []string) {
	diagramID, editPrompt := args[0], args[1]

	var diagram *datatypes.Diagram
	err := ux.WithSpinner("Applying edit", func() error {
		var editErr error
		diagram, editErr = client().editDiagram(context.Background(), diagramID, editPrompt)
		return editErr
	})
	if err != nil {
		fail(err)
	}

	ux.Success(fmt.Sprintf("Updated diagram %s", diagram.ID))
	fmt.Println(diagram.Source)
}

// writeDiagram saves the PNG when --output is set, otherwise prints the
// PlantUML source.
func writeDiagram(diagram *datatypes.Diagram) {
	if diagramOutput == "" {
		fmt.Println(diagram.Source)
		return
	}

	if len(diagram.ImagePNG) == 0 {
		ux.Warning("Diagram has no rendered image; writing nothing")
		return
	}
	if err := os.WriteFile(diagramOutput, diagram.ImagePNG, 0o644); err != nil {
		fail(fmt.Errorf("write image: %w", err))
	}
	ux.Success(fmt.Sprintf("Wrote %s (%d bytes)", diagramOutput, len(diagram.ImagePNG)))
}
