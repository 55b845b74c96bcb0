// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagram generates and edits visual artifacts for fully
// expanded test case subtrees.
package diagram

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Renderer turns diagram markup into image bytes.
type Renderer interface {
	// Render returns PNG bytes for the given PlantUML source.
	Render(ctx context.Context, source string) ([]byte, error)
}

const (
	defaultPlantUMLJar = "/opt/plantuml/plantuml.jar"
	renderTimeout      = 30 * time.Second
)

// PlantUMLRenderer shells out to a local plantuml.jar.
type PlantUMLRenderer struct {
	jarPath string
}

var _ Renderer = (*PlantUMLRenderer)(nil)

// NewPlantUMLRenderer reads the jar location from PLANTUML_JAR_PATH.
func NewPlantUMLRenderer() *PlantUMLRenderer {
	jarPath := os.Getenv("PLANTUML_JAR_PATH")
	if jarPath == "" {
		jarPath = defaultPlantUMLJar
	}
	return &PlantUMLRenderer{jarPath: jarPath}
}

// Render implements Renderer.
//
// The source is written into a scratch directory so concurrent renders
// never collide on file names.
func (r *PlantUMLRenderer) Render(ctx context.Context, source string) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "caseforge-uml-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "diagram.puml")
	if err := os.WriteFile(srcPath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write diagram source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "java", "-jar", r.jarPath, "-tpng", srcPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("plantuml render failed: %w: %s", err, string(out))
	}

	png, err := os.ReadFile(filepath.Join(workDir, "diagram.png"))
	if err != nil {
		return nil, fmt.Errorf("plantuml produced no image: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("plantuml produced an empty image")
	}
	return png, nil
}
