// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL        string
	authToken        string
	sessionTitle     string
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	diagramType      string
	diagramOutput    string

	rootCmd = &cobra.Command{
		Use:   "caseforge",
		Short: "A cli for generating hierarchical test cases from a business prompt",
		Long: `Caseforge turns a plain-language description of a feature into a
				three-level tree of test cases: scenarios, refinements, and
				concrete executable steps. It talks to a running caseforged server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Generate ---
	generateCmd = &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Start an interactive test case generation session",
		Run:   runGenerate, // Defined in cmd_generate.go
	}

	resumeCmd = &cobra.Command{
		Use:   "resume [session_id]",
		Short: "Resume an interactive session where it left off",
		Args:  cobra.ExactArgs(1),
		Run:   runResume, // Defined in cmd_generate.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage generation sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all generation sessions",
		Run:   runListSessions, // Defined in cmd_session.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a generation session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}
	treeCmd = &cobra.Command{
		Use:   "tree [session_id]",
		Short: "Print the test case tree of a session",
		Args:  cobra.ExactArgs(1),
		Run:   runTree, // Defined in cmd_session.go
	}

	// --- Diagrams ---
	diagramCmd = &cobra.Command{
		Use:   "diagram",
		Short: "Generate and fetch test case diagrams",
	}
	diagramGenerateCmd = &cobra.Command{
		Use:   "generate [session_id] [test_case_id]",
		Short: "Generate a diagram for a test case with a complete subtree",
		Args:  cobra.ExactArgs(2),
		Run:   runDiagramGenerate, // Defined in cmd_diagram.go
	}
	diagramGetCmd = &cobra.Command{
		Use:   "get [diagram_id]",
		Short: "Fetch a diagram and save its rendered image",
		Args:  cobra.ExactArgs(1),
		Run:   runDiagramGet, // Defined in cmd_diagram.go
	}
	diagramEditCmd = &cobra.Command{
		Use:   "edit [diagram_id] [edit_prompt]",
		Short: "Edit a diagram with a natural language instruction",
		Args:  cobra.ExactArgs(2),
		Run:   runDiagramEdit, // Defined in cmd_diagram.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(),
		"Base URL of the caseforged server")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CASEFORGE_TOKEN"),
		"Bearer token for authenticated servers")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&sessionTitle, "title", "", "Optional session title")
	rootCmd.AddCommand(resumeCmd)

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(listSessionsCmd)
	sessionCmd.AddCommand(deleteSessionCmd)
	rootCmd.AddCommand(treeCmd)

	rootCmd.AddCommand(diagramCmd)
	diagramCmd.AddCommand(diagramGenerateCmd)
	diagramGenerateCmd.Flags().StringVar(&diagramType, "type", "structural",
		"Diagram type: structural or activity")
	diagramGenerateCmd.Flags().StringVar(&diagramOutput, "output", "",
		"Write the rendered PNG to this path")
	diagramCmd.AddCommand(diagramGetCmd)
	diagramGetCmd.Flags().StringVar(&diagramOutput, "output", "",
		"Write the rendered PNG to this path")
	diagramCmd.AddCommand(diagramEditCmd)
}

func defaultServerURL() string {
	if url := os.Getenv("CASEFORGE_SERVER"); url != "" {
		return url
	}
	return DefaultServerURL
}

// client builds an API client from the global flags.
func client() *apiClient {
	return newAPIClient(serverURL, authToken)
}
