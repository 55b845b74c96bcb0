// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/caseforge/caseforge/services/llm"
	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/storage"
)

// systemPrompt keeps every generation machine-parseable.
const systemPrompt = "You are a test case generation assistant. Always respond with valid JSON and nothing else."

// maxTitleLen bounds the fallback title cut from the root prompt.
const maxTitleLen = 60

// Orchestrator drives the generation workflow.
//
// # Description
//
// Each operation loads the last committed session snapshot, applies the
// transition on a clone, and saves the clone back only if every model
// call and parse step succeeded. A failed operation leaves the stored
// state byte-for-byte unchanged. Operations that call the model hold the
// per-session guard for their full duration; GetState never takes it.
//
// # Thread Safety
//
// Safe for concurrent use across sessions and within one session (the
// guard serializes generating operations; contenders fail fast).
type Orchestrator struct {
	store storage.SessionStore
	model llm.LLMClient
	guard *Guard
	now   func() int64
}

// NewOrchestrator wires the orchestrator to its collaborators.
// Panics on nil dependencies; there is no meaningful degraded mode.
func NewOrchestrator(store storage.SessionStore, model llm.LLMClient) *Orchestrator {
	if store == nil {
		panic("orchestrator requires a session store")
	}
	if model == nil {
		panic("orchestrator requires a model client")
	}
	return &Orchestrator{
		store: store,
		model: model,
		guard: NewGuard(),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// tokenSink receives each incremental completion chunk.
type tokenSink func(delta string) error

// =============================================================================
// Session lifecycle
// =============================================================================

// CreateSession stores a new empty session for the prompt.
func (o *Orchestrator) CreateSession(ctx context.Context, userPrompt, title string) (*datatypes.SessionState, error) {
	state := &datatypes.SessionState{
		SessionID:  uuid.New().String(),
		Title:      title,
		RootPrompt: userPrompt,
		CreatedAt:  o.now(),
		UpdatedAt:  o.now(),
	}
	if err := o.store.Create(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ListSessions returns all stored sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*datatypes.SessionState, error) {
	return o.store.List(ctx)
}

// DeleteSession removes a session and drops its guard entry.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	if err := o.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	o.guard.Forget(sessionID)
	return nil
}

// GetState returns the last committed snapshot. It never takes the
// guard, so it can run alongside an in-flight generation and observes
// only fully merged states.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (*datatypes.SessionState, error) {
	return o.store.Load(ctx, sessionID)
}

// =============================================================================
// Workflow operations
// =============================================================================

// Start issues the initial generation for a session: L1 clarification
// questions and, when none are needed, the L1 case collection directly.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) (*datatypes.SessionState, error) {
	return o.run(ctx, sessionID, "start", nil, o.applyStart)
}

// StartStream is Start with frame delivery through the relay contract.
func (o *Orchestrator) StartStream(ctx context.Context, sessionID string, sink FrameSink) error {
	return o.runStream(ctx, sessionID, "start", sink, o.applyStart)
}

// SubmitAnswers records one level's clarification answers and generates
// that level's case collection.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, sessionID string, level datatypes.Level, answers map[string]string) (*datatypes.SessionState, error) {
	return o.run(ctx, sessionID, "submit_answers", nil, o.applySubmitAnswers(level, answers))
}

// SubmitAnswersStream is SubmitAnswers with frame delivery.
func (o *Orchestrator) SubmitAnswersStream(ctx context.Context, sessionID string, level datatypes.Level, answers map[string]string, sink FrameSink) error {
	return o.runStream(ctx, sessionID, "submit_answers", sink, o.applySubmitAnswers(level, answers))
}

// SelectCase picks a case for drill-down and generates the next level's
// clarification questions (and cases, when no questions apply).
func (o *Orchestrator) SelectCase(ctx context.Context, sessionID string, level datatypes.Level, index int) (*datatypes.SessionState, error) {
	return o.run(ctx, sessionID, "select_case", nil, o.applySelectCase(level, index))
}

// SelectCaseStream is SelectCase with frame delivery.
func (o *Orchestrator) SelectCaseStream(ctx context.Context, sessionID string, level datatypes.Level, index int, sink FrameSink) error {
	return o.runStream(ctx, sessionID, "select_case", sink, o.applySelectCase(level, index))
}

// =============================================================================
// Operation plumbing
// =============================================================================

// applyFn mutates a cloned snapshot. Returning changed=false signals an
// idempotent no-op; the stored state is returned as-is without a save.
type applyFn func(ctx context.Context, st *datatypes.SessionState, emit tokenSink) (changed bool, err error)

func (o *Orchestrator) run(ctx context.Context, sessionID, op string, emit tokenSink, apply applyFn) (*datatypes.SessionState, error) {
	tracer := otel.Tracer("caseforge.testgen.engine")
	ctx, span := tracer.Start(ctx, "engine."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("streaming", emit != nil),
	)

	release, err := o.guard.TryAcquire(sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer release()

	stored, err := o.store.Load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	next := stored.Clone()
	changed, err := apply(ctx, next, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !changed {
		span.SetAttributes(attribute.Bool("idempotent_noop", true))
		return stored, nil
	}

	next.UpdatedAt = o.now()
	if err := o.store.Save(ctx, next); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return next, nil
}

// runStream adapts run to the relay frame contract. The guard is always
// released before the terminal frame's caller returns, cancellation
// included, because run's defer fires first.
func (o *Orchestrator) runStream(ctx context.Context, sessionID, op string, sink FrameSink, apply applyFn) error {
	relay := NewRelay(sink)
	state, err := o.run(ctx, sessionID, op, relay.Token, apply)
	if err != nil {
		return relay.Fail(err)
	}
	return relay.Complete(state)
}

// generate runs one model call, streaming tokens when a sink is present.
func (o *Orchestrator) generate(ctx context.Context, prompt string, emit tokenSink) (string, error) {
	params := llm.GenerationParams{SystemPrompt: systemPrompt}

	if emit == nil {
		out, err := o.model.Generate(ctx, prompt, params)
		if err != nil {
			return "", o.wrapModelErr(ctx, err)
		}
		return out, nil
	}

	var sb strings.Builder
	err := o.model.GenerateStream(ctx, prompt, params, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken {
			return nil
		}
		sb.WriteString(event.Content)
		return emit(event.Content)
	})
	if errors.Is(err, llm.ErrStreamingNotSupported) {
		out, genErr := o.model.Generate(ctx, prompt, params)
		if genErr != nil {
			return "", o.wrapModelErr(ctx, genErr)
		}
		if emitErr := emit(out); emitErr != nil {
			return "", emitErr
		}
		return out, nil
	}
	if err != nil {
		return "", o.wrapModelErr(ctx, err)
	}
	return sb.String(), nil
}

// wrapModelErr keeps cancellation distinct from real model failures.
func (o *Orchestrator) wrapModelErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailure, err)
}

// =============================================================================
// Transitions
// =============================================================================

func (o *Orchestrator) applyStart(ctx context.Context, st *datatypes.SessionState, emit tokenSink) (bool, error) {
	if len(st.L1Questions) > 0 || len(st.L1Cases) > 0 {
		return false, fmt.Errorf("%w: session already started", ErrInvalidStageTransition)
	}

	if st.Title == "" {
		st.Title = o.generateTitle(ctx, st.RootPrompt)
	}

	raw, err := o.generate(ctx, questionsPrompt(st, datatypes.LevelL1), emit)
	if err != nil {
		return false, err
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		return false, err
	}
	st.L1Questions = questions

	// No clarification needed: produce the L1 collection right away.
	if len(questions) == 0 {
		if err := o.generateCases(ctx, st, datatypes.LevelL1, emit); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (o *Orchestrator) applySubmitAnswers(level datatypes.Level, answers map[string]string) applyFn {
	return func(ctx context.Context, st *datatypes.SessionState, emit tokenSink) (bool, error) {
		if !level.Valid() {
			return false, fmt.Errorf("%w: unknown level %q", ErrInvalidStageTransition, level)
		}
		if stage := ResolveStage(st); stage != stageForLevel(level) {
			return false, fmt.Errorf("%w: cannot submit %s answers in stage %s", ErrInvalidStageTransition, level, stage)
		}

		// Every asked question is recorded, skipped ones as empty
		// entries, so a non-empty answer map marks the level answered.
		questions := st.Questions(level)
		merged := make(map[string]string, len(questions))
		for _, q := range questions {
			answer := strings.TrimSpace(answers[q.Text])
			merged[q.Text] = answer
			if answer != "" {
				st.AnsweredHistory = append(st.AnsweredHistory, datatypes.AnsweredQuestion{
					Question: q.Text,
					Answer:   answer,
					Level:    level,
					Context:  o.answerContext(st, level),
				})
			}
		}
		setAnswers(st, level, merged)

		if err := o.generateCases(ctx, st, level, emit); err != nil {
			return false, err
		}
		o.refreshSummary(ctx, st)
		return true, nil
	}
}

func (o *Orchestrator) applySelectCase(level datatypes.Level, index int) applyFn {
	return func(ctx context.Context, st *datatypes.SessionState, emit tokenSink) (bool, error) {
		if stage := ResolveStage(st); stage != StageTreeView {
			return false, fmt.Errorf("%w: cannot select a case in stage %s", ErrInvalidStageTransition, stage)
		}
		if level != datatypes.LevelL1 && level != datatypes.LevelL2 {
			return false, fmt.Errorf("%w: level %s is not selectable", ErrInvalidStageTransition, level)
		}

		cases := st.Cases(level)
		if index < 0 || index >= len(cases) {
			return false, fmt.Errorf("%w: %s index %d out of range", ErrInvalidStageTransition, level, index)
		}
		target := cases[index]

		var childLevel datatypes.Level
		switch level {
		case datatypes.LevelL1:
			// Children already generated: idempotent, no model call.
			if len(st.L2ChildrenOf(target.ID)) > 0 {
				return false, nil
			}
			st.SelectedL1ID = target.ID
			st.SelectedL2ID = ""
			st.L2Questions, st.L2Answers = nil, nil
			st.L3Questions, st.L3Answers = nil, nil
			childLevel = datatypes.LevelL2

		case datatypes.LevelL2:
			if target.ParentL1ID != st.SelectedL1ID {
				return false, fmt.Errorf("%w: case %s belongs to an inactive branch", ErrInvalidStageTransition, target.ID)
			}
			if len(st.L3ChildrenOf(target.ID)) > 0 {
				return false, nil
			}
			st.SelectedL2ID = target.ID
			st.L3Questions, st.L3Answers = nil, nil
			childLevel = datatypes.LevelL3
		}

		raw, err := o.generate(ctx, questionsPrompt(st, childLevel), emit)
		if err != nil {
			return false, err
		}
		questions, err := parseQuestions(raw)
		if err != nil {
			return false, err
		}
		setQuestions(st, childLevel, questions)

		if len(questions) == 0 {
			if err := o.generateCases(ctx, st, childLevel, emit); err != nil {
				return false, err
			}
		}
		return true, nil
	}
}

// generateCases produces and merges one level's case collection.
//
// For L2/L3 the freshly generated cases replace the selected parent's
// previous children; children of other parents are retained untouched
// (abandoned branches stay addressable as inactive data).
func (o *Orchestrator) generateCases(ctx context.Context, st *datatypes.SessionState, level datatypes.Level, emit tokenSink) error {
	raw, err := o.generate(ctx, casesPrompt(st, level), emit)
	if err != nil {
		return err
	}
	cases, err := parseTestCases(raw, level)
	if err != nil {
		return err
	}

	switch level {
	case datatypes.LevelL1:
		assign := nextCaseID(level, st.L1Cases)
		for i := range cases {
			cases[i].ID = assign()
		}
		st.L1Cases = cases

	case datatypes.LevelL2:
		parentID := st.SelectedL1ID
		if _, ok := st.CaseByID(parentID); !ok {
			return fmt.Errorf("%w: no selected L1 case to attach to", ErrInvalidStageTransition)
		}
		assign := nextCaseID(level, st.L2Cases)
		kept := st.L2Cases[:0:0]
		for _, tc := range st.L2Cases {
			if tc.ParentL1ID != parentID {
				kept = append(kept, tc)
			}
		}
		for i := range cases {
			cases[i].ID = assign()
			cases[i].ParentL1ID = parentID
		}
		st.L2Cases = append(kept, cases...)

	case datatypes.LevelL3:
		parentID := st.SelectedL2ID
		if _, ok := st.CaseByID(parentID); !ok {
			return fmt.Errorf("%w: no selected L2 case to attach to", ErrInvalidStageTransition)
		}
		assign := nextCaseID(level, st.L3Cases)
		kept := st.L3Cases[:0:0]
		for _, tc := range st.L3Cases {
			if tc.ParentL2ID != parentID {
				kept = append(kept, tc)
			}
		}
		for i := range cases {
			cases[i].ID = assign()
			cases[i].ParentL2ID = parentID
		}
		st.L3Cases = append(kept, cases...)
	}
	return nil
}

// generateTitle derives a short session title from the prompt. Failures
// fall back to a truncation; a missing title never fails Start.
func (o *Orchestrator) generateTitle(ctx context.Context, rootPrompt string) string {
	out, err := o.model.Generate(ctx, titlePrompt(rootPrompt), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Title generation failed, falling back to prompt prefix", "error", err)
		if len(rootPrompt) > maxTitleLen {
			return rootPrompt[:maxTitleLen] + "..."
		}
		return rootPrompt
	}
	return strings.Trim(strings.TrimSpace(out), `"`)
}

// refreshSummary re-derives the rolling context summary. Best effort: a
// summary failure never rolls back a successful generation.
func (o *Orchestrator) refreshSummary(ctx context.Context, st *datatypes.SessionState) {
	if len(st.AnsweredHistory) == 0 {
		return
	}
	out, err := o.model.Generate(ctx, summaryPrompt(st), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Global summary refresh failed, keeping previous summary", "session_id", st.SessionID, "error", err)
		return
	}
	st.GlobalSummary = strings.TrimSpace(out)
}

func (o *Orchestrator) answerContext(st *datatypes.SessionState, level datatypes.Level) string {
	switch level {
	case datatypes.LevelL2:
		if parent, ok := st.CaseByID(st.SelectedL1ID); ok {
			return parent.Title
		}
	case datatypes.LevelL3:
		if parent, ok := st.CaseByID(st.SelectedL2ID); ok {
			return parent.Title
		}
	}
	return "initial requirement"
}

func setQuestions(st *datatypes.SessionState, level datatypes.Level, qs []datatypes.Question) {
	switch level {
	case datatypes.LevelL1:
		st.L1Questions = qs
	case datatypes.LevelL2:
		st.L2Questions = qs
	case datatypes.LevelL3:
		st.L3Questions = qs
	}
}

func setAnswers(st *datatypes.SessionState, level datatypes.Level, answers map[string]string) {
	switch level {
	case datatypes.LevelL1:
		st.L1Answers = answers
	case datatypes.LevelL2:
		st.L2Answers = answers
	case datatypes.LevelL3:
		st.L3Answers = answers
	}
}
