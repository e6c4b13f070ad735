// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
	"github.com/AleutianAI/IntentBridge/services/dispatch/extract"
	"github.com/AleutianAI/IntentBridge/services/dispatch/planner"
	"github.com/AleutianAI/IntentBridge/services/dispatch/ranker"
	"github.com/AleutianAI/IntentBridge/services/dispatch/vecindex"
)

const pipelineYAML = `
- intent: change_issue_status
  description: Move a Jira issue to a different workflow status
  examples:
    - "move {issue_key} to done"
    - "change the status of {issue_key}"
  variables:
    - name: issue_key
      required: true
    - name: status
      required: true
      type: enum
      enum: ["To Do", "In Progress", "Done"]
      aliases:
        todo: "To Do"
        done: "Done"
  tool_plan:
    - tool: transition_issue
      params:
        issue_key: "$issue_key"
        transition_id: "$transition_id"
    - tool: get_issue_transitions
      params:
        issue_key: "$issue_key"
      post_process: find_transition_id

- intent: add_comment
  description: Add a comment to a Jira issue
  examples:
    - "comment on {issue_key}"
  variables:
    - name: issue_key
      required: true
    - name: comment
      required: true
  tool_plan:
    - tool: add_comment
      params:
        issue_key: "$issue_key"
        body: "$comment"
`

// testPipeline wires the offline stack: hash embeddings, regex extraction.
func testPipeline(t *testing.T, gate ranker.GateConfig) *Pipeline {
	t.Helper()
	cat, err := catalog.Parse("jira", []byte(pipelineYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	embedder := embed.NewHashEmbedder()
	ix, err := vecindex.NewBuilder(embedder, nil, nil).Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rank := ranker.New(cat, ix, embedder, vecindex.NewQueryCache(), nil)
	return New(cat, rank, extract.NewPatternExtractor(), gate, nil)
}

func TestProcessFullMatchBuildsPlan(t *testing.T) {
	p := testPipeline(t, ranker.GateConfig{Threshold: 0.2, Suggestions: 3})

	res, err := p.Process(context.Background(), "move PROJ-123 to Done status please")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.State != StateMatched {
		t.Fatalf("State = %s, want %s (decision %+v)", res.State, StateMatched, res.Decision)
	}
	if res.Intent.Name != "change_issue_status" {
		t.Errorf("Intent = %q", res.Intent.Name)
	}
	if res.Plan == nil {
		t.Fatal("Plan = nil on matched")
	}
	if got := res.Plan.Order; got[0] != "get_issue_transitions" || got[1] != "transition_issue" {
		t.Errorf("Order = %v, want producer first", got)
	}
	if v := res.Resolution.Values["status"]; v != "Done" {
		t.Errorf("status = %v, want Done", v)
	}
}

func TestProcessAwaitingInputThenResume(t *testing.T) {
	p := testPipeline(t, ranker.GateConfig{Threshold: 0.2, Suggestions: 3})

	res, err := p.Process(context.Background(), "change the status of PROJ-42")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.State != StateAwaitingInput {
		t.Fatalf("State = %s, want %s", res.State, StateAwaitingInput)
	}
	if res.SessionID == "" {
		t.Fatal("SessionID empty on awaiting input")
	}
	if res.Question == "" || !strings.Contains(res.Question, "status") {
		t.Errorf("Question = %q, want a status prompt", res.Question)
	}
	if p.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1", p.Sessions())
	}

	res, err = p.Resume(context.Background(), res.SessionID, "move it to In Progress")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State != StateMatched {
		t.Fatalf("Resume State = %s, want %s (gaps %v)", res.State, StateMatched, res.Resolution.Gaps)
	}
	// The first turn's issue key survives the resume.
	if v := res.Resolution.Values["issue_key"]; v != "PROJ-42" {
		t.Errorf("issue_key = %v, want PROJ-42", v)
	}
	if v := res.Resolution.Values["status"]; v != "In Progress" {
		t.Errorf("status = %v, want In Progress", v)
	}
	if p.Sessions() != 0 {
		t.Errorf("Sessions() = %d after completion, want 0", p.Sessions())
	}
}

func TestResumeReparksUnderSameID(t *testing.T) {
	p := testPipeline(t, ranker.GateConfig{Threshold: 0.2, Suggestions: 3})

	res, err := p.Process(context.Background(), "change the status of PROJ-7")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	id := res.SessionID

	// An answer that still does not contain a status re-parks the session.
	res, err = p.Resume(context.Background(), id, "hmm let me think")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State != StateAwaitingInput {
		t.Fatalf("State = %s, want %s", res.State, StateAwaitingInput)
	}
	if res.SessionID != id {
		t.Errorf("SessionID changed across re-park: %q -> %q", id, res.SessionID)
	}

	res, err = p.Resume(context.Background(), id, "to Done")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State != StateMatched {
		t.Errorf("State = %s, want %s", res.State, StateMatched)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	p := testPipeline(t, ranker.DefaultGateConfig())
	_, err := p.Resume(context.Background(), "no-such-session", "to Done")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Resume() error = %v, want ErrSessionNotFound", err)
	}
}

func TestProcessNoMatchCarriesSuggestionsAndHint(t *testing.T) {
	// Impossible threshold forces a miss regardless of hash similarity.
	p := testPipeline(t, ranker.GateConfig{Threshold: 1.01, Suggestions: 2})

	res, err := p.Process(context.Background(), "order a pizza")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.State != StateNoMatch {
		t.Fatalf("State = %s, want %s", res.State, StateNoMatch)
	}
	if len(res.Decision.Suggestions) == 0 {
		t.Fatal("no suggestions on no-match")
	}
	if !strings.HasPrefix(res.Hint, "Try something like:") {
		t.Errorf("Hint = %q", res.Hint)
	}
}

func TestProcessEmbedderFailureIsCollaboratorError(t *testing.T) {
	cat, err := catalog.Parse("jira", []byte(pipelineYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	hash := embed.NewHashEmbedder()
	ix, err := vecindex.NewBuilder(hash, nil, nil).Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// Index built offline, queries embedded by a dead backend.
	rank := ranker.New(cat, ix, downEmbedder{dims: hash.Dimensions()}, vecindex.NewQueryCache(), nil)
	p := New(cat, rank, extract.NewPatternExtractor(), ranker.DefaultGateConfig(), nil)

	_, err = p.Process(context.Background(), "move PROJ-1 to Done")
	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("Process() error = %v, want CollaboratorError", err)
	}
	if collab.Name != "embedder" {
		t.Errorf("Name = %q, want embedder", collab.Name)
	}
	if !errors.Is(err, embed.ErrUnavailable) {
		t.Errorf("error does not unwrap to embed.ErrUnavailable: %v", err)
	}
}

func TestProcessRejectsEmptyQuery(t *testing.T) {
	p := testPipeline(t, ranker.DefaultGateConfig())
	if _, err := p.Process(context.Background(), "   "); err == nil {
		t.Fatal("Process() error = nil for blank query")
	}
}

func TestProcessPlanFailure(t *testing.T) {
	// A catalog that passes load validation but cannot be ordered: two
	// steps produce each other's inputs.
	cyclic := `
- intent: tangled
  description: Mutually dependent reporting steps
  examples:
    - "run the tangled report"
  tool_plan:
    - tool: step_a
      params:
        in: "$from_b"
      post_process: find_transition_id
      provides: ["from_a"]
    - tool: step_b
      params:
        in: "$from_a"
      post_process: find_transition_id
      provides: ["from_b"]
`
	cat, err := catalog.Parse("jira", []byte(cyclic))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	embedder := embed.NewHashEmbedder()
	ix, err := vecindex.NewBuilder(embedder, nil, nil).Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rank := ranker.New(cat, ix, embedder, vecindex.NewQueryCache(), nil)
	p := New(cat, rank, extract.NewPatternExtractor(), ranker.GateConfig{Threshold: 0.1}, nil)

	res, err := p.Process(context.Background(), "run the tangled report")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.State != StatePlanFailed {
		t.Fatalf("State = %s, want %s", res.State, StatePlanFailed)
	}
	var cyc *planner.CycleError
	if !errors.As(res.PlanErr, &cyc) {
		t.Errorf("PlanErr = %v, want CycleError", res.PlanErr)
	}
}

// downEmbedder fails every call the way a dead backend does.
type downEmbedder struct{ dims int }

func (d downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embed.ErrUnavailable
}

func (d downEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embed.ErrUnavailable
}

func (d downEmbedder) Dimensions() int { return d.dims }
func (d downEmbedder) Model() string   { return "down" }
