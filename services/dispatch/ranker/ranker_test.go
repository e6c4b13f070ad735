// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranker

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
	"github.com/AleutianAI/IntentBridge/services/dispatch/vecindex"
)

const rankerYAML = `
- intent: change_issue_status
  description: Move a Jira issue to a different workflow status
  examples:
    - "move {issue_key} to done"
    - "close ticket {issue_key}"
  variables:
    - name: issue_key
      required: true
  tool_plan:
    - tool: get_issue_transitions
      params:
        issue_key: "$issue_key"
      post_process: find_transition_id

- intent: create_issue
  description: Create a new Jira issue
  examples:
    - "create a bug in {project}"
  variables:
    - name: project
      required: true
  tool_plan:
    - tool: create_issue
      params:
        project: "$project"
`

func testRanker(t *testing.T) *Ranker {
	t.Helper()
	cat, err := catalog.Parse("jira", []byte(rankerYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	h := embed.NewHashEmbedder()
	ix, err := vecindex.NewBuilder(h, nil, nil).Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return New(cat, ix, h, vecindex.NewQueryCache(), nil)
}

func TestRankReturnsEveryIntentOnce(t *testing.T) {
	r := testRanker(t)
	cands, err := r.Rank(context.Background(), "move PROJ-1 to done")
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("Rank() returned %d candidates, want 2 (one per intent)", len(cands))
	}
	for i, c := range cands {
		if c.Rank != i+1 {
			t.Errorf("candidate %d has Rank %d", i, c.Rank)
		}
	}
	if cands[0].Score < cands[1].Score {
		t.Error("candidates not sorted by score descending")
	}
	if cands[0].Intent.Name != "change_issue_status" {
		t.Errorf("top candidate = %q", cands[0].Intent.Name)
	}
	if cands[0].Example == "" {
		t.Error("top candidate missing its best example")
	}
}

func TestRankUsesQueryCache(t *testing.T) {
	cat, _ := catalog.Parse("jira", []byte(rankerYAML))
	h := embed.NewHashEmbedder()
	ix, err := vecindex.NewBuilder(h, nil, nil).Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	counting := &countingEmbedder{inner: h}
	r := New(cat, ix, counting, vecindex.NewQueryCache(), nil)

	for i := 0; i < 3; i++ {
		if _, err := r.Rank(context.Background(), "close ticket PROJ-9"); err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
	}
	if counting.calls != 1 {
		t.Errorf("embedder called %d times, want 1 (cached after first)", counting.calls)
	}
}

func TestRankSurfacesEmbeddingFailure(t *testing.T) {
	cat, _ := catalog.Parse("jira", []byte(rankerYAML))
	h := embed.NewHashEmbedder()
	ix, _ := vecindex.NewBuilder(h, nil, nil).Build(context.Background(), cat)

	r := New(cat, ix, &downEmbedder{}, nil, nil)
	_, err := r.Rank(context.Background(), "move PROJ-1 to done")
	if !errors.Is(err, embed.ErrUnavailable) {
		t.Errorf("Rank() error = %v, want ErrUnavailable to pass through", err)
	}
}

func TestRankRejectsEmptyQuery(t *testing.T) {
	r := testRanker(t)
	if _, err := r.Rank(context.Background(), ""); err == nil {
		t.Fatal("Rank(\"\") error = nil, want error")
	}
}

// =============================================================================
// Gate
// =============================================================================

func gateCandidates(scores ...float64) []Candidate {
	names := []string{"alpha", "beta", "gamma", "delta"}
	out := make([]Candidate, len(scores))
	for i, s := range scores {
		out[i] = Candidate{
			Intent: &catalog.IntentDefinition{Name: names[i]},
			Score:  s,
			Rank:   i + 1,
		}
	}
	return out
}

func TestGateAcceptsAtThresholdInclusive(t *testing.T) {
	cfg := DefaultGateConfig()
	d := Gate(gateCandidates(0.8, 0.4), cfg)
	if d.Outcome != OutcomeAccept {
		t.Fatalf("Outcome = %v, want accept at exactly the threshold", d.Outcome)
	}
	if d.Best == nil || d.Best.Intent.Name != "alpha" {
		t.Errorf("Best = %+v", d.Best)
	}
}

func TestGateNoMatchCarriesSuggestions(t *testing.T) {
	cfg := DefaultGateConfig()
	d := Gate(gateCandidates(0.79, 0.6, 0.5, 0.2), cfg)
	if d.Outcome != OutcomeNoMatch {
		t.Fatalf("Outcome = %v, want no_match just below threshold", d.Outcome)
	}
	if len(d.Suggestions) != 3 {
		t.Fatalf("Suggestions = %d entries, want 3", len(d.Suggestions))
	}
	if d.Suggestions[0].Intent.Name != "alpha" {
		t.Errorf("Suggestions[0] = %q", d.Suggestions[0].Intent.Name)
	}
}

func TestGateEmptyCandidates(t *testing.T) {
	d := Gate(nil, DefaultGateConfig())
	if d.Outcome != OutcomeNoMatch || len(d.Suggestions) != 0 {
		t.Errorf("Gate(nil) = %+v", d)
	}
}

func TestGateAmbiguityBand(t *testing.T) {
	cfg := GateConfig{Threshold: 0.8, Epsilon: 0.05, Suggestions: 3}

	t.Run("runner-up inside band", func(t *testing.T) {
		d := Gate(gateCandidates(0.9, 0.87, 0.81), cfg)
		if d.Outcome != OutcomeAmbiguous {
			t.Fatalf("Outcome = %v, want ambiguous", d.Outcome)
		}
		if len(d.Contenders) != 2 {
			t.Errorf("Contenders = %d, want 2 (0.81 is outside the band)", len(d.Contenders))
		}
	})

	t.Run("runner-up below threshold never contends", func(t *testing.T) {
		d := Gate(gateCandidates(0.82, 0.79), cfg)
		if d.Outcome != OutcomeAccept {
			t.Errorf("Outcome = %v, want accept (runner-up under threshold)", d.Outcome)
		}
	})

	t.Run("zero epsilon disables band", func(t *testing.T) {
		d := Gate(gateCandidates(0.9, 0.9), DefaultGateConfig())
		if d.Outcome != OutcomeAccept {
			t.Errorf("Outcome = %v, want accept with epsilon 0", d.Outcome)
		}
	})
}

// =============================================================================
// Test Doubles
// =============================================================================

type countingEmbedder struct {
	inner embed.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) Model() string   { return c.inner.Model() }

type downEmbedder struct{}

func (d *downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embed.ErrUnavailable
}

func (d *downEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embed.ErrUnavailable
}

func (d *downEmbedder) Dimensions() int { return 64 }
func (d *downEmbedder) Model() string   { return "down" }
