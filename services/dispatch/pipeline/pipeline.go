// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives a query from raw text to an executable tool plan.
//
// The flow is rank -> gate -> extract -> resolve -> plan. Any stage can stop
// the pipeline short: the gate can declare no-match or ambiguity, and the
// resolver can park the conversation in an awaiting-input state that a later
// Resume call picks back up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/extract"
	"github.com/AleutianAI/IntentBridge/services/dispatch/planner"
	"github.com/AleutianAI/IntentBridge/services/dispatch/ranker"
	"github.com/AleutianAI/IntentBridge/services/dispatch/resolver"
)

var pipelineTracer = otel.Tracer("intentbridge.dispatch.pipeline")

// ============================================================================
// States and Results
// ============================================================================

// State classifies where a query ended up after Process or Resume.
type State string

const (
	// StateMatched means an intent was accepted, all variables resolved,
	// and a plan was built.
	StateMatched State = "matched"

	// StateAwaitingInput means an intent was accepted but required
	// variables are missing. Result.SessionID and Result.Question carry
	// what the caller needs to continue via Resume.
	StateAwaitingInput State = "awaiting_input"

	// StateDisambiguate means several intents scored too close to call.
	StateDisambiguate State = "disambiguate"

	// StateNoMatch means nothing cleared the confidence threshold.
	StateNoMatch State = "no_match"

	// StatePlanFailed means the intent matched and resolved, but the step
	// dependencies could not be ordered. Result.PlanErr has the typed
	// planner error.
	StatePlanFailed State = "plan_failed"
)

// Result is the outcome of one Process or Resume turn.
type Result struct {
	// State classifies the outcome; the other fields are populated
	// according to it.
	State State

	// Query is the text that produced this result. On Resume turns it is
	// the follow-up answer, not the original query.
	Query string

	// Decision carries the gate verdict, including contenders on
	// disambiguation and suggestions on no-match. Zero-valued on Resume.
	Decision ranker.Decision

	// Intent is the accepted intent. Nil unless the gate accepted.
	Intent *catalog.IntentDefinition

	// Resolution holds resolved values and any remaining gaps.
	Resolution resolver.Resolution

	// SessionID identifies the parked conversation on StateAwaitingInput.
	SessionID string

	// Question is the follow-up to show the user on StateAwaitingInput.
	Question string

	// Hint is a "try something like" example on StateNoMatch, taken from
	// the closest near-miss. Empty when there were no candidates at all.
	Hint string

	// Plan is the ordered tool plan. Non-nil only on StateMatched.
	Plan *planner.Plan

	// PlanErr is the planner failure on StatePlanFailed.
	PlanErr error
}

// CollaboratorError marks an infrastructure failure in one of the pipeline's
// collaborators (embedder, extractor). It is a real error, distinct from a
// no-match: the query was never actually evaluated.
type CollaboratorError struct {
	// Name identifies the failing collaborator.
	Name string

	// Err is the underlying failure.
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ErrSessionNotFound is returned by Resume for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found or expired")

// ============================================================================
// Sessions
// ============================================================================

const (
	sessionCacheSize = 512
	sessionTTL       = 30 * time.Minute
)

// session parks a partially-resolved intent between turns.
type session struct {
	intent    string
	extracted extract.Extracted
	gaps      []resolver.Gap
	created   time.Time
}

// ============================================================================
// Pipeline
// ============================================================================

// Pipeline wires the matching stages together and owns the session store.
//
// # Thread Safety
//
// Safe for concurrent use. Catalog swaps via SetCatalog are guarded by a
// mutex; the session store is an expirable LRU with its own locking.
type Pipeline struct {
	mu       sync.RWMutex
	cat      *catalog.Catalog
	rank     *ranker.Ranker
	extract  extract.Extractor
	resolve  *resolver.Resolver
	gate     ranker.GateConfig
	sessions *expirable.LRU[string, *session]
	logger   *slog.Logger
}

// New builds a pipeline over an already-constructed ranker.
//
// # Inputs
//
//   - cat: The loaded catalog. Must be the same catalog the ranker indexed.
//   - rank: Candidate ranker.
//   - ext: Variable extractor.
//   - gate: Gate tuning; pass ranker.DefaultGateConfig() for defaults.
//   - logger: Structured logger. Nil falls back to slog.Default().
func New(cat *catalog.Catalog, rank *ranker.Ranker, ext extract.Extractor, gate ranker.GateConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cat:      cat,
		rank:     rank,
		extract:  ext,
		resolve:  resolver.New(logger),
		gate:     gate,
		sessions: expirable.NewLRU[string, *session](sessionCacheSize, nil, sessionTTL),
		logger:   logger,
	}
}

// SetCatalog swaps the catalog after a hot reload. The caller is responsible
// for also rebuilding the ranker's index; in-flight sessions whose intent
// disappeared will fail their Resume with ErrSessionNotFound.
func (p *Pipeline) SetCatalog(cat *catalog.Catalog, rank *ranker.Ranker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cat = cat
	p.rank = rank
}

// Sessions reports how many conversations are currently parked.
func (p *Pipeline) Sessions() int { return p.sessions.Len() }

// Process runs a fresh query through the full pipeline.
//
// # Description
//
// Ranks the query against the catalog, gates the candidates, and on an
// accept extracts and resolves the intent's variables. Missing required
// variables park the conversation in a session and return
// StateAwaitingInput; otherwise a plan is built.
//
// # Inputs
//
//   - ctx: Cancels embedding and extraction calls.
//   - query: Raw user text. Must be non-blank.
//
// # Outputs
//
//   - *Result: The turn outcome. Nil only when error is non-nil.
//   - error: A *CollaboratorError on infrastructure failure; a plain error
//     on caller mistakes like a blank query. Never an error for a mere
//     no-match.
func (p *Pipeline) Process(ctx context.Context, query string) (*Result, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.Process")
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, errors.New("pipeline: empty query")
	}
	queryID := uuid.NewString()
	span.SetAttributes(attribute.String("pipeline.query_id", queryID))

	p.mu.RLock()
	rank := p.rank
	p.mu.RUnlock()

	candidates, err := rank.Rank(ctx, query)
	if err != nil {
		return nil, &CollaboratorError{Name: "embedder", Err: err}
	}

	decision := ranker.Gate(candidates, p.gate)
	res := &Result{Query: query, Decision: decision}

	switch decision.Outcome {
	case ranker.OutcomeNoMatch:
		res.State = StateNoMatch
		if len(decision.Suggestions) > 0 {
			res.Hint = resolver.ExampleHint(decision.Suggestions[0].Intent)
		}
	case ranker.OutcomeAmbiguous:
		res.State = StateDisambiguate
	case ranker.OutcomeAccept:
		if err := p.advance(ctx, res, decision.Best.Intent, query, nil, ""); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.String("pipeline.state", string(res.State)),
		attribute.Int("pipeline.candidates", len(candidates)),
	)
	processTotal.WithLabelValues(string(res.State)).Inc()
	turnLatencySeconds.WithLabelValues("process").Observe(time.Since(start).Seconds())

	p.logger.Info("query processed",
		slog.String("query_id", queryID),
		slog.String("state", string(res.State)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// Resume continues a parked conversation with the user's follow-up answer.
//
// # Description
//
// Looks up the session, extracts the still-missing variables from the
// answer, merges them over what earlier turns collected, and re-resolves.
// A still-incomplete resolution re-parks the session under the same ID with
// an updated question; a complete one builds the plan and ends the session.
//
// # Outputs
//
//   - *Result: The turn outcome; only StateMatched, StateAwaitingInput, and
//     StatePlanFailed occur here.
//   - error: ErrSessionNotFound for unknown or expired IDs, otherwise as
//     Process.
func (p *Pipeline) Resume(ctx context.Context, sessionID, answer string) (*Result, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.Resume")
	defer span.End()
	start := time.Now()

	sess, ok := p.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	p.mu.RLock()
	cat := p.cat
	p.mu.RUnlock()

	def := cat.Intent(sess.intent)
	if def == nil {
		p.sessions.Remove(sessionID)
		return nil, ErrSessionNotFound
	}

	res := &Result{Query: answer}
	if err := p.advance(ctx, res, def, answer, sess, sessionID); err != nil {
		return nil, err
	}
	if res.State != StateAwaitingInput {
		p.sessions.Remove(sessionID)
	}

	span.SetAttributes(attribute.String("pipeline.state", string(res.State)))
	resumeTotal.WithLabelValues(string(res.State)).Inc()
	turnLatencySeconds.WithLabelValues("resume").Observe(time.Since(start).Seconds())
	return res, nil
}

// advance runs extraction, resolution, and planning for an accepted intent,
// filling res in place. On Resume turns prior is the parked session and
// sessionID its existing key; both are zero on fresh queries.
func (p *Pipeline) advance(ctx context.Context, res *Result, def *catalog.IntentDefinition, text string, prior *session, sessionID string) error {
	res.Intent = def

	needed := make([]string, 0, len(def.Variables))
	if prior != nil {
		for _, g := range prior.gaps {
			needed = append(needed, g.Name)
		}
	} else {
		for i := range def.Variables {
			needed = append(needed, def.Variables[i].Name)
		}
	}

	extracted, err := p.extract.Extract(ctx, text, needed, def)
	if err != nil {
		return &CollaboratorError{Name: "extractor", Err: err}
	}
	if prior != nil {
		// Only gap variables are re-extracted, so the answer wins for the
		// variable it was asked about; everything else carries over.
		extracted = extracted.Merge(prior.extracted)
	}

	resolution := p.resolve.Resolve(def, extracted)
	res.Resolution = resolution

	if !resolution.Complete() {
		res.State = StateAwaitingInput
		res.Question = resolver.Question(resolution.Gaps, def)
		// Keep the caller's handle stable: a re-park reuses the key the
		// conversation started under.
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		p.sessions.Add(sessionID, &session{
			intent:    def.Name,
			extracted: extracted,
			gaps:      resolution.Gaps,
			created:   time.Now(),
		})
		res.SessionID = sessionID
		return nil
	}

	plan, err := planner.Build(def, resolution.Values)
	if err != nil {
		res.State = StatePlanFailed
		res.PlanErr = err
		p.logger.Warn("plan construction failed",
			slog.String("intent", def.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	res.State = StateMatched
	res.Plan = plan
	return nil
}
