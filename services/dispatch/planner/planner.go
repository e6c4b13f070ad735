// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner orders an intent's tool steps by variable dependency
// and substitutes resolved values into their parameters.
//
// A step that consumes a variable produced by another step's
// post-processor must run after its producer. Steps with no such
// relationship keep their template order. Values the user supplied are
// substituted as literals; values a post-processor will produce at
// execution time stay as symbolic markers for the executor to fill in.
package planner

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// =============================================================================
// Types
// =============================================================================

// Step is one planned tool invocation with parameters substituted.
type Step struct {
	// Tool is the backend tool name.
	Tool string

	// Params holds literal values and symbolic produced-markers only;
	// no unresolved variable references survive planning.
	Params map[string]catalog.ParamValue

	// PostProcess names the post-processor run on this step's result.
	PostProcess string

	// Produces lists the variables PostProcess yields.
	Produces []string

	// Note carries the catalog's free-text annotation, if any.
	Note string
}

// Plan is a dependency-ordered, fully substituted tool plan.
type Plan struct {
	// Intent names the plan's owning intent.
	Intent string

	// Steps is the execution sequence.
	Steps []Step

	// Order lists tool names in execution order, for display and logs.
	Order []string

	// Reordered reports whether dependency ordering changed the
	// template's step sequence.
	Reordered bool
}

// CycleError reports a dependency cycle among tool steps. The catalog
// loader cannot catch these in general because whether an edge exists
// depends on which variables the query resolved.
type CycleError struct {
	// Steps are the tool names involved in (or blocked behind) the cycle.
	Steps []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("planner: dependency cycle among steps [%s]", strings.Join(e.Steps, ", "))
}

// UnplannableError reports a variable reference that nothing can supply:
// not resolved from the query, no inline fallback, and no step produces it.
type UnplannableError struct {
	// Step is the consuming tool name.
	Step string

	// Variable is the unsatisfiable reference.
	Variable string
}

func (e *UnplannableError) Error() string {
	return fmt.Sprintf("planner: step %q needs %q, which is neither resolved nor produced by any step", e.Step, e.Variable)
}

// =============================================================================
// Planning
// =============================================================================

// Build plans def's tool steps against the resolved variable values.
//
// # Description
//
// Each step's unresolved variable references (no value, no fallback) are
// matched to producer steps, forming a dependency graph. The graph is
// ordered with a stable topological sort: among runnable steps, the one
// earliest in the template runs first, so a template that is already
// valid keeps its exact order. Substitution then rewrites parameters:
// resolved values and fallbacks become literals; producer-supplied
// variables become symbolic markers rendered as "<name>".
//
// # Inputs
//
//   - def: The matched intent. Must have at least one step.
//   - values: Resolved variables, as produced by the resolver.
//
// # Outputs
//
//   - *Plan: The ordered, substituted plan. Nil on error.
//   - error: *UnplannableError or *CycleError, or a plain error for an
//     intent without steps.
func Build(def *catalog.IntentDefinition, values map[string]any) (*Plan, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("planner: intent %q has no tool plan", def.Name)
	}

	// producers[v] is the index of the step whose post-processor yields v.
	producers := make(map[string]int)
	for i := range def.Steps {
		for _, out := range def.Steps[i].Produces {
			if _, dup := producers[out]; !dup {
				producers[out] = i
			}
		}
	}

	// Dependency edges: producer → consumer, for every reference that the
	// resolved values cannot satisfy. Fallback references never block.
	n := len(def.Steps)
	inDegree := make([]int, n)
	consumers := make([][]int, n)
	for i := range def.Steps {
		depends := make(map[int]bool)
		for _, pv := range def.Steps[i].Params {
			if pv.Kind != catalog.ParamVariable {
				continue
			}
			if _, resolved := values[pv.Variable]; resolved {
				continue
			}
			if pv.Fallback != nil {
				continue
			}
			producer, ok := producers[pv.Variable]
			if !ok {
				return nil, &UnplannableError{Step: def.Steps[i].Tool, Variable: pv.Variable}
			}
			if producer != i {
				depends[producer] = true
			}
		}
		for p := range depends {
			consumers[p] = append(consumers[p], i)
			inDegree[i]++
		}
	}

	// Stable Kahn: a min-heap on template index picks the earliest
	// runnable step, so independent steps never swap.
	ready := &intHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, c := range consumers[i] {
			inDegree[c]--
			if inDegree[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}

	if len(order) < n {
		var stuck []string
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				stuck = append(stuck, def.Steps[i].Tool)
			}
		}
		return nil, &CycleError{Steps: stuck}
	}

	plan := &Plan{Intent: def.Name}
	reordered := false
	for pos, i := range order {
		if i != pos {
			reordered = true
		}
		step, err := substitute(&def.Steps[i], values, producers)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, step)
		plan.Order = append(plan.Order, step.Tool)
	}
	plan.Reordered = reordered
	return plan, nil
}

// substitute rewrites one template step's params against resolved values.
func substitute(tmpl *catalog.ToolStep, values map[string]any, producers map[string]int) (Step, error) {
	out := Step{
		Tool:        tmpl.Tool,
		Params:      make(map[string]catalog.ParamValue, len(tmpl.Params)),
		PostProcess: tmpl.PostProcess,
		Produces:    tmpl.Produces,
		Note:        tmpl.Note,
	}

	for name, pv := range tmpl.Params {
		switch pv.Kind {
		case catalog.ParamVariable:
			if v, ok := values[pv.Variable]; ok {
				out.Params[name] = catalog.Literal(v)
			} else if pv.Fallback != nil {
				out.Params[name] = catalog.Literal(*pv.Fallback)
			} else if _, ok := producers[pv.Variable]; ok {
				out.Params[name] = catalog.Produced(pv.Variable)
			} else {
				// Build's dependency pass already rejected this.
				return Step{}, &UnplannableError{Step: tmpl.Tool, Variable: pv.Variable}
			}
		default:
			out.Params[name] = pv
		}
	}
	return out, nil
}

// intHeap is a min-heap of step indices.
type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
