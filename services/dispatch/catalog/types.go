// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"strings"
)

// =============================================================================
// Variable Types
// =============================================================================

// VarType is the declared type of an intent variable.
type VarType string

const (
	// TypeString accepts any non-empty string value.
	TypeString VarType = "string"

	// TypeNumber accepts decimal values. Currency symbols and thousands
	// separators are stripped before parsing ("$50,000" → 50000).
	TypeNumber VarType = "number"

	// TypeEnum accepts only the values listed in VariableSpec.Enum.
	// Matching is case-insensitive and alias-aware.
	TypeEnum VarType = "enum"
)

// VariableSpec declares a single variable an intent expects to receive.
//
// # Description
//
// Variables are filled from the user's query by an extraction collaborator
// and validated by the resolver against the declared type. A required
// variable never carries a default — that combination is rejected at load
// time because a default would silently mask a missing required value.
//
// # Thread Safety
//
// Immutable after loading. Safe for concurrent use.
type VariableSpec struct {
	// Name is the variable identifier, unique within its intent.
	Name string `yaml:"name" validate:"required"`

	// Required marks the variable as blocking: a plan is never produced
	// while it is absent.
	Required bool `yaml:"required"`

	// Type is the declared value type. Empty defaults to "string".
	Type VarType `yaml:"type"`

	// Enum lists the canonical values for TypeEnum variables.
	Enum []string `yaml:"enum"`

	// Aliases maps lowercase spellings to canonical enum values
	// (e.g. "completed" → "Done"). Ignored for non-enum types.
	Aliases map[string]string `yaml:"aliases"`

	// Default is the value applied when an optional variable is absent.
	// Nil means no default. Must be nil when Required is true.
	Default *string `yaml:"default"`
}

// HasDefault reports whether the spec declares a default value.
func (v *VariableSpec) HasDefault() bool {
	return v.Default != nil
}

// =============================================================================
// Parameter Values
// =============================================================================

// ParamKind discriminates the closed ParamValue variant.
type ParamKind uint8

const (
	// ParamLiteral is a concrete value known at plan time.
	ParamLiteral ParamKind = iota

	// ParamVariable references a declared variable or an earlier step's
	// produced output ("$issue_key"). Resolved by the planner.
	ParamVariable

	// ParamProduced is a symbolic marker for a value that only exists once
	// an earlier step has executed at runtime. Emitted by the planner,
	// never written in catalog files directly.
	ParamProduced
)

// ParamValue is a closed tagged variant for tool step parameters:
// Literal | VariableRef | Produced.
//
// # Description
//
// Catalog files write parameters as plain YAML scalars; strings beginning
// with "$" parse into VariableRef, optionally with an inline fallback
// ($var || "default"). The planner rewrites VariableRef values into either
// Literal (when the variable is resolved) or Produced (when an earlier
// step's post-processor yields it at runtime).
type ParamValue struct {
	Kind ParamKind

	// Value holds the concrete value for ParamLiteral.
	Value any

	// Variable is the referenced variable name for ParamVariable and the
	// marker name for ParamProduced.
	Variable string

	// Fallback is the inline default for ParamVariable ("$var || \"x\"").
	// Nil means the reference has no fallback.
	Fallback *string
}

// Literal constructs a ParamLiteral value.
func Literal(v any) ParamValue {
	return ParamValue{Kind: ParamLiteral, Value: v}
}

// VariableRef constructs a ParamVariable reference without fallback.
func VariableRef(name string) ParamValue {
	return ParamValue{Kind: ParamVariable, Variable: name}
}

// Produced constructs a symbolic ParamProduced marker.
func Produced(name string) ParamValue {
	return ParamValue{Kind: ParamProduced, Variable: name}
}

// String renders the value for logs and CLI output.
func (p ParamValue) String() string {
	switch p.Kind {
	case ParamVariable:
		if p.Fallback != nil {
			return fmt.Sprintf("$%s || %q", p.Variable, *p.Fallback)
		}
		return "$" + p.Variable
	case ParamProduced:
		return "<" + p.Variable + ">"
	default:
		return fmt.Sprintf("%v", p.Value)
	}
}

// =============================================================================
// Tool Steps
// =============================================================================

// ToolStep is one entry of an intent's template plan.
//
// # Description
//
// A step names a backend tool and its parameters. A step with a
// post-processor declares, via Produces, which variable names that
// post-processor yields at runtime — these are the explicit dependency
// edges the planner orders by. Every "$var" reference in Params must be
// declared as a VariableSpec of the owning intent or listed in an earlier
// step's Produces; the loader rejects anything else.
type ToolStep struct {
	// Tool is the backend tool name (e.g. "get_issue_transitions").
	Tool string `yaml:"tool" validate:"required"`

	// Params maps parameter names to their values.
	Params map[string]ParamValue `yaml:"-"`

	// PostProcess names the post-processor applied to this step's output.
	// Empty when the step has none.
	PostProcess string `yaml:"post_process"`

	// Produces lists the variable names the post-processor yields. Filled
	// from the built-in post-processor table when omitted in YAML.
	Produces []string `yaml:"provides"`

	// Note is free-text operator documentation carried into the plan.
	Note string `yaml:"note"`
}

// =============================================================================
// Intent Definitions
// =============================================================================

// IntentDefinition is a named, catalog-defined user goal with example
// phrasings and a template tool plan.
//
// # Description
//
// Definitions are immutable once loaded and owned by the Catalog; every
// other component holds references only. The example phrases drive the
// vector index (one entry per example) and the steps are the template the
// planner orders and parameterizes per query.
//
// # Thread Safety
//
// Immutable after loading. Safe for unlimited concurrent readers.
type IntentDefinition struct {
	// Name is the unique intent identifier (e.g. "change_issue_status").
	Name string `yaml:"intent" validate:"required"`

	// Domain tags the backend the intent targets (e.g. "jira", "hubspot").
	Domain string `yaml:"-"`

	// Description is a one-line summary used in embedding documents and
	// disambiguation output.
	Description string `yaml:"description"`

	// Examples are ordered example phrasings, one vector index entry each.
	Examples []string `yaml:"examples" validate:"min=1"`

	// Variables are the declared variable specs, in declaration order.
	Variables []VariableSpec `yaml:"variables"`

	// Steps is the ordered template tool plan.
	Steps []ToolStep `yaml:"-"`
}

// Variable returns the spec for the given name, or nil when undeclared.
func (d *IntentDefinition) Variable(name string) *VariableSpec {
	for i := range d.Variables {
		if d.Variables[i].Name == name {
			return &d.Variables[i]
		}
	}
	return nil
}

// RequiredVariables returns the names of all required variables in
// declaration order.
func (d *IntentDefinition) RequiredVariables() []string {
	var names []string
	for i := range d.Variables {
		if d.Variables[i].Required {
			names = append(names, d.Variables[i].Name)
		}
	}
	return names
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the read-only collection of loaded intent definitions.
//
// # Description
//
// Loaded and validated once before the pipeline starts; the pipeline never
// mutates it. Lookup is by unique intent name; iteration preserves load
// order so vector index construction is deterministic.
//
// # Thread Safety
//
// Immutable after construction. Safe for unlimited concurrent readers.
type Catalog struct {
	intents []*IntentDefinition
	byName  map[string]*IntentDefinition
	domains []string
}

// Intents returns the definitions in load order. Callers must not modify
// the returned slice or its elements.
func (c *Catalog) Intents() []*IntentDefinition {
	return c.intents
}

// Intent returns the definition with the given name, or nil when absent.
func (c *Catalog) Intent(name string) *IntentDefinition {
	return c.byName[name]
}

// Domains returns the distinct domain tags in first-seen order.
func (c *Catalog) Domains() []string {
	return c.domains
}

// Len returns the number of loaded intents.
func (c *Catalog) Len() int {
	return len(c.intents)
}

// EmbeddingDoc builds the text embedded for one example phrase. The
// description is prepended for semantic signal; placeholder braces from
// templated examples ("{issue_key}") are stripped so they do not pollute
// the embedding vocabulary.
func EmbeddingDoc(d *IntentDefinition, example string) string {
	cleaned := strings.NewReplacer("{", "", "}", "").Replace(example)
	if d.Description == "" {
		return cleaned
	}
	return d.Description + ". " + cleaned
}
