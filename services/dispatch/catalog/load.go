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
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize caps a single catalog file at 4 MiB. Intent catalogs are
// hand-written; anything larger is a mistake, not a catalog.
const MaxYAMLFileSize = 4 * 1024 * 1024

// validate is the package-level validator instance. go-playground/validator
// caches struct metadata internally, so a single shared instance is the
// intended usage and is safe for concurrent use.
var validate = validator.New()

// =============================================================================
// YAML Wire Types
// =============================================================================

// rawStep mirrors the YAML shape of a tool step before params are parsed
// into the ParamValue variant.
type rawStep struct {
	Tool        string         `yaml:"tool"`
	Params      map[string]any `yaml:"params"`
	PostProcess string         `yaml:"post_process"`
	Provides    []string       `yaml:"provides"`
	Note        string         `yaml:"note"`
}

// rawIntent mirrors the YAML shape of one intent entry.
type rawIntent struct {
	Intent      string         `yaml:"intent"`
	Description string         `yaml:"description"`
	Examples    []string       `yaml:"examples"`
	Variables   []VariableSpec `yaml:"variables"`
	ToolPlan    []rawStep      `yaml:"tool_plan"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadFiles loads and validates one catalog file per domain.
//
// # Description
//
// Each file holds a YAML list of intents for one backend domain. All files
// are parsed, cross-validated (unique intent names across domains, variable
// references resolvable), and combined into a single read-only Catalog.
// Domains are loaded in sorted-stable map-free order: the files slice
// preserves the caller's ordering so index construction is deterministic.
//
// # Inputs
//
//   - files: Ordered (domain, path) pairs. Must not be empty.
//
// # Outputs
//
//   - *Catalog: The validated catalog. Nil on error.
//   - error: Non-nil on read, parse, or validation failure.
func LoadFiles(files []DomainFile) (*Catalog, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("catalog: no files given")
	}

	cat := &Catalog{byName: make(map[string]*IntentDefinition)}
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", f.Path, err)
		}
		if err := appendDomain(cat, f.Domain, data); err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", f.Path, err)
		}
		slog.Info("catalog: loaded domain",
			slog.String("domain", f.Domain),
			slog.String("path", f.Path),
			slog.Int("intents", len(cat.intents)),
		)
	}

	return cat, nil
}

// DomainFile pairs a domain tag with the path of its intent file.
type DomainFile struct {
	Domain string
	Path   string
}

// Parse builds a Catalog from in-memory YAML for a single domain.
// Used by tests and by hosts that embed their catalogs.
func Parse(domain string, data []byte) (*Catalog, error) {
	cat := &Catalog{byName: make(map[string]*IntentDefinition)}
	if err := appendDomain(cat, domain, data); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// appendDomain parses one domain's YAML and appends its intents to cat.
func appendDomain(cat *Catalog, domain string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty YAML data for domain %q", domain)
	}
	if len(data) > MaxYAMLFileSize {
		return fmt.Errorf("YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var raws []rawIntent
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if len(raws) == 0 {
		return fmt.Errorf("domain %q declares no intents", domain)
	}

	for i := range raws {
		def, err := buildIntent(&raws[i], domain)
		if err != nil {
			return err
		}
		if _, dup := cat.byName[def.Name]; dup {
			return fmt.Errorf("intent %q declared more than once", def.Name)
		}
		cat.intents = append(cat.intents, def)
		cat.byName[def.Name] = def
	}

	for _, d := range cat.domains {
		if d == domain {
			return nil
		}
	}
	cat.domains = append(cat.domains, domain)
	return nil
}

// buildIntent converts a rawIntent into a validated IntentDefinition.
func buildIntent(raw *rawIntent, domain string) (*IntentDefinition, error) {
	def := &IntentDefinition{
		Name:        raw.Intent,
		Domain:      domain,
		Description: raw.Description,
		Examples:    raw.Examples,
		Variables:   raw.Variables,
	}

	for i := range def.Variables {
		if def.Variables[i].Type == "" {
			def.Variables[i].Type = TypeString
		}
	}

	for i := range raw.ToolPlan {
		step, err := buildStep(&raw.ToolPlan[i])
		if err != nil {
			return nil, fmt.Errorf("intent %q step %d: %w", raw.Intent, i, err)
		}
		def.Steps = append(def.Steps, step)
	}

	if err := validateIntent(def); err != nil {
		return nil, err
	}
	return def, nil
}

// buildStep converts a rawStep, parsing "$var" and `$var || "default"`
// scalars into the ParamValue variant. Non-string scalars stay literal.
func buildStep(raw *rawStep) (ToolStep, error) {
	step := ToolStep{
		Tool:        raw.Tool,
		Params:      make(map[string]ParamValue, len(raw.Params)),
		PostProcess: raw.PostProcess,
		Produces:    raw.Provides,
		Note:        raw.Note,
	}

	for name, v := range raw.Params {
		pv, err := parseParamScalar(v)
		if err != nil {
			return ToolStep{}, fmt.Errorf("param %q: %w", name, err)
		}
		step.Params[name] = pv
	}

	// A post-processor's outputs may be declared inline via "provides" or
	// resolved from the built-in table.
	if step.PostProcess != "" && len(step.Produces) == 0 {
		step.Produces = PostProcessorOutputs(step.PostProcess)
		if len(step.Produces) == 0 {
			return ToolStep{}, fmt.Errorf("post-processor %q has no known outputs and step declares no provides", step.PostProcess)
		}
	}
	if step.PostProcess == "" && len(step.Produces) > 0 {
		return ToolStep{}, fmt.Errorf("step provides %v without a post_process to produce them", step.Produces)
	}

	return step, nil
}

// parseParamScalar converts one YAML scalar into a ParamValue.
func parseParamScalar(v any) (ParamValue, error) {
	s, isString := v.(string)
	if !isString || !strings.HasPrefix(strings.TrimSpace(s), "$") {
		return Literal(v), nil
	}

	s = strings.TrimSpace(s)

	// Inline fallback syntax: $variable || "default"
	if before, after, found := strings.Cut(s, "||"); found {
		name := strings.TrimSpace(before)
		if !strings.HasPrefix(name, "$") {
			return Literal(v), nil
		}
		def := strings.Trim(strings.TrimSpace(after), `"'`)
		pv := VariableRef(strings.TrimPrefix(name, "$"))
		pv.Fallback = &def
		return pv, nil
	}

	name := strings.TrimPrefix(s, "$")
	if name == "" {
		return ParamValue{}, fmt.Errorf("empty variable reference %q", s)
	}
	return VariableRef(name), nil
}

// =============================================================================
// Validation
// =============================================================================

// validateIntent runs struct-tag validation plus the semantic checks the
// tags cannot express.
func validateIntent(def *IntentDefinition) error {
	if err := validate.Struct(def); err != nil {
		return fmt.Errorf("intent %q: %w", def.Name, err)
	}

	seen := make(map[string]bool, len(def.Variables))
	for i := range def.Variables {
		v := &def.Variables[i]
		if seen[v.Name] {
			return fmt.Errorf("intent %q: variable %q declared twice", def.Name, v.Name)
		}
		seen[v.Name] = true

		switch v.Type {
		case TypeString, TypeNumber:
		case TypeEnum:
			if len(v.Enum) == 0 {
				return fmt.Errorf("intent %q: enum variable %q lists no values", def.Name, v.Name)
			}
		default:
			return fmt.Errorf("intent %q: variable %q has unknown type %q", def.Name, v.Name, v.Type)
		}

		if v.Required && v.HasDefault() {
			return fmt.Errorf("intent %q: required variable %q must not carry a default", def.Name, v.Name)
		}
	}

	// Every $variable reference must be declared or produced by some step.
	// Steps may appear out of dependency order; the planner reorders them,
	// so ordering is not checked here. Catching dangling references at load
	// time turns a per-query planning failure into a config error.
	produced := make(map[string]bool)
	for i := range def.Steps {
		for _, out := range def.Steps[i].Produces {
			produced[out] = true
		}
	}
	for i := range def.Steps {
		for pname, pv := range def.Steps[i].Params {
			if pv.Kind != ParamVariable {
				continue
			}
			if !seen[pv.Variable] && !produced[pv.Variable] {
				return fmt.Errorf("intent %q step %d: param %q references %q, which is neither a declared variable nor produced by any step",
					def.Name, i, pname, pv.Variable)
			}
		}
	}

	return nil
}
