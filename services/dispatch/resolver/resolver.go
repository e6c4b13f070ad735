// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns raw extracted strings into typed, validated
// variable values and reports which required variables are still missing.
package resolver

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/extract"
)

// =============================================================================
// Types
// =============================================================================

// Gap is one required variable the query did not supply.
type Gap struct {
	// Name is the variable name.
	Name string

	// Spec is the variable's catalog declaration.
	Spec *catalog.VariableSpec

	// Prompt is the natural-language question to ask the user.
	Prompt string
}

// Resolution is the outcome of resolving one intent's variables.
type Resolution struct {
	// Values holds every resolved variable, typed per its spec: string,
	// float64, or a canonical enum string.
	Values map[string]any

	// Gaps lists required variables still missing, in declaration order.
	Gaps []Gap
}

// Complete reports whether every required variable resolved.
func (r Resolution) Complete() bool { return len(r.Gaps) == 0 }

// Resolver validates and normalizes extracted values against variable
// specs.
//
// # Thread Safety
//
// Safe for concurrent use; Resolve holds no state between calls.
type Resolver struct {
	logger *slog.Logger
}

// New creates a Resolver. A nil logger means slog.Default().
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// =============================================================================
// Resolution
// =============================================================================

// Resolve maps extracted strings onto def's variable specs.
//
// # Description
//
// Each declared variable resolves in order: an extracted value is
// converted to its declared type (enum values pass through the spec's
// alias table, then match case-insensitively against the enum list);
// a missing value falls back to the spec default when one exists; a
// missing required variable becomes a Gap carrying the question to ask.
// A value that fails conversion counts as missing — for a required
// variable that surfaces as a gap, and the bad input is logged.
//
// Resolution is idempotent: feeding canonical outputs back through
// Resolve yields the same Values, because every normalization maps its
// own output to itself.
//
// # Inputs
//
//   - def: The matched intent. Must not be nil.
//   - extracted: Raw values from the extractor. May be nil.
//
// # Outputs
//
//   - Resolution: Typed values plus gaps. Gaps preserve declaration order.
func (r *Resolver) Resolve(def *catalog.IntentDefinition, extracted extract.Extracted) Resolution {
	res := Resolution{Values: make(map[string]any, len(def.Variables))}

	for i := range def.Variables {
		spec := &def.Variables[i]

		raw, found := extracted[spec.Name]
		if found {
			value, err := convert(spec, raw)
			if err == nil {
				res.Values[spec.Name] = value
				continue
			}
			r.logger.Warn("resolver: discarding invalid value",
				slog.String("intent", def.Name),
				slog.String("variable", spec.Name),
				slog.String("value", raw),
				slog.String("error", err.Error()),
			)
		}

		if spec.HasDefault() {
			// Defaults are validated at catalog load, so conversion here
			// can only fail if the catalog was built by hand; treat that
			// like any other invalid value.
			if value, err := convert(spec, *spec.Default); err == nil {
				res.Values[spec.Name] = value
				continue
			}
		}

		if spec.Required {
			res.Gaps = append(res.Gaps, Gap{
				Name:   spec.Name,
				Spec:   spec,
				Prompt: promptFor(spec),
			})
		}
	}

	return res
}

// convert coerces one raw string to the spec's declared type.
func convert(spec *catalog.VariableSpec, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty value")
	}

	switch spec.Type {
	case catalog.TypeNumber:
		// Accept "$50,000" style input; backends want the bare number.
		cleaned := strings.ReplaceAll(strings.TrimPrefix(raw, "$"), ",", "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return n, nil

	case catalog.TypeEnum:
		candidate := raw
		if alias, ok := lookupFold(spec.Aliases, candidate); ok {
			candidate = alias
		}
		for _, allowed := range spec.Enum {
			if strings.EqualFold(candidate, allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", raw, spec.Enum)

	default:
		return raw, nil
	}
}

// lookupFold finds a map entry by case-insensitive key.
func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
