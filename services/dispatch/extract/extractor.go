// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract pulls variable values out of free-form user text.
//
// OpenAIExtractor asks a chat model for a JSON object of values and falls
// back to PatternExtractor's regex table when the API is unreachable.
// Both normalize what they find (status and priority synonyms, project
// casing) before handing values to the resolver.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// Extracted maps variable names to the raw string values found in text.
// Absent keys mean the variable was not found; extractors never store
// empty values.
type Extracted map[string]string

// Merge overlays other onto e, keeping e's values on conflict. Used when
// a follow-up answer adds to what the original query already provided.
func (e Extracted) Merge(other Extracted) Extracted {
	for k, v := range other {
		if _, exists := e[k]; !exists {
			e[k] = v
		}
	}
	return e
}

// Extractor finds values for an intent's variables in user text.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Extract searches text for values of the named variables. def provides
	// description and example context; it may be nil. Missing variables are
	// simply absent from the result — only infrastructure failures return
	// an error.
	Extract(ctx context.Context, text string, needed []string, def *catalog.IntentDefinition) (Extracted, error)
}

// =============================================================================
// Value Cleaning
// =============================================================================

var (
	issueKeyRe = regexp.MustCompile(`^[A-Z]+-\d+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	projectRe  = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
)

// priorityNames folds the synonyms backends reject into canonical levels.
var priorityNames = map[string]string{
	"highest":  "Highest",
	"high":     "High",
	"medium":   "Medium",
	"low":      "Low",
	"lowest":   "Lowest",
	"critical": "High",
	"urgent":   "High",
	"normal":   "Medium",
	"minor":    "Low",
}

// statusNames folds status synonyms into workflow names.
var statusNames = map[string]string{
	"todo":        "To Do",
	"to do":       "To Do",
	"new":         "To Do",
	"in progress": "In Progress",
	"inprogress":  "In Progress",
	"done":        "Done",
	"complete":    "Done",
	"completed":   "Done",
	"closed":      "Closed",
	"resolved":    "Resolved",
}

// cleanValue validates and normalizes one extracted value. Returns
// ("", false) when the value is junk for its variable.
func cleanValue(name, value string) (string, bool) {
	value = strings.TrimSpace(value)
	switch {
	case value == "", strings.EqualFold(value, "null"), strings.EqualFold(value, "none"):
		return "", false
	}

	switch name {
	case "issue_key":
		value = strings.ToUpper(value)
		if !issueKeyRe.MatchString(value) {
			return "", false
		}
	case "email":
		if !emailRe.MatchString(value) {
			return "", false
		}
	case "project":
		if !projectRe.MatchString(value) || len(value) > 15 {
			return "", false
		}
		value = strings.ToUpper(value)
	case "priority":
		if canon, ok := priorityNames[strings.ToLower(value)]; ok {
			value = canon
		}
	case "status":
		if canon, ok := statusNames[strings.ToLower(value)]; ok {
			value = canon
		}
	}
	return value, true
}
