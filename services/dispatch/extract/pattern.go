// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"regexp"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// varPatterns drive regex extraction for the variable names that have a
// recognizable surface form. Patterns are tried in order; the first
// capture wins. Variables without an entry cannot be pattern-extracted.
var varPatterns = map[string][]*regexp.Regexp{
	"issue_key": {
		regexp.MustCompile(`\b([A-Z]+-\d+)\b`),
	},
	"email": {
		regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	},
	"status": {
		regexp.MustCompile(`(?i)to\s+((?:In\s+Progress|Done|To\s+Do|QA|Review|Closed|Open|Resolved))\b`),
		regexp.MustCompile(`(?i)status\s+((?:In\s+Progress|Done|To\s+Do|QA|Review|Closed|Open|Resolved))\b`),
	},
	"priority": {
		regexp.MustCompile(`(?i)\b(High|Medium|Low|Critical|Urgent|Highest|Lowest)(?:\s+priority)?\b`),
	},
	"amount": {
		regexp.MustCompile(`\$([0-9,]+(?:\.[0-9]{2})?)`),
	},
	"project": {
		regexp.MustCompile(`(?:project|in|for)\s+([A-Z]{2,10})\b`),
		regexp.MustCompile(`\b([A-Z]{2,10})\b`),
	},
	"summary": {
		regexp.MustCompile(`"([^"]+)"`),
	},
	"comment": {
		regexp.MustCompile(`(?i)(?:comment|note|message):\s*"([^"]+)"`),
		regexp.MustCompile(`"([^"]+)"`),
	},
	"assignee": {
		regexp.MustCompile(`(?i)(?:assign(?:ed)?\s+to|to)\s+([a-zA-Z0-9@._-]+)\b`),
	},
	"firstname": {
		regexp.MustCompile(`\b([A-Z][a-z]+)\s+[A-Z][a-z]+(?:\s+at\b|\s+@|$)`),
	},
	"lastname": {
		regexp.MustCompile(`\b[A-Z][a-z]+\s+([A-Z][a-z]+)(?:\s+at\b|\s+@|$)`),
	},
	"company": {
		regexp.MustCompile(`(?:at\s+|from\s+)([A-Z][a-zA-Z ]+?)(?:\s+[a-z@]|$)`),
	},
}

// PatternExtractor extracts variables with the regex table alone.
//
// # Description
//
// No network and no model: good enough for well-formed values (issue
// keys, emails, quoted strings) and used both standalone in offline mode
// and as OpenAIExtractor's fallback. It never returns an error.
//
// # Thread Safety
//
// Safe for concurrent use; the extractor is stateless.
type PatternExtractor struct{}

// NewPatternExtractor returns the stateless regex extractor.
func NewPatternExtractor() *PatternExtractor { return &PatternExtractor{} }

// Extract matches each needed variable's patterns against text.
func (p *PatternExtractor) Extract(_ context.Context, text string, needed []string, _ *catalog.IntentDefinition) (Extracted, error) {
	out := make(Extracted)
	for _, name := range needed {
		for _, re := range varPatterns[name] {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if value, ok := cleanValue(name, m[1]); ok {
				out[name] = value
				break
			}
		}
	}
	return out, nil
}
