// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// placeholderRe matches "{variable}" placeholders in catalog examples.
var placeholderRe = regexp.MustCompile(`\{[^}]+\}`)

// varPrompts holds the question asked for each well-known variable.
// Variables without an entry get a generic question built from the name.
var varPrompts = map[string]string{
	"issue_key": "Which issue should I work with? (e.g., PROJ-123)",
	"status":    "What status should I change it to? (e.g., In Progress, Done, QA)",
	"assignee":  "Who should I assign this to? (username or email)",
	"project":   "Which project is this for? (e.g., PROJ, ABC)",
	"email":     "What email address should I use?",
	"dealname":  "What should I name this deal?",
	"amount":    "What's the value? (e.g., $50000)",
	"summary":   "What should the title/summary be?",
	"comment":   "What comment should I add?",
	"subject":   "What should the subject/title be?",
	"priority":  "What priority level? (High, Medium, Low)",
}

// toolContexts describe what each well-known tool will do, used to show
// the user why their answer is needed.
var toolContexts = map[string]string{
	"get_issue_transitions": "I'll check what status transitions are available for this issue",
	"transition_issue":      "then change it to your desired status",
	"assign_issue":          "I'll assign this issue to the specified person",
	"create_issue":          "I'll create a new issue in the project",
	"search_issues":         "I'll search for issues matching your criteria",
	"add_comment":           "I'll add your comment to the issue",
	"create_contact":        "I'll create a new contact",
	"create_deal":           "I'll create a new deal",
	"create_association":    "then link them together",
	"update_contact":        "I'll update the contact information",
	"search_contacts":       "I'll search for contacts",
	"send_email":            "I'll send an email",
}

// promptFor builds the question for one missing variable. Enum variables
// without a canned prompt list their allowed values.
func promptFor(spec *catalog.VariableSpec) string {
	if p, ok := varPrompts[spec.Name]; ok {
		return p
	}
	name := strings.ReplaceAll(spec.Name, "_", " ")
	if spec.Type == catalog.TypeEnum {
		return fmt.Sprintf("What %s should I use? (%s)", name, strings.Join(spec.Enum, ", "))
	}
	return fmt.Sprintf("What %s should I use?", name)
}

// Question assembles the full follow-up message for a set of gaps: the
// per-variable questions, numbered when there are several, plus a line
// explaining what will happen once the answers arrive.
func Question(gaps []Gap, def *catalog.IntentDefinition) string {
	if len(gaps) == 0 {
		return ""
	}

	var sb strings.Builder
	switch len(gaps) {
	case 1:
		sb.WriteString(gaps[0].Prompt)
	case 2:
		fmt.Fprintf(&sb, "I need two things:\n1. %s\n2. %s", gaps[0].Prompt, gaps[1].Prompt)
	default:
		sb.WriteString("I need several things:")
		for i, g := range gaps {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, g.Prompt)
		}
	}

	if ctx := planContext(def); ctx != "" {
		sb.WriteString("\n\nWhat I'll do: ")
		sb.WriteString(ctx)
	}
	return sb.String()
}

// planContext narrates the intent's tool plan from the known-tool table.
func planContext(def *catalog.IntentDefinition) string {
	if def == nil {
		return ""
	}
	var parts []string
	for _, step := range def.Steps {
		desc, ok := toolContexts[step.Tool]
		if !ok {
			continue
		}
		if len(parts) > 0 && !strings.HasPrefix(desc, "then ") {
			desc = "and " + desc
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, " ")
}

// ExampleHint renders the intent's first example with placeholders
// elided, as a "try something like" suggestion.
func ExampleHint(def *catalog.IntentDefinition) string {
	if def == nil || len(def.Examples) == 0 {
		return ""
	}
	hint := placeholderRe.ReplaceAllString(def.Examples[0], "...")
	return fmt.Sprintf("Try something like: '%s'", hint)
}
