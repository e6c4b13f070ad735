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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPatternExtractor(t *testing.T) {
	p := NewPatternExtractor()
	ctx := context.Background()

	tests := []struct {
		name   string
		text   string
		needed []string
		want   Extracted
	}{
		{
			name:   "issue key and status",
			text:   "move PROJ-123 to in progress",
			needed: []string{"issue_key", "status"},
			want:   Extracted{"issue_key": "PROJ-123", "status": "In Progress"},
		},
		{
			name:   "email",
			text:   "add jane.doe@example.com as a contact",
			needed: []string{"email"},
			want:   Extracted{"email": "jane.doe@example.com"},
		},
		{
			name:   "amount strips dollar sign",
			text:   "create a deal worth $50,000",
			needed: []string{"amount"},
			want:   Extracted{"amount": "50,000"},
		},
		{
			name:   "priority normalized",
			text:   "make it critical priority",
			needed: []string{"priority"},
			want:   Extracted{"priority": "High"},
		},
		{
			name:   "quoted summary",
			text:   `create a bug titled "login broken"`,
			needed: []string{"summary"},
			want:   Extracted{"summary": "login broken"},
		},
		{
			name:   "nothing found",
			text:   "do the thing",
			needed: []string{"issue_key", "email"},
			want:   Extracted{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Extract(ctx, tt.text, tt.needed, nil)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Extract()[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestCleanValue(t *testing.T) {
	tests := []struct {
		variable string
		in       string
		want     string
		ok       bool
	}{
		{"issue_key", "proj-42", "PROJ-42", true},
		{"issue_key", "not a key", "", false},
		{"email", "user@example.com", "user@example.com", true},
		{"email", "not-an-email", "", false},
		{"project", "proj", "", false}, // lowercase first letter fails the shape check
		{"project", "Proj", "PROJ", true},
		{"priority", "urgent", "High", true},
		{"priority", "Bespoke", "Bespoke", true}, // unknown values pass through
		{"status", "completed", "Done", true},
		{"status", "  done  ", "Done", true},
		{"summary", "null", "", false},
		{"summary", "  ", "", false},
		{"comment", "None", "", false},
	}

	for _, tt := range tests {
		got, ok := cleanValue(tt.variable, tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("cleanValue(%s, %q) = (%q, %v), want (%q, %v)",
				tt.variable, tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractedMergeKeepsExisting(t *testing.T) {
	base := Extracted{"issue_key": "PROJ-1"}
	base.Merge(Extracted{"issue_key": "OTHER-9", "status": "Done"})

	if base["issue_key"] != "PROJ-1" {
		t.Errorf("Merge overwrote existing value: %v", base)
	}
	if base["status"] != "Done" {
		t.Errorf("Merge dropped new value: %v", base)
	}
}

func TestOpenAIExtractorParsesWrappedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Model wraps its JSON in prose; the brace scan must recover it.
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant",
			"content":"Here you go:\n{\"issue_key\": \"proj-7\", \"status\": \"done\", \"assignee\": null}"}}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIExtractorWithConfig("test-key", "gpt-4o-mini", srv.URL, nil)
	got, err := e.Extract(context.Background(), "move proj-7 to done",
		[]string{"issue_key", "status", "assignee"}, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got["issue_key"] != "PROJ-7" {
		t.Errorf("issue_key = %q, want PROJ-7 (uppercased)", got["issue_key"])
	}
	if got["status"] != "Done" {
		t.Errorf("status = %q, want Done (normalized)", got["status"])
	}
	if _, found := got["assignee"]; found {
		t.Error("null value must not be extracted")
	}
}

func TestOpenAIExtractorFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIExtractorWithConfig("test-key", "gpt-4o-mini", srv.URL, nil)
	got, err := e.Extract(context.Background(), "close ticket ABC-99",
		[]string{"issue_key"}, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v, want pattern fallback", err)
	}
	if got["issue_key"] != "ABC-99" {
		t.Errorf("fallback extraction = %v", got)
	}
}

func TestBuildExtractionPromptShape(t *testing.T) {
	prompt := buildExtractionPrompt("move X to done", []string{"issue_key", "status"}, nil)
	for _, want := range []string{"issue_key: PROJ-123", "status: In Progress", "Return JSON only:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
