// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vecindex

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
	"github.com/AleutianAI/IntentBridge/services/dispatch/storage/badgerdb"
)

const builderYAML = `
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

- intent: create_contact
  description: Create a HubSpot contact
  examples:
    - "add {email} as a contact"
  variables:
    - name: email
      required: true
  tool_plan:
    - tool: create_contact
      params:
        email: "$email"
`

func builderCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse("jira", []byte(builderYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cat
}

func TestBuildInMemory(t *testing.T) {
	cat := builderCatalog(t)
	b := NewBuilder(embed.NewHashEmbedder(), nil, nil)

	ix, err := b.Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (one per example)", ix.Len())
	}

	// Entry order follows catalog order.
	entries := ix.Entries()
	if entries[0].Intent != "change_issue_status" || entries[2].Intent != "create_contact" {
		t.Errorf("entries out of catalog order: %v", entries)
	}

	// A near-verbatim query lands on the right example.
	h := embed.NewHashEmbedder()
	qv, _ := h.Embed(context.Background(), "Move a Jira issue to a different workflow status. move PROJ-1 to done")
	hits, err := ix.Search(qv, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits[0].Entry.Intent != "change_issue_status" {
		t.Errorf("top hit = %q", hits[0].Entry.Intent)
	}
}

func TestBuildUsesStore(t *testing.T) {
	db, err := badgerdb.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	cat := builderCatalog(t)
	store := NewBadgerIndexStore(db, 0, nil)

	first := NewBuilder(embed.NewHashEmbedder(), store, nil)
	ix1, err := first.Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	// Second build must come from the store: give it an embedder that
	// fails if asked to embed anything.
	second := NewBuilder(&failingEmbedder{}, store, nil)
	ix2, err := second.Build(context.Background(), cat)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if ix2.Len() != ix1.Len() || ix2.Dims() != ix1.Dims() {
		t.Errorf("restored index differs: len %d vs %d", ix2.Len(), ix1.Len())
	}
}

func TestBuildFailsWhenEmbedderFails(t *testing.T) {
	cat := builderCatalog(t)
	b := NewBuilder(&failingEmbedder{}, nil, nil)

	_, err := b.Build(context.Background(), cat)
	if !errors.Is(err, embed.ErrUnavailable) {
		t.Errorf("Build() error = %v, want ErrUnavailable", err)
	}
}

// failingEmbedder simulates a dead embedding backend. Its Model matches
// the hash embedder so corpus hashes line up in store tests.
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embed.ErrUnavailable
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embed.ErrUnavailable
}

func (f *failingEmbedder) Dimensions() int { return 64 }

func (f *failingEmbedder) Model() string { return embed.NewHashEmbedder().Model() }
