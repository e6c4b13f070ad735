// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(dot(v, v)-1.0) > 1e-6 {
		t.Errorf("normalized vector has norm² %f, want 1", dot(v, v))
	}

	zero := Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 {
			t.Fatal("zero vector must pass through Normalize unchanged")
		}
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder()
	ctx := context.Background()

	a1, err := h.Embed(ctx, "move PROJ-123 to done")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	a2, _ := h.Embed(ctx, "move PROJ-123 to done")
	if math.Abs(dot(a1, a2)-1.0) > 1e-6 {
		t.Errorf("identical texts: similarity = %f, want 1.0", dot(a1, a2))
	}

	b, _ := h.Embed(ctx, "quarterly revenue forecast for enterprise pipeline")
	if sim := dot(a1, b); sim > 0.5 {
		t.Errorf("disjoint texts: similarity = %f, want low", sim)
	}

	overlap, _ := h.Embed(ctx, "move PROJ-123 to in progress")
	if dot(a1, overlap) <= dot(a1, b) {
		t.Error("overlapping text should score above disjoint text")
	}

	if h.Dimensions() != hashEmbedderDimensions {
		t.Errorf("Dimensions() = %d", h.Dimensions())
	}
}

func TestHashEmbedderBatchOrder(t *testing.T) {
	h := NewHashEmbedder()
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := h.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("EmbedBatch() returned %d vectors", len(batch))
	}
	for i, text := range texts {
		single, _ := h.Embed(context.Background(), text)
		if math.Abs(dot(batch[i], single)-1.0) > 1e-6 {
			t.Errorf("batch[%d] differs from single embed of %q", i, text)
		}
	}
}

func TestOpenAIEmbedderBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		// Deliberately reversed order; the client must sort by index.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[2,0,0]}
		]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	e, err := NewOpenAIEmbedder(nil, WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder() error = %v", err)
	}

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not reordered by index and normalized: %v", vecs)
	}
}

func TestOpenAIEmbedderErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		if _, err := NewOpenAIEmbedder(nil); err == nil {
			t.Fatal("NewOpenAIEmbedder() error = nil, want error")
		}
	})

	t.Run("server error maps to ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
		}))
		defer srv.Close()

		e, _ := NewOpenAIEmbedder(nil, WithEndpoint(srv.URL))
		_, err := e.Embed(context.Background(), "query")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("client error keeps API message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()

		e, _ := NewOpenAIEmbedder(nil, WithEndpoint(srv.URL))
		_, err := e.Embed(context.Background(), "query")
		if err == nil || errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want non-unavailable API error", err)
		}
	})

	t.Run("connection refused maps to ErrUnavailable", func(t *testing.T) {
		e, _ := NewOpenAIEmbedder(nil, WithEndpoint("http://127.0.0.1:1/v1/embeddings"))
		_, err := e.Embed(context.Background(), "query")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want ErrUnavailable", err)
		}
	})
}
