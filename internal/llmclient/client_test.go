package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hello back", Done: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 0)
	resp, err := c.Generate(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello back" {
		t.Fatalf("got %q, want %q", resp, "hello back")
	}
}

func TestGenerate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 0)
	if _, err := c.Generate(context.Background(), "x", false); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestGenerate_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 0)
	resp, err := c.Generate(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", calls)
	}
	if resp != "ok" {
		t.Fatalf("got %q, want %q", resp, "ok")
	}
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 0)
	if _, err := c.Generate(context.Background(), "x", false); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRateLimitRetries+1 {
		t.Fatalf("expected %d calls, got %d", maxRateLimitRetries+1, calls)
	}
}
