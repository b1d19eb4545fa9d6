package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitPrompt(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"prompt_id":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, time.Second)
	id, err := c.SubmitPrompt(context.Background(), map[string]any{"1": map[string]any{"class_type": "KSampler"}})
	if err != nil {
		t.Fatalf("SubmitPrompt: %v", err)
	}
	if id != "abc" {
		t.Fatalf("expected prompt id abc, got %q", id)
	}
	if _, ok := gotBody["prompt"]; !ok {
		t.Fatalf("expected graph wrapped under prompt key, got %v", gotBody)
	}
}

func TestSubmitPromptServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, time.Second)
	_, err := c.SubmitPrompt(context.Background(), map[string]any{})
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("expected response body in error, got %q", err.Error())
	}
}

func TestSubmitPromptMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, time.Second)
	if _, err := c.SubmitPrompt(context.Background(), map[string]any{}); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestAwaitWaitsForOutputs(t *testing.T) {
	var polls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/history/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch polls.Add(1) {
		case 1:
			// Handle not yet recorded.
			_, _ = w.Write([]byte(`{}`))
		case 2:
			// Recorded but outputs still empty: keep polling.
			_, _ = w.Write([]byte(`{"abc":{"outputs":{}}}`))
		default:
			_, _ = w.Write([]byte(`{"abc":{"outputs":{"9":{"images":[{"filename":"cat.png"}]}}}}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, 2*time.Second)
	m, err := c.Await(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if n := polls.Load(); n < 3 {
		t.Fatalf("expected at least 3 polls, got %d", n)
	}
	out, ok := m["9"]
	if !ok || len(out.Images) != 1 || out.Images[0].Filename != "cat.png" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestAwaitTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, 100*time.Millisecond)
	_, err := c.Await(context.Background(), "never")
	if !IsJobTimeout(err) {
		t.Fatalf("expected job timeout, got %v", err)
	}
	want := fmt.Sprintf("workflow never did not complete within %s", 100*time.Millisecond)
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestAwaitContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	c := NewClient(srv.URL, 10*time.Millisecond, 5*time.Second)
	if _, err := c.Await(ctx, "abc"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAwaitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, 10*time.Millisecond, time.Second)
	if _, err := c.Await(context.Background(), "abc"); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestAwaitHistoryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10*time.Millisecond, time.Second)
	if _, err := c.Await(context.Background(), "abc"); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
