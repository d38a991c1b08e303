package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

func TestHTTPAdvisor_NoCredentialsDegradesToFallback(t *testing.T) {
	a := NewHTTPAdvisor(HTTPAdvisorConfig{BaseURL: "http://unused", TimeoutMs: 100})
	task := &store.Task{ID: "t1", Name: "do the thing"}
	text, err := a.GenerateTaskInstructions(context.Background(), TaskContext{Task: task})
	if err != nil {
		t.Fatalf("expected graceful fallback, got error: %v", err)
	}
	if text == "" {
		t.Error("expected fallback template text")
	}
}

func TestHTTPAdvisor_SuccessfulCallReturnsServerResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "do exactly this"})
	}))
	defer server.Close()

	a := NewHTTPAdvisor(HTTPAdvisorConfig{BaseURL: server.URL, APIKey: "key", TimeoutMs: 2000})
	task := &store.Task{ID: "t1", Name: "do the thing"}
	text, err := a.GenerateTaskInstructions(context.Background(), TaskContext{Task: task})
	if err != nil {
		t.Fatalf("GenerateTaskInstructions: %v", err)
	}
	if text != "do exactly this" {
		t.Errorf("expected server response text, got %q", text)
	}
}

func TestHTTPAdvisor_TimeoutDegradesToFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "too slow"})
	}))
	defer server.Close()

	a := NewHTTPAdvisor(HTTPAdvisorConfig{BaseURL: server.URL, APIKey: "key", TimeoutMs: 5})
	task := &store.Task{ID: "t1", Name: "do the thing"}
	text, err := a.GenerateTaskInstructions(context.Background(), TaskContext{Task: task})
	if err != nil {
		t.Fatalf("expected graceful fallback on timeout, got error: %v", err)
	}
	if text == "too slow" {
		t.Error("expected fallback text, not the slow server's response")
	}
}

func TestHTTPAdvisor_DecomposeProjectUsesServerTasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Tasks: []taskSpecJSON{
			{Name: "t1", Priority: "high"},
			{Name: "t2", Priority: "bogus", DependsOn: []int{0}},
		}})
	}))
	defer server.Close()

	a := NewHTTPAdvisor(HTTPAdvisorConfig{BaseURL: server.URL, APIKey: "key", TimeoutMs: 2000})
	specs, err := a.DecomposeProject(context.Background(), "proj", "anything")
	if err != nil {
		t.Fatalf("DecomposeProject: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(specs))
	}
	if specs[1].Priority != store.PriorityMedium {
		t.Errorf("expected unrecognized priority to fall back to medium, got %q", specs[1].Priority)
	}
}

func TestHTTPAdvisor_DecomposeProjectDegradesOnEmptyTasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{})
	}))
	defer server.Close()

	a := NewHTTPAdvisor(HTTPAdvisorConfig{BaseURL: server.URL, APIKey: "key", TimeoutMs: 2000})
	specs, err := a.DecomposeProject(context.Background(), "proj", "one line only")
	if err != nil {
		t.Fatalf("DecomposeProject: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected fallback to produce 1 task, got %d", len(specs))
	}
}
