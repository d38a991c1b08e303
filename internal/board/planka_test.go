package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcus-ai/marcus/internal/store"
)

func newTestPlankaProvider(t *testing.T, handler http.HandlerFunc) *PlankaProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPlankaProvider(PlankaConfig{
		BaseURL: server.URL,
		Token:   "token",
		BoardID: "board-1",
		ListIDs: map[string]string{
			"To Do":       "list-todo",
			"In Progress": "list-doing",
			"Blocked":     "list-blocked",
			"Done":        "list-done",
		},
	})
}

func TestPlankaProvider_ListAvailableTasksFiltersToTodoList(t *testing.T) {
	p := newTestPlankaProvider(t, func(w http.ResponseWriter, r *http.Request) {
		cards := []plankaCard{
			{ID: "c1", Name: "first", ListID: "list-todo", Labels: []string{"High"}},
			{ID: "c2", Name: "second", ListID: "list-doing"},
		}
		_ = json.NewEncoder(w).Encode(cards)
	})
	tasks, err := p.ListAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("ListAvailableTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "c1" {
		t.Fatalf("expected only the TODO card, got %+v", tasks)
	}
	if tasks[0].Priority != store.PriorityHigh {
		t.Errorf("expected HIGH priority from 'High' label, got %s", tasks[0].Priority)
	}
}

func TestPlankaProvider_UpdateStatusRejectsUnconfiguredList(t *testing.T) {
	p := NewPlankaProvider(PlankaConfig{BaseURL: "http://unused", ListIDs: map[string]string{}})
	err := p.UpdateStatus(context.Background(), "c1", store.StatusDone)
	if err == nil {
		t.Fatal("expected error when no list is configured for the target status")
	}
}

func TestPlankaProvider_UpdateStatusPatchesCard(t *testing.T) {
	var gotMethod, gotPath string
	p := newTestPlankaProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	if err := p.UpdateStatus(context.Background(), "c1", store.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("expected PATCH, got %s", gotMethod)
	}
	if gotPath != "/api/cards/c1" {
		t.Errorf("expected /api/cards/c1, got %s", gotPath)
	}
}

func TestPlankaProvider_NotFoundMapsToNotFoundError(t *testing.T) {
	p := newTestPlankaProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := p.AddComment(context.Background(), "missing-card", "hi")
	var nf *NotFoundError
	if !asType(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func asType(err error, target **NotFoundError) bool {
	if e, ok := err.(*NotFoundError); ok {
		*target = e
		return true
	}
	return false
}
