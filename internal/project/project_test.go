package project

import (
	"context"
	"testing"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

func TestGenerator_CreateProjectNoProviderResolvesDependencies(t *testing.T) {
	s := store.New()
	g := New(s, nil, advisor.NewNullAdvisor(), eventlog.New("TEST", nil, nil))

	ids, err := g.CreateProject(context.Background(), "demo", "set up db\nwire handlers\nwrite tests")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(ids))
	}

	last, err := s.GetTask(ids[2])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if _, ok := last.Dependencies[ids[1]]; !ok {
		t.Errorf("expected task 2 to depend on task 1, got deps %v", last.Dependencies)
	}

	first, err := s.GetTask(ids[0])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(first.Dependencies) != 0 {
		t.Errorf("expected first task to have no dependencies, got %v", first.Dependencies)
	}
}

func TestGenerator_AddFeatureRejectsEmptyDescription(t *testing.T) {
	s := store.New()
	g := New(s, nil, advisor.NewNullAdvisor(), eventlog.New("TEST", nil, nil))
	if _, err := g.AddFeature(context.Background(), "", "internal/board"); err == nil {
		t.Fatal("expected error for empty description")
	}
}
