package advisor

import (
	"context"
	"strings"
	"testing"

	"github.com/marcus-ai/marcus/internal/store"
)

func TestNullAdvisor_GenerateTaskInstructionsIncludesTaskFields(t *testing.T) {
	a := NewNullAdvisor()
	task := &store.Task{
		ID:          "t1",
		Name:        "fix the flaky test",
		Description: "the retry loop never terminates",
		Priority:    store.PriorityHigh,
		Labels:      map[string]struct{}{"testing": {}},
	}
	text, err := a.GenerateTaskInstructions(context.Background(), TaskContext{Task: task})
	if err != nil {
		t.Fatalf("GenerateTaskInstructions: %v", err)
	}
	if !strings.Contains(text, task.Name) {
		t.Errorf("expected instructions to mention task name, got %q", text)
	}
	if !strings.Contains(text, "testing") {
		t.Errorf("expected instructions to mention labels, got %q", text)
	}
}

func TestNullAdvisor_GenerateTaskInstructionsRequiresTask(t *testing.T) {
	a := NewNullAdvisor()
	if _, err := a.GenerateTaskInstructions(context.Background(), TaskContext{}); err == nil {
		t.Fatal("expected error when task is nil")
	}
}

func TestNullAdvisor_SuggestBlockerResolutionsMentionsDependencies(t *testing.T) {
	a := NewNullAdvisor()
	task := &store.Task{ID: "t1", Dependencies: map[string]struct{}{"t0": {}}}
	blocker := &store.Blocker{TaskID: "t1", Description: "waiting on t0"}
	suggestions, err := a.SuggestBlockerResolutions(context.Background(), BlockerContext{Task: task, Blocker: blocker})
	if err != nil {
		t.Fatalf("SuggestBlockerResolutions: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion")
	}
}

func TestNullAdvisor_ClassifyTaskTypeReturnsEmpty(t *testing.T) {
	a := NewNullAdvisor()
	kind, err := a.ClassifyTaskType(context.Background(), &store.Task{ID: "t1"})
	if err != nil {
		t.Fatalf("ClassifyTaskType: %v", err)
	}
	if kind != "" {
		t.Errorf("expected empty classification, got %q", kind)
	}
}

func TestNullAdvisor_DecomposeProjectOneTaskPerLineChained(t *testing.T) {
	a := NewNullAdvisor()
	specs, err := a.DecomposeProject(context.Background(), "proj", "set up db\nwire http handlers\nwrite tests")
	if err != nil {
		t.Fatalf("DecomposeProject: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(specs))
	}
	if len(specs[0].DependsOn) != 0 {
		t.Errorf("expected first task to have no dependency, got %v", specs[0].DependsOn)
	}
	if len(specs[2].DependsOn) != 1 || specs[2].DependsOn[0] != 1 {
		t.Errorf("expected third task to depend on second, got %v", specs[2].DependsOn)
	}
}

func TestNullAdvisor_DecomposeProjectRejectsEmptyDescription(t *testing.T) {
	a := NewNullAdvisor()
	if _, err := a.DecomposeProject(context.Background(), "proj", "   "); err == nil {
		t.Fatal("expected error for empty description")
	}
}

func TestNullAdvisor_DecomposeFeatureAnnotatesIntegrationPoint(t *testing.T) {
	a := NewNullAdvisor()
	specs, err := a.DecomposeFeature(context.Background(), "add retry logic", "internal/board")
	if err != nil {
		t.Fatalf("DecomposeFeature: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 task, got %d", len(specs))
	}
	if !strings.Contains(specs[0].Description, "internal/board") {
		t.Errorf("expected description to mention integration point, got %q", specs[0].Description)
	}
}
