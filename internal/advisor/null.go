package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/marcus-ai/marcus/internal/store"
	"github.com/marcus-ai/marcus/internal/stringutils"
)

// NullAdvisor builds deterministic, template-based guidance with no
// external dependency. It is always available: used directly when
// ai.enabled=false, and as the fallback when an HTTPAdvisor call times out
// or credentials are absent (spec.md §4.6).
type NullAdvisor struct{}

// NewNullAdvisor returns the zero-config fallback advisor.
func NewNullAdvisor() *NullAdvisor { return &NullAdvisor{} }

// GenerateTaskInstructions builds instructions from the task's own name,
// description, and labels — no guessing beyond what's already recorded.
func (NullAdvisor) GenerateTaskInstructions(_ context.Context, tc TaskContext) (string, error) {
	if tc.Task == nil {
		return "", fmt.Errorf("advisor: task context required")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", tc.Task.Name)
	if tc.Task.Description != "" {
		fmt.Fprintf(&sb, "%s\n", tc.Task.Description)
	}
	if len(tc.Task.Labels) > 0 {
		labels := make([]string, 0, len(tc.Task.Labels))
		for l := range tc.Task.Labels {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(labels, ", "))
	}
	if len(tc.Task.Requirements) > 0 {
		sb.WriteString("Acceptance criteria:\n")
		for _, r := range tc.Task.Requirements {
			fmt.Fprintf(&sb, "- %s\n", r.Text)
		}
	}
	fmt.Fprintf(&sb, "Priority: %s\n", tc.Task.Priority)
	return sb.String(), nil
}

// SuggestBlockerResolutions returns a small fixed set of generic next
// steps; it has no model to reason from beyond the blocker's own text.
func (NullAdvisor) SuggestBlockerResolutions(_ context.Context, bc BlockerContext) ([]string, error) {
	if bc.Blocker == nil {
		return nil, fmt.Errorf("advisor: blocker context required")
	}
	suggestions := []string{
		"Re-check the task's dependencies for an undeclared prerequisite.",
		"Escalate to a human reviewer if the blocker persists past one retry.",
	}
	if bc.Task != nil && len(bc.Task.Dependencies) > 0 {
		suggestions = append([]string{"Verify all declared dependencies are actually DONE."}, suggestions...)
	}
	return suggestions, nil
}

// ClassifyTaskType is unimplemented for the null advisor; callers treat
// an empty string as "unclassified".
func (NullAdvisor) ClassifyTaskType(_ context.Context, _ *store.Task) (string, error) {
	return "", nil
}

// splitLines breaks a description into non-empty lines, treating each
// one as a candidate task. A description with no line breaks becomes a
// single task.
func splitLines(description string) []string {
	var out []string
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		out = []string{description}
	}
	return out
}

// DecomposeProject has no model to plan with, so it takes the
// description at face value: one task per non-empty line, each
// depending on the one before it. This keeps the generator total (it
// always returns at least one task) without inventing structure the
// caller didn't ask for.
func (NullAdvisor) DecomposeProject(_ context.Context, projectName, description string) ([]TaskSpec, error) {
	if stringutils.IsEmpty(description) {
		return nil, fmt.Errorf("advisor: project description required")
	}
	lines := splitLines(description)
	specs := make([]TaskSpec, len(lines))
	for i, line := range lines {
		spec := TaskSpec{
			Name:        line,
			Description: fmt.Sprintf("Part of %s: %s", projectName, line),
			Priority:    store.PriorityMedium,
		}
		if i > 0 {
			spec.DependsOn = []int{i - 1}
		}
		specs[i] = spec
	}
	return specs, nil
}

// DecomposeFeature is the same line-per-task heuristic as
// DecomposeProject, annotated with the integration point so a human or
// an agent knows where the work plugs in.
func (NullAdvisor) DecomposeFeature(_ context.Context, description, integrationPoint string) ([]TaskSpec, error) {
	if stringutils.IsEmpty(description) {
		return nil, fmt.Errorf("advisor: feature description required")
	}
	lines := splitLines(description)
	specs := make([]TaskSpec, len(lines))
	for i, line := range lines {
		desc := line
		if integrationPoint != "" {
			desc = fmt.Sprintf("%s (integrates with %s)", line, integrationPoint)
		}
		spec := TaskSpec{Name: line, Description: desc, Priority: store.PriorityMedium}
		if i > 0 {
			spec.DependsOn = []int{i - 1}
		}
		specs[i] = spec
	}
	return specs, nil
}
