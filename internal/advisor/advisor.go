// Package advisor implements the AI Advisor (spec.md §4.6): a capability
// interface for generating per-assignment instructions and suggesting
// blocker resolutions, with a deterministic NullAdvisor fallback used
// whenever AI is disabled, unconfigured, or the call times out. The
// interface-over-heuristic shape is generalized from the teacher's
// supervisor.DecisionEngine (internal/supervisor/decision.go), which
// analyzes recon reports and recommends actions without ever assuming an
// LLM backend is reachable.
package advisor

import (
	"context"

	"github.com/marcus-ai/marcus/internal/store"
)

// TaskContext is the data copied out of the Task Store before calling an
// Advisor — advisor calls happen strictly outside the store's critical
// section (spec.md §4.3 step 7, SPEC_FULL.md §6.3).
type TaskContext struct {
	Task  *store.Task
	Agent *store.Agent
}

// BlockerContext is the data copied out for SuggestBlockerResolutions.
type BlockerContext struct {
	Task    *store.Task
	Blocker *store.Blocker
}

// TaskSpec is one task out of a decomposition, before it has a provider
// id. DependsOn indexes are batch-local (position in the returned slice),
// not task ids, mirroring board.TaskDraft.Dependencies' batch-local
// convention: the tool dispatcher resolves both into real ids once every
// draft in the batch exists.
type TaskSpec struct {
	Name           string
	Description    string
	Labels         []string
	Priority       store.Priority
	EstimatedHours float64
	DependsOn      []int
}

// Advisor generates natural-language guidance for agents and decomposes
// project/feature descriptions into tasks. Every method must return
// promptly; callers bound the call with a deadline and fall back to
// NullAdvisor on timeout (spec.md §4.6).
type Advisor interface {
	// GenerateTaskInstructions returns the instructions attached to a
	// fresh Assignment.
	GenerateTaskInstructions(ctx context.Context, tc TaskContext) (string, error)

	// SuggestBlockerResolutions returns candidate next steps for a
	// reported blocker.
	SuggestBlockerResolutions(ctx context.Context, bc BlockerContext) ([]string, error)

	// ClassifyTaskType optionally buckets a task for reporting; advisors
	// that don't implement classification return "" and a nil error.
	ClassifyTaskType(ctx context.Context, t *store.Task) (string, error)

	// DecomposeProject turns a free-text project description into a
	// batch of tasks (create_project_from_description, spec.md §4.9).
	DecomposeProject(ctx context.Context, projectName, description string) ([]TaskSpec, error)

	// DecomposeFeature turns a free-text feature description into a
	// batch of tasks anchored at an existing integration point
	// (add_feature, spec.md §4.9).
	DecomposeFeature(ctx context.Context, description, integrationPoint string) ([]TaskSpec, error)
}
