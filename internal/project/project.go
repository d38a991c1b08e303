// Package project implements the batch task creation behind
// create_project_from_description and add_feature (spec.md §4.9): an
// Advisor decomposes a free-text description into a list of TaskSpecs,
// each is created on the external board, and the resulting ids are
// resolved back into the TaskSpecs' batch-local dependency indices
// before the batch is upserted into the Task Store. Grounded on
// board.TaskDraft's documented batch-local-index convention
// (internal/board/provider.go).
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

// Generator creates batches of tasks from natural-language descriptions.
type Generator struct {
	store    *store.Store
	provider board.Provider
	adv      advisor.Advisor
	events   *eventlog.Log
}

// New constructs a Generator. provider may be nil: tasks are then kept
// internal-only (no board mirror), which is still useful for tests and
// for providers configured with require_provider_on_start=false.
func New(s *store.Store, provider board.Provider, adv advisor.Advisor, events *eventlog.Log) *Generator {
	return &Generator{store: s, provider: provider, adv: adv, events: events}
}

// CreateProject decomposes description into tasks via the Advisor,
// creates each on the board (if configured), and upserts the batch into
// the Task Store with dependencies resolved to real ids.
func (g *Generator) CreateProject(ctx context.Context, projectName, description string) ([]string, error) {
	specs, err := g.adv.DecomposeProject(ctx, projectName, description)
	if err != nil {
		return nil, fmt.Errorf("project: decompose: %w", err)
	}
	return g.createBatch(ctx, specs)
}

// AddFeature decomposes description into tasks anchored at
// integrationPoint and creates the batch the same way as CreateProject.
func (g *Generator) AddFeature(ctx context.Context, description, integrationPoint string) ([]string, error) {
	specs, err := g.adv.DecomposeFeature(ctx, description, integrationPoint)
	if err != nil {
		return nil, fmt.Errorf("project: decompose: %w", err)
	}
	return g.createBatch(ctx, specs)
}

func (g *Generator) createBatch(ctx context.Context, specs []advisor.TaskSpec) ([]string, error) {
	ids := make([]string, len(specs))
	for i, spec := range specs {
		if g.provider == nil {
			ids[i] = fmt.Sprintf("local-%d-%d", time.Now().UnixNano(), i)
			continue
		}
		draft := board.TaskDraft{
			Name:           spec.Name,
			Description:    spec.Description,
			Labels:         spec.Labels,
			Priority:       spec.Priority,
			EstimatedHours: spec.EstimatedHours,
		}
		created, err := g.provider.CreateTask(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("project: create task %d on board: %w", i, err)
		}
		ids[i] = created.ID
	}

	for i, spec := range specs {
		deps := make(map[string]struct{}, len(spec.DependsOn))
		for _, idx := range spec.DependsOn {
			if idx < 0 || idx >= len(ids) || idx == i {
				continue
			}
			deps[ids[idx]] = struct{}{}
		}
		labelSet := make(map[string]struct{}, len(spec.Labels))
		for _, l := range spec.Labels {
			labelSet[l] = struct{}{}
		}
		task := &store.Task{
			ID:             ids[i],
			Name:           spec.Name,
			Description:    spec.Description,
			Status:         store.StatusTODO,
			Priority:       spec.Priority,
			Labels:         labelSet,
			EstimatedHours: spec.EstimatedHours,
			Dependencies:   deps,
		}
		if err := g.store.UpsertTask(task); err != nil {
			return nil, fmt.Errorf("project: upsert task %d: %w", i, err)
		}
		if g.events != nil {
			g.events.Emit(eventlog.Event{Type: eventlog.EventTaskCreated, TaskID: ids[i], Message: fmt.Sprintf("created from batch generation: %s", spec.Name)})
		}
	}
	return ids, nil
}
