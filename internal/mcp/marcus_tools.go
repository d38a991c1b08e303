package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/assignment"
	"github.com/marcus-ai/marcus/internal/monitor"
	"github.com/marcus-ai/marcus/internal/progress"
	"github.com/marcus-ai/marcus/internal/project"
	"github.com/marcus-ai/marcus/internal/store"
)

// DefaultToolDeadline is the per-call deadline applied when the caller
// doesn't override it (spec.md §4.9, tool_dispatcher.deadline_ms).
const DefaultToolDeadline = 30 * time.Second

// Dependencies bundles the already-constructed core components a tool
// call dispatches into. Every field must be non-nil except Generator,
// which is nil when no board provider (and therefore no project
// generation) is configured.
type Dependencies struct {
	Store     *store.Store
	Engine    *assignment.Engine
	Progress  *progress.Handler
	Monitor   *monitor.Monitor
	Generator *project.Generator
	Deadline  time.Duration
}

// timeoutResult is returned by a tool call that did not finish within
// its deadline. The underlying call is never canceled: it keeps running
// and its effects land through the normal store/board paths, tolerated
// by idempotency and reconciliation (spec.md §4.9, §4.10).
type timeoutResult struct {
	Timeout bool `json:"timeout"`
}

// withDeadline runs fn in its own goroutine and returns its result if it
// finishes before deadline, or timeoutResult otherwise. fn's context is
// NOT canceled on timeout: the call is meant to complete on its own.
func withDeadline(deadline time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if deadline <= 0 {
		deadline = DefaultToolDeadline
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	done := make(chan struct{})
	var result interface{}
	var err error
	go func() {
		defer close(done)
		result, err = fn(ctx)
	}()
	select {
	case <-done:
		cancel()
		return result, err
	case <-ctx.Done():
		cancel()
		return timeoutResult{Timeout: true}, nil
	}
}

func requiredString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(params map[string]interface{}, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringSlice(params map[string]interface{}, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func intParam(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// RegisterMarcusTools registers the eight tools in spec.md §4.9's table.
// This replaces the teacher's RegisterDefaultTools (WezTerm pane control
// and Captain context sync), which has no counterpart in marcus's
// coordination domain — see DESIGN.md for that deletion's justification.
func RegisterMarcusTools(s *Server, deps Dependencies) {
	s.RegisterTool(ToolDefinition{
		Name:        "register_agent",
		Description: "Create or update an agent's registration",
		Parameters: map[string]ParameterDef{
			"agent_id": {Type: "string", Description: "unique agent identifier", Required: true},
			"name":     {Type: "string", Description: "display name", Required: true},
			"role":     {Type: "string", Description: "role label", Required: true},
			"skills":   {Type: "array", Description: "skill labels"},
			"capacity": {Type: "integer", Description: "max concurrent tasks"},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				agentID, err := requiredString(params, "agent_id")
				if err != nil {
					return nil, err
				}
				name, err := requiredString(params, "name")
				if err != nil {
					return nil, err
				}
				role, err := requiredString(params, "role")
				if err != nil {
					return nil, err
				}
				capacity := intParam(params, "capacity", 1)

				existing, err := deps.Store.GetAgent(agentID)
				currentTasks := map[string]struct{}{}
				if err == nil {
					currentTasks = existing.CurrentTasks
				}
				agent := &store.Agent{
					ID:           agentID,
					Name:         name,
					Role:         role,
					Skills:       stringSlice(params, "skills"),
					Capacity:     capacity,
					CurrentTasks: currentTasks,
				}
				if err := deps.Store.UpsertAgent(agent); err != nil {
					return nil, err
				}
				return map[string]interface{}{"success": true, "agent_id": agentID}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "request_next_task",
		Description: "Request the next task assignment for an agent",
		Parameters: map[string]ParameterDef{
			"agent_id": {Type: "string", Description: "unique agent identifier", Required: true},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				agentID, err := requiredString(params, "agent_id")
				if err != nil {
					return nil, err
				}
				assigned, err := deps.Engine.RequestNextTask(ctx, agentID)
				if err != nil {
					if _, ok := err.(*assignment.ErrNoTaskAvailable); ok {
						return map[string]interface{}{"has_task": false}, nil
					}
					return nil, err
				}
				t, err := deps.Store.GetTask(assigned.TaskID)
				if err != nil {
					return nil, err
				}
				taskResult := map[string]interface{}{
					"id":              t.ID,
					"name":            t.Name,
					"description":     t.Description,
					"priority":        string(t.Priority),
					"estimated_hours": t.EstimatedHours,
					"instructions":    assigned.Instructions,
				}
				if assigned.Deadline != nil {
					taskResult["deadline"] = assigned.Deadline.UTC().Format(time.RFC3339)
				}
				return map[string]interface{}{"has_task": true, "task": taskResult}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "report_task_progress",
		Description: "Report progress on an assigned task",
		Parameters: map[string]ParameterDef{
			"agent_id": {Type: "string", Description: "unique agent identifier", Required: true},
			"task_id":  {Type: "string", Description: "task identifier", Required: true},
			"status":   {Type: "string", Description: "in_progress|completed", Required: true},
			"progress": {Type: "number", Description: "percent complete, 0-100", Required: true},
			"message":  {Type: "string", Description: "free-text progress note"},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				agentID, err := requiredString(params, "agent_id")
				if err != nil {
					return nil, err
				}
				taskID, err := requiredString(params, "task_id")
				if err != nil {
					return nil, err
				}
				status, err := requiredString(params, "status")
				if err != nil {
					return nil, err
				}
				percent := floatParam(params, "progress", 0)
				message := optionalString(params, "message")

				if err := deps.Progress.ReportProgress(ctx, agentID, taskID, status, percent, message, nil); err != nil {
					return nil, err
				}
				t, err := deps.Store.GetTask(taskID)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"acknowledged": true, "new_status": string(t.Status)}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "report_blocker",
		Description: "Report a blocker on an assigned task",
		Parameters: map[string]ParameterDef{
			"agent_id":            {Type: "string", Description: "unique agent identifier", Required: true},
			"task_id":             {Type: "string", Description: "task identifier", Required: true},
			"blocker_description": {Type: "string", Description: "what's blocking progress", Required: true},
			"severity":            {Type: "string", Description: "low|medium|high", Required: true},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				agentID, err := requiredString(params, "agent_id")
				if err != nil {
					return nil, err
				}
				taskID, err := requiredString(params, "task_id")
				if err != nil {
					return nil, err
				}
				description, err := requiredString(params, "blocker_description")
				if err != nil {
					return nil, err
				}
				severity, err := requiredString(params, "severity")
				if err != nil {
					return nil, err
				}
				blocker, err := deps.Progress.ReportBlocker(ctx, agentID, taskID, description, severity)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"success":     true,
					"suggestions": blocker.Suggestions,
					"blocker_id":  blocker.ID,
				}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "get_project_status",
		Description: "Get current project status: counts, completion, workload",
		Parameters:  map[string]ParameterDef{},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				view := deps.Monitor.GetProjectStatus(ctx)
				counts := make(map[string]int, len(view.CountsByStatus))
				for status, n := range view.CountsByStatus {
					counts[string(status)] = n
				}
				return map[string]interface{}{
					"counts":               counts,
					"completion_percentage": view.CompletionPct,
					"workers":              view.AgentWorkload,
					"stale_tasks":          view.StaleTasks,
					"blocked_tasks":        view.BlockedTasks,
				}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "create_project_from_description",
		Description: "Decompose a project description into a batch of tasks",
		Parameters: map[string]ParameterDef{
			"description":  {Type: "string", Description: "free-text project description", Required: true},
			"project_name": {Type: "string", Description: "project name", Required: true},
			"options":      {Type: "object", Description: "generator options (unused by the deterministic fallback)"},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				if deps.Generator == nil {
					return nil, fmt.Errorf("create_project_from_description: no project generator configured")
				}
				description, err := requiredString(params, "description")
				if err != nil {
					return nil, err
				}
				projectName, err := requiredString(params, "project_name")
				if err != nil {
					return nil, err
				}
				ids, err := deps.Generator.CreateProject(ctx, projectName, description)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"success": true, "tasks_created": len(ids), "task_ids": ids}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "add_feature",
		Description: "Decompose a feature description into a batch of tasks",
		Parameters: map[string]ParameterDef{
			"description":      {Type: "string", Description: "free-text feature description", Required: true},
			"integration_point": {Type: "string", Description: "where the feature plugs into the existing project"},
		},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				if deps.Generator == nil {
					return nil, fmt.Errorf("add_feature: no project generator configured")
				}
				description, err := requiredString(params, "description")
				if err != nil {
					return nil, err
				}
				integrationPoint := optionalString(params, "integration_point")
				ids, err := deps.Generator.AddFeature(ctx, description, integrationPoint)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"success": true, "tasks_created": len(ids), "task_ids": ids}, nil
			})
		},
	})

	s.RegisterTool(ToolDefinition{
		Name:        "refresh_project_state",
		Description: "Pull reconciliation against the external board",
		Parameters:  map[string]ParameterDef{},
		Handler: func(_ string, params map[string]interface{}) (interface{}, error) {
			return withDeadline(deps.Deadline, func(ctx context.Context) (interface{}, error) {
				if err := deps.Monitor.RefreshFromBoard(ctx); err != nil {
					return nil, err
				}
				return map[string]interface{}{"success": true}, nil
			})
		},
	})
}
