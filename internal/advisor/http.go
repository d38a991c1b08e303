package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// HTTPAdvisor calls out to an external completion endpoint, bounded by a
// per-call deadline, falling back to NullAdvisor on any failure or
// timeout — the same degrade-to-heuristic shape as the teacher's Captain,
// which proceeds on plannerAPIKey/plannerURL defaults when the planner
// API is unset or unreachable (internal/captain/captain.go).
type HTTPAdvisor struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	timeout  time.Duration
	fallback *NullAdvisor
}

// HTTPAdvisorConfig is the ai.* block of marcus's config file.
type HTTPAdvisorConfig struct {
	BaseURL   string
	APIKey    string
	TimeoutMs int
}

// NewHTTPAdvisor constructs an HTTPAdvisor. Pass an empty APIKey to force
// every call to short-circuit to NullAdvisor (no credentials configured).
func NewHTTPAdvisor(cfg HTTPAdvisorConfig) *HTTPAdvisor {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAdvisor{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		fallback: NewNullAdvisor(),
	}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text        string         `json:"text"`
	Suggestions []string       `json:"suggestions"`
	Tasks       []taskSpecJSON `json:"tasks"`
}

// taskSpecJSON mirrors TaskSpec for wire decoding; the completion
// endpoint is expected to reply with a "tasks" array when the prompt
// asks for a decomposition.
type taskSpecJSON struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Labels         []string `json:"labels"`
	Priority       string   `json:"priority"`
	EstimatedHours float64  `json:"estimated_hours"`
	DependsOn      []int    `json:"depends_on"`
}

func (h *HTTPAdvisor) call(ctx context.Context, prompt string) (*completionResponse, error) {
	if h.apiKey == "" {
		return nil, fmt.Errorf("advisor: no credentials configured")
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("advisor: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", h.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("advisor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisor: call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("advisor: status %d", resp.StatusCode)
	}
	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("advisor: decode response: %w", err)
	}
	return &out, nil
}

// GenerateTaskInstructions attempts the HTTP call and degrades to
// NullAdvisor's template on any error, including a deadline exceeded.
func (h *HTTPAdvisor) GenerateTaskInstructions(ctx context.Context, tc TaskContext) (string, error) {
	prompt := fmt.Sprintf("Generate assignment instructions for task %q: %s", tc.Task.Name, tc.Task.Description)
	resp, err := h.call(ctx, prompt)
	if err != nil {
		log.Printf("[ADVISOR] generate_instructions degraded to fallback: %v", err)
		return h.fallback.GenerateTaskInstructions(ctx, tc)
	}
	return resp.Text, nil
}

// SuggestBlockerResolutions attempts the HTTP call and degrades to
// NullAdvisor's fixed suggestion list on any error.
func (h *HTTPAdvisor) SuggestBlockerResolutions(ctx context.Context, bc BlockerContext) ([]string, error) {
	prompt := fmt.Sprintf("Suggest resolutions for blocker on task %q: %s", bc.Task.Name, bc.Blocker.Description)
	resp, err := h.call(ctx, prompt)
	if err != nil {
		log.Printf("[ADVISOR] suggest_resolutions degraded to fallback: %v", err)
		return h.fallback.SuggestBlockerResolutions(ctx, bc)
	}
	return resp.Suggestions, nil
}

// ClassifyTaskType attempts the HTTP call and degrades to "" on any error.
func (h *HTTPAdvisor) ClassifyTaskType(ctx context.Context, t *store.Task) (string, error) {
	prompt := fmt.Sprintf("Classify task type for %q: %s", t.Name, t.Description)
	resp, err := h.call(ctx, prompt)
	if err != nil {
		log.Printf("[ADVISOR] classify_task_type degraded to fallback: %v", err)
		return "", nil
	}
	return resp.Text, nil
}

func toTaskSpecs(in []taskSpecJSON) []TaskSpec {
	out := make([]TaskSpec, len(in))
	for i, t := range in {
		priority := store.Priority(t.Priority)
		switch priority {
		case store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent:
		default:
			priority = store.PriorityMedium
		}
		out[i] = TaskSpec{
			Name:           t.Name,
			Description:    t.Description,
			Labels:         t.Labels,
			Priority:       priority,
			EstimatedHours: t.EstimatedHours,
			DependsOn:      t.DependsOn,
		}
	}
	return out
}

// DecomposeProject attempts the HTTP call and degrades to NullAdvisor's
// line-per-task heuristic on any error or an empty "tasks" array.
func (h *HTTPAdvisor) DecomposeProject(ctx context.Context, projectName, description string) ([]TaskSpec, error) {
	prompt := fmt.Sprintf("Decompose project %q into tasks: %s", projectName, description)
	resp, err := h.call(ctx, prompt)
	if err != nil || len(resp.Tasks) == 0 {
		if err != nil {
			log.Printf("[ADVISOR] decompose_project degraded to fallback: %v", err)
		}
		return h.fallback.DecomposeProject(ctx, projectName, description)
	}
	return toTaskSpecs(resp.Tasks), nil
}

// DecomposeFeature attempts the HTTP call and degrades to NullAdvisor's
// line-per-task heuristic on any error or an empty "tasks" array.
func (h *HTTPAdvisor) DecomposeFeature(ctx context.Context, description, integrationPoint string) ([]TaskSpec, error) {
	prompt := fmt.Sprintf("Decompose feature into tasks (integration point %q): %s", integrationPoint, description)
	resp, err := h.call(ctx, prompt)
	if err != nil || len(resp.Tasks) == 0 {
		if err != nil {
			log.Printf("[ADVISOR] decompose_feature degraded to fallback: %v", err)
		}
		return h.fallback.DecomposeFeature(ctx, description, integrationPoint)
	}
	return toTaskSpecs(resp.Tasks), nil
}
