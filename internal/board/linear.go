package board

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// linearPriorityLabels is Linear's explicit label->priority table. Linear
// also has a native numeric priority (0-4) on issues; labels take
// precedence when present, falling back to the numeric field otherwise
// (see mapLinearPriority below).
var linearPriorityLabels = map[string]store.Priority{
	"urgent": store.PriorityUrgent,
	"high":   store.PriorityHigh,
	"medium": store.PriorityMedium,
	"low":    store.PriorityLow,
}

// linearStateNames maps internal statuses to Linear workflow state names.
var linearStateNames = map[store.TaskStatus]string{
	store.StatusTODO:       "Todo",
	store.StatusInProgress: "In Progress",
	store.StatusBlocked:    "Blocked",
	store.StatusDone:       "Done",
}

// LinearProvider adapts marcus to a Linear team's issue tracker over its
// GraphQL API.
type LinearProvider struct {
	http     *httpClient
	teamID   string
	stateIDs map[string]string // state name -> Linear workflow state id
	retryCfg RetryConfig
}

// LinearConfig is the provider_config shape for "provider": "linear".
type LinearConfig struct {
	APIKey   string            `json:"api_key"`
	TeamID   string            `json:"team_id"`
	StateIDs map[string]string `json:"state_ids"` // state name -> id
}

// NewLinearProvider constructs a Linear adapter from config.
func NewLinearProvider(cfg LinearConfig) *LinearProvider {
	return &LinearProvider{
		http:     newHTTPClient("https://api.linear.app", map[string]string{"Authorization": cfg.APIKey}),
		teamID:   cfg.TeamID,
		stateIDs: cfg.StateIDs,
		retryCfg: DefaultRetryConfig,
	}
}

type linearGraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type linearIssue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StateName   string   `json:"stateName"`
	Labels      []string `json:"labels"`
	Priority    int      `json:"priority"` // 0=none 1=urgent 2=high 3=medium 4=low
}

func mapLinearPriority(issue linearIssue) store.Priority {
	for _, l := range issue.Labels {
		if p, ok := linearPriorityLabels[l]; ok {
			return p
		}
	}
	switch issue.Priority {
	case 1:
		return store.PriorityUrgent
	case 2:
		return store.PriorityHigh
	case 3:
		return store.PriorityMedium
	case 4:
		return store.PriorityLow
	default:
		return store.PriorityMedium
	}
}

func (l *LinearProvider) statusForIssue(issue linearIssue) store.TaskStatus {
	for status, name := range linearStateNames {
		if name == issue.StateName {
			return status
		}
	}
	return store.StatusTODO
}

func (l *LinearProvider) toTask(issue linearIssue) *store.Task {
	return &store.Task{
		ID:          issue.ID,
		Name:        issue.Title,
		Description: issue.Description,
		Status:      l.statusForIssue(issue),
		Priority:    mapLinearPriority(issue),
		Labels:      labelSet(issue.Labels),
		UpdatedAt:   time.Now(),
	}
}

// ListAvailableTasks returns issues in the Todo workflow state.
func (l *LinearProvider) ListAvailableTasks(ctx context.Context) ([]*store.Task, error) {
	req := linearGraphQLRequest{
		Query:     linearIssuesQuery,
		Variables: map[string]interface{}{"teamId": l.teamID},
	}
	var resp struct {
		Data struct {
			Team struct {
				Issues struct {
					Nodes []linearIssue `json:"nodes"`
				} `json:"issues"`
			} `json:"team"`
		} `json:"data"`
	}
	err := WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	var out []*store.Task
	for _, issue := range resp.Data.Team.Issues.Nodes {
		if l.statusForIssue(issue) == store.StatusTODO {
			out = append(out, l.toTask(issue))
		}
	}
	return out, nil
}

// ListAllTasks returns every issue on the team, regardless of workflow state.
func (l *LinearProvider) ListAllTasks(ctx context.Context) ([]*store.Task, error) {
	req := linearGraphQLRequest{
		Query:     linearIssuesQuery,
		Variables: map[string]interface{}{"teamId": l.teamID},
	}
	var resp struct {
		Data struct {
			Team struct {
				Issues struct {
					Nodes []linearIssue `json:"nodes"`
				} `json:"issues"`
			} `json:"team"`
		} `json:"data"`
	}
	err := WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Task, 0, len(resp.Data.Team.Issues.Nodes))
	for _, issue := range resp.Data.Team.Issues.Nodes {
		out = append(out, l.toTask(issue))
	}
	return out, nil
}

// CreateTask creates a new issue in the Todo state.
func (l *LinearProvider) CreateTask(ctx context.Context, draft TaskDraft) (*store.Task, error) {
	req := linearGraphQLRequest{
		Query: linearCreateIssueMutation,
		Variables: map[string]interface{}{
			"teamId":      l.teamID,
			"title":       draft.Name,
			"description": draft.Description,
			"stateId":     l.stateIDs[linearStateNames[store.StatusTODO]],
		},
	}
	var resp struct {
		Data struct {
			IssueCreate struct {
				Issue linearIssue `json:"issue"`
			} `json:"issueCreate"`
		} `json:"data"`
	}
	err := WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	t := l.toTask(resp.Data.IssueCreate.Issue)
	t.Priority = draft.Priority
	t.EstimatedHours = draft.EstimatedHours
	t.CreatedAt = time.Now()
	return t, nil
}

// UpdateStatus moves the issue to the workflow state mapping to status.
func (l *LinearProvider) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus) error {
	stateID, ok := l.stateIDs[linearStateNames[status]]
	if !ok {
		return &MalformedResponseError{Raw: fmt.Sprintf("no workflow state configured for %s", status)}
	}
	req := linearGraphQLRequest{
		Query:     linearUpdateIssueMutation,
		Variables: map[string]interface{}{"id": taskID, "stateId": stateID},
	}
	return WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// AddComment posts a comment on the issue.
func (l *LinearProvider) AddComment(ctx context.Context, taskID, text string) error {
	req := linearGraphQLRequest{
		Query:     linearCreateCommentMutation,
		Variables: map[string]interface{}{"issueId": taskID, "body": text},
	}
	return WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// SetAssignee assigns the issue to agentID, which is sent unchanged as the
// Linear assigneeId (no user mapping is applied).
func (l *LinearProvider) SetAssignee(ctx context.Context, taskID, agentID string) error {
	req := linearGraphQLRequest{
		Query:     linearUpdateIssueAssigneeMutation,
		Variables: map[string]interface{}{"id": taskID, "assigneeId": agentID},
	}
	return WithRetry(ctx, l.retryCfg, func() error {
		return l.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// GetBoardSummary returns the count of available (Todo) issues.
func (l *LinearProvider) GetBoardSummary(ctx context.Context) (BoardSummary, error) {
	tasks, err := l.ListAvailableTasks(ctx)
	if err != nil {
		return BoardSummary{}, err
	}
	return BoardSummary{Counts: map[string]int{"available": len(tasks)}}, nil
}

const linearIssuesQuery = `query($teamId: String!) { team(id: $teamId) { issues(first: 100) { nodes { id title description priority } } } }`
const linearCreateIssueMutation = `mutation($teamId: String!, $title: String!, $description: String!, $stateId: String!) { issueCreate(input: {teamId: $teamId, title: $title, description: $description, stateId: $stateId}) { issue { id title description priority } } }`
const linearUpdateIssueMutation = `mutation($id: String!, $stateId: String!) { issueUpdate(id: $id, input: {stateId: $stateId}) { success } }`
const linearCreateCommentMutation = `mutation($issueId: String!, $body: String!) { commentCreate(input: {issueId: $issueId, body: $body}) { success } }`
const linearUpdateIssueAssigneeMutation = `mutation($id: String!, $assigneeId: String!) { issueUpdate(id: $id, input: {assigneeId: $assigneeId}) { success } }`
