package board

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// githubPriorityLabels is GitHub Projects' explicit label->priority table.
var githubPriorityLabels = map[string]store.Priority{
	"priority: urgent": store.PriorityUrgent,
	"priority: high":   store.PriorityHigh,
	"priority: medium": store.PriorityMedium,
	"priority: low":    store.PriorityLow,
}

// githubStatusFields maps internal statuses to the single-select
// "Status" field's option names in a GitHub Projects (v2) board.
var githubStatusFields = map[store.TaskStatus]string{
	store.StatusTODO:       "Todo",
	store.StatusInProgress: "In Progress",
	store.StatusBlocked:    "Blocked",
	store.StatusDone:       "Done",
}

// GitHubProjectsProvider adapts marcus to a GitHub Projects (v2) board via
// the GraphQL API, driven through the same doJSON POST helper used by the
// REST adapters (GraphQL requests are themselves just a POST body).
type GitHubProjectsProvider struct {
	http           *httpClient
	projectID      string
	statusFieldID  string
	statusOptionID map[string]string // option name -> GitHub option id
	retryCfg       RetryConfig
}

// GitHubConfig is the provider_config shape for "provider": "github".
type GitHubConfig struct {
	Token          string            `json:"token"`
	ProjectID      string            `json:"project_id"`
	StatusFieldID  string            `json:"status_field_id"`
	StatusOptionID map[string]string `json:"status_option_id"` // option name -> id
}

// NewGitHubProjectsProvider constructs a GitHub Projects adapter from config.
func NewGitHubProjectsProvider(cfg GitHubConfig) *GitHubProjectsProvider {
	return &GitHubProjectsProvider{
		http:           newHTTPClient("https://api.github.com", map[string]string{"Authorization": "Bearer " + cfg.Token}),
		projectID:      cfg.ProjectID,
		statusFieldID:  cfg.StatusFieldID,
		statusOptionID: cfg.StatusOptionID,
		retryCfg:       DefaultRetryConfig,
	}
}

type githubGraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type githubItem struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Status string   `json:"status"`
	Labels []string `json:"labels"`
}

type githubItemsResponse struct {
	Data struct {
		Items []githubItem `json:"items"`
	} `json:"data"`
}

func (g *GitHubProjectsProvider) statusName(status store.TaskStatus) string {
	return githubStatusFields[status]
}

func (g *GitHubProjectsProvider) toTask(it githubItem) *store.Task {
	status := store.StatusTODO
	for s, name := range githubStatusFields {
		if name == it.Status {
			status = s
			break
		}
	}
	return &store.Task{
		ID:          it.ID,
		Name:        it.Title,
		Description: it.Body,
		Status:      status,
		Priority:    mapPriority(it.Labels, githubPriorityLabels),
		Labels:      labelSet(it.Labels),
		UpdatedAt:   time.Now(),
	}
}

// ListAvailableTasks returns project items whose Status option is "Todo".
func (g *GitHubProjectsProvider) ListAvailableTasks(ctx context.Context) ([]*store.Task, error) {
	req := githubGraphQLRequest{
		Query:     projectItemsQuery,
		Variables: map[string]interface{}{"projectId": g.projectID},
	}
	var resp githubItemsResponse
	err := WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	var out []*store.Task
	for _, it := range resp.Data.Items {
		if it.Status == githubStatusFields[store.StatusTODO] {
			out = append(out, g.toTask(it))
		}
	}
	return out, nil
}

// ListAllTasks returns every project item, regardless of Status option.
func (g *GitHubProjectsProvider) ListAllTasks(ctx context.Context) ([]*store.Task, error) {
	req := githubGraphQLRequest{
		Query:     projectItemsQuery,
		Variables: map[string]interface{}{"projectId": g.projectID},
	}
	var resp githubItemsResponse
	err := WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Task, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		out = append(out, g.toTask(it))
	}
	return out, nil
}

// CreateTask adds a draft issue to the project in the Todo column.
func (g *GitHubProjectsProvider) CreateTask(ctx context.Context, draft TaskDraft) (*store.Task, error) {
	req := githubGraphQLRequest{
		Query: addProjectDraftIssueMutation,
		Variables: map[string]interface{}{
			"projectId": g.projectID,
			"title":     draft.Name,
			"body":      draft.Description,
		},
	}
	var created struct {
		Data struct {
			AddItem struct {
				Item githubItem `json:"projectItem"`
			} `json:"addProjectV2DraftIssue"`
		} `json:"data"`
	}
	err := WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, &created)
	})
	if err != nil {
		return nil, err
	}
	t := g.toTask(created.Data.AddItem.Item)
	t.Priority = draft.Priority
	t.EstimatedHours = draft.EstimatedHours
	t.CreatedAt = time.Now()
	return t, nil
}

// UpdateStatus sets the item's single-select Status field.
func (g *GitHubProjectsProvider) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus) error {
	optionID, ok := g.statusOptionID[g.statusName(status)]
	if !ok {
		return &MalformedResponseError{Raw: fmt.Sprintf("no status option configured for %s", status)}
	}
	req := githubGraphQLRequest{
		Query: updateProjectItemFieldMutation,
		Variables: map[string]interface{}{
			"projectId": g.projectID,
			"itemId":    taskID,
			"fieldId":   g.statusFieldID,
			"optionId":  optionID,
		},
	}
	return WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// AddComment posts an issue comment on the underlying issue/PR.
func (g *GitHubProjectsProvider) AddComment(ctx context.Context, taskID, text string) error {
	req := githubGraphQLRequest{
		Query:     addCommentMutation,
		Variables: map[string]interface{}{"subjectId": taskID, "body": text},
	}
	return WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// SetAssignee assigns the underlying item to agentID, which is sent
// unchanged as the GitHub assignee node id (no login mapping is applied).
func (g *GitHubProjectsProvider) SetAssignee(ctx context.Context, taskID, agentID string) error {
	req := githubGraphQLRequest{
		Query:     addAssigneeMutation,
		Variables: map[string]interface{}{"assignableId": taskID, "assigneeId": agentID},
	}
	return WithRetry(ctx, g.retryCfg, func() error {
		return g.http.doJSON(ctx, "POST", "/graphql", req, nil)
	})
}

// GetBoardSummary returns a single "available" count: the number of items
// ListAvailableTasks reports. Per-status counts are not computed.
func (g *GitHubProjectsProvider) GetBoardSummary(ctx context.Context) (BoardSummary, error) {
	tasks, err := g.ListAvailableTasks(ctx)
	if err != nil {
		return BoardSummary{}, err
	}
	return BoardSummary{Counts: map[string]int{"available": len(tasks)}}, nil
}

const projectItemsQuery = `query($projectId: ID!) { node(id: $projectId) { ... on ProjectV2 { items(first: 100) { nodes { id } } } } }`
const addProjectDraftIssueMutation = `mutation($projectId: ID!, $title: String!, $body: String!) { addProjectV2DraftIssue(input: {projectId: $projectId, title: $title, body: $body}) { projectItem { id } } }`
const updateProjectItemFieldMutation = `mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $optionId: String!) { updateProjectV2ItemFieldValue(input: {projectId: $projectId, itemId: $itemId, fieldId: $fieldId, value: {singleSelectOptionId: $optionId}}) { projectV2Item { id } } }`
const addCommentMutation = `mutation($subjectId: ID!, $body: String!) { addComment(input: {subjectId: $subjectId, body: $body}) { clientMutationId } }`
const addAssigneeMutation = `mutation($assignableId: ID!, $assigneeId: ID!) { addAssigneesToAssignable(input: {assignableId: $assignableId, assigneeIds: [$assigneeId]}) { clientMutationId } }`
