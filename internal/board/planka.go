package board

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// plankaPriorityLabels is Planka's explicit label->priority table
// (spec.md §9 REDESIGN FLAGS: adapter-local, no substring matching).
var plankaPriorityLabels = map[string]store.Priority{
	"P0":       store.PriorityUrgent,
	"CRITICAL": store.PriorityUrgent,
	"P1":       store.PriorityHigh,
	"High":     store.PriorityHigh,
	"P2":       store.PriorityMedium,
	"Medium":   store.PriorityMedium,
	"P3":       store.PriorityLow,
	"Low":      store.PriorityLow,
}

// plankaStatusLists maps internal statuses to Planka list names; the
// inverse table drives ListAvailableTasks' classification of cards.
var plankaStatusLists = map[store.TaskStatus]string{
	store.StatusTODO:       "To Do",
	store.StatusInProgress: "In Progress",
	store.StatusBlocked:    "Blocked",
	store.StatusDone:       "Done",
}

// PlankaProvider adapts marcus's Provider interface to a self-hosted
// Planka board over its REST API.
type PlankaProvider struct {
	http     *httpClient
	boardID  string
	listIDs  map[string]string // list name -> Planka list id
	retryCfg RetryConfig
}

// PlankaConfig is the provider_config shape for "provider": "planka".
type PlankaConfig struct {
	BaseURL string            `json:"base_url"`
	Token   string            `json:"token"`
	BoardID string            `json:"board_id"`
	ListIDs map[string]string `json:"list_ids"` // list name -> Planka list id
}

// NewPlankaProvider constructs a Planka adapter from config.
func NewPlankaProvider(cfg PlankaConfig) *PlankaProvider {
	return &PlankaProvider{
		http:     newHTTPClient(cfg.BaseURL, map[string]string{"Authorization": "Bearer " + cfg.Token}),
		boardID:  cfg.BoardID,
		listIDs:  cfg.ListIDs,
		retryCfg: DefaultRetryConfig,
	}
}

type plankaCard struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ListID      string   `json:"listId"`
	Labels      []string `json:"labels"`
	DueDate     *string  `json:"dueDate"`
}

func (p *PlankaProvider) listNameForID(listID string) string {
	for name, id := range p.listIDs {
		if id == listID {
			return name
		}
	}
	return ""
}

func (p *PlankaProvider) statusForCard(c plankaCard) store.TaskStatus {
	name := p.listNameForID(c.ListID)
	for status, listName := range plankaStatusLists {
		if listName == name {
			return status
		}
	}
	return store.StatusTODO
}

func (p *PlankaProvider) toTask(c plankaCard) *store.Task {
	return &store.Task{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Status:      p.statusForCard(c),
		Priority:    mapPriority(c.Labels, plankaPriorityLabels),
		Labels:      labelSet(c.Labels),
		UpdatedAt:   time.Now(),
	}
}

// ListAvailableTasks returns cards in the "To Do" list.
func (p *PlankaProvider) ListAvailableTasks(ctx context.Context) ([]*store.Task, error) {
	var cards []plankaCard
	err := WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "GET", fmt.Sprintf("/api/boards/%s/cards", p.boardID), nil, &cards)
	})
	if err != nil {
		return nil, err
	}
	var out []*store.Task
	for _, c := range cards {
		if p.statusForCard(c) == store.StatusTODO {
			out = append(out, p.toTask(c))
		}
	}
	return out, nil
}

// ListAllTasks returns every card on the board, regardless of list.
func (p *PlankaProvider) ListAllTasks(ctx context.Context) ([]*store.Task, error) {
	var cards []plankaCard
	err := WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "GET", fmt.Sprintf("/api/boards/%s/cards", p.boardID), nil, &cards)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Task, 0, len(cards))
	for _, c := range cards {
		out = append(out, p.toTask(c))
	}
	return out, nil
}

// CreateTask creates a new card in the "To Do" list.
func (p *PlankaProvider) CreateTask(ctx context.Context, draft TaskDraft) (*store.Task, error) {
	listID := p.listIDs[plankaStatusLists[store.StatusTODO]]
	body := map[string]interface{}{
		"name":        draft.Name,
		"description": draft.Description,
		"listId":      listID,
	}
	var card plankaCard
	err := WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "POST", "/api/cards", body, &card)
	})
	if err != nil {
		return nil, err
	}
	t := p.toTask(card)
	t.Priority = draft.Priority
	t.EstimatedHours = draft.EstimatedHours
	t.CreatedAt = time.Now()
	return t, nil
}

// UpdateStatus moves the card to the list mapping to status.
func (p *PlankaProvider) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus) error {
	listID, ok := p.listIDs[plankaStatusLists[status]]
	if !ok {
		return &MalformedResponseError{Raw: fmt.Sprintf("no list configured for status %s", status)}
	}
	return WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "PATCH", "/api/cards/"+taskID, map[string]string{"listId": listID}, nil)
	})
}

// AddComment appends a comment to the card.
func (p *PlankaProvider) AddComment(ctx context.Context, taskID, text string) error {
	return WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "POST", "/api/cards/"+taskID+"/comments", map[string]string{"text": text}, nil)
	})
}

// SetAssignee records the agent as a card member; Planka has no notion
// of a single assignee, so this adds a membership.
func (p *PlankaProvider) SetAssignee(ctx context.Context, taskID, agentID string) error {
	return WithRetry(ctx, p.retryCfg, func() error {
		return p.http.doJSON(ctx, "POST", "/api/cards/"+taskID+"/memberships", map[string]string{"userId": agentID}, nil)
	})
}

// GetBoardSummary returns a single "available" count: the number of cards
// ListAvailableTasks reports. Per-list counts are not computed.
func (p *PlankaProvider) GetBoardSummary(ctx context.Context) (BoardSummary, error) {
	cards, err := p.ListAvailableTasks(ctx)
	if err != nil {
		return BoardSummary{}, err
	}
	return BoardSummary{Counts: map[string]int{"available": len(cards)}}, nil
}
