package todoist

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
)

// taskJSON accepts both the REST task shape and the Sync API item shape
// that webhooks deliver.
type taskJSON struct {
	ID          *string `json:"id"`
	Content     *string `json:"content"`
	Description string  `json:"description"`
	Priority    int     `json:"priority"`
	ProjectID   string  `json:"project_id"`
	IsCompleted *bool   `json:"is_completed"`
	Checked     *bool   `json:"checked"`
	CreatedAt   string  `json:"created_at"`
	AddedAt     string  `json:"added_at"`
	UpdatedAt   string  `json:"updated_at"`
	Due         *struct {
		Date        string `json:"date"`
		Datetime    string `json:"datetime"`
		Timezone    string `json:"timezone"`
		String      string `json:"string"`
		IsRecurring bool   `json:"is_recurring"`
	} `json:"due"`
}

// Mapper translates between Todoist task JSON and Item.
//
// Todoist has no field for foreign ids, so tasks in linked projects keep the
// Clickup counterpart id in their description. The mapper moves it between
// the description and Item.ExternalIDs; tasks in other projects keep their
// description as written.
type Mapper struct {
	mu             sync.RWMutex
	linkedProjects []string
}

// NewMapper returns a mapper treating the given projects as linked.
func NewMapper(linkedProjects ...string) *Mapper {
	return &Mapper{linkedProjects: slices.Clone(linkedProjects)}
}

// SetLinkedProjects replaces the linked project set. Used on config reload.
func (m *Mapper) SetLinkedProjects(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkedProjects = slices.Clone(ids)
}

func (m *Mapper) isLinked(projectID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return projectID != "" && slices.Contains(m.linkedProjects, projectID)
}

// ToEntity decodes a single task payload.
func (m *Mapper) ToEntity(data []byte) (Item, error) {
	var t taskJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return Item{}, output.ErrValidation("invalid todoist task payload: %v", err)
	}
	return m.toEntity(t)
}

func (m *Mapper) toEntity(t taskJSON) (Item, error) {
	if t.ID == nil || *t.ID == "" {
		return Item{}, output.ErrValidation("todoist task is missing id")
	}
	if t.Content == nil {
		return Item{}, output.ErrValidation("todoist task %s is missing content", *t.ID)
	}

	item := Item{
		ID:        *t.ID,
		Content:   *t.Content,
		ProjectID: t.ProjectID,
	}

	if m.isLinked(t.ProjectID) {
		if t.Description != "" {
			item.ExternalIDs = item.ExternalIDs.With(platform.Clickup, t.Description)
		}
	} else {
		item.Description = t.Description
	}

	if t.Priority != 0 {
		p, err := NewPriority(t.Priority)
		if err != nil {
			return Item{}, err
		}
		item.Priority = &p
	}

	if t.Due != nil {
		d, err := Parse(t.Due.Date, t.Due.Datetime, t.Due.Timezone)
		if err != nil {
			return Item{}, err
		}
		item.EndDatetime = &d
	}

	switch {
	case t.IsCompleted != nil:
		item.IsCompleted = *t.IsCompleted
	case t.Checked != nil:
		item.IsCompleted = *t.Checked
	}

	created := t.CreatedAt
	if created == "" {
		created = t.AddedAt
	}
	var err error
	if item.Created, err = timestamp(created); err != nil {
		return Item{}, err
	}
	if item.Updated, err = timestamp(t.UpdatedAt); err != nil {
		return Item{}, err
	}

	return item, nil
}

func timestamp(s string) (*Datetime, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, output.ErrValidation("invalid todoist timestamp %q", s)
	}
	d := FromTime(t, true)
	return &d, nil
}

// FromEntity encodes item as a create/update request body. Unset fields are
// left out entirely; Todoist clears a field when it receives null.
func (m *Mapper) FromEntity(item Item) map[string]any {
	body := make(map[string]any)

	if item.Content != "" {
		body["content"] = item.Content
	}
	if id := item.ExternalIDs.Get(platform.Clickup); id != "" {
		body["description"] = id
	} else if item.Description != "" {
		body["description"] = item.Description
	}
	if item.Priority != nil {
		body["priority"] = item.Priority.Int()
	}
	if item.EndDatetime != nil {
		if item.EndDatetime.TimeIncluded() {
			body["due_datetime"] = item.EndDatetime.DatetimeString()
		} else {
			body["due_date"] = item.EndDatetime.DateString()
		}
	}

	return body
}
