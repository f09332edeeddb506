package todoist

import (
	"encoding/json"
	"maps"

	"github.com/basecamp/konnector/internal/platform"
)

// Item is a Todoist task. Empty strings and nil pointers mean "not set".
type Item struct {
	ID          string
	Content     string
	Description string
	Priority    *Priority
	EndDatetime *Datetime
	Created     *Datetime
	Updated     *Datetime
	IsCompleted bool
	ProjectID   string
	ExternalIDs platform.ExternalIDs
}

// Subtract returns a sparse item holding the fields of i that are set and
// differ from older. The result keeps i's id, falling back to older's.
func (i Item) Subtract(older Item) Item {
	diff := Item{ID: i.ID}
	if diff.ID == "" {
		diff.ID = older.ID
	}

	if i.Content != "" && i.Content != older.Content {
		diff.Content = i.Content
	}
	if i.Description != "" && i.Description != older.Description {
		diff.Description = i.Description
	}
	if i.Priority != nil && !equalPriority(i.Priority, older.Priority) {
		diff.Priority = i.Priority
	}
	if i.EndDatetime != nil && !equalDatetime(i.EndDatetime, older.EndDatetime) {
		diff.EndDatetime = i.EndDatetime
	}
	if i.Created != nil && !equalDatetime(i.Created, older.Created) {
		diff.Created = i.Created
	}
	if i.Updated != nil && !equalDatetime(i.Updated, older.Updated) {
		diff.Updated = i.Updated
	}
	if i.IsCompleted && !older.IsCompleted {
		diff.IsCompleted = true
	}
	if i.ProjectID != "" && i.ProjectID != older.ProjectID {
		diff.ProjectID = i.ProjectID
	}
	diff.ExternalIDs = i.ExternalIDs.Diff(older.ExternalIDs)

	return diff
}

// IsEmpty reports whether the item declares nothing besides its id.
func (i Item) IsEmpty() bool {
	return i.Content == "" && i.Description == "" && i.Priority == nil &&
		i.EndDatetime == nil && i.Created == nil && i.Updated == nil &&
		!i.IsCompleted && i.ProjectID == "" && len(i.ExternalIDs) == 0
}

// Clone returns a copy that shares no maps with i.
func (i Item) Clone() Item {
	out := i
	out.ExternalIDs = maps.Clone(i.ExternalIDs)
	return out
}

// MarshalJSON renders the item for CLI output.
func (i Item) MarshalJSON() ([]byte, error) {
	type view struct {
		ID           string            `json:"id"`
		Content      string            `json:"content"`
		Description  string            `json:"description,omitempty"`
		Priority     *int              `json:"priority,omitempty"`
		Due          string            `json:"due,omitempty"`
		TimeIncluded *bool             `json:"due_time_included,omitempty"`
		IsCompleted  bool              `json:"is_completed"`
		ProjectID    string            `json:"project_id,omitempty"`
		ExternalIDs  map[string]string `json:"external_ids,omitempty"`
	}
	v := view{
		ID:          i.ID,
		Content:     i.Content,
		Description: i.Description,
		IsCompleted: i.IsCompleted,
		ProjectID:   i.ProjectID,
	}
	if i.Priority != nil {
		p := i.Priority.Int()
		v.Priority = &p
	}
	if i.EndDatetime != nil {
		v.Due = i.EndDatetime.String()
		ti := i.EndDatetime.TimeIncluded()
		v.TimeIncluded = &ti
	}
	for p, id := range i.ExternalIDs {
		if v.ExternalIDs == nil {
			v.ExternalIDs = make(map[string]string)
		}
		v.ExternalIDs[string(p)] = id
	}
	return json.Marshal(v)
}
