package clickup

import (
	"encoding/json"
	"maps"

	"github.com/basecamp/konnector/internal/platform"
)

// Item is a Clickup task. Empty strings and nil pointers mean "not set".
type Item struct {
	ID            string
	Name          string
	Description   string
	Priority      *Priority
	StartDatetime *Datetime
	EndDatetime   *Datetime
	Created       *Datetime
	Updated       *Datetime
	Status        string
	// CustomFields maps a custom field id to its value.
	CustomFields map[string]string
	Parent       string
	ExternalIDs  platform.ExternalIDs
}

// IsSubtask reports whether the task has a parent task.
func (i Item) IsSubtask() bool {
	return i.Parent != ""
}

// Subtract returns a sparse item holding the fields of i that are set and
// differ from older. The result keeps i's id, falling back to older's.
func (i Item) Subtract(older Item) Item {
	diff := Item{ID: i.ID}
	if diff.ID == "" {
		diff.ID = older.ID
	}

	if i.Name != "" && i.Name != older.Name {
		diff.Name = i.Name
	}
	if i.Description != "" && i.Description != older.Description {
		diff.Description = i.Description
	}
	if i.Priority != nil && !equalPriority(i.Priority, older.Priority) {
		diff.Priority = i.Priority
	}
	if i.StartDatetime != nil && !equalDatetime(i.StartDatetime, older.StartDatetime) {
		diff.StartDatetime = i.StartDatetime
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
	if i.Status != "" && i.Status != older.Status {
		diff.Status = i.Status
	}
	if i.Parent != "" && i.Parent != older.Parent {
		diff.Parent = i.Parent
	}

	for id, v := range i.CustomFields {
		if old, ok := older.CustomFields[id]; ok && old == v {
			continue
		}
		if diff.CustomFields == nil {
			diff.CustomFields = make(map[string]string)
		}
		diff.CustomFields[id] = v
	}
	diff.ExternalIDs = i.ExternalIDs.Diff(older.ExternalIDs)

	return diff
}

// IsEmpty reports whether the item declares nothing besides its id.
func (i Item) IsEmpty() bool {
	return i.Name == "" && i.Description == "" && i.Priority == nil &&
		i.StartDatetime == nil && i.EndDatetime == nil &&
		i.Created == nil && i.Updated == nil &&
		i.Status == "" && i.Parent == "" &&
		len(i.CustomFields) == 0 && len(i.ExternalIDs) == 0
}

// Clone returns a copy that shares no maps with i.
func (i Item) Clone() Item {
	out := i
	out.CustomFields = maps.Clone(i.CustomFields)
	out.ExternalIDs = maps.Clone(i.ExternalIDs)
	return out
}

// MarshalJSON renders the item for CLI output.
func (i Item) MarshalJSON() ([]byte, error) {
	type view struct {
		ID           string            `json:"id"`
		Name         string            `json:"name"`
		Description  string            `json:"description,omitempty"`
		Priority     *int              `json:"priority,omitempty"`
		Start        string            `json:"start,omitempty"`
		Due          string            `json:"due,omitempty"`
		TimeIncluded *bool             `json:"due_time_included,omitempty"`
		Status       string            `json:"status,omitempty"`
		Parent       string            `json:"parent,omitempty"`
		CustomFields map[string]string `json:"custom_fields,omitempty"`
		ExternalIDs  map[string]string `json:"external_ids,omitempty"`
	}
	v := view{
		ID:           i.ID,
		Name:         i.Name,
		Description:  i.Description,
		Status:       i.Status,
		Parent:       i.Parent,
		CustomFields: i.CustomFields,
	}
	if i.Priority != nil {
		p := i.Priority.Int()
		v.Priority = &p
	}
	if i.StartDatetime != nil {
		v.Start = i.StartDatetime.String()
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
