package clickup

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
)

// taskJSON is a task as returned by the Clickup API.
type taskJSON struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Description string  `json:"description"`
	Priority    *struct {
		ID       string `json:"id"`
		Priority string `json:"priority"`
	} `json:"priority"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
	DateCreated *string `json:"date_created"`
	DateUpdated *string `json:"date_updated"`
	Status      *struct {
		Status string `json:"status"`
	} `json:"status"`
	CustomFields []customFieldJSON `json:"custom_fields"`
	Parent       *string           `json:"parent"`
}

type customFieldJSON struct {
	ID    string `json:"id"`
	Value any    `json:"value,omitempty"`
}

// Mapper translates between Clickup task JSON and Item.
//
// The Todoist counterpart id lives in a custom field on the Clickup side.
// The mapper moves it between that field and Item.ExternalIDs so nothing
// else has to know which field carries it.
type Mapper struct {
	loc            *time.Location
	todoistIDField string
}

// NewMapper returns a mapper that reads dates in loc and stores the Todoist
// counterpart id in the custom field todoistIDField.
func NewMapper(loc *time.Location, todoistIDField string) *Mapper {
	return &Mapper{loc: location(loc), todoistIDField: todoistIDField}
}

// Location returns the timezone used for date-only values.
func (m *Mapper) Location() *time.Location {
	return m.loc
}

// ToEntity decodes a single task payload.
func (m *Mapper) ToEntity(data []byte) (Item, error) {
	var t taskJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return Item{}, output.ErrValidation("invalid clickup task payload: %v", err)
	}
	return m.toEntity(t)
}

func (m *Mapper) toEntity(t taskJSON) (Item, error) {
	if t.ID == nil || *t.ID == "" {
		return Item{}, output.ErrValidation("clickup task is missing id")
	}
	if t.Name == nil {
		return Item{}, output.ErrValidation("clickup task %s is missing name", *t.ID)
	}

	item := Item{
		ID:          *t.ID,
		Name:        *t.Name,
		Description: t.Description,
	}

	if t.Priority != nil && t.Priority.ID != "" {
		n, err := strconv.Atoi(t.Priority.ID)
		if err != nil {
			return Item{}, output.ErrValidation("invalid clickup priority %q", t.Priority.ID)
		}
		p, err := NewPriority(n)
		if err != nil {
			return Item{}, err
		}
		item.Priority = &p
	}

	var err error
	if item.StartDatetime, err = m.timestamp(t.StartDate); err != nil {
		return Item{}, err
	}
	if item.EndDatetime, err = m.timestamp(t.DueDate); err != nil {
		return Item{}, err
	}
	if item.Created, err = m.timestamp(t.DateCreated); err != nil {
		return Item{}, err
	}
	if item.Updated, err = m.timestamp(t.DateUpdated); err != nil {
		return Item{}, err
	}

	if t.Status != nil {
		item.Status = t.Status.Status
	}
	if t.Parent != nil {
		item.Parent = *t.Parent
	}

	for _, f := range t.CustomFields {
		v, ok := fieldString(f.Value)
		if !ok {
			continue
		}
		if f.ID == m.todoistIDField && m.todoistIDField != "" {
			item.ExternalIDs = item.ExternalIDs.With(platform.Todoist, v)
			continue
		}
		if item.CustomFields == nil {
			item.CustomFields = make(map[string]string)
		}
		item.CustomFields[f.ID] = v
	}

	return item, nil
}

func (m *Mapper) timestamp(s *string) (*Datetime, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := ParseTimestamp(*s, m.loc)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FromEntity encodes item as a create/update request body. Unset fields are
// left out entirely; Clickup clears a field when it receives null.
func (m *Mapper) FromEntity(item Item) map[string]any {
	body := make(map[string]any)

	if item.Name != "" {
		body["name"] = item.Name
	}
	if item.Description != "" {
		body["description"] = item.Description
	}
	if item.Priority != nil {
		body["priority"] = item.Priority.Int()
	}
	if item.Status != "" {
		body["status"] = item.Status
	}
	if item.EndDatetime != nil {
		body["due_date"] = item.EndDatetime.Timestamp()
		body["due_date_time"] = item.EndDatetime.TimeIncluded()
	}
	if item.StartDatetime != nil {
		body["start_date"] = item.StartDatetime.Timestamp()
		body["start_date_time"] = item.StartDatetime.TimeIncluded()
	}
	if item.Parent != "" {
		body["parent"] = item.Parent
	}

	if fields := m.CustomFieldValues(item); len(fields) > 0 {
		ids := slices.Sorted(maps.Keys(fields))
		out := make([]customFieldJSON, 0, len(ids))
		for _, id := range ids {
			out = append(out, customFieldJSON{ID: id, Value: fields[id]})
		}
		body["custom_fields"] = out
	}

	return body
}

// CustomFieldValues returns the custom fields Clickup should store for item,
// including the field that carries the Todoist counterpart id.
func (m *Mapper) CustomFieldValues(item Item) map[string]string {
	out := make(map[string]string, len(item.CustomFields)+1)
	for id, v := range item.CustomFields {
		out[id] = v
	}
	if id := item.ExternalIDs.Get(platform.Todoist); id != "" && m.todoistIDField != "" {
		out[m.todoistIDField] = id
	}
	return out
}

func fieldString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
