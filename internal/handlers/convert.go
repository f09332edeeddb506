package handlers

import (
	"time"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/platform"
	"github.com/basecamp/konnector/internal/todoist"
)

// TodoistPriorityToClickup inverts the priority scale. Todoist's default
// priority 1 means "no priority" and maps to nil.
func TodoistPriorityToClickup(p *todoist.Priority) *clickup.Priority {
	if p == nil || p.Int() == todoist.DefaultPriority {
		return nil
	}
	c := clickup.MustPriority(5 - p.Int())
	return &c
}

// ClickupPriorityToTodoist inverts the priority scale. A missing Clickup
// priority stays missing; Todoist applies its own default on create.
func ClickupPriorityToTodoist(p *clickup.Priority) *todoist.Priority {
	if p == nil {
		return nil
	}
	t := todoist.MustPriority(5 - p.Int())
	return &t
}

// TodoistDatetimeToClickup converts a due date. Dates without a time keep
// their calendar day and become Clickup's 04:00 sentinel in loc.
func TodoistDatetimeToClickup(d *todoist.Datetime, loc *time.Location) *clickup.Datetime {
	if d == nil {
		return nil
	}
	if d.TimeIncluded() {
		c := clickup.NewDatetime(d.UTC(), true, loc)
		return &c
	}
	y, m, day := d.Date()
	c := clickup.DateOnly(y, m, day, loc)
	return &c
}

// ClickupDatetimeToTodoist converts a due date. Date-only values keep the
// calendar day they have in loc.
func ClickupDatetimeToTodoist(d *clickup.Datetime, loc *time.Location) *todoist.Datetime {
	if d == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	local := d.UTC().In(loc)
	t := todoist.FromTime(local, d.TimeIncluded())
	return &t
}

// TodoistItemToClickup translates a Todoist task into a new Clickup task that
// remembers where it came from.
func TodoistItemToClickup(item todoist.Item, loc *time.Location) clickup.Item {
	out := clickup.Item{
		Name:        item.Content,
		Description: item.Description,
		Priority:    TodoistPriorityToClickup(item.Priority),
		EndDatetime: TodoistDatetimeToClickup(item.EndDatetime, loc),
	}
	if item.ID != "" {
		out.ExternalIDs = platform.ExternalIDs{platform.Todoist: item.ID}
	}
	return out
}

// ClickupItemToTodoist translates a Clickup task into its Todoist mirror.
// The Clickup description is not carried; the mirror's description slot
// holds the Clickup id instead.
func ClickupItemToTodoist(item clickup.Item, loc *time.Location) todoist.Item {
	out := todoist.Item{
		Content:     item.Name,
		Priority:    ClickupPriorityToTodoist(item.Priority),
		EndDatetime: ClickupDatetimeToTodoist(item.EndDatetime, loc),
	}
	if item.ID != "" {
		out.ExternalIDs = platform.ExternalIDs{platform.Clickup: item.ID}
	}
	return out
}
