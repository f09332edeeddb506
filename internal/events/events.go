// Package events defines the domain events konnector reacts to and the bus
// that delivers them to handlers.
package events

import "github.com/basecamp/konnector/internal/todoist"

// Event names.
const (
	NameNewTodoistItemCreated = "todoist.item_created"
	NameNewClickupItemCreated = "clickup.item_created"
	NameClickupItemUpdated    = "clickup.item_updated"
)

// Event is anything the bus can deliver.
type Event interface {
	Name() string
}

// NewTodoistItemCreated is raised when a task is added in Todoist. The item
// is fully decoded from the webhook payload.
type NewTodoistItemCreated struct {
	Item todoist.Item
}

func (NewTodoistItemCreated) Name() string { return NameNewTodoistItemCreated }

// NewClickupItemCreated is raised when a task is created in Clickup. Only
// identifiers are carried; handlers re-fetch the task.
type NewClickupItemCreated struct {
	ItemID string
	ListID string
	UserID string
}

func (NewClickupItemCreated) Name() string { return NameNewClickupItemCreated }

// ClickupItemUpdated is raised when a Clickup task changes, and by the
// reconcile sweep for every task it visits.
type ClickupItemUpdated struct {
	ItemID string
	ListID string
	UserID string
}

func (ClickupItemUpdated) Name() string { return NameClickupItemUpdated }
