// Package handlers holds the synchronization rules: what to create, update
// or delete on one platform when an item changes on the other.
package handlers

import (
	"context"
	"slices"
	"sync"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/todoist"
)

// ClickupRepository is the subset of the Clickup repository the handlers use.
type ClickupRepository interface {
	GetItems(ctx context.Context, listID string) ([]clickup.Item, error)
	GetItemByID(ctx context.Context, id string) (*clickup.Item, error)
	CreateItem(ctx context.Context, item clickup.Item, listID string) (*clickup.Item, error)
	UpdateItem(ctx context.Context, item clickup.Item) (*clickup.Item, error)
	DeleteItemByID(ctx context.Context, id string) (bool, error)
	SetItemComplete(ctx context.Context, item clickup.Item) (*clickup.Item, error)
}

// TodoistRepository is the subset of the Todoist repository the handlers use.
type TodoistRepository interface {
	GetItems(ctx context.Context, projectID string) ([]todoist.Item, error)
	GetItemByID(ctx context.Context, id string) (*todoist.Item, error)
	CreateItem(ctx context.Context, item todoist.Item, projectID string) (*todoist.Item, error)
	UpdateItem(ctx context.Context, item todoist.Item) (*todoist.Item, error)
	DeleteItemByID(ctx context.Context, id string) (bool, error)
	SetItemComplete(ctx context.Context, item todoist.Item) (*todoist.Item, error)
}

var (
	_ ClickupRepository = (*clickup.Repository)(nil)
	_ TodoistRepository = (*todoist.Repository)(nil)
)

// Lists names the lists and projects the handlers route items between.
type Lists struct {
	// TodoistInboxProjects are the projects whose new tasks move to Clickup.
	TodoistInboxProjects []string
	// TodoistNextActions is the project mirroring Clickup's next actions.
	TodoistNextActions string
	// ClickupInbox is the list moved tasks land in.
	ClickupInbox string
}

// Settings holds the current Lists. It is shared by the handlers and
// replaced when the configuration file is reloaded.
type Settings struct {
	mu    sync.RWMutex
	lists Lists
}

// NewSettings returns settings initialized to lists.
func NewSettings(lists Lists) *Settings {
	s := &Settings{}
	s.Update(lists)
	return s
}

// Lists returns a copy of the current lists.
func (s *Settings) Lists() Lists {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.lists
	l.TodoistInboxProjects = slices.Clone(l.TodoistInboxProjects)
	return l
}

// Update replaces the lists for subsequent events.
func (s *Settings) Update(lists Lists) {
	lists.TodoistInboxProjects = slices.Clone(lists.TodoistInboxProjects)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = lists
}
