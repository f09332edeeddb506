package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
	"github.com/basecamp/konnector/internal/todoist"
)

// MoveNewTodoistItemToClickup moves tasks added to a Todoist inbox project
// into the Clickup inbox list.
type MoveNewTodoistItemToClickup struct {
	clickup  ClickupRepository
	todoist  TodoistRepository
	settings *Settings
	loc      *time.Location
	logger   *slog.Logger
}

// NewMoveNewTodoistItemToClickup wires the handler.
func NewMoveNewTodoistItemToClickup(cu ClickupRepository, td TodoistRepository, settings *Settings, loc *time.Location, logger *slog.Logger) *MoveNewTodoistItemToClickup {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MoveNewTodoistItemToClickup{
		clickup:  cu,
		todoist:  td,
		settings: settings,
		loc:      loc,
		logger:   logger,
	}
}

// Handle is the bus entry point.
func (h *MoveNewTodoistItemToClickup) Handle(ctx context.Context, ev events.NewTodoistItemCreated) error {
	_, err := h.Move(ctx, ev.Item)
	return err
}

// Move creates the Clickup copy of item and then deletes item from Todoist.
// It returns nil without side effects when item is not in an inbox project.
// The delete never runs when the create failed.
func (h *MoveNewTodoistItemToClickup) Move(ctx context.Context, item todoist.Item) (*clickup.Item, error) {
	lists := h.settings.Lists()
	log := h.logger.With("todoist_id", item.ID, "project_id", item.ProjectID)

	if !slices.Contains(lists.TodoistInboxProjects, item.ProjectID) {
		log.Debug("todoist task is not in an inbox project; leaving it")
		return nil, nil
	}

	created, err := h.clickup.CreateItem(ctx, TodoistItemToClickup(item, h.loc), lists.ClickupInbox)
	if err != nil {
		return nil, fmt.Errorf("moving todoist task %s: %w", item.ID, err)
	}
	if created != nil {
		log = log.With("clickup_id", created.ID)
	}

	if _, err := h.todoist.DeleteItemByID(ctx, item.ID); err != nil {
		return created, fmt.Errorf("deleting moved todoist task %s: %w", item.ID, err)
	}

	log.Info("moved todoist task to clickup", "list_id", lists.ClickupInbox)
	return created, nil
}
