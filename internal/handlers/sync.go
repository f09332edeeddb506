package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
	"github.com/basecamp/konnector/internal/platform"
	"github.com/basecamp/konnector/internal/todoist"
)

// Next actions criteria.
const (
	NextActionStatus = "next action"
	// UrgentBelow is the Clickup priority under which a task counts as urgent.
	UrgentBelow = 3
	// DueSoon is how far ahead a due date makes a task a next action.
	DueSoon = 72 * time.Hour
)

// NextActionsCriteria reports whether a Clickup task belongs in the Todoist
// next actions project at now.
func NextActionsCriteria(item clickup.Item, now time.Time) bool {
	if item.Status != NextActionStatus {
		return false
	}
	if item.Priority != nil && item.Priority.Int() < UrgentBelow {
		return true
	}
	if item.EndDatetime != nil && item.EndDatetime.UTC().Before(now.UTC().Add(DueSoon)) {
		return true
	}
	return !item.IsSubtask()
}

// SyncClickupItemToTodoist keeps the Todoist next actions project in step
// with the Clickup tasks that meet NextActionsCriteria.
type SyncClickupItemToTodoist struct {
	clickup  ClickupRepository
	todoist  TodoistRepository
	settings *Settings
	loc      *time.Location
	linkBack bool
	now      func() time.Time
	logger   *slog.Logger
}

// SyncOption configures SyncClickupItemToTodoist.
type SyncOption func(*SyncClickupItemToTodoist)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SyncOption {
	return func(h *SyncClickupItemToTodoist) { h.now = now }
}

// WithLinkBack controls whether the Todoist id is written back to the
// Clickup task after a create or a scan match.
func WithLinkBack(enabled bool) SyncOption {
	return func(h *SyncClickupItemToTodoist) { h.linkBack = enabled }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) SyncOption {
	return func(h *SyncClickupItemToTodoist) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewSyncClickupItemToTodoist wires the handler. Link-back is on by default.
func NewSyncClickupItemToTodoist(cu ClickupRepository, td TodoistRepository, settings *Settings, loc *time.Location, opts ...SyncOption) *SyncClickupItemToTodoist {
	if loc == nil {
		loc = time.UTC
	}
	h := &SyncClickupItemToTodoist{
		clickup:  cu,
		todoist:  td,
		settings: settings,
		loc:      loc,
		linkBack: true,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCreated is the bus entry point for new Clickup tasks.
func (h *SyncClickupItemToTodoist) HandleCreated(ctx context.Context, ev events.NewClickupItemCreated) error {
	_, err := h.Sync(ctx, ev.ItemID)
	return err
}

// HandleUpdated is the bus entry point for changed Clickup tasks.
func (h *SyncClickupItemToTodoist) HandleUpdated(ctx context.Context, ev events.ClickupItemUpdated) error {
	_, err := h.Sync(ctx, ev.ItemID)
	return err
}

// Sync re-reads the Clickup task and creates, updates or deletes its Todoist
// mirror. It returns the mirror when one exists afterwards.
func (h *SyncClickupItemToTodoist) Sync(ctx context.Context, itemID string) (*todoist.Item, error) {
	lists := h.settings.Lists()
	log := h.logger.With("clickup_id", itemID)

	item, err := h.clickup.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetching clickup task %s: %w", itemID, err)
	}

	if item == nil {
		counterpart, err := h.scan(ctx, lists.TodoistNextActions, itemID)
		if err != nil || counterpart == nil {
			return nil, err
		}
		if _, err := h.todoist.DeleteItemByID(ctx, counterpart.ID); err != nil {
			return nil, err
		}
		log.Info("clickup task is gone; deleted its todoist mirror", "todoist_id", counterpart.ID)
		return nil, nil
	}

	counterpart, err := h.Counterpart(ctx, *item)
	if err != nil {
		return nil, err
	}

	if !NextActionsCriteria(*item, h.now()) {
		if counterpart == nil {
			return nil, nil
		}
		if _, err := h.todoist.DeleteItemByID(ctx, counterpart.ID); err != nil {
			return nil, err
		}
		log.Info("clickup task is no longer a next action; deleted its todoist mirror", "todoist_id", counterpart.ID)
		return nil, nil
	}

	desired := ClickupItemToTodoist(*item, h.loc)
	var mirror *todoist.Item
	if counterpart != nil {
		diff := desired.Subtract(*counterpart)
		diff.ID = counterpart.ID
		if diff.IsEmpty() {
			log.Debug("todoist mirror is up to date", "todoist_id", counterpart.ID)
			mirror = counterpart
		} else {
			if mirror, err = h.todoist.UpdateItem(ctx, diff); err != nil {
				return nil, err
			}
			log.Info("updated todoist mirror", "todoist_id", counterpart.ID)
		}
	} else {
		if mirror, err = h.todoist.CreateItem(ctx, desired, lists.TodoistNextActions); err != nil {
			return nil, err
		}
		if mirror != nil {
			log.Info("created todoist mirror", "todoist_id", mirror.ID)
		}
	}

	if h.linkBack && mirror != nil && item.ExternalIDs.Get(platform.Todoist) != mirror.ID {
		link := clickup.Item{ID: item.ID, ExternalIDs: platform.ExternalIDs{platform.Todoist: mirror.ID}}
		if _, err := h.clickup.UpdateItem(ctx, link); err != nil {
			return mirror, fmt.Errorf("linking clickup task %s to todoist task %s: %w", item.ID, mirror.ID, err)
		}
		log.Debug("recorded todoist id on clickup task", "todoist_id", mirror.ID)
	}

	return mirror, nil
}

// Counterpart finds the Todoist mirror of item: directly through the stored
// Todoist id, else by scanning the next actions project. A stored id that
// points outside the next actions project is not a mirror (an inbox task
// whose move left it behind, say) and is never touched.
func (h *SyncClickupItemToTodoist) Counterpart(ctx context.Context, item clickup.Item) (*todoist.Item, error) {
	nextActions := h.settings.Lists().TodoistNextActions
	if id := item.ExternalIDs.Get(platform.Todoist); id != "" {
		found, err := h.todoist.GetItemByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found != nil && found.ProjectID == nextActions {
			return found, nil
		}
		if found != nil {
			h.logger.Debug("stored todoist id is outside next actions; scanning",
				"clickup_id", item.ID, "todoist_id", id, "project_id", found.ProjectID)
		}
	}
	return h.scan(ctx, nextActions, item.ID)
}

func (h *SyncClickupItemToTodoist) scan(ctx context.Context, projectID, clickupID string) (*todoist.Item, error) {
	items, err := h.todoist.GetItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ExternalIDs.Get(platform.Clickup) == clickupID {
			return &it, nil
		}
	}
	return nil, nil
}
