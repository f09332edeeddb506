package clickup

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"

	"github.com/basecamp/konnector/internal/api"
	"github.com/basecamp/konnector/internal/output"
)

const (
	// DefaultBaseURL is the Clickup v2 REST endpoint.
	DefaultBaseURL = "https://api.clickup.com/api/v2"

	// DefaultCompleteStatus is the status SetItemComplete moves a task to.
	DefaultCompleteStatus = "complete"

	maxPages = 100
	pageSize = 100
)

// Repository reads and writes Clickup tasks.
type Repository struct {
	client         *api.Client
	mapper         *Mapper
	completeStatus string
	logger         *slog.Logger
}

// NewRepository returns a repository backed by client.
func NewRepository(client *api.Client, mapper *Mapper, completeStatus string, logger *slog.Logger) *Repository {
	if completeStatus == "" {
		completeStatus = DefaultCompleteStatus
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repository{
		client:         client,
		mapper:         mapper,
		completeStatus: completeStatus,
		logger:         logger,
	}
}

// Mapper returns the mapper used to decode tasks.
func (r *Repository) Mapper() *Mapper {
	return r.mapper
}

// GetItems lists every task in a list, following pagination. A missing list
// yields no items.
func (r *Repository) GetItems(ctx context.Context, listID string) ([]Item, error) {
	var items []Item
	op := api.OperationInfo{Operation: "GetItems", ResourceID: listID}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		for page := 0; page < maxPages; page++ {
			path := fmt.Sprintf("/list/%s/task?page=%d&subtasks=true", url.PathEscape(listID), page)
			resp, err := r.client.Get(ctx, path)
			if err != nil {
				if output.IsNotFound(err) {
					items = nil
					return nil
				}
				return err
			}

			var body struct {
				Tasks    []taskJSON `json:"tasks"`
				LastPage *bool      `json:"last_page"`
			}
			if err := resp.UnmarshalData(&body); err != nil {
				return fmt.Errorf("failed to parse clickup task list: %w", err)
			}
			for _, t := range body.Tasks {
				item, err := r.mapper.toEntity(t)
				if err != nil {
					return err
				}
				items = append(items, item)
			}

			if len(body.Tasks) == 0 || (body.LastPage != nil && *body.LastPage) {
				return nil
			}
			if body.LastPage == nil && len(body.Tasks) < pageSize {
				return nil
			}
		}
		r.logger.Warn("clickup pagination capped; results may be incomplete", "list_id", listID, "pages", maxPages)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetItemByID fetches one task. A missing task yields nil with no error.
func (r *Repository) GetItemByID(ctx context.Context, id string) (*Item, error) {
	var item *Item
	op := api.OperationInfo{Operation: "GetItemByID", ResourceID: id}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		var err error
		item, err = r.get(ctx, id)
		return err
	})
	return item, err
}

func (r *Repository) get(ctx context.Context, id string) (*Item, error) {
	resp, err := r.client.Get(ctx, "/task/"+url.PathEscape(id))
	if err != nil {
		if output.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	item, err := r.mapper.ToEntity(resp.Data)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem creates item in the given list.
func (r *Repository) CreateItem(ctx context.Context, item Item, listID string) (*Item, error) {
	if item.Name == "" {
		return nil, output.ErrValidation("clickup task needs a name")
	}

	var created *Item
	op := api.OperationInfo{Operation: "CreateItem", ResourceID: listID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		resp, err := r.client.Create(ctx, "/list/"+url.PathEscape(listID)+"/task", r.mapper.FromEntity(item))
		if err != nil {
			return err
		}
		c, err := r.mapper.ToEntity(resp.Data)
		if err != nil {
			return err
		}
		created = &c
		return nil
	})
	return created, err
}

// UpdateItem applies the set fields of item to the task with item's id.
// Clickup ignores custom fields on a task update, so any custom field the
// response does not reflect is written with its own request afterwards.
func (r *Repository) UpdateItem(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		return nil, output.ErrValidation("clickup task update needs an id")
	}

	var updated *Item
	op := api.OperationInfo{Operation: "UpdateItem", ResourceID: item.ID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		var err error
		updated, err = r.update(ctx, item)
		return err
	})
	return updated, err
}

func (r *Repository) update(ctx context.Context, item Item) (*Item, error) {
	body := r.mapper.FromEntity(item)
	delete(body, "custom_fields")

	var current *Item
	if len(body) > 0 {
		resp, err := r.client.Put(ctx, "/task/"+url.PathEscape(item.ID), body)
		if err != nil {
			return nil, err
		}
		c, err := r.mapper.ToEntity(resp.Data)
		if err != nil {
			return nil, err
		}
		current = &c
	} else {
		c, err := r.get(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, output.ErrNotFound("clickup task", item.ID)
		}
		current = c
	}

	pending := r.mapper.CustomFieldValues(item.Subtract(*current))
	if len(pending) == 0 {
		return current, nil
	}
	if err := r.updateCustomFields(ctx, item.ID, pending); err != nil {
		return nil, err
	}

	refreshed, err := r.get(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, output.ErrNotFound("clickup task", item.ID)
	}
	return refreshed, nil
}

// updateCustomFields sets each field with a separate request, in field id order.
func (r *Repository) updateCustomFields(ctx context.Context, taskID string, fields map[string]string) error {
	for _, fieldID := range slices.Sorted(maps.Keys(fields)) {
		path := fmt.Sprintf("/task/%s/field/%s", url.PathEscape(taskID), url.PathEscape(fieldID))
		if _, err := r.client.Post(ctx, path, map[string]any{"value": fields[fieldID]}); err != nil {
			return fmt.Errorf("set custom field %s on task %s: %w", fieldID, taskID, err)
		}
		r.logger.Debug("clickup custom field set", "task_id", taskID, "field_id", fieldID)
	}
	return nil
}

// DeleteItemByID deletes a task. It reports false when the task did not exist.
func (r *Repository) DeleteItemByID(ctx context.Context, id string) (bool, error) {
	var deleted bool
	op := api.OperationInfo{Operation: "DeleteItemByID", ResourceID: id, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		_, err := r.client.Delete(ctx, "/task/"+url.PathEscape(id))
		if err != nil {
			if output.IsNotFound(err) {
				return nil
			}
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// SetItemComplete moves the task to the configured complete status.
func (r *Repository) SetItemComplete(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		return nil, output.ErrValidation("clickup task completion needs an id")
	}

	var done *Item
	op := api.OperationInfo{Operation: "SetItemComplete", ResourceID: item.ID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		var err error
		done, err = r.update(ctx, Item{ID: item.ID, Status: r.completeStatus})
		return err
	})
	return done, err
}
