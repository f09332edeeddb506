package todoist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/basecamp/konnector/internal/api"
	"github.com/basecamp/konnector/internal/output"
)

// DefaultBaseURL is the Todoist REST v2 endpoint.
const DefaultBaseURL = "https://api.todoist.com/rest/v2"

// Repository reads and writes Todoist tasks.
type Repository struct {
	client *api.Client
	mapper *Mapper
	logger *slog.Logger
}

// NewRepository returns a repository backed by client.
func NewRepository(client *api.Client, mapper *Mapper, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repository{client: client, mapper: mapper, logger: logger}
}

// Mapper returns the mapper used to decode tasks.
func (r *Repository) Mapper() *Mapper {
	return r.mapper
}

// GetItems lists the active tasks of a project, or of every project when
// projectID is empty. A missing project yields no items.
func (r *Repository) GetItems(ctx context.Context, projectID string) ([]Item, error) {
	var items []Item
	op := api.OperationInfo{Operation: "GetItems", ResourceID: projectID}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		path := "/tasks"
		if projectID != "" {
			path += "?project_id=" + url.QueryEscape(projectID)
		}
		resp, err := r.client.Get(ctx, path)
		if err != nil {
			if output.IsNotFound(err) {
				return nil
			}
			return err
		}

		var tasks []taskJSON
		if err := resp.UnmarshalData(&tasks); err != nil {
			return fmt.Errorf("failed to parse todoist task list: %w", err)
		}
		for _, t := range tasks {
			item, err := r.mapper.toEntity(t)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
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
	resp, err := r.client.Get(ctx, "/tasks/"+url.PathEscape(id))
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

// CreateItem creates item in the given project.
func (r *Repository) CreateItem(ctx context.Context, item Item, projectID string) (*Item, error) {
	if item.Content == "" {
		return nil, output.ErrValidation("todoist task needs content")
	}

	body := r.mapper.FromEntity(item)
	if projectID != "" {
		body["project_id"] = projectID
	}

	var created *Item
	op := api.OperationInfo{Operation: "CreateItem", ResourceID: projectID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		resp, err := r.client.Create(ctx, "/tasks", body)
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
func (r *Repository) UpdateItem(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		return nil, output.ErrValidation("todoist task update needs an id")
	}

	var updated *Item
	op := api.OperationInfo{Operation: "UpdateItem", ResourceID: item.ID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		resp, err := r.client.Post(ctx, "/tasks/"+url.PathEscape(item.ID), r.mapper.FromEntity(item))
		if err != nil {
			return err
		}
		if len(resp.Data) > 0 && json.Valid(resp.Data) {
			u, err := r.mapper.ToEntity(resp.Data)
			if err != nil {
				return err
			}
			updated = &u
			return nil
		}
		// Older API revisions answer 204 without a body.
		updated, err = r.get(ctx, item.ID)
		if err == nil && updated == nil {
			err = output.ErrNotFound("todoist task", item.ID)
		}
		return err
	})
	return updated, err
}

// DeleteItemByID deletes a task. It reports false when the task did not exist.
func (r *Repository) DeleteItemByID(ctx context.Context, id string) (bool, error) {
	var deleted bool
	op := api.OperationInfo{Operation: "DeleteItemByID", ResourceID: id, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		_, err := r.client.Delete(ctx, "/tasks/"+url.PathEscape(id))
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

// SetItemComplete closes the task. Closing a task that is already completed
// is a usage error.
func (r *Repository) SetItemComplete(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		return nil, output.ErrValidation("todoist task completion needs an id")
	}

	var done *Item
	op := api.OperationInfo{Operation: "SetItemComplete", ResourceID: item.ID, IsMutation: true}
	err := r.client.Operation(ctx, op, func(ctx context.Context) error {
		current, err := r.get(ctx, item.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return output.ErrNotFound("todoist task", item.ID)
		}
		if current.IsCompleted {
			return output.ErrUsage(fmt.Sprintf("todoist task %s is already completed", item.ID))
		}

		if _, err := r.client.Post(ctx, "/tasks/"+url.PathEscape(item.ID)+"/close", nil); err != nil {
			return err
		}
		c := current.Clone()
		c.IsCompleted = true
		done = &c
		r.logger.Debug("todoist task closed", "task_id", item.ID)
		return nil
	})
	return done, err
}
