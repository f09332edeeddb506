package clickup

import (
	"encoding/json"

	"github.com/basecamp/konnector/internal/output"
)

// Webhook event names sent by Clickup.
const (
	EventTaskCreated = "taskCreated"
	EventTaskUpdated = "taskUpdated"
)

// WebhookEvent is the part of a Clickup webhook delivery konnector reads.
type WebhookEvent struct {
	Event     string
	WebhookID string
	TaskID    string
	// ListID is the parent of the first history item, the task's list.
	ListID string
	UserID string
}

// ParseWebhook decodes a Clickup webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var raw struct {
		Event        string `json:"event"`
		WebhookID    string `json:"webhook_id"`
		TaskID       string `json:"task_id"`
		HistoryItems []struct {
			ParentID string `json:"parent_id"`
			User     struct {
				ID json.Number `json:"id"`
			} `json:"user"`
		} `json:"history_items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, output.ErrValidation("invalid clickup webhook payload: %v", err)
	}
	if raw.Event == "" {
		return WebhookEvent{}, output.ErrValidation("clickup webhook payload has no event")
	}

	ev := WebhookEvent{
		Event:     raw.Event,
		WebhookID: raw.WebhookID,
		TaskID:    raw.TaskID,
	}
	if len(raw.HistoryItems) > 0 {
		ev.ListID = raw.HistoryItems[0].ParentID
		ev.UserID = raw.HistoryItems[0].User.ID.String()
	}
	if (ev.Event == EventTaskCreated || ev.Event == EventTaskUpdated) && ev.TaskID == "" {
		return WebhookEvent{}, output.ErrValidation("clickup %s webhook has no task_id", ev.Event)
	}
	return ev, nil
}
