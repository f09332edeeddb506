package todoist

import (
	"encoding/json"

	"github.com/basecamp/konnector/internal/output"
)

// EventItemAdded is the webhook event for a newly created task.
const EventItemAdded = "item:added"

// WebhookEvent is a Todoist webhook delivery.
type WebhookEvent struct {
	EventName string          `json:"event_name"`
	UserID    flexID          `json:"user_id"`
	EventData json.RawMessage `json:"event_data"`
}

// ParseWebhook decodes a Todoist webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, output.ErrValidation("invalid todoist webhook payload: %v", err)
	}
	if ev.EventName == "" {
		return WebhookEvent{}, output.ErrValidation("todoist webhook payload has no event_name")
	}
	return ev, nil
}

// flexID accepts ids sent either as JSON strings or as numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
