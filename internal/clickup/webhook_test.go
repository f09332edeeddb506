package clickup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	body := `{
	  "event": "taskUpdated",
	  "task_id": "86a1b2c3",
	  "webhook_id": "wh-1",
	  "history_items": [
	    {"id": "h1", "field": "status", "parent_id": "38260663", "user": {"id": 183, "username": "sam"}}
	  ]
	}`

	ev, err := ParseWebhook([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, EventTaskUpdated, ev.Event)
	assert.Equal(t, "86a1b2c3", ev.TaskID)
	assert.Equal(t, "38260663", ev.ListID)
	assert.Equal(t, "183", ev.UserID)
	assert.Equal(t, "wh-1", ev.WebhookID)
}

func TestParseWebhookWithoutHistory(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event": "taskCreated", "task_id": "1"}`))
	require.NoError(t, err)
	assert.Equal(t, "", ev.ListID)
	assert.Equal(t, "", ev.UserID)
}

func TestParseWebhookErrors(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `{`,
		"no event":        `{"task_id": "1"}`,
		"task without id": `{"event": "taskCreated"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebhook([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseWebhookOtherEventsNeedNoTask(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event": "listUpdated"}`))
	require.NoError(t, err)
	assert.Equal(t, "listUpdated", ev.Event)
}
