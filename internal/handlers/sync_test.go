package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
	"github.com/basecamp/konnector/internal/platform"
	"github.com/basecamp/konnector/internal/todoist"
)

const (
	nextActions  = "next-actions"
	todoistInbox = "todoist-inbox"
	clickupInbox = "clickup-inbox"
)

var now = time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)

func testSettings() *Settings {
	return NewSettings(Lists{
		TodoistInboxProjects: []string{todoistInbox},
		TodoistNextActions:   nextActions,
		ClickupInbox:         clickupInbox,
	})
}

func newSync(cu *fakeClickup, td *fakeTodoist, opts ...SyncOption) *SyncClickupItemToTodoist {
	opts = append([]SyncOption{WithClock(func() time.Time { return now })}, opts...)
	return NewSyncClickupItemToTodoist(cu, td, testSettings(), time.UTC, opts...)
}

func due(d time.Duration) *clickup.Datetime {
	dt := clickup.NewDatetime(now.Add(d), true, time.UTC)
	return &dt
}

func TestNextActionsCriteria(t *testing.T) {
	tests := []struct {
		name string
		item clickup.Item
		want bool
	}{
		{
			name: "wrong status is never a next action",
			item: clickup.Item{Status: "in progress", Priority: ptr(clickup.MustPriority(1)), EndDatetime: due(time.Hour)},
			want: false,
		},
		{
			name: "urgent subtask without due date",
			item: clickup.Item{Status: NextActionStatus, Priority: ptr(clickup.MustPriority(1)), Parent: "p"},
			want: true,
		},
		{
			name: "high priority subtask",
			item: clickup.Item{Status: NextActionStatus, Priority: ptr(clickup.MustPriority(2)), Parent: "p"},
			want: true,
		},
		{
			name: "normal priority is not urgent",
			item: clickup.Item{Status: NextActionStatus, Priority: ptr(clickup.MustPriority(3)), Parent: "p"},
			want: false,
		},
		{
			name: "low priority subtask due in ten days",
			item: clickup.Item{Status: NextActionStatus, Priority: ptr(clickup.MustPriority(4)), EndDatetime: due(10 * 24 * time.Hour), Parent: "p"},
			want: false,
		},
		{
			name: "subtask due in two days",
			item: clickup.Item{Status: NextActionStatus, EndDatetime: due(48 * time.Hour), Parent: "p"},
			want: true,
		},
		{
			name: "overdue subtask",
			item: clickup.Item{Status: NextActionStatus, EndDatetime: due(-time.Hour), Parent: "p"},
			want: true,
		},
		{
			name: "top-level task without priority or due date",
			item: clickup.Item{Status: NextActionStatus},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextActionsCriteria(tt.item, now))
		})
	}
}

func TestCounterpartDirectLookup(t *testing.T) {
	mirror := todoist.Item{ID: "td1", Content: "x", ProjectID: nextActions}
	td := newFakeTodoist(mirror)
	h := newSync(newFakeClickup(), td)

	got, err := h.Counterpart(t.Context(), clickup.Item{
		ID:          "cu1",
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td1"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "td1", got.ID)
	assert.Equal(t, []string{"GetItemByID td1"}, td.calls, "list scan must not run")
}

func TestCounterpartScanWhenIDMissing(t *testing.T) {
	td := newFakeTodoist(
		todoist.Item{ID: "td1", ProjectID: nextActions, ExternalIDs: platform.ExternalIDs{platform.Clickup: "other"}},
		todoist.Item{ID: "td2", ProjectID: nextActions, ExternalIDs: platform.ExternalIDs{platform.Clickup: "cu1"}},
	)
	h := newSync(newFakeClickup(), td)

	got, err := h.Counterpart(t.Context(), clickup.Item{ID: "cu1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "td2", got.ID)
	assert.Equal(t, []string{"GetItems " + nextActions}, td.calls)
}

func TestCounterpartScanWhenStoredIDIsStale(t *testing.T) {
	td := newFakeTodoist(
		todoist.Item{ID: "td2", ProjectID: nextActions, ExternalIDs: platform.ExternalIDs{platform.Clickup: "cu1"}},
	)
	h := newSync(newFakeClickup(), td)

	got, err := h.Counterpart(t.Context(), clickup.Item{
		ID:          "cu1",
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "gone"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "td2", got.ID)
	assert.Equal(t, []string{"GetItemByID gone", "GetItems " + nextActions}, td.calls)
}

// Scenario B: an urgent next action without a mirror gets one.
func TestSyncCreatesMirror(t *testing.T) {
	cu := newFakeClickup(clickup.Item{
		ID:       "cu1",
		Name:     "Write report",
		Status:   NextActionStatus,
		Priority: ptr(clickup.MustPriority(1)),
		Parent:   "parent",
	})
	td := newFakeTodoist()
	h := newSync(cu, td, WithLinkBack(false))

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	require.NotNil(t, mirror)

	assert.Equal(t, nextActions, mirror.ProjectID)
	assert.Equal(t, "Write report", mirror.Content)
	require.NotNil(t, mirror.Priority)
	assert.Equal(t, 4, mirror.Priority.Int())
	assert.Equal(t, "cu1", mirror.ExternalIDs.Get(platform.Clickup))
	assert.NotContains(t, cu.calls, "UpdateItem cu1")
}

func TestSyncLinksBackAfterCreate(t *testing.T) {
	cu := newFakeClickup(clickup.Item{ID: "cu1", Name: "Top level", Status: NextActionStatus})
	td := newFakeTodoist()
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	require.NotNil(t, mirror)

	assert.Equal(t, []string{"GetItemByID cu1", "UpdateItem cu1"}, cu.calls)
	assert.Equal(t, mirror.ID, cu.items["cu1"].ExternalIDs.Get(platform.Todoist))
}

func TestSyncLinkBackFailurePropagates(t *testing.T) {
	cu := newFakeClickup(clickup.Item{ID: "cu1", Name: "Top level", Status: NextActionStatus})
	cu.updateErr = errors.New("custom field rejected")
	h := newSync(cu, newFakeTodoist())

	mirror, err := h.Sync(t.Context(), "cu1")
	require.Error(t, err)
	assert.ErrorIs(t, err, cu.updateErr)
	assert.NotNil(t, mirror, "the mirror was still created")
}

func TestSyncUpdatesMirrorSparsely(t *testing.T) {
	cu := newFakeClickup(clickup.Item{
		ID:          "cu1",
		Name:        "Renamed",
		Status:      NextActionStatus,
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td1"},
	})
	td := newFakeTodoist(todoist.Item{
		ID:          "td1",
		Content:     "Original",
		Priority:    ptr(todoist.MustPriority(1)),
		ProjectID:   nextActions,
		ExternalIDs: platform.ExternalIDs{platform.Clickup: "cu1"},
	})
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	require.NotNil(t, mirror)
	assert.Equal(t, "Renamed", mirror.Content)

	require.Len(t, td.updates, 1)
	assert.Equal(t, todoist.Item{ID: "td1", Content: "Renamed"}, td.updates[0])
	assert.Equal(t, []string{"GetItemByID cu1"}, cu.calls, "ids already linked")
}

func TestSyncSkipsUpToDateMirror(t *testing.T) {
	cu := newFakeClickup(clickup.Item{
		ID:          "cu1",
		Name:        "Same",
		Status:      NextActionStatus,
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td1"},
	})
	td := newFakeTodoist(todoist.Item{
		ID:          "td1",
		Content:     "Same",
		ProjectID:   nextActions,
		ExternalIDs: platform.ExternalIDs{platform.Clickup: "cu1"},
	})
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	require.NotNil(t, mirror)
	assert.Empty(t, td.updates)
}

// Scenario C: a completed task loses its mirror.
func TestSyncDeletesMirrorWhenNoLongerNextAction(t *testing.T) {
	cu := newFakeClickup(clickup.Item{
		ID:          "cu1",
		Name:        "Done",
		Status:      "complete",
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td1"},
	})
	td := newFakeTodoist(todoist.Item{ID: "td1", Content: "Done", ProjectID: nextActions})
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	assert.Nil(t, mirror)
	assert.NotContains(t, td.items, "td1")
	assert.Contains(t, td.calls, "DeleteItemByID td1")
}

func TestSyncNoopWithoutMirror(t *testing.T) {
	cu := newFakeClickup(clickup.Item{ID: "cu1", Status: "backlog"})
	td := newFakeTodoist()
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	assert.Nil(t, mirror)
	assert.Equal(t, []string{"GetItems " + nextActions}, td.calls)
}

func TestSyncDeletedSourceRemovesMirror(t *testing.T) {
	td := newFakeTodoist(todoist.Item{
		ID:          "td1",
		ProjectID:   nextActions,
		ExternalIDs: platform.ExternalIDs{platform.Clickup: "gone"},
	})
	h := newSync(newFakeClickup(), td)

	mirror, err := h.Sync(t.Context(), "gone")
	require.NoError(t, err)
	assert.Nil(t, mirror)
	assert.Equal(t, []string{"GetItems " + nextActions, "DeleteItemByID td1"}, td.calls)
}

func TestSyncPropagatesRemoteErrors(t *testing.T) {
	cu := newFakeClickup(clickup.Item{ID: "cu1", Status: "complete", ExternalIDs: platform.ExternalIDs{platform.Todoist: "td1"}})
	td := newFakeTodoist(todoist.Item{ID: "td1", ProjectID: nextActions})
	td.deleteErr = errors.New("todoist 500")
	h := newSync(cu, td)

	_, err := h.Sync(t.Context(), "cu1")
	assert.ErrorIs(t, err, td.deleteErr)
}

func TestSyncEventsThroughBus(t *testing.T) {
	cu := newFakeClickup(clickup.Item{ID: "cu1", Name: "Top level", Status: NextActionStatus})
	td := newFakeTodoist()
	sync := newSync(cu, td, WithLinkBack(false))
	move := NewMoveNewTodoistItemToClickup(cu, td, testSettings(), time.UTC, nil)

	bus := events.NewBus(nil, nil)
	Register(bus, move, sync)

	require.NoError(t, bus.Dispatch(t.Context(), events.NewClickupItemCreated{ItemID: "cu1"}))
	require.Len(t, td.items, 1)

	cu.items["cu1"] = clickup.Item{ID: "cu1", Name: "Top level", Status: "complete"}
	require.NoError(t, bus.Dispatch(t.Context(), events.ClickupItemUpdated{ItemID: "cu1"}))
	assert.Empty(t, td.items)
}

func TestCounterpartIgnoresStoredIDOutsideNextActions(t *testing.T) {
	td := newFakeTodoist(todoist.Item{ID: "td9", Content: "Buy milk", ProjectID: todoistInbox})
	h := newSync(newFakeClickup(), td)

	got, err := h.Counterpart(t.Context(), clickup.Item{
		ID:          "cu1",
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td9"},
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"GetItemByID td9", "GetItems " + nextActions}, td.calls)
}

// A Todoist inbox task left behind by a move keeps its description: the
// mirror is created in next actions instead of overwriting it.
func TestSyncLeavesStrayInboxTaskAlone(t *testing.T) {
	cu := newFakeClickup(clickup.Item{
		ID:          "cu1",
		Name:        "Buy milk",
		Status:      NextActionStatus,
		ExternalIDs: platform.ExternalIDs{platform.Todoist: "td9"},
	})
	stray := todoist.Item{ID: "td9", Content: "Buy milk", Description: "2% please", ProjectID: todoistInbox}
	td := newFakeTodoist(stray)
	h := newSync(cu, td)

	mirror, err := h.Sync(t.Context(), "cu1")
	require.NoError(t, err)
	require.NotNil(t, mirror)

	assert.NotEqual(t, "td9", mirror.ID)
	assert.Equal(t, nextActions, mirror.ProjectID)
	assert.Empty(t, td.updates)
	assert.Equal(t, stray, td.items["td9"])
	assert.Equal(t, mirror.ID, cu.items["cu1"].ExternalIDs.Get(platform.Todoist))
}
