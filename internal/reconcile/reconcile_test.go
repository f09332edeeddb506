package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
)

type fakeLister struct {
	lists map[string][]clickup.Item
	errs  map[string]error
}

func (f fakeLister) GetItems(_ context.Context, listID string) ([]clickup.Item, error) {
	if err := f.errs[listID]; err != nil {
		return nil, err
	}
	return f.lists[listID], nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	fail   map[string]error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	if u, ok := ev.(events.ClickupItemUpdated); ok {
		return d.fail[u.ItemID]
	}
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestSweepDispatchesEveryItem(t *testing.T) {
	lister := fakeLister{lists: map[string][]clickup.Item{
		"a": {{ID: "1"}, {ID: "2"}},
		"b": {{ID: "3"}},
	}}
	d := &recordingDispatcher{}
	s := NewSweeper(lister, d, []string{"a", "b"}, 0, nil)

	res, err := s.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Result{Lists: 2, Items: 3}, res)
	assert.Equal(t, []events.Event{
		events.ClickupItemUpdated{ItemID: "1", ListID: "a"},
		events.ClickupItemUpdated{ItemID: "2", ListID: "a"},
		events.ClickupItemUpdated{ItemID: "3", ListID: "b"},
	}, d.events)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	listErr := errors.New("list gone")
	itemErr := errors.New("todoist down")
	lister := fakeLister{
		lists: map[string][]clickup.Item{"b": {{ID: "1"}, {ID: "2"}}},
		errs:  map[string]error{"a": listErr},
	}
	d := &recordingDispatcher{fail: map[string]error{"1": itemErr}}
	s := NewSweeper(lister, d, []string{"a", "b"}, 0, nil)

	res, err := s.Sweep(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, listErr)
	assert.ErrorIs(t, err, itemErr)
	assert.Equal(t, Result{Lists: 2, Items: 2, Failed: 2}, res)
	assert.Equal(t, 2, d.count())
}

func TestSweepStopsWhenCancelled(t *testing.T) {
	lister := fakeLister{lists: map[string][]clickup.Item{"a": {{ID: "1"}}}}
	d := &recordingDispatcher{}
	s := NewSweeper(lister, d, []string{"a"}, 0, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, d.count())
}

func TestConfigureDefaultsInterval(t *testing.T) {
	s := NewSweeper(fakeLister{}, &recordingDispatcher{}, nil, 0, nil)
	_, interval := s.settings()
	assert.Equal(t, DefaultInterval, interval)

	s.Configure([]string{"x"}, time.Minute)
	lists, interval := s.settings()
	assert.Equal(t, []string{"x"}, lists)
	assert.Equal(t, time.Minute, interval)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	lister := fakeLister{lists: map[string][]clickup.Item{"a": {{ID: "1"}}}}
	d := &recordingDispatcher{}
	s := NewSweeper(lister, d, []string{"a"}, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return d.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
