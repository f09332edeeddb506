package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/todoist"
)

// fakeClickup is an in-memory Clickup repository that records calls.
type fakeClickup struct {
	items     map[string]clickup.Item
	lists     map[string]string
	calls     []string
	nextID    int
	createErr error
	updateErr error
}

func newFakeClickup(items ...clickup.Item) *fakeClickup {
	f := &fakeClickup{items: make(map[string]clickup.Item), lists: make(map[string]string)}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeClickup) GetItems(_ context.Context, listID string) ([]clickup.Item, error) {
	f.calls = append(f.calls, "GetItems "+listID)
	var out []clickup.Item
	for _, id := range sortedKeys(f.items) {
		if f.lists[id] == listID {
			out = append(out, f.items[id])
		}
	}
	return out, nil
}

func (f *fakeClickup) GetItemByID(_ context.Context, id string) (*clickup.Item, error) {
	f.calls = append(f.calls, "GetItemByID "+id)
	it, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (f *fakeClickup) CreateItem(_ context.Context, item clickup.Item, listID string) (*clickup.Item, error) {
	f.calls = append(f.calls, "CreateItem "+listID)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	item.ID = fmt.Sprintf("cu%d", f.nextID)
	f.items[item.ID] = item
	f.lists[item.ID] = listID
	return &item, nil
}

func (f *fakeClickup) UpdateItem(_ context.Context, item clickup.Item) (*clickup.Item, error) {
	f.calls = append(f.calls, "UpdateItem "+item.ID)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	cur, ok := f.items[item.ID]
	if !ok {
		return nil, output.ErrNotFound("clickup task", item.ID)
	}
	for p, id := range item.ExternalIDs {
		cur.ExternalIDs = cur.ExternalIDs.With(p, id)
	}
	f.items[item.ID] = cur
	return &cur, nil
}

func (f *fakeClickup) DeleteItemByID(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, "DeleteItemByID "+id)
	_, ok := f.items[id]
	delete(f.items, id)
	return ok, nil
}

func (f *fakeClickup) SetItemComplete(_ context.Context, item clickup.Item) (*clickup.Item, error) {
	return nil, errors.New("not used")
}

// fakeTodoist is an in-memory Todoist repository that records calls.
type fakeTodoist struct {
	items     map[string]todoist.Item
	calls     []string
	updates   []todoist.Item
	nextID    int
	deleteErr error
}

func newFakeTodoist(items ...todoist.Item) *fakeTodoist {
	f := &fakeTodoist{items: make(map[string]todoist.Item)}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeTodoist) GetItems(_ context.Context, projectID string) ([]todoist.Item, error) {
	f.calls = append(f.calls, "GetItems "+projectID)
	var out []todoist.Item
	for _, id := range sortedKeys(f.items) {
		if f.items[id].ProjectID == projectID {
			out = append(out, f.items[id])
		}
	}
	return out, nil
}

func (f *fakeTodoist) GetItemByID(_ context.Context, id string) (*todoist.Item, error) {
	f.calls = append(f.calls, "GetItemByID "+id)
	it, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (f *fakeTodoist) CreateItem(_ context.Context, item todoist.Item, projectID string) (*todoist.Item, error) {
	f.calls = append(f.calls, "CreateItem "+projectID)
	f.nextID++
	item.ID = fmt.Sprintf("td%d", f.nextID)
	item.ProjectID = projectID
	f.items[item.ID] = item
	return &item, nil
}

func (f *fakeTodoist) UpdateItem(_ context.Context, item todoist.Item) (*todoist.Item, error) {
	f.calls = append(f.calls, "UpdateItem "+item.ID)
	f.updates = append(f.updates, item)
	cur, ok := f.items[item.ID]
	if !ok {
		return nil, output.ErrNotFound("todoist task", item.ID)
	}
	if item.Content != "" {
		cur.Content = item.Content
	}
	if item.Priority != nil {
		cur.Priority = item.Priority
	}
	if item.EndDatetime != nil {
		cur.EndDatetime = item.EndDatetime
	}
	f.items[item.ID] = cur
	return &cur, nil
}

func (f *fakeTodoist) DeleteItemByID(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, "DeleteItemByID "+id)
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	_, ok := f.items[id]
	delete(f.items, id)
	return ok, nil
}

func (f *fakeTodoist) SetItemComplete(_ context.Context, item todoist.Item) (*todoist.Item, error) {
	return nil, errors.New("not used")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr[T any](v T) *T { return &v }
