package handlers

import "github.com/basecamp/konnector/internal/events"

// Register subscribes the handlers to the events they react to.
func Register(bus *events.Bus, move *MoveNewTodoistItemToClickup, sync *SyncClickupItemToTodoist) {
	bus.Register(events.NameNewTodoistItemCreated, events.On(move.Handle))
	bus.Register(events.NameNewClickupItemCreated, events.On(sync.HandleCreated))
	bus.Register(events.NameClickupItemUpdated, events.On(sync.HandleUpdated))
}
