package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basecamp/konnector/internal/observability"
)

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// On adapts a handler for a concrete event type. Events of other types are
// ignored.
func On[E Event](fn func(ctx context.Context, ev E) error) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	})
}

// Bus routes events to the handlers registered for their name.
//
// Dispatch is serialized: an event is handled to completion before the next
// one starts, whichever goroutine delivered it.
type Bus struct {
	regMu    sync.RWMutex
	handlers map[string][]Handler

	dispatchMu sync.Mutex
	logger     *slog.Logger
	collector  *observability.SessionCollector
}

// NewBus returns an empty bus. A nil logger discards output; a nil collector
// disables counting.
func NewBus(logger *slog.Logger, collector *observability.SessionCollector) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		handlers:  make(map[string][]Handler),
		logger:    logger,
		collector: collector,
	}
}

// Register appends handlers for the named event. Handlers run in
// registration order.
func (b *Bus) Register(name string, handlers ...Handler) {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	b.handlers[name] = append(b.handlers[name], handlers...)
}

// Handlers returns how many handlers are registered for name.
func (b *Bus) Handlers(name string) int {
	b.regMu.RLock()
	defer b.regMu.RUnlock()
	return len(b.handlers[name])
}

// Dispatch runs every handler registered for ev. All handlers run even when
// one fails; the failures are joined.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	b.regMu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Name()]...)
	b.regMu.RUnlock()

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	delivery := uuid.NewString()
	log := b.logger.With("event", ev.Name(), "delivery", delivery)
	if len(handlers) == 0 {
		log.Debug("no handlers for event")
		return nil
	}

	start := time.Now()
	var errs []error
	for i, h := range handlers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := h.Handle(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", ev.Name(), i, err))
		}
	}
	err := errors.Join(errs...)

	if b.collector != nil {
		b.collector.RecordDispatch(err)
	}
	if err != nil {
		log.Error("event handling failed", "error", err, "duration", time.Since(start))
	} else {
		log.Info("event handled", "handlers", len(handlers), "duration", time.Since(start))
	}
	return err
}
