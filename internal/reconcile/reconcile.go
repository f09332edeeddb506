// Package reconcile periodically replays Clickup tasks through the bus so
// changes missed by webhooks are still mirrored.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 15 * time.Minute

// Lister lists the tasks of a Clickup list.
type Lister interface {
	GetItems(ctx context.Context, listID string) ([]clickup.Item, error)
}

// Dispatcher delivers an event to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

// Result summarizes one sweep.
type Result struct {
	Lists  int `json:"lists"`
	Items  int `json:"items"`
	Failed int `json:"failed"`
}

// Sweeper replays every task of the configured lists as ClickupItemUpdated.
type Sweeper struct {
	lister     Lister
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.RWMutex
	lists    []string
	interval time.Duration
}

// NewSweeper returns a sweeper over lists.
func NewSweeper(lister Lister, d Dispatcher, lists []string, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Sweeper{lister: lister, dispatcher: d, logger: logger}
	s.Configure(lists, interval)
	return s
}

// Configure replaces the swept lists and the interval. A non-positive
// interval falls back to DefaultInterval.
func (s *Sweeper) Configure(lists []string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = slices.Clone(lists)
	s.interval = interval
}

func (s *Sweeper) settings() ([]string, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lists), s.interval
}

// Sweep visits every configured list once. A failing item or list is
// logged and skipped; the failures are joined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	lists, _ := s.settings()
	res := Result{Lists: len(lists)}
	var errs []error

	for _, listID := range lists {
		items, err := s.lister.GetItems(ctx, listID)
		if err != nil {
			s.logger.Error("reconcile: listing clickup tasks failed", "list_id", listID, "error", err)
			errs = append(errs, fmt.Errorf("list %s: %w", listID, err))
			res.Failed++
			continue
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return res, errors.Join(append(errs, err)...)
			}
			res.Items++
			ev := events.ClickupItemUpdated{ItemID: item.ID, ListID: listID}
			if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
				s.logger.Warn("reconcile: task failed", "clickup_id", item.ID, "error", err)
				errs = append(errs, fmt.Errorf("task %s: %w", item.ID, err))
				res.Failed++
			}
		}
	}

	s.logger.Info("reconcile sweep finished", "lists", res.Lists, "items", res.Items, "failed", res.Failed)
	return res, errors.Join(errs...)
}

// Run sweeps immediately and then on every interval until ctx is done.
// Sweep failures are logged, never returned.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("reconcile sweep had failures", "error", err)
		}

		_, interval := s.settings()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
