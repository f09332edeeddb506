package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/events"
	"github.com/basecamp/konnector/internal/observability"
	"github.com/basecamp/konnector/internal/todoist"
)

const maxBodyBytes = 1 << 20

// HandleTimeout bounds the handling of one accepted delivery. Handling runs
// detached from the request context and survives the sender hanging up.
const HandleTimeout = 2 * time.Minute

// Dispatcher delivers an event to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

// controller holds what both platform controllers share. Only an
// authentication failure produces a non-200 answer: anything else is logged
// and acknowledged so the sender does not retry into a broken endpoint.
type controller struct {
	platform   string
	auth       Authenticator
	dispatcher Dispatcher
	collector  *observability.SessionCollector
	logger     *slog.Logger
}

func (c *controller) serve(w http.ResponseWriter, r *http.Request, parse func([]byte) (events.Event, error)) {
	log := c.logger.With("platform", c.platform, "request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := c.auth.Authenticate(r, body); err != nil {
		c.record(false)
		log.Warn("rejected webhook", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c.record(true)

	ev, err := parse(body)
	switch {
	case err != nil:
		log.Error("failed to parse webhook", "error", err)
	case ev == nil:
		log.Debug("ignored webhook event")
	default:
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), HandleTimeout)
		err := c.dispatcher.Dispatch(ctx, ev)
		cancel()
		if err != nil {
			log.Error("webhook handling failed", "event", ev.Name(), "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (c *controller) record(authenticated bool) {
	if c.collector != nil {
		c.collector.RecordWebhook(authenticated)
	}
}

// ClickupController accepts Clickup task webhooks.
type ClickupController struct {
	controller
}

// NewClickupController returns a controller dispatching to d.
func NewClickupController(auth Authenticator, d Dispatcher, collector *observability.SessionCollector, logger *slog.Logger) *ClickupController {
	return &ClickupController{controller{
		platform:   "clickup",
		auth:       auth,
		dispatcher: d,
		collector:  collector,
		logger:     orDiscard(logger),
	}}
}

func (c *ClickupController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, ClickupEvent)
}

// ClickupEvent translates a Clickup delivery. Events konnector does not
// react to yield nil.
func ClickupEvent(body []byte) (events.Event, error) {
	wh, err := clickup.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	switch wh.Event {
	case clickup.EventTaskCreated:
		return events.NewClickupItemCreated{ItemID: wh.TaskID, ListID: wh.ListID, UserID: wh.UserID}, nil
	case clickup.EventTaskUpdated:
		return events.ClickupItemUpdated{ItemID: wh.TaskID, ListID: wh.ListID, UserID: wh.UserID}, nil
	default:
		return nil, nil
	}
}

// TodoistController accepts Todoist item webhooks.
type TodoistController struct {
	controller
	mapper *todoist.Mapper
}

// NewTodoistController returns a controller decoding items with mapper.
func NewTodoistController(auth Authenticator, d Dispatcher, mapper *todoist.Mapper, collector *observability.SessionCollector, logger *slog.Logger) *TodoistController {
	return &TodoistController{
		controller: controller{
			platform:   "todoist",
			auth:       auth,
			dispatcher: d,
			collector:  collector,
			logger:     orDiscard(logger),
		},
		mapper: mapper,
	}
}

func (c *TodoistController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, c.event)
}

func (c *TodoistController) event(body []byte) (events.Event, error) {
	wh, err := todoist.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	if wh.EventName != todoist.EventItemAdded {
		return nil, nil
	}
	if len(wh.EventData) == 0 {
		return nil, errors.New("todoist item:added webhook has no event_data")
	}
	item, err := c.mapper.ToEntity(wh.EventData)
	if err != nil {
		return nil, err
	}
	return events.NewTodoistItemCreated{Item: item}, nil
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
