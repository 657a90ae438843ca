package plugin

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event names dispatched by the manager.
const (
	EventRegistered  = "plugin.registered"
	EventInitialized = "plugin.initialized"
	EventEnabled     = "plugin.enabled"
	EventDisabled    = "plugin.disabled"
	EventUninstalled = "plugin.uninstalled"
)

// Event describes one lifecycle notification.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	PluginName string         `json:"plugin_name"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt int64          `json:"occurred_at"`
}

// Handler consumes lifecycle events. Handler errors are the handler's own
// problem: the dispatcher logs nothing and transitions never depend on
// delivery succeeding.
type Handler interface {
	Handle(event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(event Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(event Event) error { return f(event) }

type subscription struct {
	priority int
	seq      int
	handler  Handler
}

// Dispatcher fans lifecycle events out to subscribed handlers. Handlers for
// an event name run in descending priority order; equal priorities run in
// subscription order.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	seq  int
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(event string, priority int, handler Handler) {
	if event == "" || handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.subs[event] = append(d.subs[event], subscription{priority: priority, seq: d.seq, handler: handler})
	sort.SliceStable(d.subs[event], func(i, j int) bool {
		a, b := d.subs[event][i], d.subs[event][j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.seq < b.seq
	})
}

// SubscribeAll registers a handler for every lifecycle event name.
func (d *Dispatcher) SubscribeAll(priority int, handler Handler) {
	for _, name := range []string{EventRegistered, EventInitialized, EventEnabled, EventDisabled, EventUninstalled} {
		d.Subscribe(name, priority, handler)
	}
}

// Dispatch delivers an event to every subscriber. Handler errors do not
// stop delivery to the remaining handlers; the first error is returned.
func (d *Dispatcher) Dispatch(event Event) error {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs[event.Name]))
	copy(subs, d.subs[event.Name])
	d.mu.RUnlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.handler.Handle(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newEvent(name, pluginName string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		PluginName: pluginName,
		Data:       data,
		OccurredAt: time.Now().Unix(),
	}
}
