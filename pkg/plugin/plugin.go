package plugin

import (
	"context"
	"log/slog"
	"net/http"
)

// Plugin defines the contract every extension must satisfy. The manager is
// the only caller of the lifecycle hooks; plugins must not transition
// themselves.
type Plugin interface {
	// Metadata returns the static identity of the plugin.
	Metadata() Metadata
	// OnEnable is invoked exactly once per transition into the enabled
	// state. Returning an error aborts the transition.
	OnEnable(ctx *HookContext) error
	// OnDisable is invoked exactly once per transition into the disabled
	// state. Returning an error aborts the transition.
	OnDisable(ctx *HookContext) error
}

// HookContext is passed to plugins for every lifecycle hook invocation.
type HookContext struct {
	// C is the underlying context for cancellation and deadlines.
	C context.Context
	// Config is the plugin specific configuration block, merged with any
	// persisted overrides. The plugin owns the schema of its own config.
	Config map[string]any
	// Resources exposes shared services supplied by the host application.
	Resources map[string]any
}

// Clone returns a shallow copy so plugins can safely mutate the maps.
func (c *HookContext) Clone() *HookContext {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Config != nil {
		dup.Config = make(map[string]any, len(c.Config))
		for k, v := range c.Config {
			dup.Config[k] = v
		}
	}
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return &dup
}

// Route is an HTTP handler a plugin asks the host to mount.
type Route struct {
	// Method is the HTTP method; empty means any.
	Method string
	// Path is relative to the owner's mount prefix.
	Path    string
	Handler http.Handler
}

// Component describes a UI-mountable unit contributed by a plugin.
type Component struct {
	// Slot names the host surface the component attaches to.
	Slot string
	// Source points at the renderable artifact (template, bundle path).
	Source string
	Props  map[string]any
}

// RouteProvider is implemented by plugins that expose HTTP routes.
// Plugins that offer no routes simply do not implement it.
type RouteProvider interface {
	Routes() []Route
}

// TranslationProvider is implemented by plugins that ship localized text.
// The outer key is the locale, the inner map the message bundle.
type TranslationProvider interface {
	Translations() map[string]map[string]string
}

// ComponentProvider is implemented by plugins that contribute UI units.
type ComponentProvider interface {
	Components() []Component
}

// Option modifies the behaviour of a manager instance.
type Option func(*Manager)

// WithStore attaches a persistence store. Without one the manager operates
// purely in memory, behaving as if nothing was ever enabled before.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithResource registers a shared resource exposed to every plugin hook.
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		if m.resources == nil {
			m.resources = make(map[string]any)
		}
		m.resources[key] = value
	}
}

// WithMountPrefix sets the mount prefix recorded on capability entries for
// the named plugin. Unset plugins default to "/" + name.
func WithMountPrefix(name, prefix string) Option {
	return func(m *Manager) {
		if m.prefixes == nil {
			m.prefixes = make(map[string]string)
		}
		m.prefixes[name] = prefix
	}
}

// WithDispatcher replaces the manager's event dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(m *Manager) {
		if d != nil {
			m.events = d
		}
	}
}
