package plugin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Manager owns the plugin registry and orchestrates every lifecycle
// transition. It is a constructed object: hosts build one and hand it to
// whatever needs it, never a package-level singleton.
type Manager struct {
	mu        sync.Mutex
	registry  map[string]*instance
	order     []string
	store     Store
	events    *Dispatcher
	caps      *collector
	resources map[string]any
	prefixes  map[string]string
	log       *slog.Logger
}

// instance pairs a live plugin with the mutable state the manager owns.
// The manager is the only writer of state.
type instance struct {
	plugin Plugin
	meta   Metadata
	state  State
	config map[string]any
}

// NewManager constructs a manager. Without WithStore it operates purely in
// memory, behaving as if nothing was ever enabled before.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		registry:  make(map[string]*instance),
		events:    NewDispatcher(),
		caps:      newCollector(),
		resources: make(map[string]any),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the manager's dispatcher for subscribing to lifecycle
// notifications.
func (m *Manager) Events() *Dispatcher {
	return m.events
}

// Register stores a plugin at the discovered state. Registering a name that
// is already taken fails without mutating anything.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	meta := p.Metadata()
	if strings.TrimSpace(meta.Name) == "" {
		return errors.New("plugin name cannot be empty")
	}

	m.mu.Lock()
	if _, exists := m.registry[meta.Name]; exists {
		m.mu.Unlock()
		return duplicateName(meta.Name)
	}
	m.registry[meta.Name] = &instance{plugin: p, meta: meta, state: StateDiscovered, config: map[string]any{}}
	m.order = append(m.order, meta.Name)
	m.mu.Unlock()

	m.dispatch(EventRegistered, meta.Name, nil)
	return nil
}

// Initialize runs one-time setup and accepts the plugin's config.
func (m *Manager) Initialize(name string, config map[string]any) error {
	m.mu.Lock()
	inst, ok := m.registry[name]
	if !ok {
		m.mu.Unlock()
		return notFound(name)
	}
	if !canTransition(inst.state, StateInitialized) {
		from := inst.state
		m.mu.Unlock()
		return invalidTransition(name, from, StateInitialized)
	}
	if config != nil {
		inst.config = cloneConfig(config)
	}
	inst.state = StateInitialized
	m.mu.Unlock()

	m.dispatch(EventInitialized, name, nil)
	return nil
}

// Enable transitions a plugin into the enabled state, running OnEnable and
// pulling its capabilities into the live bundles. Enabling an already
// enabled plugin is a no-op returning nil, so persisted state can replay
// enable calls on restart. A failing OnEnable leaves the state untouched
// and propagates.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	inst, ok := m.registry[name]
	if !ok {
		m.mu.Unlock()
		return notFound(name)
	}
	if inst.state == StateEnabled {
		m.mu.Unlock()
		return nil
	}
	if !canTransition(inst.state, StateEnabled) {
		from := inst.state
		m.mu.Unlock()
		return invalidTransition(name, from, StateEnabled)
	}
	for _, dep := range inst.meta.Dependencies {
		depInst, known := m.registry[dep]
		if !known || depInst.state != StateEnabled {
			m.mu.Unlock()
			return dependencyNotEnabled(name, dep)
		}
	}
	if err := inst.plugin.OnEnable(m.hookContext(ctx, inst)); err != nil {
		m.mu.Unlock()
		return err
	}
	inst.state = StateEnabled
	config := cloneConfig(inst.config)
	m.recollectLocked()
	m.mu.Unlock()

	m.persist(ctx, name, StatusEnabled, config)
	m.dispatch(EventEnabled, name, nil)
	return nil
}

// Disable is the mirror of Enable. It refuses while any enabled plugin
// still depends on the target, and is a no-op on an already disabled one.
func (m *Manager) Disable(ctx context.Context, name string) error {
	m.mu.Lock()
	inst, ok := m.registry[name]
	if !ok {
		m.mu.Unlock()
		return notFound(name)
	}
	if inst.state == StateDisabled {
		m.mu.Unlock()
		return nil
	}
	if !canTransition(inst.state, StateDisabled) {
		from := inst.state
		m.mu.Unlock()
		return invalidTransition(name, from, StateDisabled)
	}
	if dependents := m.enabledDependentsLocked(name); len(dependents) > 0 {
		m.mu.Unlock()
		return dependencyInUse(name, dependents)
	}
	if err := inst.plugin.OnDisable(m.hookContext(ctx, inst)); err != nil {
		m.mu.Unlock()
		return err
	}
	inst.state = StateDisabled
	config := cloneConfig(inst.config)
	m.recollectLocked()
	m.mu.Unlock()

	m.persist(ctx, name, StatusDisabled, config)
	m.dispatch(EventDisabled, name, nil)
	return nil
}

// Uninstall removes a plugin from the registry, making the name available
// for re-registration. An enabled plugin is disabled first; a failing
// OnDisable aborts the uninstall.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	m.mu.Lock()
	inst, ok := m.registry[name]
	if !ok {
		m.mu.Unlock()
		return notFound(name)
	}
	wasEnabled := inst.state == StateEnabled
	if wasEnabled {
		if dependents := m.enabledDependentsLocked(name); len(dependents) > 0 {
			m.mu.Unlock()
			return dependencyInUse(name, dependents)
		}
		if err := inst.plugin.OnDisable(m.hookContext(ctx, inst)); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	inst.state = StateUninstalled
	config := cloneConfig(inst.config)
	delete(m.registry, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.recollectLocked()
	m.mu.Unlock()

	if wasEnabled {
		m.persist(ctx, name, StatusDisabled, config)
	}
	m.dispatch(EventUninstalled, name, nil)
	return nil
}

// Discover pulls plugins from a source and registers every instance whose
// name is not already taken, advancing each to the initialized state.
// Already registered names are skipped silently so re-discovery is
// idempotent. Returns the number of newly registered plugins.
func (m *Manager) Discover(ctx context.Context, source Source) (int, error) {
	if source == nil {
		return 0, errors.New("discovery source cannot be nil")
	}
	found, err := source.Discover(ctx)
	if err != nil {
		return 0, err
	}

	var registered []string
	m.mu.Lock()
	for _, p := range found {
		if p == nil {
			continue
		}
		meta := p.Metadata()
		if strings.TrimSpace(meta.Name) == "" {
			m.log.Warn("discovered plugin without a name, skipping")
			continue
		}
		if _, exists := m.registry[meta.Name]; exists {
			continue
		}
		m.registry[meta.Name] = &instance{plugin: p, meta: meta, state: StateInitialized, config: map[string]any{}}
		m.order = append(m.order, meta.Name)
		registered = append(registered, meta.Name)
	}
	m.mu.Unlock()

	for _, name := range registered {
		m.dispatch(EventRegistered, name, nil)
		m.dispatch(EventInitialized, name, nil)
	}
	return len(registered), nil
}

// LoadPersistedState restores prior enable decisions from the store. It is
// called once at startup, after discovery. Rows naming unknown plugins are
// logged and skipped; rows are applied in dependency order so a restored
// plugin never races its restored dependencies. Returns the number of
// plugins enabled.
func (m *Manager) LoadPersistedState(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	rows, err := m.store.LoadEnabled(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	byName := make(map[string]PersistedConfig, len(rows))
	for _, row := range rows {
		byName[row.Name] = row
	}

	var unknown []string
	m.mu.Lock()
	metas := m.metadataLocked()
	for name, row := range byName {
		inst, known := m.registry[name]
		if !known {
			unknown = append(unknown, name)
			continue
		}
		for k, v := range row.Config {
			inst.config[k] = v
		}
	}
	m.mu.Unlock()
	for _, name := range unknown {
		delete(byName, name)
		m.log.Warn("persisted state references unknown plugin, skipping", "plugin", name)
	}

	ordered, err := Resolve(metas)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, name := range ordered {
		if _, wanted := byName[name]; !wanted {
			continue
		}
		if err := m.Enable(ctx, name); err != nil {
			m.log.Warn("could not restore persisted plugin", "plugin", name, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// EnableAll enables every registered plugin in dependency order. Plugins
// still at the discovered state are initialized with their current config
// first. The first failure aborts and propagates.
func (m *Manager) EnableAll(ctx context.Context) error {
	m.mu.Lock()
	metas := m.metadataLocked()
	m.mu.Unlock()

	ordered, err := Resolve(metas)
	if err != nil {
		return err
	}
	for _, name := range ordered {
		m.mu.Lock()
		inst, ok := m.registry[name]
		needsInit := ok && inst.state == StateDiscovered
		m.mu.Unlock()
		if !ok {
			continue
		}
		if needsInit {
			if err := m.Initialize(name, nil); err != nil {
				return err
			}
		}
		if err := m.Enable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Plugin returns a registered plugin by name.
func (m *Manager) Plugin(name string) (Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.registry[name]
	if !ok {
		return nil, notFound(name)
	}
	return inst.plugin, nil
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(name string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.registry[name]
	if !ok {
		return "", notFound(name)
	}
	return inst.state, nil
}

// States returns every registered plugin's state keyed by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[string]State, len(m.registry))
	for name, inst := range m.registry {
		states[name] = inst.state
	}
	return states
}

// Config returns a copy of a plugin's current config map.
func (m *Manager) Config(name string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.registry[name]
	if !ok {
		return nil, notFound(name)
	}
	return cloneConfig(inst.config), nil
}

// EnabledPlugins returns the enabled plugins in registration order.
func (m *Manager) EnabledPlugins() []Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabledLocked()
}

// Plugins returns the metadata of every registered plugin in registration
// order.
func (m *Manager) Plugins() []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadataLocked()
}

// ResolveOrder returns a dependency-respecting total order over the
// registered plugins, or a cycle error.
func (m *Manager) ResolveOrder() ([]string, error) {
	m.mu.Lock()
	metas := m.metadataLocked()
	m.mu.Unlock()
	return Resolve(metas)
}

// Capabilities returns the current bundle for a capability kind.
func (m *Manager) Capabilities(kind Kind) []CapabilityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps.get(kind)
}

func (m *Manager) enabledLocked() []Plugin {
	enabled := make([]Plugin, 0, len(m.order))
	for _, name := range m.order {
		if inst, ok := m.registry[name]; ok && inst.state == StateEnabled {
			enabled = append(enabled, inst.plugin)
		}
	}
	return enabled
}

func (m *Manager) metadataLocked() []Metadata {
	metas := make([]Metadata, 0, len(m.order))
	for _, name := range m.order {
		if inst, ok := m.registry[name]; ok {
			metas = append(metas, inst.meta)
		}
	}
	return metas
}

func (m *Manager) enabledDependentsLocked(name string) []string {
	var dependents []string
	for _, other := range m.order {
		inst, ok := m.registry[other]
		if !ok || inst.state != StateEnabled {
			continue
		}
		for _, dep := range inst.meta.Dependencies {
			if dep == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	return dependents
}

// recollectLocked rebuilds the capability bundles from the enabled set.
// Callers must hold m.mu.
func (m *Manager) recollectLocked() {
	m.caps.collect(m.enabledLocked(), m.prefixFor)
}

func (m *Manager) prefixFor(name string) string {
	if prefix, ok := m.prefixes[name]; ok {
		return prefix
	}
	return "/" + name
}

func (m *Manager) hookContext(ctx context.Context, inst *instance) *HookContext {
	return &HookContext{C: ctx, Config: cloneConfig(inst.config), Resources: m.resources}
}

// persist writes the transition through the store. A store failure does not
// roll the in-memory transition back; the divergence is logged and repaired
// by the next successful save.
func (m *Manager) persist(ctx context.Context, name, status string, config map[string]any) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, name, status, config); err != nil {
		m.log.Error("persisting plugin state failed", "plugin", name, "status", status, "error", err)
	}
}

func (m *Manager) dispatch(event, pluginName string, data map[string]any) {
	if m.events == nil {
		return
	}
	if err := m.events.Dispatch(newEvent(event, pluginName, data)); err != nil {
		m.log.Warn("lifecycle event handler failed", "event", event, "plugin", pluginName, "error", err)
	}
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}
