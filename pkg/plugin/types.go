package plugin

// Metadata is the immutable identity record carried by every plugin.
type Metadata struct {
	// Name is the unique registration key within a single manager.
	Name        string
	Version     string
	Author      string
	Description string
	// Dependencies lists plugin names that must be enabled before this one.
	Dependencies []string
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	// StateDiscovered means the plugin is registered and validated but has
	// not yet been given a chance to initialise.
	StateDiscovered State = "discovered"
	// StateInitialized means one-time setup ran and config was accepted.
	StateInitialized State = "initialized"
	// StateEnabled means OnEnable ran and capabilities are live.
	StateEnabled State = "enabled"
	// StateDisabled means OnDisable ran and capabilities are withdrawn.
	StateDisabled State = "disabled"
	// StateUninstalled is terminal; the name becomes available again.
	StateUninstalled State = "uninstalled"
)

// legalTransitions enumerates the permitted lifecycle moves. Uninstall is
// handled separately since it is legal from any non-terminal state.
var legalTransitions = map[State][]State{
	StateDiscovered:  {StateInitialized},
	StateInitialized: {StateEnabled},
	StateEnabled:     {StateDisabled},
	StateDisabled:    {StateEnabled},
}

func canTransition(from, to State) bool {
	if to == StateUninstalled {
		return from != StateUninstalled
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kind identifies a capability category the host knows how to mount.
type Kind string

const (
	// KindRoute is an HTTP handler a plugin wants mounted.
	KindRoute Kind = "route"
	// KindTranslation is a set of localized text bundles.
	KindTranslation Kind = "translation"
	// KindComponent is a UI-mountable unit description.
	KindComponent Kind = "component"
)

// Kinds returns every capability kind the collector gathers. New kinds are
// added here and in the collector, never in individual plugins.
func Kinds() []Kind {
	return []Kind{KindRoute, KindTranslation, KindComponent}
}
