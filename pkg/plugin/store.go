package plugin

import "context"

// Persisted status values written by the manager.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// PersistedConfig is one durable enable/disable decision with its config
// blob, as returned by a store at startup.
type PersistedConfig struct {
	Name   string
	Status string
	Config map[string]any
}

// Store is the persistence collaborator the manager writes enable/disable
// decisions through. Any durable backend works; implementations live with
// the host. A nil store means purely in-memory operation.
type Store interface {
	// Save upserts the record for name. Implementations stamp the enabled
	// or disabled timestamp depending on status.
	Save(ctx context.Context, name, status string, config map[string]any) error
	// LoadEnabled returns every record currently marked enabled.
	LoadEnabled(ctx context.Context) ([]PersistedConfig, error)
}
