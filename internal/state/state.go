package state

import (
	"context"

	xerrors "plugind/internal/errors"
	"plugind/pkg/plugin"
)

// Record is the durable enable/disable decision for one plugin. It is the
// only plugin-system entity that survives host restarts.
type Record struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Config     map[string]any `json:"config,omitempty"`
	EnabledAt  int64          `json:"enabled_at,omitempty"`
	DisabledAt int64          `json:"disabled_at,omitempty"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Store persists plugin enable/disable decisions. It extends the narrow
// contract the manager requires with the administrative operations the
// daemon exposes. Delete is the explicit administrative removal; the
// manager itself never deletes records.
type Store interface {
	plugin.Store
	Get(ctx context.Context, name string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

var (
	// ErrRecordNotFound indicates no persisted record exists for a name.
	ErrRecordNotFound = xerrors.New(xerrors.CodeNotFound, "plugin config record not found")
	// ErrUnsupportedDriver indicates an unknown driver in the host config.
	ErrUnsupportedDriver = xerrors.New(xerrors.CodeInvalidArgument, "unsupported plugin state driver")
)

func cloneConfig(cfg map[string]any) map[string]any {
	if len(cfg) == 0 {
		return nil
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}

func toPersisted(records []Record) []plugin.PersistedConfig {
	out := make([]plugin.PersistedConfig, 0, len(records))
	for _, rec := range records {
		out = append(out, plugin.PersistedConfig{
			Name:   rec.Name,
			Status: rec.Status,
			Config: cloneConfig(rec.Config),
		})
	}
	return out
}
