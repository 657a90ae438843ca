package state

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strconv"
	"strings"
	"time"

	xerrors "plugind/internal/errors"
	"plugind/pkg/plugin"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore persists plugin records in a plugin_configs table.
type MySQLStore struct {
	db *sql.DB
}

// MySQLConfig carries connection parameters for the MySQL store.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewMySQLStore opens the database and ensures the schema exists.
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN cannot be empty")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open MySQL connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "reach MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS plugin_configs (
        plugin_name VARCHAR(190) PRIMARY KEY,
        status VARCHAR(16) NOT NULL,
        config TEXT,
        enabled_at BIGINT NOT NULL DEFAULT 0,
        disabled_at BIGINT NOT NULL DEFAULT 0,
        updated_at BIGINT NOT NULL,
        INDEX idx_plugin_status (status)
)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "initialise plugin_configs table")
	}
	return nil
}

// Save upserts the record for name, stamping enabled_at or disabled_at
// depending on status. A second save for the same name updates the row
// rather than creating another.
func (s *MySQLStore) Save(ctx context.Context, name, status string, config map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin name cannot be empty")
	}

	configValue, err := marshalConfig(config)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode plugin config")
	}

	now := time.Now().Unix()
	enabledAt, disabledAt := int64(0), int64(0)
	if status == plugin.StatusEnabled {
		enabledAt = now
	} else {
		disabledAt = now
	}

	const stmt = `INSERT INTO plugin_configs (plugin_name, status, config, enabled_at, disabled_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        status = VALUES(status),
        config = VALUES(config),
        enabled_at = IF(VALUES(enabled_at) > 0, VALUES(enabled_at), enabled_at),
        disabled_at = IF(VALUES(disabled_at) > 0, VALUES(disabled_at), disabled_at),
        updated_at = VALUES(updated_at)`

	if _, err := s.db.ExecContext(ctx, stmt, name, status, configValue, enabledAt, disabledAt, now); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "upsert plugin config",
				xerrors.WithMetadata("mysql_errno", strconv.Itoa(int(mysqlErr.Number))))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "upsert plugin config")
	}
	return nil
}

// LoadEnabled implements plugin.Store.
func (s *MySQLStore) LoadEnabled(ctx context.Context) ([]plugin.PersistedConfig, error) {
	records, err := s.query(ctx, `SELECT plugin_name, status, config, enabled_at, disabled_at, updated_at
        FROM plugin_configs WHERE status = ? ORDER BY plugin_name`, plugin.StatusEnabled)
	if err != nil {
		return nil, err
	}
	return toPersisted(records), nil
}

// Get returns the record for name.
func (s *MySQLStore) Get(ctx context.Context, name string) (*Record, error) {
	records, err := s.query(ctx, `SELECT plugin_name, status, config, enabled_at, disabled_at, updated_at
        FROM plugin_configs WHERE plugin_name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return &records[0], nil
}

// List returns every record ordered by name.
func (s *MySQLStore) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT plugin_name, status, config, enabled_at, disabled_at, updated_at
        FROM plugin_configs ORDER BY plugin_name`)
}

// Delete removes the record for name. This is the explicit administrative
// action; lifecycle transitions only ever update rows.
func (s *MySQLStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_configs WHERE plugin_name = ?`, name); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete plugin config")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *MySQLStore) query(ctx context.Context, stmt string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query plugin configs")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var config sql.NullString
		if err := rows.Scan(&rec.Name, &rec.Status, &config, &rec.EnabledAt, &rec.DisabledAt, &rec.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan plugin config row")
		}
		decoded, err := unmarshalConfig(config)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode plugin config")
		}
		rec.Config = decoded
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate plugin configs")
	}
	return records, nil
}

func marshalConfig(config map[string]any) (sql.NullString, error) {
	if len(config) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalConfig(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var config map[string]any
	if err := json.Unmarshal([]byte(raw.String), &config); err != nil {
		return nil, err
	}
	return config, nil
}

var _ Store = (*MySQLStore)(nil)
