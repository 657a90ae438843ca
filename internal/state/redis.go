package state

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strconv"
	"strings"
	"time"

	xerrors "plugind/internal/errors"
	"plugind/pkg/plugin"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordPrefix = "plugind:config:"
	redisEnabledSet   = "plugind:enabled"
)

// RedisStore persists plugin records as Redis hashes plus a set of the
// currently enabled names for cheap LoadEnabled.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig carries connection parameters for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "reach Redis")
	}
	return &RedisStore{client: client}, nil
}

// Save upserts the hash for name and maintains the enabled set.
func (s *RedisStore) Save(ctx context.Context, name, status string, config map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin name cannot be empty")
	}
	configRaw := ""
	if len(config) > 0 {
		raw, err := json.Marshal(config)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode plugin config")
		}
		configRaw = string(raw)
	}

	now := time.Now().Unix()
	fields := map[string]any{
		"name":       name,
		"status":     status,
		"config":     configRaw,
		"updated_at": now,
	}
	if status == plugin.StatusEnabled {
		fields["enabled_at"] = now
	} else {
		fields["disabled_at"] = now
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisRecordPrefix+name, fields)
	if status == plugin.StatusEnabled {
		pipe.SAdd(ctx, redisEnabledSet, name)
	} else {
		pipe.SRem(ctx, redisEnabledSet, name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "upsert plugin config in Redis")
	}
	return nil
}

// LoadEnabled implements plugin.Store.
func (s *RedisStore) LoadEnabled(ctx context.Context) ([]plugin.PersistedConfig, error) {
	names, err := s.client.SMembers(ctx, redisEnabledSet).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read enabled plugin set")
	}
	records := make([]Record, 0, len(names))
	for _, name := range names {
		rec, err := s.Get(ctx, name)
		if err != nil {
			if stdErrors.Is(err, ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		if rec.Status == plugin.StatusEnabled {
			records = append(records, *rec)
		}
	}
	return toPersisted(records), nil
}

// Get returns the record for name.
func (s *RedisStore) Get(ctx context.Context, name string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, redisRecordPrefix+name).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read plugin config hash")
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	return recordFromFields(name, fields)
}

// List returns every record by scanning the record key prefix.
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	var records []Record
	iter := s.client.Scan(ctx, 0, redisRecordPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), redisRecordPrefix)
		rec, err := s.Get(ctx, name)
		if err != nil {
			if stdErrors.Is(err, ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan plugin config keys")
	}
	return records, nil
}

// Delete removes the record and drops the name from the enabled set.
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisRecordPrefix+name)
	pipe.SRem(ctx, redisEnabledSet, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete plugin config from Redis")
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func recordFromFields(name string, fields map[string]string) (*Record, error) {
	rec := &Record{Name: name, Status: fields["status"]}
	if raw := fields["config"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Config); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode plugin config")
		}
	}
	rec.EnabledAt = parseUnix(fields["enabled_at"])
	rec.DisabledAt = parseUnix(fields["disabled_at"])
	rec.UpdatedAt = parseUnix(fields["updated_at"])
	return rec, nil
}

func parseUnix(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ Store = (*RedisStore)(nil)
