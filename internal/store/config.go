package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suratbrts/cms/internal/model"
)

// ConfigStore reads and writes the system_config key/value table.
type ConfigStore struct {
	db Querier
}

func NewConfigStore(db Querier) *ConfigStore {
	return &ConfigStore{db: db}
}

// Tx returns a ConfigStore bound to tx.
func (s *ConfigStore) Tx(tx *sql.Tx) *ConfigStore {
	return &ConfigStore{db: tx}
}

// Get returns the entry for key, or nil if it is unset.
func (s *ConfigStore) Get(ctx context.Context, key string) (*model.SystemConfig, error) {
	var c model.SystemConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, description, updated_at FROM system_config WHERE key = ?`, key,
	).Scan(&c.Key, &c.Value, &c.Description, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %q: %w", key, err)
	}
	return &c, nil
}

func (s *ConfigStore) GetAll(ctx context.Context) ([]model.SystemConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, description, updated_at FROM system_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all config: %w", err)
	}
	defer rows.Close()

	var entries []model.SystemConfig
	for rows.Next() {
		var c model.SystemConfig
		if err := rows.Scan(&c.Key, &c.Value, &c.Description, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		entries = append(entries, c)
	}
	return entries, rows.Err()
}

// Set upserts key. An empty description keeps the existing one.
func (s *ConfigStore) Set(ctx context.Context, key, value, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value, description, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   description = CASE WHEN excluded.description = '' THEN system_config.description ELSE excluded.description END,
		   updated_at = excluded.updated_at`,
		key, value, description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

func (s *ConfigStore) value(ctx context.Context, key string) (string, bool, error) {
	c, err := s.Get(ctx, key)
	if err != nil || c == nil {
		return "", false, err
	}
	return c.Value, true, nil
}

// Int returns key parsed as an integer, or def when unset.
func (s *ConfigStore) Int(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := s.value(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config %q: %w", key, err)
	}
	return n, nil
}

// Bool returns key parsed as a boolean, or def when unset.
func (s *ConfigStore) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.value(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config %q: %w", key, err)
	}
	return b, nil
}

// String returns key, or def when unset.
func (s *ConfigStore) String(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.value(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// Decimal returns key parsed as a decimal, or def when unset.
func (s *ConfigStore) Decimal(ctx context.Context, key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok, err := s.value(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("config %q: %w", key, err)
	}
	return d, nil
}

// Strings returns key decoded as a JSON string array, or nil when unset.
func (s *ConfigStore) Strings(ctx context.Context, key string) ([]string, error) {
	v, ok, err := s.value(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("config %q: %w", key, err)
	}
	return out, nil
}
