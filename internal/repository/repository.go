package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys of the persisted client-local state.
const (
	KeySchemeSelection = "current_scheme_selection"
	KeyGoldRate        = "gold_rate"
	KeyActiveLimit     = "active_amount_limit"
	KeyBannerSeen      = "info_banner_seen"
)

// ErrNotFound is returned when no value is stored under a key
var ErrNotFound = errors.New("not found")

// Store is a per-owner key/value store of JSON values
type Store interface {
	Get(ctx context.Context, owner, key string) ([]byte, error)
	Put(ctx context.Context, owner, key string, value []byte) error
	Delete(ctx context.Context, owner, key string) error
}

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get retrieves the value stored for owner under key
func (r *Repository) Get(ctx context.Context, owner, key string) ([]byte, error) {
	var value []byte
	query := `
		SELECT value
		FROM scheme.client_state
		WHERE owner_id = $1 AND key = $2`
	err := r.db.QueryRowContext(ctx, query, owner, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Put stores value for owner under key, replacing any previous value
func (r *Repository) Put(ctx context.Context, owner, key string, value []byte) error {
	query := `
		INSERT INTO scheme.client_state (owner_id, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (owner_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, owner, key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes the value stored for owner under key
func (r *Repository) Delete(ctx context.Context, owner, key string) error {
	query := `
		DELETE FROM scheme.client_state
		WHERE owner_id = $1 AND key = $2`
	if _, err := r.db.ExecContext(ctx, query, owner, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value stored under key into a T
func GetJSON[T any](ctx context.Context, s Store, owner, key string) (T, error) {
	var out T
	raw, err := s.Get(ctx, owner, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, nil
}

// PutJSON encodes v and stores it under key
func PutJSON(ctx context.Context, s Store, owner, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, owner, key, raw)
}
