// Package settings stores the admin-managed key/value settings. Values are
// free-form JSON; the runtime reads its typed config and does not consult them.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

type Repository interface {
	List(ctx context.Context) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Put(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error)
	Delete(ctx context.Context, key string) error
}

var validKey = regexp.MustCompile(`^[a-z0-9_.-]{1,100}$`)

// Validate checks a key and value before they reach a repository.
func Validate(key string, value json.RawMessage) error {
	if !validKey.MatchString(key) {
		return apperr.Validation("put setting", "setting key must be 1-100 characters of a-z, 0-9, '_', '.', '-'")
	}
	if len(value) == 0 || !json.Valid(value) {
		return apperr.Validation("put setting", "setting value must be valid JSON")
	}
	return nil
}

type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) List(ctx context.Context) ([]models.Setting, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value, updated_at FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := []models.Setting{}
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var s models.Setting
	err := r.db.QueryRow(ctx, "SELECT key, value, updated_at FROM settings WHERE key = $1", key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("get setting", "setting not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return &s, nil
}

func (r *PgRepository) Put(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	if err := Validate(key, value); err != nil {
		return nil, err
	}
	var s models.Setting
	err := r.db.QueryRow(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		 RETURNING key, value, updated_at`,
		key, []byte(value),
	).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return &s, nil
}

func (r *PgRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM settings WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("delete setting", "setting not found")
	}
	return nil
}

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]models.Setting
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]models.Setting)}
}

func (r *MemoryRepository) List(context.Context) ([]models.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Setting, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, key string) (*models.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[key]
	if !ok {
		return nil, apperr.NotFound("get setting", "setting not found")
	}
	return &s, nil
}

func (r *MemoryRepository) Put(_ context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	if err := Validate(key, value); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := models.Setting{Key: key, Value: append(json.RawMessage(nil), value...), UpdatedAt: time.Now().UTC()}
	r.items[key] = s
	return &s, nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return apperr.NotFound("delete setting", "setting not found")
	}
	delete(r.items, key)
	return nil
}
