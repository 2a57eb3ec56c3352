package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSettingsStore reads operator prompt overrides from ai_settings.
type PostgresSettingsStore struct {
	pool rowQuerier
}

func NewPostgresSettingsStore(pool *pgxpool.Pool) *PostgresSettingsStore {
	if pool == nil {
		panic("extraction: pgx pool required")
	}
	return &PostgresSettingsStore{pool: pool}
}

var _ PromptSource = (*PostgresSettingsStore)(nil)

// ActivePrompts returns the most recently updated active settings row, or
// zero Prompts when none exists.
func (s *PostgresSettingsStore) ActivePrompts(ctx context.Context) (Prompts, error) {
	query := `
		SELECT COALESCE(model, ''), COALESCE(freight_extract_prompt, ''), COALESCE(group_monitor_prompt, '')
		FROM ai_settings
		WHERE active
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var p Prompts
	if err := s.pool.QueryRow(ctx, query).Scan(&p.Model, &p.FreightExtract, &p.GroupMonitor); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prompts{}, nil
		}
		return Prompts{}, fmt.Errorf("extraction: load ai settings: %w", err)
	}
	return p, nil
}
