package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	configKindEvolution = "EVOLUTION"
	configKindOfficial  = "OFFICIAL"
)

// ErrConfigNotFound is returned when a config id has no row.
var ErrConfigNotFound = errors.New("messaging: provider config not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfigStore reads backend credentials from whatsapp_configs.
type PostgresConfigStore struct {
	pool querier
}

// NewPostgresConfigStore wraps a pgx pool.
func NewPostgresConfigStore(pool *pgxpool.Pool) *PostgresConfigStore {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &PostgresConfigStore{pool: pool}
}

var _ ConfigSource = (*PostgresConfigStore)(nil)

const configColumns = `id, kind,
	COALESCE(evolution_url, ''), COALESCE(evolution_api_key, ''), COALESCE(evolution_instance, ''),
	COALESCE(official_token, ''), COALESCE(official_phone_number_id, ''),
	COALESCE(official_verify_token, ''), COALESCE(official_app_secret, '')`

type configRow struct {
	id        string
	kind      string
	evolution EvolutionConfig
	official  OfficialConfig
}

func scanConfig(row pgx.Row) (configRow, error) {
	var c configRow
	err := row.Scan(&c.id, &c.kind,
		&c.evolution.BaseURL, &c.evolution.APIKey, &c.evolution.Instance,
		&c.official.Token, &c.official.PhoneNumberID, &c.official.VerifyToken, &c.official.AppSecret)
	c.evolution.ID = c.id
	c.official.ID = c.id
	return c, err
}

// LoadProviderConfig returns the first active row of each backend kind.
func (s *PostgresConfigStore) LoadProviderConfig(ctx context.Context) (ProviderConfig, error) {
	query := `SELECT ` + configColumns + `
		FROM whatsapp_configs
		WHERE active
		ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("messaging: load provider configs: %w", err)
	}
	defer rows.Close()

	var cfg ProviderConfig
	for rows.Next() {
		row, err := scanConfig(rows)
		if err != nil {
			return ProviderConfig{}, fmt.Errorf("messaging: scan provider config: %w", err)
		}
		switch row.kind {
		case configKindEvolution:
			if cfg.Evolution == nil && row.evolution.Valid() {
				evo := row.evolution
				cfg.Evolution = &evo
			}
		case configKindOfficial:
			if cfg.Official == nil && row.official.Valid() {
				official := row.official
				cfg.Official = &official
			}
		}
	}
	if err := rows.Err(); err != nil {
		return ProviderConfig{}, fmt.Errorf("messaging: iterate provider configs: %w", err)
	}
	return cfg, nil
}

// VerifyTokens lists the verify tokens of every active official config.
func (s *PostgresConfigStore) VerifyTokens(ctx context.Context) ([]string, error) {
	query := `
		SELECT official_verify_token
		FROM whatsapp_configs
		WHERE active AND kind = $1 AND COALESCE(official_verify_token, '') <> ''
	`
	rows, err := s.pool.Query(ctx, query, configKindOfficial)
	if err != nil {
		return nil, fmt.Errorf("messaging: list verify tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("messaging: scan verify token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: iterate verify tokens: %w", err)
	}
	return tokens, nil
}

// EvolutionConfigByID loads one self-hosted config regardless of its active flag.
func (s *PostgresConfigStore) EvolutionConfigByID(ctx context.Context, id string) (EvolutionConfig, error) {
	query := `SELECT ` + configColumns + ` FROM whatsapp_configs WHERE id = $1`
	row, err := scanConfig(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EvolutionConfig{}, ErrConfigNotFound
		}
		return EvolutionConfig{}, fmt.Errorf("messaging: get provider config: %w", err)
	}
	if row.kind != configKindEvolution {
		return EvolutionConfig{}, fmt.Errorf("messaging: config %s is not a self-hosted config", id)
	}
	return row.evolution, nil
}

// SetConnected records the last observed session state of a self-hosted config.
func (s *PostgresConfigStore) SetConnected(ctx context.Context, id string, connected bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE whatsapp_configs SET connected = $2, updated_at = now() WHERE id = $1`, id, connected)
	if err != nil {
		return fmt.Errorf("messaging: update connected flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}
