package opportunity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no opportunity has the requested id.
var ErrNotFound = errors.New("opportunity: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists opportunities with pgx.
type PostgresStore struct {
	pool querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("opportunity: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const opportunityColumns = `id, group_id, remote_group_id, cargo_type, origin, destination, tons, offered_price,
		urgency, contact, priority, status, message_text, created_at, expires_at`

func (s *PostgresStore) CreateOpportunity(ctx context.Context, o Opportunity) (Opportunity, error) {
	query := `
		INSERT INTO opportunities (group_id, remote_group_id, cargo_type, origin, destination, tons, offered_price,
			urgency, contact, priority, status, message_text, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		o.GroupID, o.RemoteGroupID, o.CargoType, o.Origin, o.Destination, o.Tons, o.OfferedPrice,
		o.Urgency, o.Contact, string(o.Priority), string(o.Status), o.MessageText, o.CreatedAt, o.ExpiresAt,
	).Scan(&o.ID)
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity: insert: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, ErrNotFound
	}
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity: get %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns NEW and IN_REVIEW opportunities that have not expired,
// highest priority first.
func (s *PostgresStore) ListOpen(ctx context.Context, now time.Time) ([]Opportunity, error) {
	query := `SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE status IN ('NEW', 'IN_REVIEW') AND expires_at > $1
		ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END, created_at DESC`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list open: %w", err)
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("opportunity: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus applies a lifecycle transition. The current status is
// re-checked in the UPDATE so concurrent reviewers cannot both win.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next Status) (Opportunity, error) {
	o, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return Opportunity{}, err
	}
	prev := o.Status
	if err := o.Transition(next); err != nil {
		return Opportunity{}, err
	}
	ct, err := s.pool.Exec(ctx, `UPDATE opportunities SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, string(next), string(prev))
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return Opportunity{}, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, id)
	}
	return o, nil
}

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	var priority, status string
	err := row.Scan(&o.ID, &o.GroupID, &o.RemoteGroupID, &o.CargoType, &o.Origin, &o.Destination,
		&o.Tons, &o.OfferedPrice, &o.Urgency, &o.Contact, &priority, &status, &o.MessageText,
		&o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return Opportunity{}, err
	}
	o.Priority = Priority(priority)
	o.Status = Status(status)
	return o, nil
}
