package opportunity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// SQLGroupStore reads and syncs monitored groups through database/sql. The
// keyword list is a text[] column.
type SQLGroupStore struct {
	db *sql.DB
}

func NewSQLGroupStore(db *sql.DB) *SQLGroupStore {
	if db == nil {
		panic("opportunity: sql db required")
	}
	return &SQLGroupStore{db: db}
}

var _ GroupStore = (*SQLGroupStore)(nil)

func (s *SQLGroupStore) GroupByRemoteID(ctx context.Context, remoteID string) (Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, remote_id, name, active, keywords
		FROM monitored_groups WHERE remote_id = $1`, remoteID).Scan(
		&g.ID, &g.RemoteID, &g.Name, &g.Active, pq.Array(&g.Keywords))
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("opportunity: load group: %w", err)
	}
	return g, nil
}

func (s *SQLGroupStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, remote_id, name, active, keywords
		FROM monitored_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.RemoteID, &g.Name, &g.Active, pq.Array(&g.Keywords)); err != nil {
			return nil, fmt.Errorf("opportunity: scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SyncGroup records a remote group, refreshing its name when it already
// exists. New groups start inactive until an operator enables them.
func (s *SQLGroupStore) SyncGroup(ctx context.Context, remoteID, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitored_groups (remote_id, name, active, keywords)
		VALUES ($1, $2, false, '{}')
		ON CONFLICT (remote_id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		WHERE monitored_groups.name IS DISTINCT FROM EXCLUDED.name`,
		remoteID, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("opportunity: sync group %s: %w", remoteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("opportunity: sync group %s: %w", remoteID, err)
	}
	return n > 0, nil
}

// Configure enables or disables a group and replaces its keyword list.
func (s *SQLGroupStore) Configure(ctx context.Context, remoteID string, active bool, keywords []string) error {
	clean := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			clean = append(clean, kw)
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitored_groups SET active = $2, keywords = $3, updated_at = now()
		WHERE remote_id = $1`, remoteID, active, pq.Array(clean))
	if err != nil {
		return fmt.Errorf("opportunity: configure group %s: %w", remoteID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrGroupNotFound
	}
	return nil
}
