package freight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads and writes back-office records with pgx.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("freight: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) ListMessagingDrivers(ctx context.Context) ([]Driver, error) {
	query := `
		SELECT id, name, phone, active, messaging_enabled
		FROM drivers
		WHERE active AND messaging_enabled
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("freight: list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Active, &d.MessagingEnabled); err != nil {
			return nil, fmt.Errorf("freight: scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("freight: iterate drivers: %w", err)
	}
	return drivers, nil
}

func (r *PostgresRepository) ListActiveLocations(ctx context.Context) ([]Location, error) {
	query := `
		SELECT id, name, city, state, active
		FROM locations
		WHERE active
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("freight: list locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.City, &l.State, &l.Active); err != nil {
			return nil, fmt.Errorf("freight: scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("freight: iterate locations: %w", err)
	}
	return locations, nil
}

func (r *PostgresRepository) FindOrCreateLocation(ctx context.Context, name string) (Location, error) {
	name = strings.TrimSpace(name)
	loc := Location{Name: name, Active: true}
	id, err := r.findOrInsert(ctx, "locations", "name", name)
	if err != nil {
		return Location{}, err
	}
	loc.ID = id
	return loc, nil
}

func (r *PostgresRepository) FindOrCreateCarrier(ctx context.Context, name string) (Carrier, error) {
	name = strings.TrimSpace(name)
	id, err := r.findOrInsert(ctx, "carriers", "name", name)
	if err != nil {
		return Carrier{}, err
	}
	return Carrier{ID: id, Name: name, Active: true}, nil
}

func (r *PostgresRepository) FindOrCreateTruck(ctx context.Context, plate string) (Truck, error) {
	plate = strings.TrimSpace(plate)
	id, err := r.findOrInsert(ctx, "trucks", "plate", plate)
	if err != nil {
		return Truck{}, err
	}
	return Truck{ID: id, Plate: plate, Active: true}, nil
}

// findOrInsert matches an active row case-insensitively on column, inserting one when absent.
// table and column are package constants, never caller input.
func (r *PostgresRepository) findOrInsert(ctx context.Context, table, column, value string) (string, error) {
	selectQuery := fmt.Sprintf(`SELECT id FROM %s WHERE lower(%s) = lower($1) AND active ORDER BY created_at LIMIT 1`, table, column)
	var id string
	err := r.pool.QueryRow(ctx, selectQuery, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("freight: select %s: %w", table, err)
	}

	id = uuid.NewString()
	insertQuery := fmt.Sprintf(`INSERT INTO %s (id, %s, active) VALUES ($1, $2, TRUE)`, table, column)
	if _, err := r.pool.Exec(ctx, insertQuery, id, value); err != nil {
		return "", fmt.Errorf("freight: insert %s: %w", table, err)
	}
	return id, nil
}

func (r *PostgresRepository) CreateFreight(ctx context.Context, f Freight) (Freight, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO freights (
			id, freight_date, origin_id, destination_id, tons, price_per_ton, total_value,
			carrier_id, ticket_number, truck_id, driver_id, note, status, source, media_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := r.pool.Exec(ctx, query,
		f.ID,
		f.Date,
		f.OriginID,
		f.DestinationID,
		f.Tons,
		f.PricePerTon,
		f.TotalValue,
		f.CarrierID,
		f.TicketNumber,
		f.TruckID,
		f.DriverID,
		nullString(f.Note),
		string(f.Status),
		string(f.Source),
		nullString(f.MediaKey),
		f.CreatedAt,
	); err != nil {
		return Freight{}, fmt.Errorf("freight: insert freight: %w", err)
	}
	return f, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
