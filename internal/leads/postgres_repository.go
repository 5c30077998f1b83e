package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadColumns = `id, phone, name, source_url,
	property_title, property_price, property_price_formatted,
	property_neighborhood, property_bedrooms, property_area,
	property_image_url, property_link, property_description,
	status, registered_at, contacted_at, first_message_at`

// PostgresRepository stores landing leads in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, l *Lead) error {
	query := `
		INSERT INTO landing_leads
		(phone, name, source_url, property_title, property_price, property_price_formatted,
		 property_neighborhood, property_bedrooms, property_area, property_image_url,
		 property_link, property_description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, registered_at
	`
	if err := r.pool.QueryRow(ctx, query,
		l.Phone,
		l.Name,
		l.SourceURL,
		l.Property.Title,
		l.Property.Price,
		l.Property.PriceFormatted,
		l.Property.Neighborhood,
		l.Property.Bedrooms,
		l.Property.Area,
		l.Property.ImageURL,
		l.Property.Link,
		l.Property.Description,
		l.Status,
	).Scan(&l.ID, &l.RegisteredAt); err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM landing_leads WHERE id = $1`, leadColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindOpenByPhone(ctx context.Context, phone string) (*Lead, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM landing_leads
		WHERE phone = $1 AND status IN ('pending', 'contacted')
		ORDER BY registered_at DESC
		LIMIT 1
	`, leadColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, phone))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	var args []any
	switch status {
	case StatusContacted:
		query = `UPDATE landing_leads SET status = $1, contacted_at = $2 WHERE id = $3`
		args = []any{string(status), at, id}
	case StatusInConversation:
		query = `UPDATE landing_leads SET status = $1, first_message_at = $2 WHERE id = $3`
		args = []any{string(status), at, id}
	default:
		query = `UPDATE landing_leads SET status = $1 WHERE id = $2`
		args = []any{string(status), id}
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("leads: status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM landing_leads ORDER BY registered_at DESC`, leadColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*Lead, error) {
	l, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var contactedAt, firstMessageAt *time.Time
	if err := row.Scan(
		&l.ID,
		&l.Phone,
		&l.Name,
		&l.SourceURL,
		&l.Property.Title,
		&l.Property.Price,
		&l.Property.PriceFormatted,
		&l.Property.Neighborhood,
		&l.Property.Bedrooms,
		&l.Property.Area,
		&l.Property.ImageURL,
		&l.Property.Link,
		&l.Property.Description,
		&l.Status,
		&l.RegisteredAt,
		&contactedAt,
		&firstMessageAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("leads: scan failed: %w", err)
	}
	l.ContactedAt = contactedAt
	l.FirstMessageAt = firstMessageAt
	return &l, nil
}
