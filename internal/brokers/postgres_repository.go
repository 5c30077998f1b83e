package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores brokers in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("brokers: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, b *Broker) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM brokers WHERE phone = $1)`, b.Phone,
	).Scan(&exists); err != nil {
		return fmt.Errorf("brokers: phone check failed: %w", err)
	}
	if exists {
		return ErrPhoneTaken
	}

	query := `
		INSERT INTO brokers (name, email, phone, creci, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		b.Name, b.Email, b.Phone, b.CRECI,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("brokers: insert failed: %w", err)
	}
	b.Active = true
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Broker, error) {
	query := `
		SELECT id, name, COALESCE(email, ''), phone, COALESCE(creci, ''), active, created_at, updated_at
		FROM brokers
		WHERE id = $1
	`
	var b Broker
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &b.CRECI, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("brokers: select failed: %w", err)
	}
	return &b, nil
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]Broker, int, error) {
	f.Normalize()

	where := "TRUE"
	args := []any{}
	switch f.Status {
	case "active":
		where += " AND active"
	case "inactive":
		where += " AND NOT active"
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where += fmt.Sprintf(
			" AND (name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d OR creci ILIKE $%d)",
			n, n, n, n)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM brokers WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("brokers: count failed: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, COALESCE(email, ''), phone, COALESCE(creci, ''), active, created_at, updated_at
		FROM brokers
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, f.PerPage, f.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("brokers: list failed: %w", err)
	}
	defer rows.Close()

	var out []Broker
	for rows.Next() {
		var b Broker
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Email, &b.Phone, &b.CRECI, &b.Active, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("brokers: scan failed: %w", err)
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, b *Broker) error {
	var taken bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM brokers WHERE phone = $1 AND id <> $2)`, b.Phone, b.ID,
	).Scan(&taken); err != nil {
		return fmt.Errorf("brokers: phone check failed: %w", err)
	}
	if taken {
		return ErrPhoneTaken
	}

	query := `
		UPDATE brokers
		SET name = $1, email = $2, phone = $3, creci = $4, active = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		b.Name, b.Email, b.Phone, b.CRECI, b.Active, b.ID,
	).Scan(&b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("brokers: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE brokers SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("brokers: deactivate failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, id int64) (Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'confirmed'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COALESCE(ROUND(AVG(feedback_score) FILTER (WHERE feedback_score IS NOT NULL), 2), 0)
		FROM property_visits
		WHERE broker_id = $1
	`
	var s Stats
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.TotalVisits, &s.PendingVisits, &s.ConfirmedVisits, &s.CompletedVisits, &s.AvgFeedbackScore,
	); err != nil {
		return Stats{}, fmt.Errorf("brokers: stats failed: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Ranking(ctx context.Context, since time.Time) ([]RankingEntry, error) {
	query := `
		SELECT
			b.id,
			b.name,
			COUNT(v.id),
			COALESCE(ROUND(AVG(v.feedback_score) FILTER (WHERE v.feedback_score IS NOT NULL), 2), 0)
		FROM brokers b
		LEFT JOIN property_visits v ON v.broker_id = b.id
			AND v.status = 'completed'
			AND v.created_at >= $1
		WHERE b.active
		GROUP BY b.id, b.name
		ORDER BY COUNT(v.id) DESC, AVG(v.feedback_score) DESC NULLS LAST
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("brokers: ranking failed: %w", err)
	}
	defer rows.Close()

	var out []RankingEntry
	for rows.Next() {
		var e RankingEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.CompletedVisits, &e.AvgFeedbackScore); err != nil {
			return nil, fmt.Errorf("brokers: ranking scan failed: %w", err)
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}
