package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the durable store for visits. The manager keeps its own
// working copy in memory; the repository is what survives restarts.
type Repository interface {
	Save(ctx context.Context, v *Visit) error
	Update(ctx context.Context, v *Visit) error
	FindActive(ctx context.Context, leadNumber, realPhone string) (*Visit, error)
	History(ctx context.Context, leadNumber, realPhone string, limit int) ([]Visit, error)
	AllActive(ctx context.Context) ([]Visit, error)
}

// queryDB is the slice of pgxpool.Pool the repository needs. Narrow on
// purpose so tests can substitute a mock.
type queryDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores visits in the property_visits table.
type PostgresRepository struct {
	db queryDB
}

// NewPostgresRepository creates a repository backed by the pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return NewPostgresRepositoryWithDB(pool)
}

// NewPostgresRepositoryWithDB creates a repository from any compatible
// database handle. Used by tests with pgxmock.
func NewPostgresRepositoryWithDB(db queryDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const visitColumns = `visit_uuid, lead_number, lead_data, property_title, property_info,
	scheduled_date, scheduled_time, scheduled_at, status, session, created_at,
	confirmation_sent, lead_confirmed, lead_confirmed_at, broker_confirmation_sent,
	feedback_requested, feedback_score, feedback_at, needs_improvement`

func (r *PostgresRepository) Save(ctx context.Context, v *Visit) error {
	leadData, err := json.Marshal(v.Lead)
	if err != nil {
		return fmt.Errorf("visits: marshal lead data: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO property_visits (`+visitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		v.ID, v.LeadNumber, leadData, v.Property.Title, v.Property.Info,
		v.ScheduledDate, v.ScheduledTime, nullTime(v.ScheduledAt), string(v.Status), v.Session, v.CreatedAt,
		v.ConfirmationSent, v.LeadConfirmed, nullTime(v.LeadConfirmedAt), v.BrokerConfirmationSent,
		v.FeedbackRequested, nullInt(v.FeedbackScore), nullTime(v.FeedbackAt), v.NeedsImprovement,
	)
	if err != nil {
		return fmt.Errorf("visits: insert visit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, v *Visit) error {
	leadData, err := json.Marshal(v.Lead)
	if err != nil {
		return fmt.Errorf("visits: marshal lead data: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE property_visits SET
		     lead_data = $2, status = $3,
		     confirmation_sent = $4, lead_confirmed = $5, lead_confirmed_at = $6,
		     broker_confirmation_sent = $7, feedback_requested = $8,
		     feedback_score = $9, feedback_at = $10, needs_improvement = $11,
		     updated_at = NOW()
		 WHERE visit_uuid = $1`,
		v.ID, leadData, string(v.Status),
		v.ConfirmationSent, v.LeadConfirmed, nullTime(v.LeadConfirmedAt),
		v.BrokerConfirmationSent, v.FeedbackRequested,
		nullInt(v.FeedbackScore), nullTime(v.FeedbackAt), v.NeedsImprovement,
	)
	if err != nil {
		return fmt.Errorf("visits: update visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, leadNumber, realPhone string) (*Visit, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM property_visits
		 WHERE status IN ('pending', 'confirmed')
		   AND (lead_number = $1 OR ($2 <> '' AND lead_data->>'phone' = $2))
		 ORDER BY created_at DESC
		 LIMIT 1`,
		leadNumber, realPhone,
	)
	v, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("visits: query active visit: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) History(ctx context.Context, leadNumber, realPhone string, limit int) ([]Visit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+visitColumns+` FROM property_visits
		 WHERE lead_number = $1 OR ($2 <> '' AND lead_data->>'phone' = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		leadNumber, realPhone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("visits: query visit history: %w", err)
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *PostgresRepository) AllActive(ctx context.Context) ([]Visit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+visitColumns+` FROM property_visits
		 WHERE status IN ('pending', 'confirmed')
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("visits: query active visits: %w", err)
	}
	defer rows.Close()
	return collectVisits(rows)
}

func collectVisits(rows pgx.Rows) ([]Visit, error) {
	var out []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("visits: scan visit: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("visits: iterate visits: %w", err)
	}
	return out, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var (
		v           Visit
		leadData    []byte
		status      string
		scheduledAt *time.Time
		confirmedAt *time.Time
		feedbackAt  *time.Time
		score       *int
	)
	err := row.Scan(
		&v.ID, &v.LeadNumber, &leadData, &v.Property.Title, &v.Property.Info,
		&v.ScheduledDate, &v.ScheduledTime, &scheduledAt, &status, &v.Session, &v.CreatedAt,
		&v.ConfirmationSent, &v.LeadConfirmed, &confirmedAt, &v.BrokerConfirmationSent,
		&v.FeedbackRequested, &score, &feedbackAt, &v.NeedsImprovement,
	)
	if err != nil {
		return nil, err
	}
	v.Status = Status(status)
	if len(leadData) > 0 {
		if err := json.Unmarshal(leadData, &v.Lead); err != nil {
			return nil, fmt.Errorf("visits: decode lead data: %w", err)
		}
	}
	if scheduledAt != nil {
		v.ScheduledAt = *scheduledAt
	}
	if confirmedAt != nil {
		v.LeadConfirmedAt = *confirmedAt
	}
	if feedbackAt != nil {
		v.FeedbackAt = *feedbackAt
	}
	if score != nil {
		v.FeedbackScore = *score
	}
	return &v, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// InMemoryRepository keeps visits in a map, for tests and local runs.
type InMemoryRepository struct {
	mu     sync.RWMutex
	visits map[string]Visit
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{visits: make(map[string]Visit)}
}

func (r *InMemoryRepository) Save(ctx context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[v.ID] = *v
	return nil
}

func (r *InMemoryRepository) Update(ctx context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visits[v.ID]; !ok {
		return ErrNotFound
	}
	r.visits[v.ID] = *v
	return nil
}

func (r *InMemoryRepository) FindActive(ctx context.Context, leadNumber, realPhone string) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Visit
	for id := range r.visits {
		v := r.visits[id]
		if !v.Active() {
			continue
		}
		if v.LeadNumber == leadNumber || phonesMatch(v.Lead.Phone, realPhone) {
			if best == nil || v.CreatedAt.After(best.CreatedAt) {
				copied := v
				best = &copied
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *InMemoryRepository) History(ctx context.Context, leadNumber, realPhone string, limit int) ([]Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Visit
	for id := range r.visits {
		v := r.visits[id]
		if v.LeadNumber == leadNumber || phonesMatch(v.Lead.Phone, realPhone) {
			out = append(out, v)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) AllActive(ctx context.Context) ([]Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Visit
	for id := range r.visits {
		if v := r.visits[id]; v.Active() {
			out = append(out, v)
		}
	}
	return out, nil
}

// phonesMatch compares phone numbers loosely: WhatsApp sometimes reports
// them with and without country or ninth-digit prefixes, so containment in
// either direction counts.
func phonesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
