package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead or visit does not exist.
var ErrNotFound = errors.New("dashboard: not found")

// queryDB is the slice of pgxpool.Pool the repository needs. Narrow on
// purpose so tests can substitute a mock.
type queryDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository answers the dashboard's read queries and partial updates
// directly against Postgres.
type Repository struct {
	db  queryDB
	now func() time.Time
}

// NewRepository creates a repository backed by a connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return NewRepositoryWithDB(pool)
}

// NewRepositoryWithDB creates a repository from any compatible database
// handle. Used by tests with pgxmock.
func NewRepositoryWithDB(db queryDB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Metrics computes the dashboard KPI block.
func (r *Repository) Metrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{
		LeadsByStatus:  map[string]int{},
		VisitsByStatus: map[string]int{},
	}

	today := r.now().UTC().Truncate(24 * time.Hour)
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE registered_at >= $1) FROM landing_leads`,
		today,
	).Scan(&m.TotalLeads, &m.LeadsToday)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}

	if err := r.countByStatus(ctx, `SELECT status, COUNT(*) FROM landing_leads GROUP BY status`, m.LeadsByStatus); err != nil {
		return nil, fmt.Errorf("leads by status: %w", err)
	}
	if err := r.countByStatus(ctx, `SELECT status, COUNT(*) FROM property_visits GROUP BY status`, m.VisitsByStatus); err != nil {
		return nil, fmt.Errorf("visits by status: %w", err)
	}
	for _, n := range m.VisitsByStatus {
		m.TotalVisits += n
	}
	m.PendingVisits = m.VisitsByStatus["pending"]
	m.ConfirmedVisits = m.VisitsByStatus["confirmed"]
	m.CompletedVisits = m.VisitsByStatus["completed"]

	var leadsWithVisits int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT l.id)
		 FROM landing_leads l
		 JOIN property_visits v ON v.lead_data->>'phone' = l.phone`,
	).Scan(&leadsWithVisits)
	if err != nil {
		return nil, fmt.Errorf("count converted leads: %w", err)
	}
	if m.TotalLeads > 0 {
		m.ConversionRate = round2(float64(leadsWithVisits) / float64(m.TotalLeads) * 100)
	}
	return m, nil
}

func (r *Repository) countByStatus(ctx context.Context, query string, dst map[string]int) error {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		dst[status] = count
	}
	return rows.Err()
}

// Timeseries returns daily lead and visit counts for the last days days,
// with zero-filled gaps.
func (r *Repository) Timeseries(ctx context.Context, days int) ([]TimeseriesPoint, error) {
	if days <= 0 {
		days = 30
	}
	start := r.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	leads, err := r.dailyCounts(ctx,
		`SELECT registered_at::date, COUNT(*) FROM landing_leads
		 WHERE registered_at >= $1 GROUP BY 1`, start)
	if err != nil {
		return nil, fmt.Errorf("daily leads: %w", err)
	}
	visits, err := r.dailyCounts(ctx,
		`SELECT created_at::date, COUNT(*) FROM property_visits
		 WHERE created_at >= $1 GROUP BY 1`, start)
	if err != nil {
		return nil, fmt.Errorf("daily visits: %w", err)
	}

	points := make([]TimeseriesPoint, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d).Format("2006-01-02")
		points = append(points, TimeseriesPoint{
			Date:   day,
			Leads:  leads[day],
			Visits: visits[day],
		})
	}
	return points, nil
}

func (r *Repository) dailyCounts(ctx context.Context, query string, start time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx, query, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		counts[day.Format("2006-01-02")] = count
	}
	return counts, rows.Err()
}

// Funnel returns the lead-to-visit conversion funnel. Each stage's
// percentage is relative to the total captured leads.
func (r *Repository) Funnel(ctx context.Context) ([]FunnelStage, error) {
	queries := []struct {
		stage string
		sql   string
	}{
		{"Leads Captados", `SELECT COUNT(*) FROM landing_leads`},
		{"Contatados", `SELECT COUNT(*) FROM landing_leads WHERE contacted_at IS NOT NULL OR status <> 'pending'`},
		{"Qualificados", `SELECT COUNT(*) FROM landing_leads WHERE qualification_score IS NOT NULL AND qualification_score >= 50`},
		{"Visita Agendada", `SELECT COUNT(DISTINCT lead_data->>'phone') FROM property_visits`},
		{"Convertidos", `SELECT COUNT(DISTINCT lead_data->>'phone') FROM property_visits WHERE status = 'completed'`},
	}

	stages := make([]FunnelStage, 0, len(queries))
	var base int
	for i, q := range queries {
		var count int
		if err := r.db.QueryRow(ctx, q.sql).Scan(&count); err != nil {
			return nil, fmt.Errorf("funnel stage %q: %w", q.stage, err)
		}
		if i == 0 {
			base = count
		}
		pct := 0.0
		if base > 0 {
			pct = round2(float64(count) / float64(base) * 100)
		}
		stages = append(stages, FunnelStage{Stage: q.stage, Count: count, Percentage: pct})
	}
	return stages, nil
}

// Sources aggregates leads by the landing page they came from.
func (r *Repository) Sources(ctx context.Context) ([]SourceStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT COALESCE(NULLIF(l.source_url, ''), 'direto') AS source,
		        COUNT(DISTINCT l.id) AS leads,
		        COUNT(DISTINCT v.visit_uuid) AS visits
		 FROM landing_leads l
		 LEFT JOIN property_visits v ON v.lead_data->>'phone' = l.phone
		 GROUP BY 1
		 ORDER BY leads DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var stats []SourceStat
	total := 0
	for rows.Next() {
		var s SourceStat
		if err := rows.Scan(&s.Source, &s.Count, &s.Visits); err != nil {
			return nil, err
		}
		if s.Count > 0 {
			s.ConversionRate = round2(float64(s.Visits) / float64(s.Count) * 100)
		}
		total += s.Count
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range stats {
		if total > 0 {
			stats[i].Percentage = round2(float64(stats[i].Count) / float64(total) * 100)
		}
	}
	return stats, nil
}

// Neighborhoods aggregates leads by the neighborhood of the property they
// registered interest in.
func (r *Repository) Neighborhoods(ctx context.Context) ([]NeighborhoodStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT l.property_neighborhood,
		        COUNT(DISTINCT l.id) AS leads,
		        COUNT(DISTINCT v.visit_uuid) AS visits,
		        COALESCE(ROUND(AVG(l.property_price)::numeric, 2), 0) AS avg_price
		 FROM landing_leads l
		 LEFT JOIN property_visits v ON v.lead_data->>'phone' = l.phone
		 WHERE l.property_neighborhood <> ''
		 GROUP BY 1
		 ORDER BY leads DESC`)
	if err != nil {
		return nil, fmt.Errorf("query neighborhoods: %w", err)
	}
	defer rows.Close()

	var stats []NeighborhoodStat
	for rows.Next() {
		var s NeighborhoodStat
		if err := rows.Scan(&s.Neighborhood, &s.Count, &s.Visits, &s.AvgPrice); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

const leadSelect = `SELECT id, phone, name, source_url, status, registered_at,
	COALESCE(updated_at, registered_at),
	property_title, property_price, property_neighborhood, property_bedrooms,
	property_description, qualification_score
	FROM landing_leads`

// ListLeads returns one page of leads plus the unpaged total.
func (r *Repository) ListLeads(ctx context.Context, f LeadFilter) ([]LeadSummary, int, error) {
	where, args := leadWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM landing_leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	page, size := normalizePage(f.Page, f.PageSize)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("%s%s ORDER BY registered_at DESC LIMIT $%d OFFSET $%d",
		leadSelect, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []LeadSummary
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, *lead)
	}
	return leads, total, rows.Err()
}

func leadWhere(f LeadFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d OR property_title ILIKE $%d)", n, n, n))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		conds = append(conds, fmt.Sprintf("registered_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		conds = append(conds, fmt.Sprintf("registered_at <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanLeadRow(row pgx.Row) (*LeadSummary, error) {
	var (
		id           int64
		sourceURL    string
		title        string
		price        *float64
		neighborhood string
		bedrooms     *int
		description  string
		lead         LeadSummary
	)
	err := row.Scan(&id, &lead.Phone, &lead.Name, &sourceURL, &lead.Status,
		&lead.CreatedAt, &lead.UpdatedAt, &title, &price, &neighborhood,
		&bedrooms, &description, &lead.Score)
	if err != nil {
		return nil, err
	}
	lead.ID = fmt.Sprintf("%d", id)
	lead.Preferences = LeadPreferences{
		PropertyType:    title,
		Bedrooms:        bedrooms,
		MaxPrice:        price,
		Neighborhoods:   []string{},
		AdditionalNotes: description,
	}
	if neighborhood != "" {
		lead.Preferences.Neighborhoods = []string{neighborhood}
	}
	return &lead, nil
}

// GetLead returns a lead and its visits.
func (r *Repository) GetLead(ctx context.Context, id int64) (*LeadDetail, error) {
	row := r.db.QueryRow(ctx, leadSelect+` WHERE id = $1`, id)
	lead, err := scanLeadRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}

	visits, err := r.visitsByPhone(ctx, lead.Phone)
	if err != nil {
		return nil, err
	}
	return &LeadDetail{LeadSummary: *lead, Visits: visits}, nil
}

func (r *Repository) visitsByPhone(ctx context.Context, phone string) ([]VisitSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT visit_uuid, lead_number, lead_data->>'nome', property_title,
		        scheduled_date, scheduled_time, status, feedback_score, created_at
		 FROM property_visits
		 WHERE lead_data->>'phone' = $1 OR lead_number LIKE $2
		 ORDER BY created_at DESC`,
		phone, phone+"%")
	if err != nil {
		return nil, fmt.Errorf("query lead visits: %w", err)
	}
	defer rows.Close()
	return collectVisitSummaries(rows)
}

// LeadConversation returns a lead's WhatsApp transcript. Conversation IDs
// carry the WhatsApp chat suffix, so every known variant of the phone is
// tried.
func (r *Repository) LeadConversation(ctx context.Context, id int64) (*Conversation, error) {
	var phone string
	err := r.db.QueryRow(ctx, `SELECT phone FROM landing_leads WHERE id = $1`, id).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lead phone: %w", err)
	}

	variants := []string{
		"whatsapp_" + phone + "@c.us",
		"whatsapp_" + phone + "@lid",
		"whatsapp_" + phone,
		phone,
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, role, content, created_at
		 FROM conversation_messages
		 WHERE conversation_id = ANY($1)
		 ORDER BY created_at ASC`,
		variants)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	conv := &Conversation{LeadID: fmt.Sprintf("%d", id), Phone: phone, Messages: []ConversationMessage{}}
	for rows.Next() {
		var msg ConversationMessage
		var msgID int64
		if err := rows.Scan(&msgID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.ID = fmt.Sprintf("%d", msgID)
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// UpdateLead applies a partial update and returns the fresh row.
func (r *Repository) UpdateLead(ctx context.Context, id int64, patch *LeadPatch) (*LeadSummary, error) {
	sets := []string{"updated_at = NOW()"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.QualificationScore != nil {
		add("qualification_score", *patch.QualificationScore)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE landing_leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	return scanLeadRow(r.db.QueryRow(ctx, leadSelect+` WHERE id = $1`, id))
}

const visitSelect = `SELECT visit_uuid, lead_number, lead_data->>'nome',
	lead_data->>'phone', property_title, property_info,
	scheduled_date, scheduled_time, status, session, created_at,
	confirmation_sent, lead_confirmed, lead_confirmed_at,
	broker_confirmation_sent, broker_confirmed, feedback_requested,
	feedback_score, feedback_at, needs_improvement, broker_id
	FROM property_visits`

// ListVisits returns one page of visits plus the unpaged total.
func (r *Repository) ListVisits(ctx context.Context, f VisitFilter) ([]VisitSummary, int, error) {
	where, args := visitWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM property_visits`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}

	page, size := normalizePage(f.Page, f.PageSize)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT visit_uuid, lead_number, lead_data->>'nome', property_title,
		scheduled_date, scheduled_time, status, feedback_score, created_at
		FROM property_visits%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	visits, err := collectVisitSummaries(rows)
	return visits, total, err
}

func visitWhere(f VisitFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if f.BrokerID != nil {
		args = append(args, *f.BrokerID)
		conds = append(conds, fmt.Sprintf("broker_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectVisitSummaries(rows pgx.Rows) ([]VisitSummary, error) {
	var visits []VisitSummary
	for rows.Next() {
		var v VisitSummary
		var name *string
		if err := rows.Scan(&v.ID, &v.LeadID, &name, &v.PropertyTitle,
			&v.ScheduledDate, &v.ScheduledTime, &v.Status, &v.FeedbackScore, &v.CreatedAt); err != nil {
			return nil, err
		}
		if name != nil {
			v.LeadName = *name
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// GetVisit returns a full visit record by its public UUID.
func (r *Repository) GetVisit(ctx context.Context, uuid string) (*VisitDetail, error) {
	v, err := scanVisitRow(r.db.QueryRow(ctx, visitSelect+` WHERE visit_uuid = $1`, uuid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// UpdateVisit applies a partial update. Confirmation and feedback flags
// stamp their timestamps when turned on.
func (r *Repository) UpdateVisit(ctx context.Context, uuid string, patch *VisitPatch) (*VisitDetail, error) {
	sets := []string{"updated_at = NOW()"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.BrokerID != nil {
		add("broker_id", *patch.BrokerID)
	}
	if patch.FeedbackScore != nil {
		add("feedback_score", *patch.FeedbackScore)
		sets = append(sets, "feedback_at = NOW()")
	}
	if patch.LeadConfirmed != nil {
		add("lead_confirmed", *patch.LeadConfirmed)
		if *patch.LeadConfirmed {
			sets = append(sets, "lead_confirmed_at = NOW()")
		}
	}
	if patch.BrokerConfirmed != nil {
		add("broker_confirmed", *patch.BrokerConfirmed)
	}
	if patch.ConfirmationSent != nil {
		add("confirmation_sent", *patch.ConfirmationSent)
	}
	if patch.FeedbackRequested != nil {
		add("feedback_requested", *patch.FeedbackRequested)
	}

	args = append(args, uuid)
	query := fmt.Sprintf("UPDATE property_visits SET %s WHERE visit_uuid = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetVisit(ctx, uuid)
}

func scanVisitRow(row pgx.Row) (*VisitDetail, error) {
	var v VisitDetail
	var name, phone *string
	err := row.Scan(&v.ID, &v.LeadID, &name, &phone, &v.PropertyTitle, &v.PropertyInfo,
		&v.ScheduledDate, &v.ScheduledTime, &v.Status, &v.Session, &v.CreatedAt,
		&v.ConfirmationSent, &v.LeadConfirmed, &v.LeadConfirmedAt,
		&v.BrokerConfirmationSent, &v.BrokerConfirmed, &v.FeedbackRequested,
		&v.FeedbackScore, &v.FeedbackAt, &v.NeedsImprovement, &v.BrokerID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		v.LeadName = *name
	}
	if phone != nil {
		v.LeadPhone = *phone
	}
	return &v, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
