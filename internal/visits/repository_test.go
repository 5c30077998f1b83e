package visits

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockVisitRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepositoryWithDB(mock), mock
}

func TestPostgresSaveAndFindActiveRoundTrip(t *testing.T) {
	repo, mock := newMockVisitRepo(t)

	created := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	scheduled := time.Date(2026, 1, 16, 14, 0, 0, 0, time.UTC)
	original := &Visit{
		ID:         "visit-1",
		LeadNumber: "5585999887766@c.us",
		Lead: LeadSnapshot{
			Name:         "Maria",
			Phone:        "5585999887766",
			Neighborhood: "Aldeota",
			Bedrooms:     "2",
			Renda:        9000,
			MaxPrice:     972000,
		},
		Property: PropertySnapshot{
			Title: "Apt 2 Quartos Aldeota",
			Info:  "Valor: R$ 450.000,00",
		},
		ScheduledDate: "16/01/2026",
		ScheduledTime: "14:00",
		ScheduledAt:   scheduled,
		Status:        StatusPending,
		Session:       "default",
		CreatedAt:     created,
	}

	leadData, err := json.Marshal(original.Lead)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO property_visits`).
		WithArgs(
			"visit-1", "5585999887766@c.us", leadData,
			"Apt 2 Quartos Aldeota", "Valor: R$ 450.000,00",
			"16/01/2026", "14:00", &scheduled, "pending", "default", created,
			false, false, (*time.Time)(nil), false,
			false, (*int)(nil), (*time.Time)(nil), false,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), original))

	mock.ExpectQuery(`FROM property_visits\s+WHERE status IN \('pending', 'confirmed'\)`).
		WithArgs("5585999887766@c.us", "5585999887766").
		WillReturnRows(pgxmock.NewRows([]string{
			"visit_uuid", "lead_number", "lead_data", "property_title", "property_info",
			"scheduled_date", "scheduled_time", "scheduled_at", "status", "session", "created_at",
			"confirmation_sent", "lead_confirmed", "lead_confirmed_at", "broker_confirmation_sent",
			"feedback_requested", "feedback_score", "feedback_at", "needs_improvement",
		}).AddRow(
			"visit-1", "5585999887766@c.us", leadData,
			"Apt 2 Quartos Aldeota", "Valor: R$ 450.000,00",
			"16/01/2026", "14:00", &scheduled, "pending", "default", created,
			false, false, (*time.Time)(nil), false,
			false, (*int)(nil), (*time.Time)(nil), false,
		))

	reloaded, err := repo.FindActive(context.Background(), "5585999887766@c.us", "5585999887766")
	require.NoError(t, err)
	assert.Equal(t, original, reloaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindActiveNotFound(t *testing.T) {
	repo, mock := newMockVisitRepo(t)

	mock.ExpectQuery(`FROM property_visits`).
		WithArgs("nobody@c.us", "").
		WillReturnRows(pgxmock.NewRows([]string{"visit_uuid"}))

	_, err := repo.FindActive(context.Background(), "nobody@c.us", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStampsFeedback(t *testing.T) {
	repo, mock := newMockVisitRepo(t)

	feedbackAt := time.Date(2026, 1, 17, 9, 0, 0, 0, time.UTC)
	v := &Visit{
		ID:         "visit-1",
		LeadNumber: "5585999887766@c.us",
		Lead:       LeadSnapshot{Name: "Maria", Phone: "5585999887766"},
		Status:     StatusCompleted,

		ConfirmationSent:  true,
		LeadConfirmed:     true,
		LeadConfirmedAt:   time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC),
		FeedbackRequested: true,
		FeedbackScore:     2,
		FeedbackAt:        feedbackAt,
		NeedsImprovement:  true,
	}
	leadData, err := json.Marshal(v.Lead)
	require.NoError(t, err)

	confirmedAt := v.LeadConfirmedAt
	score := 2
	mock.ExpectExec(`UPDATE property_visits SET`).
		WithArgs(
			"visit-1", leadData, "completed",
			true, true, &confirmedAt,
			false, true,
			&score, &feedbackAt, true,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateNotFound(t *testing.T) {
	repo, mock := newMockVisitRepo(t)

	v := &Visit{ID: "missing", Status: StatusCancelled}
	leadData, err := json.Marshal(v.Lead)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE property_visits SET`).
		WithArgs(
			"missing", leadData, "cancelled",
			false, false, (*time.Time)(nil),
			false, false,
			(*int)(nil), (*time.Time)(nil), false,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Update(context.Background(), v), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
