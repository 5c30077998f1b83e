package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := NewRepositoryWithDB(mock)
	repo.now = func() time.Time {
		return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	}
	return repo, mock
}

func TestMetrics(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WithArgs(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(pgxmock.NewRows([]string{"count", "today"}).AddRow(40, 3))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM landing_leads`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 10).
			AddRow("in_conversation", 30))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM property_visits`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("confirmed", 3).
			AddRow("completed", 2).
			AddRow("cancelled", 1))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT l\.id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(10))

	m, err := repo.Metrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, m.TotalLeads)
	assert.Equal(t, 3, m.LeadsToday)
	assert.Equal(t, 10, m.TotalVisits)
	assert.Equal(t, 4, m.PendingVisits)
	assert.Equal(t, 3, m.ConfirmedVisits)
	assert.Equal(t, 2, m.CompletedVisits)
	assert.Equal(t, 25.0, m.ConversionRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeseriesFillsGaps(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM landing_leads`).
		WithArgs(start).
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).
			AddRow(time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), 5).
			AddRow(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 2))
	mock.ExpectQuery(`FROM property_visits`).
		WithArgs(start).
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).
			AddRow(time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), 1))

	points, err := repo.Timeseries(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, TimeseriesPoint{Date: "2026-01-13", Leads: 5, Visits: 0}, points[0])
	assert.Equal(t, TimeseriesPoint{Date: "2026-01-14", Leads: 0, Visits: 1}, points[1])
	assert.Equal(t, TimeseriesPoint{Date: "2026-01-15", Leads: 2, Visits: 0}, points[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFunnelPercentages(t *testing.T) {
	repo, mock := newMockRepo(t)

	counts := []int{100, 80, 40, 20, 5}
	for _, c := range counts {
		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(c))
	}

	stages, err := repo.Funnel(context.Background())
	require.NoError(t, err)
	require.Len(t, stages, 5)

	assert.Equal(t, "Leads Captados", stages[0].Stage)
	assert.Equal(t, 100.0, stages[0].Percentage)
	assert.Equal(t, "Contatados", stages[1].Stage)
	assert.Equal(t, 80.0, stages[1].Percentage)
	assert.Equal(t, "Convertidos", stages[4].Stage)
	assert.Equal(t, 5.0, stages[4].Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourcesComputesShares(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`LEFT JOIN property_visits`).
		WillReturnRows(pgxmock.NewRows([]string{"source", "leads", "visits"}).
			AddRow("https://imoveis.example.com/aldeota", 30, 6).
			AddRow("direto", 10, 1))

	stats, err := repo.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, 20.0, stats[0].ConversionRate)
	assert.Equal(t, 75.0, stats[0].Percentage)
	assert.Equal(t, 25.0, stats[1].Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLeadsAppliesFilters(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM landing_leads WHERE status = \$1`).
		WithArgs("pending").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	bedrooms := 2
	mock.ExpectQuery(`FROM landing_leads WHERE status = \$1 ORDER BY registered_at DESC`).
		WithArgs("pending", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "phone", "name", "source_url", "status", "registered_at", "updated_at",
			"property_title", "property_price", "property_neighborhood", "property_bedrooms",
			"property_description", "qualification_score",
		}).AddRow(
			int64(7), "5585999887766", "Maria", "https://site", "pending",
			time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
			"Apt 2 Quartos Aldeota", ptr(450000.0), "Aldeota", &bedrooms, "", (*int)(nil),
		))

	leads, total, err := repo.ListLeads(context.Background(), LeadFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, leads, 1)

	lead := leads[0]
	assert.Equal(t, "7", lead.ID)
	assert.Equal(t, "Maria", lead.Name)
	assert.Equal(t, []string{"Aldeota"}, lead.Preferences.Neighborhoods)
	require.NotNil(t, lead.Preferences.Bedrooms)
	assert.Equal(t, 2, *lead.Preferences.Bedrooms)
	assert.Nil(t, lead.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVisitStampsConfirmation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE property_visits SET updated_at = NOW\(\), status = \$1, lead_confirmed = \$2, lead_confirmed_at = NOW\(\) WHERE visit_uuid = \$3`).
		WithArgs("confirmed", true, "visit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM property_visits WHERE visit_uuid = \$1`).
		WithArgs("visit-1").
		WillReturnRows(visitRows().AddRow(
			"visit-1", "5585999887766@c.us", ptr("Maria"), ptr("5585999887766"),
			"Apt 2 Quartos Aldeota", "Valor: R$ 450.000,00", "16/01/2026", "14:00",
			"confirmed", "default", time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			true, true, ptr(time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)),
			false, false, false, (*int)(nil), (*time.Time)(nil), false, (*int64)(nil),
		))

	status := "confirmed"
	confirmed := true
	visit, err := repo.UpdateVisit(context.Background(), "visit-1", &VisitPatch{
		Status:        &status,
		LeadConfirmed: &confirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", visit.Status)
	assert.True(t, visit.LeadConfirmed)
	require.NotNil(t, visit.LeadConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVisitNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE property_visits`).
		WithArgs("cancelled", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	status := "cancelled"
	_, err := repo.UpdateVisit(context.Background(), "missing", &VisitPatch{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadConversationVariants(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT phone FROM landing_leads WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"phone"}).AddRow("5585999887766"))
	mock.ExpectQuery(`FROM conversation_messages`).
		WithArgs([]string{
			"whatsapp_5585999887766@c.us",
			"whatsapp_5585999887766@lid",
			"whatsapp_5585999887766",
			"5585999887766",
		}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "content", "created_at"}).
			AddRow(int64(1), "user", "Oi, procuro apartamento", time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)).
			AddRow(int64(2), "assistant", "Ola! Como posso ajudar?", time.Date(2026, 1, 14, 9, 1, 0, 0, time.UTC)))

	conv, err := repo.LeadConversation(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "5585999887766", conv.Phone)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func visitRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"visit_uuid", "lead_number", "nome", "phone", "property_title", "property_info",
		"scheduled_date", "scheduled_time", "status", "session", "created_at",
		"confirmation_sent", "lead_confirmed", "lead_confirmed_at",
		"broker_confirmation_sent", "broker_confirmed", "feedback_requested",
		"feedback_score", "feedback_at", "needs_improvement", "broker_id",
	})
}

func ptr[T any](v T) *T { return &v }
