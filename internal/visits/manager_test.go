package visits

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestrai/sells-broker/internal/timers"
)

const brokerNumber = "558596227722@c.us"

type sendRecorder struct {
	mu   sync.Mutex
	msgs []sentMsg
}

type sentMsg struct {
	chatID string
	text   string
}

func (r *sendRecorder) send(ctx context.Context, session, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sentMsg{chatID: chatID, text: text})
	return nil
}

func (r *sendRecorder) to(chatID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func newManagerFixture(t *testing.T, now time.Time) (*Manager, *InMemoryRepository, *sendRecorder, *timers.Scheduler) {
	t.Helper()
	sched := timers.NewScheduler(nil)
	t.Cleanup(sched.Shutdown)

	repo := NewInMemoryRepository()
	rec := &sendRecorder{}
	m := NewManager(repo, sched, rec.send, brokerNumber, nil)
	m.now = func() time.Time { return now }
	return m, repo, rec, sched
}

func TestFollowUpTimes(t *testing.T) {
	loc := time.Local

	// A 9:00 visit checks the lead at 7:00, the broker at 7:01 and asks for
	// feedback at 11:00.
	early := time.Date(2026, 2, 10, 9, 0, 0, 0, loc)
	lead, broker, feedback := followUpTimes(early)
	assert.Equal(t, time.Date(2026, 2, 10, 7, 0, 0, 0, loc), lead)
	assert.Equal(t, time.Date(2026, 2, 10, 7, 1, 0, 0, loc), broker)
	assert.Equal(t, time.Date(2026, 2, 10, 11, 0, 0, 0, loc), feedback)

	// An afternoon visit gets the 8:00 morning check.
	late := time.Date(2026, 2, 10, 14, 0, 0, 0, loc)
	lead, broker, feedback = followUpTimes(late)
	assert.Equal(t, 8, lead.Hour())
	assert.Equal(t, time.Date(2026, 2, 10, 8, 1, 0, 0, loc), broker)
	assert.Equal(t, time.Date(2026, 2, 10, 16, 0, 0, 0, loc), feedback)
}

func TestScheduleCreatesAndNotifies(t *testing.T) {
	now := time.Date(2026, 2, 9, 15, 0, 0, 0, time.Local)
	m, repo, rec, sched := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "5585999990000@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{Title: "Apto Messejana 2q"},
		LeadSnapshot{Name: "Maria", Phone: "5585999990000", Neighborhood: "Messejana", Bedrooms: "2", Renda: 9000, MaxPrice: 972000},
	)
	require.NoError(t, err)

	assert.Len(t, v.ID, 8)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, "10/02/2026", v.ScheduledDate)
	assert.Equal(t, "14:00", v.ScheduledTime)
	assert.Equal(t, 14, v.ScheduledAt.Hour())

	stored, err := repo.FindActive(context.Background(), "5585999990000@c.us", "")
	require.NoError(t, err)
	assert.Equal(t, v.ID, stored.ID)

	brokerMsgs := rec.to(brokerNumber)
	require.Len(t, brokerMsgs, 1)
	assert.Contains(t, brokerMsgs[0], "*NOVA VISITA AGENDADA* #"+v.ID)
	assert.Contains(t, brokerMsgs[0], "Nome: Maria")
	assert.Contains(t, brokerMsgs[0], "Renda: R$ 9.000")
	assert.Contains(t, brokerMsgs[0], "Limite: R$ 972.000")
	assert.Contains(t, brokerMsgs[0], "Data: 10/02/2026")

	// All three follow-ups are in the future, so all three are armed.
	assert.True(t, sched.Pending(v.ID, timerLeadConfirm))
	assert.True(t, sched.Pending(v.ID, timerBrokerConfirm))
	assert.True(t, sched.Pending(v.ID, timerFeedback))
}

func TestSchedulePartialSlot(t *testing.T) {
	now := time.Date(2026, 2, 9, 15, 0, 0, 0, time.Local)
	m, _, _, sched := newManagerFixture(t, now)

	// Time only, no date.
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", time.Time{}, false, "14:00",
		PropertySnapshot{}, LeadSnapshot{Name: "Maria"})
	require.NoError(t, err)
	assert.Equal(t, Unconfirmed, v.ScheduledDate)
	assert.Equal(t, "14:00", v.ScheduledTime)
	assert.True(t, v.ScheduledAt.IsZero())
	assert.Zero(t, sched.Len(), "no timers without a full slot")

	// Neither date nor time is an error.
	_, err = m.Schedule(context.Background(), "x@c.us", "corretores", time.Time{}, false, "",
		PropertySnapshot{}, LeadSnapshot{})
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestSchedulePastFireTimesSkipped(t *testing.T) {
	// Booking at 12:00 for a 9:00 visit the same day: the 7:00 and 7:01
	// checks are already past, only the 11:00 feedback... also past.
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.Local)
	m, _, _, sched := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", date, true, "09:00",
		PropertySnapshot{}, LeadSnapshot{Name: "Maria"})
	require.NoError(t, err)

	assert.False(t, sched.Pending(v.ID, timerLeadConfirm))
	assert.False(t, sched.Pending(v.ID, timerBrokerConfirm))
	assert.False(t, sched.Pending(v.ID, timerFeedback))
}

func TestLeadConfirmationFlow(t *testing.T) {
	now := time.Date(2026, 2, 10, 7, 0, 0, 0, time.Local)
	m, repo, rec, _ := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "5585999990000@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{Title: "Apto X"}, LeadSnapshot{Name: "Maria", Phone: "5585999990000"})
	require.NoError(t, err)

	m.sendLeadConfirmation(v.ID)
	leadMsgs := rec.to("5585999990000@c.us")
	require.Len(t, leadMsgs, 1)
	assert.Contains(t, leadMsgs[0], "Confirma presenca? (Sim/Nao)")

	// Asking twice does not re-send once answered.
	reply, handled := m.HandleReply(context.Background(), "5585999990000@c.us", "5585999990000", "Sim")
	require.True(t, handled)
	assert.Equal(t, "Confirmado! Estaremos te esperando. Ate mais tarde!", reply)

	stored, err := repo.FindActive(context.Background(), "5585999990000@c.us", "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.True(t, stored.LeadConfirmed)

	brokerMsgs := rec.to(brokerNumber)
	assert.Contains(t, brokerMsgs[len(brokerMsgs)-1], "CONFIRMOU presenca")

	m.sendLeadConfirmation(v.ID)
	assert.Len(t, rec.to("5585999990000@c.us"), 1, "confirmed visit is not asked again")

	// A second "sim" is no longer a confirmation reply.
	_, handled = m.HandleReply(context.Background(), "5585999990000@c.us", "5585999990000", "Sim")
	assert.False(t, handled)
}

func TestLeadCancellationCancelsTimers(t *testing.T) {
	now := time.Date(2026, 2, 10, 7, 0, 0, 0, time.Local)
	m, repo, _, sched := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{}, LeadSnapshot{Name: "Maria", Phone: "558588"})
	require.NoError(t, err)
	require.True(t, sched.Pending(v.ID, timerFeedback))

	m.sendLeadConfirmation(v.ID)
	reply, handled := m.HandleReply(context.Background(), "x@c.us", "558588", "nao vou poder")
	require.True(t, handled)
	assert.Contains(t, reply, "visita cancelada")

	stored := repo.visits[v.ID]
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.False(t, sched.Pending(v.ID, timerFeedback), "cancelling clears the visit's timers")
}

func TestFeedbackFlow(t *testing.T) {
	now := time.Date(2026, 2, 10, 16, 0, 0, 0, time.Local)
	m, repo, rec, _ := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{}, LeadSnapshot{Name: "Maria", Phone: "558588"})
	require.NoError(t, err)

	m.sendFeedbackRequest(v.ID)
	assert.Contains(t, rec.to("x@c.us")[0], "De 1 a 5")

	reply, handled := m.HandleReply(context.Background(), "x@c.us", "558588", "5")
	require.True(t, handled)
	assert.Contains(t, reply, "Ficamos felizes")

	stored := repo.visits[v.ID]
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.FeedbackScore)
	assert.False(t, stored.NeedsImprovement)
}

func TestFeedbackLowScoreFlagsImprovement(t *testing.T) {
	now := time.Date(2026, 2, 10, 16, 0, 0, 0, time.Local)
	m, repo, _, _ := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{}, LeadSnapshot{Phone: "558588"})
	require.NoError(t, err)

	m.sendFeedbackRequest(v.ID)
	reply, handled := m.HandleReply(context.Background(), "x@c.us", "558588", "2")
	require.True(t, handled)
	assert.Contains(t, reply, "Vamos trabalhar para melhorar")

	stored := repo.visits[v.ID]
	assert.True(t, stored.NeedsImprovement)

	// A lone rating with no feedback pending is not consumed.
	_, handled = m.HandleReply(context.Background(), "x@c.us", "558588", "3")
	assert.False(t, handled)
}

func TestFindActiveFuzzyPhoneAndPromotion(t *testing.T) {
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.Local)
	m, repo, _, _ := newManagerFixture(t, now)

	// Visit known only to the repository, as after a restart.
	require.NoError(t, repo.Save(context.Background(), &Visit{
		ID:         "abc12345",
		LeadNumber: "123456789@lid",
		Lead:       LeadSnapshot{Phone: "5585999990000"},
		Status:     StatusPending,
		CreatedAt:  now,
	}))

	// Lookup by a longer variant of the stored phone still matches.
	v := m.FindActive(context.Background(), "outro@c.us", "555585999990000")
	require.NotNil(t, v)
	assert.Equal(t, "abc12345", v.ID)

	// Promoted into memory: mutating replies now find it without the repo.
	assert.Len(t, m.All(), 1)

	assert.Nil(t, m.FindActive(context.Background(), "ninguem@c.us", "550000"))
}

func TestRestoreReArmsTimers(t *testing.T) {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.Local)
	m, repo, _, sched := newManagerFixture(t, now)

	scheduledAt := time.Date(2026, 2, 10, 14, 0, 0, 0, time.Local)
	require.NoError(t, repo.Save(context.Background(), &Visit{
		ID: "res00001", LeadNumber: "x@c.us", Status: StatusPending,
		ScheduledAt: scheduledAt, ScheduledTime: "14:00", ScheduledDate: "10/02/2026",
		Session: "corretores", CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, repo.Save(context.Background(), &Visit{
		ID: "res00002", LeadNumber: "y@c.us", Status: StatusCancelled,
		ScheduledAt: scheduledAt, CreatedAt: now.Add(-time.Hour),
	}))

	n, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only active visits restore")
	assert.True(t, sched.Pending("res00001", timerLeadConfirm))
	assert.True(t, sched.Pending("res00001", timerFeedback))
	assert.False(t, sched.Pending("res00002", timerFeedback))
}

func TestBrokerConfirmationMessage(t *testing.T) {
	now := time.Date(2026, 2, 10, 7, 0, 0, 0, time.Local)
	m, _, rec, _ := newManagerFixture(t, now)

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)
	v, err := m.Schedule(context.Background(), "x@c.us", "corretores", date, true, "14:00",
		PropertySnapshot{Title: "Apto Messejana 2q"}, LeadSnapshot{Name: "Maria"})
	require.NoError(t, err)

	m.sendBrokerConfirmation(v.ID)

	brokerMsgs := rec.to(brokerNumber)
	last := brokerMsgs[len(brokerMsgs)-1]
	assert.True(t, strings.Contains(last, "Visita #"+v.ID+" com Maria as 14:00"))
	assert.Contains(t, last, "Imovel: Apto Messejana 2q")
	assert.Contains(t, last, "Confirma disponibilidade? (Sim/Nao)")
}
