package visits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Timer kinds armed per visit.
const (
	timerLeadConfirm   = "lead_confirm"
	timerBrokerConfirm = "broker_confirm"
	timerFeedback      = "feedback"
)

// SendFunc delivers a WhatsApp text message.
type SendFunc func(ctx context.Context, session, chatID, text string) error

// Manager owns the live visits: an in-memory working set backed by the
// repository, plus the confirmation and feedback timers around each visit.
type Manager struct {
	mu     sync.Mutex
	visits map[string]*Visit

	repo         Repository
	sched        *timers.Scheduler
	send         SendFunc
	brokerNumber string
	logger       *logging.Logger
	now          func() time.Time
}

// NewManager creates a visit manager. brokerNumber is the broker's WhatsApp
// chat ID for notifications.
func NewManager(repo Repository, sched *timers.Scheduler, send SendFunc, brokerNumber string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		visits:       make(map[string]*Visit),
		repo:         repo,
		sched:        sched,
		send:         send,
		brokerNumber: brokerNumber,
		logger:       logger,
		now:          time.Now,
	}
}

// Schedule books a visit: stores it, notifies the broker with the lead's
// full profile, and arms the confirmation and feedback timers. date and
// timeStr may each be absent; what is missing shows as "A confirmar" and
// follow-ups are only armed when the full slot is known.
func (m *Manager) Schedule(ctx context.Context, leadNumber, session string, date time.Time, hasDate bool, timeStr string, prop PropertySnapshot, lead LeadSnapshot) (*Visit, error) {
	if !hasDate && timeStr == "" {
		return nil, ErrNoSchedule
	}

	v := &Visit{
		ID:            uuid.NewString()[:8],
		LeadNumber:    leadNumber,
		Lead:          lead,
		Property:      prop,
		ScheduledDate: Unconfirmed,
		ScheduledTime: Unconfirmed,
		Status:        StatusPending,
		Session:       session,
		CreatedAt:     m.now(),
	}
	if hasDate {
		v.ScheduledDate = date.Format("02/01/2006")
	}
	if timeStr != "" {
		v.ScheduledTime = timeStr
	}
	if hasDate && timeStr != "" {
		if t, err := time.ParseInLocation("15:04", timeStr, date.Location()); err == nil {
			v.ScheduledAt = time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), 0, 0, date.Location())
		}
	}

	m.mu.Lock()
	m.visits[v.ID] = v
	m.mu.Unlock()

	if err := m.repo.Save(ctx, v); err != nil {
		m.logger.Error("visit persistence failed", "visit_id", v.ID, "error", err)
	}

	if err := m.send(ctx, session, m.brokerNumber, brokerNotification(v)); err != nil {
		m.logger.Error("broker notification failed", "visit_id", v.ID, "error", err)
	} else {
		m.logger.Info("broker notified of new visit", "visit_id", v.ID)
	}

	m.scheduleFollowUps(v)
	return v, nil
}

// brokerNotification is the full lead profile sent to the broker when a
// visit is booked.
func brokerNotification(v *Visit) string {
	orDefault := func(s string) string {
		if s == "" {
			return "Nao informado"
		}
		return s
	}
	rendaFmt := "Nao informado"
	if v.Lead.Renda > 0 {
		rendaFmt = fmt.Sprintf("R$ %s", groupThousands(v.Lead.Renda))
	}
	limiteFmt := "Nao informado"
	if v.Lead.MaxPrice > 0 {
		limiteFmt = fmt.Sprintf("R$ %s", groupThousands(int(v.Lead.MaxPrice)))
	}
	title := v.Property.Title
	if title == "" {
		title = "Imovel selecionado"
	}

	return fmt.Sprintf(`*NOVA VISITA AGENDADA* #%s

*LEAD*
Nome: %s
Tel: %s

*PERFIL DE COMPRA*
Bairro: %s
Quartos: %s
Renda: %s
Limite: %s

*VISITA*
Imovel: %s
Data: %s
Horario: %s

Responda para confirmar.`,
		v.ID,
		orDefault(v.Lead.Name), orDefault(v.Lead.Phone),
		orDefault(v.Lead.Neighborhood), orDefault(v.Lead.Bedrooms),
		rendaFmt, limiteFmt,
		title, v.ScheduledDate, v.ScheduledTime)
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, c)
	}
	return string(out)
}

// scheduleFollowUps arms the three timers around a visit with a known slot:
// a presence check with the lead (8:00 on the visit day, or two hours ahead
// for early visits), the broker check a minute later, and the feedback
// request two hours after the visit. Fire times already past are skipped.
func (m *Manager) scheduleFollowUps(v *Visit) {
	if v.ScheduledAt.IsZero() {
		m.logger.Info("visit has no full slot, skipping follow-up timers", "visit_id", v.ID)
		return
	}
	now := m.now()
	id := v.ID
	leadConfirmAt, brokerConfirmAt, feedbackAt := followUpTimes(v.ScheduledAt)

	if d := leadConfirmAt.Sub(now); d > 0 {
		m.sched.Arm(id, timerLeadConfirm, d, func() { m.sendLeadConfirmation(id) })
		m.logger.Info("lead confirmation scheduled", "visit_id", id, "at", leadConfirmAt)
	}
	if d := brokerConfirmAt.Sub(now); d > 0 {
		m.sched.Arm(id, timerBrokerConfirm, d, func() { m.sendBrokerConfirmation(id) })
	}
	if d := feedbackAt.Sub(now); d > 0 {
		m.sched.Arm(id, timerFeedback, d, func() { m.sendFeedbackRequest(id) })
		m.logger.Info("feedback request scheduled", "visit_id", id, "at", feedbackAt)
	}
}

// followUpTimes derives the three fire times from the visit slot. The lead
// check lands at 8:00 on the visit day, except for visits at 10:00 or
// earlier, which get checked two hours ahead instead; the broker check
// trails it by a minute so the two messages never race; feedback comes two
// hours after the visit.
func followUpTimes(scheduledAt time.Time) (leadConfirm, brokerConfirm, feedback time.Time) {
	if scheduledAt.Hour() <= 10 {
		leadConfirm = scheduledAt.Add(-2 * time.Hour)
	} else {
		leadConfirm = time.Date(scheduledAt.Year(), scheduledAt.Month(), scheduledAt.Day(),
			8, 0, 0, 0, scheduledAt.Location())
	}
	return leadConfirm, leadConfirm.Add(time.Minute), scheduledAt.Add(2 * time.Hour)
}

func (m *Manager) sendLeadConfirmation(visitID string) {
	m.mu.Lock()
	v, ok := m.visits[visitID]
	if !ok || v.Status == StatusCancelled || v.LeadConfirmed {
		m.mu.Unlock()
		m.logger.Info("skipping lead confirmation", "visit_id", visitID)
		return
	}
	v.ConfirmationSent = true
	msg := fmt.Sprintf("Bom dia! Sua visita esta marcada para hoje as %s. Confirma presenca? (Sim/Nao)", v.ScheduledTime)
	session, leadNumber := v.Session, v.LeadNumber
	snapshot := *v
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.send(ctx, session, leadNumber, msg); err != nil {
		m.logger.Error("lead confirmation send failed", "visit_id", visitID, "error", err)
		return
	}
	if err := m.repo.Update(ctx, &snapshot); err != nil {
		m.logger.Error("visit update failed", "visit_id", visitID, "error", err)
	}
	m.logger.Info("lead confirmation request sent", "visit_id", visitID)
}

func (m *Manager) sendBrokerConfirmation(visitID string) {
	m.mu.Lock()
	v, ok := m.visits[visitID]
	if !ok || v.Status == StatusCancelled {
		m.mu.Unlock()
		m.logger.Info("skipping broker confirmation", "visit_id", visitID)
		return
	}
	v.BrokerConfirmationSent = true
	name := v.Lead.Name
	if name == "" {
		name = "Lead"
	}
	title := v.Property.Title
	if title == "" {
		title = "Imovel"
	}
	msg := fmt.Sprintf("Bom dia! Visita #%s com %s as %s.\nImovel: %s\nConfirma disponibilidade? (Sim/Nao)",
		v.ID, name, v.ScheduledTime, title)
	session := v.Session
	snapshot := *v
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.send(ctx, session, m.brokerNumber, msg); err != nil {
		m.logger.Error("broker confirmation send failed", "visit_id", visitID, "error", err)
		return
	}
	if err := m.repo.Update(ctx, &snapshot); err != nil {
		m.logger.Error("visit update failed", "visit_id", visitID, "error", err)
	}
	m.logger.Info("broker confirmation request sent", "visit_id", visitID)
}

func (m *Manager) sendFeedbackRequest(visitID string) {
	m.mu.Lock()
	v, ok := m.visits[visitID]
	if !ok || v.Status == StatusCancelled || v.FeedbackRequested {
		m.mu.Unlock()
		m.logger.Info("skipping feedback request", "visit_id", visitID)
		return
	}
	v.FeedbackRequested = true
	session, leadNumber := v.Session, v.LeadNumber
	snapshot := *v
	m.mu.Unlock()

	msg := "Como foi sua experiencia na visita? De 1 a 5, qual nota voce daria para o atendimento do corretor?"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.send(ctx, session, leadNumber, msg); err != nil {
		m.logger.Error("feedback request send failed", "visit_id", visitID, "error", err)
		return
	}
	if err := m.repo.Update(ctx, &snapshot); err != nil {
		m.logger.Error("visit update failed", "visit_id", visitID, "error", err)
	}
	m.logger.Info("feedback request sent", "visit_id", visitID)
}

// FindActive returns the lead's pending or confirmed visit, checking the
// in-memory set first and falling back to the repository. A repository hit
// is promoted into memory so its replies keep working after a restart.
func (m *Manager) FindActive(ctx context.Context, leadNumber, realPhone string) *Visit {
	m.mu.Lock()
	var best *Visit
	for _, v := range m.visits {
		if !v.Active() {
			continue
		}
		if v.LeadNumber == leadNumber || phonesMatch(v.Lead.Phone, realPhone) {
			if best == nil || v.CreatedAt.After(best.CreatedAt) {
				best = v
			}
		}
	}
	if best != nil {
		snapshot := *best
		m.mu.Unlock()
		return &snapshot
	}
	m.mu.Unlock()

	v, err := m.repo.FindActive(ctx, leadNumber, realPhone)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Error("active visit lookup failed", "lead_number", leadNumber, "error", err)
		}
		return nil
	}

	m.mu.Lock()
	m.visits[v.ID] = v
	m.mu.Unlock()
	m.logger.Info("visit loaded from database into memory", "visit_id", v.ID)
	snapshot := *v
	return &snapshot
}

// History returns the lead's most recent visits, newest first.
func (m *Manager) History(ctx context.Context, leadNumber, realPhone string, limit int) []Visit {
	visits, err := m.repo.History(ctx, leadNumber, realPhone, limit)
	if err != nil {
		m.logger.Error("visit history lookup failed", "lead_number", leadNumber, "error", err)
		return nil
	}
	return visits
}

// HandleReply processes a lead message against their active visit: first as
// an answer to a pending confirmation request, then as a feedback score.
// When the message consumes the reply, the visit is updated and the response
// to send back is returned with handled=true.
func (m *Manager) HandleReply(ctx context.Context, leadNumber, realPhone, message string) (string, bool) {
	active := m.FindActive(ctx, leadNumber, realPhone)
	if active == nil {
		return "", false
	}

	m.mu.Lock()
	v, ok := m.visits[active.ID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}

	if v.ConfirmationSent && !v.LeadConfirmed && IsConfirmationReply(message) {
		var response string
		if IsAffirmative(message) {
			v.LeadConfirmed = true
			v.LeadConfirmedAt = m.now()
			v.Status = StatusConfirmed
			response = "Confirmado! Estaremos te esperando. Ate mais tarde!"
		} else {
			v.Status = StatusCancelled
			response = "Entendi, visita cancelada. Posso ajudar a reagendar para outro dia?"
		}
		snapshot := *v
		m.mu.Unlock()

		if snapshot.LeadConfirmed {
			m.notifyBrokerLeadConfirmed(ctx, &snapshot)
		} else {
			m.sched.CancelAll(snapshot.ID)
		}
		if err := m.repo.Update(ctx, &snapshot); err != nil {
			m.logger.Error("visit update failed", "visit_id", snapshot.ID, "error", err)
		}
		m.logger.Info("confirmation reply processed", "visit_id", snapshot.ID, "status", snapshot.Status)
		return response, true
	}

	if v.FeedbackRequested && v.FeedbackScore == 0 {
		if score := ParseFeedbackScore(message); score > 0 {
			v.FeedbackScore = score
			v.FeedbackAt = m.now()
			v.Status = StatusCompleted
			var response string
			if score >= 4 {
				response = "Obrigado pelo feedback! Ficamos felizes que gostou do atendimento. Se precisar de mais ajuda, estou aqui!"
			} else {
				v.NeedsImprovement = true
				response = "Obrigado pelo feedback. Vamos trabalhar para melhorar! O que podemos fazer de diferente na proxima vez?"
			}
			snapshot := *v
			m.mu.Unlock()

			if err := m.repo.Update(ctx, &snapshot); err != nil {
				m.logger.Error("visit update failed", "visit_id", snapshot.ID, "error", err)
			}
			m.logger.Info("feedback processed", "visit_id", snapshot.ID, "score", score)
			return response, true
		}
	}

	m.mu.Unlock()
	return "", false
}

func (m *Manager) notifyBrokerLeadConfirmed(ctx context.Context, v *Visit) {
	name := v.Lead.Name
	if name == "" {
		name = "Lead"
	}
	msg := fmt.Sprintf("Lead %s CONFIRMOU presenca para visita #%s as %s.", name, v.ID, v.ScheduledTime)
	if err := m.send(ctx, v.Session, m.brokerNumber, msg); err != nil {
		m.logger.Error("broker confirm notification failed", "visit_id", v.ID, "error", err)
	}
}

// Restore loads the active visits from the repository after a restart and
// re-arms their follow-up timers. Fire times already past are dropped.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	visits, err := m.repo.AllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("visits: restore: %w", err)
	}

	for i := range visits {
		v := visits[i]
		m.mu.Lock()
		m.visits[v.ID] = &v
		m.mu.Unlock()
		m.scheduleFollowUps(&v)
	}
	m.logger.Info("visits restored from database", "count", len(visits))
	return len(visits), nil
}

// All returns a copy of every visit in the working set.
func (m *Manager) All() []Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Visit, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, *v)
	}
	return out
}
