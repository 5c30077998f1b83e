package leads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orquestrai/sells-broker/internal/listings"
	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

const (
	followUpTimerKind = "landing_followup"
	defaultFollowUp   = 5 * time.Minute
)

// SendFunc delivers a WhatsApp message to a chat.
type SendFunc func(ctx context.Context, chatID, text string) error

// ContactedFunc runs after the proactive follow-up went out, so the
// conversation layer can pre-seed the lead's context.
type ContactedFunc func(ctx context.Context, l *Lead)

// Service registers landing-page leads and messages the ones that never
// start a conversation on their own.
type Service struct {
	repo        Repository
	sched       *timers.Scheduler
	send        SendFunc
	onContacted ContactedFunc
	delay       time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

// NewService creates the landing-lead service. onContacted may be nil.
func NewService(repo Repository, sched *timers.Scheduler, send SendFunc, onContacted ContactedFunc, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:        repo,
		sched:       sched,
		send:        send,
		onContacted: onContacted,
		delay:       defaultFollowUp,
		logger:      logger,
		now:         time.Now,
	}
}

// SetFollowUpDelay overrides how long after registration the proactive
// follow-up fires.
func (s *Service) SetFollowUpDelay(d time.Duration) {
	if d > 0 {
		s.delay = d
	}
}

// Register stores a landing-page submission and arms its follow-up. The
// phone is normalized to the Brazilian format and the formatted price is
// computed once at registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		Phone:     NormalizePhone(req.Phone),
		Name:      strings.TrimSpace(req.Name),
		SourceURL: req.SourceURL,
		Property:  req.Property,
		Status:    StatusPending,
	}
	if lead.Property.Price > 0 {
		lead.Property.PriceFormatted = listings.Property{Price: lead.Property.Price}.PriceFormatted()
	} else {
		lead.Property.PriceFormatted = "Consultar"
	}

	if err := s.repo.Create(ctx, lead); err != nil {
		return nil, err
	}

	s.sched.Arm(timerKey(lead.ID), followUpTimerKind, s.delay, func() {
		s.fire(lead.ID)
	})
	s.logger.Info("landing lead registered",
		"lead_id", lead.ID, "phone", lead.Phone, "property", lead.Property.Title)
	return lead, nil
}

// ClaimPending finds the lead behind an inbound WhatsApp message. When one
// exists its follow-up is cancelled and the lead is marked as having
// started the conversation. Returns nil when the phone has no open lead.
func (s *Service) ClaimPending(ctx context.Context, phone string) (*Lead, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, nil
	}

	lead, err := s.repo.FindOpenByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.sched.Cancel(timerKey(lead.ID), followUpTimerKind)

	if err := s.repo.UpdateStatus(ctx, lead.ID, StatusInConversation, s.now()); err != nil {
		s.logger.Warn("landing lead status update failed", "lead_id", lead.ID, "error", err)
	}
	lead.Status = StatusInConversation

	s.logger.Info("landing page lead detected",
		"lead_id", lead.ID, "phone", phone, "property", lead.Property.Title)
	return lead, nil
}

// List returns every registered lead, newest first.
func (s *Service) List(ctx context.Context) ([]Lead, error) {
	return s.repo.List(ctx)
}

// fire sends the proactive follow-up to a lead that never messaged us.
// Leads that already started a conversation are left alone.
func (s *Service) fire(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("landing follow-up lookup failed", "lead_id", id, "error", err)
		return
	}
	if lead.Status != StatusPending {
		s.logger.Info("landing follow-up skipped, lead already engaged",
			"lead_id", id, "status", lead.Status)
		return
	}

	chatID := lead.Phone + "@c.us"
	if err := s.send(ctx, chatID, followUpMessage(lead)); err != nil {
		s.logger.Error("landing follow-up send failed", "lead_id", id, "error", err)
		return
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusContacted, s.now()); err != nil {
		s.logger.Error("landing lead status update failed", "lead_id", id, "error", err)
	}
	lead.Status = StatusContacted

	if s.onContacted != nil {
		s.onContacted(ctx, lead)
	}
	s.logger.Info("landing follow-up sent",
		"lead_id", id, "phone", lead.Phone, "property", lead.Property.Title)
}

func followUpMessage(l *Lead) string {
	areaText := ""
	if l.Property.Area > 0 {
		areaText = fmt.Sprintf(", %sm2", strconv.FormatFloat(l.Property.Area, 'f', -1, 64))
	}
	return fmt.Sprintf(`Ola! Vi que voce demonstrou interesse no *%s*.

Esse imovel tem %d quartos%s, localizado em %s.

Posso te ajudar a agendar uma visita?`,
		l.Property.Title, l.Property.Bedrooms, areaText, l.Property.Neighborhood)
}

func timerKey(id int64) string {
	return fmt.Sprintf("landing_lead:%d", id)
}
