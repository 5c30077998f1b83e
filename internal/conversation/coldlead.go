package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

const coldLeadTimerKind = "cold_lead"

// coldLeadDelays are the progressive waits before each re-engagement
// message: 30 minutes, 2 hours, 1 day, 3 days, 7 days.
var coldLeadDelays = []time.Duration{
	30 * time.Minute,
	2 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
	168 * time.Hour,
}

var coldLeadMessages = []string{
	"Oi! Vi que voce ficou interessado em imoveis. Posso ajudar com mais informacoes ou agendar uma visita?",
	"Ola novamente! Ainda esta procurando imovel? Estou a disposicao para ajudar.",
	"Bom dia! Passando para saber se ainda tem interesse em encontrar seu imovel ideal.",
	"Oi! Faz alguns dias que conversamos. Surgiu algum imovel novo que pode te interessar. Quer ver?",
	"Ola! Ainda procurando imovel? Temos novas opcoes que podem combinar com voce.",
}

// ColdLeadScheduler re-engages leads that stop replying, escalating through
// progressively longer waits. A reply from the lead resets the ladder to the
// first tier.
type ColdLeadScheduler struct {
	mu     sync.Mutex
	tiers  map[string]int
	sched  *timers.Scheduler
	send   func(ctx context.Context, chatID, text string) error
	record func(ctx context.Context, conversationID, role, content string) error
	logger *logging.Logger
	delays []time.Duration
}

// NewColdLeadScheduler creates the scheduler. send delivers the follow-up
// message to the lead's chat; record appends it to the conversation history.
func NewColdLeadScheduler(
	sched *timers.Scheduler,
	send func(ctx context.Context, chatID, text string) error,
	record func(ctx context.Context, conversationID, role, content string) error,
	logger *logging.Logger,
) *ColdLeadScheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ColdLeadScheduler{
		tiers:  make(map[string]int),
		sched:  sched,
		send:   send,
		record: record,
		logger: logger,
		delays: coldLeadDelays,
	}
}

// Schedule arms the follow-up for the conversation's current tier,
// replacing any pending one. Once every tier has fired the conversation is
// left alone.
func (c *ColdLeadScheduler) Schedule(conversationID string) {
	c.mu.Lock()
	tier := c.tiers[conversationID]
	if tier >= len(c.delays) {
		c.mu.Unlock()
		c.logger.Info("all follow-up tiers exhausted", "conversation_id", conversationID)
		return
	}
	delay := c.delays[tier]
	c.mu.Unlock()

	c.sched.Arm(conversationID, coldLeadTimerKind, delay, func() {
		c.fire(conversationID)
	})
	c.logger.Info("cold lead follow-up scheduled",
		"conversation_id", conversationID, "tier", tier+1, "delay", delay.String())
}

// Reset cancels any pending follow-up and returns the conversation to the
// first tier. Called whenever the lead sends a message.
func (c *ColdLeadScheduler) Reset(conversationID string) {
	c.sched.Cancel(conversationID, coldLeadTimerKind)
	c.mu.Lock()
	delete(c.tiers, conversationID)
	c.mu.Unlock()
}

// Pending reports whether a follow-up is armed for the conversation.
func (c *ColdLeadScheduler) Pending(conversationID string) bool {
	return c.sched.Pending(conversationID, coldLeadTimerKind)
}

func (c *ColdLeadScheduler) fire(conversationID string) {
	c.mu.Lock()
	tier := c.tiers[conversationID]
	c.mu.Unlock()

	message := coldLeadMessages[0]
	if tier < len(coldLeadMessages) {
		message = coldLeadMessages[tier]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chatID := strings.TrimPrefix(conversationID, "whatsapp_")
	if err := c.send(ctx, chatID, message); err != nil {
		c.logger.Error("cold lead follow-up send failed",
			"conversation_id", conversationID, "tier", tier+1, "error", err)
		return
	}
	if err := c.record(ctx, conversationID, RoleAssistant, message); err != nil {
		c.logger.Error("cold lead follow-up record failed",
			"conversation_id", conversationID, "error", err)
	}
	c.logger.Info("cold lead follow-up sent", "conversation_id", conversationID, "tier", tier+1)

	c.mu.Lock()
	c.tiers[conversationID] = tier + 1
	done := tier+1 >= len(c.delays)
	if done {
		delete(c.tiers, conversationID)
	}
	c.mu.Unlock()

	if !done {
		c.Schedule(conversationID)
	}
}
