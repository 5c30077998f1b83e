package conversation

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orquestrai/sells-broker/internal/listings"
	"github.com/orquestrai/sells-broker/internal/observability/metrics"
	"github.com/orquestrai/sells-broker/internal/visits"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

const fallbackReply = "Ola! Estou aqui para ajudar voce a encontrar o imovel ideal. Como posso ajudar?"

var propertyRequestWords = []string{
	"foto", "fotos", "imagem", "imagens",
	"opcao", "opcoes", "opção", "opções",
	"imovel", "imoveis", "imóvel", "imóveis",
	"apartamento", "casa", "ver", "mostrar",
	"tem o que", "tem algo", "disponivel", "disponível",
}

var sendPromisePhrases = []string{
	"vou te enviar", "vou enviar", "enviar algumas",
	"enviar opcoes", "enviar opções",
	"te mostrar algumas", "mostrar algumas opcoes", "mostrar algumas opções",
}

var noInterestWords = []string{
	"sem interesse", "nao quero", "nao tenho interesse", "nao preciso", "desisto", "cancelar",
}

// Messenger is the outbound WhatsApp surface the orchestrator needs.
type Messenger interface {
	SendText(ctx context.Context, session, chatID, text string) error
	SendImage(ctx context.Context, session, chatID, imageURL, caption string) error
	MarkSeen(ctx context.Context, session, chatID string) error
	StartTyping(ctx context.Context, session, chatID string) error
}

// ListingSearcher finds listings matching the lead's criteria.
type ListingSearcher interface {
	Search(ctx context.Context, f listings.Filters) ([]listings.Property, error)
}

// LandingResolver connects a first WhatsApp message to a pending
// landing-page lead by phone. It returns nil when the phone has no pending
// lead.
type LandingResolver interface {
	ClaimPending(ctx context.Context, phone string) (*LandingContext, error)
}

// ServiceConfig wires the orchestrator's dependencies.
type ServiceConfig struct {
	Redis           *redis.Client
	Messages        MessageRepository
	LLM             LLMClient
	ChatModel       string
	ExtractionModel string
	Messenger       Messenger
	Listings        ListingSearcher
	Visits          *visits.Manager
	ColdLeads       *ColdLeadScheduler
	Landing         LandingResolver
	Metrics         *metrics.MessagingMetrics
	Logger          *logging.Logger
	Tracer          trace.Tracer
}

// Service orchestrates one lead conversation turn end to end: history,
// visit replies, extraction, scheduling, the model call, humanized delivery
// and listing push.
type Service struct {
	store     *historyStore
	llm       LLMClient
	chatModel string
	extractor *aiExtractor
	messenger Messenger
	listings  ListingSearcher
	visits    *visits.Manager
	cold      *ColdLeadScheduler
	landing   LandingResolver
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
	tracer    trace.Tracer

	now   func() time.Time
	sleep func(time.Duration)

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates the orchestrator.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("sellsbroker.internal.conversation")
	}
	return &Service{
		store:     newHistoryStore(cfg.Redis, cfg.Messages, tracer),
		llm:       cfg.LLM,
		chatModel: cfg.ChatModel,
		extractor: &aiExtractor{llm: cfg.LLM, model: cfg.ExtractionModel},
		messenger: cfg.Messenger,
		listings:  cfg.Listings,
		visits:    cfg.Visits,
		cold:      cfg.ColdLeads,
		landing:   cfg.Landing,
		metrics:   cfg.Metrics,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
		sleep:     time.Sleep,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordAssistantMessage appends an assistant-side message to a
// conversation's history. Used by the schedulers that message leads outside
// a regular turn.
func (s *Service) RecordAssistantMessage(ctx context.Context, conversationID, content string) error {
	return s.store.Append(ctx, conversationID, RoleAssistant, content)
}

// SaveLandingContext pre-seeds a conversation with landing-page data before
// the lead's first message arrives.
func (s *Service) SaveLandingContext(ctx context.Context, conversationID string, lc *LandingContext) error {
	return s.store.SaveLandingContext(ctx, conversationID, lc)
}

// History exposes a conversation's recent turns, for the dashboard.
func (s *Service) History(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	return s.store.History(ctx, conversationID)
}

// ConversationID derives the history key for a WhatsApp chat.
func ConversationID(senderKey string) string {
	return "whatsapp_" + senderKey
}

// Process handles one flushed buffer turn.
func (s *Service) Process(ctx context.Context, turn Turn) error {
	started := s.now()
	err := s.process(ctx, turn)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveTurn(status, s.now().Sub(started).Seconds())
	return err
}

func (s *Service) process(ctx context.Context, turn Turn) error {
	ctx, span := s.tracer.Start(ctx, "conversation.process_turn")
	defer span.End()

	conversationID := ConversationID(turn.SenderKey)
	text := turn.Text

	// The lead spoke, so any pending re-engagement restarts from scratch.
	s.cold.Reset(conversationID)

	landing := s.resolveLanding(ctx, conversationID, turn.RealPhone)

	if err := s.store.Append(ctx, conversationID, RoleUser, text); err != nil {
		span.RecordError(err)
		return err
	}

	// Visit confirmations and feedback scores short-circuit the model.
	if reply, handled := s.visits.HandleReply(ctx, turn.SenderKey, turn.RealPhone, text); handled {
		if err := s.store.Append(ctx, conversationID, RoleAssistant, reply); err != nil {
			span.RecordError(err)
			return err
		}
		s.deliver(ctx, turn, conversationID, reply, time.Second)
		return nil
	}

	selection := s.trackSelection(ctx, conversationID, turn)
	s.maybeScheduleVisit(ctx, conversationID, turn)

	userWants := containsAny(strings.ToLower(text), propertyRequestWords)

	history, err := s.store.History(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	filters := s.enrichedFilters(ctx, history)
	availableCount := s.precheckAvailability(ctx, filters)
	activeVisit := s.visits.FindActive(ctx, turn.SenderKey, turn.RealPhone)

	reply, err := s.generateReply(ctx, conversationID, turn, history, landing, selection, availableCount, activeVisit)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("model reply failed, using fallback", "conversation_id", conversationID, "error", err)
		reply = fallbackReply
	}

	if err := s.store.Append(ctx, conversationID, RoleAssistant, reply); err != nil {
		span.RecordError(err)
		return err
	}

	s.deliver(ctx, turn, conversationID, reply, s.humanDelay(len(reply)))

	if s.shouldSendListings(userWants, reply, selection, landing, activeVisit) {
		s.pushListings(ctx, turn, filters)
	}

	if activeVisit == nil && !containsAny(strings.ToLower(text), noInterestWords) {
		s.cold.Schedule(conversationID)
	}
	return nil
}

// resolveLanding loads the conversation's landing-page context, claiming a
// pending landing lead by phone on the lead's first message.
func (s *Service) resolveLanding(ctx context.Context, conversationID, realPhone string) *LandingContext {
	lc, err := s.store.LandingContext(ctx, conversationID)
	if err != nil {
		s.logger.Error("landing context load failed", "conversation_id", conversationID, "error", err)
		return nil
	}
	if lc != nil {
		return lc
	}
	if s.landing == nil || realPhone == "" {
		return nil
	}

	lc, err = s.landing.ClaimPending(ctx, realPhone)
	if err != nil {
		s.logger.Error("landing lead claim failed", "phone", realPhone, "error", err)
		return nil
	}
	if lc == nil {
		return nil
	}
	if err := s.store.SaveLandingContext(ctx, conversationID, lc); err != nil {
		s.logger.Error("landing context save failed", "conversation_id", conversationID, "error", err)
	}
	s.logger.Info("landing page lead detected", "phone", realPhone, "conversation_id", conversationID)
	return lc
}

// trackSelection records the listing a lead picked by quoting one of our
// messages, so scheduling later attaches the right property.
func (s *Service) trackSelection(ctx context.Context, conversationID string, turn Turn) PropertySelection {
	selection := DetectPropertySelection(turn.Text, turn.HasQuoted)
	if !selection.HasSelection {
		return selection
	}
	s.logger.Info("property selection detected",
		"conversation_id", conversationID, "type", selection.Type, "intent", selection.Intent)

	if turn.QuotedBody != "" {
		info := turn.QuotedBody
		if len(info) > 200 {
			info = info[:200]
		}
		sel := &SelectedProperty{Title: "Imovel selecionado", Info: info}
		if err := s.store.SaveSelectedProperty(ctx, conversationID, sel); err != nil {
			s.logger.Error("selected property save failed", "conversation_id", conversationID, "error", err)
		}
	}
	return selection
}

// maybeScheduleVisit books a visit when the turn carries a date or time and
// the lead's profile is complete. Incomplete profiles leave booking to a
// later turn; the model asks for what is missing.
func (s *Service) maybeScheduleVisit(ctx context.Context, conversationID string, turn Turn) {
	dt := ParsePortugueseDateTime(turn.Text, s.now())
	if dt == nil {
		return
	}
	s.logger.Info("scheduling intent detected", "conversation_id", conversationID)

	history, err := s.store.History(ctx, conversationID)
	if err != nil {
		s.logger.Error("history load failed", "conversation_id", conversationID, "error", err)
		return
	}

	aiData, err := s.extractor.Extract(ctx, history)
	if err != nil {
		s.logger.Warn("ai extraction failed, regex only", "conversation_id", conversationID, "error", err)
	}
	filters := ExtractFilters(history)
	name := ExtractName(history)

	finalName := firstNonEmpty(aiData.Name, nameOrEmpty(name))
	finalNeighborhood := firstNonEmpty(aiData.Neighborhood, filters.Neighborhood)
	finalBedrooms := firstNonEmpty(aiData.Bedrooms, intOrEmpty(filters.Bedrooms))
	finalRenda := filters.Renda
	if aiData.Renda > 0 {
		finalRenda = aiData.Renda
	}

	var missing []string
	if finalName == "" {
		missing = append(missing, "nome")
	}
	if finalNeighborhood == "" {
		missing = append(missing, "bairro")
	}
	if finalBedrooms == "" {
		missing = append(missing, "quartos")
	}
	if len(missing) > 0 {
		s.logger.Info("scheduling blocked, profile incomplete",
			"conversation_id", conversationID, "missing", strings.Join(missing, ","))
		return
	}

	prop := visits.PropertySnapshot{}
	if sel, err := s.store.SelectedProperty(ctx, conversationID); err == nil && sel != nil {
		prop.Title = sel.Title
		prop.Info = sel.Info
	}

	lead := visits.LeadSnapshot{
		Name:         finalName,
		Phone:        turn.RealPhone,
		Neighborhood: finalNeighborhood,
		Bedrooms:     finalBedrooms,
		Renda:        finalRenda,
		MaxPrice:     filters.MaxPrice,
	}

	visit, err := s.visits.Schedule(ctx, turn.SenderKey, turn.Session, dt.Date, dt.HasDate, dt.Time, prop, lead)
	if err != nil {
		s.logger.Error("visit scheduling failed", "conversation_id", conversationID, "error", err)
		return
	}
	s.metrics.VisitScheduled()

	if err := s.store.SaveSelectedProperty(ctx, conversationID, nil); err != nil {
		s.logger.Error("selected property clear failed", "conversation_id", conversationID, "error", err)
	}
	s.logger.Info("visit scheduled", "conversation_id", conversationID, "visit_id", visit.ID)
}

// enrichedFilters merges regex extraction with the model's reading of the
// history. Regex wins where it found something; the model fills the gaps.
func (s *Service) enrichedFilters(ctx context.Context, history []ChatMessage) listings.Filters {
	f := ExtractFilters(history)
	out := listings.Filters{
		Neighborhood: f.Neighborhood,
		Bedrooms:     f.Bedrooms,
		MaxPrice:     f.MaxPrice,
	}
	if out.Neighborhood != "" && out.Bedrooms > 0 && out.MaxPrice > 0 {
		return out
	}

	aiData, err := s.extractor.Extract(ctx, history)
	if err != nil {
		return out
	}
	if out.Neighborhood == "" {
		out.Neighborhood = aiData.Neighborhood
	}
	if out.Bedrooms == 0 && aiData.Bedrooms != "" {
		if n, err := strconv.Atoi(aiData.Bedrooms); err == nil {
			out.Bedrooms = n
		}
	}
	if out.MaxPrice == 0 && aiData.Renda > 0 {
		out.MaxPrice = float64(aiData.Renda) * 0.30 * 360
	}
	return out
}

// precheckAvailability counts matching listings before the model speaks, so
// it never promises photos that do not exist. Returns -1 when there are no
// filters to search with or the portal is unreachable.
func (s *Service) precheckAvailability(ctx context.Context, f listings.Filters) int {
	if f.Neighborhood == "" && f.Bedrooms == 0 && f.MaxPrice == 0 {
		return -1
	}
	found, err := s.listings.Search(ctx, f)
	if err != nil {
		s.logger.Warn("availability pre-check failed", "error", err)
		return -1
	}
	return len(found)
}

func (s *Service) generateReply(
	ctx context.Context,
	conversationID string,
	turn Turn,
	history []ChatMessage,
	landing *LandingContext,
	selection PropertySelection,
	availableCount int,
	activeVisit *visits.Visit,
) (string, error) {
	var landingProp *listings.Property
	if landing != nil {
		landingProp = landing.Property
	}
	system := buildSystemPrompt(s.now(), landingProp)

	// Context blocks prepend to the lead's message, innermost last.
	userMessage := turn.Text
	if selection.HasSelection {
		if sel, err := s.store.SelectedProperty(ctx, conversationID); err == nil && sel != nil {
			userMessage = selectionContext(sel, selection.Intent) + "\n" + userMessage
		}
	}
	if availableCount >= 0 {
		userMessage = availabilityContext(availableCount) + "\n" + userMessage
	}
	if activeVisit != nil {
		userMessage = activeVisitContext(activeVisit.ID, activeVisit.ScheduledDate, activeVisit.ScheduledTime) + "\n" + userMessage
	}
	if past := s.visits.History(ctx, turn.SenderKey, turn.RealPhone, 5); len(past) > 0 {
		summaries := make([]VisitSummary, 0, len(past))
		for _, v := range past {
			summaries = append(summaries, VisitSummary{
				ID:            v.ID,
				PropertyTitle: v.Property.Title,
				Date:          v.ScheduledDate,
				Time:          v.ScheduledTime,
				Status:        string(v.Status),
				FeedbackScore: v.FeedbackScore,
			})
		}
		userMessage = visitHistoryContext(summaries) + "\n" + userMessage
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: userMessage})

	return s.llm.Complete(ctx, LLMRequest{
		Model:       s.chatModel,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   150,
	})
}

// deliver sends a reply with the human choreography: mark the lead's
// messages read, show typing, wait, then send.
func (s *Service) deliver(ctx context.Context, turn Turn, conversationID, reply string, delay time.Duration) {
	if err := s.messenger.MarkSeen(ctx, turn.Session, turn.SenderKey); err != nil {
		s.logger.Warn("mark seen failed", "sender", turn.SenderKey, "error", err)
	}
	if err := s.messenger.StartTyping(ctx, turn.Session, turn.SenderKey); err != nil {
		s.logger.Warn("typing indicator failed", "sender", turn.SenderKey, "error", err)
	}
	s.sleep(delay)

	if err := s.messenger.SendText(ctx, turn.Session, turn.SenderKey, reply); err != nil {
		s.logger.Error("reply send failed", "sender", turn.SenderKey, "error", err)
		return
	}
	s.logger.Info("reply sent", "conversation_id", conversationID, "chars", len(reply))
}

func (s *Service) shouldSendListings(userWants bool, reply string, selection PropertySelection, landing *LandingContext, activeVisit *visits.Visit) bool {
	if activeVisit != nil {
		s.logger.Info("active visit, not sending listings", "visit_id", activeVisit.ID)
		return false
	}
	if landing != nil {
		return false
	}
	if selection.HasSelection {
		return false
	}
	aiPromised := containsAny(strings.ToLower(reply), sendPromisePhrases)
	return userWants || aiPromised
}

// pushListings searches with the lead's filters and sends up to five
// listing cards, then a wrap-up question.
func (s *Service) pushListings(ctx context.Context, turn Turn, f listings.Filters) {
	s.sleep(2 * time.Second)

	found, err := s.listings.Search(ctx, f)
	if err != nil {
		s.logger.Error("listing search failed", "sender", turn.SenderKey, "error", err)
		return
	}

	sent := 0
	for _, p := range found {
		if p.ImageURL == "" {
			s.logger.Warn("listing has no image, skipping", "title", p.Title)
			continue
		}
		if err := s.messenger.SendImage(ctx, turn.Session, turn.SenderKey, p.ImageURL, p.Caption()); err != nil {
			s.logger.Error("listing card send failed", "title", p.Title, "error", err)
			continue
		}
		sent++
	}
	s.metrics.ListingsSent(sent)

	if sent > 0 {
		s.sleep(time.Second)
		msg := fmt.Sprintf("Enviei %d opcoes para voce. Algum te interessou?", sent)
		if err := s.messenger.SendText(ctx, turn.Session, turn.SenderKey, msg); err != nil {
			s.logger.Error("listing wrap-up send failed", "sender", turn.SenderKey, "error", err)
		}
	}
	s.logger.Info("listings pushed", "sender", turn.SenderKey, "sent", sent, "matched", len(found))
}

func (s *Service) humanDelay(replyLen int) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return HumanizedDelay(replyLen, s.rng)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nameOrEmpty(name string) string {
	if name == NameNotProvided {
		return ""
	}
	return name
}

func intOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
