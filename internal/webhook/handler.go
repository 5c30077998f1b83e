package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/orquestrai/sells-broker/internal/conversation"
	"github.com/orquestrai/sells-broker/internal/observability/metrics"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

// MessageBuffer receives accepted inbound messages for debounced processing.
type MessageBuffer interface {
	Add(msg conversation.IncomingMessage)
}

// Handler handles the WAHA webhook endpoint.
type Handler struct {
	buffer  MessageBuffer
	delay   time.Duration
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewHandler creates a webhook handler. delay is the buffer's debounce
// window, echoed back in responses.
func NewHandler(buffer MessageBuffer, delay time.Duration, m *metrics.MessagingMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		buffer:  buffer,
		delay:   delay,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ServeHTTP dispatches GET liveness checks and POST message deliveries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.liveness(w)
	case http.MethodPost:
		h.receive(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) liveness(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "whatsapp_webhook",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.logger.Warn("webhook payload decode failed", "error", err)
		h.metrics.ObserveInbound("unknown", "invalid")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "invalid payload",
		})
		return
	}

	msg, reason := h.accept(&env)
	if msg == nil {
		h.metrics.ObserveInbound(env.Event, "ignored")
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": reason,
		})
		return
	}

	h.buffer.Add(*msg)
	h.metrics.ObserveInbound(env.Event, "buffered")
	h.logger.Info("message buffered for processing",
		"sender", msg.SenderKey, "session", msg.Session, "chars", len(msg.Text))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "buffered",
		"message":   "message will process after " + h.delay.String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// accept filters the envelope down to a processable lead message. Events
// other than "message" (such as "message.any") are dropped to avoid
// duplicates; so are our own messages, non-text messages and empty bodies.
func (h *Handler) accept(env *Envelope) (*conversation.IncomingMessage, string) {
	if env.Event != "message" {
		return nil, "event not processable"
	}
	m := &env.Payload
	if m.FromMe {
		return nil, "own message"
	}
	if m.Type != "text" || m.Body == "" {
		return nil, "not a text message"
	}

	session := env.Session
	if session == "" {
		session = "default"
	}

	msg := &conversation.IncomingMessage{
		SenderKey: m.From,
		Session:   session,
		RealPhone: m.RealPhone(),
		Text:      m.Body,
	}
	if q := m.quoted(); q != nil {
		msg.HasQuoted = true
		msg.QuotedBody = q.Body
		if msg.QuotedBody == "" {
			msg.QuotedBody = q.Caption
		}
	}
	return msg, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
