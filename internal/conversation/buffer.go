package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

const bufferTimerKind = "buffer_flush"

// IncomingMessage is one webhook message heading into the buffer.
type IncomingMessage struct {
	SenderKey  string
	Session    string
	RealPhone  string
	Text       string
	HasQuoted  bool
	QuotedBody string
}

// Turn is a flushed buffer: every message the sender typed inside the
// debounce window, joined into one text for the orchestrator.
type Turn struct {
	SenderKey  string
	Session    string
	RealPhone  string
	Text       string
	Count      int
	HasQuoted  bool
	QuotedBody string
}

// Buffer debounces rapid-fire messages per sender. Each arrival restarts the
// sender's flush timer; when the lead pauses long enough the accumulated
// messages flush as a single Turn.
type Buffer struct {
	mu      sync.Mutex
	pending map[string]*Turn
	delay   time.Duration
	sched   *timers.Scheduler
	handler func(Turn) error
	logger  *logging.Logger
}

// NewBuffer creates a buffer that calls handler with each flushed Turn.
func NewBuffer(delay time.Duration, sched *timers.Scheduler, handler func(Turn) error, logger *logging.Logger) *Buffer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Buffer{
		pending: make(map[string]*Turn),
		delay:   delay,
		sched:   sched,
		handler: handler,
		logger:  logger,
	}
}

// Add buffers a message and restarts the sender's flush timer. The first
// non-empty real phone seen in the window is kept, as is the first quoted
// message body.
func (b *Buffer) Add(msg IncomingMessage) {
	b.mu.Lock()
	turn, ok := b.pending[msg.SenderKey]
	if !ok {
		realPhone := msg.RealPhone
		if realPhone == "" {
			realPhone = stripChatSuffix(msg.SenderKey)
		}
		turn = &Turn{
			SenderKey: msg.SenderKey,
			Session:   msg.Session,
			RealPhone: realPhone,
		}
		b.pending[msg.SenderKey] = turn
	} else if turn.RealPhone == "" && msg.RealPhone != "" {
		turn.RealPhone = msg.RealPhone
	}

	if turn.Text == "" {
		turn.Text = msg.Text
	} else {
		turn.Text += " " + msg.Text
	}
	turn.Count++

	if msg.HasQuoted && !turn.HasQuoted {
		turn.HasQuoted = true
		turn.QuotedBody = msg.QuotedBody
	}
	count := turn.Count
	b.mu.Unlock()

	b.sched.Arm(msg.SenderKey, bufferTimerKind, b.delay, func() {
		b.flush(msg.SenderKey)
	})
	b.logger.Info("message buffered", "sender", msg.SenderKey, "buffered", count)
}

// PendingCount reports how many messages are waiting for a sender.
func (b *Buffer) PendingCount(senderKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if turn, ok := b.pending[senderKey]; ok {
		return turn.Count
	}
	return 0
}

func (b *Buffer) flush(senderKey string) {
	b.mu.Lock()
	turn, ok := b.pending[senderKey]
	if ok {
		delete(b.pending, senderKey)
	}
	b.mu.Unlock()

	if !ok || turn.Text == "" {
		return
	}

	b.logger.Info("processing buffered messages",
		"sender", senderKey, "count", turn.Count, "chars", len(turn.Text))
	if err := b.handler(*turn); err != nil {
		b.logger.Error("buffered turn processing failed", "sender", senderKey, "error", err)
	}
}

// stripChatSuffix turns a WhatsApp chat ID into a bare phone number.
func stripChatSuffix(chatID string) string {
	chatID = strings.TrimSuffix(chatID, "@c.us")
	return strings.TrimSuffix(chatID, "@lid")
}
