package webhook

import "strings"

// Envelope is the outer WAHA webhook payload.
type Envelope struct {
	Event   string  `json:"event"`
	Session string  `json:"session"`
	Payload Message `json:"payload"`
}

// Message is the inner WAHA message payload.
type Message struct {
	ID          string  `json:"id"`
	From        string  `json:"from"`
	FromMe      bool    `json:"fromMe"`
	Body        string  `json:"body"`
	Type        string  `json:"type"`
	Timestamp   int64   `json:"timestamp"`
	Participant string  `json:"participant"`
	QuotedMsg   *Quoted `json:"quotedMsg"`
	// Some WAHA versions use a different field name for the quoted message.
	QuotedMessage *Quoted `json:"quotedMessage"`
}

// Quoted is the message the lead replied to.
type Quoted struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Caption string `json:"caption"`
	Type    string `json:"type"`
	From    string `json:"from"`
}

// Quoted returns whichever quoted-message field the payload carries.
func (m *Message) quoted() *Quoted {
	if m.QuotedMsg != nil {
		return m.QuotedMsg
	}
	return m.QuotedMessage
}

// RealPhone resolves the sender's actual phone number. Linked-device chats
// use an @lid identifier; the real number then lives in the participant
// field.
func (m *Message) RealPhone() string {
	if strings.HasSuffix(m.From, "@lid") {
		if m.Participant != "" {
			return strings.TrimSuffix(m.Participant, "@c.us")
		}
		return strings.TrimSuffix(m.From, "@lid")
	}
	return strings.TrimSuffix(m.From, "@c.us")
}
