package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestrai/sells-broker/internal/conversation"
)

type captureBuffer struct {
	msgs []conversation.IncomingMessage
}

func (b *captureBuffer) Add(msg conversation.IncomingMessage) {
	b.msgs = append(b.msgs, msg)
}

func newTestHandler() (*Handler, *captureBuffer) {
	buf := &captureBuffer{}
	return NewHandler(buf, 3*time.Second, nil, nil), buf
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/whatsapp/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhookBuffersTextMessage(t *testing.T) {
	h, buf := newTestHandler()

	w := post(h, `{
		"event": "message",
		"session": "corretores",
		"payload": {
			"id": "msg-1",
			"from": "5585999887766@c.us",
			"fromMe": false,
			"body": "Oi, procuro apartamento",
			"type": "text"
		}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"buffered"`)

	require.Len(t, buf.msgs, 1)
	msg := buf.msgs[0]
	assert.Equal(t, "5585999887766@c.us", msg.SenderKey)
	assert.Equal(t, "corretores", msg.Session)
	assert.Equal(t, "5585999887766", msg.RealPhone)
	assert.Equal(t, "Oi, procuro apartamento", msg.Text)
	assert.False(t, msg.HasQuoted)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	h, buf := newTestHandler()

	w := post(h, `{"event": "message.any", "payload": {"from": "x@c.us", "body": "oi", "type": "text"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ignored"`)
	assert.Empty(t, buf.msgs)
}

func TestWebhookIgnoresOwnMessages(t *testing.T) {
	h, buf := newTestHandler()

	w := post(h, `{"event": "message", "payload": {"from": "x@c.us", "fromMe": true, "body": "oi", "type": "text"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ignored"`)
	assert.Empty(t, buf.msgs)
}

func TestWebhookIgnoresNonTextAndEmpty(t *testing.T) {
	h, buf := newTestHandler()

	w := post(h, `{"event": "message", "payload": {"from": "x@c.us", "body": "", "type": "image"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(h, `{"event": "message", "payload": {"from": "x@c.us", "body": "", "type": "text"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ignored"`)

	assert.Empty(t, buf.msgs)
}

func TestWebhookResolvesLinkedDevicePhone(t *testing.T) {
	h, buf := newTestHandler()

	post(h, `{
		"event": "message",
		"payload": {
			"from": "123456789@lid",
			"participant": "5585999887766@c.us",
			"body": "oi",
			"type": "text"
		}
	}`)

	require.Len(t, buf.msgs, 1)
	assert.Equal(t, "123456789@lid", buf.msgs[0].SenderKey)
	assert.Equal(t, "5585999887766", buf.msgs[0].RealPhone)
}

func TestWebhookLinkedDeviceWithoutParticipant(t *testing.T) {
	h, buf := newTestHandler()

	post(h, `{"event": "message", "payload": {"from": "123456789@lid", "body": "oi", "type": "text"}}`)

	require.Len(t, buf.msgs, 1)
	assert.Equal(t, "123456789", buf.msgs[0].RealPhone)
}

func TestWebhookExtractsQuotedMessage(t *testing.T) {
	h, buf := newTestHandler()

	post(h, `{
		"event": "message",
		"payload": {
			"from": "5585999887766@c.us",
			"body": "quero esse",
			"type": "text",
			"quotedMsg": {"id": "q1", "caption": "Apt 2 Quartos - Aldeota\nValor: R$ 450.000,00", "type": "image"}
		}
	}`)

	require.Len(t, buf.msgs, 1)
	assert.True(t, buf.msgs[0].HasQuoted)
	assert.Contains(t, buf.msgs[0].QuotedBody, "Apt 2 Quartos")
}

func TestWebhookQuotedMessageAlternateField(t *testing.T) {
	h, buf := newTestHandler()

	post(h, `{
		"event": "message",
		"payload": {
			"from": "5585999887766@c.us",
			"body": "gostei desse",
			"type": "text",
			"quotedMessage": {"id": "q1", "body": "Casa Messejana"}
		}
	}`)

	require.Len(t, buf.msgs, 1)
	assert.True(t, buf.msgs[0].HasQuoted)
	assert.Equal(t, "Casa Messejana", buf.msgs[0].QuotedBody)
}

func TestWebhookDefaultsSession(t *testing.T) {
	h, buf := newTestHandler()

	post(h, `{"event": "message", "payload": {"from": "x@c.us", "body": "oi", "type": "text"}}`)

	require.Len(t, buf.msgs, 1)
	assert.Equal(t, "default", buf.msgs[0].Session)
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	h, buf := newTestHandler()

	w := post(h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, buf.msgs)
}

func TestWebhookLiveness(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whatsapp/webhook", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"whatsapp_webhook"`)
}
