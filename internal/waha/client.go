package waha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultSendTimeout = 30 * time.Second

// Client talks to a WAHA (WhatsApp HTTP API) instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a WAHA API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultSendTimeout},
	}
}

// SetBaseURL overrides the WAHA base URL (useful for testing).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, session, chatID, text string) error {
	payload := sendTextRequest{
		Session: session,
		ChatID:  chatID,
		Text:    text,
	}
	return c.post(ctx, "/api/sendText", payload)
}

// SendImage sends an image by URL with a caption.
func (c *Client) SendImage(ctx context.Context, session, chatID, imageURL, caption string) error {
	payload := sendImageRequest{
		Session: session,
		ChatID:  chatID,
		File:    fileRef{URL: imageURL},
		Caption: caption,
	}
	return c.post(ctx, "/api/sendImage", payload)
}

// MarkSeen marks the chat's messages as read (blue check on the lead's side).
func (c *Client) MarkSeen(ctx context.Context, session, chatID string) error {
	payload := chatRequest{ChatID: chatID}
	return c.post(ctx, fmt.Sprintf("/api/%s/sendSeen", session), payload)
}

// StartTyping shows the "typing..." presence indicator in the chat.
func (c *Client) StartTyping(ctx context.Context, session, chatID string) error {
	payload := presenceRequest{ChatID: chatID, Presence: "typing"}
	return c.post(ctx, fmt.Sprintf("/api/%s/presence", session), payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("waha: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("waha: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("waha: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("waha: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

type fileRef struct {
	URL string `json:"url"`
}

type sendImageRequest struct {
	Session string  `json:"session"`
	ChatID  string  `json:"chatId"`
	File    fileRef `json:"file"`
	Caption string  `json:"caption"`
}

type chatRequest struct {
	ChatID string `json:"chatId"`
}

type presenceRequest struct {
	ChatID   string `json:"chatId"`
	Presence string `json:"presence"`
}
