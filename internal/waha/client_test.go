package waha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	err := c.SendText(context.Background(), "corretores", "5585999990000@c.us", "ola")
	require.NoError(t, err)

	assert.Equal(t, "/api/sendText", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "corretores", gotBody["session"])
	assert.Equal(t, "5585999990000@c.us", gotBody["chatId"])
	assert.Equal(t, "ola", gotBody["text"])
}

func TestSendImage(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	err := c.SendImage(context.Background(), "corretores", "5585999990000@c.us", "https://img/x.jpg", "caption")
	require.NoError(t, err)

	file, ok := gotBody["file"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://img/x.jpg", file["url"])
	assert.Equal(t, "caption", gotBody["caption"])
}

func TestSessionScopedEndpoints(t *testing.T) {
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	require.NoError(t, c.MarkSeen(context.Background(), "corretores", "x@c.us"))
	require.NoError(t, c.StartTyping(context.Background(), "corretores", "x@c.us"))

	assert.Equal(t, []string{"/api/corretores/sendSeen", "/api/corretores/presence"}, paths)
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	err := c.SendText(context.Background(), "corretores", "x@c.us", "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
