package brokers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	srv := httptest.NewServer(NewHandler(repo, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, repo
}

func postBroker(t *testing.T, srv *httptest.Server, req CreateRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestCreateBroker(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postBroker(t, srv, CreateRequest{
		Name:  "Carlos Lima",
		Phone: "5585988776655",
		Email: "carlos@imobiliaria.com",
		CRECI: "CE-12345",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "Carlos Lima", view["name"])
	assert.Equal(t, "active", view["status"])
	assert.Equal(t, float64(0), view["total_visits"])
}

func TestCreateBrokerRejectsDuplicatePhone(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postBroker(t, srv, CreateRequest{Name: "Carlos", Phone: "5585988776655"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postBroker(t, srv, CreateRequest{Name: "Outro", Phone: "5585988776655"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateBrokerValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postBroker(t, srv, CreateRequest{Phone: "5585988776655"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postBroker(t, srv, CreateRequest{Name: "Carlos"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListBrokersFiltersAndPages(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Broker{Name: "Ana Souza", Phone: "111", Active: true}))
	require.NoError(t, repo.Create(ctx, &Broker{Name: "Bruno Castro", Phone: "222", Active: true}))
	inactive := &Broker{Name: "Velho Corretor", Phone: "333", Active: true}
	require.NoError(t, repo.Create(ctx, inactive))
	require.NoError(t, repo.Deactivate(ctx, inactive.ID))

	resp, err := http.Get(srv.URL + "/?status=active")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Data, 2)

	resp, err = http.Get(srv.URL + "/?search=ana")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Ana Souza", list.Data[0].Name)
}

func TestUpdateBroker(t *testing.T) {
	srv, repo := newTestServer(t)

	b := &Broker{Name: "Carlos", Phone: "5585988776655", Active: true}
	require.NoError(t, repo.Create(context.Background(), b))

	patch := strings.NewReader(`{"status": "inactive", "creci": "CE-99999"}`)
	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/1", patch)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "inactive", view["status"])
	assert.Equal(t, "CE-99999", view["creci"])
}

func TestUpdateBrokerEmptyBody(t *testing.T) {
	srv, repo := newTestServer(t)
	require.NoError(t, repo.Create(context.Background(), &Broker{Name: "Carlos", Phone: "111", Active: true}))

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/1", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteBrokerDeactivates(t *testing.T) {
	srv, repo := newTestServer(t)
	b := &Broker{Name: "Carlos", Phone: "111", Active: true}
	require.NoError(t, repo.Create(context.Background(), b))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetBrokerNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRanking(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Broker{Name: "Ana", Phone: "111", Active: true}))
	require.NoError(t, repo.Create(ctx, &Broker{Name: "Bruno", Phone: "222", Active: true}))

	resp, err := http.Get(srv.URL + "/ranking?period=7d")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ranking RankingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ranking))
	assert.Equal(t, "7d", ranking.Period)
	require.Len(t, ranking.Data, 2)
	assert.Equal(t, 1, ranking.Data[0].Rank)
}
