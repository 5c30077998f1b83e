package brokers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Handler handles the broker dashboard endpoints.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a new broker handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// Routes mounts the broker endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/ranking", h.Ranking)
	r.Get("/{brokerID}", h.Get)
	r.Patch("/{brokerID}", h.Update)
	r.Delete("/{brokerID}", h.Delete)
	return r
}

// brokerView is the wire shape of a broker plus its visit aggregates.
type brokerView struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	CRECI            string    `json:"creci"`
	Status           string    `json:"status"`
	TotalVisits      int       `json:"total_visits"`
	PendingVisits    int       `json:"pending_visits"`
	ConfirmedVisits  int       `json:"confirmed_visits"`
	CompletedVisits  int       `json:"completed_visits"`
	AvgFeedbackScore float64   `json:"avg_feedback_score"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (h *Handler) view(r *http.Request, b *Broker) brokerView {
	stats, err := h.repo.Stats(r.Context(), b.ID)
	if err != nil {
		h.logger.Warn("broker stats failed", "broker_id", b.ID, "error", err)
	}
	status := "inactive"
	if b.Active {
		status = "active"
	}
	return brokerView{
		ID:               strconv.FormatInt(b.ID, 10),
		Name:             b.Name,
		Phone:            b.Phone,
		Email:            b.Email,
		CRECI:            b.CRECI,
		Status:           status,
		TotalVisits:      stats.TotalVisits,
		PendingVisits:    stats.PendingVisits,
		ConfirmedVisits:  stats.ConfirmedVisits,
		CompletedVisits:  stats.CompletedVisits,
		AvgFeedbackScore: stats.AvgFeedbackScore,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// ListResponse pages the broker list.
type ListResponse struct {
	Data    []brokerView `json:"data"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Pages   int          `json:"pages"`
}

// List handles GET /api/v1/dashboard/brokers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: q.Get("status"),
		Search: strings.TrimSpace(q.Get("search")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	filter.Normalize()

	list, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("broker list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list brokers")
		return
	}

	views := make([]brokerView, 0, len(list))
	for i := range list {
		views = append(views, h.view(r, &list[i]))
	}
	pages := 1
	if total > 0 {
		pages = (total + filter.PerPage - 1) / filter.PerPage
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Data:    views,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Pages:   pages,
	})
}

// Create handles POST /api/v1/dashboard/brokers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b := &Broker{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
		CRECI:  strings.TrimSpace(req.CRECI),
		Active: true,
	}
	if err := h.repo.Create(r.Context(), b); err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			writeError(w, http.StatusBadRequest, "telefone ja cadastrado")
			return
		}
		h.logger.Error("broker create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create broker")
		return
	}

	h.logger.Info("broker created", "broker_id", b.ID, "name", b.Name)
	writeJSON(w, http.StatusCreated, h.view(r, b))
}

// Get handles GET /api/v1/dashboard/brokers/{brokerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, b))
}

// Update handles PATCH /api/v1/dashboard/brokers/{brokerID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Empty() {
		writeError(w, http.StatusBadRequest, "nenhum campo para atualizar")
		return
	}

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		b.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		b.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.CRECI != nil {
		b.CRECI = strings.TrimSpace(*req.CRECI)
	}
	if req.Status != nil {
		b.Active = *req.Status == "active"
	}

	if err := h.repo.Update(r.Context(), b); err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			writeError(w, http.StatusBadRequest, "telefone ja cadastrado")
			return
		}
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "corretor nao encontrado")
			return
		}
		h.logger.Error("broker update failed", "broker_id", b.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update broker")
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, b))
}

// Delete handles DELETE /api/v1/dashboard/brokers/{brokerID}. Brokers are
// deactivated, never removed.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.repo.Deactivate(r.Context(), b.ID); err != nil {
		h.logger.Error("broker deactivate failed", "broker_id", b.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate broker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Corretor desativado com sucesso"})
}

// RankingResponse is the broker performance ranking.
type RankingResponse struct {
	Period string         `json:"period"`
	Data   []RankingEntry `json:"data"`
}

// Ranking handles GET /api/v1/dashboard/brokers/ranking.
func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	days := 30
	switch period {
	case "7d":
		days = 7
	case "90d":
		days = 90
	case "", "30d":
		period = "30d"
	}

	since := h.now().AddDate(0, 0, -days)
	ranking, err := h.repo.Ranking(r.Context(), since)
	if err != nil {
		h.logger.Error("broker ranking failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build ranking")
		return
	}
	if ranking == nil {
		ranking = []RankingEntry{}
	}
	writeJSON(w, http.StatusOK, RankingResponse{Period: period, Data: ranking})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Broker, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "brokerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid broker id")
		return nil, false
	}
	b, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "corretor nao encontrado")
			return nil, false
		}
		h.logger.Error("broker lookup failed", "broker_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load broker")
		return nil, false
	}
	return b, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
