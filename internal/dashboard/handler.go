package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Store is the query surface the handler needs. Implemented by Repository.
type Store interface {
	Metrics(ctx context.Context) (*Metrics, error)
	Timeseries(ctx context.Context, days int) ([]TimeseriesPoint, error)
	Funnel(ctx context.Context) ([]FunnelStage, error)
	Sources(ctx context.Context) ([]SourceStat, error)
	Neighborhoods(ctx context.Context) ([]NeighborhoodStat, error)
	ListLeads(ctx context.Context, f LeadFilter) ([]LeadSummary, int, error)
	GetLead(ctx context.Context, id int64) (*LeadDetail, error)
	LeadConversation(ctx context.Context, id int64) (*Conversation, error)
	UpdateLead(ctx context.Context, id int64, patch *LeadPatch) (*LeadSummary, error)
	ListVisits(ctx context.Context, f VisitFilter) ([]VisitSummary, int, error)
	GetVisit(ctx context.Context, uuid string) (*VisitDetail, error)
	UpdateVisit(ctx context.Context, uuid string, patch *VisitPatch) (*VisitDetail, error)
}

// Handler serves the dashboard REST API.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes builds the dashboard router, mounted under /api/v1/dashboard.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/metrics", h.metrics)
	r.Get("/timeseries", h.timeseries)
	r.Get("/funnel", h.funnel)
	r.Get("/sources", h.sources)
	r.Get("/neighborhoods", h.neighborhoods)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", h.listLeads)
		r.Get("/{leadID}", h.getLead)
		r.Get("/{leadID}/conversation", h.leadConversation)
		r.Patch("/{leadID}", h.updateLead)
	})
	r.Route("/visits", func(r chi.Router) {
		r.Get("/", h.listVisits)
		r.Get("/{visitID}", h.getVisit)
		r.Patch("/{visitID}", h.updateVisit)
	})
	return r
}

// PagedResponse wraps a list endpoint's payload.
type PagedResponse struct {
	Data     any `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Metrics(r.Context())
	if err != nil {
		h.fail(w, "metrics", err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) timeseries(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 || days > 365 {
		days = 30
	}
	points, err := h.store.Timeseries(r.Context(), days)
	if err != nil {
		h.fail(w, "timeseries", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"days": days, "data": points})
}

func (h *Handler) funnel(w http.ResponseWriter, r *http.Request) {
	stages, err := h.store.Funnel(r.Context())
	if err != nil {
		h.fail(w, "funnel", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": stages})
}

func (h *Handler) sources(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Sources(r.Context())
	if err != nil {
		h.fail(w, "sources", err)
		return
	}
	if stats == nil {
		stats = []SourceStat{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (h *Handler) neighborhoods(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Neighborhoods(r.Context())
	if err != nil {
		h.fail(w, "neighborhoods", err)
		return
	}
	if stats == nil {
		stats = []NeighborhoodStat{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LeadFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	filter.DateFrom = parseDate(q.Get("date_from"))
	filter.DateTo = parseDate(q.Get("date_to"))

	leads, total, err := h.store.ListLeads(r.Context(), filter)
	if err != nil {
		h.fail(w, "list leads", err)
		return
	}
	if leads == nil {
		leads = []LeadSummary{}
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	h.writeJSON(w, http.StatusOK, PagedResponse{
		Data:     leads,
		Total:    total,
		Page:     page,
		PageSize: size,
		Pages:    pages(total, size),
	})
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.store.GetLead(r.Context(), id)
	if err != nil {
		h.failLookup(w, "get lead", err, "lead nao encontrado")
		return
	}
	h.writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) leadConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	conv, err := h.store.LeadConversation(r.Context(), id)
	if err != nil {
		h.failLookup(w, "lead conversation", err, "lead nao encontrado")
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) updateLead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	var patch LeadPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "payload invalido")
		return
	}
	if patch.Empty() {
		h.writeError(w, http.StatusBadRequest, "nenhum campo para atualizar")
		return
	}
	lead, err := h.store.UpdateLead(r.Context(), id, &patch)
	if err != nil {
		h.failLookup(w, "update lead", err, "lead nao encontrado")
		return
	}
	h.writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) listVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := VisitFilter{Status: q.Get("status")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	filter.DateFrom = parseDate(q.Get("date_from"))
	filter.DateTo = parseDate(q.Get("date_to"))
	if raw := q.Get("broker_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.BrokerID = &id
		}
	}

	visits, total, err := h.store.ListVisits(r.Context(), filter)
	if err != nil {
		h.fail(w, "list visits", err)
		return
	}
	if visits == nil {
		visits = []VisitSummary{}
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	h.writeJSON(w, http.StatusOK, PagedResponse{
		Data:     visits,
		Total:    total,
		Page:     page,
		PageSize: size,
		Pages:    pages(total, size),
	})
}

func (h *Handler) getVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.store.GetVisit(r.Context(), chi.URLParam(r, "visitID"))
	if err != nil {
		h.failLookup(w, "get visit", err, "visita nao encontrada")
		return
	}
	h.writeJSON(w, http.StatusOK, visit)
}

func (h *Handler) updateVisit(w http.ResponseWriter, r *http.Request) {
	var patch VisitPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "payload invalido")
		return
	}
	if patch.Empty() {
		h.writeError(w, http.StatusBadRequest, "nenhum campo para atualizar")
		return
	}
	visit, err := h.store.UpdateVisit(r.Context(), chi.URLParam(r, "visitID"), &patch)
	if err != nil {
		h.failLookup(w, "update visit", err, "visita nao encontrada")
		return
	}
	h.writeJSON(w, http.StatusOK, visit)
}

func (h *Handler) leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "leadID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "lead nao encontrado")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("dashboard query failed", "op", op, "error", err)
	h.writeError(w, http.StatusInternalServerError, "erro interno")
}

func (h *Handler) failLookup(w http.ResponseWriter, op string, err error, notFoundMsg string) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	h.fail(w, op, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("dashboard response encode failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func pages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
