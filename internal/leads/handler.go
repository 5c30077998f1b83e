package leads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Handler handles the landing-page HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new landing-lead handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterResponse is the body returned after a successful registration.
type RegisterResponse struct {
	Status  string `json:"status"`
	LeadID  int64  `json:"lead_id"`
	Message string `json:"message"`
}

// Register handles POST /api/landing-lead requests from the landing pages.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode landing lead", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead, err := h.svc.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrMissingPhone) || errors.Is(err, ErrMissingPropertyTitle) {
			writeError(w, http.StatusBadRequest, "phone e property.title sao obrigatorios")
			return
		}
		h.logger.Error("failed to register landing lead", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register lead")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Status:  "success",
		LeadID:  lead.ID,
		Message: "Lead registrado. Follow-up agendado para 5 minutos.",
	})
}

// ListResponse is the body for listing landing leads.
type ListResponse struct {
	Leads []Lead `json:"leads"`
	Count int    `json:"count"`
}

// List handles GET /api/landing-leads requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list landing leads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []Lead{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Leads: leads, Count: len(leads)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
