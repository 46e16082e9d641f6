package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/garage-inventory/internal/platform/httpx"
)

// Handler exposes alerts over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler builds the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers alert routes below /alerts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/sweep", h.handleSweep)
	r.Post("/{id}/resolve", h.handleResolve)
	r.Post("/{id}/unresolve", h.handleUnresolve)
}

type resolveRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "resolved must be true or false")
			return
		}
		resolved = &v
	}
	list, err := h.service.ListAlerts(r.Context(), resolved)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Alert{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Sweep(r.Context())
	if err != nil {
		h.logger.Error("alert sweep", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req resolveRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	alert, err := h.service.Resolve(r.Context(), id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) handleUnresolve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := h.service.Unresolve(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}
