package locations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/garage-inventory/internal/platform/httpx"
)

// Handler exposes the location hierarchy over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/children", h.children)
	r.Get("/{id}/path", h.path)
}

type createLocationRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Kind     Kind   `json:"kind" validate:"required,oneof=WAREHOUSE ZONE BIN"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	loc, err := h.service.Create(r.Context(), Location{Code: req.Code, Name: req.Name, Kind: req.Kind, ParentID: req.ParentID})
	if err != nil {
		h.logger.Warn("create location", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	children, err := h.service.Children(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, children)
}

func (h *Handler) path(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	path, err := h.service.Path(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, path)
}
