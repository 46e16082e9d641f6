package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/platform/httpx"
)

// Handler exposes the part catalog over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/deactivate", h.deactivate)
}

type createPartRequest struct {
	Code          string          `json:"code" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	UOM           string          `json:"uom" validate:"max=16"`
	MinimumStock  decimal.Decimal `json:"minimum_stock" validate:"gte=0"`
	SalePrice     decimal.Decimal `json:"sale_price" validate:"gte=0"`
	VATRate       decimal.Decimal `json:"vat_rate" validate:"gte=0,lte=100"`
	CostingMethod CostingMethod   `json:"costing_method" validate:"omitempty,oneof=FIFO WEIGHTED_AVERAGE"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPartRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	part, err := h.service.Create(r.Context(), Part{
		Code:          req.Code,
		Name:          req.Name,
		UOM:           req.UOM,
		MinimumStock:  req.MinimumStock,
		SalePrice:     req.SalePrice,
		VATRate:       req.VATRate,
		CostingMethod: req.CostingMethod,
	})
	if err != nil {
		h.logger.Warn("create part", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, part)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	part, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("q"), Status: PartStatus(q.Get("status"))}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	parts, page, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list parts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": parts, "pagination": page})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	part, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}
