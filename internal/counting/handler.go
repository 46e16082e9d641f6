package counting

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Handler exposes the count and adjustment workflow over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler builds the counting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountCheckRoutes registers check routes below /checks.
func (h *Handler) MountCheckRoutes(r chi.Router) {
	r.Post("/", h.handleCreateCheck)
	r.Get("/{id}", h.handleGetCheck)
	r.Post("/{id}/start", h.checkAction(h.service.StartCheck))
	r.Post("/{id}/complete", h.checkAction(h.service.CompleteCheck))
	r.Post("/{id}/cancel", h.checkAction(h.service.CancelCheck))
	r.Post("/{id}/counts", h.handleRecordCount)
	r.Post("/{id}/adjustments", h.handleAdjustFromCheck)
}

// MountAdjustmentRoutes registers adjustment routes below /adjustments.
func (h *Handler) MountAdjustmentRoutes(r chi.Router) {
	r.Post("/", h.handleCreateAdjustment)
	r.Get("/", h.handleListAdjustments)
	r.Get("/{id}", h.handleGetAdjustment)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

type createCheckRequest struct {
	LocationID *int64 `json:"location_id" validate:"omitempty,gt=0"`
	Note       string `json:"note" validate:"max=500"`
}

type countRequest struct {
	PartID         int64           `json:"part_id" validate:"required,gt=0"`
	ActualQuantity decimal.Decimal `json:"actual_quantity" validate:"gte=0,dscale=4"`
}

type adjustmentResponse struct {
	Adjustment
	Approvals []shared.ApprovalLog `json:"approvals"`
}

type adjustmentItemRequest struct {
	PartID         int64            `json:"part_id" validate:"required,gt=0"`
	QuantityChange decimal.Decimal  `json:"quantity_change" validate:"dscale=4"`
	UnitCost       *decimal.Decimal `json:"unit_cost" validate:"omitempty,gte=0,dscale=6"`
	RestoreBatchID *int64           `json:"restore_batch_id" validate:"omitempty,gt=0"`
}

type createAdjustmentRequest struct {
	LocationID *int64                  `json:"location_id" validate:"omitempty,gt=0"`
	Reason     string                  `json:"reason" validate:"required,max=500"`
	Items      []adjustmentItemRequest `json:"items" validate:"required,min=1,dive"`
}

type decisionRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type checkResponse struct {
	Check
	NetDiscrepancy decimal.Decimal `json:"net_discrepancy"`
}

func (h *Handler) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req createCheckRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	check, err := h.service.CreateCheck(r.Context(), CreateCheckInput{LocationID: req.LocationID, Note: req.Note})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, checkResponse{Check: check, NetDiscrepancy: Discrepancies(check)})
}

func (h *Handler) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.GetCheck(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Check: check, NetDiscrepancy: Discrepancies(check)})
}

func (h *Handler) checkAction(action func(ctx context.Context, id int64) (Check, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		check, err := action(r.Context(), id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, checkResponse{Check: check, NetDiscrepancy: Discrepancies(check)})
	}
}

func (h *Handler) handleRecordCount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req countRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	item, err := h.service.RecordCount(r.Context(), id, CountInput{PartID: req.PartID, ActualQuantity: req.ActualQuantity})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleAdjustFromCheck(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reasonRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	adj, err := h.service.CreateAdjustmentFromCheck(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req createAdjustmentRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	input := CreateAdjustmentInput{LocationID: req.LocationID, Reason: req.Reason}
	for _, item := range req.Items {
		input.Items = append(input.Items, AdjustmentItemInput{
			PartID:         item.PartID,
			QuantityChange: item.QuantityChange,
			UnitCost:       item.UnitCost,
			RestoreBatchID: item.RestoreBatchID,
		})
	}
	adj, err := h.service.CreateAdjustment(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	status := AdjustmentStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "", AdjustmentPending, AdjustmentApproved, AdjustmentRejected:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown adjustment status")
		return
	}
	list, err := h.service.ListAdjustments(r.Context(), status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Adjustment{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.service.AdjustmentHistory(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustmentResponse{Adjustment: adj, Approvals: history})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req decisionRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	adj, err := h.service.ApproveAdjustment(r.Context(), id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reasonRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	adj, err := h.service.RejectAdjustment(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}
