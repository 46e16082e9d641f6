package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountPartRoutes registers ledger routes below /parts.
func (h *Handler) MountPartRoutes(r chi.Router) {
	r.Post("/{id}/receipts", h.handleReceive)
	r.Post("/{id}/opening-balance", h.handleOpeningBalance)
	r.Post("/{id}/consumptions", h.handleConsume)
	r.Get("/{id}/stock", h.handleStock)
	r.Get("/{id}/batches", h.handleBatches)
	r.Get("/{id}/history", h.handleHistory)
	r.Get("/{id}/ledger", h.handleVerify)
}

// MountJobRoutes registers job costing routes below /jobs.
func (h *Handler) MountJobRoutes(r chi.Router) {
	r.Get("/{jobRef}/cogs", h.handleJobCOGS)
}

type receiveRequest struct {
	LocationID  *int64          `json:"location_id" validate:"omitempty,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0,dscale=4"`
	UnitCost    decimal.Decimal `json:"unit_cost" validate:"gte=0,dscale=6"`
	Source      SourceType      `json:"source" validate:"omitempty,oneof=PURCHASED USED SALVAGE"`
	BatchNumber string          `json:"batch_number" validate:"max=64"`
	SupplierID  *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	InvoiceRef  string          `json:"invoice_ref" validate:"max=64"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	ReceivedAt  *time.Time      `json:"received_at"`
	Note        string          `json:"note" validate:"max=500"`
}

type openingBalanceRequest struct {
	LocationID *int64          `json:"location_id" validate:"omitempty,gt=0"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0,dscale=4"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"gte=0,dscale=6"`
	AsOf       *time.Time      `json:"as_of"`
}

type consumeRequest struct {
	LocationID *int64          `json:"location_id" validate:"omitempty,gt=0"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0,dscale=4"`
	JobRef     uuid.UUID       `json:"job_ref" validate:"required"`
	Note       string          `json:"note" validate:"max=500"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	src := SourceInfo{
		Source:      req.Source,
		BatchNumber: req.BatchNumber,
		SupplierID:  req.SupplierID,
		InvoiceRef:  req.InvoiceRef,
		ExpiryDate:  req.ExpiryDate,
		Note:        req.Note,
	}
	if req.ReceivedAt != nil {
		src.ReceivedAt = req.ReceivedAt.UTC()
	}
	batch, txn, err := h.service.ReceiveStock(r.Context(), ReceiveInput{
		PartID:         partID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		Source:         src,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("receive stock", slog.Int64("part_id", partID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"batch": batch, "transaction": txn})
}

func (h *Handler) handleOpeningBalance(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req openingBalanceRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	in := OpeningBalanceInput{PartID: partID, LocationID: req.LocationID, Quantity: req.Quantity, UnitCost: req.UnitCost}
	if req.AsOf != nil {
		in.AsOf = req.AsOf.UTC()
	}
	batch, txn, err := h.service.RecordOpeningBalance(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"batch": batch, "transaction": txn})
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req consumeRequest
	if !h.validator.Bind(w, r, &req) {
		return
	}
	res, err := h.service.ConsumePart(r.Context(), ConsumeInput{
		PartID:         partID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		JobRef:         req.JobRef,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("consume part", slog.Int64("part_id", partID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var level StockLevel
	if raw := r.URL.Query().Get("location_id"); raw != "" {
		locationID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			httpx.RespondError(w, fmt.Errorf("%w: location_id", httpx.ErrMalformedRequest))
			return
		}
		level, err = h.service.GetLocationStock(r.Context(), partID, locationID)
	} else {
		level, err = h.service.GetCurrentStock(r.Context(), partID)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var locationID *int64
	if raw := r.URL.Query().Get("location_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			httpx.RespondError(w, fmt.Errorf("%w: location_id", httpx.ErrMalformedRequest))
			return
		}
		locationID = &id
	}
	batches, err := h.service.ListActiveBatches(r.Context(), partID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := HistoryFilter{PartID: partID}
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: from", httpx.ErrMalformedRequest))
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: to", httpx.ErrMalformedRequest))
			return
		}
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	txs, err := h.service.QueryHistory(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.VerifyLedger(r.Context(), partID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": report.OK(), "report": report})
}

func (h *Handler) handleJobCOGS(w http.ResponseWriter, r *http.Request) {
	jobRef, err := uuid.Parse(chi.URLParam(r, "jobRef"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: job reference", httpx.ErrMalformedRequest))
		return
	}
	cogs, err := h.service.GetCOGSForJob(r.Context(), jobRef)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cogs)
}
