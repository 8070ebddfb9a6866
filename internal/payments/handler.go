package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

// Handler wires HTTP endpoints for payment batches.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the payments handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPaymentsManage))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/", h.handleCreate)
		r.Post("/{id}/items", h.handleAddBill)
		r.Post("/{id}/process", h.handleProcess)
		r.Post("/{id}/complete", h.handleComplete)
	})
}

func batchID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type createBatchRequest struct {
	Currency string `json:"currency"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	batch, err := h.service.CreateBatch(r.Context(), req.Currency, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create payment batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.List(r.Context(), BatchStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.logger.Error("list payment batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid batch id")
		return
	}
	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

type addBillRequest struct {
	BillID string `json:"billId" validate:"required,uuid"`
}

func (h *Handler) handleAddBill(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid batch id")
		return
	}
	var req addBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	billID, err := uuid.Parse(req.BillID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	item, err := h.service.AddBill(r.Context(), id, billID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

type processRequest struct {
	BankAccountID int64 `json:"bankAccountId" validate:"required"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid batch id")
		return
	}
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.Process(r.Context(), id, req.BankAccountID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid batch id")
		return
	}
	batch, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) respondBatchError(w http.ResponseWriter, err error) {
	var invalid *InvalidTransitionError
	var unbalanced *transactions.UnbalancedEntriesError
	switch {
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, transactions.ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &invalid), errors.Is(err, ErrBatchNotEditable), errors.Is(err, ErrEmptyBatch):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrBillNotPayable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.As(err, &unbalanced):
		httpx.JSON(w, http.StatusUnprocessableEntity, unbalanced)
	default:
		h.logger.Error("payment batch operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
