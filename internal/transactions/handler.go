package transactions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for transactions.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the transactions handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermFinanceGLView, rbac.PermFinanceGLEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermFinanceGLEdit))
		r.Post("/", h.handleCreate)
		r.Post("/validate", h.handleValidate)
		r.Post("/{id}/submit", h.handleSubmit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermFinanceApprove))
		r.Post("/{id}/approve", h.handleApprove)
		r.Post("/{id}/reject", h.handleReject)
	})
}

type entryRequest struct {
	AccountID   int64   `json:"accountId"`
	EntityID    int64   `json:"entityId"`
	EntityType  string  `json:"entityType"`
	Debit       float64 `json:"debit" validate:"gte=0"`
	Credit      float64 `json:"credit" validate:"gte=0"`
	Description string  `json:"description"`
}

type createTransactionRequest struct {
	Type       string         `json:"type" validate:"required"`
	Date       string         `json:"date" validate:"required"`
	Memo       string         `json:"memo"`
	ApproverID int64          `json:"approverId"`
	Entries    []entryRequest `json:"entries"`
}

func toEntries(reqs []entryRequest) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(reqs))
	for _, e := range reqs {
		entries = append(entries, ledger.Entry{
			AccountID:   e.AccountID,
			EntityID:    e.EntityID,
			EntityType:  accounts.EntityType(e.EntityType),
			Debit:       e.Debit,
			Credit:      e.Credit,
			Description: e.Description,
		})
	}
	return entries
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !KnownType(Type(req.Type)) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown transaction type")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid date")
		return
	}
	txn := &Transaction{
		Type:       Type(req.Type),
		Date:       date,
		Memo:       req.Memo,
		ApproverID: req.ApproverID,
		Entries:    toEntries(req.Entries),
		CreatedBy:  shared.ActorFromContext(r.Context()),
	}
	if err := h.service.SaveTransaction(r.Context(), txn); err != nil {
		h.respondSaveError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

// handleValidate runs double-entry validation without persisting anything.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []entryRequest `json:"entries"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger.Validate(toEntries(req.Entries)))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Type:   Type(r.URL.Query().Get("type")),
	}
	txns, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	// The route group already enforces the edit permission.
	txn, err := h.service.Submit(r.Context(), id, shared.ActorFromContext(r.Context()), true)
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type resolveRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Reject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID, actorID int64, comment string) (Transaction, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req resolveRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	txn, err := op(r.Context(), id, shared.ActorFromContext(r.Context()), req.Comment)
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) respondSaveError(w http.ResponseWriter, err error) {
	var unbalanced *UnbalancedEntriesError
	var closed *ClosedPeriodError
	switch {
	case errors.As(err, &unbalanced):
		httpx.JSON(w, http.StatusUnprocessableEntity, unbalanced)
	case errors.As(err, &closed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	default:
		h.logger.Error("save transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) respondWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCommentRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrApproverRequired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("transaction workflow", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
