package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermFinanceReconcile))
		r.Post("/accounts/{accountID}/statements", h.handleImport)
		r.Post("/accounts/{accountID}/sweep", h.handleSweep)
		r.Get("/bank-transactions/{id}/suggestions", h.handleSuggest)
		r.Post("/matches", h.handleAcceptMatch)
	})
}

type statementLineRequest struct {
	Amount       float64 `json:"amount" validate:"required"`
	Date         string  `json:"date" validate:"required"`
	Description  string  `json:"description"`
	Reference    string  `json:"reference"`
	ChequeNumber string  `json:"chequeNumber"`
}

type importRequest struct {
	Lines []statementLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]BankTransaction, 0, len(req.Lines))
	for _, line := range req.Lines {
		date, err := time.Parse("2006-01-02", line.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid statement date")
			return
		}
		lines = append(lines, BankTransaction{
			Amount:       line.Amount,
			Date:         date,
			Description:  line.Description,
			Reference:    line.Reference,
			ChequeNumber: line.ChequeNumber,
		})
	}
	n, err := h.service.ImportStatement(r.Context(), accountID, lines, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("import statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"imported": n})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	stats, err := h.service.RunBatch(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("reconciliation sweep", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bank transaction id")
		return
	}
	suggestions, err := h.service.Suggest(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBankTransactionNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("suggest matches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

type acceptMatchRequest struct {
	BankTransactionID        int64    `json:"bankTransactionId" validate:"required"`
	AccountingTransactionIDs []string `json:"accountingTransactionIds" validate:"required,min=1"`
}

func (h *Handler) handleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	var req acceptMatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(req.AccountingTransactionIDs))
	for _, raw := range req.AccountingTransactionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid accounting transaction id")
			return
		}
		ids = append(ids, id)
	}
	err := h.service.AcceptMatch(r.Context(), req.BankTransactionID, ids, shared.ActorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, ErrBankTransactionNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("accept match", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
