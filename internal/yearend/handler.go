package yearend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for year-end closing.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the year-end handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers year-end routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermFinanceYearEndClose))
		r.Get("/years/{id}/readiness", h.handleReadiness)
		r.Post("/years/{id}/close", h.handleExecute)
		r.Post("/years/{id}/reverse", h.handleReverse)
	})
}

func yearID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	id, err := yearID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	readiness, err := h.service.CheckReadiness(r.Context(), id)
	if err != nil {
		h.logger.Error("closing readiness", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, readiness)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Execute)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Reverse)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, fiscalYearID, actorID int64) (ClosingRun, error)) {
	id, err := yearID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	run, err := op(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		var closing *ClosingError
		switch {
		case errors.As(err, &closing):
			httpx.Problem(w, http.StatusConflict, closing.Code, closing.Message)
		case errors.Is(err, ErrNoClosingRun):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		default:
			h.logger.Error("year-end operation", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}
