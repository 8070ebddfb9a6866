package fiscal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the fiscal module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the fiscal handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers fiscal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermFinanceGLView))
		r.Get("/years", h.handleListYears)
		r.Get("/years/{id}/periods", h.handleListPeriods)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermFinancePeriodClose))
		r.Post("/years", h.handleCreateYear)
		r.Post("/periods/{id}/close", h.transitionHandler(h.service.ClosePeriod))
		r.Post("/periods/{id}/lock", h.transitionHandler(h.service.LockPeriod))
		r.Post("/periods/{id}/reopen", h.transitionHandler(h.service.ReopenPeriod))
	})
}

type createYearRequest struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
}

func (h *Handler) handleCreateYear(w http.ResponseWriter, r *http.Request) {
	var req createYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid start date")
		return
	}
	year, err := h.service.CreateYear(r.Context(), CreateYearInput{
		Name:      req.Name,
		StartDate: start,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		if errors.Is(err, ErrYearOverlap) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("create fiscal year", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, year)
}

func (h *Handler) handleListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		h.logger.Error("list fiscal years", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, years)
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), id)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) transitionHandler(op func(context.Context, int64, int64) (Period, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
			return
		}
		period, err := op(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, ErrPeriodLocked), errors.Is(err, shared.ErrInvalidPeriodTransition):
				httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			case errors.Is(err, ErrPeriodNotFound):
				httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			default:
				h.logger.Error("period transition", slog.Any("error", err))
				httpx.RespondError(w, err)
			}
			return
		}
		httpx.JSON(w, http.StatusOK, period)
	}
}
