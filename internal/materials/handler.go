package materials

import (
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

// Handler wires HTTP endpoints for materials.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the materials handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermMaterialsView, rbac.PermMaterialsEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/prices", h.handlePrices)
		r.Get("/{id}/movements", h.handleMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMaterialsEdit))
		r.Post("/", h.handleCreate)
		r.Post("/{id}/prices", h.handleSetPrice)
		r.Post("/{id}/movements", h.handlePostMovement)
	})
}

func materialID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type createMaterialRequest struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category" validate:"required"`
	Unit     string `json:"unit" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.service.Create(r.Context(), CreateMaterialInput{
		Name:     req.Name,
		Category: Category(req.Category),
		Unit:     req.Unit,
		ActorID:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create material", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.List(r.Context(), Category(r.URL.Query().Get("category")))
	if err != nil {
		h.logger.Error("list materials", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := materialID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	material, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

type setPriceRequest struct {
	Price     float64 `json:"price" validate:"gte=0"`
	Currency  string  `json:"currency"`
	ValidFrom string  `json:"validFrom"`
}

func (h *Handler) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := materialID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	var req setPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var validFrom time.Time
	if req.ValidFrom != "" {
		validFrom, err = time.Parse("2006-01-02", req.ValidFrom)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid valid-from date")
			return
		}
	}
	price, err := h.service.SetPrice(r.Context(), id, req.Price, req.Currency, validFrom, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("set material price", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, price)
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	id, err := materialID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	prices, err := h.service.PriceHistory(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, prices)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, err := materialID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type movementRequest struct {
	Type      string  `json:"type" validate:"required"`
	Qty       float64 `json:"qty" validate:"required"`
	UnitCost  float64 `json:"unitCost" validate:"gte=0"`
	Note      string  `json:"note"`
	RefEntity string  `json:"refEntity"`
	RefID     string  `json:"refId"`
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	id, err := materialID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.PostMovement(r.Context(), MovementInput{
		MaterialID: id,
		Type:       MovementType(req.Type),
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		Note:       req.Note,
		RefEntity:  req.RefEntity,
		RefID:      req.RefID,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrMaterialNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrNegativeStock), errors.Is(err, shared.ErrIdempotencyConflict):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		default:
			h.logger.Error("post movement", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}
