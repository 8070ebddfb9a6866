package materials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates material master and stock operations.
type Service struct {
	repo        Repository
	audit       shared.AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	allowNeg    bool
	now         func() time.Time
}

// NewService builds the materials service.
func NewService(repo Repository, audit shared.AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		allowNeg:    cfg.AllowNegativeStock,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a material with a category-prefixed sequential code.
func (s *Service) Create(ctx context.Context, in CreateMaterialInput) (Material, error) {
	if err := in.Validate(); err != nil {
		return Material{}, err
	}
	var material Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextCodeSequence(ctx, in.Category)
		if err != nil {
			return err
		}
		material = Material{
			Code:     fmt.Sprintf("%s-%05d", in.Category, seq),
			Name:     strings.TrimSpace(in.Name),
			Category: in.Category,
			Unit:     strings.TrimSpace(in.Unit),
			IsActive: true,
		}
		return tx.InsertMaterial(ctx, &material)
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, in.ActorID, "material.create", material.ID)
	return material, nil
}

// Get loads one material.
func (s *Service) Get(ctx context.Context, id int64) (Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

// List returns materials, optionally filtered by category.
func (s *Service) List(ctx context.Context, category Category) ([]Material, error) {
	return s.repo.ListMaterials(ctx, category)
}

// SetPrice appends a price history entry. History is never rewritten.
func (s *Service) SetPrice(ctx context.Context, materialID int64, price float64, currency string, validFrom time.Time, actorID int64) (Price, error) {
	if price < 0 {
		return Price{}, ErrInvalidUnitCost
	}
	if currency == "" {
		currency = "EUR"
	}
	if validFrom.IsZero() {
		validFrom = s.now()
	}
	entry := Price{
		MaterialID: materialID,
		Price:      price,
		Currency:   currency,
		ValidFrom:  validFrom,
		CreatedBy:  actorID,
	}
	if err := s.repo.InsertPrice(ctx, &entry); err != nil {
		return Price{}, err
	}
	s.recordAudit(ctx, actorID, "material.price", materialID)
	return entry, nil
}

// PriceHistory lists the price entries for a material, newest first.
func (s *Service) PriceHistory(ctx context.Context, materialID int64) ([]Price, error) {
	return s.repo.ListPrices(ctx, materialID)
}

// PostMovement applies one stock movement. Inbound quantities fold into the
// moving-average cost; outbound consumes at the current average. Stock may
// not go negative unless the service is configured to allow it.
func (s *Service) PostMovement(ctx context.Context, in MovementInput) (Movement, error) {
	if in.MaterialID == 0 {
		return Movement{}, errors.New("materials: material required")
	}
	switch in.Type {
	case MovementIn, MovementOut:
		if in.Qty <= 0 {
			return Movement{}, ErrInvalidQuantity
		}
	case MovementAdjust:
		if math.Abs(in.Qty) < 1e-9 {
			return Movement{}, ErrInvalidQuantity
		}
	default:
		return Movement{}, fmt.Errorf("materials: unknown movement type %q", in.Type)
	}
	if in.UnitCost < 0 {
		return Movement{}, ErrInvalidUnitCost
	}

	if s.idempotency != nil && in.RefID != "" {
		key := fmt.Sprintf("%s:%d:%s", in.Type, in.MaterialID, in.RefID)
		if err := s.idempotency.CheckAndInsert(ctx, key, "materials"); err != nil {
			return Movement{}, err
		}
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		material, err := tx.GetMaterialForUpdate(ctx, in.MaterialID)
		if err != nil {
			return err
		}
		qtyChange := in.Qty
		if in.Type == MovementOut {
			qtyChange = -in.Qty
		}
		newQty := material.StockQty + qtyChange
		if !s.allowNeg && newQty < -1e-4 {
			return ErrNegativeStock
		}
		unitCost := in.UnitCost
		newAvg := material.AvgCost
		if qtyChange > 0 {
			totalCost := material.StockQty*material.AvgCost + qtyChange*unitCost
			if newQty > 1e-9 {
				newAvg = totalCost / newQty
			}
		} else {
			unitCost = material.AvgCost
			if math.Abs(newQty) < 1e-4 {
				newQty = 0
			}
			if newQty <= 0 {
				newAvg = 0
			}
		}
		movement = Movement{
			MaterialID: in.MaterialID,
			Type:       in.Type,
			Qty:        in.Qty,
			UnitCost:   unitCost,
			BalanceQty: newQty,
			Note:       in.Note,
			RefEntity:  in.RefEntity,
			RefID:      in.RefID,
			ActorID:    in.ActorID,
			PostedAt:   s.now().UTC(),
		}
		if err := tx.InsertMovement(ctx, &movement); err != nil {
			return err
		}
		return tx.UpdateStock(ctx, in.MaterialID, newQty, newAvg)
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, in.ActorID, "material.movement", in.MaterialID)
	return movement, nil
}

// Movements lists the movement history for a material, newest first.
func (s *Service) Movements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, materialID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, materialID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "material",
		EntityID: strconv.FormatInt(materialID, 10),
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
