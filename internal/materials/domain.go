// Package materials manages the material master, price history and stock
// movements with moving-average costing.
package materials

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category enumerates material categories. The category prefixes the code.
type Category string

const (
	CategoryRaw        Category = "RAW"
	CategoryFinished   Category = "FIN"
	CategoryConsumable Category = "CON"
	CategoryService    Category = "SRV"
)

var knownCategories = map[Category]struct{}{
	CategoryRaw:        {},
	CategoryFinished:   {},
	CategoryConsumable: {},
	CategoryService:    {},
}

// Material is one material master record.
type Material struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Unit      string    `json:"unit"`
	StockQty  float64   `json:"stockQty"`
	AvgCost   float64   `json:"avgCost"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Price is one entry in a material's price history.
type Price struct {
	ID         int64     `json:"id"`
	MaterialID int64     `json:"materialId"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ValidFrom  time.Time `json:"validFrom"`
	CreatedBy  int64     `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MovementType enumerates stock movements.
type MovementType string

const (
	MovementIn     MovementType = "IN"
	MovementOut    MovementType = "OUT"
	MovementAdjust MovementType = "ADJUST"
)

// Movement is one stock movement applied to a material.
type Movement struct {
	ID         int64        `json:"id"`
	MaterialID int64        `json:"materialId"`
	Type       MovementType `json:"type"`
	Qty        float64      `json:"qty"`
	UnitCost   float64      `json:"unitCost"`
	BalanceQty float64      `json:"balanceQty"`
	Note       string       `json:"note,omitempty"`
	RefEntity  string       `json:"refEntity,omitempty"`
	RefID      string       `json:"refId,omitempty"`
	ActorID    int64        `json:"actorId"`
	PostedAt   time.Time    `json:"postedAt"`
}

// CreateMaterialInput captures the fields for a new material.
type CreateMaterialInput struct {
	Name     string
	Category Category
	Unit     string
	ActorID  int64
}

// Validate checks the input is coherent.
func (in CreateMaterialInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("materials: name required")
	}
	if _, ok := knownCategories[in.Category]; !ok {
		return fmt.Errorf("materials: unknown category %q", in.Category)
	}
	if strings.TrimSpace(in.Unit) == "" {
		return errors.New("materials: unit required")
	}
	return nil
}

// MovementInput captures one stock movement request.
type MovementInput struct {
	MaterialID int64
	Type       MovementType
	Qty        float64
	UnitCost   float64
	Note       string
	RefEntity  string
	RefID      string
	ActorID    int64
}

var (
	// ErrMaterialNotFound indicates a missing material.
	ErrMaterialNotFound = errors.New("materials: material not found")
	// ErrNegativeStock blocks movements that would drive stock below zero.
	ErrNegativeStock = errors.New("materials: negative stock not allowed")
	// ErrInvalidQuantity blocks zero or wrongly-signed quantities.
	ErrInvalidQuantity = errors.New("materials: invalid quantity")
	// ErrInvalidUnitCost blocks negative unit costs.
	ErrInvalidUnitCost = errors.New("materials: invalid unit cost")
)
