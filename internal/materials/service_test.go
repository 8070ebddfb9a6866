package materials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryMaterialsRepo struct {
	materials map[int64]Material
	prices    []Price
	movements []Movement
	seqs      map[Category]int64
	nextID    int64
}

func newMemoryMaterialsRepo() *memoryMaterialsRepo {
	return &memoryMaterialsRepo{
		materials: make(map[int64]Material),
		seqs:      make(map[Category]int64),
	}
}

func (m *memoryMaterialsRepo) GetMaterial(ctx context.Context, id int64) (Material, error) {
	material, ok := m.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return material, nil
}

func (m *memoryMaterialsRepo) ListMaterials(ctx context.Context, category Category) ([]Material, error) {
	var out []Material
	for _, material := range m.materials {
		if category != "" && material.Category != category {
			continue
		}
		out = append(out, material)
	}
	return out, nil
}

func (m *memoryMaterialsRepo) InsertPrice(ctx context.Context, price *Price) error {
	m.nextID++
	price.ID = m.nextID
	price.CreatedAt = time.Now()
	m.prices = append(m.prices, *price)
	return nil
}

func (m *memoryMaterialsRepo) ListPrices(ctx context.Context, materialID int64) ([]Price, error) {
	var out []Price
	for _, p := range m.prices {
		if p.MaterialID == materialID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryMaterialsRepo) ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	var out []Movement
	for _, mv := range m.movements {
		if mv.MaterialID == materialID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memoryMaterialsRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryMaterialsRepo) NextCodeSequence(ctx context.Context, category Category) (int64, error) {
	m.seqs[category]++
	return m.seqs[category], nil
}

func (m *memoryMaterialsRepo) InsertMaterial(ctx context.Context, material *Material) error {
	m.nextID++
	material.ID = m.nextID
	material.CreatedAt = time.Now()
	material.UpdatedAt = material.CreatedAt
	m.materials[material.ID] = *material
	return nil
}

func (m *memoryMaterialsRepo) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	return m.GetMaterial(ctx, id)
}

func (m *memoryMaterialsRepo) InsertMovement(ctx context.Context, movement *Movement) error {
	m.nextID++
	movement.ID = m.nextID
	m.movements = append(m.movements, *movement)
	return nil
}

func (m *memoryMaterialsRepo) UpdateStock(ctx context.Context, materialID int64, qty, avgCost float64) error {
	material, ok := m.materials[materialID]
	if !ok {
		return ErrMaterialNotFound
	}
	material.StockQty = qty
	material.AvgCost = avgCost
	m.materials[materialID] = material
	return nil
}

func newMaterialsService(repo Repository) *Service {
	return NewService(repo, nil, nil, nil, ServiceConfig{})
}

func seedMaterial(t *testing.T, repo *memoryMaterialsRepo, svc *Service) Material {
	t.Helper()
	material, err := svc.Create(context.Background(), CreateMaterialInput{
		Name:     "Steel Sheet 2mm",
		Category: CategoryRaw,
		Unit:     "kg",
		ActorID:  7,
	})
	require.NoError(t, err)
	return material
}

func TestCreateMaterialCodePrefix(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)

	first := seedMaterial(t, repo, svc)
	require.Equal(t, "RAW-00001", first.Code)
	require.True(t, first.IsActive)

	second, err := svc.Create(context.Background(), CreateMaterialInput{Name: "Bolts", Category: CategoryRaw, Unit: "pcs", ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, "RAW-00002", second.Code)

	other, err := svc.Create(context.Background(), CreateMaterialInput{Name: "Widget", Category: CategoryFinished, Unit: "pcs", ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, "FIN-00001", other.Code, "sequences are independent per category")
}

func TestCreateMaterialRejectsUnknownCategory(t *testing.T) {
	svc := newMaterialsService(newMemoryMaterialsRepo())
	_, err := svc.Create(context.Background(), CreateMaterialInput{Name: "X", Category: "JUNK", Unit: "pcs"})
	require.Error(t, err)
}

func TestMovingAverageCost(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)
	material := seedMaterial(t, repo, svc)

	// 10 units at 5.00, then 10 units at 7.00: average lands at 6.00.
	_, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 10, UnitCost: 5})
	require.NoError(t, err)
	_, err = svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 10, UnitCost: 7})
	require.NoError(t, err)

	current, err := svc.Get(context.Background(), material.ID)
	require.NoError(t, err)
	require.InDelta(t, 20, current.StockQty, 0.001)
	require.InDelta(t, 6, current.AvgCost, 0.001)

	// Outbound consumes at the average, leaving the average unchanged.
	out, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementOut, Qty: 5})
	require.NoError(t, err)
	require.InDelta(t, 6, out.UnitCost, 0.001)

	current, err = svc.Get(context.Background(), material.ID)
	require.NoError(t, err)
	require.InDelta(t, 15, current.StockQty, 0.001)
	require.InDelta(t, 6, current.AvgCost, 0.001)
}

func TestNegativeStockRejected(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)
	material := seedMaterial(t, repo, svc)

	_, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 3, UnitCost: 2})
	require.NoError(t, err)

	_, err = svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementOut, Qty: 5})
	require.ErrorIs(t, err, ErrNegativeStock)

	current, err := svc.Get(context.Background(), material.ID)
	require.NoError(t, err)
	require.InDelta(t, 3, current.StockQty, 0.001, "rejected movement leaves stock untouched")
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{AllowNegativeStock: true})
	material := seedMaterial(t, repo, svc)

	_, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementOut, Qty: 2})
	require.NoError(t, err)
}

func TestAdjustmentDownToZeroResetsAverage(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)
	material := seedMaterial(t, repo, svc)

	_, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 4, UnitCost: 10})
	require.NoError(t, err)
	_, err = svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementAdjust, Qty: -4})
	require.NoError(t, err)

	current, err := svc.Get(context.Background(), material.ID)
	require.NoError(t, err)
	require.Zero(t, current.StockQty)
	require.Zero(t, current.AvgCost)
}

func TestMovementValidation(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)
	material := seedMaterial(t, repo, svc)

	_, err := svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 0, UnitCost: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: MovementIn, Qty: 1, UnitCost: -1})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = svc.PostMovement(context.Background(), MovementInput{MaterialID: material.ID, Type: "SIDEWAYS", Qty: 1})
	require.Error(t, err)
}

func TestPriceHistoryAppendOnly(t *testing.T) {
	repo := newMemoryMaterialsRepo()
	svc := newMaterialsService(repo)
	material := seedMaterial(t, repo, svc)

	_, err := svc.SetPrice(context.Background(), material.ID, 12.50, "EUR", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	_, err = svc.SetPrice(context.Background(), material.ID, 13.10, "EUR", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)

	history, err := svc.PriceHistory(context.Background(), material.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}
