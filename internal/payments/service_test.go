package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

type memoryBatchRepo struct {
	batches map[int64]Batch
	items   map[int64]Item
	nextID  int64
}

func newMemoryBatchRepo() *memoryBatchRepo {
	return &memoryBatchRepo{batches: make(map[int64]Batch), items: make(map[int64]Item)}
}

func (m *memoryBatchRepo) InsertBatch(ctx context.Context, batch *Batch) error {
	m.nextID++
	batch.ID = m.nextID
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = batch.CreatedAt
	m.batches[batch.ID] = *batch
	return nil
}

func (m *memoryBatchRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	items, _ := m.ListItems(ctx, id)
	batch.Items = items
	return batch, nil
}

func (m *memoryBatchRepo) ListBatches(ctx context.Context, status BatchStatus) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memoryBatchRepo) SetItemPayment(ctx context.Context, itemID int64, txnID uuid.UUID) error {
	item, ok := m.items[itemID]
	if !ok {
		return ErrBatchNotFound
	}
	item.PaymentTxnID = &txnID
	m.items[itemID] = item
	return nil
}

func (m *memoryBatchRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryBatchRepo) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return batch, nil
}

func (m *memoryBatchRepo) InsertItem(ctx context.Context, item *Item) error {
	m.nextID++
	item.ID = m.nextID
	item.CreatedAt = time.Now()
	m.items[item.ID] = *item
	return nil
}

func (m *memoryBatchRepo) ListItems(ctx context.Context, batchID int64) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if item.BatchID == batchID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryBatchRepo) AddToTotal(ctx context.Context, batchID int64, delta float64) error {
	batch, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	batch.Total += delta
	m.batches[batchID] = batch
	return nil
}

func (m *memoryBatchRepo) UpdateBatchStatus(ctx context.Context, batchID int64, status BatchStatus, processedAt *time.Time) error {
	batch, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	batch.Status = status
	if processedAt != nil {
		batch.ProcessedAt = processedAt
	}
	m.batches[batchID] = batch
	return nil
}

type fakeTxnGateway struct {
	bills map[uuid.UUID]transactions.Transaction
	saved []*transactions.Transaction
}

func (f *fakeTxnGateway) Get(ctx context.Context, id uuid.UUID) (transactions.Transaction, error) {
	txn, ok := f.bills[id]
	if !ok {
		return transactions.Transaction{}, transactions.ErrTransactionNotFound
	}
	return txn, nil
}

func (f *fakeTxnGateway) SaveTransactionBatch(ctx context.Context, txns []*transactions.Transaction) error {
	for _, txn := range txns {
		if txn.ID == uuid.Nil {
			txn.ID = uuid.New()
		}
	}
	f.saved = append(f.saved, txns...)
	return nil
}

type fakeAccounts struct{}

func (fakeAccounts) Get(ctx context.Context, id int64) (accounts.Account, error) {
	return accounts.Account{ID: id, Code: "1000", Name: "Main Bank", Type: accounts.AccountTypeAsset}, nil
}

func (fakeAccounts) ResolveControlAccount(ctx context.Context, entityType accounts.EntityType) (accounts.Account, error) {
	return accounts.Account{ID: 21, Code: "2100", Name: "Accounts Payable", Type: accounts.AccountTypeLiability}, nil
}

func approvedBill(vendorID int64, amount float64) transactions.Transaction {
	return transactions.Transaction{
		ID:     uuid.New(),
		Type:   transactions.TypeVendorBill,
		Status: transactions.StatusApproved,
		Entries: []ledger.Entry{
			{AccountID: 50, EntityID: vendorID, Debit: amount},
			{AccountID: 21, Credit: amount},
		},
	}
}

func paymentsFixture() (*Service, *memoryBatchRepo, *fakeTxnGateway) {
	repo := newMemoryBatchRepo()
	gateway := &fakeTxnGateway{bills: make(map[uuid.UUID]transactions.Transaction)}
	svc := NewService(repo, gateway, fakeAccounts{}, nil, nil)
	return svc, repo, gateway
}

func TestBatchLifecycle(t *testing.T) {
	svc, _, gateway := paymentsFixture()
	bill := approvedBill(9, 1250)
	gateway.bills[bill.ID] = bill

	batch, err := svc.CreateBatch(context.Background(), "EUR", 7)
	require.NoError(t, err)
	require.Equal(t, BatchDraft, batch.Status)

	item, err := svc.AddBill(context.Background(), batch.ID, bill.ID, 7)
	require.NoError(t, err)
	require.InDelta(t, 1250, item.Amount, 0.001)
	require.EqualValues(t, 9, item.VendorID)

	processed, err := svc.Process(context.Background(), batch.ID, 1, 7)
	require.NoError(t, err)
	require.Equal(t, BatchProcessing, processed.Status)
	require.Len(t, gateway.saved, 1)

	payment := gateway.saved[0]
	require.Equal(t, transactions.TypePayment, payment.Type)
	require.InDelta(t, 1250, payment.Entries[0].Debit, 0.001)
	require.InDelta(t, 1250, payment.Entries[1].Credit, 0.001)
	require.EqualValues(t, 21, payment.Entries[0].AccountID, "debit hits the payable control account")

	completed, err := svc.Complete(context.Background(), batch.ID, 7)
	require.NoError(t, err)
	require.Equal(t, BatchCompleted, completed.Status)
}

func TestAddBillRejectsUnapprovedDocuments(t *testing.T) {
	svc, _, gateway := paymentsFixture()
	draft := approvedBill(9, 100)
	draft.Status = transactions.StatusDraft
	gateway.bills[draft.ID] = draft

	batch, err := svc.CreateBatch(context.Background(), "", 7)
	require.NoError(t, err)

	_, err = svc.AddBill(context.Background(), batch.ID, draft.ID, 7)
	require.ErrorIs(t, err, ErrBillNotPayable)

	invoice := approvedBill(9, 100)
	invoice.Type = transactions.TypeCustomerInvoice
	gateway.bills[invoice.ID] = invoice
	_, err = svc.AddBill(context.Background(), batch.ID, invoice.ID, 7)
	require.ErrorIs(t, err, ErrBillNotPayable)
}

func TestAddBillOnlyInDraft(t *testing.T) {
	svc, _, gateway := paymentsFixture()
	bill := approvedBill(9, 100)
	gateway.bills[bill.ID] = bill

	batch, err := svc.CreateBatch(context.Background(), "", 7)
	require.NoError(t, err)
	_, err = svc.AddBill(context.Background(), batch.ID, bill.ID, 7)
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), batch.ID, 1, 7)
	require.NoError(t, err)

	second := approvedBill(9, 50)
	gateway.bills[second.ID] = second
	_, err = svc.AddBill(context.Background(), batch.ID, second.ID, 7)
	require.ErrorIs(t, err, ErrBatchNotEditable)
}

func TestProcessRequiresItems(t *testing.T) {
	svc, _, _ := paymentsFixture()
	batch, err := svc.CreateBatch(context.Background(), "", 7)
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), batch.ID, 1, 7)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBatchTransitionRules(t *testing.T) {
	require.NoError(t, ValidateBatchTransition(BatchDraft, BatchProcessing))
	require.NoError(t, ValidateBatchTransition(BatchProcessing, BatchCompleted))

	var invalid *InvalidTransitionError
	require.ErrorAs(t, ValidateBatchTransition(BatchDraft, BatchCompleted), &invalid)
	require.ErrorAs(t, ValidateBatchTransition(BatchCompleted, BatchProcessing), &invalid)
	require.ErrorAs(t, ValidateBatchTransition(BatchProcessing, BatchDraft), &invalid)
}
