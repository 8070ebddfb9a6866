package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

// TransactionGateway is the slice of the transactions service payments need.
// Generated payment documents go through the same validation funnel as every
// other write.
type TransactionGateway interface {
	Get(ctx context.Context, id uuid.UUID) (transactions.Transaction, error)
	SaveTransactionBatch(ctx context.Context, txns []*transactions.Transaction) error
}

// BankAccountResolver finds the ledger account for the paying bank account.
type BankAccountResolver interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
	ResolveControlAccount(ctx context.Context, entityType accounts.EntityType) (accounts.Account, error)
}

// Service coordinates payment batches.
type Service struct {
	repo     Repository
	txns     TransactionGateway
	accounts BankAccountResolver
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the payments service.
func NewService(repo Repository, txns TransactionGateway, accountsSvc BankAccountResolver, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		txns:     txns,
		accounts: accountsSvc,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBatch opens an empty DRAFT batch.
func (s *Service) CreateBatch(ctx context.Context, currency string, actorID int64) (Batch, error) {
	if currency == "" {
		currency = "EUR"
	}
	batch := Batch{
		Code:      fmt.Sprintf("PAY-%s", s.now().UTC().Format("20060102-150405")),
		Status:    BatchDraft,
		Currency:  currency,
		CreatedBy: actorID,
	}
	if err := s.repo.InsertBatch(ctx, &batch); err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actorID, "payments.batch.create", batch.ID)
	return batch, nil
}

// AddBill adds an approved vendor bill to a DRAFT batch. The bill's payable
// amount is its total debit side.
func (s *Service) AddBill(ctx context.Context, batchID int64, billID uuid.UUID, actorID int64) (Item, error) {
	bill, err := s.txns.Get(ctx, billID)
	if err != nil {
		return Item{}, err
	}
	if bill.Type != transactions.TypeVendorBill || bill.Status != transactions.StatusApproved {
		return Item{}, ErrBillNotPayable
	}
	amount := 0.0
	vendorID := int64(0)
	for _, entry := range bill.Entries {
		amount += entry.Debit
		if entry.EntityID != 0 {
			vendorID = entry.EntityID
		}
	}
	var item Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != BatchDraft {
			return ErrBatchNotEditable
		}
		item = Item{
			BatchID:  batchID,
			BillID:   billID,
			VendorID: vendorID,
			Amount:   amount,
		}
		if err := tx.InsertItem(ctx, &item); err != nil {
			return err
		}
		return tx.AddToTotal(ctx, batchID, amount)
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "payments.batch.add", batchID)
	return item, nil
}

// Process moves a DRAFT batch to PROCESSING and writes one PAYMENT document
// per item in a single batched write: debit the vendor's payable control
// account, credit the paying bank account.
func (s *Service) Process(ctx context.Context, batchID, bankAccountID, actorID int64) (Batch, error) {
	bank, err := s.accounts.Get(ctx, bankAccountID)
	if err != nil {
		return Batch{}, err
	}
	control, err := s.accounts.ResolveControlAccount(ctx, accounts.EntityTypeVendor)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err = tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := ValidateBatchTransition(batch.Status, BatchProcessing); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, batchID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyBatch
		}
		batch.Items = items
		now := s.now()
		return tx.UpdateBatchStatus(ctx, batchID, BatchProcessing, &now)
	})
	if err != nil {
		return Batch{}, err
	}

	docs := make([]*transactions.Transaction, 0, len(batch.Items))
	for i := range batch.Items {
		item := &batch.Items[i]
		txn := &transactions.Transaction{
			Type:      transactions.TypePayment,
			Status:    transactions.StatusPosted,
			Date:      s.now(),
			Memo:      fmt.Sprintf("Payment batch %s", batch.Code),
			CreatedBy: actorID,
			Entries: []ledger.Entry{
				{
					AccountID:   control.ID,
					AccountCode: control.Code,
					AccountName: control.Name,
					EntityID:    item.VendorID,
					EntityType:  accounts.EntityTypeVendor,
					Debit:       item.Amount,
					Description: fmt.Sprintf("Settle bill %s", item.BillID),
				},
				{
					AccountID:   bank.ID,
					AccountCode: bank.Code,
					AccountName: bank.Name,
					Credit:      item.Amount,
					Description: fmt.Sprintf("Payment batch %s", batch.Code),
				},
			},
		}
		docs = append(docs, txn)
	}
	if err := s.txns.SaveTransactionBatch(ctx, docs); err != nil {
		return Batch{}, err
	}
	for i, doc := range docs {
		id := doc.ID
		batch.Items[i].PaymentTxnID = &id
		if err := s.repo.SetItemPayment(ctx, batch.Items[i].ID, id); err != nil {
			return Batch{}, err
		}
	}
	batch.Status = BatchProcessing
	s.recordAudit(ctx, actorID, "payments.batch.process", batchID)
	return batch, nil
}

// Complete moves a PROCESSING batch to COMPLETED.
func (s *Service) Complete(ctx context.Context, batchID, actorID int64) (Batch, error) {
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := ValidateBatchTransition(current.Status, BatchCompleted); err != nil {
			return err
		}
		if err := tx.UpdateBatchStatus(ctx, batchID, BatchCompleted, nil); err != nil {
			return err
		}
		current.Status = BatchCompleted
		batch = current
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actorID, "payments.batch.complete", batchID)
	return batch, nil
}

// Get loads a batch with its items.
func (s *Service) Get(ctx context.Context, batchID int64) (Batch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// List returns batches filtered by status.
func (s *Service) List(ctx context.Context, status BatchStatus) ([]Batch, error) {
	return s.repo.ListBatches(ctx, status)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, batchID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment_batch",
		EntityID: strconv.FormatInt(batchID, 10),
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
