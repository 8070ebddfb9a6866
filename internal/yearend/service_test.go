package yearend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

type fakeFiscal struct {
	year    fiscal.FiscalYear
	periods []fiscal.Period
}

func (f *fakeFiscal) GetYear(ctx context.Context, id int64) (fiscal.FiscalYear, error) {
	return f.year, nil
}

func (f *fakeFiscal) ListPeriods(ctx context.Context, fiscalYearID int64) ([]fiscal.Period, error) {
	return f.periods, nil
}

type fakeRetained struct {
	account accounts.Account
	err     error
}

func (f fakeRetained) RetainedEarnings(ctx context.Context) (accounts.Account, error) {
	return f.account, f.err
}

// memoryRunRepo implements Repository and TxRepository. WithTx snapshots the
// mutable state and restores it when the closure fails, mirroring a rollback.
type memoryRunRepo struct {
	balances []accounts.Balance
	runs     []ClosingRun
	docs     []*transactions.Transaction
	gw       *fakeFiscal
	seq      int64

	failYearUpdate   bool
	failMarkReversed bool
}

func (m *memoryRunRepo) IncomeExpenseBalances(ctx context.Context, start, end time.Time) ([]accounts.Balance, error) {
	return m.balances, nil
}

func (m *memoryRunRepo) LatestRun(ctx context.Context, fiscalYearID int64) (ClosingRun, error) {
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].FiscalYearID == fiscalYearID {
			return m.runs[i], nil
		}
	}
	return ClosingRun{}, ErrNoClosingRun
}

func (m *memoryRunRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	runs := append([]ClosingRun(nil), m.runs...)
	docs := append([]*transactions.Transaction(nil), m.docs...)
	status := m.gw.year.Status
	if err := fn(ctx, m); err != nil {
		m.runs, m.docs = runs, docs
		m.gw.year.Status = status
		return err
	}
	return nil
}

func (m *memoryRunRepo) InsertRun(ctx context.Context, run *ClosingRun) error {
	m.seq++
	run.ID = m.seq
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRunRepo) MarkReversed(ctx context.Context, runID int64) error {
	if m.failMarkReversed {
		return errors.New("closings table unavailable")
	}
	for i := range m.runs {
		if m.runs[i].ID == runID {
			m.runs[i].Reversed = true
			return nil
		}
	}
	return ErrNoClosingRun
}

func (m *memoryRunRepo) SetYearStatus(ctx context.Context, yearID int64, from, to fiscal.YearStatus, actorID int64) error {
	if m.failYearUpdate {
		return errors.New("fiscal_years table unavailable")
	}
	if m.gw.year.Status != from {
		return ErrYearStateChanged
	}
	m.gw.year.Status = to
	return nil
}

func (m *memoryRunRepo) Documents() transactions.TxRepository {
	return memoryDocs{repo: m}
}

type memoryDocs struct {
	repo *memoryRunRepo
}

func (d memoryDocs) Insert(ctx context.Context, txn *transactions.Transaction) error {
	d.repo.seq++
	txn.Number = d.repo.seq
	d.repo.docs = append(d.repo.docs, txn)
	return nil
}

func (d memoryDocs) GetForUpdate(ctx context.Context, id uuid.UUID) (transactions.Transaction, error) {
	for _, txn := range d.repo.docs {
		if txn.ID == id {
			return *txn, nil
		}
	}
	return transactions.Transaction{}, transactions.ErrTransactionNotFound
}

func (d memoryDocs) UpdateApproval(ctx context.Context, txn transactions.Transaction) error {
	return nil
}

type fakeWriter struct {
	repo *memoryRunRepo
}

func (f *fakeWriter) SaveWithoutPeriodCheckTx(ctx context.Context, tx transactions.TxRepository, txn *transactions.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return tx.Insert(ctx, txn)
}

func (f *fakeWriter) Get(ctx context.Context, id uuid.UUID) (transactions.Transaction, error) {
	for _, txn := range f.repo.docs {
		if txn.ID == id {
			return *txn, nil
		}
	}
	return transactions.Transaction{}, transactions.ErrTransactionNotFound
}

func retainedAccount() accounts.Account {
	return accounts.Account{ID: 32, Code: "3200", Name: "Retained Earnings", Type: accounts.AccountTypeEquity}
}

func closedYearFixture() *fakeFiscal {
	return &fakeFiscal{
		year: fiscal.FiscalYear{
			ID:        1,
			Name:      "FY2025",
			StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			Status:    fiscal.YearStatusOpen,
		},
		periods: []fiscal.Period{
			{Code: "2025-01", Status: fiscal.PeriodStatusClosed},
			{Code: "2025-02", Status: fiscal.PeriodStatusLocked},
		},
	}
}

func closingFixture(balances []accounts.Balance) (*memoryRunRepo, *fakeFiscal, *Service) {
	gw := closedYearFixture()
	repo := &memoryRunRepo{balances: balances, gw: gw}
	svc := NewService(repo, gw, fakeRetained{account: retainedAccount()}, &fakeWriter{repo: repo}, nil, nil)
	return repo, gw, svc
}

func incomeExpenseBalances() []accounts.Balance {
	return []accounts.Balance{
		// Income: credit balance of 5000.
		{AccountID: 40, AccountCode: "4000", AccountName: "Sales", Type: accounts.AccountTypeIncome, Debits: 0, Credits: 5000, Net: -5000},
		// Expense: debit balance of 3000.
		{AccountID: 50, AccountCode: "5000", AccountName: "Rent", Type: accounts.AccountTypeExpense, Debits: 3000, Credits: 0, Net: 3000},
	}
}

func TestBuildClosingEntries(t *testing.T) {
	entries, netIncome := BuildClosingEntries(incomeExpenseBalances(), retainedAccount())
	require.Len(t, entries, 3)
	require.InDelta(t, 2000, netIncome, 0.001)

	// Income closed with a debit, expense with a credit, net credited to RE.
	require.InDelta(t, 5000, entries[0].Debit, 0.001)
	require.InDelta(t, 3000, entries[1].Credit, 0.001)
	require.EqualValues(t, 32, entries[2].AccountID)
	require.InDelta(t, 2000, entries[2].Credit, 0.001)

	res := ledger.Validate(entries)
	require.True(t, res.IsValid, "closing entries must balance: %v", res.Errors)
}

func TestBuildClosingEntriesNetLoss(t *testing.T) {
	balances := []accounts.Balance{
		{AccountID: 40, AccountCode: "4000", AccountName: "Sales", Type: accounts.AccountTypeIncome, Credits: 1000, Net: -1000},
		{AccountID: 50, AccountCode: "5000", AccountName: "Rent", Type: accounts.AccountTypeExpense, Debits: 4000, Net: 4000},
	}
	entries, netIncome := BuildClosingEntries(balances, retainedAccount())
	require.InDelta(t, -3000, netIncome, 0.001)
	require.InDelta(t, 3000, entries[len(entries)-1].Debit, 0.001, "a loss is debited to retained earnings")
}

func TestBuildClosingEntriesSkipsZeroBalances(t *testing.T) {
	balances := []accounts.Balance{
		{AccountID: 40, Type: accounts.AccountTypeIncome, Net: 0},
		{AccountID: 41, Type: accounts.AccountTypeIncome, Net: -0.001},
	}
	entries, _ := BuildClosingEntries(balances, retainedAccount())
	require.Empty(t, entries)
}

func TestExecuteClosesYear(t *testing.T) {
	repo, gw, svc := closingFixture(incomeExpenseBalances())

	run, err := svc.Execute(context.Background(), 1, 7)
	require.NoError(t, err)
	require.InDelta(t, 2000, run.NetIncome, 0.001)
	require.Equal(t, fiscal.YearStatusClosed, gw.year.Status)
	require.Len(t, repo.docs, 1)
	require.Equal(t, transactions.StatusPosted, repo.docs[0].Status)
	require.Equal(t, gw.year.EndDate, repo.docs[0].Date)
	require.Equal(t, repo.docs[0].ID, run.TransactionID)
}

func TestExecuteRollsBackWhenYearUpdateFails(t *testing.T) {
	repo, gw, svc := closingFixture(incomeExpenseBalances())
	repo.failYearUpdate = true

	_, err := svc.Execute(context.Background(), 1, 7)
	require.Error(t, err)
	require.Empty(t, repo.docs, "closing transaction must not survive a failed close")
	require.Empty(t, repo.runs)
	require.Equal(t, fiscal.YearStatusOpen, gw.year.Status)
}

func TestExecuteDetectsConcurrentClose(t *testing.T) {
	gw := closedYearFixture()
	repo := &memoryRunRepo{balances: incomeExpenseBalances(), gw: gw}
	svc := NewService(repo, &fakeFiscal{year: gw.year, periods: gw.periods}, fakeRetained{account: retainedAccount()}, &fakeWriter{repo: repo}, nil, nil)

	// Another run closes the year after the readiness checks saw it open.
	gw.year.Status = fiscal.YearStatusClosed

	_, err := svc.Execute(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodeAlreadyClosed, closing.Code)
	require.Empty(t, repo.docs)
	require.Empty(t, repo.runs)
}

func TestExecuteBlockedByOpenPeriod(t *testing.T) {
	_, gw, svc := closingFixture(nil)
	gw.periods[1].Status = fiscal.PeriodStatusOpen

	_, err := svc.Execute(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodePeriodsOpen, closing.Code)
}

func TestExecuteBlockedWhenAlreadyClosed(t *testing.T) {
	_, gw, svc := closingFixture(nil)
	gw.year.Status = fiscal.YearStatusClosed

	_, err := svc.Execute(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodeAlreadyClosed, closing.Code)
}

func TestExecuteBlockedWithoutRetainedEarnings(t *testing.T) {
	gw := closedYearFixture()
	repo := &memoryRunRepo{gw: gw}
	svc := NewService(repo, gw, fakeRetained{err: errors.New("missing account 3200")}, &fakeWriter{repo: repo}, nil, nil)

	_, err := svc.Execute(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodeNoRetainedEarnings, closing.Code)
}

func TestExecuteNothingToClose(t *testing.T) {
	_, _, svc := closingFixture(nil)

	_, err := svc.Execute(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodeNothingToClose, closing.Code)
}

func TestReverseRestoresAndReopens(t *testing.T) {
	repo, gw, svc := closingFixture(incomeExpenseBalances())

	_, err := svc.Execute(context.Background(), 1, 7)
	require.NoError(t, err)

	run, err := svc.Reverse(context.Background(), 1, 7)
	require.NoError(t, err)
	require.True(t, run.Reversed)
	require.Equal(t, fiscal.YearStatusOpen, gw.year.Status)
	require.Len(t, repo.docs, 2)

	original, reversal := repo.docs[0], repo.docs[1]
	for i := range original.Entries {
		require.InDelta(t, original.Entries[i].Debit, reversal.Entries[i].Credit, 0.001)
		require.InDelta(t, original.Entries[i].Credit, reversal.Entries[i].Debit, 0.001)
	}

	_, err = svc.Reverse(context.Background(), 1, 7)
	var closing *ClosingError
	require.ErrorAs(t, err, &closing)
	require.Equal(t, CodeAlreadyReversed, closing.Code)
}

func TestReverseRollsBackWhenRunUpdateFails(t *testing.T) {
	repo, gw, svc := closingFixture(incomeExpenseBalances())

	_, err := svc.Execute(context.Background(), 1, 7)
	require.NoError(t, err)
	repo.failMarkReversed = true

	_, err = svc.Reverse(context.Background(), 1, 7)
	require.Error(t, err)
	require.Len(t, repo.docs, 1, "reversal document must not survive a failed reversal")
	require.False(t, repo.runs[0].Reversed)
	require.Equal(t, fiscal.YearStatusClosed, gw.year.Status)
}

func TestCheckReadiness(t *testing.T) {
	_, gw, svc := closingFixture(nil)

	r, err := svc.CheckReadiness(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, r.Ready)
	require.EqualValues(t, 32, r.RetainedEarningsID)

	gw.periods[0].Status = fiscal.PeriodStatusOpen
	r, err = svc.CheckReadiness(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, r.Ready)
	require.Equal(t, []string{"2025-01"}, r.OpenPeriods)
}
