package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryReconRepo struct {
	bank    []BankTransaction
	acc     []AccountingTransaction
	matches []struct {
		suggestion Suggestion
		status     MatchStatus
	}
}

func (m *memoryReconRepo) ImportBankTransactions(ctx context.Context, txns []BankTransaction) (int64, error) {
	m.bank = append(m.bank, txns...)
	return int64(len(txns)), nil
}

func (m *memoryReconRepo) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	for _, t := range m.bank {
		if t.ID == id {
			return t, nil
		}
	}
	return BankTransaction{}, ErrBankTransactionNotFound
}

func (m *memoryReconRepo) ListUnmatchedBank(ctx context.Context, bankAccountID int64) ([]BankTransaction, error) {
	var out []BankTransaction
	for _, t := range m.bank {
		if t.BankAccountID == bankAccountID && !t.Matched {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryReconRepo) ListUnmatchedAccounting(ctx context.Context) ([]AccountingTransaction, error) {
	return m.acc, nil
}

func (m *memoryReconRepo) SaveMatch(ctx context.Context, s Suggestion, status MatchStatus) error {
	m.matches = append(m.matches, struct {
		suggestion Suggestion
		status     MatchStatus
	}{s, status})
	if status == MatchStatusMatched {
		for i := range m.bank {
			if m.bank[i].ID == s.BankTransactionID {
				m.bank[i].Matched = true
			}
		}
	}
	return nil
}

func (m *memoryReconRepo) statusCount(status MatchStatus) int {
	n := 0
	for _, match := range m.matches {
		if match.status == status {
			n++
		}
	}
	return n
}

func testLock(t *testing.T) (*shared.RunLock, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewRunLock(client), client
}

func TestRunBatchClassifiesByConfidence(t *testing.T) {
	repo := &memoryReconRepo{
		bank: []BankTransaction{
			// Exact amount, same day, matching reference: high confidence.
			{ID: 1, BankAccountID: 10, Amount: 500, Date: day(2024, 5, 1), Reference: "A-1"},
			// Exact amount, one day apart, no reference: medium confidence.
			{ID: 2, BankAccountID: 10, Amount: 750, Date: day(2024, 5, 2)},
			// Nothing close.
			{ID: 3, BankAccountID: 10, Amount: 123456, Date: day(2024, 5, 1)},
		},
		acc: []AccountingTransaction{
			{ID: uuid.New(), Amount: 500, Date: day(2024, 5, 1), Reference: "A-1"},
			{ID: uuid.New(), Amount: 750, Date: day(2024, 5, 1)},
		},
	}
	locks, _ := testLock(t)
	svc := NewService(repo, locks, nil, nil, DefaultConfig())

	stats, err := svc.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, BatchStats{Processed: 3, Matched: 1, Review: 1, Unmatched: 1}, stats)
	require.Equal(t, 1, repo.statusCount(MatchStatusMatched))
	require.Equal(t, 1, repo.statusCount(MatchStatusReview))
}

func TestRunBatchNeverReusesAccountingTransaction(t *testing.T) {
	only := AccountingTransaction{ID: uuid.New(), Amount: 500, Date: day(2024, 5, 1), Reference: "A-1"}
	repo := &memoryReconRepo{
		bank: []BankTransaction{
			{ID: 1, BankAccountID: 10, Amount: 500, Date: day(2024, 5, 1), Reference: "A-1"},
			{ID: 2, BankAccountID: 10, Amount: 500, Date: day(2024, 5, 1), Reference: "A-1"},
		},
		acc: []AccountingTransaction{only},
	}
	locks, _ := testLock(t)
	svc := NewService(repo, locks, nil, nil, DefaultConfig())

	stats, err := svc.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Matched)
	require.Equal(t, 1, stats.Unmatched)
}

func TestRunBatchLockContention(t *testing.T) {
	repo := &memoryReconRepo{}
	locks, client := testLock(t)
	svc := NewService(repo, locks, nil, nil, DefaultConfig())

	require.NoError(t, client.SetNX(context.Background(), sharedLockKey(10), "held", time.Minute).Err())

	_, err := svc.RunBatch(context.Background(), 10)
	require.ErrorIs(t, err, ErrSweepInProgress)
}

func sharedLockKey(accountID int64) string {
	return shared.ReconSweepLockKey(accountID)
}

func TestSuggestIncludesCombinations(t *testing.T) {
	repo := &memoryReconRepo{
		bank: []BankTransaction{{ID: 1, BankAccountID: 10, Amount: 300, Date: day(2024, 6, 1)}},
		acc: []AccountingTransaction{
			{ID: uuid.New(), Amount: 100, Date: day(2024, 6, 1)},
			{ID: uuid.New(), Amount: 200, Date: day(2024, 6, 1)},
		},
	}
	locks, _ := testLock(t)
	svc := NewService(repo, locks, nil, nil, DefaultConfig())

	suggestions, err := svc.Suggest(context.Background(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	require.Len(t, suggestions[0].AccountingTransactionIDs, 2)
}

func TestAcceptMatchRequiresCandidates(t *testing.T) {
	locks, _ := testLock(t)
	svc := NewService(&memoryReconRepo{}, locks, nil, nil, DefaultConfig())
	require.Error(t, svc.AcceptMatch(context.Background(), 1, nil, 7))
}
