package fiscal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit sink down")
}

type memoryFiscalRepo struct {
	years   map[int64]FiscalYear
	periods map[int64]Period
	audits  []LockAudit
	nextID  int64
}

func newMemoryFiscalRepo() *memoryFiscalRepo {
	return &memoryFiscalRepo{years: make(map[int64]FiscalYear), periods: make(map[int64]Period)}
}

func (m *memoryFiscalRepo) ListYears(ctx context.Context) ([]FiscalYear, error) {
	var out []FiscalYear
	for _, y := range m.years {
		out = append(out, y)
	}
	return out, nil
}

func (m *memoryFiscalRepo) GetYear(ctx context.Context, id int64) (FiscalYear, error) {
	y, ok := m.years[id]
	if !ok {
		return FiscalYear{}, ErrYearNotFound
	}
	return y, nil
}

func (m *memoryFiscalRepo) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if p.FiscalYearID == fiscalYearID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryFiscalRepo) ResolveByDate(ctx context.Context, date time.Time) (ResolvedPeriod, error) {
	for _, p := range m.periods {
		if !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return ResolvedPeriod{Year: m.years[p.FiscalYearID], Period: p}, nil
		}
	}
	return ResolvedPeriod{}, ErrNoPeriodForDate
}

func (m *memoryFiscalRepo) YearRangeConflict(ctx context.Context, start, end time.Time) (bool, error) {
	for _, y := range m.years {
		if !y.StartDate.After(end) && !y.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryFiscalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryFiscalRepo) InsertYear(ctx context.Context, in CreateYearInput, end time.Time) (FiscalYear, error) {
	m.nextID++
	y := FiscalYear{ID: m.nextID, Name: in.Name, StartDate: in.StartDate, EndDate: end, Status: YearStatusOpen}
	m.years[y.ID] = y
	return y, nil
}

func (m *memoryFiscalRepo) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	m.nextID++
	p.ID = m.nextID
	p.Status = PeriodStatusOpen
	m.periods[p.ID] = p
	return p, nil
}

func (m *memoryFiscalRepo) GetPeriodForUpdate(ctx context.Context, periodID int64) (Period, error) {
	p, ok := m.periods[periodID]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryFiscalRepo) UpdatePeriodStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64) error {
	p, ok := m.periods[periodID]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = status
	m.periods[periodID] = p
	return nil
}

func (m *memoryFiscalRepo) InsertLockAudit(ctx context.Context, audit LockAudit) error {
	m.audits = append(m.audits, audit)
	return nil
}

func fiscalFixture() (*Service, *memoryFiscalRepo) {
	repo := newMemoryFiscalRepo()
	return NewService(repo, nil, nil), repo
}

func TestCreateYearGeneratesMonthlyPeriods(t *testing.T) {
	svc, _ := fiscalFixture()
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)
	require.Equal(t, YearStatusOpen, year.Status)
	require.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), year.EndDate)

	periods, err := svc.ListPeriods(context.Background(), year.ID)
	require.NoError(t, err)
	require.Len(t, periods, 12)

	codes := make(map[string]Period, len(periods))
	for _, p := range periods {
		codes[p.Code] = p
	}
	jan := codes["2026-01"]
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), jan.StartDate)
	require.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), jan.EndDate)
	feb := codes["2026-02"]
	require.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), feb.EndDate)
	dec := codes["2026-12"]
	require.Equal(t, year.EndDate, dec.EndDate)
}

func TestCreateYearRejectsOverlap(t *testing.T) {
	svc, _ := fiscalFixture()
	_, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)

	_, err = svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026-bis",
		StartDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.ErrorIs(t, err, ErrYearOverlap)
}

func TestCreateYearValidatesInput(t *testing.T) {
	svc, _ := fiscalFixture()
	_, err := svc.CreateYear(context.Background(), CreateYearInput{StartDate: time.Now(), ActorID: 1})
	require.Error(t, err)
	_, err = svc.CreateYear(context.Background(), CreateYearInput{Name: "2026", ActorID: 1})
	require.Error(t, err)
	_, err = svc.CreateYear(context.Background(), CreateYearInput{Name: "2026", StartDate: time.Now()})
	require.Error(t, err)
}

func TestPeriodTransitions(t *testing.T) {
	svc, repo := fiscalFixture()
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)
	periods, err := svc.ListPeriods(context.Background(), year.ID)
	require.NoError(t, err)
	target := periods[0]

	closed, err := svc.ClosePeriod(context.Background(), target.ID, 1)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)

	reopened, err := svc.ReopenPeriod(context.Background(), target.ID, 1)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)

	_, err = svc.ClosePeriod(context.Background(), target.ID, 1)
	require.NoError(t, err)
	locked, err := svc.LockPeriod(context.Background(), target.ID, 1)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusLocked, locked.Status)

	_, err = svc.ReopenPeriod(context.Background(), target.ID, 1)
	require.ErrorIs(t, err, ErrPeriodLocked)

	require.Equal(t, PeriodStatusLocked, repo.periods[target.ID].Status, "denied reopen leaves the period locked")
}

func TestLockRequiresClosedPeriod(t *testing.T) {
	svc, repo := fiscalFixture()
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)
	periods, _ := repo.ListPeriods(context.Background(), year.ID)

	_, err = svc.LockPeriod(context.Background(), periods[0].ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidPeriodTransition)
}

func TestDeniedTransitionsAreAudited(t *testing.T) {
	svc, repo := fiscalFixture()
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)
	periods, _ := repo.ListPeriods(context.Background(), year.ID)
	target := periods[0]

	_, err = svc.ClosePeriod(context.Background(), target.ID, 4)
	require.NoError(t, err)
	_, err = svc.LockPeriod(context.Background(), target.ID, 4)
	require.NoError(t, err)
	_, err = svc.ReopenPeriod(context.Background(), target.ID, 4)
	require.ErrorIs(t, err, ErrPeriodLocked)

	require.Len(t, repo.audits, 3)
	denied := repo.audits[2]
	require.False(t, denied.Allowed)
	require.Equal(t, PeriodStatusLocked, denied.From)
	require.Equal(t, PeriodStatusOpen, denied.To)
	require.EqualValues(t, 4, denied.ActorID)
}

func TestTransitionRequiresActor(t *testing.T) {
	svc, _ := fiscalFixture()
	_, err := svc.ClosePeriod(context.Background(), 1, 0)
	require.Error(t, err)
}

func TestAuditFailureDoesNotBlockTransition(t *testing.T) {
	repo := newMemoryFiscalRepo()
	svc := NewService(repo, failingAudit{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)
	periods, _ := repo.ListPeriods(context.Background(), year.ID)

	closed, err := svc.ClosePeriod(context.Background(), periods[0].ID, 1)
	require.NoError(t, err, "a failing audit sink must not block the transition")
	require.Equal(t, PeriodStatusClosed, closed.Status)
}

func TestResolvePeriod(t *testing.T) {
	svc, _ := fiscalFixture()
	year, err := svc.CreateYear(context.Background(), CreateYearInput{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   1,
	})
	require.NoError(t, err)

	resolved, err := svc.ResolvePeriod(context.Background(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, year.ID, resolved.Year.ID)
	require.Equal(t, "2026-03", resolved.Period.Code)
	require.True(t, resolved.IsOpenForPosting())

	_, err = svc.ResolvePeriod(context.Background(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoPeriodForDate)
}
