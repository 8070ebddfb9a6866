package fiscal

import (
	"errors"
	"strings"
	"time"
)

// YearStatus enumerates fiscal year lifecycle values.
type YearStatus string

const (
	YearStatusOpen   YearStatus = "OPEN"
	YearStatusClosed YearStatus = "CLOSED"
	YearStatusLocked YearStatus = "LOCKED"
)

// PeriodStatus enumerates accounting period lifecycle values.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// FiscalYear partitions the calendar for accounting.
type FiscalYear struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    YearStatus
	ClosedAt  *time.Time
	ClosedBy  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period is one accounting window inside a fiscal year.
type Period struct {
	ID           int64
	FiscalYearID int64
	Code         string
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	ClosedAt     *time.Time
	LockedBy     *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockAudit records every period status transition, including denied attempts.
type LockAudit struct {
	ID       int64
	PeriodID int64
	ActorID  int64
	From     PeriodStatus
	To       PeriodStatus
	Allowed  bool
	Note     string
	At       time.Time
}

// ResolvedPeriod pairs a period with its fiscal year for posting checks.
type ResolvedPeriod struct {
	Year   FiscalYear
	Period Period
}

// IsOpenForPosting reports whether a transaction dated inside this period may be written.
func (r ResolvedPeriod) IsOpenForPosting() bool {
	if r.Year.Status != YearStatusOpen {
		return false
	}
	return r.Period.Status == PeriodStatusOpen
}

// CreateYearInput captures validation rules for new fiscal years.
type CreateYearInput struct {
	Name      string
	StartDate time.Time
	ActorID   int64
}

// Validate ensures the create year input is coherent.
func (in CreateYearInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("fiscal: name required")
	}
	if in.StartDate.IsZero() {
		return errors.New("fiscal: start date required")
	}
	if in.ActorID == 0 {
		return errors.New("fiscal: actor required")
	}
	return nil
}

var (
	// ErrNoPeriodForDate indicates fiscal years are not configured for the date.
	ErrNoPeriodForDate = errors.New("fiscal: no period covers date")
	// ErrYearNotFound indicates a missing fiscal year.
	ErrYearNotFound = errors.New("fiscal: fiscal year not found")
	// ErrPeriodNotFound indicates a missing period.
	ErrPeriodNotFound = errors.New("fiscal: period not found")
	// ErrYearOverlap indicates the requested year conflicts with an existing range.
	ErrYearOverlap = errors.New("fiscal: year overlaps existing range")
	// ErrPeriodLocked indicates a period that can no longer transition.
	ErrPeriodLocked = errors.New("fiscal: period locked")
)
