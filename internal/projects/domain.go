// Package projects tracks budgeted projects and procurement commitments.
package projects

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the project lifecycle.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusOnHold    Status = "ON_HOLD"
	StatusCompleted Status = "COMPLETED"
)

// Project is one budgeted project.
type Project struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Budget    float64   `json:"budget"`
	Committed float64   `json:"committed"`
	Status    Status    `json:"status"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Available reports the budget not yet consumed by commitments.
func (p Project) Available() float64 {
	return p.Budget - p.Committed
}

// Commitment reserves part of a project budget for a procurement document.
type Commitment struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Amount    float64   `json:"amount"`
	RefEntity string    `json:"refEntity,omitempty"`
	RefID     string    `json:"refId,omitempty"`
	Note      string    `json:"note,omitempty"`
	ActorID   int64     `json:"actorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateProjectInput captures the fields for a new project.
type CreateProjectInput struct {
	Code    string
	Name    string
	Budget  float64
	OwnerID int64
	ActorID int64
}

// Validate checks the input is coherent.
func (in CreateProjectInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("projects: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("projects: name required")
	}
	if in.Budget < 0 {
		return errors.New("projects: budget must not be negative")
	}
	return nil
}

var (
	// ErrProjectNotFound indicates a missing project.
	ErrProjectNotFound = errors.New("projects: project not found")
	// ErrProjectNotActive blocks commitments against inactive projects.
	ErrProjectNotActive = errors.New("projects: project not active")
	// ErrDuplicateCode indicates the project code is taken.
	ErrDuplicateCode = errors.New("projects: code already in use")
)

// OverCommitError blocks commitments exceeding the remaining budget.
type OverCommitError struct {
	ProjectCode string
	Requested   float64
	Available   float64
}

func (e *OverCommitError) Error() string {
	return fmt.Sprintf("projects: commitment %.2f exceeds available budget %.2f on %s",
		e.Requested, e.Available, e.ProjectCode)
}
