package emergency

import (
	"context"

	"github.com/google/uuid"
)

type CaseRepository interface {
	Create(ctx context.Context, c *EmergencyCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCase, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyCase, error)
	Update(ctx context.Context, c *EmergencyCase) error
	List(ctx context.Context, f CaseFilter, limit, offset int) ([]*EmergencyCase, int, error)
	// Board returns open cases, most urgent triage level first, then by
	// arrival. Untriaged cases sort after triaged ones.
	Board(ctx context.Context) ([]*EmergencyCase, error)
	AddStatusHistory(ctx context.Context, h *StatusHistory) error
	GetStatusHistory(ctx context.Context, caseID uuid.UUID) ([]*StatusHistory, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

// Clinicians checks that a staff member can take a case.
type Clinicians interface {
	ActiveClinician(ctx context.Context, id uuid.UUID) error
}
