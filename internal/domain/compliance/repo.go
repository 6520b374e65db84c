package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AuditRepository interface {
	Create(ctx context.Context, l *AuditLog) error
	List(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditLog, int, error)
	// PHIAccess groups a patient's audit rows by user, most recent first.
	PHIAccess(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]PHIAccessor, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ConsentRepository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	Update(ctx context.Context, c *Consent) error
	List(ctx context.Context, f ConsentFilter, limit, offset int) ([]*Consent, int, error)
	// FindGranted returns the granted consent of a type, expired or not.
	FindGranted(ctx context.Context, patientID uuid.UUID, consentType string) (*Consent, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}
