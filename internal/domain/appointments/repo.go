package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// LockDoctor serializes bookings for one doctor until the enclosing
	// transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	// HasOverlap reports whether a non-cancelled, non-no-show appointment of
	// doctorID intersects [start, end), ignoring exclude.
	HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)
	// MarkNoShows moves scheduled/confirmed appointments that ended before
	// cutoff to no_show and returns how many changed.
	MarkNoShows(ctx context.Context, cutoff time.Time) (int, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

// Clinicians resolves staff members by id.
type Clinicians interface {
	Clinician(ctx context.Context, id uuid.UUID) (*Clinician, error)
}
