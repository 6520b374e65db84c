package medicalrecords

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

// Clinicians checks that a staff member is an active clinician.
type Clinicians interface {
	ActiveClinician(ctx context.Context, id uuid.UUID) error
}

// Appointments resolves the patient an appointment was booked for.
type Appointments interface {
	PatientOf(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error)
}
