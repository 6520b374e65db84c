package radiology

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *RadiologyTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*RadiologyTest, error)
	Update(ctx context.Context, t *RadiologyTest) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*RadiologyTest, int, error)
}

// Patients resolves patients for orders and DICOM headers.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
	Info(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}
