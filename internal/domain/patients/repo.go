package patients

import (
	"context"

	"github.com/google/uuid"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
)

// errDuplicateMRN is returned by Create when the generated MRN collides.
var errDuplicateMRN = apperr.Conflict("medical record number already exists")

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Patient, int, error)
}
