package staff

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
)

var errDuplicateEmployeeID = apperr.Conflict("employee id already exists")

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	Update(ctx context.Context, d *Department) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Department, int, error)
}

type MemberRepository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	Update(ctx context.Context, m *Member) error
	List(ctx context.Context, f MemberFilter, limit, offset int) ([]*Member, int, error)
	// ListLicensesExpiring returns active members whose license expires
	// on or before the given instant.
	ListLicensesExpiring(ctx context.Context, before time.Time) ([]*Member, error)
}
