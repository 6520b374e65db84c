package laboratory

import (
	"context"

	"github.com/google/uuid"
)

type CatalogRepository interface {
	Create(ctx context.Context, c *CatalogEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*CatalogEntry, error)
	Update(ctx context.Context, c *CatalogEntry) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*CatalogEntry, int, error)
}

type TestRepository interface {
	Create(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	GetByBarcode(ctx context.Context, barcode string) (*LabTest, error)
	Update(ctx context.Context, t *LabTest) error
	List(ctx context.Context, f TestFilter, limit, offset int) ([]*LabTest, int, error)
	SetLISOrderID(ctx context.Context, id uuid.UUID, orderID string) error
}

type QCRepository interface {
	Create(ctx context.Context, q *QCRecord) error
	List(ctx context.Context, f QCFilter, limit, offset int) ([]*QCRecord, int, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}
