package bloodbank

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DonorRepository interface {
	Create(ctx context.Context, d *Donor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donor, error)
	Update(ctx context.Context, d *Donor) error
	List(ctx context.Context, f DonorFilter, limit, offset int) ([]*Donor, int, error)
}

type DonationRepository interface {
	Create(ctx context.Context, d *Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)
	Update(ctx context.Context, d *Donation) error
	ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error)
}

type UnitRepository interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Unit, error)
	// GetForUpdate locks the row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error)
	GetByDonation(ctx context.Context, donationID uuid.UUID) (*Unit, error)
	Update(ctx context.Context, u *Unit) error
	List(ctx context.Context, f UnitFilter, limit, offset int) ([]*Unit, int, error)
	Inventory(ctx context.Context, now time.Time) ([]InventoryLine, error)
	// ExpireDue marks available and reserved units past expiry as expired.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	Update(ctx context.Context, r *Request) error
	List(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error)
}

// Patients resolves recipients.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
	// BloodType returns the recorded blood type, or "" when unknown.
	BloodType(ctx context.Context, id uuid.UUID) (string, error)
}
