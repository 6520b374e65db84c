package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	// GetByID loads the invoice with its items and payments.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindOpenDraft locks and returns the patient's newest draft invoice.
	FindOpenDraft(ctx context.Context, patientID uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error)

	AddItem(ctx context.Context, it *InvoiceItem) error
	RemoveItem(ctx context.Context, invoiceID, itemID uuid.UUID) error
	AddPayment(ctx context.Context, p *Payment) error

	Summary(ctx context.Context, from, to time.Time) (*Summary, error)
}

// Patients checks patient existence.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) error
}
