package billing

import (
	"time"

	"github.com/google/uuid"
)

// InvoicePrefix starts every invoice number, followed by YYYYMM and six digits.
const InvoicePrefix = "INV"

// DefaultDueDays is the payment term applied when an invoice is issued
// without an explicit due date.
const DefaultDueDays = 30

const (
	StatusDraft         = "draft"
	StatusIssued        = "issued"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
	StatusCancelled     = "cancelled"
)

var statusTransitions = map[string][]string{
	StatusDraft:         {StatusIssued, StatusCancelled},
	StatusIssued:        {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid},
	StatusPaid:          {},
	StatusCancelled:     {},
}

var Categories = []string{
	"consultation", "laboratory", "radiology", "pharmacy", "blood_bank", "room", "procedure", "other",
}

// Invoice maps to the invoices table. Money fields are rounded to cents.
type Invoice struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	InvoiceNumber string         `db:"invoice_number" json:"invoice_number"`
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	Status        string         `db:"status" json:"status"`
	Items         []*InvoiceItem `json:"items"`
	Payments      []*Payment     `json:"payments"`
	Subtotal      float64        `db:"subtotal" json:"subtotal"`
	TaxRate       float64        `db:"tax_rate" json:"tax_rate"`
	TaxAmount     float64        `db:"tax_amount" json:"tax_amount"`
	Discount      float64        `db:"discount" json:"discount"`
	Total         float64        `db:"total" json:"total"`
	AmountPaid    float64        `db:"amount_paid" json:"amount_paid"`
	Balance       float64        `db:"balance" json:"balance"`
	DueDate       *time.Time     `db:"due_date" json:"due_date,omitempty"`
	IssuedAt      *time.Time     `db:"issued_at" json:"issued_at,omitempty"`
	CancelReason  *string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Notes         *string        `db:"notes" json:"notes,omitempty"`
	CreatedBy     *uuid.UUID     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// InvoiceItem maps to the invoice_items table. SourceRef names the order the
// line was charged for (e.g. "lab_test:<id>") and is unique when set.
type InvoiceItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InvoiceID   uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Amount      float64   `db:"amount" json:"amount"`
	SourceRef   *string   `db:"source_ref" json:"source_ref,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Payment maps to the payments table.
type Payment struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	InvoiceID  uuid.UUID  `db:"invoice_id" json:"invoice_id"`
	Amount     float64    `db:"amount" json:"amount"`
	Method     string     `db:"method" json:"method"`
	Reference  *string    `db:"reference" json:"reference,omitempty"`
	PaidAt     time.Time  `db:"paid_at" json:"paid_at"`
	ReceivedBy *uuid.UUID `db:"received_by" json:"received_by,omitempty"`
}

// Summary is the billing report for a date range.
type Summary struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	InvoiceCount  int            `json:"invoice_count"`
	Invoiced      float64        `json:"invoiced"`
	Collected     float64        `json:"collected"`
	Outstanding   float64        `json:"outstanding"`
	CountByStatus map[string]int `json:"count_by_status"`
}

type ItemRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Category    string  `json:"category" validate:"required,oneof=consultation laboratory radiology pharmacy blood_bank room procedure other"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	SourceRef   *string `json:"source_ref" validate:"omitempty,max=100"`
}

type InvoiceRequest struct {
	PatientID uuid.UUID     `json:"patient_id" validate:"required"`
	TaxRate   float64       `json:"tax_rate" validate:"gte=0,lte=1"`
	Discount  float64       `json:"discount" validate:"gte=0"`
	Notes     *string       `json:"notes" validate:"omitempty,max=2000"`
	Items     []ItemRequest `json:"items" validate:"omitempty,dive"`
}

// AdjustRequest changes the pricing terms of a draft.
type AdjustRequest struct {
	TaxRate  *float64 `json:"tax_rate" validate:"omitempty,gte=0,lte=1"`
	Discount *float64 `json:"discount" validate:"omitempty,gte=0"`
	Notes    *string  `json:"notes" validate:"omitempty,max=2000"`
}

type IssueRequest struct {
	DueDate *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type PaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required,oneof=cash card insurance bank_transfer"`
	Reference *string `json:"reference" validate:"omitempty,max=100"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type InvoiceFilter struct {
	PatientID *uuid.UUID
	Status    string
	From      *time.Time
	To        *time.Time
}
