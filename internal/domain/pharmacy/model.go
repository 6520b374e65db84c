package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusDispensed = "dispensed"
	StatusCancelled = "cancelled"
)

var statusTransitions = map[string][]string{
	StatusPending:   {StatusDispensed, StatusCancelled},
	StatusDispensed: {},
	StatusCancelled: {},
}

// Medication maps to the medications table.
type Medication struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	GenericName          *string    `db:"generic_name" json:"generic_name,omitempty"`
	Form                 string     `db:"form" json:"form"`
	Strength             string     `db:"strength" json:"strength"`
	Manufacturer         *string    `db:"manufacturer" json:"manufacturer,omitempty"`
	Category             *string    `db:"category" json:"category,omitempty"`
	UnitPrice            float64    `db:"unit_price" json:"unit_price"`
	StockQuantity        int        `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel         int        `db:"reorder_level" json:"reorder_level"`
	BatchNumber          *string    `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate           *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	RequiresPrescription bool       `db:"requires_prescription" json:"requires_prescription"`
	IsControlled         bool       `db:"is_controlled" json:"is_controlled"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// LowOnStock reports whether stock has fallen to the reorder level.
func (m *Medication) LowOnStock() bool {
	return m.StockQuantity <= m.ReorderLevel
}

// Expired reports whether the batch in stock is past its expiry date.
func (m *Medication) Expired(now time.Time) bool {
	return m.ExpiryDate != nil && !m.ExpiryDate.After(now)
}

// Label is the name and strength shown on invoices and alerts.
func (m *Medication) Label() string {
	return m.Name + " " + m.Strength
}

// StockMovement maps to the stock_movements table. Every change to a
// medication's stock quantity leaves one row.
type StockMovement struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	Delta        int        `db:"delta" json:"delta"`
	Balance      int        `db:"balance" json:"balance"`
	Reason       string     `db:"reason" json:"reason"`
	CreatedBy    *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Prescription maps to the prescriptions table.
type Prescription struct {
	ID           uuid.UUID           `db:"id" json:"id"`
	PatientID    uuid.UUID           `db:"patient_id" json:"patient_id"`
	PrescribedBy uuid.UUID           `db:"prescribed_by" json:"prescribed_by"`
	Status       string              `db:"status" json:"status"`
	Notes        *string             `db:"notes" json:"notes,omitempty"`
	Items        []*PrescriptionItem `json:"items"`
	DispensedBy  *uuid.UUID          `db:"dispensed_by" json:"dispensed_by,omitempty"`
	DispensedAt  *time.Time          `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CancelReason *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem maps to the prescription_items table.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicationID   uuid.UUID `db:"medication_id" json:"medication_id"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	DurationDays   int       `db:"duration_days" json:"duration_days"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}

type MedicationRequest struct {
	Name                 string  `json:"name" validate:"required,max=200"`
	GenericName          *string `json:"generic_name" validate:"omitempty,max=200"`
	Form                 string  `json:"form" validate:"required,oneof=tablet capsule syrup injection ointment drops inhaler patch other"`
	Strength             string  `json:"strength" validate:"required,max=50"`
	Manufacturer         *string `json:"manufacturer" validate:"omitempty,max=200"`
	Category             *string `json:"category" validate:"omitempty,max=100"`
	UnitPrice            float64 `json:"unit_price" validate:"gte=0"`
	StockQuantity        int     `json:"stock_quantity" validate:"gte=0"`
	ReorderLevel         int     `json:"reorder_level" validate:"gte=0"`
	BatchNumber          *string `json:"batch_number" validate:"omitempty,max=50"`
	ExpiryDate           *string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	RequiresPrescription *bool   `json:"requires_prescription"`
	IsControlled         bool    `json:"is_controlled"`
	IsActive             *bool   `json:"is_active"`
}

type StockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type ItemRequest struct {
	MedicationID uuid.UUID `json:"medication_id" validate:"required"`
	Dosage       string    `json:"dosage" validate:"required,max=100"`
	Frequency    string    `json:"frequency" validate:"required,max=100"`
	DurationDays int       `json:"duration_days" validate:"required,min=1,max=365"`
	Quantity     int       `json:"quantity" validate:"required,min=1"`
	Instructions *string   `json:"instructions" validate:"omitempty,max=500"`
}

type PrescriptionRequest struct {
	PatientID uuid.UUID     `json:"patient_id" validate:"required"`
	Notes     *string       `json:"notes" validate:"omitempty,max=2000"`
	Items     []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type MedicationFilter struct {
	Query      string
	Category   string
	ActiveOnly bool
}

type PrescriptionFilter struct {
	PatientID *uuid.UUID
	Status    string
}
