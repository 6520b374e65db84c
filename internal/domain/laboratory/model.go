package laboratory

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOrdered         = "ORDERED"
	StatusSampleCollected = "SAMPLE_COLLECTED"
	StatusInProgress      = "IN_PROGRESS"
	StatusCompleted       = "COMPLETED"
	StatusCancelled       = "CANCELLED"
)

// statusTransitions maps each lab test status to the statuses it may move to.
var statusTransitions = map[string][]string{
	StatusOrdered:         {StatusSampleCollected, StatusCancelled},
	StatusSampleCollected: {StatusInProgress, StatusCancelled},
	StatusInProgress:      {StatusCompleted},
	StatusCompleted:       {},
	StatusCancelled:       {},
}

const (
	FlagNormal       = "normal"
	FlagLow          = "low"
	FlagHigh         = "high"
	FlagCriticalLow  = "critical_low"
	FlagCriticalHigh = "critical_high"
	FlagAbnormal     = "abnormal"
)

// SampleBarcodePrefix prefixes every specimen barcode.
const SampleBarcodePrefix = "LAB"

// CatalogEntry maps to the lab_test_catalog table.
type CatalogEntry struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	Category        string    `db:"category" json:"category"`
	SpecimenType    string    `db:"specimen_type" json:"specimen_type"`
	Unit            *string   `db:"unit" json:"unit,omitempty"`
	ReferenceLow    *float64  `db:"reference_low" json:"reference_low,omitempty"`
	ReferenceHigh   *float64  `db:"reference_high" json:"reference_high,omitempty"`
	CriticalLow     *float64  `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh    *float64  `db:"critical_high" json:"critical_high,omitempty"`
	Price           float64   `db:"price" json:"price"`
	TurnaroundHours int       `db:"turnaround_hours" json:"turnaround_hours"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ReferenceRange renders the reference interval as "low-high".
func (c *CatalogEntry) ReferenceRange() *string {
	var s string
	switch {
	case c.ReferenceLow != nil && c.ReferenceHigh != nil:
		s = formatFloat(*c.ReferenceLow) + "-" + formatFloat(*c.ReferenceHigh)
	case c.ReferenceLow != nil:
		s = ">=" + formatFloat(*c.ReferenceLow)
	case c.ReferenceHigh != nil:
		s = "<=" + formatFloat(*c.ReferenceHigh)
	default:
		return nil
	}
	return &s
}

// LabTest maps to the lab_tests table.
type LabTest struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	CatalogID         uuid.UUID  `db:"catalog_id" json:"catalog_id"`
	TestCode          string     `db:"test_code" json:"test_code"`
	TestName          string     `db:"test_name" json:"test_name"`
	OrderedBy         uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	Priority          string     `db:"priority" json:"priority"`
	Status            string     `db:"status" json:"status"`
	ClinicalNotes     *string    `db:"clinical_notes" json:"clinical_notes,omitempty"`
	SampleBarcode     *string    `db:"sample_barcode" json:"sample_barcode,omitempty"`
	SampleCollectedAt *time.Time `db:"sample_collected_at" json:"sample_collected_at,omitempty"`
	CollectedBy       *uuid.UUID `db:"collected_by" json:"collected_by,omitempty"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ResultValue       *float64   `db:"result_value" json:"result_value,omitempty"`
	ResultText        *string    `db:"result_text" json:"result_text,omitempty"`
	Unit              *string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange    *string    `db:"reference_range" json:"reference_range,omitempty"`
	Flag              *string    `db:"flag" json:"flag,omitempty"`
	VerifiedBy        *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	LISOrderID        *string    `db:"lis_order_id" json:"lis_order_id,omitempty"`
	CancelReason      *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// QCRecord maps to the lab_qc_records table.
type QCRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	InstrumentID  string    `db:"instrument_id" json:"instrument_id"`
	TestCode      string    `db:"test_code" json:"test_code"`
	ControlLevel  string    `db:"control_level" json:"control_level"`
	MeasuredValue float64   `db:"measured_value" json:"measured_value"`
	TargetMean    float64   `db:"target_mean" json:"target_mean"`
	TargetSD      float64   `db:"target_sd" json:"target_sd"`
	ZScore        float64   `db:"z_score" json:"z_score"`
	Status        string    `db:"status" json:"status"`
	Rule          *string   `db:"rule" json:"rule,omitempty"`
	PerformedBy   uuid.UUID `db:"performed_by" json:"performed_by"`
	PerformedAt   time.Time `db:"performed_at" json:"performed_at"`
}

type CatalogRequest struct {
	Code            string   `json:"code" validate:"required,max=20"`
	Name            string   `json:"name" validate:"required,max=200"`
	Category        string   `json:"category" validate:"required,oneof=hematology biochemistry microbiology immunology urinalysis pathology other"`
	SpecimenType    string   `json:"specimen_type" validate:"required,oneof=blood serum plasma urine stool csf swab tissue other"`
	Unit            *string  `json:"unit" validate:"omitempty,max=30"`
	ReferenceLow    *float64 `json:"reference_low"`
	ReferenceHigh   *float64 `json:"reference_high"`
	CriticalLow     *float64 `json:"critical_low"`
	CriticalHigh    *float64 `json:"critical_high"`
	Price           float64  `json:"price" validate:"gte=0"`
	TurnaroundHours int      `json:"turnaround_hours" validate:"omitempty,min=1,max=720"`
	IsActive        *bool    `json:"is_active"`
}

type OrderRequest struct {
	PatientID     uuid.UUID `json:"patient_id" validate:"required"`
	CatalogID     uuid.UUID `json:"catalog_id" validate:"required"`
	Priority      string    `json:"priority" validate:"omitempty,oneof=routine urgent stat"`
	ClinicalNotes *string   `json:"clinical_notes" validate:"omitempty,max=2000"`
}

type ResultRequest struct {
	Value      *float64 `json:"value"`
	Text       *string  `json:"text" validate:"omitempty,max=4000"`
	IsAbnormal bool     `json:"is_abnormal"`
	Notes      *string  `json:"notes" validate:"omitempty,max=2000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type QCRequest struct {
	InstrumentID  string  `json:"instrument_id" validate:"required,max=50"`
	TestCode      string  `json:"test_code" validate:"required,max=20"`
	ControlLevel  string  `json:"control_level" validate:"required,oneof=low normal high"`
	MeasuredValue float64 `json:"measured_value"`
	TargetMean    float64 `json:"target_mean"`
	TargetSD      float64 `json:"target_sd" validate:"gt=0"`
}

type TestFilter struct {
	PatientID *uuid.UUID
	Status    string
	Priority  string
}

type QCFilter struct {
	InstrumentID string
	TestCode     string
}
