package queue

import (
	"time"

	"github.com/google/uuid"
)

// Payloads shared between publishing and consuming modules. Types that
// implement Keyed get a partition key when exported to Kafka.

type Keyed interface {
	EventKey() string
}

// Charge asks billing to add a line to the patient's open draft invoice.
type Charge struct {
	PatientID   uuid.UUID `json:"patient_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	SourceRef   string    `json:"source_ref"`
}

func (e Charge) EventKey() string { return e.PatientID.String() }

type LabOrderCreated struct {
	TestID    uuid.UUID `json:"test_id"`
	PatientID uuid.UUID `json:"patient_id"`
	TestCode  string    `json:"test_code"`
	Priority  string    `json:"priority"`
	OrderedAt time.Time `json:"ordered_at"`
}

func (e LabOrderCreated) EventKey() string { return e.PatientID.String() }

type LabResult struct {
	TestID    uuid.UUID `json:"test_id"`
	PatientID uuid.UUID `json:"patient_id"`
	TestCode  string    `json:"test_code"`
	TestName  string    `json:"test_name"`
	Value     *float64  `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Flag      string    `json:"flag"`
	OrderedBy uuid.UUID `json:"ordered_by"`
}

func (e LabResult) EventKey() string { return e.PatientID.String() }

type RadiologyReport struct {
	TestID          uuid.UUID `json:"test_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Modality        string    `json:"modality"`
	AccessionNumber string    `json:"accession_number"`
	Impression      string    `json:"impression"`
}

func (e RadiologyReport) EventKey() string { return e.PatientID.String() }

type Dispensed struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	DispensedBy    string    `json:"dispensed_by"`
	Items          int       `json:"items"`
}

func (e Dispensed) EventKey() string { return e.PatientID.String() }

type LowStock struct {
	MedicationID  uuid.UUID `json:"medication_id"`
	Name          string    `json:"name"`
	Strength      string    `json:"strength"`
	StockQuantity int       `json:"stock_quantity"`
	ReorderLevel  int       `json:"reorder_level"`
}

func (e LowStock) EventKey() string { return e.MedicationID.String() }

type UnitIssued struct {
	UnitID     uuid.UUID `json:"unit_id"`
	UnitNumber string    `json:"unit_number"`
	PatientID  uuid.UUID `json:"patient_id"`
	BloodType  string    `json:"blood_type"`
	Component  string    `json:"component"`
}

func (e UnitIssued) EventKey() string { return e.PatientID.String() }

type LicenseExpiring struct {
	StaffID       uuid.UUID `json:"staff_id"`
	EmployeeID    string    `json:"employee_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	LicenseNumber string    `json:"license_number"`
	ExpiresOn     time.Time `json:"expires_on"`
}

func (e LicenseExpiring) EventKey() string { return e.StaffID.String() }

type AppointmentBooked struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Type          string    `json:"type"`
}

func (e AppointmentBooked) EventKey() string { return e.PatientID.String() }
