package medicalrecords

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MedicalRecord maps to the medical_records table. One row per clinical visit.
type MedicalRecord struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	VisitDate      time.Time  `db:"visit_date" json:"visit_date"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint"`
	Diagnosis      string     `db:"diagnosis" json:"diagnosis"`
	ICD10Code      *string    `db:"icd10_code" json:"icd10_code,omitempty"`
	TreatmentPlan  *string    `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Vitals         *Vitals    `db:"vitals" json:"vitals,omitempty"`
	FollowUpDate   *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	IsConfidential bool       `db:"is_confidential" json:"is_confidential"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy      *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Vitals is stored as JSONB.
type Vitals struct {
	BloodPressureSys *int     `json:"blood_pressure_sys,omitempty" validate:"omitempty,min=40,max=300"`
	BloodPressureDia *int     `json:"blood_pressure_dia,omitempty" validate:"omitempty,min=20,max=200"`
	HeartRate        *int     `json:"heart_rate,omitempty" validate:"omitempty,min=20,max=250"`
	Temperature      *float64 `json:"temperature,omitempty" validate:"omitempty,min=30,max=45"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty" validate:"omitempty,min=4,max=80"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty" validate:"omitempty,min=50,max=100"`
	WeightKg         *float64 `json:"weight_kg,omitempty" validate:"omitempty,gt=0,max=500"`
	HeightCm         *float64 `json:"height_cm,omitempty" validate:"omitempty,gt=0,max=300"`
	BMI              *float64 `json:"bmi,omitempty"`
}

// computeBMI fills BMI from weight and height, rounded to one decimal.
func (v *Vitals) computeBMI() {
	v.BMI = nil
	if v.WeightKg == nil || v.HeightCm == nil || *v.HeightCm <= 0 {
		return
	}
	m := *v.HeightCm / 100
	bmi := math.Round(*v.WeightKg/(m*m)*10) / 10
	v.BMI = &bmi
}

type RecordRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" validate:"required"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	AppointmentID  *uuid.UUID `json:"appointment_id"`
	VisitDate      string     `json:"visit_date" validate:"required,datetime=2006-01-02"`
	ChiefComplaint string     `json:"chief_complaint" validate:"required,max=1000"`
	Diagnosis      string     `json:"diagnosis" validate:"required,max=2000"`
	ICD10Code      *string    `json:"icd10_code" validate:"omitempty,icd10"`
	TreatmentPlan  *string    `json:"treatment_plan" validate:"omitempty,max=4000"`
	Vitals         *Vitals    `json:"vitals"`
	FollowUpDate   *string    `json:"follow_up_date" validate:"omitempty,datetime=2006-01-02"`
	IsConfidential bool       `json:"is_confidential"`
	Notes          *string    `json:"notes" validate:"omitempty,max=4000"`
}

type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	// IncludeConfidential is false for viewers who may not see confidential records.
	IncludeConfidential bool
	From                *time.Time
	To                  *time.Time
}

// Viewer is the caller a record is read on behalf of.
type Viewer struct {
	ID    uuid.UUID
	Roles []string
}
