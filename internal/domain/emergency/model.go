package emergency

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusWaiting              = "waiting"
	StatusTriaged              = "triaged"
	StatusInTreatment          = "in_treatment"
	StatusAdmitted             = "admitted"
	StatusDischarged           = "discharged"
	StatusTransferred          = "transferred"
	StatusLeftWithoutBeingSeen = "left_without_being_seen"
)

var statusTransitions = map[string][]string{
	StatusWaiting:     {StatusTriaged, StatusLeftWithoutBeingSeen},
	StatusTriaged:     {StatusInTreatment, StatusLeftWithoutBeingSeen},
	StatusInTreatment: {StatusAdmitted, StatusDischarged, StatusTransferred},
}

// OpenStatuses are the statuses shown on the department board.
var OpenStatuses = []string{StatusWaiting, StatusTriaged, StatusInTreatment}

// EmergencyCase maps to the emergency_cases table.
type EmergencyCase struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	ArrivalAt        time.Time  `db:"arrival_at" json:"arrival_at"`
	ArrivalMode      string     `db:"arrival_mode" json:"arrival_mode"`
	ChiefComplaint   string     `db:"chief_complaint" json:"chief_complaint"`
	TriageLevel      *int       `db:"triage_level" json:"triage_level,omitempty"`
	TriagedAt        *time.Time `db:"triaged_at" json:"triaged_at,omitempty"`
	TriagedBy        *uuid.UUID `db:"triaged_by" json:"triaged_by,omitempty"`
	HeartRate        *int       `db:"heart_rate" json:"heart_rate,omitempty"`
	BloodPressureSys *int       `db:"blood_pressure_sys" json:"blood_pressure_sys,omitempty"`
	BloodPressureDia *int       `db:"blood_pressure_dia" json:"blood_pressure_dia,omitempty"`
	Temperature      *float64   `db:"temperature" json:"temperature,omitempty"`
	RespiratoryRate  *int       `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	OxygenSaturation *int       `db:"oxygen_saturation" json:"oxygen_saturation,omitempty"`
	PainScale        *int       `db:"pain_scale" json:"pain_scale,omitempty"`
	Status           string     `db:"status" json:"status"`
	AttendingID      *uuid.UUID `db:"attending_id" json:"attending_id,omitempty"`
	Bed              *string    `db:"bed" json:"bed,omitempty"`
	Disposition      *string    `db:"disposition" json:"disposition,omitempty"`
	DischargedAt     *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	LengthOfStayMins *int       `db:"length_of_stay_mins" json:"length_of_stay_mins,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy        *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the case is still in the department.
func (c *EmergencyCase) Open() bool {
	for _, s := range OpenStatuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

// StatusHistory maps to the emergency_status_history table.
type StatusHistory struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CaseID     uuid.UUID  `db:"case_id" json:"case_id"`
	FromStatus *string    `db:"from_status" json:"from_status,omitempty"`
	Status     string     `db:"status" json:"status"`
	ChangedAt  time.Time  `db:"changed_at" json:"changed_at"`
	ChangedBy  *uuid.UUID `db:"changed_by" json:"changed_by,omitempty"`
	Note       *string    `db:"note" json:"note,omitempty"`
}

type RegisterRequest struct {
	PatientID      uuid.UUID `json:"patient_id" validate:"required"`
	ArrivalMode    string    `json:"arrival_mode" validate:"required,oneof=walk_in ambulance police transfer"`
	ChiefComplaint string    `json:"chief_complaint" validate:"required,max=500"`
	Notes          *string   `json:"notes" validate:"omitempty,max=2000"`
}

// TriageRequest carries an ESI level and the vitals taken at triage.
type TriageRequest struct {
	TriageLevel      int      `json:"triage_level" validate:"required,min=1,max=5"`
	HeartRate        *int     `json:"heart_rate" validate:"omitempty,min=20,max=250"`
	BloodPressureSys *int     `json:"blood_pressure_sys" validate:"omitempty,min=40,max=300"`
	BloodPressureDia *int     `json:"blood_pressure_dia" validate:"omitempty,min=20,max=200"`
	Temperature      *float64 `json:"temperature" validate:"omitempty,min=30,max=45"`
	RespiratoryRate  *int     `json:"respiratory_rate" validate:"omitempty,min=4,max=80"`
	OxygenSaturation *int     `json:"oxygen_saturation" validate:"omitempty,min=50,max=100"`
	PainScale        *int     `json:"pain_scale" validate:"omitempty,min=0,max=10"`
	Notes            *string  `json:"notes" validate:"omitempty,max=2000"`
}

type TreatRequest struct {
	AttendingID uuid.UUID `json:"attending_id" validate:"required"`
	Bed         *string   `json:"bed" validate:"omitempty,max=20"`
}

type DispositionRequest struct {
	Status      string `json:"status" validate:"required,oneof=admitted discharged transferred"`
	Disposition string `json:"disposition" validate:"required,max=1000"`
}

type LeftRequest struct {
	Note *string `json:"note" validate:"omitempty,max=1000"`
}

type CaseFilter struct {
	PatientID *uuid.UUID
	Status    string
}
