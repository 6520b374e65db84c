package radiology

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOrdered    = "ORDERED"
	StatusScheduled  = "SCHEDULED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

var statusTransitions = map[string][]string{
	StatusOrdered:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

const (
	ModalityXRay        = "XRAY"
	ModalityCT          = "CT"
	ModalityMRI         = "MRI"
	ModalityUltrasound  = "ULTRASOUND"
	ModalityMammography = "MAMMOGRAPHY"
	ModalityFluoroscopy = "FLUOROSCOPY"
	ModalityPET         = "PET"
)

// modalityPrices is the charge raised when a study is reported.
var modalityPrices = map[string]float64{
	ModalityXRay:        45.00,
	ModalityCT:          320.00,
	ModalityMRI:         650.00,
	ModalityUltrasound:  120.00,
	ModalityMammography: 150.00,
	ModalityFluoroscopy: 210.00,
	ModalityPET:         1200.00,
}

// dicomModality maps modalities to DICOM (0008,0060) codes.
var dicomModality = map[string]string{
	ModalityXRay:        "CR",
	ModalityCT:          "CT",
	ModalityMRI:         "MR",
	ModalityUltrasound:  "US",
	ModalityMammography: "MG",
	ModalityFluoroscopy: "RF",
	ModalityPET:         "PT",
}

func allowsContrast(modality string) bool {
	return modality == ModalityCT || modality == ModalityMRI || modality == ModalityFluoroscopy
}

// RadiologyTest maps to the radiology_tests table.
type RadiologyTest struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	OrderedBy          uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	Modality           string     `db:"modality" json:"modality"`
	BodyPart           string     `db:"body_part" json:"body_part"`
	ClinicalIndication *string    `db:"clinical_indication" json:"clinical_indication,omitempty"`
	Priority           string     `db:"priority" json:"priority"`
	Status             string     `db:"status" json:"status"`
	ScheduledAt        *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PerformedBy        *uuid.UUID `db:"performed_by" json:"performed_by,omitempty"`
	StartedAt          *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	AccessionNumber    *string    `db:"accession_number" json:"accession_number,omitempty"`
	StudyInstanceUID   *string    `db:"study_instance_uid" json:"study_instance_uid,omitempty"`
	ContrastUsed       bool       `db:"contrast_used" json:"contrast_used"`
	Findings           *string    `db:"findings" json:"findings,omitempty"`
	Impression         *string    `db:"impression" json:"impression,omitempty"`
	ReportedBy         *uuid.UUID `db:"reported_by" json:"reported_by,omitempty"`
	ReportedAt         *time.Time `db:"reported_at" json:"reported_at,omitempty"`
	CancelReason       *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type OrderRequest struct {
	PatientID          uuid.UUID `json:"patient_id" validate:"required"`
	Modality           string    `json:"modality" validate:"required,oneof=XRAY CT MRI ULTRASOUND MAMMOGRAPHY FLUOROSCOPY PET"`
	BodyPart           string    `json:"body_part" validate:"required,max=100"`
	ClinicalIndication *string   `json:"clinical_indication" validate:"omitempty,max=2000"`
	Priority           string    `json:"priority" validate:"omitempty,oneof=routine urgent stat"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type StartRequest struct {
	ContrastUsed bool `json:"contrast_used"`
}

type ReportRequest struct {
	Findings   string `json:"findings" validate:"required,max=10000"`
	Impression string `json:"impression" validate:"required,max=4000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ListFilter struct {
	PatientID *uuid.UUID
	Modality  string
	Status    string
}

// PatientInfo is the demographic subset used for DICOM headers.
type PatientInfo struct {
	MRN         string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
}
