package bloodbank

import (
	"time"

	"github.com/google/uuid"
)

// UnitBarcodePrefix prefixes every blood unit number.
const UnitBarcodePrefix = "BU"

const (
	ComponentWholeBlood      = "whole_blood"
	ComponentPackedRBC       = "packed_rbc"
	ComponentPlasma          = "plasma"
	ComponentPlatelets       = "platelets"
	ComponentCryoprecipitate = "cryoprecipitate"
)

// ShelfLife is how long each component keeps from collection.
var ShelfLife = map[string]time.Duration{
	ComponentWholeBlood:      35 * 24 * time.Hour,
	ComponentPackedRBC:       42 * 24 * time.Hour,
	ComponentPlasma:          365 * 24 * time.Hour,
	ComponentPlatelets:       5 * 24 * time.Hour,
	ComponentCryoprecipitate: 365 * 24 * time.Hour,
}

// componentVolumeML is the nominal volume of a separated component.
var componentVolumeML = map[string]int{
	ComponentPackedRBC:       250,
	ComponentPlasma:          200,
	ComponentPlatelets:       50,
	ComponentCryoprecipitate: 15,
}

// componentPrices is the charge raised when a unit is issued.
var componentPrices = map[string]float64{
	ComponentWholeBlood:      180.00,
	ComponentPackedRBC:       220.00,
	ComponentPlasma:          150.00,
	ComponentPlatelets:       400.00,
	ComponentCryoprecipitate: 120.00,
}

const (
	DonorActive   = "active"
	DonorDeferred = "deferred"
	DonorInactive = "inactive"
)

const (
	DonationCollected = "collected"
	DonationTested    = "tested"
	DonationApproved  = "approved"
	DonationRejected  = "rejected"
)

var donationTransitions = map[string][]string{
	DonationCollected: {DonationTested, DonationRejected},
	DonationTested:    {DonationApproved, DonationRejected},
	DonationApproved:  {},
	DonationRejected:  {},
}

const (
	UnitAvailable = "available"
	UnitReserved  = "reserved"
	UnitIssued    = "issued"
	UnitExpired   = "expired"
	UnitDiscarded = "discarded"
)

var unitTransitions = map[string][]string{
	UnitAvailable: {UnitReserved, UnitIssued, UnitExpired, UnitDiscarded},
	UnitReserved:  {UnitAvailable, UnitIssued, UnitExpired, UnitDiscarded},
	UnitIssued:    {},
	UnitExpired:   {},
	UnitDiscarded: {},
}

const (
	RequestPending            = "pending"
	RequestPartiallyFulfilled = "partially_fulfilled"
	RequestFulfilled          = "fulfilled"
	RequestCancelled          = "cancelled"
)

// Donor maps to the blood_donors table.
type Donor struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	DateOfBirth    time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Gender         string     `db:"gender" json:"gender"`
	BloodType      string     `db:"blood_type" json:"blood_type"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Email          *string    `db:"email" json:"email,omitempty"`
	WeightKg       float64    `db:"weight_kg" json:"weight_kg"`
	LastDonationAt *time.Time `db:"last_donation_at" json:"last_donation_at,omitempty"`
	DeferredUntil  *time.Time `db:"deferred_until" json:"deferred_until,omitempty"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Donation maps to the blood_donations table.
type Donation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	DonorID       uuid.UUID  `db:"donor_id" json:"donor_id"`
	DonatedAt     time.Time  `db:"donated_at" json:"donated_at"`
	VolumeML      int        `db:"volume_ml" json:"volume_ml"`
	HemoglobinGDL float64    `db:"hemoglobin_gdl" json:"hemoglobin_gdl"`
	Status        string     `db:"status" json:"status"`
	UnitID        *uuid.UUID `db:"unit_id" json:"unit_id,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Unit maps to the blood_units table.
type Unit struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UnitNumber        string     `db:"unit_number" json:"unit_number"`
	DonationID        *uuid.UUID `db:"donation_id" json:"donation_id,omitempty"`
	ParentUnitID      *uuid.UUID `db:"parent_unit_id" json:"parent_unit_id,omitempty"`
	BloodType         string     `db:"blood_type" json:"blood_type"`
	Component         string     `db:"component" json:"component"`
	VolumeML          int        `db:"volume_ml" json:"volume_ml"`
	CollectedAt       time.Time  `db:"collected_at" json:"collected_at"`
	ExpiresAt         time.Time  `db:"expires_at" json:"expires_at"`
	Status            string     `db:"status" json:"status"`
	IssuedToPatientID *uuid.UUID `db:"issued_to_patient_id" json:"issued_to_patient_id,omitempty"`
	IssuedAt          *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	RequestID         *uuid.UUID `db:"request_id" json:"request_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Request maps to the blood_requests table.
type Request struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	BloodType      string    `db:"blood_type" json:"blood_type"`
	Component      string    `db:"component" json:"component"`
	UnitsRequested int       `db:"units_requested" json:"units_requested"`
	UnitsIssued    int       `db:"units_issued" json:"units_issued"`
	Urgency        string    `db:"urgency" json:"urgency"`
	Status         string    `db:"status" json:"status"`
	RequestedBy    uuid.UUID `db:"requested_by" json:"requested_by"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (r *Request) Open() bool {
	return r.Status == RequestPending || r.Status == RequestPartiallyFulfilled
}

// Eligibility is the result of a donor screening.
type Eligibility struct {
	Eligible         bool       `json:"eligible"`
	Reasons          []string   `json:"reasons"`
	NextEligibleDate *time.Time `json:"next_eligible_date,omitempty"`
}

// InventoryLine counts usable units of one blood type and component.
type InventoryLine struct {
	BloodType string `json:"blood_type"`
	Component string `json:"component"`
	Units     int    `json:"units"`
}

type DonorRequest struct {
	FirstName     string  `json:"first_name" validate:"required,max=100"`
	LastName      string  `json:"last_name" validate:"required,max=100"`
	DateOfBirth   string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender        string  `json:"gender" validate:"required,oneof=male female other"`
	BloodType     string  `json:"blood_type" validate:"required,bloodtype"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	Email         *string `json:"email" validate:"omitempty,email"`
	WeightKg      float64 `json:"weight_kg" validate:"required,gt=0,lt=400"`
	DeferredUntil *string `json:"deferred_until" validate:"omitempty,datetime=2006-01-02"`
	Status        *string `json:"status" validate:"omitempty,oneof=active deferred inactive"`
}

type DonationRequest struct {
	DonorID       uuid.UUID `json:"donor_id" validate:"required"`
	VolumeML      int       `json:"volume_ml" validate:"omitempty,min=200,max=550"`
	HemoglobinGDL float64   `json:"hemoglobin_gdl" validate:"required,gt=0,lt=25"`
	WeightKg      *float64  `json:"weight_kg" validate:"omitempty,gt=0,lt=400"`
	Notes         *string   `json:"notes" validate:"omitempty,max=1000"`
}

type DonationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=tested approved rejected"`
}

type ComponentsRequest struct {
	Components []string `json:"components" validate:"required,min=1,dive,oneof=packed_rbc plasma platelets cryoprecipitate"`
}

type UnitStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available reserved expired discarded"`
}

type BloodRequestRequest struct {
	PatientID      uuid.UUID `json:"patient_id" validate:"required"`
	BloodType      string    `json:"blood_type" validate:"required,bloodtype"`
	Component      string    `json:"component" validate:"required,oneof=whole_blood packed_rbc plasma platelets cryoprecipitate"`
	UnitsRequested int       `json:"units_requested" validate:"required,min=1,max=20"`
	Urgency        string    `json:"urgency" validate:"omitempty,oneof=routine urgent emergency"`
	Reason         *string   `json:"reason" validate:"omitempty,max=1000"`
}

type IssueRequest struct {
	PatientID uuid.UUID  `json:"patient_id" validate:"required"`
	RequestID *uuid.UUID `json:"request_id"`
}

type DonorFilter struct {
	BloodType string
	Status    string
	Query     string
}

type UnitFilter struct {
	BloodType string
	Component string
	Status    string
}

type RequestFilter struct {
	PatientID *uuid.UUID
	Status    string
}
