package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/jashmhta/HMSSSS-sub000/internal/domain/appointments"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/patients"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/radiology"
	"github.com/jashmhta/HMSSSS-sub000/internal/domain/staff"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
)

// The adapters below let domain packages depend on small consumer-side
// interfaces instead of importing each other.

type patientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
	Exists(ctx context.Context, id uuid.UUID) error
}

// patientDirectory serves patient lookups to every clinical domain.
type patientDirectory struct {
	patients patientLookup
}

func (d patientDirectory) Exists(ctx context.Context, id uuid.UUID) error {
	return d.patients.Exists(ctx, id)
}

// Info returns the demographics written into DICOM headers.
func (d patientDirectory) Info(ctx context.Context, id uuid.UUID) (*radiology.PatientInfo, error) {
	p, err := d.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &radiology.PatientInfo{
		MRN:         p.MRN,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
		Gender:      p.Gender,
	}, nil
}

// BloodType returns the recorded ABO/Rh type or "" when unknown.
func (d patientDirectory) BloodType(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := d.patients.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.BloodType == nil {
		return "", nil
	}
	return *p.BloodType, nil
}

type memberLookup interface {
	GetMember(ctx context.Context, id uuid.UUID) (*staff.Member, error)
}

// staffDirectory resolves staff members for scheduling and clinical work.
type staffDirectory struct {
	members memberLookup
}

func (d staffDirectory) Clinician(ctx context.Context, id uuid.UUID) (*appointments.Clinician, error) {
	m, err := d.members.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	return &appointments.Clinician{
		ID:     m.ID,
		Name:   m.FullName(),
		Role:   m.Role,
		Active: m.Status == staff.StatusActive,
	}, nil
}

// ActiveClinician accepts active doctors and nurses.
func (d staffDirectory) ActiveClinician(ctx context.Context, id uuid.UUID) error {
	m, err := d.members.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m.Role != auth.RoleDoctor && m.Role != auth.RoleNurse {
		return apperr.Invalid("staff member %s is not a doctor or nurse", m.FullName())
	}
	if m.Status != staff.StatusActive {
		return apperr.Invalid("staff member %s is %s", m.FullName(), m.Status)
	}
	return nil
}

type appointmentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

type appointmentDirectory struct {
	appointments appointmentLookup
}

func (d appointmentDirectory) PatientOf(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	appt, err := d.appointments.Get(ctx, appointmentID)
	if err != nil {
		return uuid.Nil, err
	}
	return appt.PatientID, nil
}
