package medicalrecords

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

const dateLayout = "2006-01-02"

type Service struct {
	repo         Repository
	patients     Patients
	clinicians   Clinicians
	appointments Appointments
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, patients Patients, clinicians Clinicians, appointments Appointments, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		patients:     patients,
		clinicians:   clinicians,
		appointments: appointments,
		logger:       logger,
		now:          time.Now,
	}
}

// canSeeConfidential reports whether the viewer may read confidential records.
func canSeeConfidential(v Viewer) bool {
	for _, r := range v.Roles {
		if r == auth.RoleDoctor || r == auth.RoleAdmin {
			return true
		}
	}
	return false
}

func hasRole(v Viewer, role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// apply validates req and copies it onto rec. The patient is set by the caller.
func (s *Service) apply(ctx context.Context, v Viewer, rec *MedicalRecord, req RecordRequest) error {
	visit, err := time.Parse(dateLayout, req.VisitDate)
	if err != nil {
		return apperr.Invalid("visit_date must be a date in YYYY-MM-DD format")
	}
	if visit.After(s.now().UTC()) {
		return apperr.Invalid("visit_date cannot be in the future")
	}
	var followUp *time.Time
	if req.FollowUpDate != nil {
		fu, err := time.Parse(dateLayout, *req.FollowUpDate)
		if err != nil {
			return apperr.Invalid("follow_up_date must be a date in YYYY-MM-DD format")
		}
		if !fu.After(visit) {
			return apperr.Invalid("follow_up_date must be after visit_date")
		}
		followUp = &fu
	}
	var code *string
	if req.ICD10Code != nil && *req.ICD10Code != "" {
		c := strings.ToUpper(strings.TrimSpace(*req.ICD10Code))
		if !validate.ValidICD10(c) {
			return apperr.Invalid("icd10_code must be a valid ICD-10 code")
		}
		code = &c
	}
	complaint := strings.TrimSpace(req.ChiefComplaint)
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if complaint == "" {
		return apperr.Invalid("chief_complaint is required")
	}
	if diagnosis == "" {
		return apperr.Invalid("diagnosis is required")
	}

	var doctorID uuid.UUID
	switch {
	case req.DoctorID != nil:
		doctorID = *req.DoctorID
	case rec.DoctorID != uuid.Nil:
		doctorID = rec.DoctorID
	case hasRole(v, auth.RoleDoctor):
		doctorID = v.ID
	default:
		return apperr.Invalid("doctor_id is required")
	}
	if doctorID != rec.DoctorID {
		if err := s.clinicians.ActiveClinician(ctx, doctorID); err != nil {
			return err
		}
	}

	if req.AppointmentID != nil {
		owner, err := s.appointments.PatientOf(ctx, *req.AppointmentID)
		if err != nil {
			return err
		}
		if owner != rec.PatientID {
			return apperr.Invalid("appointment %s belongs to another patient", *req.AppointmentID)
		}
	}
	if req.Vitals != nil {
		if req.Vitals.BloodPressureSys != nil && req.Vitals.BloodPressureDia != nil &&
			*req.Vitals.BloodPressureSys <= *req.Vitals.BloodPressureDia {
			return apperr.Invalid("blood_pressure_sys must be greater than blood_pressure_dia")
		}
		req.Vitals.computeBMI()
	}

	rec.DoctorID = doctorID
	rec.AppointmentID = req.AppointmentID
	rec.VisitDate = visit
	rec.ChiefComplaint = complaint
	rec.Diagnosis = diagnosis
	rec.ICD10Code = code
	rec.TreatmentPlan = req.TreatmentPlan
	rec.Vitals = req.Vitals
	rec.FollowUpDate = followUp
	rec.IsConfidential = req.IsConfidential
	rec.Notes = req.Notes
	return nil
}

func (s *Service) CreateRecord(ctx context.Context, v Viewer, req RecordRequest) (*MedicalRecord, error) {
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	rec := &MedicalRecord{PatientID: req.PatientID, CreatedBy: &v.ID}
	if err := s.apply(ctx, v, rec, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", rec.ID.String()).Bool("confidential", rec.IsConfidential).Msg("medical record created")
	return rec, nil
}

// GetRecord returns a record if the viewer is allowed to see it.
func (s *Service) GetRecord(ctx context.Context, v Viewer, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsConfidential && !canSeeConfidential(v) {
		return nil, apperr.Forbidden("medical record is confidential")
	}
	return rec, nil
}

// ListRecords hides confidential records from viewers who may not read them.
func (s *Service) ListRecords(ctx context.Context, v Viewer, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apperr.Invalid("to must not be before from")
	}
	f.IncludeConfidential = canSeeConfidential(v)
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) UpdateRecord(ctx context.Context, v Viewer, id uuid.UUID, req RecordRequest) (*MedicalRecord, error) {
	rec, err := s.GetRecord(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != rec.PatientID {
		return nil, apperr.Invalid("patient_id cannot be changed")
	}
	if err := s.apply(ctx, v, rec, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("record_id", id.String()).Msg("medical record deleted")
	return nil
}
