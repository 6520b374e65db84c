package radiology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

const accessionAttempts = 5

type Service struct {
	repo     Repository
	patients Patients
	events   queue.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients Patients, events queue.Publisher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, events: events, logger: logger, now: time.Now}
}

func canTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(t *RadiologyTest, to string) error {
	if !canTransition(t.Status, to) {
		return apperr.Invalid("invalid status transition from %s to %s", t.Status, to)
	}
	t.Status = to
	return nil
}

func (s *Service) Order(ctx context.Context, orderedBy uuid.UUID, req OrderRequest) (*RadiologyTest, error) {
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	t := &RadiologyTest{
		PatientID:          req.PatientID,
		OrderedBy:          orderedBy,
		Modality:           req.Modality,
		BodyPart:           strings.TrimSpace(req.BodyPart),
		ClinicalIndication: req.ClinicalIndication,
		Priority:           req.Priority,
		Status:             StatusOrdered,
	}
	if t.Priority == "" {
		t.Priority = "routine"
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*RadiologyTest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*RadiologyTest, int, error) {
	if f.Status != "" {
		if _, ok := statusTransitions[f.Status]; !ok {
			return nil, 0, apperr.Invalid("unknown status %q", f.Status)
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Schedule(ctx context.Context, id uuid.UUID, at time.Time) (*RadiologyTest, error) {
	if !at.After(s.now()) {
		return nil, apperr.Invalid("scheduled_at must be in the future")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusScheduled); err != nil {
		return nil, err
	}
	at = at.UTC()
	t.ScheduledAt = &at
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Start begins acquisition and assigns the accession number and study UID.
func (s *Service) Start(ctx context.Context, id, performedBy uuid.UUID, contrast bool) (*RadiologyTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contrast && !allowsContrast(t.Modality) {
		return nil, apperr.Invalid("contrast is not allowed for %s studies", t.Modality)
	}
	if err := transition(t, StatusInProgress); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	uid := NewStudyInstanceUID()
	t.StartedAt = &now
	t.PerformedBy = &performedBy
	t.ContrastUsed = contrast
	t.StudyInstanceUID = &uid

	for attempt := 0; attempt < accessionAttempts; attempt++ {
		acc, err := NewAccessionNumber(now)
		if err != nil {
			return nil, err
		}
		t.AccessionNumber = &acc
		err = s.repo.Update(ctx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, errDuplicateAccession) {
			return nil, err
		}
	}
	return nil, apperr.Conflict("could not allocate a unique accession number")
}

// Complete records the report and publishes it with the study charge.
func (s *Service) Complete(ctx context.Context, id, radiologistID uuid.UUID, req ReportRequest) (*RadiologyTest, error) {
	findings, impression := strings.TrimSpace(req.Findings), strings.TrimSpace(req.Impression)
	if findings == "" || impression == "" {
		return nil, apperr.Invalid("findings and impression are required")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusCompleted); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t.Findings = &findings
	t.Impression = &impression
	t.ReportedBy = &radiologistID
	t.ReportedAt = &now
	t.CompletedAt = &now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	report := queue.RadiologyReport{
		TestID:          t.ID,
		PatientID:       t.PatientID,
		Modality:        t.Modality,
		AccessionNumber: deref(t.AccessionNumber),
		Impression:      impression,
	}
	if err := s.events.Publish(ctx, queue.TopicRadiologyReportCompleted, report); err != nil {
		s.logger.Error().Err(err).Str("test_id", t.ID.String()).Msg("publish radiology report failed")
	}
	charge := queue.Charge{
		PatientID:   t.PatientID,
		Category:    "radiology",
		Description: fmt.Sprintf("%s %s", t.Modality, t.BodyPart),
		Quantity:    1,
		UnitPrice:   modalityPrices[t.Modality],
		SourceRef:   "radiology_test:" + t.ID.String(),
	}
	if t.ContrastUsed {
		charge.Description += " with contrast"
	}
	if err := s.events.Publish(ctx, queue.TopicBillingCharge, charge); err != nil {
		s.logger.Error().Err(err).Str("test_id", t.ID.String()).Msg("publish radiology charge failed")
	}
	return t, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*RadiologyTest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Invalid("cancellation reason is required")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusCancelled); err != nil {
		return nil, err
	}
	t.CancelReason = &reason
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DICOM returns mocked study metadata for a started or completed study.
func (s *Service) DICOM(ctx context.Context, id uuid.UUID) (Study, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInProgress && t.Status != StatusCompleted {
		return nil, apperr.Invalid("DICOM metadata is only available for studies in progress or completed")
	}
	if t.StudyInstanceUID == nil {
		return nil, apperr.Invalid("study has no instance UID")
	}
	p, err := s.patients.Info(ctx, t.PatientID)
	if err != nil {
		return nil, err
	}
	return BuildStudy(t, p), nil
}
