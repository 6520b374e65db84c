package emergency

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

type Service struct {
	cases      CaseRepository
	patients   Patients
	clinicians Clinicians
	tx         db.TxRunner
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(cases CaseRepository, patients Patients, clinicians Clinicians, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		cases:      cases,
		patients:   patients,
		clinicians: clinicians,
		tx:         tx,
		logger:     logger,
		now:        time.Now,
	}
}

func canTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type vitalRange struct {
	name     string
	value    *int
	min, max int
}

// checkTriage enforces the ESI level and physiologic ranges for vitals.
func checkTriage(req TriageRequest) error {
	if req.TriageLevel < 1 || req.TriageLevel > 5 {
		return apperr.Invalid("triage_level must be between 1 and 5")
	}
	for _, v := range []vitalRange{
		{"heart_rate", req.HeartRate, 20, 250},
		{"blood_pressure_sys", req.BloodPressureSys, 40, 300},
		{"blood_pressure_dia", req.BloodPressureDia, 20, 200},
		{"respiratory_rate", req.RespiratoryRate, 4, 80},
		{"oxygen_saturation", req.OxygenSaturation, 50, 100},
		{"pain_scale", req.PainScale, 0, 10},
	} {
		if v.value != nil && (*v.value < v.min || *v.value > v.max) {
			return apperr.Invalid("%s must be between %d and %d", v.name, v.min, v.max)
		}
	}
	if req.Temperature != nil && (*req.Temperature < 30 || *req.Temperature > 45) {
		return apperr.Invalid("temperature must be between 30 and 45")
	}
	if req.BloodPressureSys != nil && req.BloodPressureDia != nil && *req.BloodPressureSys <= *req.BloodPressureDia {
		return apperr.Invalid("blood_pressure_sys must be greater than blood_pressure_dia")
	}
	return nil
}

// Register opens a case in the waiting state.
func (s *Service) Register(ctx context.Context, by uuid.UUID, req RegisterRequest) (*EmergencyCase, error) {
	complaint := strings.TrimSpace(req.ChiefComplaint)
	if complaint == "" {
		return nil, apperr.Invalid("chief_complaint is required")
	}
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &EmergencyCase{
		PatientID:      req.PatientID,
		ArrivalAt:      now,
		ArrivalMode:    req.ArrivalMode,
		ChiefComplaint: complaint,
		Status:         StatusWaiting,
		Notes:          req.Notes,
		CreatedBy:      &by,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.cases.Create(ctx, c); err != nil {
			return err
		}
		return s.cases.AddStatusHistory(ctx, &StatusHistory{
			CaseID: c.ID, Status: StatusWaiting, ChangedAt: now, ChangedBy: &by,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", c.ID.String()).Str("arrival_mode", c.ArrivalMode).Msg("emergency case registered")
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	return s.cases.GetByID(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, f CaseFilter, limit, offset int) ([]*EmergencyCase, int, error) {
	return s.cases.List(ctx, f, limit, offset)
}

func (s *Service) Board(ctx context.Context) ([]*EmergencyCase, error) {
	items, err := s.cases.Board(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*EmergencyCase{}
	}
	return items, nil
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.cases.GetByID(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.cases.GetStatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*StatusHistory{}
	}
	return items, nil
}

// move locks the case, applies fn, and records the status change.
func (s *Service) move(ctx context.Context, id, by uuid.UUID, to string, note *string, fn func(c *EmergencyCase, now time.Time)) (*EmergencyCase, error) {
	var out *EmergencyCase
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(c.Status, to) {
			return apperr.Invalid("invalid status transition from %s to %s", c.Status, to)
		}
		now := s.now().UTC()
		from := c.Status
		if fn != nil {
			fn(c, now)
		}
		c.Status = to
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		if err := s.cases.AddStatusHistory(ctx, &StatusHistory{
			CaseID: c.ID, FromStatus: &from, Status: to, ChangedAt: now, ChangedBy: &by, Note: note,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", id.String()).Str("status", to).Msg("emergency case status changed")
	return out, nil
}

func (s *Service) Triage(ctx context.Context, id, by uuid.UUID, req TriageRequest) (*EmergencyCase, error) {
	if err := checkTriage(req); err != nil {
		return nil, err
	}
	return s.move(ctx, id, by, StatusTriaged, req.Notes, func(c *EmergencyCase, now time.Time) {
		level := req.TriageLevel
		c.TriageLevel = &level
		c.TriagedAt = &now
		c.TriagedBy = &by
		c.HeartRate = req.HeartRate
		c.BloodPressureSys = req.BloodPressureSys
		c.BloodPressureDia = req.BloodPressureDia
		c.Temperature = req.Temperature
		c.RespiratoryRate = req.RespiratoryRate
		c.OxygenSaturation = req.OxygenSaturation
		c.PainScale = req.PainScale
	})
}

func (s *Service) StartTreatment(ctx context.Context, id, by uuid.UUID, req TreatRequest) (*EmergencyCase, error) {
	if err := s.clinicians.ActiveClinician(ctx, req.AttendingID); err != nil {
		return nil, err
	}
	return s.move(ctx, id, by, StatusInTreatment, nil, func(c *EmergencyCase, _ time.Time) {
		attending := req.AttendingID
		c.AttendingID = &attending
		c.Bed = req.Bed
	})
}

// Dispose closes a case under treatment as admitted, discharged or
// transferred and records the length of stay.
func (s *Service) Dispose(ctx context.Context, id, by uuid.UUID, req DispositionRequest) (*EmergencyCase, error) {
	disposition := strings.TrimSpace(req.Disposition)
	if disposition == "" {
		return nil, apperr.Invalid("disposition is required")
	}
	switch req.Status {
	case StatusAdmitted, StatusDischarged, StatusTransferred:
	default:
		return nil, apperr.Invalid("status must be one of [admitted discharged transferred]")
	}
	return s.move(ctx, id, by, req.Status, &disposition, func(c *EmergencyCase, now time.Time) {
		c.Disposition = &disposition
		markDeparted(c, now)
	})
}

func (s *Service) LeftWithoutBeingSeen(ctx context.Context, id, by uuid.UUID, req LeftRequest) (*EmergencyCase, error) {
	return s.move(ctx, id, by, StatusLeftWithoutBeingSeen, req.Note, func(c *EmergencyCase, now time.Time) {
		markDeparted(c, now)
	})
}

func markDeparted(c *EmergencyCase, now time.Time) {
	c.DischargedAt = &now
	mins := int(now.Sub(c.ArrivalAt).Minutes())
	c.LengthOfStayMins = &mins
}
