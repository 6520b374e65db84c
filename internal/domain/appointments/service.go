package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// noShowGrace is how long after an appointment's end it is marked no_show.
const noShowGrace = 2 * time.Hour

type Service struct {
	repo       Repository
	patients   Patients
	clinicians Clinicians
	tx         db.TxRunner
	events     queue.Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, patients Patients, clinicians Clinicians, tx db.TxRunner,
	events queue.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		patients:   patients,
		clinicians: clinicians,
		tx:         tx,
		events:     events,
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

func (s *Service) checkDoctor(ctx context.Context, id uuid.UUID) error {
	c, err := s.clinicians.Clinician(ctx, id)
	if err != nil {
		return err
	}
	if c.Role != "doctor" {
		return apperr.Invalid("staff member %s is not a doctor", c.Name)
	}
	if !c.Active {
		return apperr.Invalid("doctor %s is not available", c.Name)
	}
	return nil
}

// reserve checks the doctor's calendar and runs write while holding the
// doctor's booking lock.
func (s *Service) reserve(ctx context.Context, a *Appointment, write func(ctx context.Context) error) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockDoctor(ctx, a.DoctorID); err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlap(ctx, a.DoctorID, a.ScheduledAt, a.EndsAt(), a.ID)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict("doctor already has an appointment between %s and %s",
				a.ScheduledAt.UTC().Format(time.RFC3339), a.EndsAt().UTC().Format(time.RFC3339))
		}
		return write(ctx)
	})
}

func (s *Service) Book(ctx context.Context, actorID uuid.UUID, req BookRequest) (*Appointment, error) {
	if !req.ScheduledAt.After(s.now()) {
		return nil, apperr.Invalid("scheduled_at must be in the future")
	}
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if err := s.checkDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Status:          StatusScheduled,
		Reason:          req.Reason,
		Notes:           req.Notes,
		CreatedBy:       actorID,
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	if err := s.reserve(ctx, a, func(ctx context.Context) error { return s.repo.Create(ctx, a) }); err != nil {
		return nil, err
	}

	ev := queue.AppointmentBooked{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ScheduledAt:   a.ScheduledAt,
		Type:          a.Type,
	}
	if err := s.events.Publish(ctx, queue.TopicAppointmentBooked, ev); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("publish appointment.booked failed")
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" {
		if _, ok := statusTransitions[f.Status]; !ok {
			return nil, 0, apperr.Invalid("unknown status %q", f.Status)
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return nil, apperr.Invalid("cannot reschedule an appointment in status %s", a.Status)
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, apperr.Invalid("scheduled_at must be in the future")
	}
	a.ScheduledAt = req.ScheduledAt.UTC()
	if req.DurationMinutes != 0 {
		a.DurationMinutes = req.DurationMinutes
	}
	a.Status = StatusScheduled
	if err := s.reserve(ctx, a, func(ctx context.Context) error { return s.repo.Update(ctx, a) }); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus moves an appointment along its lifecycle. Cancellation goes
// through Cancel so that a reason is always recorded.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req StatusRequest) (*Appointment, error) {
	if req.Status == StatusCancelled {
		return nil, apperr.Invalid("use the cancel endpoint to cancel an appointment")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(a.Status, req.Status) {
		return nil, apperr.Invalid("invalid status transition from %s to %s", a.Status, req.Status)
	}
	a.Status = req.Status
	if req.Notes != nil {
		a.Notes = req.Notes
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		return nil, apperr.Invalid("cancellation reason is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(a.Status, StatusCancelled) {
		return nil, apperr.Invalid("invalid status transition from %s to %s", a.Status, StatusCancelled)
	}
	a.Status = StatusCancelled
	a.CancelReason = &reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DoctorSchedule lists a doctor's non-cancelled appointments on day (UTC).
func (s *Service) DoctorSchedule(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*Appointment, error) {
	if _, err := s.clinicians.Clinician(ctx, doctorID); err != nil {
		return nil, err
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	items, _, err := s.repo.List(ctx, ListFilter{DoctorID: &doctorID, From: &from, To: &to}, 500, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*Appointment, 0, len(items))
	for _, a := range items {
		if a.Status != StatusCancelled {
			out = append(out, a)
		}
	}
	return out, nil
}

// MarkNoShows backs the appointments.mark-no-show job.
func (s *Service) MarkNoShows(ctx context.Context) error {
	n, err := s.repo.MarkNoShows(ctx, s.now().Add(-noShowGrace))
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("appointments marked as no-show")
	}
	return nil
}
