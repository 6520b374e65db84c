package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/hipaa"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/middleware"
)

// auditRetentionType names the retention policy that governs audit logs.
const auditRetentionType = "audit_log"

type Service struct {
	audits    AuditRepository
	consents  ConsentRepository
	patients  Patients
	retention *hipaa.RetentionService
	tx        db.TxRunner
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(audits AuditRepository, consents ConsentRepository, patients Patients,
	retention *hipaa.RetentionService, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		audits:    audits,
		consents:  consents,
		patients:  patients,
		retention: retention,
		tx:        tx,
		logger:    logger,
		now:       time.Now,
	}
}

// -- Audit --

func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// RecordAudit stores an access entry produced by the audit middleware.
func (s *Service) RecordAudit(ctx context.Context, e middleware.AuditEntry) error {
	if e.Method == "" || e.Path == "" {
		return apperr.Invalid("audit entry needs a method and a path")
	}
	l := &AuditLog{
		UserID:       optionalUUID(e.UserID),
		UserRoles:    e.UserRoles,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		PatientID:    optionalUUID(e.PatientID),
		Method:       e.Method,
		Path:         e.Path,
		StatusCode:   e.StatusCode,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		OccurredAt:   e.Timestamp,
	}
	if l.UserRoles == nil {
		l.UserRoles = []string{}
	}
	if e.ResourceID != "" {
		rid := e.ResourceID
		l.ResourceID = &rid
	}
	if l.OccurredAt.IsZero() {
		l.OccurredAt = s.now().UTC()
	}
	return s.audits.Create(ctx, l)
}

func (s *Service) ListAuditLogs(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditLog, int, error) {
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, 0, apperr.Invalid("to must be after from")
	}
	return s.audits.List(ctx, f, limit, offset)
}

// PHIAccess reports who touched a patient's records.
func (s *Service) PHIAccess(ctx context.Context, patientID uuid.UUID, from, to *time.Time) (*PHIAccessReport, error) {
	if err := s.patients.Exists(ctx, patientID); err != nil {
		return nil, err
	}
	accessors, err := s.audits.PHIAccess(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	report := &PHIAccessReport{PatientID: patientID, From: from, To: to, Accessors: accessors}
	if report.Accessors == nil {
		report.Accessors = []PHIAccessor{}
	}
	for _, a := range report.Accessors {
		report.TotalAccesses += a.AccessCount
	}
	return report, nil
}

// PurgeAuditLogs backs the compliance.retention job.
func (s *Service) PurgeAuditLogs(ctx context.Context) error {
	cutoff, ok := s.retention.PurgeCutoff(auditRetentionType, s.now().UTC())
	if !ok {
		return nil
	}
	n, err := s.audits.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Time("cutoff", cutoff).Msg("audit logs purged")
	}
	return nil
}

func (s *Service) RetentionPolicies() []hipaa.RetentionPolicy {
	return s.retention.GetAllPolicies()
}

// -- Consents --

// GrantConsent records a consent. A patient holds at most one active consent
// per type; an expired one is revoked when it is replaced.
func (s *Service) GrantConsent(ctx context.Context, grantedBy uuid.UUID, req ConsentRequest) (*Consent, error) {
	now := s.now().UTC()
	c := &Consent{
		PatientID:   req.PatientID,
		ConsentType: req.ConsentType,
		Status:      ConsentGranted,
		GrantedAt:   now,
		GrantedBy:   grantedBy,
		Notes:       req.Notes,
	}
	if req.ExpiresAt != nil {
		exp, err := time.Parse("2006-01-02", *req.ExpiresAt)
		if err != nil {
			return nil, apperr.Invalid("expires_at must be a date in YYYY-MM-DD format")
		}
		if !exp.After(now) {
			return nil, apperr.Invalid("expires_at must be in the future")
		}
		c.ExpiresAt = &exp
	}
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.consents.FindGranted(ctx, req.PatientID, req.ConsentType)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
		case err != nil:
			return err
		case existing.Active(now):
			return apperr.Conflict("patient already has an active %s consent", req.ConsentType)
		default:
			reason := "expired"
			existing.Status = ConsentRevoked
			existing.RevokedAt = &now
			existing.RevokeReason = &reason
			if err := s.consents.Update(ctx, existing); err != nil {
				return err
			}
		}
		return s.consents.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetConsent(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return s.consents.GetByID(ctx, id)
}

func (s *Service) RevokeConsent(ctx context.Context, id, revokedBy uuid.UUID, req RevokeRequest) (*Consent, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	c, err := s.consents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != ConsentGranted {
		return nil, apperr.Invalid("only granted consents can be revoked (status %s)", c.Status)
	}
	now := s.now().UTC()
	c.Status = ConsentRevoked
	c.RevokedAt = &now
	c.RevokedBy = &revokedBy
	c.RevokeReason = &reason
	if err := s.consents.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListConsents(ctx context.Context, f ConsentFilter, limit, offset int) ([]*Consent, int, error) {
	return s.consents.List(ctx, f, limit, offset)
}

// CheckConsent reports whether the patient has an active consent of a type.
func (s *Service) CheckConsent(ctx context.Context, patientID uuid.UUID, consentType string) (*ConsentCheck, error) {
	if !validConsentType(consentType) {
		return nil, apperr.Invalid("type must be one of [%s]", strings.Join(ConsentTypes, " "))
	}
	res := &ConsentCheck{PatientID: patientID, ConsentType: consentType}
	c, err := s.consents.FindGranted(ctx, patientID, consentType)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		return res, nil
	case err != nil:
		return nil, err
	}
	res.Consent = c
	res.Active = c.Active(s.now())
	return res, nil
}

func validConsentType(t string) bool {
	for _, v := range ConsentTypes {
		if v == t {
			return true
		}
	}
	return false
}
