package staff

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/cache"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

const (
	employeeIDAttempts = 5
	// DefaultExpiringDays is the look-ahead window for license expiry checks.
	DefaultExpiringDays = 30
)

type Service struct {
	departments DepartmentRepository
	members     MemberRepository
	cache       cache.Cache
	cacheTTL    time.Duration
	events      queue.Publisher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(departments DepartmentRepository, members MemberRepository, c cache.Cache, cacheTTL time.Duration,
	events queue.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		departments: departments,
		members:     members,
		cache:       c,
		cacheTTL:    cacheTTL,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, req DepartmentRequest) (*Department, error) {
	d := &Department{
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Description: req.Description,
		HeadStaffID: req.HeadStaffID,
		IsActive:    true,
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if err := s.checkHead(ctx, d.HeadStaffID); err != nil {
		return nil, err
	}
	if err := s.departments.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.departments.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, req DepartmentRequest) (*Department, error) {
	d, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name = strings.TrimSpace(req.Name)
	d.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	d.Description = req.Description
	d.HeadStaffID = req.HeadStaffID
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if err := s.checkHead(ctx, d.HeadStaffID); err != nil {
		return nil, err
	}
	if err := s.departments.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	return s.departments.Delete(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.departments.List(ctx, limit, offset)
}

func (s *Service) checkHead(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	m, err := s.members.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if m.Status == StatusTerminated {
		return apperr.Invalid("terminated staff cannot head a department")
	}
	return nil
}

// -- Members --

// GenerateEmployeeID returns "EMP" followed by six random digits.
func GenerateEmployeeID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EMP%06d", n.Int64()), nil
}

func (s *Service) applyMember(ctx context.Context, m *Member, req MemberRequest) error {
	if !auth.ValidRole(req.Role) {
		return apperr.Invalid("unknown role %q", req.Role)
	}
	hire, err := time.Parse("2006-01-02", req.HireDate)
	if err != nil {
		return apperr.Invalid("hire_date must be YYYY-MM-DD")
	}
	if hire.After(s.now()) {
		return apperr.Invalid("hire_date cannot be in the future")
	}

	var expiry *time.Time
	if req.LicenseExpiry != nil {
		t, err := time.Parse("2006-01-02", *req.LicenseExpiry)
		if err != nil {
			return apperr.Invalid("license_expiry must be YYYY-MM-DD")
		}
		expiry = &t
	}
	license := trimPtr(req.LicenseNumber)
	if auth.IsClinicalRole(req.Role) {
		if license == nil {
			return apperr.Invalid("license_number is required for role %s", req.Role)
		}
		if expiry == nil {
			return apperr.Invalid("license_expiry is required for role %s", req.Role)
		}
		if !expiry.After(s.now()) {
			return apperr.Invalid("license_expiry must be in the future")
		}
	}

	if req.DepartmentID != nil {
		d, err := s.departments.GetByID(ctx, *req.DepartmentID)
		if err != nil {
			return err
		}
		if !d.IsActive {
			return apperr.Invalid("department %s is inactive", d.Name)
		}
	}

	m.UserID = req.UserID
	m.FirstName = strings.TrimSpace(req.FirstName)
	m.LastName = strings.TrimSpace(req.LastName)
	m.Email = strings.ToLower(strings.TrimSpace(req.Email))
	m.Phone = req.Phone
	m.Role = req.Role
	m.DepartmentID = req.DepartmentID
	m.Specialization = req.Specialization
	m.LicenseNumber = license
	m.LicenseExpiry = expiry
	m.HireDate = hire
	return nil
}

func (s *Service) CreateMember(ctx context.Context, req MemberRequest) (*Member, error) {
	m := &Member{Status: StatusActive}
	if err := s.applyMember(ctx, m, req); err != nil {
		return nil, err
	}
	var err error
	for attempt := 1; ; attempt++ {
		if m.EmployeeID, err = GenerateEmployeeID(); err != nil {
			return nil, err
		}
		err = s.members.Create(ctx, m)
		if !errors.Is(err, errDuplicateEmployeeID) || attempt == employeeIDAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMember serves reads from the cache, falling back to the repository.
func (s *Service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	key := cache.Key("staff", id.String())
	var cached Member
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		return &cached, nil
	}
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, m, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return m, nil
}

func (s *Service) UpdateMember(ctx context.Context, id uuid.UUID, req MemberRequest) (*Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == StatusTerminated {
		return nil, apperr.Invalid("terminated staff members cannot be updated")
	}
	if err := s.applyMember(ctx, m, req); err != nil {
		return nil, err
	}
	if err := s.members.Update(ctx, m); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return m, nil
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(m.Status, status) {
		return nil, apperr.Invalid("invalid status transition from %s to %s", m.Status, status)
	}
	m.Status = status
	if err := s.members.Update(ctx, m); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return m, nil
}

func (s *Service) ListMembers(ctx context.Context, f MemberFilter, limit, offset int) ([]*Member, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	return s.members.List(ctx, f, limit, offset)
}

// ExpiringLicenses returns non-terminated members whose license expires
// within days from now, including already-expired ones.
func (s *Service) ExpiringLicenses(ctx context.Context, days int) ([]*Member, error) {
	if days <= 0 || days > 365 {
		return nil, apperr.Invalid("days must be between 1 and 365")
	}
	return s.members.ListLicensesExpiring(ctx, s.now().AddDate(0, 0, days))
}

// NotifyExpiringLicenses publishes staff.license.expiring for every member
// in the default window. It backs the staff.license-expiry job.
func (s *Service) NotifyExpiringLicenses(ctx context.Context) error {
	members, err := s.ExpiringLicenses(ctx, DefaultExpiringDays)
	if err != nil {
		return err
	}
	for _, m := range members {
		ev := queue.LicenseExpiring{
			StaffID:    m.ID,
			EmployeeID: m.EmployeeID,
			Name:       m.FullName(),
			Email:      m.Email,
			ExpiresOn:  *m.LicenseExpiry,
		}
		if m.LicenseNumber != nil {
			ev.LicenseNumber = *m.LicenseNumber
		}
		if err := s.events.Publish(ctx, queue.TopicStaffLicenseExpiring, ev); err != nil {
			return fmt.Errorf("publish license expiry for %s: %w", m.EmployeeID, err)
		}
	}
	s.logger.Info().Int("count", len(members)).Msg("license expiry notifications published")
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.Key("staff", id.String())); err != nil {
		s.logger.Warn().Err(err).Str("staff_id", id.String()).Msg("cache invalidation failed")
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

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
