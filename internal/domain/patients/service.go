package patients

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/cache"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/hipaa"
)

const (
	mrnAttempts  = 5
	mrnAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	mrnSuffixLen = 6
	maxAgeYears  = 150
)

type Service struct {
	repo     Repository
	cache    cache.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, c cache.Cache, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: c, cacheTTL: cacheTTL, logger: logger, now: time.Now}
}

// GenerateMRN returns "MRN" + YYYYMMDD + six uppercase alphanumerics.
func GenerateMRN(now time.Time) (string, error) {
	buf := make([]byte, mrnSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = mrnAlphabet[int(b)%len(mrnAlphabet)]
	}
	return "MRN" + now.UTC().Format("20060102") + string(buf), nil
}

func (s *Service) parseDOB(v string) (time.Time, error) {
	dob, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, apperr.Invalid("date_of_birth must be YYYY-MM-DD")
	}
	now := s.now().UTC()
	if dob.After(now) {
		return time.Time{}, apperr.Invalid("date_of_birth cannot be in the future")
	}
	if dob.Before(now.AddDate(-maxAgeYears, 0, 0)) {
		return time.Time{}, apperr.Invalid("date_of_birth cannot be more than %d years ago", maxAgeYears)
	}
	return dob, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Patient, error) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperr.Invalid("first_name and last_name are required")
	}
	dob, err := s.parseDOB(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	p := &Patient{
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		DateOfBirth:           dob,
		Gender:                req.Gender,
		BloodType:             req.BloodType,
		Phone:                 req.Phone,
		Email:                 lowerPtr(req.Email),
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		NationalID:            strings.TrimSpace(req.NationalID),
		Allergies:             req.Allergies,
		InsuranceProvider:     req.InsuranceProvider,
		InsuranceNumber:       req.InsuranceNumber,
		Status:                StatusActive,
	}

	for attempt := 1; ; attempt++ {
		if p.MRN, err = GenerateMRN(s.now()); err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, p)
		if !errors.Is(err, errDuplicateMRN) || attempt == mrnAttempts {
			break
		}
		s.logger.Debug().Int("attempt", attempt).Msg("mrn collision, regenerating")
	}
	if err != nil {
		return nil, err
	}
	return present(p), nil
}

// Get serves reads from the cache, falling back to the repository.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	key := cache.Key("patient", id.String())
	var cached Patient
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		return &cached, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	present(p)
	if err := s.cache.Set(ctx, key, p, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return p, nil
}

func (s *Service) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := s.repo.GetByMRN(ctx, strings.ToUpper(strings.TrimSpace(mrn)))
	if err != nil {
		return nil, err
	}
	return present(p), nil
}

// Exists returns NotFound when no patient has id.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) error {
	_, err := s.Get(ctx, id)
	return err
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		p.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		p.LastName = strings.TrimSpace(*req.LastName)
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, apperr.Invalid("first_name and last_name are required")
	}
	if req.DateOfBirth != nil {
		if p.DateOfBirth, err = s.parseDOB(*req.DateOfBirth); err != nil {
			return nil, err
		}
	}
	if req.Gender != nil {
		p.Gender = *req.Gender
	}
	if req.NationalID != nil {
		p.NationalID = strings.TrimSpace(*req.NationalID)
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.Email != nil {
		p.Email = lowerPtr(req.Email)
	}
	setIfPresent(&p.BloodType, req.BloodType)
	setIfPresent(&p.Phone, req.Phone)
	setIfPresent(&p.Address, req.Address)
	setIfPresent(&p.EmergencyContactName, req.EmergencyContactName)
	setIfPresent(&p.EmergencyContactPhone, req.EmergencyContactPhone)
	setIfPresent(&p.Allergies, req.Allergies)
	setIfPresent(&p.InsuranceProvider, req.InsuranceProvider)
	setIfPresent(&p.InsuranceNumber, req.InsuranceNumber)

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return present(p), nil
}

// Deactivate marks the patient inactive. Records are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDeceased {
		return apperr.Invalid("deceased patients cannot be deactivated")
	}
	p.Status = StatusInactive
	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Patient, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	items, total, err := s.repo.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		present(p)
	}
	return items, total, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.Key("patient", id.String())); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("cache invalidation failed")
	}
}

// present fills the masked national id used in responses.
func present(p *Patient) *Patient {
	if p.NationalID != "" {
		p.NationalIDMasked = hipaa.MaskID(p.NationalID)
	}
	return p
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}

func setIfPresent(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}
