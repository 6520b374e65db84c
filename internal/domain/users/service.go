package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
)

// dummyHash is compared against when the email is unknown so that failed
// logins take the same time whether or not the account exists.
var dummyHash, _ = auth.HashPassword("unknown-account-password")

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger, now: time.Now}
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if apperr.Is(err, apperr.KindNotFound) {
		_, _ = auth.CheckPassword(dummyHash, req.Password)
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if !u.IsActive {
		return nil, apperr.Unauthorized("account is disabled")
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), u.Email, []string{u.Role})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to record login time")
	} else {
		u.LastLoginAt = &now
	}
	return &LoginResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if !auth.ValidRole(req.Role) {
		return nil, apperr.Invalid("unknown role %q", req.Role)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email %s is already registered", email)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	u := &User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// CheckActive rejects tokens whose subject no longer exists or has been
// deactivated.
func (s *Service) CheckActive(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return apperr.Unauthorized("invalid token")
	}
	u, err := s.repo.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Unauthorized("account not found")
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return apperr.Unauthorized("account is disabled")
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, req ChangePasswordRequest) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.CurrentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthorized("current password is incorrect")
	}
	if req.NewPassword == req.CurrentPassword {
		return apperr.Invalid("new password must differ from the current password")
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Invalid("%s", err.Error())
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*User, int, error) {
	if f.Role != "" && !auth.ValidRole(f.Role) {
		return nil, 0, apperr.Invalid("unknown role %q", f.Role)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// SetActive enables or disables an account. Admins cannot disable their own.
func (s *Service) SetActive(ctx context.Context, actorID, id uuid.UUID, active bool) (*User, error) {
	if !active && actorID == id {
		return nil, apperr.Invalid("you cannot deactivate your own account")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
