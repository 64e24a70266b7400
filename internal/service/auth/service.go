package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

var ErrAccountLocked = errors.New("too many failed login attempts, please try again later")

// Credentials identify the single clinic administrator.
type Credentials struct {
	Email        string
	PasswordHash string
}

type Service struct {
	creds    Credentials
	hasher   security.PasswordHasher
	jwtSvc   auth.JWTService
	attempts *cache.Cache
	log      *logger.Logger
}

func NewService(creds Credentials, hasher security.PasswordHasher, jwtSvc auth.JWTService, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		creds:    creds,
		hasher:   hasher,
		jwtSvc:   jwtSvc,
		attempts: cache.New(lockoutDuration, 2*lockoutDuration),
		log:      log.WithModule("auth"),
	}
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.locked(email) {
		return nil, apperrors.Forbidden(ErrAccountLocked)
	}

	if s.creds.PasswordHash == "" || !strings.EqualFold(email, s.creds.Email) {
		s.fail(email)
		return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
	}

	if err := s.hasher.Compare(s.creds.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.log.Error(err, "admin password hash is malformed")
		}
		s.fail(email)
		return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
	}
	s.attempts.Delete(email)

	token, ttl, err := s.jwtSvc.GenerateAccessToken(s.creds.Email, model.RoleAdmin)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.log.Info("admin logged in", "email", s.creds.Email)
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}

// ValidateToken accepts only admin tokens.
func (s *Service) ValidateToken(token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if claims.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden(errors.New("admin role required"))
	}
	return claims, nil
}

func (s *Service) locked(email string) bool {
	n, ok := s.attempts.Get(email)
	return ok && n.(int) >= maxLoginAttempts
}

func (s *Service) fail(email string) {
	if err := s.attempts.Add(email, 1, cache.DefaultExpiration); err != nil {
		if _, err := s.attempts.IncrementInt(email, 1); err != nil {
			s.log.Warn("failed to count login attempt", "error", err.Error())
		}
	}
	s.log.Warn("admin login failed", "email", email)
}
