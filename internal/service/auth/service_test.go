package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

const password = "correct-horse-battery"

func newTestService(t *testing.T) (*Service, auth.JWTService) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	jwtSvc := auth.NewJWTService("test-secret", "clinic-booking", time.Hour)
	svc := NewService(Credentials{Email: "admin@clinic.test", PasswordHash: string(hash)},
		security.NewBcryptHasher(bcrypt.MinCost), jwtSvc, nil)
	return svc, jwtSvc
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Login(context.Background(), &model.LoginRequest{Email: " Admin@Clinic.test", Password: password})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, "admin@clinic.test", claims.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), &model.LoginRequest{Email: "admin@clinic.test", Password: "wrong-password"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	_, err = svc.Login(context.Background(), &model.LoginRequest{Email: "someone@clinic.test", Password: password})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	svc, _ := newTestService(t)
	req := &model.LoginRequest{Email: "admin@clinic.test", Password: "wrong-password"}

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(context.Background(), req)
		require.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	}

	req.Password = password
	_, err := svc.Login(context.Background(), req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestValidateTokenRequiresAdminRole(t *testing.T) {
	svc, jwtSvc := newTestService(t)

	token, _, err := jwtSvc.GenerateAccessToken("reception@clinic.test", "staff")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}
