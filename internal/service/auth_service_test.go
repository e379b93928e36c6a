package service

import (
	"context"
	"testing"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	args := m.Called(ctx, u)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int) (*domain.User, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
}

func TestRegister_AlwaysCreatesPlainUsers(t *testing.T) {
	repo := &mockUserRepo{}
	repo.On("FindByUsername", mock.Anything, "carol").Return(nil, repository.ErrNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleUser && bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret!")) == nil
	})).Return(&domain.User{ID: 3, Username: "carol", Password: "hash", Role: domain.RoleUser}, nil)

	svc := NewAuthService(repo, "test-secret", time.Hour)
	u, err := svc.Register(context.Background(), domain.RegisterUserDTO{Username: "carol", Password: "s3cret!"})
	require.NoError(t, err)
	assert.Empty(t, u.Password)
	repo.AssertExpectations(t)
}

func TestRegister_Duplicate(t *testing.T) {
	repo := &mockUserRepo{}
	repo.On("FindByUsername", mock.Anything, "carol").Return(&domain.User{ID: 3}, nil)

	_, err := NewAuthService(repo, "s", time.Hour).Register(context.Background(), domain.RegisterUserDTO{Username: "carol", Password: "s3cret!"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLoginAndValidateToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockUserRepo{}
	repo.On("FindByUsername", mock.Anything, "gatekeeper").
		Return(&domain.User{ID: 50, Username: "gatekeeper", Password: string(hash), Role: domain.RoleAttendant}, nil)

	svc := NewAuthService(repo, "test-secret", time.Hour)

	_, err = svc.Login(context.Background(), domain.LoginUserDTO{Username: "gatekeeper", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := svc.Login(context.Background(), domain.LoginUserDTO{Username: "gatekeeper", Password: "pw123456"})
	require.NoError(t, err)

	actor, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: 50, Username: "gatekeeper", Role: domain.RoleAttendant}, *actor)
	assert.True(t, actor.IsStaff())

	_, err = NewAuthService(repo, "other-secret", time.Hour).ValidateToken(resp.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateToken_RejectsExpiredAndUnknownRoles(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, "test-secret", time.Hour)
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		return s
	}

	_, err := svc.ValidateToken(sign(jwt.MapClaims{"sub": "1", "role": "user", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken(sign(jwt.MapClaims{"sub": "1", "role": "operator", "exp": time.Now().Add(time.Minute).Unix()}))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
