package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type mockUserRepo struct {
	users map[string]*model.User
	byID  map[uuid.UUID]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User), byID: make(map[uuid.UUID]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	m.users[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return m.byID[id], nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.users[email], nil
}

func (m *mockUserRepo) AddToList(_ context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	u, ok := m.byID[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if list == model.CompareList {
		u.CompareList.Add(productID)
	} else {
		u.Wishlist.Add(productID)
	}
	return u.List(list).Clone(), nil
}

func (m *mockUserRepo) RemoveFromList(_ context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	u, ok := m.byID[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if list == model.CompareList {
		u.CompareList.Remove(productID)
	} else {
		u.Wishlist.Remove(productID)
	}
	return u.List(list).Clone(), nil
}

type mapRevoker struct{ revoked map[string]time.Time }

func newMapRevoker() *mapRevoker { return &mapRevoker{revoked: map[string]time.Time{}} }

func (r *mapRevoker) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	r.revoked[jti] = expiresAt
	return nil
}

func (r *mapRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := r.revoked[jti]
	return ok, nil
}

func TestAuthService_Register(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, "test-secret", time.Hour)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		Name: "John", Email: "test@example.com", Password: "password123",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "test@example.com", resp.User.Email)
	assert.NotEqual(t, "password123", resp.User.Password)
	assert.NotNil(t, resp.User.Wishlist)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, "test-secret", time.Hour)

	_, err := svc.Register(context.Background(), dto.RegisterRequest{Name: "A", Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), dto.RegisterRequest{Name: "B", Email: "test@example.com", Password: "password456"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Len(t, repo.byID, 1)
}

func TestAuthService_Login(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, "test-secret", time.Hour)

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	user := &model.User{ID: uuid.New(), Email: "test@example.com", Password: string(hashed)}
	repo.users[user.Email] = user
	repo.byID[user.ID] = user

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	sess, err := svc.Authenticate(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.User.ID)
	assert.NotEmpty(t, sess.TokenID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, "test-secret", time.Hour)

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	repo.users["test@example.com"] = &model.User{ID: uuid.New(), Email: "test@example.com", Password: string(hashed)}

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "test@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Authenticate_Rejects(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, "test-secret", time.Hour)
	resp, err := svc.Register(context.Background(), dto.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, "other-secret", time.Hour)
	_, err = other.Authenticate(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrNotAuthorized, "wrong signing key")

	_, err = svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	expired := NewAuthService(repo, nil, "test-secret", -time.Minute)
	old, err := expired.Login(context.Background(), dto.LoginRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), old.Token)
	assert.ErrorIs(t, err, ErrNotAuthorized, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   resp.User.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), unsigned)
	assert.ErrorIs(t, err, ErrNotAuthorized, "alg none")

	delete(repo.byID, resp.User.ID)
	_, err = svc.Authenticate(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrNotAuthorized, "user deleted")
}

func TestAuthService_LogoutRevokesToken(t *testing.T) {
	repo := newMockUserRepo()
	revoker := newMapRevoker()
	svc := NewAuthService(repo, revoker, "test-secret", time.Hour)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	sess, err := svc.Authenticate(context.Background(), resp.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), *sess))
	assert.Contains(t, revoker.revoked, sess.TokenID)

	_, err = svc.Authenticate(context.Background(), resp.Token)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// A fresh login gets a new token id and still works.
	again, err := svc.Login(context.Background(), dto.LoginRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), again.Token)
	assert.NoError(t, err)
}
