package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryUsersRepo struct {
	users  map[int64]User
	tokens map[int64]Token
	nextID int64
}

func newMemoryUsersRepo() *memoryUsersRepo {
	return &memoryUsersRepo{users: make(map[int64]User), tokens: make(map[int64]Token)}
}

func (m *memoryUsersRepo) InsertUser(ctx context.Context, user *User) error {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *memoryUsersRepo) FindByID(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsersRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryUsersRepo) InsertToken(ctx context.Context, token *Token) error {
	m.nextID++
	token.ID = m.nextID
	token.CreatedAt = time.Now()
	m.tokens[token.ID] = *token
	return nil
}

func (m *memoryUsersRepo) FindToken(ctx context.Context, id int64) (Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return Token{}, ErrTokenInvalid
	}
	return t, nil
}

func (m *memoryUsersRepo) TouchToken(ctx context.Context, id int64, at time.Time) error {
	t, ok := m.tokens[id]
	if !ok {
		return ErrTokenInvalid
	}
	t.LastUsedAt = &at
	m.tokens[id] = t
	return nil
}

func (m *memoryUsersRepo) DeleteToken(ctx context.Context, id int64) error {
	if _, ok := m.tokens[id]; !ok {
		return ErrTokenInvalid
	}
	delete(m.tokens, id)
	return nil
}

func usersFixture(t *testing.T) (*Service, *memoryUsersRepo) {
	t.Helper()
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil)
	svc.WithHashCost(bcrypt.MinCost)
	return svc, repo
}

func createUser(t *testing.T, svc *Service) User {
	t.Helper()
	user, err := svc.Create(context.Background(), CreateUserInput{
		Email:    "finance@example.com",
		Name:     "Finance User",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return user
}

func TestAuthenticate(t *testing.T) {
	svc, _ := usersFixture(t)
	user := createUser(t, svc)
	require.NotEqual(t, "correct horse battery", user.PasswordHash, "password is stored hashed")

	got, err := svc.Authenticate(context.Background(), "finance@example.com", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), "finance@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "correct horse battery")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	svc, repo := usersFixture(t)
	user := createUser(t, svc)
	u := repo.users[user.ID]
	u.IsActive = false
	repo.users[user.ID] = u

	_, err := svc.Authenticate(context.Background(), "finance@example.com", "correct horse battery")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := usersFixture(t)
	_, err := svc.Create(context.Background(), CreateUserInput{Email: "no-at-sign", Name: "x", Password: "long enough"})
	require.Error(t, err)
	_, err = svc.Create(context.Background(), CreateUserInput{Email: "a@b.c", Name: "x", Password: "short"})
	require.Error(t, err)

	createUser(t, svc)
	_, err = svc.Create(context.Background(), CreateUserInput{Email: "finance@example.com", Name: "dup", Password: "long enough"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, repo := usersFixture(t)
	user := createUser(t, svc)

	token, plaintext, err := svc.IssueToken(context.Background(), user.ID, "ci", time.Hour)
	require.NoError(t, err)
	require.NotContains(t, repo.tokens[token.ID].SecretHash, plaintext, "secret is stored hashed")

	got, err := svc.VerifyToken(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotNil(t, repo.tokens[token.ID].LastUsedAt)
}

func TestVerifyTokenRejections(t *testing.T) {
	svc, _ := usersFixture(t)
	user := createUser(t, svc)
	_, plaintext, err := svc.IssueToken(context.Background(), user.ID, "ci", time.Hour)
	require.NoError(t, err)

	_, err = svc.VerifyToken(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.VerifyToken(context.Background(), "99999.deadbeef")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.VerifyToken(context.Background(), plaintext+"tampered")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenExpiry(t *testing.T) {
	svc, _ := usersFixture(t)
	user := createUser(t, svc)

	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return issued })
	_, plaintext, err := svc.IssueToken(context.Background(), user.ID, "ci", time.Hour)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return issued.Add(30 * time.Minute) })
	_, err = svc.VerifyToken(context.Background(), plaintext)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.VerifyToken(context.Background(), plaintext)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRevokeToken(t *testing.T) {
	svc, _ := usersFixture(t)
	owner := createUser(t, svc)
	other, err := svc.Create(context.Background(), CreateUserInput{
		Email:    "other@example.com",
		Name:     "Other",
		Password: "long enough password",
	})
	require.NoError(t, err)

	token, plaintext, err := svc.IssueToken(context.Background(), owner.ID, "ci", time.Hour)
	require.NoError(t, err)

	require.ErrorIs(t, svc.RevokeToken(context.Background(), other.ID, token.ID), ErrTokenInvalid)
	require.NoError(t, svc.RevokeToken(context.Background(), owner.ID, token.ID))
	_, err = svc.VerifyToken(context.Background(), plaintext)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
