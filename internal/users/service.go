package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service wraps account and token business rules.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	now      func() time.Time
	hashCost int
}

// NewService constructs the users service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now, hashCost: bcrypt.DefaultCost}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithHashCost lowers the bcrypt cost in tests.
func (s *Service) WithHashCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.hashCost = cost
	}
}

// Create registers an account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, in CreateUserInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.repo.InsertUser(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken creates an API token for the user and returns its plaintext
// form "id.secret". The secret is never stored.
func (s *Service) IssueToken(ctx context.Context, userID int64, label string, ttl time.Duration) (Token, string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Token{}, "", err
	}
	if !user.IsActive {
		return Token{}, "", ErrInvalidCredentials
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, "", err
	}
	secret := hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return Token{}, "", err
	}
	token := Token{
		UserID:     user.ID,
		Label:      label,
		SecretHash: string(hash),
	}
	if ttl > 0 {
		expires := s.now().Add(ttl)
		token.ExpiresAt = &expires
	}
	if err := s.repo.InsertToken(ctx, &token); err != nil {
		return Token{}, "", err
	}
	return token, fmt.Sprintf("%d.%s", token.ID, secret), nil
}

// VerifyToken resolves a plaintext token to its owning user.
func (s *Service) VerifyToken(ctx context.Context, raw string) (User, error) {
	idPart, secret, ok := strings.Cut(raw, ".")
	if !ok || secret == "" {
		return User{}, ErrTokenInvalid
	}
	tokenID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return User{}, ErrTokenInvalid
	}
	token, err := s.repo.FindToken(ctx, tokenID)
	if err != nil {
		return User{}, ErrTokenInvalid
	}
	if token.Expired(s.now()) {
		return User{}, ErrTokenInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return User{}, ErrTokenInvalid
	}
	user, err := s.repo.FindByID(ctx, token.UserID)
	if err != nil || !user.IsActive {
		return User{}, ErrTokenInvalid
	}
	if err := s.repo.TouchToken(ctx, token.ID, s.now()); err != nil {
		s.logger.Warn("touch token", slog.Any("error", err))
	}
	return user, nil
}

// RevokeToken deletes a token. Only the owner may revoke it.
func (s *Service) RevokeToken(ctx context.Context, userID, tokenID int64) error {
	token, err := s.repo.FindToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.UserID != userID {
		return ErrTokenInvalid
	}
	return s.repo.DeleteToken(ctx, tokenID)
}

// Get loads a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}
