package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	"auction-house/internal/crypto"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

var validate = validator.New()

// RegisterInput is the data needed to open an account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
}

// ProfileUpdate carries the fields a user may change on their own account.
// Empty fields are left unchanged.
type ProfileUpdate struct {
	Name     string
	Email    string
	Password string
}

// Session is an authenticated user with a bearer token
type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// AuthService handles accounts and bearer tokens
type AuthService struct {
	users     repository.UserStore
	clock     clock.Clock
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(users repository.UserStore, clk clock.Clock, secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		clock:     clk,
		jwtSecret: secret,
		jwtExpiry: expiry,
	}
}

// Register creates a new account and returns a session for it.
// The role defaults to bidder; admin accounts cannot be self-registered.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Session{}, err
	}
	if in.Name == "" {
		return Session{}, fmt.Errorf("auth: %w - name is required", biddingerrors.ErrValidation)
	}
	if len(in.Password) < MinPasswordLength {
		return Session{}, fmt.Errorf("auth: %w - password must be at least %d characters", biddingerrors.ErrValidation, MinPasswordLength)
	}
	if in.Role == "" {
		in.Role = model.RoleBidder
	}
	if !in.Role.In(model.RoleBidder, model.RoleSeller) {
		return Session{}, fmt.Errorf("auth: %w - role %q cannot be registered", biddingerrors.ErrValidation, in.Role)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("auth: %w", err)
	}

	now := s.clock.Now()
	user := model.User{
		ID:           utils.GenerateID(),
		Name:         in.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return Session{}, fmt.Errorf("auth: failed to register %s: %w", email, err)
	}

	utils.Info("auth: user registered", map[string]any{"user_id": user.ID, "role": string(user.Role)})
	return s.session(user)
}

// Login checks credentials and returns a fresh session.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNotFound) {
			return Session{}, fmt.Errorf("auth: %w", biddingerrors.ErrInvalidCredentials)
		}
		return Session{}, fmt.Errorf("auth: failed to load user: %w", err)
	}

	match, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return Session{}, fmt.Errorf("auth: %w", err)
	}
	if !match {
		return Session{}, fmt.Errorf("auth: %w", biddingerrors.ErrInvalidCredentials)
	}

	return s.session(user)
}

// Authenticate resolves a bearer token to the user it was issued for.
// A valid token for a deleted account is rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (model.User, error) {
	claims, err := crypto.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return model.User{}, fmt.Errorf("auth: %w: %w", biddingerrors.ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNotFound) {
			return model.User{}, fmt.Errorf("auth: %w - user no longer exists", biddingerrors.ErrUnauthorized)
		}
		return model.User{}, fmt.Errorf("auth: failed to load user: %w", err)
	}
	return user, nil
}

// Profile returns the account of userID
func (s *AuthService) Profile(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("auth: failed to load profile %s: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile changes name, email or password and returns a session
// reflecting the new data. The role never changes here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (Session, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("auth: failed to load profile %s: %w", userID, err)
	}

	if name := strings.TrimSpace(upd.Name); name != "" {
		user.Name = name
	}
	if upd.Email != "" {
		email, err := normalizeEmail(upd.Email)
		if err != nil {
			return Session{}, err
		}
		user.Email = email
	}
	if upd.Password != "" {
		if len(upd.Password) < MinPasswordLength {
			return Session{}, fmt.Errorf("auth: %w - password must be at least %d characters", biddingerrors.ErrValidation, MinPasswordLength)
		}
		hash, err := crypto.HashPassword(upd.Password)
		if err != nil {
			return Session{}, fmt.Errorf("auth: %w", err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.clock.Now()

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return Session{}, fmt.Errorf("auth: failed to update profile %s: %w", userID, err)
	}
	return s.session(user)
}

// ListUsers returns every account. Callers must restrict it to admins.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to list users: %w", err)
	}
	return users, nil
}

func (s *AuthService) session(user model.User) (Session, error) {
	token, err := crypto.GenerateToken(user.ID, user.Role, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return Session{}, fmt.Errorf("auth: failed to issue token: %w", err)
	}
	return Session{Token: token, User: user}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if err := validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("auth: %w - invalid email %q", biddingerrors.ErrValidation, raw)
	}
	return strings.ToLower(email), nil
}
