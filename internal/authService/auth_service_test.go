package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	"auction-house/internal/crypto"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const secret = "test-secret"

func newTestAuthService(t *testing.T) (*AuthService, *repository.MemoryRepo) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	return NewAuthService(repo, clock.NewManual(now), secret, time.Hour), repo
}

func TestRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    RegisterInput
		wantErr  error
		wantRole model.Role
	}{
		{
			name:     "defaults to bidder",
			input:    RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"},
			wantRole: model.RoleBidder,
		},
		{
			name:     "seller",
			input:    RegisterInput{Name: "Sam", Email: "Sam@Example.com", Password: "secret1", Role: model.RoleSeller},
			wantRole: model.RoleSeller,
		},
		{
			name:    "admin cannot self-register",
			input:   RegisterInput{Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: model.RoleAdmin},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "unknown role",
			input:   RegisterInput{Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: "root"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "short password",
			input:   RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "12345"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "missing name",
			input:   RegisterInput{Name: "  ", Email: "ada@example.com", Password: "secret1"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "bad email",
			input:   RegisterInput{Name: "Ada", Email: "not-an-email", Password: "secret1"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "email with display name",
			input:   RegisterInput{Name: "Ada", Email: "Ada <ada@example.com>", Password: "secret1"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:    "email without domain",
			input:   RegisterInput{Name: "Ada", Email: "ada@", Password: "secret1"},
			wantErr: biddingerrors.ErrValidation,
		},
		{
			name:     "email padded with spaces",
			input:    RegisterInput{Name: "Ada", Email: "  ada@example.com ", Password: "secret1"},
			wantRole: model.RoleBidder,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, repo := newTestAuthService(t)

			session, err := svc.Register(context.Background(), tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				users, _ := repo.ListUsers(context.Background())
				require.Empty(t, users)
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, session.Token)
			require.Equal(t, tc.wantRole, session.User.Role)
			require.NotEqual(t, tc.input.Password, session.User.PasswordHash)
			require.Equal(t, now, session.User.CreatedAt)

			claims, err := crypto.ValidateToken(session.Token, secret)
			require.NoError(t, err)
			require.Equal(t, session.User.ID, claims.UserID)
			require.Equal(t, tc.wantRole, claims.Role)
		})
	}
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	t.Parallel()
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Ada 2", Email: "ADA@example.com", Password: "secret2"})
	require.ErrorIs(t, err, biddingerrors.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	session, err := svc.Login(ctx, "Ada@Example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, registered.User.ID, session.User.ID)

	_, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Name: "Sam", Email: "sam@example.com", Password: "secret1", Role: model.RoleSeller})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, user.ID)
	require.Equal(t, model.RoleSeller, user.Role)

	_, err = svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, biddingerrors.ErrUnauthorized)

	orphan, err := crypto.GenerateToken("deleted-user", model.RoleBidder, secret, time.Hour)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, orphan)
	require.ErrorIs(t, err, biddingerrors.ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	ada, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, ada.User.ID, ProfileUpdate{Email: "BOB@example.com"})
	require.ErrorIs(t, err, biddingerrors.ErrEmailTaken)

	_, err = svc.UpdateProfile(ctx, ada.User.ID, ProfileUpdate{Password: "123"})
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	updated, err := svc.UpdateProfile(ctx, ada.User.ID, ProfileUpdate{Name: "Ada L.", Email: "lovelace@example.com", Password: "newsecret"})
	require.NoError(t, err)
	require.Equal(t, "Ada L.", updated.User.Name)
	require.Equal(t, "lovelace@example.com", updated.User.Email)
	require.Equal(t, model.RoleBidder, updated.User.Role)

	_, err = svc.Login(ctx, "lovelace@example.com", "newsecret")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ada@example.com", "secret1")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidCredentials)

	_, err = svc.UpdateProfile(ctx, "missing", ProfileUpdate{Name: "x"})
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func TestListUsers_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	users := repository.NewMockUserStore(ctrl)
	dbErr := biddingerrors.Persistence("list users", errors.New("connection refused"))
	users.EXPECT().ListUsers(gomock.Any()).Return(nil, dbErr)

	svc := NewAuthService(users, clock.NewManual(now), secret, time.Hour)
	_, err := svc.ListUsers(context.Background())
	require.ErrorIs(t, err, biddingerrors.ErrPersistence)
}

func TestLogin_StoreFailureIsNotBadCredentials(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	users := repository.NewMockUserStore(ctrl)
	users.EXPECT().GetUserByEmail(gomock.Any(), "ada@example.com").
		Return(model.User{}, biddingerrors.Persistence("get user", errors.New("timeout")))

	svc := NewAuthService(users, clock.NewManual(now), secret, time.Hour)
	_, err := svc.Login(context.Background(), "ada@example.com", "secret1")
	require.ErrorIs(t, err, biddingerrors.ErrPersistence)
	require.NotErrorIs(t, err, biddingerrors.ErrInvalidCredentials)
}
