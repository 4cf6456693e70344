package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagelog/internal/repository"
	"garagelog/internal/repository/sqlite"
)

func newUserService(t *testing.T) (UserService, repository.UserRepository) {
	t.Helper()

	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(context.Background()))

	return NewUserService(users), users
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "Alice@Example.com", "correct-horse")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.PasswordHash, "hash must not leave the service")

	authed, err := svc.Authenticate(ctx, "alice@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice2", "alice@example.com", "battery-staple")
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "correct-horse")
	require.NoError(t, err)

	// a taken username with a fresh email is reported as such, not as a
	// duplicate email
	_, err = svc.Register(ctx, "alice", "fresh@example.com", "battery-staple")
	assert.True(t, errors.Is(err, ErrUsernameTaken))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"missing username", "", "a@example.com", "correct-horse"},
		{"missing email", "alice", "", "correct-horse"},
		{"malformed email", "alice", "not-an-email", "correct-horse"},
		{"short password", "alice", "a@example.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "correct-horse")
	require.NoError(t, err)

	// wrong password and unknown email return the identical sentinel
	_, wrongPassword := svc.Authenticate(ctx, "alice@example.com", "wrong-password")
	_, unknownEmail := svc.Authenticate(ctx, "nobody@example.com", "correct-horse")

	assert.True(t, errors.Is(wrongPassword, ErrInvalidCredentials))
	assert.True(t, errors.Is(unknownEmail, ErrInvalidCredentials))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}
