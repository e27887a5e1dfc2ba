package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/user/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	conn, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	repo, err := store.NewSQLRepository(db.NewPool(conn, conn))
	require.NoError(t, err)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	// MinCost keeps the hashing fast in tests.
	return NewService(repo, tokens, 4, logger.Default())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Alice@Example.com", "correct-horse", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.DisplayName)

	got, loginToken, err := svc.Login(ctx, "alice@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, loginToken)
	assert.Equal(t, user.ID, got.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "not-an-email", "correct-horse", "")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	_, _, err = svc.Register(ctx, "bob@example.com", "short", "")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "carol@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "carol@example.com", "other-password", "")
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

// Wrong password and unknown email fail identically so login cannot be used
// to probe which addresses are registered.
func TestLoginUniformFailure(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "dave@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, _, wrongPass := svc.Login(ctx, "dave@example.com", "wrong-password")
	require.Error(t, wrongPass)
	assert.True(t, apperr.IsUnauthorized(wrongPass))

	_, _, unknown := svc.Login(ctx, "nobody@example.com", "correct-horse")
	require.Error(t, unknown)
	assert.True(t, apperr.IsUnauthorized(unknown))

	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "erin@example.com", "correct-horse", "Erin")
	require.NoError(t, err)

	name := "Erin Q."
	avatar := "https://example.com/erin.png"
	updated, err := svc.UpdateProfile(ctx, user.ID, &name, &avatar)
	require.NoError(t, err)
	assert.Equal(t, "Erin Q.", updated.DisplayName)
	assert.Equal(t, "https://example.com/erin.png", updated.AvatarURL)

	// A nil field leaves the stored value alone.
	newAvatar := "https://example.com/erin2.png"
	updated, err = svc.UpdateProfile(ctx, user.ID, nil, &newAvatar)
	require.NoError(t, err)
	assert.Equal(t, "Erin Q.", updated.DisplayName)

	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Erin Q.", got.DisplayName)
	assert.Equal(t, "https://example.com/erin2.png", got.AvatarURL)
}
