package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetings-backend/internal/models"
)

func TestSignUp(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.svc.SignUp(context.Background(), "Jane@Acme.vc", "hunter22", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, 100, session.Balance)
	assert.Equal(t, "jane@acme.vc", session.User.Email)
	assert.Equal(t, models.ProviderPassword, session.User.Provider)
	assert.NotEqual(t, "hunter22", session.User.PasswordHash)

	claims, err := env.svc.Issuer().Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)
}

func TestSignUp_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SignUp(ctx, "not-an-email", "hunter22", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	for _, addr := range []string{"Bob <bob@x.com>", "<bob@x.com>", `"Bob" <bob@x.com>`} {
		_, err = env.svc.SignUp(ctx, addr, "hunter22", "hunter22")
		assert.ErrorIs(t, err, ErrInvalidEmail, addr)
	}

	_, err = env.svc.SignUp(ctx, "a@b.co", "hunter22", "hunter23")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = env.svc.SignUp(ctx, "a@b.co", "abc", "abc")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = env.svc.SignUp(ctx, "a@b.co", "hunter22", "hunter22")
	require.NoError(t, err)
	_, err = env.svc.SignUp(ctx, "A@b.co", "hunter22", "hunter22")
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	up, err := env.svc.SignUp(ctx, "jane@acme.vc", "hunter22", "hunter22")
	require.NoError(t, err)
	env.accounts.balances[up.User.ID] = 40

	in, err := env.svc.SignIn(ctx, "jane@acme.vc", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, up.User.ID, in.User.ID)
	assert.Equal(t, 40, in.Balance, "sign-in never re-grants")

	_, err = env.svc.SignIn(ctx, "jane@acme.vc", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.SignIn(ctx, "nobody@acme.vc", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignIn_ExternalAccountHasNoPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SignInExternal(ctx, models.ProviderGoogle, "g@acme.vc")
	require.NoError(t, err)

	_, err = env.svc.SignIn(ctx, "g@acme.vc", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInExternal_ReusesIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.SignInExternal(ctx, models.ProviderGoogle, "g@acme.vc")
	require.NoError(t, err)
	assert.Equal(t, 100, first.Balance)

	second, err := env.svc.SignInExternal(ctx, models.ProviderGoogle, "G@acme.vc")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
}

func TestSignInExternal_RejectsDisplayName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SignInExternal(context.Background(), models.ProviderGoogle, "G User <g@acme.vc>")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.svc.SignUp(ctx, "jane@acme.vc", "hunter22", "hunter22")
	require.NoError(t, err)
	claims, err := env.svc.Issuer().Parse(session.Token)
	require.NoError(t, err)

	require.NoError(t, env.svc.SignOut(ctx, claims))

	revoked, err := env.revoker.IsRevoked(claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Greater(t, env.revoker.revoked[claims.ID].Minutes(), 59.0)

	events := env.notifier.events[claims.Subject]
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSignedOut, events[0].Type)
}

func TestUserMessage(t *testing.T) {
	msg, ok := UserMessage(ErrInvalidCredentials)
	assert.True(t, ok)
	assert.Equal(t, "Invalid username/email or password", msg)

	msg, ok = UserMessage(ErrWeakPassword)
	assert.True(t, ok)
	assert.Equal(t, "Password should be at least 6 characters", msg)

	_, ok = UserMessage(assert.AnError)
	assert.False(t, ok)
}
