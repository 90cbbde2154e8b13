package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medal/internal/apperr"
	"medal/internal/clock"
	"medal/internal/models"
	"medal/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *clock.Manual) {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, store, clk, logger), store, clk
}

func createPasswordAccount(t *testing.T, svc *Service, store *memory.Store, username, password string) *models.SessionUser {
	t.Helper()
	ctx := context.Background()
	user := &models.SessionUser{Username: &username}
	require.NoError(t, store.CreateSession(ctx, user), "account row should be created")
	require.NoError(t, svc.SetPassword(ctx, user, password), "password should be set")
	return user
}

func TestLoginWithPassword(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	createPasswordAccount(t, svc, store, "alice", "secret")

	t.Run("correct credentials open a session", func(t *testing.T) {
		user, err := svc.LoginWithPassword(ctx, "alice", "secret")
		require.NoError(t, err)
		require.NotNil(t, user.SessionToken, "login should issue a session token")
		assert.NotEmpty(t, user.CsrfToken, "login should issue a CSRF token")
		assert.NotNil(t, user.LastLogin)
	})

	t.Run("wrong password fails opaquely", func(t *testing.T) {
		_, err := svc.LoginWithPassword(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed)
	})

	t.Run("unknown user fails with the same error", func(t *testing.T) {
		_, err := svc.LoginWithPassword(ctx, "nobody", "secret")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed)
	})

	t.Run("each login rotates the token", func(t *testing.T) {
		first, err := svc.LoginWithPassword(ctx, "alice", "secret")
		require.NoError(t, err)
		second, err := svc.LoginWithPassword(ctx, "alice", "secret")
		require.NoError(t, err)
		assert.NotEqual(t, *first.SessionToken, *second.SessionToken, "session token must change on re-login")

		stale, err := store.SessionByToken(ctx, *first.SessionToken)
		require.NoError(t, err)
		assert.Nil(t, stale, "the previous token should no longer resolve")
	})
}

func TestLoginWithCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	code := "uABCD2345"
	account := &models.SessionUser{LoginCode: &code}
	require.NoError(t, store.CreateSession(ctx, account))

	user, err := svc.LoginWithCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, account.ID, user.ID)
	assert.NotNil(t, user.SessionToken)

	_, err = svc.LoginWithCode(ctx, "uWRONG234")
	assert.ErrorIs(t, err, apperr.ErrAuthFailed)
}

func TestLoginWithGroupCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	teacher := &models.SessionUser{IsTeacher: true}
	require.NoError(t, store.CreateSession(ctx, teacher))
	grp := &models.Group{Name: "class 7b", GroupCode: "gX2345Y", AdminID: teacher.ID}
	require.NoError(t, store.CreateGroup(ctx, grp))

	t.Run("valid code provisions a managed account", func(t *testing.T) {
		user, err := svc.LoginWithGroupCode(ctx, "gX2345Y")
		require.NoError(t, err)
		require.NotNil(t, user.ManagedBy, "new account must belong to the group")
		assert.Equal(t, grp.ID, *user.ManagedBy)
		require.NotNil(t, user.LoginCode, "new account gets its own login code")
		assert.NotNil(t, user.SessionToken)

		again, err := svc.LoginWithCode(ctx, *user.LoginCode)
		require.NoError(t, err, "the issued login code must work afterwards")
		assert.Equal(t, user.ID, again.ID)
	})

	t.Run("unknown code writes nothing", func(t *testing.T) {
		detail, err := store.GroupByID(ctx, grp.ID)
		require.NoError(t, err)
		before := len(detail.Members)

		_, err = svc.LoginWithGroupCode(ctx, "gNOPE42")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed)

		detail, err = store.GroupByID(ctx, grp.ID)
		require.NoError(t, err)
		assert.Equal(t, before, len(detail.Members), "failed group login must not create accounts")
	})
}

func TestLoginForeign(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.LoginForeign(ctx, "pms", "4711", true, "Eva", "Beispiel")
	require.NoError(t, err)
	assert.True(t, first.IsTeacher)
	assert.Equal(t, models.SchoolGradeNoStudent, first.Grade, "new teacher accounts carry the no-student grade")

	second, err := svc.LoginForeign(ctx, "pms", "4711", true, "Eva", "Muster")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeated foreign login reuses the account")
	assert.Equal(t, "Muster", *second.Lastname, "repeated login refreshes the name")

	student, err := svc.LoginForeign(ctx, "pms", "0815", false, "Max", "Beispiel")
	require.NoError(t, err)
	assert.Equal(t, models.SchoolGradeNone, student.Grade, "new student accounts start without a grade")
}

func TestLiveSession(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	createPasswordAccount(t, svc, store, "alice", "secret")
	user, err := svc.LoginWithPassword(ctx, "alice", "secret")
	require.NoError(t, err)
	sessionToken := *user.SessionToken

	t.Run("fresh session is live", func(t *testing.T) {
		live, err := svc.LiveSession(ctx, sessionToken)
		require.NoError(t, err)
		require.NotNil(t, live)
		assert.Equal(t, user.ID, live.ID)
	})

	t.Run("activity slides the window", func(t *testing.T) {
		clk.Advance(80 * time.Minute)
		live, err := svc.LiveSession(ctx, sessionToken)
		require.NoError(t, err)
		require.NotNil(t, live, "session touched within the window stays live")

		clk.Advance(80 * time.Minute)
		live, err = svc.LiveSession(ctx, sessionToken)
		require.NoError(t, err)
		assert.NotNil(t, live, "the previous touch extended the window")
	})

	t.Run("idle session expires", func(t *testing.T) {
		clk.Advance(91 * time.Minute)
		live, err := svc.LiveSession(ctx, sessionToken)
		require.NoError(t, err)
		assert.Nil(t, live, "session past the window must not resolve")
	})
}

func TestResolveSession(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()

	t.Run("unknown token mints an anonymous session", func(t *testing.T) {
		user, err := svc.ResolveSession(ctx, "no-such-token")
		require.NoError(t, err)
		require.NotNil(t, user.SessionToken)
		assert.Equal(t, models.LoginKindAnonymous, user.LoginKind())
	})

	t.Run("expired token is replaced", func(t *testing.T) {
		createPasswordAccount(t, svc, store, "bob", "secret")
		user, err := svc.LoginWithPassword(ctx, "bob", "secret")
		require.NoError(t, err)
		oldToken := *user.SessionToken

		clk.Advance(2 * time.Hour)
		replacement, err := svc.ResolveSession(ctx, oldToken)
		require.NoError(t, err)
		assert.NotEqual(t, user.ID, replacement.ID, "expired token resolves to a fresh anonymous session")
		assert.NotEqual(t, oldToken, *replacement.SessionToken)
	})
}

func TestLogout(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	createPasswordAccount(t, svc, store, "alice", "secret")
	user, err := svc.LoginWithPassword(ctx, "alice", "secret")
	require.NoError(t, err)
	sessionToken := *user.SessionToken

	require.NoError(t, svc.Logout(ctx, sessionToken))

	gone, err := store.SessionByToken(ctx, sessionToken)
	require.NoError(t, err)
	assert.Nil(t, gone, "token must not resolve after logout")

	row, err := store.SessionByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, row, "account row survives logout")
	assert.Nil(t, row.SessionToken)

	_, err = svc.LoginWithPassword(ctx, "alice", "secret")
	assert.NoError(t, err, "credentials keep working after logout")
}

func TestAuthenticatedSession(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	createPasswordAccount(t, svc, store, "alice", "secret")

	t.Run("empty token is not logged in", func(t *testing.T) {
		_, err := svc.AuthenticatedSession(ctx, "")
		assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	})

	t.Run("unknown token is not logged in", func(t *testing.T) {
		_, err := svc.AuthenticatedSession(ctx, "no-such-token")
		assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	})

	t.Run("anonymous session does not count", func(t *testing.T) {
		anon, err := svc.NewAnonymousSession(ctx)
		require.NoError(t, err)
		_, err = svc.AuthenticatedSession(ctx, *anon.SessionToken)
		assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	})

	t.Run("live login resolves", func(t *testing.T) {
		user, err := svc.LoginWithPassword(ctx, "alice", "secret")
		require.NoError(t, err)
		got, err := svc.AuthenticatedSession(ctx, *user.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("lapsed session reports a timeout", func(t *testing.T) {
		user, err := svc.LoginWithPassword(ctx, "alice", "secret")
		require.NoError(t, err)
		clk.Advance(SessionWindow + time.Minute)
		_, err = svc.AuthenticatedSession(ctx, *user.SessionToken)
		assert.ErrorIs(t, err, apperr.ErrSessionTimeout)
	})
}

func TestUpdateProfile(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	createPasswordAccount(t, svc, store, "alice", "secret")

	user, err := svc.LoginWithPassword(ctx, "alice", "secret")
	require.NoError(t, err)

	t.Run("csrf mismatch is rejected", func(t *testing.T) {
		err := svc.UpdateProfile(ctx, user, "wrong", ProfileUpdate{})
		assert.ErrorIs(t, err, apperr.ErrCsrfCheckFailed)
	})

	t.Run("fields update, omitted fields survive", func(t *testing.T) {
		first, city := "Ada", "Bonn"
		require.NoError(t, svc.UpdateProfile(ctx, user, user.CsrfToken, ProfileUpdate{
			Firstname: &first,
			City:      &city,
		}))
		grade := 9
		require.NoError(t, svc.UpdateProfile(ctx, user, user.CsrfToken, ProfileUpdate{Grade: &grade}))

		row, err := store.SessionByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, row.Firstname)
		assert.Equal(t, "Ada", *row.Firstname, "firstname from the first update")
		require.NotNil(t, row.City)
		assert.Equal(t, "Bonn", *row.City, "city must survive the grade-only update")
		assert.Equal(t, 9, row.Grade)
	})

	t.Run("password change swaps the credential", func(t *testing.T) {
		require.NoError(t, svc.UpdateProfile(ctx, user, user.CsrfToken, ProfileUpdate{Password: "newpass"}))

		_, err := svc.LoginWithPassword(ctx, "alice", "secret")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed, "old password must stop working")
		_, err = svc.LoginWithPassword(ctx, "alice", "newpass")
		assert.NoError(t, err, "new password must work")
	})
}
