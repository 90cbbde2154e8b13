package group

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger), store
}

func createTeacher(t *testing.T, store *memory.Store) *models.SessionUser {
	t.Helper()
	teacher := &models.SessionUser{IsTeacher: true, CsrfToken: "csrf-teacher"}
	require.NoError(t, store.CreateSession(context.Background(), teacher))
	return teacher
}

func TestCreateGroup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	teacher := createTeacher(t, store)

	t.Run("teacher creates a group with a generated code", func(t *testing.T) {
		grp, err := svc.CreateGroup(ctx, teacher, "csrf-teacher", "class 7b", "7b")
		require.NoError(t, err)
		assert.Equal(t, teacher.ID, grp.AdminID)
		assert.True(t, strings.HasPrefix(grp.GroupCode, "g"), "group code carries the g prefix")
		assert.Len(t, grp.GroupCode, 7)
	})

	t.Run("students may not create groups", func(t *testing.T) {
		student := &models.SessionUser{CsrfToken: "csrf-student"}
		require.NoError(t, store.CreateSession(ctx, student))
		_, err := svc.CreateGroup(ctx, student, "csrf-student", "class", "")
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})

	t.Run("csrf mismatch is rejected", func(t *testing.T) {
		_, err := svc.CreateGroup(ctx, teacher, "stolen-token", "class", "")
		assert.ErrorIs(t, err, apperr.ErrCsrfCheckFailed)
	})
}

func TestGroups(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	teacher := createTeacher(t, store)
	other := createTeacher(t, store)

	_, err := svc.CreateGroup(ctx, teacher, "csrf-teacher", "first", "")
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, teacher, "csrf-teacher", "second", "")
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, other, "csrf-teacher", "theirs", "")
	require.NoError(t, err)

	groups, err := svc.Groups(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, groups, 2, "a teacher only lists their own groups")
	assert.Equal(t, "first", groups[0].Name)
	assert.Equal(t, "second", groups[1].Name)

	student := &models.SessionUser{}
	require.NoError(t, store.CreateSession(ctx, student))
	_, err = svc.Groups(ctx, student)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestGroupDetail(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	teacher := createTeacher(t, store)
	other := createTeacher(t, store)

	grp, err := svc.CreateGroup(ctx, teacher, "csrf-teacher", "class 7b", "7b")
	require.NoError(t, err)

	member := &models.SessionUser{ManagedBy: &grp.ID}
	require.NoError(t, store.CreateSession(ctx, member))

	t.Run("owner sees the member list", func(t *testing.T) {
		detail, err := svc.GroupDetail(ctx, teacher, grp.ID)
		require.NoError(t, err)
		require.Len(t, detail.Members, 1)
		assert.Equal(t, member.ID, detail.Members[0].ID)
	})

	t.Run("other admins are locked out", func(t *testing.T) {
		_, err := svc.GroupDetail(ctx, other, grp.ID)
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		_, err := svc.GroupDetail(ctx, teacher, 9999)
		assert.ErrorIs(t, err, apperr.ErrUnknownID)
	})
}
