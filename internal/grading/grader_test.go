package grading

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

type recordingInvalidator struct {
	contests []int
}

func (r *recordingInvalidator) InvalidateContest(_ context.Context, contestID int) error {
	r.contests = append(r.contests, contestID)
	return nil
}

func newTestGrader(t *testing.T) (*Grader, *memory.Store, *recordingInvalidator) {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	invalidator := &recordingInvalidator{}
	return NewGrader(store, store, clk, logger, invalidator), store, invalidator
}

func seedTask(t *testing.T, store *memory.Store, stars int) (contestID, taskgroupID, taskID int) {
	t.Helper()
	contest := &models.Contest{
		Name:   "round 1",
		Public: true,
		Taskgroups: []models.Taskgroup{
			{Name: "task A", Active: true, Position: 1, Tasks: []models.Task{{Location: "a", Stars: stars}}},
		},
	}
	require.NoError(t, store.CreateContest(context.Background(), contest))
	return contest.ID, contest.Taskgroups[0].ID, contest.Taskgroups[0].Tasks[0].ID
}

func TestStarGrade(t *testing.T) {
	cases := []struct {
		percent, stars, expected int
	}{
		{0, 3, 0},
		{100, 3, 3},
		{50, 3, 2},  // 1.5 stars rounds up
		{49, 3, 1},  // 1.47 stars rounds down
		{100, 5, 5},
		{90, 5, 5},  // 4.5 rounds up
		{89, 5, 4},
		{33, 3, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, StarGrade(tc.percent, tc.stars),
			"percent=%d stars=%d", tc.percent, tc.stars)
	}
}

func TestRecordSubmission(t *testing.T) {
	grader, store, invalidator := newTestGrader(t)
	ctx := context.Background()
	contestID, taskgroupID, taskID := seedTask(t, store, 3)
	user := &models.SessionUser{ID: 1}

	t.Run("first submission sets the grade", func(t *testing.T) {
		submission, err := grader.RecordSubmission(ctx, user, taskID, nil, 50, `{"state":1}`)
		require.NoError(t, err)
		assert.Equal(t, 2, submission.Grade)
		assert.True(t, submission.NeedsValidation, "fresh submissions await validation")
		assert.False(t, submission.Validated)

		grade, err := store.GradeFor(ctx, taskgroupID, user.ID)
		require.NoError(t, err)
		require.NotNil(t, grade)
		require.NotNil(t, grade.Grade)
		assert.Equal(t, 2, *grade.Grade)
		assert.Equal(t, []int{contestID}, invalidator.contests, "a grade change invalidates the contest cache")
	})

	t.Run("worse submission never lowers the grade", func(t *testing.T) {
		_, err := grader.RecordSubmission(ctx, user, taskID, nil, 10, `{"state":2}`)
		require.NoError(t, err)

		grade, err := store.GradeFor(ctx, taskgroupID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, *grade.Grade, "best grade must be monotonic")
		assert.Len(t, invalidator.contests, 1, "no improvement means no invalidation")
	})

	t.Run("equal submission is a grade no-op", func(t *testing.T) {
		_, err := grader.RecordSubmission(ctx, user, taskID, nil, 50, `{"state":3}`)
		require.NoError(t, err)
		assert.Len(t, invalidator.contests, 1)
	})

	t.Run("better submission raises the grade", func(t *testing.T) {
		_, err := grader.RecordSubmission(ctx, user, taskID, nil, 100, `{"state":4}`)
		require.NoError(t, err)

		grade, err := store.GradeFor(ctx, taskgroupID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, *grade.Grade)
		assert.Len(t, invalidator.contests, 2)
	})

	t.Run("submissions are append-only", func(t *testing.T) {
		latest, err := grader.LatestSubmission(ctx, user, taskID, nil)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, `{"state":4}`, latest.Value, "newest submission wins the load")
		assert.Equal(t, 4, latest.ID, "every save created its own row")
	})

	t.Run("unknown task is rejected", func(t *testing.T) {
		_, err := grader.RecordSubmission(ctx, user, 9999, nil, 50, "{}")
		assert.ErrorIs(t, err, apperr.ErrUnknownID)
	})
}

func TestLatestSubmissionSubtasks(t *testing.T) {
	grader, store, _ := newTestGrader(t)
	ctx := context.Background()
	_, _, taskID := seedTask(t, store, 3)
	user := &models.SessionUser{ID: 1}
	subtaskA := "a"

	_, err := grader.RecordSubmission(ctx, user, taskID, nil, 40, "plain")
	require.NoError(t, err)
	_, err = grader.RecordSubmission(ctx, user, taskID, &subtaskA, 60, "sub-a")
	require.NoError(t, err)

	plain, err := grader.LatestSubmission(ctx, user, taskID, nil)
	require.NoError(t, err)
	require.NotNil(t, plain)
	assert.Equal(t, "plain", plain.Value, "nil subtask matches only rows without one")

	withSub, err := grader.LatestSubmission(ctx, user, taskID, &subtaskA)
	require.NoError(t, err)
	require.NotNil(t, withSub)
	assert.Equal(t, "sub-a", withSub.Value)

	other := "b"
	none, err := grader.LatestSubmission(ctx, user, taskID, &other)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGradesArePerUser(t *testing.T) {
	grader, store, _ := newTestGrader(t)
	ctx := context.Background()
	_, taskgroupID, taskID := seedTask(t, store, 3)

	alice := &models.SessionUser{ID: 1}
	bob := &models.SessionUser{ID: 2}

	_, err := grader.RecordSubmission(ctx, alice, taskID, nil, 100, "alice")
	require.NoError(t, err)
	_, err = grader.RecordSubmission(ctx, bob, taskID, nil, 33, "bob")
	require.NoError(t, err)

	aliceGrade, err := store.GradeFor(ctx, taskgroupID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *aliceGrade.Grade)

	bobGrade, err := store.GradeFor(ctx, taskgroupID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *bobGrade.Grade)
}
