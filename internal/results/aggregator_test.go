package results

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage/memory"
)

func newTestAggregator(t *testing.T) (*Aggregator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAggregator(store, store, nil, logger), store
}

// seedContestWithGroups builds one contest with two active taskgroups, an
// admin with two groups and three students, and a scattering of grades.
func seedContestWithGroups(t *testing.T, store *memory.Store) (admin *models.SessionUser, contestID int, tgIDs []int, studentIDs []int) {
	t.Helper()
	ctx := context.Background()

	contest := &models.Contest{
		Name:   "round 2",
		Public: true,
		Taskgroups: []models.Taskgroup{
			{Name: "A", Active: true, Position: 1, Tasks: []models.Task{{Location: "a", Stars: 3}}},
			{Name: "B", Active: true, Position: 2, Tasks: []models.Task{{Location: "b", Stars: 5}}},
		},
	}
	require.NoError(t, store.CreateContest(ctx, contest))

	admin = &models.SessionUser{IsTeacher: true, Grade: models.SchoolGradeNoStudent}
	require.NoError(t, store.CreateSession(ctx, admin))

	firstGroup := &models.Group{Name: "class 7a", GroupCode: "gAAAAAA", AdminID: admin.ID}
	require.NoError(t, store.CreateGroup(ctx, firstGroup))
	secondGroup := &models.Group{Name: "class 7b", GroupCode: "gBBBBBB", AdminID: admin.ID}
	require.NoError(t, store.CreateGroup(ctx, secondGroup))

	groups := []*models.Group{firstGroup, firstGroup, secondGroup}
	names := []string{"ada", "ben", "cleo"}
	for i, name := range names {
		n := name
		student := &models.SessionUser{Firstname: &n, ManagedBy: &groups[i].ID, Grade: 7}
		require.NoError(t, store.CreateSession(ctx, student))
		studentIDs = append(studentIDs, student.ID)
	}

	tgIDs = []int{contest.Taskgroups[0].ID, contest.Taskgroups[1].ID}
	setGrade := func(taskgroupID, userID, value int) {
		improved, err := store.SubmitSubmission(ctx, &models.Submission{
			UserID: userID,
			TaskID: taskIDFor(contest, taskgroupID),
			Grade:  value,
		}, func(_ *models.Grade, tgID, uID int) (models.Grade, bool) {
			v := value
			return models.Grade{TaskgroupID: tgID, UserID: uID, Grade: &v}, true
		})
		require.NoError(t, err)
		require.True(t, improved)
	}
	setGrade(tgIDs[0], studentIDs[0], 3) // ada solves A fully
	setGrade(tgIDs[1], studentIDs[0], 2) // ada gets 2 on B
	setGrade(tgIDs[1], studentIDs[1], 5) // ben only touches B
	setGrade(tgIDs[0], studentIDs[2], 1) // cleo only touches A

	return admin, contest.ID, tgIDs, studentIDs
}

func taskIDFor(contest *models.Contest, taskgroupID int) int {
	for _, tg := range contest.Taskgroups {
		if tg.ID == taskgroupID {
			return tg.Tasks[0].ID
		}
	}
	return 0
}

func TestGroupResults(t *testing.T) {
	aggregator, store := newTestAggregator(t)
	ctx := context.Background()
	admin, contestID, _, studentIDs := seedContestWithGroups(t, store)

	view, err := aggregator.GroupResults(ctx, admin, contestID)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, view.TaskNames, "columns follow taskgroup position order")
	assert.Equal(t, 8, view.MaxTotal, "reachable total sums the hardest task of each group")
	require.Len(t, view.Groups, 2)

	first := view.Groups[0]
	assert.Equal(t, "class 7a", first.Group.Name)
	require.Len(t, first.Students, 2)

	ada := first.Students[0]
	assert.Equal(t, studentIDs[0], ada.Student.ID)
	require.NotNil(t, ada.Grades[0].Grade)
	assert.Equal(t, 3, *ada.Grades[0].Grade)
	require.NotNil(t, ada.Grades[1].Grade)
	assert.Equal(t, 2, *ada.Grades[1].Grade)
	assert.Equal(t, 5, ada.Total)

	ben := first.Students[1]
	assert.Nil(t, ben.Grades[0].Grade, "missing cell is padded with an empty grade")
	require.NotNil(t, ben.Grades[1].Grade)
	assert.Equal(t, 5, *ben.Grades[1].Grade)
	assert.Equal(t, 5, ben.Total)

	second := view.Groups[1]
	assert.Equal(t, "class 7b", second.Group.Name)
	require.Len(t, second.Students, 1)
	cleo := second.Students[0]
	require.NotNil(t, cleo.Grades[0].Grade)
	assert.Equal(t, 1, *cleo.Grades[0].Grade)
	assert.Nil(t, cleo.Grades[1].Grade)
}

func TestGroupResultsEmpty(t *testing.T) {
	aggregator, store := newTestAggregator(t)
	ctx := context.Background()

	contest := &models.Contest{
		Name:   "empty round",
		Public: true,
		Taskgroups: []models.Taskgroup{
			{Name: "A", Active: true, Position: 1, Tasks: []models.Task{{Location: "a", Stars: 3}}},
		},
	}
	require.NoError(t, store.CreateContest(ctx, contest))
	admin := &models.SessionUser{IsTeacher: true}
	require.NoError(t, store.CreateSession(ctx, admin))

	view, err := aggregator.GroupResults(ctx, admin, contest.ID)
	require.NoError(t, err)
	assert.Empty(t, view.TaskNames, "no grade rows means no task columns either")
	assert.Zero(t, view.MaxTotal)
	assert.Empty(t, view.Groups, "no grades is an empty view, not an error")
}

func TestGroupResultsAccess(t *testing.T) {
	aggregator, store := newTestAggregator(t)
	ctx := context.Background()
	_, contestID, _, _ := seedContestWithGroups(t, store)

	student := &models.SessionUser{}
	require.NoError(t, store.CreateSession(ctx, student))
	_, err := aggregator.GroupResults(ctx, student, contestID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied, "students cannot read group results")

	admin := &models.SessionUser{IsTeacher: true}
	require.NoError(t, store.CreateSession(ctx, admin))
	_, err = aggregator.GroupResults(ctx, admin, 9999)
	assert.ErrorIs(t, err, apperr.ErrUnknownID)
}

func TestGroupResultsIsolatedPerAdmin(t *testing.T) {
	aggregator, store := newTestAggregator(t)
	ctx := context.Background()
	_, contestID, _, _ := seedContestWithGroups(t, store)

	other := &models.SessionUser{IsTeacher: true}
	require.NoError(t, store.CreateSession(ctx, other))

	view, err := aggregator.GroupResults(ctx, other, contestID)
	require.NoError(t, err)
	assert.Empty(t, view.Groups, "admins only see their own groups")
}

func TestContestGrades(t *testing.T) {
	aggregator, store := newTestAggregator(t)
	ctx := context.Background()
	_, contestID, _, studentIDs := seedContestWithGroups(t, store)

	t.Run("own vector follows column order", func(t *testing.T) {
		ada := &models.SessionUser{ID: studentIDs[0]}
		grades, err := aggregator.ContestGrades(ctx, ada, contestID)
		require.NoError(t, err)
		require.Len(t, grades, 2)
		assert.Equal(t, 3, *grades[0].Grade)
		assert.Equal(t, 2, *grades[1].Grade)
		assert.Equal(t, 5, Total(grades))
	})

	t.Run("missing cells are padded", func(t *testing.T) {
		ben := &models.SessionUser{ID: studentIDs[1]}
		grades, err := aggregator.ContestGrades(ctx, ben, contestID)
		require.NoError(t, err)
		require.Len(t, grades, 2)
		assert.Nil(t, grades[0].Grade)
		assert.Equal(t, 5, *grades[1].Grade)
	})

	t.Run("no grades yields an all-empty vector", func(t *testing.T) {
		nobody := &models.SessionUser{ID: 9999}
		grades, err := aggregator.ContestGrades(ctx, nobody, contestID)
		require.NoError(t, err)
		require.Len(t, grades, 2)
		assert.Nil(t, grades[0].Grade)
		assert.Nil(t, grades[1].Grade)
		assert.Equal(t, 0, Total(grades))
	})
}
