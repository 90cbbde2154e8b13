// Package results pivots stored grades into the result views shown to
// students and group admins.
package results

import (
	"context"
	"fmt"
	"log/slog"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage"
)

// StudentResult is one row of a group's result table. Grades has one
// entry per task column, NoGrade where the student never submitted.
type StudentResult struct {
	Student models.StudentInfo `json:"student"`
	Grades  []models.Grade     `json:"grades"`
	Total   int                `json:"total"`
}

type GroupResult struct {
	Group    models.Group    `json:"group"`
	Students []StudentResult `json:"students"`
}

// GroupResults is the full pivot for one admin and contest: the ordered
// task columns plus one block per group.
type GroupResults struct {
	TaskNames []string      `json:"task_names"`
	MaxTotal  int           `json:"max_total"`
	Groups    []GroupResult `json:"groups"`
}

type Aggregator struct {
	contests storage.ContestStore
	grades   storage.GradeStore
	cache    *Cache
	logger   *slog.Logger
}

// NewAggregator builds an aggregator. cache may be nil; every view is
// then computed from storage.
func NewAggregator(contests storage.ContestStore, grades storage.GradeStore, cache *Cache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		contests: contests,
		grades:   grades,
		cache:    cache,
		logger:   logger,
	}
}

// GroupResults builds the admin's result table for the contest: every
// group the admin owns, every student in it, one grade per active
// taskgroup. Only teachers get past this.
func (a *Aggregator) GroupResults(ctx context.Context, admin *models.SessionUser, contestID int) (*GroupResults, error) {
	if !admin.IsTeacher {
		return nil, apperr.ErrAccessDenied
	}

	if a.cache != nil {
		cached, err := a.cache.GetGroupResults(ctx, admin.ID, contestID)
		if err != nil {
			a.logger.Warn("result cache read failed", "contest_id", contestID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	// Tasks are needed here because the reachable total sums star values.
	contest, err := a.contests.ContestComplete(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest: %w", err)
	}
	if contest == nil {
		return nil, apperr.ErrUnknownID
	}

	columns, names, maxTotal := taskColumns(contest)
	rows, err := a.grades.ContestGradeRows(ctx, admin.ID, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grade rows: %w", err)
	}
	if len(rows) == 0 {
		// An empty row stream yields a fully empty view, task columns
		// included, not a table of empty groups.
		names, maxTotal = []string{}, 0
	}

	view := &GroupResults{TaskNames: names, MaxTotal: maxTotal, Groups: pivot(rows, columns)}

	if a.cache != nil {
		if err := a.cache.PutGroupResults(ctx, admin.ID, contestID, view); err != nil {
			a.logger.Warn("result cache write failed", "contest_id", contestID, "error", err)
		}
	}
	return view, nil
}

// ContestGrades returns the user's own grade vector for the contest, one
// entry per active taskgroup in column order.
func (a *Aggregator) ContestGrades(ctx context.Context, user *models.SessionUser, contestID int) ([]models.Grade, error) {
	contest, err := a.contests.ContestPartial(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest: %w", err)
	}
	if contest == nil {
		return nil, apperr.ErrUnknownID
	}
	columns, _, _ := taskColumns(contest)

	grades, err := a.grades.UserContestGrades(ctx, user.ID, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grades: %w", err)
	}

	vector := emptyVector(len(columns))
	for _, g := range grades {
		if col, ok := columns[g.TaskgroupID]; ok {
			vector[col] = g
		}
	}
	return vector, nil
}

// Total sums the star grades in a vector, skipping empty cells.
func Total(grades []models.Grade) int {
	total := 0
	for _, g := range grades {
		if g.Grade != nil {
			total += *g.Grade
		}
	}
	return total
}

// pivot folds the sorted row stream into nested group and student blocks
// in a single forward pass. Rows arrive ordered by group, then student,
// then task column; a change of student or group flushes the open block.
func pivot(rows []storage.GradeRow, columns map[int]int) []GroupResult {
	groups := []GroupResult{}
	n := len(columns)

	var (
		openGroup   *GroupResult
		openStudent *StudentResult
	)
	flushStudent := func() {
		if openStudent == nil {
			return
		}
		openStudent.Total = Total(openStudent.Grades)
		openGroup.Students = append(openGroup.Students, *openStudent)
		openStudent = nil
	}
	flushGroup := func() {
		if openGroup == nil {
			return
		}
		flushStudent()
		groups = append(groups, *openGroup)
		openGroup = nil
	}

	for _, row := range rows {
		if openGroup == nil || openGroup.Group.ID != row.Group.ID {
			flushGroup()
			openGroup = &GroupResult{Group: row.Group, Students: []StudentResult{}}
		}
		if openStudent == nil || openStudent.Student.ID != row.Student.ID {
			flushStudent()
			openStudent = &StudentResult{Student: row.Student, Grades: emptyVector(n)}
		}
		if col, ok := columns[row.Grade.TaskgroupID]; ok {
			openStudent.Grades[col] = row.Grade
		}
	}
	flushGroup()
	return groups
}

// taskColumns maps each active taskgroup to its column index and collects
// the column names and the maximum reachable total.
func taskColumns(contest *models.Contest) (map[int]int, []string, int) {
	columns := make(map[int]int, len(contest.Taskgroups))
	names := make([]string, 0, len(contest.Taskgroups))
	maxTotal := 0
	for i, tg := range contest.Taskgroups {
		columns[tg.ID] = i
		names = append(names, tg.Name)
		maxTotal += tg.MaxStars()
	}
	return columns, names, maxTotal
}

func emptyVector(n int) []models.Grade {
	vector := make([]models.Grade, n)
	for i := range vector {
		vector[i] = models.NoGrade()
	}
	return vector
}
