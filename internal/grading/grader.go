// Package grading records submissions and maintains each user's best
// grade per taskgroup.
package grading

import (
	"context"
	"fmt"
	"log/slog"

	"medal/internal/apperr"
	"medal/internal/clock"
	"medal/internal/models"
	"medal/internal/storage"
)

// Invalidator drops cached result views after a best grade changed.
type Invalidator interface {
	InvalidateContest(ctx context.Context, contestID int) error
}

type Grader struct {
	contests    storage.ContestStore
	submissions storage.SubmissionStore
	clock       clock.Clock
	logger      *slog.Logger
	invalidator Invalidator
}

// NewGrader builds a grader. invalidator may be nil when no result cache
// is wired in.
func NewGrader(contests storage.ContestStore, submissions storage.SubmissionStore, clk clock.Clock, logger *slog.Logger, invalidator Invalidator) *Grader {
	return &Grader{
		contests:    contests,
		submissions: submissions,
		clock:       clk,
		logger:      logger,
		invalidator: invalidator,
	}
}

// StarGrade converts a percentage score on a task into the star scale the
// task carries, rounding to the nearest star.
func StarGrade(percent, stars int) int {
	return ((percent*stars*10)/100 + 5) / 10
}

// RecordSubmission stores the submission and raises the user's best grade
// for the task's group when the new grade beats it. The submission insert
// and the best-grade update happen in one storage transaction. Submissions
// are append-only; nothing ever overwrites an earlier one.
func (g *Grader) RecordSubmission(ctx context.Context, user *models.SessionUser, taskID int, subtask *string, percent int, payload string) (*models.Submission, error) {
	task, _, contest, err := g.contests.TaskComplete(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, apperr.ErrUnknownID
	}

	grade := StarGrade(percent, task.Stars)
	submission := &models.Submission{
		UserID:            user.ID,
		TaskID:            task.ID,
		Grade:             grade,
		Validated:         false,
		NonvalidatedGrade: grade,
		NeedsValidation:   true,
		Subtask:           subtask,
		Value:             payload,
		Date:              g.clock.Now(),
	}

	improved, err := g.submissions.SubmitSubmission(ctx, submission, func(current *models.Grade, taskgroupID, userID int) (models.Grade, bool) {
		if current != nil && current.Grade != nil && *current.Grade >= grade {
			return models.Grade{}, false
		}
		next := grade
		return models.Grade{
			TaskgroupID: taskgroupID,
			UserID:      userID,
			Grade:       &next,
			Validated:   false,
		}, true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	if improved && g.invalidator != nil {
		if err := g.invalidator.InvalidateContest(ctx, contest.ID); err != nil {
			// A stale cache entry expires on its own; the submission is safe.
			g.logger.Warn("failed to invalidate result cache", "contest_id", contest.ID, "error", err)
		}
	}
	return submission, nil
}

// LatestSubmission returns the user's newest submission for the task and
// subtask, or nil when none exists. A nil subtask matches only submissions
// stored without one.
func (g *Grader) LatestSubmission(ctx context.Context, user *models.SessionUser, taskID int, subtask *string) (*models.Submission, error) {
	submission, err := g.submissions.LatestSubmission(ctx, user.ID, taskID, subtask)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return submission, nil
}
