package database

import (
	"context"
	"errors"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionRepository struct {
	db *GormDB
}

func NewSubmissionRepository(db *GormDB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// SubmitSubmission inserts the submission and applies the grade decision to
// the current best grade of the owning taskgroup, all inside one transaction.
// The row lock on the grade serializes concurrent submissions of the same
// user and taskgroup.
func (r *SubmissionRepository) SubmitSubmission(ctx context.Context, sub *models.Submission, decide storage.GradeDecision) (bool, error) {
	updated := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		if err := tx.Create(sub).Error; err != nil {
			return err
		}

		var task models.Task
		if err := tx.First(&task, "id = ?", sub.TaskID).Error; err != nil {
			return err
		}

		var current *models.Grade
		var grade models.Grade
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&grade, "taskgroup = ? AND session = ?", task.TaskgroupID, sub.UserID).Error
		switch {
		case err == nil:
			current = &grade
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = nil
		default:
			return err
		}

		next, store := decide(current, task.TaskgroupID, sub.UserID)
		if !store {
			return nil
		}

		// Two first submissions can race past the row lock when no grade
		// exists yet, so the conflict path re-checks monotonicity. A losing
		// lower grade then affects zero rows.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "taskgroup"}, {Name: "session"}},
			DoUpdates: clause.AssignmentColumns([]string{"grade", "validated"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "grades.grade IS NULL OR grades.grade < excluded.grade"},
			}},
		}).Create(&next)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected > 0
		return nil
	})
	return updated, apperr.Database(err)
}

func (r *SubmissionRepository) LatestSubmission(ctx context.Context, userID, taskID int, subtask *string) (*models.Submission, error) {
	query := r.db.WithContext(ctx).
		Where("session = ? AND task = ?", userID, taskID)
	if subtask == nil {
		query = query.Where("subtask_identifier IS NULL")
	} else {
		query = query.Where("subtask_identifier = ?", *subtask)
	}

	var sub models.Submission
	err := query.Order("id DESC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &sub, nil
}
