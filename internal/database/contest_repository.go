package database

import (
	"context"
	"errors"

	"medal/internal/apperr"
	"medal/internal/models"

	"gorm.io/gorm"
)

type ContestRepository struct {
	db *GormDB
}

func NewContestRepository(db *GormDB) *ContestRepository {
	return &ContestRepository{db: db}
}

func (r *ContestRepository) CreateContest(ctx context.Context, contest *models.Contest) error {
	return apperr.Database(r.db.WithContext(ctx).Create(contest).Error)
}

func (r *ContestRepository) Contests(ctx context.Context) ([]models.Contest, error) {
	var contests []models.Contest
	err := r.db.WithContext(ctx).
		Order("positionalnumber").
		Find(&contests).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return contests, nil
}

func (r *ContestRepository) ContestByID(ctx context.Context, id int) (*models.Contest, error) {
	var contest models.Contest
	err := r.db.WithContext(ctx).First(&contest, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &contest, nil
}

func (r *ContestRepository) ContestComplete(ctx context.Context, id int) (*models.Contest, error) {
	var contest models.Contest
	err := r.db.WithContext(ctx).
		Preload("Taskgroups", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("positionalnumber")
		}).
		Preload("Taskgroups.Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("stars")
		}).
		First(&contest, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &contest, nil
}

func (r *ContestRepository) ContestPartial(ctx context.Context, id int) (*models.Contest, error) {
	var contest models.Contest
	err := r.db.WithContext(ctx).
		Preload("Taskgroups", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("positionalnumber")
		}).
		First(&contest, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &contest, nil
}

func (r *ContestRepository) TaskComplete(ctx context.Context, taskID int) (*models.Task, *models.Taskgroup, *models.Contest, error) {
	var task models.Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, apperr.Database(err)
	}

	var taskgroup models.Taskgroup
	if err := r.db.WithContext(ctx).First(&taskgroup, "id = ?", task.TaskgroupID).Error; err != nil {
		return nil, nil, nil, apperr.Database(err)
	}

	var contest models.Contest
	if err := r.db.WithContext(ctx).First(&contest, "id = ?", taskgroup.ContestID).Error; err != nil {
		return nil, nil, nil, apperr.Database(err)
	}

	return &task, &taskgroup, &contest, nil
}
