package database

import (
	"context"
	"errors"

	"medal/internal/apperr"
	"medal/internal/models"

	"gorm.io/gorm"
)

type GroupRepository struct {
	db *GormDB
}

func NewGroupRepository(db *GormDB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) GroupByCode(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).First(&group, "groupcode = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &group, nil
}

func (r *GroupRepository) GroupByID(ctx context.Context, id int) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("id")
		}).
		First(&group, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &group, nil
}

func (r *GroupRepository) GroupsByAdmin(ctx context.Context, adminID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Where("admin = ?", adminID).
		Order("id").
		Find(&groups).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return groups, nil
}

func (r *GroupRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	return apperr.Database(r.db.WithContext(ctx).Create(group).Error)
}
