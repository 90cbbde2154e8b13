package database

import (
	"context"
	"errors"

	"medal/internal/apperr"
	"medal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipationRepository struct {
	db *GormDB
}

func NewParticipationRepository(db *GormDB) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

func (r *ParticipationRepository) Participation(ctx context.Context, contestID, userID int) (*models.Participation, error) {
	var p models.Participation
	err := r.db.WithContext(ctx).
		First(&p, "contest = ? AND session = ?", contestID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &p, nil
}

// CreateParticipation is first-writer-wins: a concurrent duplicate insert
// is ignored and the existing anchor stays untouched.
func (r *ParticipationRepository) CreateParticipation(ctx context.Context, p *models.Participation) error {
	return apperr.Database(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error)
}
