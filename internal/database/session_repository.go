package database

import (
	"context"
	"errors"
	"time"

	"medal/internal/apperr"
	"medal/internal/models"

	"gorm.io/gorm"
)

type SessionRepository struct {
	db *GormDB
}

func NewSessionRepository(db *GormDB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) SessionByToken(ctx context.Context, token string) (*models.SessionUser, error) {
	return r.findOne(ctx, "session_token = ?", token)
}

func (r *SessionRepository) SessionByID(ctx context.Context, id int) (*models.SessionUser, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *SessionRepository) SessionByUsername(ctx context.Context, username string) (*models.SessionUser, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *SessionRepository) SessionByLoginCode(ctx context.Context, code string) (*models.SessionUser, error) {
	return r.findOne(ctx, "logincode = ?", code)
}

func (r *SessionRepository) SessionByForeign(ctx context.Context, provider, foreignID string) (*models.SessionUser, error) {
	return r.findOne(ctx, "oauth_provider = ? AND oauth_foreign_id = ?", provider, foreignID)
}

func (r *SessionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.SessionUser, error) {
	var user models.SessionUser
	err := r.db.WithContext(ctx).First(&user, append([]interface{}{query}, args...)...).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &user, nil
}

func (r *SessionRepository) CreateSession(ctx context.Context, user *models.SessionUser) error {
	return apperr.Database(r.db.WithContext(ctx).Create(user).Error)
}

func (r *SessionRepository) SaveSession(ctx context.Context, user *models.SessionUser) error {
	return apperr.Database(r.db.WithContext(ctx).
		Model(&models.SessionUser{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"username":        user.Username,
			"password_hash":   user.PasswordHash,
			"salt":            user.Salt,
			"logincode":       user.LoginCode,
			"firstname":       user.Firstname,
			"lastname":        user.Lastname,
			"street":          user.Street,
			"zip":             user.Zip,
			"city":            user.City,
			"grade":           user.Grade,
			"permanent_login": user.Permanent,
			"is_teacher":      user.IsTeacher,
		}).Error)
}

func (r *SessionRepository) RotateTokens(ctx context.Context, userID int, sessionToken, csrfToken string, now time.Time) error {
	return apperr.Database(r.db.WithContext(ctx).
		Model(&models.SessionUser{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"session_token": sessionToken,
			"csrf_token":    csrfToken,
			"last_login":    now,
			"last_activity": now,
		}).Error)
}

func (r *SessionRepository) TouchSession(ctx context.Context, userID int, now time.Time) error {
	return apperr.Database(r.db.WithContext(ctx).
		Model(&models.SessionUser{}).
		Where("id = ?", userID).
		Update("last_activity", now).Error)
}

func (r *SessionRepository) ClearSessionToken(ctx context.Context, token string) error {
	return apperr.Database(r.db.WithContext(ctx).
		Model(&models.SessionUser{}).
		Where("session_token = ?", token).
		Update("session_token", nil).Error)
}

func (r *SessionRepository) ClearExpiredTokens(ctx context.Context, cutoff, permanentCutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SessionUser{}).
		Where("session_token IS NOT NULL").
		Where("(permanent_login = false AND last_activity < ?) OR (permanent_login = true AND last_activity < ?)",
			cutoff, permanentCutoff).
		Update("session_token", nil)
	return res.RowsAffected, apperr.Database(res.Error)
}
