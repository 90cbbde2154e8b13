package database

import (
	"context"
	"errors"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage"

	"gorm.io/gorm"
)

type GradeRepository struct {
	db *GormDB
}

func NewGradeRepository(db *GormDB) *GradeRepository {
	return &GradeRepository{db: db}
}

func (r *GradeRepository) GradeFor(ctx context.Context, taskgroupID, userID int) (*models.Grade, error) {
	var grade models.Grade
	err := r.db.WithContext(ctx).
		First(&grade, "taskgroup = ? AND session = ?", taskgroupID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &grade, nil
}

// gradeRowScan is the flat shape of the joined results query.
type gradeRowScan struct {
	Taskgroup int
	Session   int
	Grade     *int
	Validated bool

	GroupID   int
	GroupName string
	GroupCode string
	GroupTag  string

	StudentID   int
	Username    *string
	LoginCode   *string
	Firstname   *string
	Lastname    *string
	SchoolGrade int
}

// ContestGradeRows runs the bulk pivot query. The ORDER BY is part of the
// contract: the aggregator consumes the rows in a single forward pass.
func (r *GradeRepository) ContestGradeRows(ctx context.Context, adminID, contestID int) ([]storage.GradeRow, error) {
	var scans []gradeRowScan
	err := r.db.WithContext(ctx).Raw(`
		SELECT grades.taskgroup AS taskgroup, grades.session AS session,
		       grades.grade AS grade, grades.validated AS validated,
		       groups.id AS group_id, groups.name AS group_name,
		       groups.groupcode AS group_code, groups.tag AS group_tag,
		       student.id AS student_id, student.username AS username,
		       student.logincode AS login_code, student.firstname AS firstname,
		       student.lastname AS lastname, student.grade AS school_grade
		FROM grades
		JOIN taskgroups ON grades.taskgroup = taskgroups.id
		JOIN sessions AS student ON grades.session = student.id
		JOIN groups ON student.managed_by = groups.id
		WHERE groups.admin = ?
		  AND taskgroups.contest = ?
		  AND taskgroups.active = true
		ORDER BY groups.id, student.id, taskgroups.positionalnumber`,
		adminID, contestID).
		Scan(&scans).Error
	if err != nil {
		return nil, apperr.Database(err)
	}

	rows := make([]storage.GradeRow, len(scans))
	for i, s := range scans {
		rows[i] = storage.GradeRow{
			Grade: models.Grade{
				TaskgroupID: s.Taskgroup,
				UserID:      s.Session,
				Grade:       s.Grade,
				Validated:   s.Validated,
			},
			Group: models.Group{
				ID:        s.GroupID,
				Name:      s.GroupName,
				GroupCode: s.GroupCode,
				Tag:       s.GroupTag,
				AdminID:   adminID,
			},
			Student: models.StudentInfo{
				ID:        s.StudentID,
				Username:  s.Username,
				LoginCode: s.LoginCode,
				Firstname: s.Firstname,
				Lastname:  s.Lastname,
				Grade:     s.SchoolGrade,
			},
		}
	}
	return rows, nil
}

func (r *GradeRepository) UserContestGrades(ctx context.Context, userID, contestID int) ([]models.Grade, error) {
	var grades []models.Grade
	err := r.db.WithContext(ctx).
		Joins("JOIN taskgroups ON grades.taskgroup = taskgroups.id").
		Where("grades.session = ? AND taskgroups.contest = ? AND taskgroups.active = true", userID, contestID).
		Order("taskgroups.positionalnumber").
		Find(&grades).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return grades, nil
}
