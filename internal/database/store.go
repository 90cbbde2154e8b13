package database

import (
	"medal/internal/storage"
)

// Store bundles the repositories into the persistence gateway the services
// consume.
type Store struct {
	*SessionRepository
	*GroupRepository
	*ContestRepository
	*ParticipationRepository
	*SubmissionRepository
	*GradeRepository
}

var _ storage.Gateway = (*Store)(nil)

func NewStore(db *GormDB) *Store {
	return &Store{
		SessionRepository:       NewSessionRepository(db),
		GroupRepository:         NewGroupRepository(db),
		ContestRepository:       NewContestRepository(db),
		ParticipationRepository: NewParticipationRepository(db),
		SubmissionRepository:    NewSubmissionRepository(db),
		GradeRepository:         NewGradeRepository(db),
	}
}
