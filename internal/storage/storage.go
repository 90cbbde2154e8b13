package storage

import (
	"context"
	"time"

	"medal/internal/models"
)

// GradeRow is one flat row of the bulk results query: a grade joined with the
// group and student it belongs to.
type GradeRow struct {
	Grade   models.Grade
	Group   models.Group
	Student models.StudentInfo
}

// GradeDecision inspects the current best grade of one (taskgroup, student)
// pair (nil when none exists yet) and returns the grade to store plus
// whether to store it at all.
type GradeDecision func(current *models.Grade, taskgroupID, userID int) (models.Grade, bool)

// SessionStore is the session slice of the gateway. Lookup methods return
// (nil, nil) when no row matches.
type SessionStore interface {
	// SessionByToken finds the session bound to a bearer token.
	SessionByToken(ctx context.Context, token string) (*models.SessionUser, error)
	SessionByID(ctx context.Context, id int) (*models.SessionUser, error)
	SessionByUsername(ctx context.Context, username string) (*models.SessionUser, error)
	SessionByLoginCode(ctx context.Context, code string) (*models.SessionUser, error)
	SessionByForeign(ctx context.Context, provider, foreignID string) (*models.SessionUser, error)

	CreateSession(ctx context.Context, user *models.SessionUser) error

	// SaveSession persists profile and credential fields of an existing row.
	SaveSession(ctx context.Context, user *models.SessionUser) error

	// RotateTokens installs a fresh session and CSRF token on the row and
	// stamps last_login and last_activity, as one atomic update.
	RotateTokens(ctx context.Context, userID int, sessionToken, csrfToken string, now time.Time) error

	// TouchSession moves last_activity forward (sliding expiry).
	TouchSession(ctx context.Context, userID int, now time.Time) error

	// ClearSessionToken detaches the token from its row; the row survives.
	ClearSessionToken(ctx context.Context, token string) error

	// ClearExpiredTokens detaches tokens whose liveness window lapsed before
	// the given cutoffs and reports how many rows were touched.
	ClearExpiredTokens(ctx context.Context, cutoff, permanentCutoff time.Time) (int64, error)
}

type GroupStore interface {
	GroupByCode(ctx context.Context, code string) (*models.Group, error)
	// GroupByID loads a group including its members.
	GroupByID(ctx context.Context, id int) (*models.Group, error)
	GroupsByAdmin(ctx context.Context, adminID int) ([]models.Group, error)
	// CreateGroup persists the group and any pre-filled members.
	CreateGroup(ctx context.Context, group *models.Group) error
}

type ContestStore interface {
	Contests(ctx context.Context) ([]models.Contest, error)
	ContestByID(ctx context.Context, id int) (*models.Contest, error)
	// ContestComplete loads the contest with its active taskgroups (ordered by
	// position) and their tasks (ordered by ascending stars).
	ContestComplete(ctx context.Context, id int) (*models.Contest, error)
	// ContestPartial loads the contest with active taskgroups but no tasks.
	ContestPartial(ctx context.Context, id int) (*models.Contest, error)
	// TaskComplete resolves a task together with its taskgroup and contest.
	TaskComplete(ctx context.Context, taskID int) (*models.Task, *models.Taskgroup, *models.Contest, error)
}

type ParticipationStore interface {
	Participation(ctx context.Context, contestID, userID int) (*models.Participation, error)
	// CreateParticipation is first-writer-wins: inserting for an existing
	// (contest, user) pair is a no-op, never an error.
	CreateParticipation(ctx context.Context, p *models.Participation) error
}

type SubmissionStore interface {
	// SubmitSubmission inserts sub (always a new row, history is append-only)
	// and, in the same transaction, applies decide to the current best grade
	// of the submission's taskgroup and user. Reports whether a grade was
	// written.
	SubmitSubmission(ctx context.Context, sub *models.Submission, decide GradeDecision) (bool, error)

	// LatestSubmission returns the newest submission (by id) of the user for
	// the task. subtask == nil matches only rows without a subtask
	// identifier, not any subtask.
	LatestSubmission(ctx context.Context, userID, taskID int, subtask *string) (*models.Submission, error)
}

type GradeStore interface {
	GradeFor(ctx context.Context, taskgroupID, userID int) (*models.Grade, error)

	// ContestGradeRows returns grade rows of every student in a group
	// administered by adminID, restricted to the contest's active taskgroups.
	// The result is guaranteed sorted by (group id, student id, taskgroup
	// position); the aggregator's single pass depends on that order.
	ContestGradeRows(ctx context.Context, adminID, contestID int) ([]GradeRow, error)

	// UserContestGrades returns the user's grades for the contest's active
	// taskgroups, ordered by taskgroup position.
	UserContestGrades(ctx context.Context, userID, contestID int) ([]models.Grade, error)
}

// Gateway is the full persistence contract the core depends on. One concrete
// store (gorm/postgres, in-memory) implements it; the core never branches on
// the engine.
type Gateway interface {
	SessionStore
	GroupStore
	ContestStore
	ParticipationStore
	SubmissionStore
	GradeStore
}
