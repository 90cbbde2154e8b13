package models

import (
	"strconv"
	"time"
)

// LoginKind classifies which credential a session account carries. It is
// computed once when a session is loaded instead of re-deriving it from
// optional-field presence at every call site.
type LoginKind string

const (
	LoginKindAnonymous LoginKind = "ANONYMOUS"
	LoginKindPassword  LoginKind = "PASSWORD"
	LoginKindCode      LoginKind = "CODE"
	LoginKindForeign   LoginKind = "FOREIGN"
)

// StartDecision is the outcome of the participation gate's start check.
type StartDecision string

const (
	StartAllowed        StartDecision = "ALLOWED"
	StartAlreadyStarted StartDecision = "ALREADY_STARTED"
	StartOutsideWindow  StartDecision = "OUTSIDE_WINDOW"
	StartNotLoggedIn    StartDecision = "NOT_LOGGED_IN"
	StartCsrfMismatch   StartDecision = "CSRF_MISMATCH"
	StartGradeTooLow    StartDecision = "GRADE_TOO_LOW"
	StartGradeTooHigh   StartDecision = "GRADE_TOO_HIGH"
)

// School grade values above 10 are special encodings, see GradeLabel.
const (
	SchoolGradeNone       = 0
	SchoolGradeVocational = 114
	SchoolGradeNoStudent  = 255
)

type SessionUser struct {
	ID           int        `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionToken *string    `json:"-" gorm:"uniqueIndex;size:64"` // cleared on logout
	CsrfToken    string     `json:"-" gorm:"size:64;not null"`
	LastLogin    *time.Time `json:"last_login"`
	LastActivity *time.Time `json:"last_activity"`
	Permanent    bool       `json:"permanent_login" gorm:"column:permanent_login;not null;default:false"`

	Username     *string `json:"username" gorm:"uniqueIndex;size:100"`
	PasswordHash *string `json:"-" gorm:"size:100"`
	Salt         *string `json:"-" gorm:"size:32"`
	LoginCode    *string `json:"logincode" gorm:"column:logincode;uniqueIndex;size:16"`

	OauthProvider  *string `json:"oauth_provider" gorm:"size:100"`
	OauthForeignID *string `json:"oauth_foreign_id" gorm:"size:100;index:idx_session_oauth"`

	Firstname *string `json:"firstname" gorm:"size:100"`
	Lastname  *string `json:"lastname" gorm:"size:100"`
	Street    *string `json:"street" gorm:"size:200"`
	Zip       *string `json:"zip" gorm:"size:20"`
	City      *string `json:"city" gorm:"size:100"`
	Grade     int     `json:"grade" gorm:"not null;default:0"`

	IsTeacher bool `json:"is_teacher" gorm:"not null;default:false"`
	ManagedBy *int `json:"managed_by" gorm:"index"`
}

func (SessionUser) TableName() string {
	return "sessions"
}

// LoginKind reports which kind of credential the account carries. The
// precedence mirrors the order logins are attempted: password, then login
// code, then foreign identity.
func (u *SessionUser) LoginKind() LoginKind {
	switch {
	case u.PasswordHash != nil:
		return LoginKindPassword
	case u.LoginCode != nil:
		return LoginKindCode
	case u.OauthForeignID != nil:
		return LoginKindForeign
	default:
		return LoginKindAnonymous
	}
}

// Alive reports whether the session is inside its liveness window at now.
// Sessions without any recorded activity are never alive.
func (u *SessionUser) Alive(now time.Time, window, permanentWindow time.Duration) bool {
	if u.LastActivity == nil {
		return false
	}
	d := window
	if u.Permanent {
		d = permanentWindow
	}
	return now.Sub(*u.LastActivity) < d
}

// LoggedIn requires both a credential and liveness.
func (u *SessionUser) LoggedIn(now time.Time, window, permanentWindow time.Duration) bool {
	return u.LoginKind() != LoginKindAnonymous && u.Alive(now, window, permanentWindow)
}

// EffectiveGrade folds the school-grade encoding into a comparable year
// number: a hundreds digit of 1 marks the G9 school system, whose years
// 111-113 map one below their face value.
func (u *SessionUser) EffectiveGrade() int {
	g := u.Grade % 100
	if u.Grade/100 == 1 {
		g--
	}
	return g
}

// GradeLabel renders the school-grade encoding for display.
func GradeLabel(grade int) string {
	switch {
	case grade == SchoolGradeNone:
		return "not yet a student"
	case grade >= 1 && grade <= 10:
		return strconv.Itoa(grade)
	case grade == 11:
		return "11 (G8)"
	case grade == 12:
		return "12 (G8)"
	case grade == 111:
		return "11 (G9)"
	case grade == 112:
		return "12 (G9)"
	case grade == 113:
		return "13 (G9)"
	case grade == SchoolGradeVocational:
		return "vocational school"
	case grade == SchoolGradeNoStudent:
		return "no longer a student"
	default:
		return "?"
	}
}

type Group struct {
	ID        int           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string        `json:"name" gorm:"size:200;not null"`
	Tag       string        `json:"tag" gorm:"size:100"`
	GroupCode string        `json:"groupcode" gorm:"column:groupcode;uniqueIndex;size:16;not null"`
	AdminID   int           `json:"admin" gorm:"column:admin;not null;index"`
	Members   []SessionUser `json:"members,omitempty" gorm:"foreignKey:ManagedBy"`
}

func (Group) TableName() string {
	return "groups"
}

type Contest struct {
	ID       int    `json:"id" gorm:"primaryKey;autoIncrement"`
	Location string `json:"location" gorm:"size:200;not null"`
	Filename string `json:"filename" gorm:"size:200;not null"`
	Name     string `json:"name" gorm:"size:200;not null"`
	// Duration is in minutes; 0 means unlimited (practice contest).
	Duration    int         `json:"duration" gorm:"not null;default:0"`
	Public      bool        `json:"public" gorm:"not null;default:false"`
	Start       *time.Time  `json:"start" gorm:"column:start_date"`
	End         *time.Time  `json:"end" gorm:"column:end_date"`
	ReviewStart *time.Time  `json:"review_start"`
	ReviewEnd   *time.Time  `json:"review_end"`
	MinGrade    *int        `json:"min_grade"`
	MaxGrade    *int        `json:"max_grade"`
	Position    int         `json:"position" gorm:"column:positionalnumber;not null;default:0"`
	Taskgroups  []Taskgroup `json:"taskgroups,omitempty" gorm:"foreignKey:ContestID;constraint:OnDelete:CASCADE"`
}

// HasDuration reports whether the contest runs on a per-participant timer.
func (c *Contest) HasDuration() bool {
	return c.Duration != 0
}

type Taskgroup struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	ContestID int    `json:"contest_id" gorm:"column:contest;not null;index"`
	Name      string `json:"name" gorm:"size:200;not null"`
	Active    bool   `json:"active" gorm:"not null;default:true"`
	Position  int    `json:"position" gorm:"column:positionalnumber;not null;default:0"`
	Tasks     []Task `json:"tasks,omitempty" gorm:"foreignKey:TaskgroupID;constraint:OnDelete:CASCADE"`
}

// MaxStars is the star count of the hardest task, used as the taskgroup's
// maximum attainable grade.
func (tg *Taskgroup) MaxStars() int {
	max := 0
	for _, t := range tg.Tasks {
		if t.Stars > max {
			max = t.Stars
		}
	}
	return max
}

type Task struct {
	ID          int    `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskgroupID int    `json:"taskgroup_id" gorm:"column:taskgroup;not null;index"`
	Location    string `json:"location" gorm:"size:200;not null"`
	Stars       int    `json:"stars" gorm:"not null;default:1"`
}

type Submission struct {
	ID                int       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID            int       `json:"user_id" gorm:"column:session;not null;index:idx_submission_user_task"`
	TaskID            int       `json:"task_id" gorm:"column:task;not null;index:idx_submission_user_task"`
	Grade             int       `json:"grade" gorm:"not null;default:0"`
	Validated         bool      `json:"validated" gorm:"not null;default:false"`
	NonvalidatedGrade int       `json:"nonvalidated_grade" gorm:"not null;default:0"`
	NeedsValidation   bool      `json:"needs_validation" gorm:"not null;default:false"`
	Subtask           *string   `json:"subtask_identifier" gorm:"column:subtask_identifier;size:100"`
	Value             string    `json:"value" gorm:"type:text"`
	Date              time.Time `json:"date" gorm:"not null"`
}

// Grade is the best-known result of one student on one taskgroup. Grade being
// nil means "no grade yet", which is distinct from a recorded grade of 0.
type Grade struct {
	TaskgroupID int  `json:"taskgroup_id" gorm:"column:taskgroup;primaryKey"`
	UserID      int  `json:"user_id" gorm:"column:session;primaryKey"`
	Grade       *int `json:"grade"`
	Validated   bool `json:"validated" gorm:"not null;default:false"`
}

// NoGrade pads grade vectors at positions where no submission exists yet.
func NoGrade() Grade {
	return Grade{}
}

type Participation struct {
	ContestID int       `json:"contest_id" gorm:"column:contest;primaryKey"`
	UserID    int       `json:"user_id" gorm:"column:session;primaryKey"`
	Start     time.Time `json:"start" gorm:"column:start_date;not null"`
}

// StudentInfo is the slice of a SessionUser carried through results queries.
type StudentInfo struct {
	ID        int     `json:"id"`
	Username  *string `json:"username"`
	LoginCode *string `json:"logincode"`
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Grade     int     `json:"grade"`
}
