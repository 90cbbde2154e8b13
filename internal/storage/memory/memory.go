// Package memory implements the persistence gateway with in-process maps.
// It backs the service tests and doubles as a storage engine for tooling
// that does not need a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"medal/internal/models"
	"medal/internal/storage"
)

type Store struct {
	mu sync.Mutex

	sessions       map[int]*models.SessionUser
	groups         map[int]*models.Group
	contests       map[int]*models.Contest
	taskgroups     map[int]*models.Taskgroup
	tasks          map[int]*models.Task
	participations map[[2]int]*models.Participation // (contest, user)
	submissions    []*models.Submission
	grades         map[[2]int]*models.Grade // (taskgroup, user)

	nextSessionID    int
	nextGroupID      int
	nextContestID    int
	nextTaskgroupID  int
	nextTaskID       int
	nextSubmissionID int
}

var _ storage.Gateway = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		sessions:         make(map[int]*models.SessionUser),
		groups:           make(map[int]*models.Group),
		contests:         make(map[int]*models.Contest),
		taskgroups:       make(map[int]*models.Taskgroup),
		tasks:            make(map[int]*models.Task),
		participations:   make(map[[2]int]*models.Participation),
		grades:           make(map[[2]int]*models.Grade),
		nextSessionID:    1,
		nextGroupID:      1,
		nextContestID:    1,
		nextTaskgroupID:  1,
		nextTaskID:       1,
		nextSubmissionID: 1,
	}
}

func (s *Store) SessionByToken(_ context.Context, token string) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSession(func(u *models.SessionUser) bool {
		return u.SessionToken != nil && *u.SessionToken == token
	}), nil
}

func (s *Store) SessionByID(_ context.Context, id int) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.sessions[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *Store) SessionByUsername(_ context.Context, username string) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSession(func(u *models.SessionUser) bool {
		return u.Username != nil && *u.Username == username
	}), nil
}

func (s *Store) SessionByLoginCode(_ context.Context, code string) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSession(func(u *models.SessionUser) bool {
		return u.LoginCode != nil && *u.LoginCode == code
	}), nil
}

func (s *Store) SessionByForeign(_ context.Context, provider, foreignID string) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSession(func(u *models.SessionUser) bool {
		return u.OauthProvider != nil && *u.OauthProvider == provider &&
			u.OauthForeignID != nil && *u.OauthForeignID == foreignID
	}), nil
}

// findSession must be called with the lock held; it returns a copy.
func (s *Store) findSession(match func(*models.SessionUser) bool) *models.SessionUser {
	for _, u := range s.sessions {
		if match(u) {
			c := *u
			return &c
		}
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, user *models.SessionUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.nextSessionID
	s.nextSessionID++
	c := *user
	s.sessions[user.ID] = &c
	return nil
}

func (s *Store) SaveSession(_ context.Context, user *models.SessionUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[user.ID]
	if !ok {
		return nil
	}
	stored.Username = user.Username
	stored.PasswordHash = user.PasswordHash
	stored.Salt = user.Salt
	stored.LoginCode = user.LoginCode
	stored.Firstname = user.Firstname
	stored.Lastname = user.Lastname
	stored.Street = user.Street
	stored.Zip = user.Zip
	stored.City = user.City
	stored.Grade = user.Grade
	stored.Permanent = user.Permanent
	stored.IsTeacher = user.IsTeacher
	return nil
}

func (s *Store) RotateTokens(_ context.Context, userID int, sessionToken, csrfToken string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	t := sessionToken
	n := now
	stored.SessionToken = &t
	stored.CsrfToken = csrfToken
	stored.LastLogin = &n
	stored.LastActivity = &n
	return nil
}

func (s *Store) TouchSession(_ context.Context, userID int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.sessions[userID]; ok {
		n := now
		stored.LastActivity = &n
	}
	return nil
}

func (s *Store) ClearSessionToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.sessions {
		if u.SessionToken != nil && *u.SessionToken == token {
			u.SessionToken = nil
		}
	}
	return nil
}

func (s *Store) ClearExpiredTokens(_ context.Context, cutoff, permanentCutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cleared int64
	for _, u := range s.sessions {
		if u.SessionToken == nil || u.LastActivity == nil {
			continue
		}
		limit := cutoff
		if u.Permanent {
			limit = permanentCutoff
		}
		if u.LastActivity.Before(limit) {
			u.SessionToken = nil
			cleared++
		}
	}
	return cleared, nil
}

func (s *Store) GroupByCode(_ context.Context, code string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.GroupCode == code {
			c := *g
			c.Members = nil
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) GroupByID(_ context.Context, id int) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	c := *g
	c.Members = nil
	ids := make([]int, 0, len(s.sessions))
	for sid := range s.sessions {
		ids = append(ids, sid)
	}
	sort.Ints(ids)
	for _, sid := range ids {
		u := s.sessions[sid]
		if u.ManagedBy != nil && *u.ManagedBy == id {
			c.Members = append(c.Members, *u)
		}
	}
	return &c, nil
}

func (s *Store) GroupsByAdmin(_ context.Context, adminID int) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.groups))
	for id, g := range s.groups {
		if g.AdminID == adminID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	groups := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		c := *s.groups[id]
		c.Members = nil
		groups = append(groups, c)
	}
	return groups, nil
}

func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group.ID = s.nextGroupID
	s.nextGroupID++
	stored := *group
	stored.Members = nil
	s.groups[group.ID] = &stored
	for i := range group.Members {
		m := group.Members[i]
		m.ID = s.nextSessionID
		s.nextSessionID++
		gid := group.ID
		m.ManagedBy = &gid
		c := m
		s.sessions[m.ID] = &c
		group.Members[i] = m
	}
	return nil
}

// CreateContest seeds a contest with nested taskgroups and tasks, assigning
// ids the way AutoMigrate'd serial columns would.
func (s *Store) CreateContest(_ context.Context, contest *models.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contest.ID = s.nextContestID
	s.nextContestID++
	stored := *contest
	stored.Taskgroups = nil
	s.contests[contest.ID] = &stored
	for i := range contest.Taskgroups {
		tg := &contest.Taskgroups[i]
		tg.ID = s.nextTaskgroupID
		s.nextTaskgroupID++
		tg.ContestID = contest.ID
		tgStored := *tg
		tgStored.Tasks = nil
		s.taskgroups[tg.ID] = &tgStored
		for j := range tg.Tasks {
			task := &tg.Tasks[j]
			task.ID = s.nextTaskID
			s.nextTaskID++
			task.TaskgroupID = tg.ID
			tc := *task
			s.tasks[task.ID] = &tc
		}
	}
	return nil
}

func (s *Store) Contests(_ context.Context) ([]models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contests := make([]models.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		cc := *c
		cc.Taskgroups = nil
		contests = append(contests, cc)
	}
	sort.Slice(contests, func(i, j int) bool {
		if contests[i].Position != contests[j].Position {
			return contests[i].Position < contests[j].Position
		}
		return contests[i].ID < contests[j].ID
	})
	return contests, nil
}

func (s *Store) ContestByID(_ context.Context, id int) (*models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	cc.Taskgroups = nil
	return &cc, nil
}

func (s *Store) ContestComplete(ctx context.Context, id int) (*models.Contest, error) {
	return s.loadContest(id, true)
}

func (s *Store) ContestPartial(ctx context.Context, id int) (*models.Contest, error) {
	return s.loadContest(id, false)
}

func (s *Store) loadContest(id int, withTasks bool) (*models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	cc.Taskgroups = s.activeTaskgroups(id)
	if withTasks {
		for i := range cc.Taskgroups {
			cc.Taskgroups[i].Tasks = s.tasksOf(cc.Taskgroups[i].ID)
		}
	}
	return &cc, nil
}

// activeTaskgroups must be called with the lock held.
func (s *Store) activeTaskgroups(contestID int) []models.Taskgroup {
	var tgs []models.Taskgroup
	for _, tg := range s.taskgroups {
		if tg.ContestID == contestID && tg.Active {
			tgs = append(tgs, *tg)
		}
	}
	sort.Slice(tgs, func(i, j int) bool {
		if tgs[i].Position != tgs[j].Position {
			return tgs[i].Position < tgs[j].Position
		}
		return tgs[i].ID < tgs[j].ID
	})
	return tgs
}

// tasksOf must be called with the lock held.
func (s *Store) tasksOf(taskgroupID int) []models.Task {
	var tasks []models.Task
	for _, t := range s.tasks {
		if t.TaskgroupID == taskgroupID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Stars != tasks[j].Stars {
			return tasks[i].Stars < tasks[j].Stars
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

func (s *Store) TaskComplete(_ context.Context, taskID int) (*models.Task, *models.Taskgroup, *models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, nil, nil
	}
	tg, ok := s.taskgroups[t.TaskgroupID]
	if !ok {
		return nil, nil, nil, nil
	}
	c, ok := s.contests[tg.ContestID]
	if !ok {
		return nil, nil, nil, nil
	}
	tc, tgc, cc := *t, *tg, *c
	tgc.Tasks = nil
	cc.Taskgroups = nil
	return &tc, &tgc, &cc, nil
}

func (s *Store) Participation(_ context.Context, contestID, userID int) (*models.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participations[[2]int{contestID, userID}]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (s *Store) CreateParticipation(_ context.Context, p *models.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{p.ContestID, p.UserID}
	if _, ok := s.participations[key]; ok {
		return nil
	}
	c := *p
	s.participations[key] = &c
	return nil
}

func (s *Store) SubmitSubmission(_ context.Context, sub *models.Submission, decide storage.GradeDecision) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.nextSubmissionID
	s.nextSubmissionID++
	c := *sub
	s.submissions = append(s.submissions, &c)

	task, ok := s.tasks[sub.TaskID]
	if !ok {
		return false, nil
	}
	key := [2]int{task.TaskgroupID, sub.UserID}
	var current *models.Grade
	if g, ok := s.grades[key]; ok {
		cg := *g
		current = &cg
	}
	next, store := decide(current, task.TaskgroupID, sub.UserID)
	if !store {
		return false, nil
	}
	nc := next
	s.grades[key] = &nc
	return true, nil
}

func (s *Store) LatestSubmission(_ context.Context, userID, taskID int, subtask *string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.submissions) - 1; i >= 0; i-- {
		sub := s.submissions[i]
		if sub.UserID != userID || sub.TaskID != taskID {
			continue
		}
		if subtask == nil {
			if sub.Subtask != nil {
				continue
			}
		} else if sub.Subtask == nil || *sub.Subtask != *subtask {
			continue
		}
		c := *sub
		return &c, nil
	}
	return nil, nil
}

func (s *Store) GradeFor(_ context.Context, taskgroupID, userID int) (*models.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grades[[2]int{taskgroupID, userID}]; ok {
		c := *g
		return &c, nil
	}
	return nil, nil
}

func (s *Store) ContestGradeRows(_ context.Context, adminID, contestID int) ([]storage.GradeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := make(map[int]int)
	for _, tg := range s.activeTaskgroups(contestID) {
		position[tg.ID] = tg.Position
	}

	var rows []storage.GradeRow
	for key, grade := range s.grades {
		if _, ok := position[key[0]]; !ok {
			continue
		}
		student, ok := s.sessions[key[1]]
		if !ok || student.ManagedBy == nil {
			continue
		}
		group, ok := s.groups[*student.ManagedBy]
		if !ok || group.AdminID != adminID {
			continue
		}
		g := *group
		g.Members = nil
		rows = append(rows, storage.GradeRow{
			Grade: *grade,
			Group: g,
			Student: models.StudentInfo{
				ID:        student.ID,
				Username:  student.Username,
				LoginCode: student.LoginCode,
				Firstname: student.Firstname,
				Lastname:  student.Lastname,
				Grade:     student.Grade,
			},
		})
	}

	// The gateway contract guarantees this order; the aggregator's single
	// forward pass depends on it.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Group.ID != rows[j].Group.ID {
			return rows[i].Group.ID < rows[j].Group.ID
		}
		if rows[i].Student.ID != rows[j].Student.ID {
			return rows[i].Student.ID < rows[j].Student.ID
		}
		return position[rows[i].Grade.TaskgroupID] < position[rows[j].Grade.TaskgroupID]
	})
	return rows, nil
}

func (s *Store) UserContestGrades(_ context.Context, userID, contestID int) ([]models.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var grades []models.Grade
	for _, tg := range s.activeTaskgroups(contestID) {
		if g, ok := s.grades[[2]int{tg.ID, userID}]; ok {
			grades = append(grades, *g)
		}
	}
	return grades, nil
}
