// Package auth implements account login, session liveness and logout.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"medal/internal/apperr"
	"medal/internal/clock"
	"medal/internal/models"
	"medal/internal/storage"
	"medal/internal/token"
)

const (
	// Sliding liveness windows for session tokens.
	SessionWindow          = 90 * time.Minute
	PermanentSessionWindow = 90 * 24 * time.Hour

	// Attempts to find an unused login code before giving up.
	loginCodeAttempts = 10
)

type Service struct {
	sessions storage.SessionStore
	groups   storage.GroupStore
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(sessions storage.SessionStore, groups storage.GroupStore, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		groups:   groups,
		clock:    clk,
		logger:   logger,
	}
}

// LoginWithPassword verifies the credential pair and rotates the session.
// Every failure mode returns the same opaque error so callers cannot tell
// a wrong password from an unknown username.
func (s *Service) LoginWithPassword(ctx context.Context, username, password string) (*models.SessionUser, error) {
	user, err := s.sessions.SessionByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if user == nil || user.PasswordHash == nil {
		return nil, apperr.ErrAuthFailed
	}
	salt := ""
	if user.Salt != nil {
		salt = *user.Salt
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password+salt)) != nil {
		return nil, apperr.ErrAuthFailed
	}
	return s.openSession(ctx, user)
}

// LoginWithCode signs in a managed student account by its login code.
func (s *Service) LoginWithCode(ctx context.Context, code string) (*models.SessionUser, error) {
	user, err := s.sessions.SessionByLoginCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up login code: %w", err)
	}
	if user == nil {
		return nil, apperr.ErrAuthFailed
	}
	return s.openSession(ctx, user)
}

// LoginWithGroupCode provisions a fresh managed account in the group the
// code names and signs it in. An unknown code writes nothing.
func (s *Service) LoginWithGroupCode(ctx context.Context, code string) (*models.SessionUser, error) {
	group, err := s.groups.GroupByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up group code: %w", err)
	}
	if group == nil {
		return nil, apperr.ErrAuthFailed
	}

	loginCode, err := s.freshLoginCode(ctx)
	if err != nil {
		return nil, err
	}
	user := &models.SessionUser{
		LoginCode: &loginCode,
		ManagedBy: &group.ID,
	}
	if err := s.sessions.CreateSession(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create group member: %w", err)
	}
	s.logger.Info("provisioned group member", "group_id", group.ID, "user_id", user.ID)
	return s.openSession(ctx, user)
}

// LoginForeign upserts an account keyed by (provider, foreignID) and signs
// it in. Repeated logins reuse the row and refresh name and role.
func (s *Service) LoginForeign(ctx context.Context, provider, foreignID string, isTeacher bool, firstname, lastname string) (*models.SessionUser, error) {
	user, err := s.sessions.SessionByForeign(ctx, provider, foreignID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up foreign account: %w", err)
	}
	if user == nil {
		grade := models.SchoolGradeNone
		if isTeacher {
			grade = models.SchoolGradeNoStudent
		}
		user = &models.SessionUser{
			OauthProvider:  &provider,
			OauthForeignID: &foreignID,
			Firstname:      &firstname,
			Lastname:       &lastname,
			Grade:          grade,
			IsTeacher:      isTeacher,
		}
		if err := s.sessions.CreateSession(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create foreign account: %w", err)
		}
	} else {
		user.Firstname = &firstname
		user.Lastname = &lastname
		user.IsTeacher = isTeacher
		if err := s.sessions.SaveSession(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to refresh foreign account: %w", err)
		}
	}
	return s.openSession(ctx, user)
}

// NewAnonymousSession mints a blank signed-in row for a visitor without an
// account. The caller hands its token back on later requests.
func (s *Service) NewAnonymousSession(ctx context.Context) (*models.SessionUser, error) {
	user := &models.SessionUser{}
	if err := s.sessions.CreateSession(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s.openSession(ctx, user)
}

// ResolveSession returns the live session for the token, or a freshly
// minted anonymous session when the token is unknown or expired.
func (s *Service) ResolveSession(ctx context.Context, sessionToken string) (*models.SessionUser, error) {
	user, err := s.LiveSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	if err := s.sessions.ClearSessionToken(ctx, sessionToken); err != nil {
		return nil, fmt.Errorf("failed to clear stale token: %w", err)
	}
	return s.NewAnonymousSession(ctx)
}

// LiveSession returns the session behind the token if it is still within
// its liveness window, extending the window as a side effect. Expired or
// unknown tokens yield nil without error.
func (s *Service) LiveSession(ctx context.Context, sessionToken string) (*models.SessionUser, error) {
	user, err := s.sessions.SessionByToken(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	now := s.clock.Now()
	if !user.Alive(now, SessionWindow, PermanentSessionWindow) {
		return nil, nil
	}
	if err := s.sessions.TouchSession(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	user.LastActivity = &now
	return user, nil
}

// AuthenticatedSession returns the non-anonymous session behind the token,
// extending its window. Unlike ResolveSession it never substitutes an
// anonymous session: an unknown token is ErrNotLoggedIn and a lapsed one is
// ErrSessionTimeout, so callers can tell the two apart.
func (s *Service) AuthenticatedSession(ctx context.Context, sessionToken string) (*models.SessionUser, error) {
	if sessionToken == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	user, err := s.sessions.SessionByToken(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if user == nil {
		return nil, apperr.ErrNotLoggedIn
	}
	now := s.clock.Now()
	if !user.Alive(now, SessionWindow, PermanentSessionWindow) {
		return nil, apperr.ErrSessionTimeout
	}
	if user.LoginKind() == models.LoginKindAnonymous {
		return nil, apperr.ErrNotLoggedIn
	}
	if err := s.sessions.TouchSession(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	user.LastActivity = &now
	return user, nil
}

// ProfileUpdate carries the editable account fields. A nil pointer leaves
// the stored value untouched; an empty Password keeps the old credential.
type ProfileUpdate struct {
	Firstname *string
	Lastname  *string
	Street    *string
	Zip       *string
	City      *string
	Grade     *int
	Password  string
}

// UpdateProfile applies upd to the user's account. The CSRF token must
// match the session's.
func (s *Service) UpdateProfile(ctx context.Context, user *models.SessionUser, csrfToken string, upd ProfileUpdate) error {
	if csrfToken != user.CsrfToken {
		return apperr.ErrCsrfCheckFailed
	}
	if upd.Firstname != nil {
		user.Firstname = upd.Firstname
	}
	if upd.Lastname != nil {
		user.Lastname = upd.Lastname
	}
	if upd.Street != nil {
		user.Street = upd.Street
	}
	if upd.Zip != nil {
		user.Zip = upd.Zip
	}
	if upd.City != nil {
		user.City = upd.City
	}
	if upd.Grade != nil {
		user.Grade = *upd.Grade
	}
	if upd.Password != "" {
		salt := token.NewSalt()
		hash, err := bcrypt.GenerateFromPassword([]byte(upd.Password+salt), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		user.PasswordHash = &h
		user.Salt = &salt
	}
	if err := s.sessions.SaveSession(ctx, user); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Info("profile updated", "user", user.ID)
	return nil
}

// Logout invalidates the token. The account row survives so code and
// password logins keep working.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if err := s.sessions.ClearSessionToken(ctx, sessionToken); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

// SetPassword hashes password+salt with bcrypt and stores the result.
func (s *Service) SetPassword(ctx context.Context, user *models.SessionUser, password string) error {
	salt := token.NewSalt()
	hash, err := bcrypt.GenerateFromPassword([]byte(password+salt), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	h := string(hash)
	user.PasswordHash = &h
	user.Salt = &salt
	if err := s.sessions.SaveSession(ctx, user); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

// openSession rotates both tokens and stamps the login times, returning
// the user with the fresh tokens applied.
func (s *Service) openSession(ctx context.Context, user *models.SessionUser) (*models.SessionUser, error) {
	sessionToken := token.NewSessionToken()
	csrfToken := token.NewCsrfToken()
	now := s.clock.Now()
	if err := s.sessions.RotateTokens(ctx, user.ID, sessionToken, csrfToken, now); err != nil {
		return nil, fmt.Errorf("failed to rotate session tokens: %w", err)
	}
	user.SessionToken = &sessionToken
	user.CsrfToken = csrfToken
	user.LastLogin = &now
	user.LastActivity = &now
	return user, nil
}

func (s *Service) freshLoginCode(ctx context.Context) (string, error) {
	for i := 0; i < loginCodeAttempts; i++ {
		code := token.NewLoginCode()
		existing, err := s.sessions.SessionByLoginCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check login code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate an unused login code")
}
