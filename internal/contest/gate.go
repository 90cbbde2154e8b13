// Package contest gates who may view, start and submit to a contest, and
// tracks the per-user time window once started.
package contest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medal/internal/auth"
	"medal/internal/clock"
	"medal/internal/models"
	"medal/internal/storage"
)

// SubmitGrace tolerates submissions that arrive just after the personal
// window closes, covering network latency on the final save.
const SubmitGrace = 10 * time.Second

// Remaining is the time left in a running participation.
type Remaining struct {
	Unlimited bool  `json:"unlimited"`
	Seconds   int64 `json:"seconds"`
}

type Gate struct {
	contests       storage.ContestStore
	participations storage.ParticipationStore
	clock          clock.Clock
	logger         *slog.Logger
}

func NewGate(contests storage.ContestStore, participations storage.ParticipationStore, clk clock.Clock, logger *slog.Logger) *Gate {
	return &Gate{
		contests:       contests,
		participations: participations,
		clock:          clk,
		logger:         logger,
	}
}

// CanViewContest reports whether the contest shows up for this user at all.
// Teachers see unpublished contests too.
func (g *Gate) CanViewContest(user *models.SessionUser, contest *models.Contest) bool {
	return contest.Public || (user != nil && user.IsTeacher)
}

// CanStartContest runs the start checks in a fixed order and returns the
// first one that fails. csrfToken is the value the client sent back, not
// the stored one.
func (g *Gate) CanStartContest(ctx context.Context, user *models.SessionUser, contest *models.Contest, csrfToken string) (models.StartDecision, error) {
	now := g.clock.Now()

	participation, err := g.participations.Participation(ctx, contest.ID, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up participation: %w", err)
	}
	if participation != nil {
		return models.StartAlreadyStarted, nil
	}

	if !windowOpen(contest, now) {
		return models.StartOutsideWindow, nil
	}

	loggedIn := user.LoggedIn(now, auth.SessionWindow, auth.PermanentSessionWindow)
	if contest.HasDuration() && !loggedIn {
		return models.StartNotLoggedIn, nil
	}
	if loggedIn && csrfToken != user.CsrfToken {
		return models.StartCsrfMismatch, nil
	}

	if !user.IsTeacher {
		grade := user.EffectiveGrade()
		if contest.MinGrade != nil && grade < *contest.MinGrade {
			return models.StartGradeTooLow, nil
		}
		if contest.MaxGrade != nil && grade > *contest.MaxGrade {
			return models.StartGradeTooHigh, nil
		}
	}
	return models.StartAllowed, nil
}

// StartOrResume records the participation anchor, or returns the existing
// one untouched. For contests without a duration the anchor is created on
// first view, so decision AlreadyStarted is as good as Allowed.
func (g *Gate) StartOrResume(ctx context.Context, user *models.SessionUser, contest *models.Contest, csrfToken string) (*models.Participation, models.StartDecision, error) {
	decision, err := g.CanStartContest(ctx, user, contest, csrfToken)
	if err != nil {
		return nil, "", err
	}
	switch decision {
	case models.StartAlreadyStarted:
		participation, err := g.participations.Participation(ctx, contest.ID, user.ID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load participation: %w", err)
		}
		return participation, decision, nil
	case models.StartAllowed:
		participation := &models.Participation{
			ContestID: contest.ID,
			UserID:    user.ID,
			Start:     g.clock.Now(),
		}
		if err := g.participations.CreateParticipation(ctx, participation); err != nil {
			return nil, "", fmt.Errorf("failed to create participation: %w", err)
		}
		// Creation is first-writer-wins, so a concurrent start may have
		// landed its anchor first. Re-read to hand back the stored one.
		stored, err := g.participations.Participation(ctx, contest.ID, user.ID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load participation: %w", err)
		}
		return stored, decision, nil
	default:
		return nil, decision, nil
	}
}

// AutoStart opens a participation on first view of an unlimited contest
// when the gate allows it. Timed contests always wait for an explicit
// start, so this is a no-op for them.
func (g *Gate) AutoStart(ctx context.Context, user *models.SessionUser, contest *models.Contest) (*models.Participation, error) {
	if contest.HasDuration() {
		return g.participations.Participation(ctx, contest.ID, user.ID)
	}
	participation, decision, err := g.StartOrResume(ctx, user, contest, user.CsrfToken)
	if err != nil {
		return nil, err
	}
	if decision != models.StartAllowed && decision != models.StartAlreadyStarted {
		return nil, nil
	}
	return participation, nil
}

// RemainingTime computes the time left in this participation at now.
func (g *Gate) RemainingTime(contest *models.Contest, participation *models.Participation) Remaining {
	if !contest.HasDuration() {
		return Remaining{Unlimited: true}
	}
	now := g.clock.Now()
	elapsed := now.Sub(participation.Start)
	if elapsed < 0 {
		// The anchor sits in the future, which only happens when server
		// clocks disagree. Treat the contest as just started.
		g.logger.Warn("participation starts in the future",
			"contest_id", contest.ID,
			"user_id", participation.UserID,
			"start", participation.Start,
			"now", now)
		elapsed = 0
	}
	remaining := time.Duration(contest.Duration)*time.Minute - elapsed
	return Remaining{Seconds: int64(remaining / time.Second)}
}

// CanSubmit reports whether a submission is accepted right now. The
// personal window gets a short grace period and teachers are exempt from
// it entirely.
func (g *Gate) CanSubmit(ctx context.Context, user *models.SessionUser, contest *models.Contest) (bool, error) {
	participation, err := g.participations.Participation(ctx, contest.ID, user.ID)
	if err != nil {
		return false, fmt.Errorf("failed to look up participation: %w", err)
	}
	if participation == nil {
		return false, nil
	}
	if !contest.HasDuration() || user.IsTeacher {
		return true, nil
	}
	remaining := g.RemainingTime(contest, participation)
	return time.Duration(remaining.Seconds)*time.Second > -SubmitGrace, nil
}

// ReviewOpen reports whether the contest sits inside its review window,
// during which finished participants may revisit tasks read-only.
func (g *Gate) ReviewOpen(contest *models.Contest) bool {
	now := g.clock.Now()
	if contest.ReviewStart == nil || now.Before(*contest.ReviewStart) {
		return false
	}
	if contest.ReviewEnd != nil && now.After(*contest.ReviewEnd) {
		return false
	}
	return true
}

// windowOpen treats a missing bound as open on that side.
func windowOpen(contest *models.Contest, now time.Time) bool {
	if contest.Start != nil && now.Before(*contest.Start) {
		return false
	}
	if contest.End != nil && now.After(*contest.End) {
		return false
	}
	return true
}
