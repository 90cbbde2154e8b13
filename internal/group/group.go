// Package group lets teachers create and inspect the groups they manage.
package group

import (
	"context"
	"fmt"
	"log/slog"

	"medal/internal/apperr"
	"medal/internal/models"
	"medal/internal/storage"
	"medal/internal/token"
)

const groupCodeAttempts = 10

type Service struct {
	groups storage.GroupStore
	logger *slog.Logger
}

func NewService(groups storage.GroupStore, logger *slog.Logger) *Service {
	return &Service{groups: groups, logger: logger}
}

// CreateGroup creates a group owned by the teacher with a generated join
// code. The CSRF token must match the admin's session.
func (s *Service) CreateGroup(ctx context.Context, admin *models.SessionUser, csrfToken, name, tag string) (*models.Group, error) {
	if !admin.IsTeacher {
		return nil, apperr.ErrAccessDenied
	}
	if csrfToken != admin.CsrfToken {
		return nil, apperr.ErrCsrfCheckFailed
	}

	code, err := s.freshGroupCode(ctx)
	if err != nil {
		return nil, err
	}
	group := &models.Group{
		Name:      name,
		Tag:       tag,
		GroupCode: code,
		AdminID:   admin.ID,
	}
	if err := s.groups.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	s.logger.Info("created group", "group_id", group.ID, "admin_id", admin.ID)
	return group, nil
}

// Groups lists the groups the teacher administers.
func (s *Service) Groups(ctx context.Context, admin *models.SessionUser) ([]models.Group, error) {
	if !admin.IsTeacher {
		return nil, apperr.ErrAccessDenied
	}
	groups, err := s.groups.GroupsByAdmin(ctx, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// GroupDetail loads one group with its member list. Only the owning admin
// may see it.
func (s *Service) GroupDetail(ctx context.Context, admin *models.SessionUser, groupID int) (*models.Group, error) {
	group, err := s.groups.GroupByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, apperr.ErrUnknownID
	}
	if group.AdminID != admin.ID {
		return nil, apperr.ErrAccessDenied
	}
	return group, nil
}

func (s *Service) freshGroupCode(ctx context.Context) (string, error) {
	for i := 0; i < groupCodeAttempts; i++ {
		code := token.NewGroupCode()
		existing, err := s.groups.GroupByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check group code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate an unused group code")
}
