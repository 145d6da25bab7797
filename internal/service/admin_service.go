package service

import (
	"context"
	"log/slog"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

type AdminUserStore interface {
	List(ctx context.Context, page int, limit int) ([]model.User, int, error)
	Count(ctx context.Context, activeOnly bool) (int, error)
	UpdateRole(ctx context.Context, userID string, role string) (model.User, error)
	UpdateStatus(ctx context.Context, userID string, isActive bool) (model.User, error)
}

type SessionCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type AdminService struct {
	users    AdminUserStore
	sessions SessionCounter
	messages MessageStore
}

func NewAdminService(users AdminUserStore, sessions SessionCounter, messages MessageStore) *AdminService {
	return &AdminService{users: users, sessions: sessions, messages: messages}
}

func (s *AdminService) Dashboard(ctx context.Context) (model.DashboardResponse, error) {
	totalUsers, err := s.users.Count(ctx, false)
	if err != nil {
		return model.DashboardResponse{}, err
	}

	activeUsers, err := s.users.Count(ctx, true)
	if err != nil {
		return model.DashboardResponse{}, err
	}

	totalMessages, err := s.messages.Count(ctx)
	if err != nil {
		return model.DashboardResponse{}, err
	}

	activeSessions, err := s.sessions.CountActive(ctx)
	if err != nil {
		return model.DashboardResponse{}, err
	}

	recent, _, err := s.users.List(ctx, 1, 10)
	if err != nil {
		return model.DashboardResponse{}, err
	}

	recentUsers := make([]model.AuthUser, 0, len(recent))
	for _, u := range recent {
		recentUsers = append(recentUsers, u.Public())
	}

	return model.DashboardResponse{
		Overview: model.DashboardOverview{
			TotalUsers:     totalUsers,
			ActiveUsers:    activeUsers,
			TotalMessages:  totalMessages,
			ActiveSessions: activeSessions,
		},
		RecentUsers: recentUsers,
	}, nil
}

func (s *AdminService) ListUsers(ctx context.Context, page int, limit int) ([]model.AuthUser, *model.Meta, error) {
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, nil, err
	}

	out := make([]model.AuthUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	totalPages := (total + limit - 1) / limit

	return out, &model.Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, userID string, role string) (model.AuthUser, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.AuthUser{}, apierror.Validation("invalid role", role)
	}

	user, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return model.AuthUser{}, err
	}

	slog.Info("user role updated", "user_id", userID, "role", role)
	return user.Public(), nil
}

func (s *AdminService) UpdateUserStatus(ctx context.Context, userID string, isActive bool) (model.AuthUser, error) {
	user, err := s.users.UpdateStatus(ctx, userID, isActive)
	if err != nil {
		return model.AuthUser{}, err
	}

	slog.Info("user status updated", "user_id", userID, "is_active", isActive)
	return user.Public(), nil
}
