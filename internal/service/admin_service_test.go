package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

type fakeAdminUserStore struct {
	users []model.User
}

func (s *fakeAdminUserStore) List(_ context.Context, page int, limit int) ([]model.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(s.users) {
		return nil, len(s.users), nil
	}
	end := start + limit
	if end > len(s.users) {
		end = len(s.users)
	}
	return s.users[start:end], len(s.users), nil
}

func (s *fakeAdminUserStore) Count(_ context.Context, activeOnly bool) (int, error) {
	if !activeOnly {
		return len(s.users), nil
	}
	count := 0
	for _, u := range s.users {
		if u.IsActive {
			count++
		}
	}
	return count, nil
}

func (s *fakeAdminUserStore) UpdateRole(_ context.Context, userID string, role string) (model.User, error) {
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i].Role = role
			return s.users[i], nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeAdminUserStore) UpdateStatus(_ context.Context, userID string, isActive bool) (model.User, error) {
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i].IsActive = isActive
			return s.users[i], nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

type fixedSessionCounter int

func (c fixedSessionCounter) CountActive(context.Context) (int, error) {
	return int(c), nil
}

func seedAdminUsers(n int) *fakeAdminUserStore {
	store := &fakeAdminUserStore{}
	for i := 0; i < n; i++ {
		store.users = append(store.users, model.User{
			ID:       fmt.Sprintf("u%d", i+1),
			Nickname: fmt.Sprintf("user%d", i+1),
			Role:     model.RoleUser,
			IsActive: i%2 == 0,
		})
	}
	return store
}

func TestAdminDashboard(t *testing.T) {
	t.Parallel()

	users := seedAdminUsers(25)
	messages := newFakeMessageStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, messages.Insert(context.Background(), model.Message{ID: fmt.Sprintf("m%d", i)}))
	}

	svc := NewAdminService(users, fixedSessionCounter(7), messages)

	dash, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 25, dash.Overview.TotalUsers)
	require.Equal(t, 13, dash.Overview.ActiveUsers)
	require.Equal(t, 3, dash.Overview.TotalMessages)
	require.Equal(t, 7, dash.Overview.ActiveSessions)
	require.Len(t, dash.RecentUsers, 10)
}

func TestAdminListUsers(t *testing.T) {
	t.Parallel()

	svc := NewAdminService(seedAdminUsers(25), fixedSessionCounter(0), newFakeMessageStore())

	t.Run("paginates with meta", func(t *testing.T) {
		users, meta, err := svc.ListUsers(context.Background(), 2, 10)
		require.NoError(t, err)
		require.Len(t, users, 10)
		require.Equal(t, 2, meta.Page)
		require.Equal(t, 25, meta.Total)
		require.Equal(t, 3, meta.TotalPages)
	})

	t.Run("normalizes out-of-range paging", func(t *testing.T) {
		_, meta, err := svc.ListUsers(context.Background(), 0, 500)
		require.NoError(t, err)
		require.Equal(t, 1, meta.Page)
		require.Equal(t, 20, meta.Limit)
	})
}

func TestAdminUpdateUser(t *testing.T) {
	t.Parallel()

	t.Run("promotes a user to admin", func(t *testing.T) {
		svc := NewAdminService(seedAdminUsers(3), fixedSessionCounter(0), newFakeMessageStore())

		updated, err := svc.UpdateUserRole(context.Background(), "u2", model.RoleAdmin)
		require.NoError(t, err)
		require.Equal(t, model.RoleAdmin, updated.Role)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		svc := NewAdminService(seedAdminUsers(3), fixedSessionCounter(0), newFakeMessageStore())

		_, err := svc.UpdateUserRole(context.Background(), "u2", "superuser")
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
	})

	t.Run("deactivates and reactivates", func(t *testing.T) {
		svc := NewAdminService(seedAdminUsers(3), fixedSessionCounter(0), newFakeMessageStore())

		updated, err := svc.UpdateUserStatus(context.Background(), "u1", false)
		require.NoError(t, err)
		require.Equal(t, "u1", updated.ID)

		_, err = svc.UpdateUserStatus(context.Background(), "missing", true)
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}
