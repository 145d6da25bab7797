package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*model.User{}}
}

func (s *fakeUserStore) add(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *fakeUserStore) get(id string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return *u, nil
}

func (s *fakeUserStore) FindByNickname(_ context.Context, nickname string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Nickname, nickname) {
			return *u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			return *u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeUserStore) FindByResetTokenHash(_ context.Context, tokenHash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == tokenHash &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(time.Now()) {
			return *u, nil
		}
	}
	return model.User{}, model.ErrResetTokenInvalid
}

func (s *fakeUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Nickname, u.Nickname) {
			return model.ErrNicknameTaken
		}
		if existing.Email != nil && u.Email != nil && strings.EqualFold(*existing.Email, *u.Email) {
			return model.ErrEmailTaken
		}
	}
	s.users[u.ID] = &u
	return nil
}

func (s *fakeUserStore) UpdateLoginAttempts(_ context.Context, userID string, attempts int, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.FailedLoginAttempts = attempts
	u.LockedUntil = lockedUntil
	return nil
}

func (s *fakeUserStore) RecordSuccessfulLogin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	now := time.Now()
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	return nil
}

func (s *fakeUserStore) SetResetToken(_ context.Context, userID string, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordResetToken = &tokenHash
	u.PasswordResetExpires = &expiresAt
	return nil
}

func (s *fakeUserStore) ResetPassword(_ context.Context, userID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type captureMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _ string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *captureMailer) lastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return ""
	}
	return m.tokens[len(m.tokens)-1]
}

type authFixture struct {
	auth    *AuthService
	users   *fakeUserStore
	tokens  *fakeTokenStore
	captcha *CaptchaService
	mailer  *captureMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	tokenSvc := newTestTokenService(t, tokens, 15*time.Minute)
	captcha := NewCaptchaService(5 * time.Minute)
	mailer := &captureMailer{}

	auth := NewAuthService(users, tokenSvc, captcha, mailer, 5, 15*time.Minute, time.Hour)
	return &authFixture{auth: auth, users: users, tokens: tokens, captcha: captcha, mailer: mailer}
}

func (f *authFixture) seedUser(t *testing.T, nickname string, password string) model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	email := nickname + "@example.com"
	user := model.User{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		Email:        &email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.users.add(user)
	return user
}

func (f *authFixture) solvedCaptcha(t *testing.T) (string, string) {
	t.Helper()
	id, text, err := f.captcha.Generate()
	require.NoError(t, err)
	return id, text
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates a user and issues both tokens", func(t *testing.T) {
		f := newAuthFixture(t)
		id, text := f.solvedCaptcha(t)

		pair, err := f.auth.Register(ctx, model.RegisterRequest{
			Nickname:    "alice",
			Password:    "correct-horse",
			Email:       "Alice@Example.com",
			CaptchaID:   id,
			CaptchaText: text,
		}, "127.0.0.1", "test-agent")
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		require.Equal(t, "alice", pair.User.Nickname)
		require.Equal(t, model.RoleUser, pair.User.Role)

		stored, err := f.users.FindByNickname(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, stored.Email)
		require.Equal(t, "alice@example.com", *stored.Email)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse")))
	})

	t.Run("rejects a wrong captcha answer", func(t *testing.T) {
		f := newAuthFixture(t)
		id, _ := f.solvedCaptcha(t)

		_, err := f.auth.Register(ctx, model.RegisterRequest{
			Nickname: "bob", Password: "long-enough", CaptchaID: id, CaptchaText: "WRONG1",
		}, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrCaptchaInvalid)
	})

	t.Run("a wrong answer burns the challenge", func(t *testing.T) {
		f := newAuthFixture(t)
		id, text := f.solvedCaptcha(t)

		_, err := f.auth.Register(ctx, model.RegisterRequest{
			Nickname: "bob", Password: "long-enough", CaptchaID: id, CaptchaText: "WRONG1",
		}, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrCaptchaInvalid)

		// Even the correct answer is now useless.
		_, err = f.auth.Register(ctx, model.RegisterRequest{
			Nickname: "bob", Password: "long-enough", CaptchaID: id, CaptchaText: text,
		}, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrCaptchaInvalid)
	})

	t.Run("rejects malformed nicknames", func(t *testing.T) {
		f := newAuthFixture(t)
		for _, nickname := range []string{"ab", "has space", "way-too-long-nickname-over-thirty-chars", "emoji😀"} {
			id, text := f.solvedCaptcha(t)
			_, err := f.auth.Register(ctx, model.RegisterRequest{
				Nickname: nickname, Password: "long-enough", CaptchaID: id, CaptchaText: text,
			}, "127.0.0.1", "test-agent")

			var apiErr *apierror.APIError
			require.ErrorAs(t, err, &apiErr, "nickname %q", nickname)
		}
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		f := newAuthFixture(t)
		id, text := f.solvedCaptcha(t)

		_, err := f.auth.Register(ctx, model.RegisterRequest{
			Nickname: "carol", Password: "short", CaptchaID: id, CaptchaText: text,
		}, "127.0.0.1", "test-agent")

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
	})

	t.Run("rejects duplicate nicknames", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedUser(t, "alice", "irrelevant-pw")
		id, text := f.solvedCaptcha(t)

		_, err := f.auth.Register(ctx, model.RegisterRequest{
			Nickname: "alice", Password: "long-enough", CaptchaID: id, CaptchaText: text,
		}, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrNicknameTaken)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid credentials issue a pair and reset lockout state", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		_, err := f.auth.Login(ctx, "alice", "wrong", "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrInvalidCredentials)

		pair, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)

		stored := f.users.get(user.ID)
		require.Zero(t, stored.FailedLoginAttempts)
		require.NotNil(t, stored.LastLoginAt)
	})

	t.Run("unknown nickname and wrong password are indistinguishable", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedUser(t, "alice", "correct-horse")

		_, unknownErr := f.auth.Login(ctx, "nobody", "whatever-pw", "127.0.0.1", "test-agent")
		_, wrongErr := f.auth.Login(ctx, "alice", "wrong-password", "127.0.0.1", "test-agent")
		require.ErrorIs(t, unknownErr, model.ErrInvalidCredentials)
		require.ErrorIs(t, wrongErr, model.ErrInvalidCredentials)
	})

	t.Run("fifth failure locks the account even for the right password", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		for i := 0; i < 5; i++ {
			_, err := f.auth.Login(ctx, "alice", "wrong-password", "127.0.0.1", "test-agent")
			require.ErrorIs(t, err, model.ErrInvalidCredentials)
		}

		stored := f.users.get(user.ID)
		require.Equal(t, 5, stored.FailedLoginAttempts)
		require.NotNil(t, stored.LockedUntil)

		_, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "FORBIDDEN", apiErr.Code)
	})

	t.Run("an expired lock restarts the failure count", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		past := time.Now().Add(-time.Minute)
		stale := f.users.get(user.ID)
		stale.FailedLoginAttempts = 5
		stale.LockedUntil = &past
		f.users.add(stale)

		_, err := f.auth.Login(ctx, "alice", "wrong-password", "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrInvalidCredentials)

		stored := f.users.get(user.ID)
		require.Equal(t, 1, stored.FailedLoginAttempts)
		require.Nil(t, stored.LockedUntil)
	})

	t.Run("expired lock allows the right password straight through", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		past := time.Now().Add(-time.Minute)
		stale := f.users.get(user.ID)
		stale.FailedLoginAttempts = 5
		stale.LockedUntil = &past
		f.users.add(stale)

		_, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.NoError(t, err)
	})

	t.Run("deactivated accounts cannot log in", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		disabled := f.users.get(user.ID)
		disabled.IsActive = false
		f.users.add(disabled)

		_, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrAccountDeactivated)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("refresh rotates the session token", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedUser(t, "alice", "correct-horse")

		pair, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.NoError(t, err)

		next, err := f.auth.Refresh(ctx, pair.RefreshToken, "127.0.0.1", "test-agent")
		require.NoError(t, err)
		require.NotEqual(t, pair.RefreshToken, next.RefreshToken)
		require.Equal(t, "alice", next.User.Nickname)
	})

	t.Run("refresh for a deactivated user fails", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		pair, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.NoError(t, err)

		disabled := f.users.get(user.ID)
		disabled.IsActive = false
		f.users.add(disabled)

		_, err = f.auth.Refresh(ctx, pair.RefreshToken, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrAccountDeactivated)
	})

	t.Run("logout kills the session so refresh replays trip reuse detection", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		pair, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "test-agent")
		require.NoError(t, err)
		require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))

		_, err = f.auth.Refresh(ctx, pair.RefreshToken, "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrRefreshTokenReused)
		require.Zero(t, f.tokens.activeCount(user.ID))
	})

	t.Run("logout-all clears every session", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "correct-horse")

		_, err := f.auth.Login(ctx, "alice", "correct-horse", "127.0.0.1", "agent-a")
		require.NoError(t, err)
		_, err = f.auth.Login(ctx, "alice", "correct-horse", "10.0.0.2", "agent-b")
		require.NoError(t, err)
		require.Equal(t, 2, f.tokens.activeCount(user.ID))

		require.NoError(t, f.auth.LogoutAll(ctx, user.ID))
		require.Zero(t, f.tokens.activeCount(user.ID))
	})
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full reset flow installs the new password", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedUser(t, "alice", "old-password")

		require.NoError(t, f.auth.RequestPasswordReset(ctx, "alice@example.com"))
		token := f.mailer.lastToken()
		require.NotEmpty(t, token)

		require.NoError(t, f.auth.ResetPassword(ctx, token, "brand-new-password"))

		_, err := f.auth.Login(ctx, "alice", "old-password", "127.0.0.1", "test-agent")
		require.ErrorIs(t, err, model.ErrInvalidCredentials)
		_, err = f.auth.Login(ctx, "alice", "brand-new-password", "127.0.0.1", "test-agent")
		require.NoError(t, err)
	})

	t.Run("unknown email reports success without sending", func(t *testing.T) {
		f := newAuthFixture(t)
		require.NoError(t, f.auth.RequestPasswordReset(ctx, "ghost@example.com"))
		require.Empty(t, f.mailer.lastToken())
	})

	t.Run("a used token does not work twice", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedUser(t, "alice", "old-password")

		require.NoError(t, f.auth.RequestPasswordReset(ctx, "alice@example.com"))
		token := f.mailer.lastToken()

		require.NoError(t, f.auth.ResetPassword(ctx, token, "brand-new-password"))
		require.ErrorIs(t, f.auth.ResetPassword(ctx, token, "another-password"), model.ErrResetTokenInvalid)
	})

	t.Run("a bogus token is rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		require.ErrorIs(t, f.auth.ResetPassword(ctx, "bogus", "long-enough-pw"), model.ErrResetTokenInvalid)
	})

	t.Run("resetting clears an active lockout", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "old-password")

		for i := 0; i < 5; i++ {
			_, _ = f.auth.Login(ctx, "alice", "wrong-password", "127.0.0.1", "test-agent")
		}
		require.NotNil(t, f.users.get(user.ID).LockedUntil)

		require.NoError(t, f.auth.RequestPasswordReset(ctx, "alice@example.com"))
		require.NoError(t, f.auth.ResetPassword(ctx, f.mailer.lastToken(), "brand-new-password"))

		_, err := f.auth.Login(ctx, "alice", "brand-new-password", "127.0.0.1", "test-agent")
		require.NoError(t, err)
	})
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires the current password", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "old-password")

		err := f.auth.ChangePassword(ctx, user.ID, "not-the-password", "brand-new-password")
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "UNAUTHORIZED", apiErr.Code)
	})

	t.Run("installs the new password", func(t *testing.T) {
		f := newAuthFixture(t)
		user := f.seedUser(t, "alice", "old-password")

		require.NoError(t, f.auth.ChangePassword(ctx, user.ID, "old-password", "brand-new-password"))

		_, err := f.auth.Login(ctx, "alice", "brand-new-password", "127.0.0.1", "test-agent")
		require.NoError(t, err)
	})
}
