package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-chat-server/internal/model"
)

// TokenStore is the persistence contract for refresh tokens. Rotate must be
// atomic: of two concurrent rotations of the same token exactly one may
// succeed, the other must observe model.ErrRefreshTokenReused.
type TokenStore interface {
	Store(ctx context.Context, t model.RefreshToken, raw string) error
	Rotate(ctx context.Context, oldRaw string, successor model.RefreshToken, newRaw string) (string, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	CleanExpired(ctx context.Context) (int64, error)
}

type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     TokenStore
}

func NewTokenService(secret string, accessTTL time.Duration, refreshTTL time.Duration, tokens TokenStore) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		tokens:     tokens,
	}, nil
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccess signs a short-lived identity claim. No side effects.
func (s *TokenService) IssueAccess(user model.User) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID,
		"nickname": user.Nickname,
		"role":     user.Role,
		"typ":      "access",
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates signature, expiry and token type. Expired and
// otherwise-invalid tokens fail with distinct errors.
func (s *TokenService) VerifyAccess(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrAccessTokenExpired
		}
		return nil, model.ErrAccessTokenInvalid
	}
	if !parsed.Valid {
		return nil, model.ErrAccessTokenInvalid
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrAccessTokenInvalid
	}

	claims := &model.AuthClaims{}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Nickname, _ = claimsMap["nickname"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.Type, _ = claimsMap["typ"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" || claims.Type != "access" {
		return nil, model.ErrAccessTokenInvalid
	}

	return claims, nil
}

// IssueRefresh mints an opaque refresh token, persists its record and returns
// the raw value. The raw value is never stored.
func (s *TokenService) IssueRefresh(ctx context.Context, userID string, ip string, userAgent string) (string, error) {
	raw, err := generateOpaqueToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	record := model.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedByIP: ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
	}

	if err := s.tokens.Store(ctx, record, raw); err != nil {
		return "", err
	}
	return raw, nil
}

// Rotate exchanges an active refresh token for a successor. Presenting a
// revoked or expired token is treated as a compromise signal: every session
// of the owning user is revoked before the request fails.
func (s *TokenService) Rotate(ctx context.Context, oldRaw string, ip string, userAgent string) (string, string, error) {
	newRaw, err := generateOpaqueToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	successor := model.RefreshToken{
		ID:          uuid.NewString(),
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedByIP: ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
	}

	userID, err := s.tokens.Rotate(ctx, oldRaw, successor, newRaw)
	if errors.Is(err, model.ErrRefreshTokenReused) {
		slog.Error("refresh token reuse detected, revoking all sessions",
			"user_id", userID, "ip", ip)
		if revokeErr := s.tokens.RevokeAllForUser(ctx, userID); revokeErr != nil {
			slog.Error("failed to revoke sessions after reuse detection",
				"user_id", userID, "error", revokeErr)
		}
		return "", "", model.ErrRefreshTokenReused
	}
	if err != nil {
		return "", "", err
	}

	return userID, newRaw, nil
}

func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	return s.tokens.Revoke(ctx, raw)
}

func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// StartSweepTicker deletes expired token rows periodically until ctx is done.
func (s *TokenService) StartSweepTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.tokens.CleanExpired(ctx)
			if err != nil {
				slog.Error("refresh token sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Debug("swept expired refresh tokens", "removed", removed)
			}
		}
	}
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
