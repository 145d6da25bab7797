package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-chat-server/internal/model"
)

// TokenRepository persists refresh tokens by sha256 digest. Raw values are
// hashed at the boundary and never written to the database.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r *TokenRepository) Store(ctx context.Context, t model.RefreshToken, raw string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_by_ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, hashToken(raw), t.UserID, t.ExpiresAt, t.CreatedByIP, t.UserAgent, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Rotate atomically replaces oldRaw with the supplied successor. The old row
// is locked for the duration of the transaction, so two racing rotations
// cannot both mint a successor: the loser observes a revoked row and gets
// model.ErrRefreshTokenReused with the owning user id.
func (r *TokenRepository) Rotate(ctx context.Context, oldRaw string, successor model.RefreshToken, newRaw string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin rotation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		oldID     string
		userID    string
		expiresAt time.Time
		revoked   bool
	)
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, expires_at, revoked
		 FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`,
		hashToken(oldRaw)).Scan(&oldID, &userID, &expiresAt, &revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	now := time.Now().UTC()
	if revoked || !expiresAt.After(now) {
		return userID, model.ErrRefreshTokenReused
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_by_ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		successor.ID, hashToken(newRaw), userID, successor.ExpiresAt,
		successor.CreatedByIP, successor.UserAgent, successor.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert rotated refresh token: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, replaced_by = $3 WHERE id = $1`,
		oldID, now, successor.ID)
	if err != nil {
		return "", fmt.Errorf("revoke rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit rotation tx: %w", err)
	}

	return userID, nil
}

// Revoke marks one active token revoked. An unknown or already-inactive
// token is reported so callers can fail loudly.
func (r *TokenRepository) Revoke(ctx context.Context, raw string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		 WHERE token_hash = $1 AND NOT revoked AND expires_at > now()`,
		hashToken(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRefreshTokenInvalid
	}
	return nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		 WHERE user_id = $1 AND NOT revoked`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE NOT revoked AND expires_at > now()`).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active refresh tokens: %w", err)
	}
	return count, nil
}

func (r *TokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
