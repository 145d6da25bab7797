package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"
)

const captchaLength = 6

// Ambiguous glyphs (0/O, 1/I) are excluded.
const captchaAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type captchaChallenge struct {
	text      string
	expiresAt time.Time
}

// CaptchaService holds registration challenges in process memory with a TTL.
// It is constructed once and injected; rendering the text as an image is a
// frontend concern.
type CaptchaService struct {
	ttl   time.Duration
	mu    sync.Mutex
	store map[string]captchaChallenge
	now   func() time.Time
}

func NewCaptchaService(ttl time.Duration) *CaptchaService {
	return &CaptchaService{
		ttl:   ttl,
		store: make(map[string]captchaChallenge),
		now:   time.Now,
	}
}

// Generate creates a new challenge and returns its id and expected text.
func (s *CaptchaService) Generate() (string, string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", err
	}
	id := hex.EncodeToString(idBytes)

	text, err := randomCaptchaText()
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	s.store[id] = captchaChallenge{text: text, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return id, text, nil
}

// Validate consumes the challenge regardless of outcome so it cannot be
// replayed, then compares case-insensitively.
func (s *CaptchaService) Validate(id string, text string) bool {
	s.mu.Lock()
	challenge, exists := s.store[id]
	if exists {
		delete(s.store, id)
	}
	s.mu.Unlock()

	if !exists {
		slog.Warn("captcha not found", "captcha_id", id)
		return false
	}

	if s.now().After(challenge.expiresAt) {
		slog.Warn("captcha expired", "captcha_id", id)
		return false
	}

	return strings.EqualFold(challenge.text, strings.TrimSpace(text))
}

// StartSweepTicker removes expired challenges periodically until ctx is done.
func (s *CaptchaService) StartSweepTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *CaptchaService) sweep() {
	now := s.now()
	cleaned := 0

	s.mu.Lock()
	for id, challenge := range s.store {
		if now.After(challenge.expiresAt) {
			delete(s.store, id)
			cleaned++
		}
	}
	s.mu.Unlock()

	if cleaned > 0 {
		slog.Debug("cleaned expired captchas", "cleaned", cleaned)
	}
}

func randomCaptchaText() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(captchaAlphabet)))
	for i := 0; i < captchaLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(captchaAlphabet[n.Int64()])
	}
	return b.String(), nil
}
