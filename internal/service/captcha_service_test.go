package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptchaService(t *testing.T) {
	t.Parallel()

	t.Run("generated text uses the unambiguous alphabet", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		_, text, err := svc.Generate()
		require.NoError(t, err)
		require.Len(t, text, 6)
		for _, r := range text {
			require.Contains(t, captchaAlphabet, string(r))
		}
	})

	t.Run("a correct answer validates once and only once", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		id, text, err := svc.Generate()
		require.NoError(t, err)

		require.True(t, svc.Validate(id, text))
		require.False(t, svc.Validate(id, text))
	})

	t.Run("comparison ignores case and surrounding whitespace", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		id, text, err := svc.Generate()
		require.NoError(t, err)
		require.True(t, svc.Validate(id, "  "+strings.ToLower(text)+" "))
	})

	t.Run("a wrong answer consumes the challenge", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		id, text, err := svc.Generate()
		require.NoError(t, err)

		require.False(t, svc.Validate(id, "nope"))
		require.False(t, svc.Validate(id, text))
	})

	t.Run("unknown ids never validate", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)
		require.False(t, svc.Validate("missing", "anything"))
	})

	t.Run("expired challenges are rejected", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		id, text, err := svc.Generate()
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
		require.False(t, svc.Validate(id, text))
	})

	t.Run("sweep drops only expired challenges", func(t *testing.T) {
		svc := NewCaptchaService(5 * time.Minute)

		staleID, _, err := svc.Generate()
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
		freshID, freshText, err := svc.Generate()
		require.NoError(t, err)

		svc.sweep()

		require.False(t, svc.Validate(staleID, "anything"))
		require.True(t, svc.Validate(freshID, freshText))
	})
}
