package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"go-chat-server/internal/model"
	"go-chat-server/internal/service"
	"go-chat-server/pkg/apierror"
)

type accessVerifier interface {
	VerifyAccess(tokenString string) (*model.AuthClaims, error)
}

type userGetter interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

// Gate authenticates chat connections at handshake time. A connection with a
// missing, invalid or expired token, or one belonging to a missing or
// inactive user, is rejected before the upgrade; nothing is partially
// accepted.
type Gate struct {
	hub      *Hub
	verifier accessVerifier
	users    userGetter
	chat     *service.ChatService

	ratePoints int
	rateWindow time.Duration

	upgrader websocket.Upgrader
}

func NewGate(hub *Hub, verifier accessVerifier, users userGetter, chat *service.ChatService,
	ratePoints int, rateWindow time.Duration, allowedOrigins []string) *Gate {
	originSet := map[string]struct{}{}
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		originSet[origin] = struct{}{}
	}

	return &Gate{
		hub:        hub,
		verifier:   verifier,
		users:      users,
		chat:       chat,
		ratePoints: ratePoints,
		rateWindow: rateWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				_, ok := originSet[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// ServeWS is the /ws/chat handler.
func (g *Gate) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, user, err := g.authenticate(r)
	if err != nil {
		writeHandshakeError(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:      g.hub,
		gate:     g,
		conn:     conn,
		send:     make(chan []byte, 32),
		done:     make(chan struct{}),
		userID:   user.ID,
		nickname: user.Nickname,
		role:     claims.Role,
		limiter:  newConnLimiter(g.ratePoints, g.rateWindow),
	}

	g.hub.register <- client
	slog.Info("user connected to chat", "user_id", user.ID, "nickname", user.Nickname)

	go client.writePump()
	go client.readPump()

	g.sendHistory(client)
}

// authenticate resolves the access token from the handshake request: the
// `token` query parameter, a bearer header, or the access cookie.
func (g *Gate) authenticate(r *http.Request) (*model.AuthClaims, model.User, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			token = strings.TrimSpace(header[7:])
		}
	}
	if token == "" {
		if cookie, err := r.Cookie("access_token"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil, model.User{}, apierror.Unauthorized("access token required")
	}

	claims, err := g.verifier.VerifyAccess(token)
	if err != nil {
		return nil, model.User{}, err
	}

	user, err := g.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		return nil, model.User{}, model.ErrAccessTokenInvalid
	}
	if !user.IsActive {
		return nil, model.User{}, model.ErrAccountDeactivated
	}

	return claims, user, nil
}

func (g *Gate) sendHistory(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	messages, err := g.chat.RecentMessages(ctx)
	if err != nil {
		slog.Error("failed to load chat history", "error", err)
		return
	}

	client.sendDirect(eventHistory, map[string]any{"messages": messages})
}

func writeHandshakeError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	message := "authentication failed"

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		message = apiErr.Message
	case errors.Is(err, model.ErrAccessTokenExpired):
		message = "access token expired"
	case errors.Is(err, model.ErrAccountDeactivated):
		status = http.StatusForbidden
		message = "account is deactivated"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "UNAUTHORIZED", Message: message},
	})
}

// userFacingError keeps known domain messages and hides everything else.
func userFacingError(err error, fallback string) string {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	switch {
	case errors.Is(err, model.ErrForbidden):
		return "not allowed to delete this message"
	case errors.Is(err, model.ErrMessageNotFound):
		return "message not found"
	}

	return fallback
}
