package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-chat-server/internal/config"
	"go-chat-server/internal/database"
	"go-chat-server/internal/handler"
	"go-chat-server/internal/middleware"
	"go-chat-server/internal/websocket"
)

func New(
	cfg *config.Config,
	db *database.DB,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	chatGate *websocket.Gate,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The chat socket skips the request timeout: connections are long-lived.
	r.Get("/ws/chat", chatGate.ServeWS)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Get("/captcha", authHandler.Captcha)
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)
			auth.Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Post("/logout-all", authHandler.LogoutAll)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
			auth.Post("/password/request-reset", authHandler.RequestPasswordReset)
			auth.Post("/password/reset", authHandler.ResetPassword)
			auth.With(authMiddleware.RequireAuth).Post("/password/change", authHandler.ChangePassword)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin"))
			admin.Get("/dashboard", adminHandler.Dashboard)
			admin.Get("/users", adminHandler.ListUsers)
			admin.Patch("/users/{id}/role", adminHandler.UpdateUserRole)
			admin.Patch("/users/{id}/status", adminHandler.UpdateUserStatus)
		})
	})

	return r
}
