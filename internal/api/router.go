package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// WebSocket handshake. Browsers cannot set an Authorization header
		// on a WebSocket dial, so the single-use ticket from
		// POST /auth/ws-ticket is the connection's authentication.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			// WS ticket requires authentication - the ticket carries the
			// caller's identity to the WebSocket connection
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Lock endpoints (owner-scoped)
			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)
				r.Post("/", s.handleCreateLock)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLock)
					r.Patch("/", s.handleRenameLock)
					r.Delete("/", s.handleDeleteLock)
					r.Put("/state", s.handleTransition)
					r.Post("/pin", s.handleSetPin)
					r.Post("/pin/verify", s.handleVerifyPin)
					r.Get("/activity", s.handleLockActivity)
				})
			})

			// Admin-only endpoints
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/audit", s.handleListAuditLogs)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.handleListUsers)
					r.Post("/", s.handleCreateUser)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetUser)
						r.Patch("/", s.handleUpdateUser)
						r.Delete("/", s.handleDeleteUser)
						r.Get("/sessions", s.handleListUserSessions)
						r.Delete("/sessions", s.handleRevokeUserSessions)
					})
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
