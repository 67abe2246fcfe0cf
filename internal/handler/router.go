package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Metrics *MetricsHandler
}

// RegisterRoutes mounts every endpoint. Each path is also served with a
// trailing slash so older clients keep working.
func RegisterRoutes(r gin.IRouter, h Handlers, requireAuth gin.HandlerFunc) {
	handle(r, http.MethodGet, "/health", h.Metrics.Health)
	handle(r, http.MethodGet, "/ready", h.Metrics.Ready)
	handle(r, http.MethodGet, "/metrics", h.Metrics.Prometheus)

	auth := r.Group("/auth")
	handle(auth, http.MethodPost, "/register", h.Auth.Register)
	handle(auth, http.MethodPost, "/login", h.Auth.Login)
	handle(auth, http.MethodPost, "/refresh", h.Auth.Refresh)
	handle(auth, http.MethodPost, "/logout", requireAuth, h.Auth.Logout)
	handle(auth, http.MethodPost, "/change-password", requireAuth, h.Auth.ChangePassword)

	users := r.Group("/users", requireAuth)
	handle(users, http.MethodGet, "/profile", h.Users.Profile)
	handle(users, http.MethodPut, "/profile", h.Users.UpdateProfile)
	handle(users, http.MethodPatch, "/profile", h.Users.UpdateProfile)
	handle(users, http.MethodGet, "/stats", h.Users.Stats)
}

func handle(r gin.IRoutes, method, path string, handlers ...gin.HandlerFunc) {
	r.Handle(method, path, handlers...)
	r.Handle(method, strings.TrimSuffix(path, "/")+"/", handlers...)
}
