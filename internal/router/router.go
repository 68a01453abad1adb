package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/handler"
	"github.com/teachstack/livetest-backend/internal/middleware"
	"github.com/teachstack/livetest-backend/internal/response"
	"github.com/teachstack/livetest-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. It skips WebSocket upgrades.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth and beacon routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireTeacherJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Session Group ──────────────────────────────────────────────
	// create-or-join accepts both authenticated teachers and anonymous
	// students, so auth is optional here and roles are decided inside.
	sessions := router.Group("/api/v1/sessions")
	{
		sessions.GET("", handlers.Session.List)
		sessions.POST("/create-or-join", middleware.OptionalWSAuth(authService), handlers.Session.CreateOrJoin)
		sessions.POST("/:session_id/scores", middleware.RequireTeacherJWT(authService), handlers.Session.SubmitScores)
	}

	// ─── 3. Beacon (Fire-and-Forget, Rate Limited) ─────────────────────
	// navigator.sendBeacon cannot carry an Authorization header reliably,
	// so this stays unauthenticated; cleanup itself is idempotent.
	beacon := router.Group("/api/v1/beacon")
	beacon.Use(authLimiter.Middleware())
	{
		beacon.POST("/teacher-cleanup", handlers.Session.TeacherCleanupBeacon)
	}

	// ─── 4. WebSocket Group (Optional Token) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.OptionalWSAuth(authService))
	{
		ws.GET("/sessions/:session_id", handlers.WS.SessionStream)
	}

	return router
}
