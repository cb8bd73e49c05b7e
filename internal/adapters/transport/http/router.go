package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	authService "github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/auth/service"
	chatService "github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/service"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Auth   authService.Service
	Chat   chatService.Service
	Config *config.Config
	Logger *zap.Logger

	// Limiter is optional; nil disables per-IP limiting.
	Limiter *ratelimit.PerKey
	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Ping backs /health; nil means always healthy.
	Ping func(context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	// без доверенных прокси ClientIP берётся из RemoteAddr, а X-Forwarded-For игнорируется
	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		d.Logger.Error("bad trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.NewMetrics(d.Registerer).Handler())
	if d.Limiter != nil {
		r.Use(middleware.RateLimitPerIP(d.Limiter))
	}
	r.Use(cors.New(corsConfig(d.Config)))

	r.GET("/health", health(d.Ping))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	ah := NewAuthHandler(d.Auth, d.Config)
	requireUser := middleware.RequireUser(d.Auth)

	auth := r.Group("/auth")
	{
		auth.POST("/login", ah.Login)
		auth.POST("/register", ah.Register)
		auth.POST("/refresh", ah.Refresh)
		auth.POST("/logout", ah.Logout)
		auth.POST("/google", ah.Google)
		auth.GET("/status", ah.Status)
	}
	r.GET("/me", requireUser, ah.Me)
	r.POST("/admin/users/:id/revoke-tokens", requireUser, middleware.RequireRole(model.RoleAdmin), ah.RevokeTokens)

	ch := NewChatHandler(d.Chat)
	api := r.Group("/", requireUser)
	{
		api.GET("/rooms", ch.ListRooms)
		api.POST("/rooms", ch.CreateRoom)
		api.GET("/rooms/:id", ch.GetRoom)
		api.PATCH("/rooms/:id", ch.RenameRoom)
		api.DELETE("/rooms/:id", ch.DeleteRoom)
		api.POST("/rooms/:id/participants", ch.AddParticipant)
		api.DELETE("/rooms/:id/participants/:userId", ch.RemoveParticipant)
		api.POST("/rooms/:id/messages", ch.PostMessage)

		api.GET("/messages", ch.ListMessages)
		api.GET("/messages/:id", ch.GetMessage)
		api.DELETE("/messages/:id", ch.DeleteMessage)
	}
	return r
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowOrigins) == 0 {
		// без списка origin-ов cors.New паникует
		c.AllowOrigins = nil
		c.AllowAllOrigins = !cfg.AllowCredentials
		if cfg.AllowCredentials {
			c.AllowOriginFunc = func(string) bool { return false }
		}
	}
	return c
}

func health(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(nethttp.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	}
}
