package http

import (
	"context"
	"os"
	"time"

	"github.com/dkeye/relay/internal/adapters/signal"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/auth"
	"github.com/dkeye/relay/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionName = "RelaySessions"

// Deps is what the router needs beyond config. Gatherer may be nil, in which
// case /metrics is not served.
type Deps struct {
	Orch     *orch.Orchestrator
	Auth     auth.Authenticator
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	if d.Auth == nil {
		d.Auth = auth.SessionAuthenticator{}
	}
	h := &handlers{orch: d.Orch, auth: d.Auth}

	if info, err := os.Stat(cfg.StaticPath); err == nil && info.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", h.health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Bool("dev_login", cfg.Auth.DevLogin).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(d.Orch, d.Auth, signal.Settings{
		ReadLimit:       cfg.ReadLimit,
		PingPeriod:      cfg.PingPeriod,
		PongWait:        cfg.PongWait,
		WriteWait:       cfg.WriteWait,
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.Rate.EventsPerSecond,
		Burst:           cfg.Rate.Burst,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	})
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	if cfg.Auth.DevLogin {
		api.POST("/session", h.login)
	}
	api.DELETE("/session", h.logout)

	api.GET("/presence", h.presence)
	api.GET("/ice-servers", h.iceServers)
	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:room/connections", h.roomConnections)

	authed := api.Group("", h.requireUser)
	authed.GET("/rooms/:room/messages", h.roomMessages)
	authed.PUT("/rooms/:room/members/:user", h.grantMember)
	authed.GET("/calls/history", h.callHistory)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowOriginFunc = func(string) bool { return true }
		return c
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowOriginFunc = func(string) bool { return true }
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
