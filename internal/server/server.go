// Package server exposes the live state over a small local HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/service"
	"github.com/smokyabdulrahman/prayer-notify/internal/state"
	"github.com/smokyabdulrahman/prayer-notify/internal/widget"
)

// Server serves the status API.
type Server struct {
	svc    *service.Service
	state  *state.State
	bridge *widget.Bridge
	engine *gin.Engine
}

// New builds the router. bridge may be nil.
func New(svc *service.Service, st *state.State, bridge *widget.Bridge) *Server {
	s := &Server{svc: svc, state: st, bridge: bridge}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/healthz", s.health)
	api := r.Group("/api")
	{
		api.GET("/schedule", s.schedule)
		api.GET("/next", s.next)
		api.GET("/widget", s.widget)
		api.GET("/notifications", s.notifications)
		api.GET("/preferences", s.preferences)
		api.PUT("/preferences", s.updatePreferences)
		api.POST("/refresh", s.refresh)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("status API listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// unavailable answers 503 with the banner, if any.
func (s *Server) unavailable(c *gin.Context, fallback string) {
	msg := s.state.Banner()
	if msg == "" {
		msg = fallback
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
}

func (s *Server) schedule(c *gin.Context) {
	snap := s.state.Snapshot()
	if snap.Schedule == nil {
		s.unavailable(c, "no schedule loaded yet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedule": snap.Schedule,
		"label":    snap.Schedule.Label(),
		"banner":   snap.Banner,
	})
}

func (s *Server) next(c *gin.Context) {
	next := s.state.Next()
	if next == nil {
		s.unavailable(c, "no upcoming prayer known yet")
		return
	}
	c.JSON(http.StatusOK, next)
}

func (s *Server) widget(c *gin.Context) {
	if s.bridge != nil {
		if p, ok := s.bridge.Last(); ok {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	snap := s.state.Snapshot()
	if snap.Schedule == nil {
		s.unavailable(c, "no schedule loaded yet")
		return
	}
	c.JSON(http.StatusOK, widget.BuildPayload(snap.Schedule, snap.Next, snap.Prefs.Language, snap.Prefs.Theme))
}

func (s *Server) notifications(c *gin.Context) {
	meta, pending, err := s.svc.NotificationStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pending == nil {
		pending = []notify.Scheduled{}
	}
	prefs := s.state.Prefs()
	c.JSON(http.StatusOK, gin.H{
		"enabled": prefs.NotificationsEnabled(),
		"meta":    meta,
		"pending": pending,
	})
}

// redact hides secrets before preferences leave the process.
func redact(cfg config.Config) config.Config {
	if cfg.RedisPassword != "" {
		cfg.RedisPassword = "********"
	}
	return cfg
}

func (s *Server) preferences(c *gin.Context) {
	c.JSON(http.StatusOK, redact(s.state.Prefs()))
}

func (s *Server) updatePreferences(c *gin.Context) {
	var changes map[string]string
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object of string values: " + err.Error()})
		return
	}
	if len(changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no changes given"})
		return
	}

	prefs, err := s.svc.UpdatePreferences(c.Request.Context(), changes)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "preferences": redact(prefs)})
		return
	}
	c.JSON(http.StatusOK, redact(prefs))
}

func (s *Server) refresh(c *gin.Context) {
	schedule, err := s.svc.Refresh(c.Request.Context(), true)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUpstream), errors.Is(err, service.ErrLocationUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, notify.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
