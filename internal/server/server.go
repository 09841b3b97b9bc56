// Package server is the admin HTTP surface: health, metrics, read-only game
// inspection, a live event feed and an inbound event webhook.
package server

import (
	"context"
	"net/http"
	"time"

	"secret-santa/internal/config"
	"secret-santa/internal/conversation"
	"secret-santa/internal/db"
	"secret-santa/internal/santa"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventLog reads the persisted history of a game.
type EventLog interface {
	Events(ctx context.Context, code string, limit int) ([]db.Event, error)
}

// Submitter queues an inbound conversation event.
type Submitter interface {
	Submit(ev conversation.Event) error
}

type Server struct {
	store  santa.Store
	events EventLog
	sink   Submitter
	ws     *wsHub
	cfg    config.Config
}

// New builds the server. events may be nil when no database is configured.
func New(store santa.Store, events EventLog, sink Submitter, cfg config.Config) *Server {
	return &Server{
		store:  store,
		events: events,
		sink:   sink,
		ws:     newWSHub(),
		cfg:    cfg,
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Origin", "Content-Type", adminTokenHeader},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api/events", s.requireEventToken, s.handleInboundEvent)

	admin := r.Group("/", s.requireAdmin)
	admin.GET("/api/games/:code", s.handleGame)
	admin.GET("/admin/games/:code", s.handleAdminView)
	admin.GET("/ws/games/:code", s.handleWebsocket)
	return r
}

// PublishGameEvent pushes a lifecycle event to the game's live feed.
func (s *Server) PublishGameEvent(ev santa.GameEvent) {
	s.ws.Broadcast(ev.GameCode, ev)
}
