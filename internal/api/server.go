// Package api exposes the household service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"homesync/internal/auth"
	"homesync/internal/events"
	"homesync/internal/logging"
	"homesync/internal/metrics"
	"homesync/internal/shopping"
	"homesync/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Feed is the live event channel of a household.
type Feed interface {
	events.Publisher
	Serve(w http.ResponseWriter, r *http.Request, householdID string) error
}

// Options wires the server's collaborators. Store, Verifier and Reconciler
// are required.
type Options struct {
	Store       *store.Store
	Verifier    TokenVerifier
	Reconciler  *shopping.Reconciler
	Feed        Feed
	Logger      *zap.Logger
	Metrics     *metrics.Collector
	CORSOrigins []string
}

// Server represents the HTTP API of the service
type Server struct {
	Router *gin.Engine

	store      *store.Store
	verifier   TokenVerifier
	reconciler *shopping.Reconciler
	feed       Feed
	logger     *zap.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	feed := opts.Feed
	if feed == nil {
		feed = events.NewHub(logger, nil)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
	}
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s := &Server{
		Router:     router,
		store:      opts.Store,
		verifier:   opts.Verifier,
		reconciler: opts.Reconciler,
		feed:       feed,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.health)

	authed := s.Router.Group("/", s.authenticate)
	{
		authed.GET("/me/profile", s.getProfile)
		authed.PUT("/me/profile", s.putProfile)
		authed.GET("/me/households", s.listMyHouseholds)

		authed.POST("/households", s.createHousehold)
		// Joining is how a non-member becomes one, so it skips the membership check.
		authed.POST("/households/:id/join", s.joinHousehold)

		authed.PATCH("/tasks/:id", s.patchTask)
		authed.PATCH("/shopping-list-items/:id", s.patchShoppingItem)
	}

	household := authed.Group("/households/:id", s.requireMember)
	{
		household.GET("", s.getHousehold)
		household.POST("/members", s.addMember)

		household.GET("/tasks", s.listTasks)
		household.POST("/tasks", s.createTask)

		household.GET("/shopping-list", s.getShoppingList)
		household.POST("/shopping-list/sync", s.syncShoppingList)

		household.GET("/events", s.serveEvents)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
