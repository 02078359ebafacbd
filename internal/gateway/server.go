// Package gateway exposes the session lifecycle and message relay over
// HTTP. One server fronts all tenants; routes are keyed by tenant id.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/store"
)

// Opts holds configuration for the gateway server.
type Opts struct {
	Controller *session.Controller
	Relay      *relay.Relay
	Store      *store.Store
	Bus        *bus.Bus
	Port       int
}

// Server is the HTTP surface over the session controller and relay.
type Server struct {
	ctrl  *session.Controller
	relay *relay.Relay
	store *store.Store
	bus   *bus.Bus
	port  int
}

// New validates opts and creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("gateway: controller is required")
	}
	if opts.Relay == nil {
		return nil, fmt.Errorf("gateway: relay is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("gateway: store is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("gateway: bus is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}
	return &Server{
		ctrl:  opts.Controller,
		relay: opts.Relay,
		store: opts.Store,
		bus:   opts.Bus,
		port:  opts.Port,
	}, nil
}

// Handler builds the gin router with all routes registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/tenants/:id")
	api.POST("/session", s.handleStartSession)
	api.DELETE("/session", s.handleDisconnect)
	api.GET("/qr", s.handleQR)
	api.GET("/status", s.handleStatus)
	api.POST("/messages", s.handleSendMessage)
	api.GET("/messages/:counterparty", s.handleHistory)
	api.GET("/conversations", s.handleConversations)
	api.GET("/events", s.handleEvents)

	return router
}

// Run launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
