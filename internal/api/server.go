package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mood-core/internal/lamp"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionManager is the part of mqtt.Manager the API exposes.
type ConnectionManager interface {
	Connect(ctx context.Context)
	Disconnect(timeout time.Duration)
	ReInit(ctx context.Context)
	State() mqtt.State
	IsConnected() bool
	ReconnectAttempts() int
	Endpoint() mqtt.Endpoint
	Topics() []mqtt.Topic
	SubscribeTo(topic mqtt.Topic) error
	UnsubscribeFrom(name string) error
	HealthCheck(ctx context.Context) error
	Register(handler mqtt.EventHandler) mqtt.ListenerID
	Remove(id mqtt.ListenerID)
}

// LampController is the part of lamp.Controller the API exposes.
type LampController interface {
	State() lamp.State
	Topics() mqtt.DeviceTopics
	SetColour(ctx context.Context, colour lamp.Colour) error
	Mood(ctx context.Context, on bool) error
	Off(ctx context.Context) error
	SetDevice(ctx context.Context, topic, id string) error
	OnChange(fn func(lamp.State))
}

// HealthChecker is implemented by optional backing stores.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config            config.APIConfig
	WS                config.WebSocketConfig
	Logger            *logging.Logger
	Manager           ConnectionManager
	Lamp              LampController
	History           lamp.History  // optional
	Database          HealthChecker // optional
	Telemetry         HealthChecker // optional
	DisconnectTimeout time.Duration
	Version           string
}

// Server is the HTTP API server for Mood Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg               config.APIConfig
	wsCfg             config.WebSocketConfig
	logger            *logging.Logger
	manager           ConnectionManager
	lamp              LampController
	history           lamp.History
	database          HealthChecker
	telemetry         HealthChecker
	disconnectTimeout time.Duration
	version           string
	startedAt         time.Time

	hub        *Hub
	listenerID mqtt.ListenerID
	server     *http.Server
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("connection manager is required")
	}
	if deps.Lamp == nil {
		return nil, fmt.Errorf("lamp controller is required")
	}

	return &Server{
		cfg:               deps.Config,
		wsCfg:             deps.WS,
		logger:            deps.Logger,
		manager:           deps.Manager,
		lamp:              deps.Lamp,
		history:           deps.History,
		database:          deps.Database,
		telemetry:         deps.Telemetry,
		disconnectTimeout: deps.DisconnectTimeout,
		version:           deps.Version,
		startedAt:         time.Now(),
		hub:               NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays manager events and lamp state changes
// to it, and launches the HTTP listener in a background goroutine. The
// listener is bound before Start returns so a port conflict is reported.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.relayEvents()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.manager.Remove(s.listenerID)
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.manager.Remove(s.listenerID)
	s.lamp.OnChange(nil)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// relayEvents forwards manager events and lamp changes to the hub.
func (s *Server) relayEvents() {
	s.listenerID = s.manager.Register(func(ev mqtt.Event) error {
		s.hub.Broadcast(eventChannel(ev.Type), eventPayload(ev))
		return nil
	})
	s.lamp.OnChange(func(st lamp.State) {
		s.hub.Broadcast(ChannelLampState, st)
	})
}
