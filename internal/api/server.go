package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dushansineth-design/keyless-door-app/internal/access"
	"github.com/dushansineth-design/keyless-door-app/internal/audit"
	"github.com/dushansineth-design/keyless-door-app/internal/auth"
	"github.com/dushansineth-design/keyless-door-app/internal/credential"
	"github.com/dushansineth-design/keyless-door-app/internal/infrastructure/config"
	"github.com/dushansineth-design/keyless-door-app/internal/infrastructure/influxdb"
	"github.com/dushansineth-design/keyless-door-app/internal/infrastructure/logging"
	"github.com/dushansineth-design/keyless-door-app/internal/infrastructure/mqtt"
	"github.com/dushansineth-design/keyless-door-app/internal/lock"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Registry    *lock.Registry
	Access      *access.Service
	Activity    lock.ActivityRepository
	Credentials credential.Store
	UserRepo    auth.UserRepository
	TokenRepo   auth.TokenRepository
	AuditRepo   audit.Repository
	MQTT        *mqtt.Client     // optional: lock firmware fan-out disabled when nil
	Influx      *influxdb.Client // optional: telemetry disabled when nil
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Keyless Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	registry  *lock.Registry
	access    *access.Service
	activity  lock.ActivityRepository
	creds     credential.Store
	userRepo  auth.UserRepository
	tokenRepo auth.TokenRepository
	auditRepo audit.Repository
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	version   string

	server      *http.Server
	hub         *Hub
	externalHub bool // true if hub was injected externally
	tickets     *ticketStore
	auditCh     chan *audit.AuditLog
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("lock registry is required")
	}
	if deps.Access == nil {
		return nil, fmt.Errorf("access service is required")
	}
	if deps.UserRepo == nil || deps.TokenRepo == nil {
		return nil, fmt.Errorf("user and token repositories are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	// MQTT and InfluxDB are optional; lock operations work without them.

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		access:    deps.Access,
		activity:  deps.Activity,
		creds:     deps.Credentials,
		userRepo:  deps.UserRepo,
		tokenRepo: deps.TokenRepo,
		auditRepo: deps.AuditRepo,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}

	if deps.AuditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	// Use externally-provided hub if available.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and the audit writer,
// wires the lock registry's change notifications into the hub and MQTT,
// subscribes to inbound battery reports, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.tickets.cleanLoop(srvCtx)

	// Start the async audit writer
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	// Fan lock state changes out to WebSocket clients and MQTT
	s.registry.SetNotifier(s.stateNotifier())

	// Consume battery reports from lock firmware
	if err := s.subscribeBatteryReports(); err != nil {
		s.logger.Warn("failed to subscribe to battery reports", "error", err)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. The audit writer
// drains its channel before exiting.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup, audit writer)
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

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
