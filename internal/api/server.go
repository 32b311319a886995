package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sensornode/internal/calibration"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensornode/internal/node"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Node is the sensor surface the API serves.
type Node interface {
	Sensors(ctx context.Context) ([]node.Summary, error)
	Sensor(ctx context.Context, name string) (node.Summary, error)
	Consumption(ctx context.Context, name string) ([]node.Consumption, error)
	ResetConsumption(ctx context.Context, name string) error
	Recalibrate(ctx context.Context, name string) error
	LowPower(ctx context.Context, name string, enter bool) error
	Calibration(ctx context.Context, key uint32) (calibration.Entry, error)
	SetCalibration(ctx context.Context, e calibration.Entry) error
}

// HealthChecker reports the health of a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStats reports the state of the MQTT connection.
type BrokerStats interface {
	Stats() mqtt.Stats
}

// ArchiveStats reports the InfluxDB write counters.
type ArchiveStats interface {
	Stats() influxdb.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Node     Node
	Board    *report.Board

	// Hub is the live readings hub. If nil the server creates its own.
	Hub *Hub

	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer

	// Checks are reported by /health by name.
	Checks map[string]HealthChecker

	// MQTT adds broker counters to /system. Nil when MQTT is disabled.
	MQTT BrokerStats
	// Archive adds InfluxDB counters to /system. Nil when InfluxDB is disabled.
	Archive ArchiveStats

	Version string
}

// Server is the HTTP API server of a sensor node.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	node      Node
	board     *report.Board
	hub       *Hub
	ownHub    bool
	gatherer  prometheus.Gatherer
	checks    map[string]HealthChecker
	mqtt      BrokerStats
	archive   ArchiveStats
	version   string
	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Node == nil {
		return nil, fmt.Errorf("node service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		node:      deps.Node,
		board:     deps.Board,
		hub:       deps.Hub,
		gatherer:  deps.Gatherer,
		checks:    deps.Checks,
		mqtt:      deps.MQTT,
		archive:   deps.Archive,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.board == nil {
		s.board = report.NewBoard()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.ownHub = true
	}
	return s, nil
}

// Hub returns the live readings hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler { return s.buildRouter() }

// Start begins listening for HTTP connections in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.ownHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
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

// HealthCheck verifies the API server is running.
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
