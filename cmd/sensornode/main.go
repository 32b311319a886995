// Sensornode runs the sensor pipeline of one data-logging node.
//
// It loads the node configuration, opens the buses, builds every configured
// sensor into a pipeline builder and sweeps them on the poll interval until
// SIGINT or SIGTERM. Readings go to the live board, the WebSocket hub, MQTT
// and Prometheus; the store stage archives them to SQLite and InfluxDB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-sensornode/migrations"

	"github.com/nerrad567/gray-logic-sensornode/internal/api"
	"github.com/nerrad567/gray-logic-sensornode/internal/calibration"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers"
	"github.com/nerrad567/gray-logic-sensornode/internal/history"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensornode/internal/metrics"
	"github.com/nerrad567/gray-logic-sensornode/internal/node"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/power"
	"github.com/nerrad567/gray-logic-sensornode/internal/process"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/sensornode.yaml"

func main() {
	configFlag := flag.String("config", "", "path to the configuration file (overrides SENSORNODE_CONFIG)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath prefers the flag, then SENSORNODE_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("SENSORNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// closers runs shutdown steps in reverse order and combines their errors.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i]())
	}
	return err
}

// run is the application, separated from main for testability.
func run(ctx context.Context, configPath string) (err error) {
	log := logging.Default()
	log.Info("starting sensornode", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version, cfg.Node.ID)
	boot := uuid.NewString()
	log.Info("configuration loaded", "path", configPath, "boot", boot, "sensors", len(cfg.Sensors))

	var shutdown closers
	defer func() {
		if closeErr := shutdown.close(); closeErr != nil {
			log.Error("shutdown errors", "error", closeErr)
			err = multierr.Append(err, closeErr)
		}
		log.Info("sensornode stopped")
		_ = log.Close() //nolint:errcheck // Nothing left to report to
	}()

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	shutdown.add(db.Close)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	calStore := calibration.NewStore(db.DB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	hw, err := drivers.OpenHardware(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	shutdown.add(hw.Close)

	src, err := power.New(cfg.Hardware.Power, hw.Pin)
	if err != nil {
		return fmt.Errorf("power source: %w", err)
	}
	if err := met.WatchPower(src.External); err != nil {
		return fmt.Errorf("registering power gauge: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	board := report.NewBoard()
	reporter := report.Fanout{board, hub, met}
	var archiver report.Fanout
	alarms := []func(report.Alarm){met.Alarm, hub.Alarm}
	checks := map[string]api.HealthChecker{"database": db}

	var hist *history.Store
	if cfg.History.Enabled {
		hist = history.NewStore(db.DB, nil)
		archiver = append(archiver, hist)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix, Node: cfg.Node.ID})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		shutdown.add(mqttClient.Close)
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

		enc, err := report.NewEncoder(cfg.MQTT.PayloadFormat)
		if err != nil {
			return fmt.Errorf("mqtt payload format: %w", err)
		}
		sink := report.NewMQTTSink(mqttClient, mqttClient.Topics(), enc, byte(cfg.MQTT.QoS))
		reporter = append(reporter, sink)
		alarms = append(alarms, func(a report.Alarm) {
			if err := sink.PublishAlarm(a); err != nil {
				log.Warn("publishing alarm failed", "sensor", a.Sensor, "error", err)
			}
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"format", enc.Format(),
		)
	}

	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		shutdown.add(influx.Close)
		influx.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		archiver = append(archiver, influx)
		alarms = append(alarms, func(a report.Alarm) {
			if err := influx.WriteAlarm(a); err != nil {
				log.Debug("archiving alarm failed", "error", err)
			}
		})
		checks["influxdb"] = influx
		log.Info("InfluxDB enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	restarter := process.NewManager(process.Config{
		Mode: process.Mode(cfg.Scheduler.RestartMode),
		BeforeRestart: func(context.Context) error {
			if influx != nil {
				influx.Flush()
			}
			return shutdown.close()
		},
	})
	restarter.SetLogger(log.With("component", "process"))

	director := pipeline.NewDirector(pipeline.Config{Interval: cfg.Scheduler.PollInterval})
	director.SetLogger(log.With("component", "director"))
	director.SetObserver(met)

	set, err := drivers.Build(cfg.Sensors, drivers.Env{
		Node:     cfg.Node.ID,
		Hardware: hw,
		Director: director,
		Options: policy.Options{
			Node:        cfg.Node.ID,
			Boot:        boot,
			Logger:      log.With("component", "policy"),
			Calibration: calStore,
			Restarter:   restarter,
			Recorder:    met,
			Reporter:    reporter,
			Archiver:    archiver,
		},
		Power: src,
		Alarm: func(a report.Alarm) {
			log.Warn("threshold alarm", "sensor", a.Sensor, "channel", a.Channel, "kind", a.Kind,
				"value", a.Value, "threshold", a.Threshold)
			for _, fn := range alarms {
				fn(a)
			}
		},
		Logger: log.With("component", "drivers"),
	})
	if err != nil {
		return fmt.Errorf("building sensors: %w", err)
	}

	if err := director.Init(ctx); err != nil {
		return fmt.Errorf("initialising sensors: %w", err)
	}
	log.Info("sensors initialised", "builders", len(set.Builders), "sensors", set.Registry.Len())

	svc, err := node.New(node.Deps{Director: director, Set: set, Calibration: calStore, Logger: log})
	if err != nil {
		return err
	}

	if mqttClient != nil {
		if err := subscribeCommands(ctx, mqttClient, svc, byte(cfg.MQTT.QoS), log); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return director.Run(gctx) })
	g.Go(func() error { return set.Watch(gctx, director) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if hist != nil && cfg.History.PruneInterval > 0 {
		g.Go(func() error {
			hist.PruneLoop(gctx, cfg.History.PruneInterval, cfg.History.Retention, log.Warn)
			return nil
		})
	}

	if cfg.API.Enabled {
		var broker api.BrokerStats
		if mqttClient != nil {
			broker = mqttClient
		}
		var archive api.ArchiveStats
		if influx != nil {
			archive = influx
		}
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Node:     svc,
			Board:    board,
			Hub:      hub,
			Gatherer: reg,
			Checks:   checks,
			MQTT:     broker,
			Archive:  archive,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		shutdown.add(server.Close)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// subscribeCommands routes <prefix>/<node>/command/<sensor>/<action> to the
// node service.
func subscribeCommands(ctx context.Context, client *mqtt.Client, svc *node.Service, qos byte, log *logging.Logger) error {
	topics := client.Topics()
	return client.Subscribe(topics.AllCommands(), qos, func(topic string, payload []byte) error {
		name, action, ok := topics.ParseCommand(topic)
		if !ok {
			return fmt.Errorf("malformed command topic %q", topic)
		}
		log.Info("command received", "sensor", name, "action", action)
		if err := svc.Command(ctx, name, action, payload); err != nil {
			return fmt.Errorf("%s %s: %w", action, name, err)
		}
		return nil
	})
}
