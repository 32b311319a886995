// Package logging provides structured logging for the sensor node.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Rotating file output for nodes without a log collector
//   - Default fields (service, version, node) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/sensornode/sensornode.log"
//	    max_size: 10     # MB
//	    max_backups: 3
//	    max_age: 28      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version, cfg.Node.ID)
//	defer logger.Close()
//	logger.Sensor("sht3x").Info("collected", "channel", 0)
package logging
