package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/mqtt"
)

// SystemStatus is the response of GET /system.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Sensors       int             `json:"sensors"`
	Readings      int             `json:"readings"`
	WSClients     int             `json:"ws_clients"`
	WSDropped     uint64          `json:"ws_dropped"`
	MQTT          *mqtt.Stats     `json:"mqtt,omitempty"`
	InfluxDB      *influxdb.Stats `json:"influxdb,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(mem.TotalAlloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		Readings:  len(s.board.All()),
		WSClients: s.hub.ClientCount(),
		WSDropped: s.hub.Dropped(),
	}

	if s.mqtt != nil {
		st := s.mqtt.Stats()
		status.MQTT = &st
	}
	if s.archive != nil {
		st := s.archive.Stats()
		status.InfluxDB = &st
	}

	// A stopped director leaves the sensor count at zero.
	if sensors, err := s.node.Sensors(r.Context()); err == nil {
		status.Sensors = len(sensors)
	}

	writeJSON(w, http.StatusOK, status)
}
