package influxdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.points))
	for i, p := range w.points {
		out[i] = write.PointToLineProtocol(p, time.Nanosecond)
	}
	return out
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := &Client{writeAPI: w}
	c.connected.Store(true)
	return c, w
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "sensornode",
		Bucket:        "readings",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(testConfig(url))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteReadings(t *testing.T) {
	c, w := newTestClient()
	ts := time.Unix(1700000000, 0)

	readings := []report.Reading{
		{Node: "n1", Boot: "b1", Sensor: "sht3x", Channel: "temperature", Value: 21.5, Status: "valid", Unit: 1, Count: 3, Time: ts},
		{Node: "n1", Sensor: "sht3x", Channel: "humidity", Value: 40, Status: "invalid", Unit: 1, Count: 3, Time: ts},
	}
	if err := c.Write(context.Background(), readings); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := w.lines()
	if len(lines) != 2 {
		t.Fatalf("points = %d, want 2", len(lines))
	}

	wantParts := []string{
		"sensor_reading,",
		"boot=b1",
		"channel=temperature",
		"node=n1",
		"sensor=sht3x",
		"status=valid",
		"value=21.5",
		"count=3i",
		"unit=1i",
		"1700000000000000000",
	}
	for _, part := range wantParts {
		if !strings.Contains(lines[0], part) {
			t.Errorf("line %q missing %q", lines[0], part)
		}
	}
	if strings.Contains(lines[1], "boot=") {
		t.Errorf("line %q has empty boot tag", lines[1])
	}
	if !strings.Contains(lines[1], "status=invalid") {
		t.Errorf("line %q missing status=invalid", lines[1])
	}
}

func TestWriteAlarm(t *testing.T) {
	c, w := newTestClient()

	err := c.WriteAlarm(report.Alarm{Node: "n1", Sensor: "ds18b20", Channel: "temperature", Value: 31, Threshold: 30, Kind: "above"})
	if err != nil {
		t.Fatalf("WriteAlarm() error = %v", err)
	}

	lines := w.lines()
	if len(lines) != 1 {
		t.Fatalf("points = %d, want 1", len(lines))
	}
	for _, part := range []string{"sensor_alarm,", "kind=above", "threshold=30", "value=31"} {
		if !strings.Contains(lines[0], part) {
			t.Errorf("line %q missing %q", lines[0], part)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	c, w := newTestClient()
	c.connected.Store(false)

	if err := c.Write(context.Background(), []report.Reading{{Sensor: "x"}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() error = %v, want ErrNotConnected", err)
	}
	if err := c.WriteAlarm(report.Alarm{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteAlarm() error = %v, want ErrNotConnected", err)
	}
	c.Flush()
	if len(w.points) != 0 || w.flushes != 0 {
		t.Errorf("points/flushes = %d/%d after close, want 0/0", len(w.points), w.flushes)
	}
}

func TestFlush(t *testing.T) {
	c, w := newTestClient()
	c.Flush()
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	c, _ := newTestClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	go c.handleWriteErrors(errs)
	errs <- errors.New("bucket not found")
	close(errs)

	select {
	case err := <-got:
		if err.Error() != "bucket not found" {
			t.Errorf("callback error = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("callback not invoked")
	}
}

func TestStats(t *testing.T) {
	c, _ := newTestClient()

	readings := []report.Reading{{Sensor: "a", Channel: "x"}, {Sensor: "a", Channel: "y"}}
	if err := c.Write(context.Background(), readings); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := c.WriteAlarm(report.Alarm{Sensor: "a", Kind: "below"}); err != nil {
		t.Fatalf("WriteAlarm() error = %v", err)
	}

	errs := make(chan error, 2)
	errs <- errors.New("timeout")
	errs <- errors.New("unauthorized")
	close(errs)
	c.handleWriteErrors(errs)

	got := c.Stats()
	if got.Points != 3 {
		t.Errorf("Stats().Points = %d, want 3", got.Points)
	}
	if got.WriteErrors != 2 {
		t.Errorf("Stats().WriteErrors = %d, want 2", got.WriteErrors)
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(testConfig("http://localhost:8086"))
	if opts.BatchSize() != 10 {
		t.Errorf("BatchSize() = %d, want 10", opts.BatchSize())
	}
	if opts.FlushInterval() != 1000 {
		t.Errorf("FlushInterval() = %d, want 1000", opts.FlushInterval())
	}
	if opts.Precision() != time.Millisecond {
		t.Errorf("Precision() = %v, want 1ms", opts.Precision())
	}

	defaults := clientOptions(config.InfluxDBConfig{})
	if defaults.BatchSize() != defaultBatchSize {
		t.Errorf("default BatchSize() = %d, want %d", defaults.BatchSize(), defaultBatchSize)
	}
}

func TestImplementsSink(t *testing.T) {
	var _ report.Sink = (*Client)(nil)
}
