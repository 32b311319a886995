package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/calibration"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/simulated"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

type memCalibrations struct {
	mu      sync.Mutex
	entries map[uint32]calibration.Entry
}

func newMemCalibrations() *memCalibrations {
	return &memCalibrations{entries: make(map[uint32]calibration.Entry)}
}

func (m *memCalibrations) Get(_ context.Context, key uint32) (calibration.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return calibration.Entry{}, fmt.Errorf("key %d: %w", key, policy.ErrCalibrationNotFound)
	}
	return e, nil
}

func (m *memCalibrations) Set(_ context.Context, e calibration.Entry) error {
	if e.Key == 0 {
		return policy.ErrNoCalibrationKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *memCalibrations) Calibration(ctx context.Context, key uint32) (policy.CalibrationRecord, error) {
	e, err := m.Get(ctx, key)
	if err != nil {
		return policy.CalibrationRecord{}, err
	}
	return policy.CalibrationRecord{Enabled: e.Enabled, Offset: e.Offset}, nil
}

type fixture struct {
	svc      *Service
	set      *drivers.Set
	cal      *memCalibrations
	director *pipeline.Director
}

// start builds the sensors, runs the director and waits until it serves
// requests. The first sweep has completed by then.
func start(t *testing.T, sensors []config.SensorConfig) *fixture {
	t.Helper()

	clk := clock.NewMock()
	cal := newMemCalibrations()
	_ = cal.Set(context.Background(), calibration.Entry{Key: 5, Enabled: true, Offset: 3})

	d := pipeline.NewDirector(pipeline.Config{Interval: time.Hour, Clock: clk})
	set, err := drivers.Build(sensors, drivers.Env{
		Node:     "bench",
		Director: d,
		Options:  policy.Options{Node: "bench", Calibration: cal, Clock: clk},
		Clock:    clk,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for d.Do(ctx, func(context.Context) {}) != nil {
		if time.Now().After(deadline) {
			t.Fatal("director did not start")
		}
		time.Sleep(time.Millisecond)
	}

	svc, err := New(Deps{Director: d, Set: set, Calibration: cal})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{svc: svc, set: set, cal: cal, director: d}
}

func simSensor(name string, key uint32, base ...float64) config.SensorConfig {
	s := config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: name, Driver: config.DriverSimulated, Base: base},
	}
	for i := range base {
		s.Channels = append(s.Channels, config.ChannelConfig{
			Name:           fmt.Sprintf("c%d", i),
			Defaults:       true,
			Power:          2.5,
			Min:            -40,
			Max:            125,
			CalibrationKey: key,
		})
	}
	return s
}

func TestNew(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without director succeeded")
	}
	if _, err := New(Deps{Director: pipeline.NewDirector(pipeline.Config{})}); err == nil {
		t.Error("New() without sensor set succeeded")
	}
}

func TestService_Sensors(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20), simSensor("b", 0, 1, 2)})

	got, err := f.svc.Sensors(context.Background())
	if err != nil {
		t.Fatalf("Sensors() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Sensors() = %d sensors, want 2", len(got))
	}
	if got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("order = %s, %s, want a, b", got[0].Name, got[1].Name)
	}
	if len(got[1].Channels) != 2 {
		t.Errorf("b channels = %d, want 2", len(got[1].Channels))
	}
	if got[0].Gate != "once" || len(got[0].Stages) != len(policy.DefaultStages) {
		t.Errorf("a gate/stages = %s/%v", got[0].Gate, got[0].Stages)
	}
}

func TestService_Sensor(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20)})
	ctx := context.Background()

	got, err := f.svc.Sensor(ctx, "a")
	if err != nil {
		t.Fatalf("Sensor() error = %v", err)
	}
	ch := got.Channels[0]
	// Raw 20 plus the stored offset of 3.
	if ch.Value != 23 || ch.Status != "valid" || !ch.Normal || ch.Unit != policy.DefaultUnit {
		t.Errorf("channel = %+v", ch)
	}

	if _, err := f.svc.Sensor(ctx, "missing"); !errors.Is(err, sensor.ErrNotFound) {
		t.Errorf("Sensor(missing) error = %v, want ErrNotFound", err)
	}
}

func TestService_Consumption(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20)})
	ctx := context.Background()

	got, err := f.svc.Consumption(ctx, "a")
	if err != nil {
		t.Fatalf("Consumption() error = %v", err)
	}
	if len(got) != 1 || got[0].Count != 1 || got[0].Energy != 2.5 {
		t.Errorf("Consumption() = %+v, want one collection of 2.5", got)
	}

	if err := f.svc.ResetConsumption(ctx, "a"); err != nil {
		t.Fatalf("ResetConsumption() error = %v", err)
	}
	got, _ = f.svc.Consumption(ctx, "a")
	if got[0].Count != 0 || got[0].Energy != 0 {
		t.Errorf("after reset = %+v, want zero", got[0])
	}
}

func TestService_Recalibrate(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20)})
	ctx := context.Background()

	if err := f.svc.SetCalibration(ctx, calibration.Entry{Key: 5, Enabled: true, Offset: -4}); err != nil {
		t.Fatalf("SetCalibration() error = %v", err)
	}
	if err := f.svc.Recalibrate(ctx, "a"); err != nil {
		t.Fatalf("Recalibrate() error = %v", err)
	}

	got, _ := f.svc.Sensor(ctx, "a")
	if v := got.Channels[0].Value; v != 16 {
		t.Errorf("value after recalibrate = %v, want 16", v)
	}

	e, err := f.svc.Calibration(ctx, 5)
	if err != nil || e.Offset != -4 {
		t.Errorf("Calibration(5) = %+v, %v", e, err)
	}
	if _, err := f.svc.Calibration(ctx, 9); !errors.Is(err, policy.ErrCalibrationNotFound) {
		t.Errorf("Calibration(9) error = %v, want ErrCalibrationNotFound", err)
	}
}

func TestService_RecalibrateWithoutStage(t *testing.T) {
	s := simSensor("a", 5, 20)
	s.Stages = []string{policy.StageCollect, policy.StageReport}
	f := start(t, []config.SensorConfig{s})

	err := f.svc.Recalibrate(context.Background(), "a")
	if !errors.Is(err, pipeline.ErrStageNotFound) {
		t.Errorf("Recalibrate() error = %v, want ErrStageNotFound", err)
	}
}

func TestService_LowPower(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20)})
	ctx := context.Background()

	dev, _ := f.set.Registry.Lookup("a")
	sim := dev.(*simulated.Device)

	if err := f.svc.LowPower(ctx, "a", false); err != nil {
		t.Fatalf("LowPower(false) error = %v", err)
	}
	if !sim.Opened() {
		t.Error("sensor closed after leaving low power")
	}
	if err := f.svc.LowPower(ctx, "a", true); err != nil {
		t.Fatalf("LowPower(true) error = %v", err)
	}
	if sim.Opened() {
		t.Error("sensor open after entering low power")
	}
}

func TestService_Group(t *testing.T) {
	g := config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: "probes"},
		Policy:       "group",
		Members: []config.DeviceConfig{
			{Name: "m0", Driver: config.DriverSimulated, Base: []float64{10}},
			{Name: "m1", Driver: config.DriverSimulated, Base: []float64{30}},
		},
		Channels: []config.ChannelConfig{
			{Name: "left", Defaults: true, Min: -40, Max: 125, Power: 1},
			{Name: "right", Defaults: true, Min: -40, Max: 125, Power: 4},
		},
	}
	f := start(t, []config.SensorConfig{g})

	got, err := f.svc.Sensor(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Sensor(m1) error = %v", err)
	}
	if got.Builder != "probes" || len(got.Channels) != 1 || got.Channels[0].Name != "right" {
		t.Errorf("Sensor(m1) = %+v", got)
	}
	if got.Channels[0].Value != 30 {
		t.Errorf("m1 value = %v, want 30", got.Channels[0].Value)
	}

	c, _ := f.svc.Consumption(context.Background(), "m1")
	if len(c) != 1 || c[0].Power != 4 {
		t.Errorf("Consumption(m1) = %+v", c)
	}
}

func TestService_Command(t *testing.T) {
	f := start(t, []config.SensorConfig{simSensor("a", 5, 20)})
	ctx := context.Background()

	tests := []struct {
		action  string
		payload string
		wantErr error
	}{
		{ActionRecalibrate, "", nil},
		{ActionResetConsumption, "", nil},
		{ActionLowPower, `{"enter":true}`, nil},
		{ActionLowPower, `not json`, sensor.ErrBadData},
		{"reboot", "", ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			err := f.svc.Command(ctx, "a", tt.action, []byte(tt.payload))
			if tt.wantErr == nil && err != nil {
				t.Errorf("Command() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Command() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_NotRunning(t *testing.T) {
	d := pipeline.NewDirector(pipeline.Config{})
	set, err := drivers.Build([]config.SensorConfig{simSensor("a", 0, 1)}, drivers.Env{Director: d})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	svc, _ := New(Deps{Director: d, Set: set})

	if _, err := svc.Sensor(context.Background(), "a"); !errors.Is(err, pipeline.ErrStopped) {
		t.Errorf("Sensor() error = %v, want ErrStopped", err)
	}
	if _, err := svc.Calibration(context.Background(), 1); !errors.Is(err, ErrNoCalibrationStore) {
		t.Errorf("Calibration() error = %v, want ErrNoCalibrationStore", err)
	}
}
