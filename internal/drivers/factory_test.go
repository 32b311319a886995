package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire/onewiretest"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/pt100"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/power"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

func ptr(v float64) *float64 { return &v }

func channel(name string) config.ChannelConfig {
	return config.ChannelConfig{Name: name, Defaults: true, Min: -40, Max: 125}
}

func simulatedSensor(name string, base ...float64) config.SensorConfig {
	chans := make([]config.ChannelConfig, len(base))
	for i := range base {
		chans[i] = channel(string(rune('a' + i)))
	}
	return config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: name, Driver: config.DriverSimulated, Base: base},
		Channels:     chans,
	}
}

type fixture struct {
	director *pipeline.Director
	board    *report.Board
	alarms   []report.Alarm
	env      Env
}

func newFixture() *fixture {
	clk := clock.NewMock()
	f := &fixture{
		director: pipeline.NewDirector(pipeline.Config{Clock: clk}),
		board:    report.NewBoard(),
	}
	f.env = Env{
		Node:     "bench",
		Director: f.director,
		Options:  policy.Options{Node: "bench", Reporter: f.board, Clock: clk},
		Alarm:    func(a report.Alarm) { f.alarms = append(f.alarms, a) },
		Clock:    clk,
	}
	return f
}

func (f *fixture) sweep(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.director.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	f.director.Process(ctx)
}

func TestBuildSimulated(t *testing.T) {
	f := newFixture()
	s := simulatedSensor("sim", 21.5, 40)
	s.Channels[0].Unit = 10
	s.Channels[1].FailLimit = 7

	set, err := Build([]config.SensorConfig{s}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if _, err := set.Registry.Lookup("sim"); err != nil {
		t.Errorf("Lookup(sim) error = %v", err)
	}
	if len(f.director.Builders()) != 1 {
		t.Fatalf("director builders = %d, want 1", len(f.director.Builders()))
	}

	cfg := set.Builders[0].Config()
	if cfg[0].Unit != 10 || cfg[1].Unit != policy.DefaultUnit {
		t.Errorf("units = %d/%d, want 10/%d", cfg[0].Unit, cfg[1].Unit, policy.DefaultUnit)
	}
	if cfg[0].RetryLimit != policy.DefaultRetryLimit {
		t.Errorf("RetryLimit = %d, want %d", cfg[0].RetryLimit, policy.DefaultRetryLimit)
	}
	if cfg[1].FailLimit != 7 {
		t.Errorf("FailLimit = %d, want 7", cfg[1].FailLimit)
	}

	f.sweep(t)

	readings, ok := f.board.Sensor("sim")
	if !ok || len(readings) != 2 {
		t.Fatalf("board readings = %v", readings)
	}
	// Two base values default to per-channel raw mode.
	if readings[0].Value != 21.5 || readings[1].Value != 40 {
		t.Errorf("values = %v/%v, want 21.5/40", readings[0].Value, readings[1].Value)
	}
	if readings[0].Status != "valid" || readings[0].Node != "bench" {
		t.Errorf("reading = %+v", readings[0])
	}
}

func TestBuildBroadcastRawMode(t *testing.T) {
	f := newFixture()
	s := simulatedSensor("sim", 21.5, 40)
	s.RawMode = "broadcast"

	if _, err := Build([]config.SensorConfig{s}, f.env); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.sweep(t)

	readings, _ := f.board.Sensor("sim")
	if len(readings) != 2 || readings[1].Value != 21.5 {
		t.Errorf("readings = %v, want channel 0 copied to channel 1", readings)
	}
}

func TestBuildStages(t *testing.T) {
	f := newFixture()
	s := simulatedSensor("sim", 1)
	s.Stages = []string{"collect", "report"}
	s.Gate = "per_stage"

	set, err := Build([]config.SensorConfig{s}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b := set.Builders[0]
	if names := b.StageNames(); len(names) != 2 || names[1] != "report" {
		t.Errorf("StageNames() = %v, want [collect report]", names)
	}
	if b.Gate() != pipeline.GatePerStage {
		t.Errorf("Gate() = %v, want per_stage", b.Gate())
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		sensor  config.SensorConfig
		hw      *Hardware
		wantErr error
	}{
		{
			name: "unknown stage",
			sensor: func() config.SensorConfig {
				s := simulatedSensor("sim", 1)
				s.Stages = []string{"collect", "smooth"}
				return s
			}(),
			wantErr: policy.ErrUnknownStage,
		},
		{
			name:    "too many channels",
			sensor:  func() config.SensorConfig { s := simulatedSensor("sim", 1); s.Channels = append(s.Channels, channel("b")); return s }(),
			wantErr: ErrTooManyChannels,
		},
		{
			name: "no i2c bus",
			sensor: config.SensorConfig{
				DeviceConfig: config.DeviceConfig{Name: "sht", Driver: config.DriverSHT3x},
				Channels:     []config.ChannelConfig{channel("t")},
			},
			wantErr: ErrNoBus,
		},
		{
			name: "bad rom",
			sensor: config.SensorConfig{
				DeviceConfig: config.DeviceConfig{Name: "probe", Driver: config.DriverDS18B20, ROM: "xyz"},
				Channels:     []config.ChannelConfig{channel("t")},
			},
			hw:      &Hardware{OneWire: &onewiretest.Playback{}},
			wantErr: ErrBadROM,
		},
		{
			name: "missing pin",
			sensor: config.SensorConfig{
				DeviceConfig: config.DeviceConfig{Name: "door", Driver: config.DriverMCS, Pin: "GPIO5", OutPin: "GPIO6"},
				Channels:     []config.ChannelConfig{channel("state")},
			},
			hw:      &Hardware{Pin: func(string) gpio.PinIO { return nil }},
			wantErr: ErrNoPin,
		},
		{
			name: "unknown driver",
			sensor: config.SensorConfig{
				DeviceConfig: config.DeviceConfig{Name: "x", Driver: "bme280"},
				Channels:     []config.ChannelConfig{channel("t")},
			},
			wantErr: ErrUnknownDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.env.Hardware = tt.hw
			_, err := Build([]config.SensorConfig{tt.sensor}, f.env)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildDuplicateName(t *testing.T) {
	f := newFixture()
	_, err := Build([]config.SensorConfig{simulatedSensor("sim", 1), simulatedSensor("sim", 2)}, f.env)
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Build() error = %v, want ErrDuplicateName", err)
	}
	if n := len(f.director.Builders()); n != 1 {
		t.Errorf("director builders = %d, want 1", n)
	}
}

func TestBuildSharedModule(t *testing.T) {
	probe := func(name string, in int) config.SensorConfig {
		return config.SensorConfig{
			DeviceConfig: config.DeviceConfig{Name: name, Driver: config.DriverPT100, Module: "adc0", Ref: 0, Input: in},
			Channels:     []config.ChannelConfig{channel("temperature")},
		}
	}

	f := newFixture()
	f.env.Hardware = &Hardware{I2C: &i2ctest.Record{}}
	set, err := Build([]config.SensorConfig{probe("p0", 4), probe("p1", 5), probe("p2", 6)}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mod, ok := set.Modules["adc0"]
	if !ok {
		t.Fatal("module adc0 not created")
	}
	if n := len(mod.Members()); n != 3 {
		t.Errorf("module members = %d, want 3", n)
	}
	if mod.Status() != sensor.ModuleClose {
		t.Errorf("module status = %v, want close", mod.Status())
	}
	dev, _ := set.Registry.Lookup("p1")
	if _, ok := dev.(*pt100.Device); !ok {
		t.Errorf("p1 is %T, want *pt100.Device", dev)
	}

	f = newFixture()
	f.env.Hardware = &Hardware{I2C: &i2ctest.Record{}}
	_, err = Build([]config.SensorConfig{probe("p0", 4), probe("p1", 5), probe("p2", 6), probe("p3", 7)}, f.env)
	if !errors.Is(err, sensor.ErrModuleFull) {
		t.Errorf("Build() with four members error = %v, want ErrModuleFull", err)
	}
}

func TestBuildGroup(t *testing.T) {
	f := newFixture()
	s := config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: "probes"},
		Policy:       "group",
		Members: []config.DeviceConfig{
			{Name: "m0", Driver: config.DriverSimulated, Base: []float64{10}},
			{Name: "m1", Driver: config.DriverSimulated, Base: []float64{20}},
		},
		Channels: []config.ChannelConfig{channel("m0"), channel("m1")},
	}

	set, err := Build([]config.SensorConfig{s}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if set.Registry.Len() != 2 {
		t.Errorf("registry = %d devices, want 2", set.Registry.Len())
	}

	f.sweep(t)

	for name, want := range map[string]float64{"m0": 10, "m1": 20} {
		readings, ok := f.board.Sensor(name)
		if !ok || len(readings) != 1 || readings[0].Value != want {
			t.Errorf("%s readings = %v, want value %v", name, readings, want)
		}
	}
}

func TestBuildThresholdAlarm(t *testing.T) {
	f := newFixture()
	s := simulatedSensor("sim", 30)
	s.Channels[0].Alarm.Above = ptr(25)

	if _, err := Build([]config.SensorConfig{s}, f.env); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.sweep(t)

	if len(f.alarms) != 1 {
		t.Fatalf("alarms = %d, want 1", len(f.alarms))
	}
	a := f.alarms[0]
	if a.Kind != "above" || a.Threshold != 25 || a.Value != 30 || a.Node != "bench" || a.Channel != "a" {
		t.Errorf("alarm = %+v", a)
	}
}

func TestBuildPowerSource(t *testing.T) {
	tests := []struct {
		name  string
		src   power.Source
		count uint32
	}{
		{"no source", nil, 1},
		{"battery", power.Static(false), 1},
		{"external", power.Static(true), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.env.Power = tt.src
			set, err := Build([]config.SensorConfig{simulatedSensor("sim", 1)}, f.env)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			f.sweep(t)

			if got := set.Builders[0].Config()[0].Collect.Count; got != tt.count {
				t.Errorf("Count = %d, want %d", got, tt.count)
			}
		})
	}
}

func TestBuildNotReady(t *testing.T) {
	f := newFixture()
	if _, err := Build([]config.SensorConfig{simulatedSensor("sim", 1)}, f.env); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	f.director.Process(context.Background())

	if _, ok := f.board.Sensor("sim"); ok {
		t.Error("sensor reported before Init")
	}
}

func TestBuildContact(t *testing.T) {
	in := &gpiotest.Pin{N: "GPIO5", L: gpio.High, EdgesChan: make(chan gpio.Level, 1)}
	out := &gpiotest.Pin{N: "GPIO6"}
	pins := map[string]gpio.PinIO{"GPIO5": in, "GPIO6": out}

	f := newFixture()
	f.env.Hardware = &Hardware{Pin: func(name string) gpio.PinIO { return pins[name] }}
	s := config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: "door", Driver: config.DriverMCS, Pin: "GPIO5", OutPin: "GPIO6"},
		Channels:     []config.ChannelConfig{channel("state")},
	}

	set, err := Build([]config.SensorConfig{s}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(set.Contacts()) != 1 {
		t.Fatalf("Contacts() = %d, want 1", len(set.Contacts()))
	}

	// Initialised but without an edge, the sweep skips the contact.
	f.sweep(t)
	if _, ok := f.board.Sensor("door"); ok {
		t.Error("contact reported without a pending edge")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := set.Watch(ctx, f.director); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

type countingRestarter struct{ n int }

func (r *countingRestarter) Restart() { r.n++ }

func TestBuildContactPerStageIdle(t *testing.T) {
	in := &gpiotest.Pin{N: "GPIO5", L: gpio.High, EdgesChan: make(chan gpio.Level, 1)}
	out := &gpiotest.Pin{N: "GPIO6"}
	pins := map[string]gpio.PinIO{"GPIO5": in, "GPIO6": out}

	f := newFixture()
	restarter := &countingRestarter{}
	f.env.Options.Restarter = restarter
	f.env.Hardware = &Hardware{Pin: func(name string) gpio.PinIO { return pins[name] }}
	s := config.SensorConfig{
		DeviceConfig: config.DeviceConfig{Name: "door", Driver: config.DriverMCS, Pin: "GPIO5", OutPin: "GPIO6"},
		Gate:         "per_stage",
		Channels:     []config.ChannelConfig{channel("state")},
	}

	set, err := Build([]config.SensorConfig{s}, f.env)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := f.director.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// A contact that has reported before must not degrade while the door
	// stays still.
	cfg := set.Builders[0].Config()
	cfg[0].Collect.Normal = true

	for range 6 {
		f.director.Process(context.Background())
	}

	if cfg[0].Collect.ErrCount != 0 || cfg[0].Collect.FailCount != 0 {
		t.Errorf("ErrCount/FailCount = %d/%d after idle sweeps, want 0/0",
			cfg[0].Collect.ErrCount, cfg[0].Collect.FailCount)
	}
	if restarter.n != 0 {
		t.Errorf("restarts = %d, want 0", restarter.n)
	}
}
