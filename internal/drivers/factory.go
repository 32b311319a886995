// Package drivers builds sensors, shared modules and their pipeline
// builders from configuration.
package drivers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/onewire"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/ads1015"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/ds18b20"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/mcs"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/pt100"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/sht3x"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/sht4x"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/simulated"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/power"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

var (
	// ErrUnknownDriver is returned for a driver name the factory cannot build.
	ErrUnknownDriver = errors.New("drivers: unknown driver")
	// ErrNoBus is returned when a driver needs a bus that is not open.
	ErrNoBus = errors.New("drivers: bus not open")
	// ErrNoPin is returned when a named GPIO does not exist.
	ErrNoPin = errors.New("drivers: pin not found")
	// ErrTooManyChannels is returned when a builder configures more channels
	// than its device has.
	ErrTooManyChannels = errors.New("drivers: more channels than the device provides")
	// ErrBadROM is returned for a 1-Wire ROM that is not a hex number.
	ErrBadROM = errors.New("drivers: invalid 1-wire rom")
	// ErrDuplicateName is returned when two devices share a name. The
	// registry resolves a name to its first device, so the second would be
	// unreachable.
	ErrDuplicateName = errors.New("drivers: duplicate sensor name")
)

// Env is what the factory wires into every builder.
type Env struct {
	Node     string
	Hardware *Hardware
	Director *pipeline.Director
	Options  policy.Options

	// Power decides whether collections count towards consumption. Nil
	// counts every collection.
	Power power.Source

	// Alarm receives threshold alarms of channels with an alarm window.
	Alarm func(report.Alarm)

	Clock  clock.Clock
	Logger pipeline.Logger
}

// Set is the result of a build.
type Set struct {
	Registry *sensor.Registry
	Modules  map[string]*sensor.Module
	Builders []*pipeline.Builder[policy.ChannelConfig]

	contacts []contact
	logger   pipeline.Logger
}

type contact struct {
	dev     *mcs.Device
	builder *pipeline.Builder[policy.ChannelConfig]
}

type factory struct {
	env  Env
	set  *Set
	adcs map[string]*ads1015.ADC
	opts policy.Options
}

// Build creates every configured sensor, registers it, assembles its
// builder and adds the builder to env.Director.
func Build(sensors []config.SensorConfig, env Env) (*Set, error) {
	if env.Hardware == nil {
		env.Hardware = &Hardware{}
	}
	if env.Clock == nil {
		env.Clock = clock.New()
	}
	if env.Logger == nil {
		env.Logger = env.Options.Logger
	}

	opts := env.Options
	if opts.CollectAllow == nil && env.Director != nil {
		d := env.Director
		opts.CollectAllow = func(sensor.Device, []policy.ChannelConfig) bool { return d.Ready() }
	}

	f := &factory{
		env:  env,
		opts: opts,
		adcs: make(map[string]*ads1015.ADC),
		set: &Set{
			Registry: sensor.NewRegistry(),
			Modules:  make(map[string]*sensor.Module),
			logger:   env.Logger,
		},
	}

	for _, s := range sensors {
		if err := f.builder(s); err != nil {
			return nil, fmt.Errorf("building %s: %w", s.Name, err)
		}
	}
	return f.set, nil
}

func (f *factory) builder(s config.SensorConfig) error {
	var (
		devices []sensor.Device
		pol     interface {
			pipeline.Policy[policy.ChannelConfig]
			Stages(names ...string) ([]pipeline.Stage[policy.ChannelConfig], error)
		}
	)

	switch s.Policy {
	case "group":
		for _, m := range s.Members {
			dev, err := f.device(m)
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}
		g := policy.NewGroup(f.opts)
		g.SkipMissingAlarm = s.AlarmSkipMissing
		pol = g
	default:
		dev, err := f.device(s.DeviceConfig)
		if err != nil {
			return err
		}
		devices = append(devices, dev)

		mode, ok := policy.ParseRawMode(s.RawMode)
		if !ok {
			return fmt.Errorf("raw mode %q", s.RawMode)
		}
		if s.RawMode == "" {
			mode = defaultRawMode(s.DeviceConfig)
		}
		if n := channelsOf(dev); len(s.Channels) > n {
			return fmt.Errorf("%w: %d > %d", ErrTooManyChannels, len(s.Channels), n)
		}
		pol = policy.NewStandard(f.opts, mode)
	}

	b := pipeline.NewBuilder(s.Name, pol)
	for _, dev := range devices {
		if _, err := f.set.Registry.Lookup(dev.Name()); err == nil {
			return fmt.Errorf("%w: %q", ErrDuplicateName, dev.Name())
		}
		if err := f.set.Registry.Register(dev); err != nil {
			return err
		}
		if err := b.AddDevice(dev); err != nil {
			return err
		}
	}

	if err := b.Configure(f.channels(s), false); err != nil {
		return err
	}

	stages, err := pol.Stages(s.Stages...)
	if err != nil {
		return err
	}
	gate := pipeline.GateOnce
	if s.Gate == "per_stage" {
		gate = pipeline.GatePerStage
	}
	if c, ok := devices[0].(*mcs.Device); ok && len(devices) == 1 {
		stages = f.contact(b, c, stages)
	}
	b.SetStages(gate, stages...)

	if f.env.Director != nil {
		if _, err := f.env.Director.Add(b); err != nil {
			return err
		}
	}
	f.set.Builders = append(f.set.Builders, b)
	return nil
}

// contact gates a door contact builder on a pending edge so that it runs
// from the interrupt handoff instead of the sweep. The builder gate covers
// GateOnce; the collect stage's own predicate covers GatePerStage, where an
// idle sweep would otherwise count as a failed collection.
func (f *factory) contact(b *pipeline.Builder[policy.ChannelConfig], c *mcs.Device, stages []pipeline.Stage[policy.ChannelConfig]) []pipeline.Stage[policy.ChannelConfig] {
	d := f.env.Director
	b.SetAllow(func(sensor.Device, []policy.ChannelConfig) bool {
		return (d == nil || d.Ready()) && c.Pending()
	})
	f.set.contacts = append(f.set.contacts, contact{dev: c, builder: b})

	out := make([]pipeline.Stage[policy.ChannelConfig], len(stages))
	copy(out, stages)
	for i := range out {
		if out[i].Name != policy.StageCollect {
			continue
		}
		prev := out[i].Allow
		out[i].Allow = func(dev sensor.Device, cfg []policy.ChannelConfig) bool {
			return c.Pending() && (prev == nil || prev(dev, cfg))
		}
	}
	return out
}

func (f *factory) channels(s config.SensorConfig) []policy.ChannelConfig {
	out := make([]policy.ChannelConfig, len(s.Channels))
	for i, ch := range s.Channels {
		c := &out[i]
		if ch.Defaults {
			c.ApplyDefaults()
		}
		c.Name = ch.Name
		if c.Name == "" {
			c.Name = strconv.Itoa(i)
		}
		c.Power = ch.Power
		if ch.Unit != 0 {
			c.Unit = ch.Unit
		}
		if ch.RetryLimit != 0 {
			c.RetryLimit = ch.RetryLimit
		}
		if ch.FailLimit != 0 {
			c.FailLimit = ch.FailLimit
		}
		c.CalibrationKey = ch.CalibrationKey
		c.Check = policy.RangeCheck{Min: ch.Min, Max: ch.Max}

		if f.env.Power != nil {
			c.Hooks.AllowCount = power.AllowCount(f.env.Power)
		}
		if (ch.Alarm.Above != nil || ch.Alarm.Below != nil) && f.env.Alarm != nil {
			c.Hooks.Alarm = policy.ThresholdAlarm(f.env.Node, c.Name,
				policy.Threshold{Above: ch.Alarm.Above, Below: ch.Alarm.Below},
				f.env.Clock, f.env.Alarm)
		}
	}
	return out
}

func (f *factory) device(d config.DeviceConfig) (sensor.Device, error) {
	clk := f.env.Clock
	hwr := f.env.Hardware

	switch d.Driver {
	case config.DriverSimulated:
		return simulated.New(d.Name, simulated.Config{Base: d.Base, Step: d.Step, FailEvery: d.FailEvery}), nil

	case config.DriverSHT3x:
		if hwr.I2C == nil {
			return nil, fmt.Errorf("%s: i2c: %w", d.Name, ErrNoBus)
		}
		cfg := sht3x.DefaultConfig()
		if d.Address != 0 {
			cfg.Addr = d.Address
		}
		p, err := f.power(d)
		if err != nil {
			return nil, err
		}
		cfg.Power, cfg.Clock = p, clk
		return sht3x.New(d.Name, hwr.I2C, cfg), nil

	case config.DriverSHT4x:
		if hwr.I2C == nil {
			return nil, fmt.Errorf("%s: i2c: %w", d.Name, ErrNoBus)
		}
		cfg := sht4x.DefaultConfig()
		if d.Address != 0 {
			cfg.Addr = d.Address
		}
		cfg.Clock = clk
		return sht4x.New(d.Name, hwr.I2C, cfg), nil

	case config.DriverDS18B20:
		if hwr.OneWire == nil {
			return nil, fmt.Errorf("%s: 1-wire: %w", d.Name, ErrNoBus)
		}
		cfg := ds18b20.DefaultConfig()
		if d.ROM != "" {
			rom, err := strconv.ParseUint(d.ROM, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: %q", d.Name, ErrBadROM, d.ROM)
			}
			cfg.Addr = onewire.Address(rom)
		}
		p, err := f.power(d)
		if err != nil {
			return nil, err
		}
		cfg.Power, cfg.Clock = p, clk
		return ds18b20.New(d.Name, hwr.OneWire, cfg), nil

	case config.DriverPT100:
		adc, mod, err := f.module(d)
		if err != nil {
			return nil, err
		}
		cfg := pt100.DefaultConfig(ads1015.Mux(d.Ref), ads1015.Mux(d.Input))
		p, err := f.power(d)
		if err != nil {
			return nil, err
		}
		cfg.Power, cfg.Clock = p, clk
		dev := pt100.New(d.Name, adc, cfg)
		if err := mod.Attach(dev); err != nil {
			return nil, fmt.Errorf("%s: module %s: %w", d.Name, d.Module, err)
		}
		return dev, nil

	case config.DriverMCS:
		in, err := hwr.pin(d.Pin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		out, err := hwr.pin(d.OutPin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		cfg := mcs.DefaultConfig()
		cfg.Clock = clk
		return mcs.New(d.Name, in, out, cfg), nil
	}
	return nil, fmt.Errorf("%s: %w: %q", d.Name, ErrUnknownDriver, d.Driver)
}

// module returns the converter shared under d.Module, creating it for the
// first member. The first member's address selects the converter.
func (f *factory) module(d config.DeviceConfig) (*ads1015.ADC, *sensor.Module, error) {
	if adc, ok := f.adcs[d.Module]; ok {
		return adc, f.set.Modules[d.Module], nil
	}
	if f.env.Hardware.I2C == nil {
		return nil, nil, fmt.Errorf("%s: i2c: %w", d.Name, ErrNoBus)
	}
	cfg := ads1015.DefaultConfig()
	if d.Address != 0 {
		cfg.Addr = d.Address
	}
	cfg.Clock = f.env.Clock
	adc := ads1015.New(f.env.Hardware.I2C, cfg)
	mod := sensor.NewModule(d.Module, adc, sensor.ModuleClose)
	f.adcs[d.Module] = adc
	f.set.Modules[d.Module] = mod
	return adc, mod, nil
}

func (f *factory) power(d config.DeviceConfig) (hw.Power, error) {
	if d.PowerPin == "" {
		return hw.Power{}, nil
	}
	p, err := f.env.Hardware.pin(d.PowerPin)
	if err != nil {
		return hw.Power{}, fmt.Errorf("%s: power: %w", d.Name, err)
	}
	return hw.Power{Pin: p}, nil
}

// defaultRawMode is per channel for devices whose channels are separate
// measurements.
func defaultRawMode(d config.DeviceConfig) policy.RawMode {
	switch d.Driver {
	case config.DriverSHT3x, config.DriverSHT4x:
		return policy.RawPerChannel
	case config.DriverSimulated:
		if len(d.Base) > 1 {
			return policy.RawPerChannel
		}
	}
	return policy.RawBroadcast
}

func channelsOf(dev sensor.Device) int {
	if c, ok := dev.(interface{ Channels() int }); ok {
		return c.Channels()
	}
	return sensor.MaxChannels
}

// Watch arms the door contacts and waits for their edges until ctx is
// done. Every edge hands the contact's builder to the director.
func (s *Set) Watch(ctx context.Context, d *pipeline.Director) error {
	if len(s.contacts) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.contacts {
		b := c.builder
		handoff := func() {
			go func() {
				if err := d.Do(ctx, b.Process); err != nil && ctx.Err() == nil {
					s.log().Warn("door contact handoff failed", "sensor", b.Name(), "error", err)
				}
			}()
		}
		if err := sensor.Control(c.dev, mcs.CmdCallback, 0, handoff); err != nil {
			return fmt.Errorf("arming %s: %w", c.dev.Name(), err)
		}
		g.Go(func() error { return c.dev.Watch(ctx) })
	}
	return g.Wait()
}

// Contacts returns the door contacts in build order.
func (s *Set) Contacts() []*mcs.Device {
	out := make([]*mcs.Device, len(s.contacts))
	for i, c := range s.contacts {
		out[i] = c.dev
	}
	return out
}

func (s *Set) log() pipeline.Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
