package policy

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Standard is the policy for a single device with one or more channels.
// One Standard may serve any number of builders.
type Standard struct {
	engine
	raw RawMode
}

var _ pipeline.Policy[ChannelConfig] = (*Standard)(nil)

// NewStandard creates the standard policy.
func NewStandard(opts Options, raw RawMode) *Standard {
	return &Standard{engine: engine{opts: opts.withDefaults()}, raw: raw}
}

// Attach binds dev as the builder's only device.
func (s *Standard) Attach(b *pipeline.Builder[ChannelConfig], dev sensor.Device) error {
	b.Unbind()
	b.Bind(dev)
	return nil
}

// Init initialises the device. Devices without an Init are ready as they are.
func (s *Standard) Init(ctx context.Context, b *pipeline.Builder[ChannelConfig]) error {
	return optional(sensor.Init(ctx, b.Device()))
}

// Configure installs cfg, applying defaults to every channel when asked.
func (s *Standard) Configure(b *pipeline.Builder[ChannelConfig], cfg []ChannelConfig, defaults bool) error {
	if len(cfg) == 0 {
		return fmt.Errorf("%s: %w", b.Name(), ErrNoChannels)
	}
	if defaults {
		for i := range cfg {
			cfg[i].ApplyDefaults()
		}
	}
	b.SetConfig(cfg)
	return nil
}

func (s *Standard) slots(dev sensor.Device, cfg []ChannelConfig) []slot {
	out := make([]slot, len(cfg))
	for i := range cfg {
		raw := sensor.Raw(0)
		if s.raw == RawPerChannel {
			raw = sensor.Raw(i)
		}
		out[i] = slot{dev: dev, ch: sensor.Channel(i), raw: raw, cfg: &cfg[i], primary: &cfg[0]}
	}
	return out
}

// Collect acquires a reading and marks every channel valid or invalid.
func (s *Standard) Collect(ctx context.Context, dev sensor.Device, cfg []ChannelConfig) {
	if len(cfg) == 0 {
		return
	}
	ok := s.collect(ctx, dev, cfg)
	s.settle(ok, s.slots(dev, cfg))
}

// Calibrate applies stored calibration offsets.
func (s *Standard) Calibrate(ctx context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.calibrate(ctx, s.slots(dev, cfg))
}

// RangeCheck validates channel values against their windows.
func (s *Standard) RangeCheck(_ context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.rangeCheck(s.slots(dev, cfg))
}

// DataCheck substitutes sentinels for invalid and out-of-range channels.
func (s *Standard) DataCheck(_ context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.dataCheck(s.slots(dev, cfg))
}

// Alarm runs channel alarm hooks, skipping channels without one.
func (s *Standard) Alarm(_ context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.alarm(s.slots(dev, cfg), false)
}

// Report hands the channel readings to the reporter.
func (s *Standard) Report(ctx context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.publish(ctx, s.opts.Reporter, StageReport, s.slots(dev, cfg))
}

// Store hands the channel readings to the archiver.
func (s *Standard) Store(ctx context.Context, dev sensor.Device, cfg []ChannelConfig) {
	s.publish(ctx, s.opts.Archiver, StageStore, s.slots(dev, cfg))
}

// Stages returns the named stages in order. No names means DefaultStages.
func (s *Standard) Stages(names ...string) ([]pipeline.Stage[ChannelConfig], error) {
	return buildStages(names, map[string]pipeline.HandlerFunc[ChannelConfig]{
		StageCollect:    s.Collect,
		StageCalibrate:  s.Calibrate,
		StageRangeCheck: s.RangeCheck,
		StageDataCheck:  s.DataCheck,
		StageAlarm:      s.Alarm,
		StageReport:     s.Report,
		StageStore:      s.Store,
	}, &s.engine)
}

func buildStages(names []string, handlers map[string]pipeline.HandlerFunc[ChannelConfig], e *engine) ([]pipeline.Stage[ChannelConfig], error) {
	if len(names) == 0 {
		names = DefaultStages
	}
	stages := make([]pipeline.Stage[ChannelConfig], 0, len(names))
	for _, name := range names {
		h, ok := handlers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
		}
		stages = append(stages, e.stage(name, h))
	}
	return stages, nil
}
