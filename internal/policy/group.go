package policy

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Group is the policy for several devices sharing one configuration block.
// Channel k of the configuration belongs to member k, and each member
// reports on its channel 0.
//
// A Group remembers its members, so every group builder needs its own.
type Group struct {
	engine
	members []sensor.Device

	// SkipMissingAlarm makes the alarm stage skip members without an alarm
	// hook instead of ending at the first one.
	SkipMissingAlarm bool
}

var _ pipeline.Policy[ChannelConfig] = (*Group)(nil)

// NewGroup creates a group policy.
func NewGroup(opts Options) *Group {
	return &Group{engine: engine{opts: opts.withDefaults()}}
}

// Attach adds dev to the group.
func (g *Group) Attach(b *pipeline.Builder[ChannelConfig], dev sensor.Device) error {
	b.Bind(dev)
	g.members = append(g.members, dev)
	return nil
}

// Members returns the group members in attach order.
func (g *Group) Members() []sensor.Device {
	out := make([]sensor.Device, len(g.members))
	copy(out, g.members)
	return out
}

// Init initialises every member and stops at the first failure.
func (g *Group) Init(ctx context.Context, _ *pipeline.Builder[ChannelConfig]) error {
	for _, m := range g.members {
		if err := optional(sensor.Init(ctx, m)); err != nil {
			return fmt.Errorf("initialising member %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Configure installs cfg, one channel per member.
func (g *Group) Configure(b *pipeline.Builder[ChannelConfig], cfg []ChannelConfig, defaults bool) error {
	if len(cfg) == 0 {
		return fmt.Errorf("%s: %w", b.Name(), ErrNoChannels)
	}
	if len(cfg) < len(g.members) {
		g.opts.Logger.Warn("group has more members than channels", "builder", b.Name(),
			"members", len(g.members), "channels", len(cfg))
	}
	if defaults {
		for i := range cfg {
			cfg[i].ApplyDefaults()
		}
	}
	b.SetConfig(cfg)
	return nil
}

func (g *Group) slots(cfg []ChannelConfig) []slot {
	n := min(len(g.members), len(cfg))
	out := make([]slot, n)
	for k := 0; k < n; k++ {
		out[k] = slot{dev: g.members[k], ch: 0, raw: sensor.Raw(0), cfg: &cfg[k], primary: &cfg[k]}
	}
	return out
}

// Collect collects every member with its own retry state.
func (g *Group) Collect(ctx context.Context, _ sensor.Device, cfg []ChannelConfig) {
	for k, s := range g.slots(cfg) {
		ok := g.collect(ctx, s.dev, cfg[k:k+1])
		g.settle(ok, []slot{s})
	}
}

// Calibrate applies stored offsets across the group, all or nothing.
func (g *Group) Calibrate(ctx context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.calibrate(ctx, g.slots(cfg))
}

// RangeCheck validates each member's value.
func (g *Group) RangeCheck(_ context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.rangeCheck(g.slots(cfg))
}

// DataCheck substitutes sentinels for invalid and out-of-range members.
func (g *Group) DataCheck(_ context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.dataCheck(g.slots(cfg))
}

// Alarm runs member alarm hooks. Unless SkipMissingAlarm is set the stage
// ends at the first member without a hook.
func (g *Group) Alarm(_ context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.alarm(g.slots(cfg), !g.SkipMissingAlarm)
}

// Report hands the member readings to the reporter.
func (g *Group) Report(ctx context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.publish(ctx, g.opts.Reporter, StageReport, g.slots(cfg))
}

// Store hands the member readings to the archiver.
func (g *Group) Store(ctx context.Context, _ sensor.Device, cfg []ChannelConfig) {
	g.publish(ctx, g.opts.Archiver, StageStore, g.slots(cfg))
}

// Stages returns the named stages in order. No names means DefaultStages.
func (g *Group) Stages(names ...string) ([]pipeline.Stage[ChannelConfig], error) {
	return buildStages(names, map[string]pipeline.HandlerFunc[ChannelConfig]{
		StageCollect:    g.Collect,
		StageCalibrate:  g.Calibrate,
		StageRangeCheck: g.RangeCheck,
		StageDataCheck:  g.DataCheck,
		StageAlarm:      g.Alarm,
		StageReport:     g.Report,
		StageStore:      g.Store,
	}, &g.engine)
}

