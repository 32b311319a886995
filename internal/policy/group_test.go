package policy

import (
	"context"
	"testing"

	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

func newGroupBuilder(t *testing.T, g *Group, devs ...sensor.Device) *pipeline.Builder[ChannelConfig] {
	t.Helper()
	b := pipeline.NewBuilder[ChannelConfig]("pt100", g)
	for _, d := range devs {
		if err := b.AddDevice(d); err != nil {
			t.Fatalf("AddDevice(%s) error = %v", d.Name(), err)
		}
	}
	return b
}

func TestGroup_AttachKeepsEveryMember(t *testing.T) {
	g := NewGroup(Options{})
	a, b := newScripted("pt100_0", 1), newScripted("pt100_1", 2)
	builder := newGroupBuilder(t, g, a, b)

	if got := len(builder.Devices()); got != 2 {
		t.Fatalf("len(Devices()) = %d, want 2", got)
	}
	if builder.Device() != a {
		t.Error("primary device is not the first member")
	}
	if m := g.Members(); len(m) != 2 || m[1] != b {
		t.Errorf("Members() = %v", m)
	}
}

func TestGroupCollect_MembersFailIndependently(t *testing.T) {
	g := NewGroup(Options{})
	good, bad := newScripted("pt100_0", 21.3), newScripted("pt100_1", 0)
	bad.results = []error{errCollect}
	newGroupBuilder(t, g, good, bad)
	cfg := channels(2)

	g.Collect(context.Background(), good, cfg)

	if good.status(0) != sensor.StatusValid || good.value(t, 0) != 21.3 {
		t.Errorf("good member = %v/%v, want valid/21.3", good.status(0), good.value(t, 0))
	}
	if bad.status(0) != sensor.StatusInvalid {
		t.Errorf("bad member status = %v, want invalid", bad.status(0))
	}
	if !cfg[0].Collect.Normal || cfg[1].Collect.Normal {
		t.Errorf("normal = %v/%v, want true/false", cfg[0].Collect.Normal, cfg[1].Collect.Normal)
	}
	if cfg[1].Collect.ErrCount != DefaultRetryLimit {
		t.Errorf("bad member ErrCount = %d, want %d", cfg[1].Collect.ErrCount, DefaultRetryLimit)
	}
	if good.collects != 1 || bad.collects != 1+DefaultRetryLimit {
		t.Errorf("collects = %d/%d", good.collects, bad.collects)
	}
}

func TestGroupConfigure_FewerChannelsThanMembers(t *testing.T) {
	g := NewGroup(Options{})
	a, b := newScripted("pt100_0", 1), newScripted("pt100_1", 2)
	builder := newGroupBuilder(t, g, a, b)

	if err := builder.Configure(make([]ChannelConfig, 1), true); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	g.Collect(context.Background(), a, builder.Config())

	if b.collects != 0 {
		t.Errorf("member without a channel collected %d times", b.collects)
	}
}

func TestGroupAlarm_StopsAtFirstMissingHook(t *testing.T) {
	ctx := context.Background()
	a, b, c := newScripted("pt100_0", 1), newScripted("pt100_1", 2), newScripted("pt100_2", 3)

	run := func(skip bool) []string {
		g := NewGroup(Options{})
		g.SkipMissingAlarm = skip
		newGroupBuilder(t, g, a, b, c)
		cfg := channels(3)

		var alarmed []string
		hook := func(dev sensor.Device, _ int, _ float64) { alarmed = append(alarmed, dev.Name()) }
		cfg[0].Hooks.Alarm = hook
		cfg[2].Hooks.Alarm = hook

		g.Collect(ctx, a, cfg)
		g.Alarm(ctx, a, cfg)
		return alarmed
	}

	if got := run(false); len(got) != 1 || got[0] != "pt100_0" {
		t.Errorf("alarmed = %v, want [pt100_0]", got)
	}
	if got := run(true); len(got) != 2 || got[1] != "pt100_2" {
		t.Errorf("alarmed with skip = %v, want [pt100_0 pt100_2]", got)
	}
}

func TestGroupCalibrate_StopsAtFirstMemberWithoutKey(t *testing.T) {
	ctx := context.Background()
	store := mapStore{7: {Enabled: true, Offset: 10}}
	g := NewGroup(Options{Calibration: store})
	a, b := newScripted("pt100_0", 20), newScripted("pt100_1", 30)
	newGroupBuilder(t, g, a, b)
	cfg := channels(2)
	cfg[1].CalibrationKey = 7

	g.Collect(ctx, a, cfg)
	g.Calibrate(ctx, a, cfg)

	if got := b.value(t, 0); got != 30 {
		t.Errorf("second member = %v, want untouched 30", got)
	}

	cfg[0].CalibrationKey = 7
	g.Calibrate(ctx, a, cfg)
	if a.value(t, 0) != 30 || b.value(t, 0) != 40 {
		t.Errorf("calibrated = %v/%v, want 30/40", a.value(t, 0), b.value(t, 0))
	}
}

func TestGroupReport_OneReadingPerMember(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	g := NewGroup(Options{Reporter: sink})
	a, b := newScripted("pt100_0", 20), newScripted("pt100_1", 30)
	newGroupBuilder(t, g, a, b)
	cfg := channels(2)

	g.Collect(ctx, a, cfg)
	g.Report(ctx, a, cfg)

	if len(sink.readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(sink.readings))
	}
	if sink.readings[1].Sensor != "pt100_1" || sink.readings[1].Index != 0 || sink.readings[1].Value != 30 {
		t.Errorf("second reading = %+v", sink.readings[1])
	}
}
