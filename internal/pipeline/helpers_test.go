package pipeline

import (
	"context"

	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

type testCfg struct {
	Unit int
}

// testPolicy binds a single device and records Init calls.
type testPolicy struct {
	inits   int
	initErr error
}

func (p *testPolicy) Attach(b *Builder[testCfg], dev sensor.Device) error {
	b.Unbind()
	b.Bind(dev)
	return nil
}

func (p *testPolicy) Init(_ context.Context, _ *Builder[testCfg]) error {
	p.inits++
	return p.initErr
}

func (p *testPolicy) Configure(b *Builder[testCfg], cfg []testCfg, defaults bool) error {
	if defaults {
		for i := range cfg {
			cfg[i].Unit = 1
		}
	}
	b.SetConfig(cfg)
	return nil
}

type testDevice struct {
	sensor.Base
	sensor.Values
}

func newTestDevice(name string) *testDevice {
	return &testDevice{Base: sensor.NewBase(name), Values: sensor.NewValues(1)}
}

func (d *testDevice) Collect(context.Context) error { return nil }

// trace records which stages ran.
type trace struct {
	ran []string
}

func (t *trace) stage(name string) Stage[testCfg] {
	return Stage[testCfg]{
		Name: name,
		Handler: func(context.Context, sensor.Device, []testCfg) {
			t.ran = append(t.ran, name)
		},
	}
}

func newTestBuilder(t *trace, mode GateMode, stages ...Stage[testCfg]) *Builder[testCfg] {
	b := NewBuilder[testCfg]("b", &testPolicy{})
	_ = b.AddDevice(newTestDevice("dev"))
	_ = b.Configure([]testCfg{{}}, true)
	b.SetStages(mode, stages...)
	return b
}

func never(sensor.Device, []testCfg) bool  { return false }
func always(sensor.Device, []testCfg) bool { return true }
