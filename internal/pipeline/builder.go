package pipeline

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Handle addresses a builder inside a Director.
type Handle int

// AllowFunc decides whether a stage (or a whole cycle) may run.
type AllowFunc[C any] func(dev sensor.Device, cfg []C) bool

// HandlerFunc executes one stage. The channel count is len(cfg).
type HandlerFunc[C any] func(ctx context.Context, dev sensor.Device, cfg []C)

// Stage is one named processing step.
type Stage[C any] struct {
	Name    string
	Allow   AllowFunc[C]
	Handler HandlerFunc[C]
}

// GateMode selects how allow predicates are evaluated.
type GateMode uint8

const (
	// GateOnce evaluates the builder predicate once before the first stage.
	GateOnce GateMode = iota
	// GatePerStage evaluates each stage's own predicate.
	GatePerStage
)

func (m GateMode) String() string {
	if m == GatePerStage {
		return "per_stage"
	}
	return "once"
}

// Policy supplies the device binding, initialisation and configuration
// behaviour of a builder.
type Policy[C any] interface {
	Attach(b *Builder[C], dev sensor.Device) error
	Init(ctx context.Context, b *Builder[C]) error
	Configure(b *Builder[C], cfg []C, defaults bool) error
}

// Runner is the type-erased view of a Builder held by the Director.
type Runner interface {
	Name() string
	Device() sensor.Device
	Devices() []sensor.Device
	StageNames() []string
	CurrentStage() int
	Gate() GateMode
	Init(ctx context.Context) error
	Process(ctx context.Context)
	RunStage(ctx context.Context, name string) error

	bind(h Handle, env environment)
}

// environment is what a builder borrows from its director.
type environment struct {
	logger   Logger
	observer Observer
	clock    clock.Clock
}

// Builder drives its devices through an ordered list of stages using a
// channel configuration of type C.
type Builder[C any] struct {
	name    string
	policy  Policy[C]
	devices []sensor.Device
	cfg     []C
	stages  []Stage[C]
	mode    GateMode
	allow   AllowFunc[C]
	current int
	handle  Handle
	env     environment
}

// NewBuilder creates a builder named name using policy.
func NewBuilder[C any](name string, policy Policy[C]) *Builder[C] {
	return &Builder[C]{
		name:   name,
		policy: policy,
		handle: -1,
		env: environment{
			logger:   noopLogger{},
			observer: noopObserver{},
			clock:    clock.New(),
		},
	}
}

// Name returns the builder name.
func (b *Builder[C]) Name() string { return b.name }

// Handle returns the handle issued by the director, or -1 before Add.
func (b *Builder[C]) Handle() Handle { return b.handle }

// AddDevice binds dev through the policy.
func (b *Builder[C]) AddDevice(dev sensor.Device) error {
	if dev == nil {
		return sensor.ErrNilDevice
	}
	return b.policy.Attach(b, dev)
}

// Configure installs the channel configuration through the policy. With
// defaults set the policy fills in its compiled-in defaults.
func (b *Builder[C]) Configure(cfg []C, defaults bool) error {
	return b.policy.Configure(b, cfg, defaults)
}

// SetStages installs the pipeline and its gating mode.
func (b *Builder[C]) SetStages(mode GateMode, stages ...Stage[C]) {
	b.mode = mode
	b.stages = stages
}

// SetAllow installs the builder-level predicate used in GateOnce mode.
func (b *Builder[C]) SetAllow(fn AllowFunc[C]) { b.allow = fn }

// Bind appends dev to the bound devices. Policies call it from Attach.
func (b *Builder[C]) Bind(dev sensor.Device) { b.devices = append(b.devices, dev) }

// Unbind removes all bound devices.
func (b *Builder[C]) Unbind() { b.devices = nil }

// SetConfig replaces the configuration. Policies call it from Configure.
func (b *Builder[C]) SetConfig(cfg []C) { b.cfg = cfg }

// Config returns the live configuration slice.
func (b *Builder[C]) Config() []C { return b.cfg }

// Device returns the primary device, or nil when none is bound.
func (b *Builder[C]) Device() sensor.Device {
	if len(b.devices) == 0 {
		return nil
	}
	return b.devices[0]
}

// Devices returns every bound device.
func (b *Builder[C]) Devices() []sensor.Device {
	out := make([]sensor.Device, len(b.devices))
	copy(out, b.devices)
	return out
}

// StageNames returns the stage names in execution order.
func (b *Builder[C]) StageNames() []string {
	names := make([]string, len(b.stages))
	for i, s := range b.stages {
		names[i] = s.Name
	}
	return names
}

// CurrentStage returns the index of the stage being (or last) executed.
func (b *Builder[C]) CurrentStage() int { return b.current }

// Gate returns the gating mode.
func (b *Builder[C]) Gate() GateMode { return b.mode }

// Logger returns the logger the builder was given by its director.
func (b *Builder[C]) Logger() Logger { return b.env.logger }

// Clock returns the clock the builder was given by its director.
func (b *Builder[C]) Clock() clock.Clock { return b.env.clock }

// Init initialises the bound devices through the policy.
func (b *Builder[C]) Init(ctx context.Context) error {
	if b.Device() == nil {
		return ErrNoDevice
	}
	return b.policy.Init(ctx, b)
}

// Process runs one pipeline pass. Builders without a device are skipped.
func (b *Builder[C]) Process(ctx context.Context) {
	dev := b.Device()
	if dev == nil {
		return
	}

	if b.mode == GateOnce {
		allow := b.allow
		if allow == nil && len(b.stages) > 0 {
			allow = b.stages[0].Allow
		}
		if allow != nil && !allow(dev, b.cfg) {
			b.env.logger.Debug("cycle not allowed", "builder", b.name)
			return
		}
	}

	for i, st := range b.stages {
		b.current = i
		if b.mode == GatePerStage && st.Allow != nil && !st.Allow(dev, b.cfg) {
			b.env.logger.Debug("stage not allowed", "builder", b.name, "stage", st.Name)
			continue
		}
		if st.Handler == nil {
			continue
		}
		b.runStage(ctx, dev, st)
	}
}

// RunStage runs the named stage once outside the normal cycle, ignoring its
// allow predicate. It must be called from the scheduling goroutine.
func (b *Builder[C]) RunStage(ctx context.Context, name string) error {
	dev := b.Device()
	if dev == nil {
		return ErrNoDevice
	}
	for i, st := range b.stages {
		if st.Name != name {
			continue
		}
		b.current = i
		if st.Handler != nil {
			b.runStage(ctx, dev, st)
		}
		return nil
	}
	return fmt.Errorf("%s: %w: %q", b.name, ErrStageNotFound, name)
}

func (b *Builder[C]) runStage(ctx context.Context, dev sensor.Device, st Stage[C]) {
	start := b.env.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			b.env.logger.Error("stage panicked", "builder", b.name, "stage", st.Name, "panic", r)
		}
		b.env.observer.StageDone(b.name, st.Name, b.env.clock.Since(start))
	}()
	st.Handler(ctx, dev, b.cfg)
}

func (b *Builder[C]) bind(h Handle, env environment) {
	b.handle = h
	b.env = env
	for _, d := range b.devices {
		if o, ok := d.(sensor.Owned); ok {
			o.SetOwner(int(h))
		}
	}
}
