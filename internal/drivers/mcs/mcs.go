// Package mcs watches a magnetic door contact wired between a GPIO output and
// an edge-triggered GPIO input.
//
// The output drives the loop and the input sees the output level while the
// contact is closed. Every edge on the input marks the contact pending and
// fires the registered callback; the next Collect debounces the edge and
// resolves it to Closed or Opened in raw slot 0. Collect fails when no edge
// is pending, so builders for this driver are gated on Pending.
package mcs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// State is the contact state machine.
type State uint8

// States. Closed and Opened double as the raw reading.
const (
	Closed State = iota
	Opened
	None
	Idle
	Pending
)

var stateNames = [...]string{"closed", "open", "none", "idle", "pending"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Driver commands accepted by Control.
const (
	// CmdState reads the contact state. data: *State
	CmdState = sensor.CmdDriver + iota
	// CmdSetState overrides the contact state. data: *State
	CmdSetState
	// CmdLevel reads the last sampled input level. data: *gpio.Level
	CmdLevel
	// CmdCallback sets the function called on every edge. data: func()
	CmdCallback
)

var (
	// ErrNotPending is returned by Collect when no edge has been seen since
	// the last collection.
	ErrNotPending = errors.New("mcs: no edge pending")

	// ErrBounce is returned when the input changed again during the filter
	// window.
	ErrBounce = errors.New("mcs: contact bounced")
)

// Config configures the contact.
type Config struct {
	// OnLevel is the level driven on the output.
	OnLevel gpio.Level
	Pull    gpio.Pull
	// Filter is the debounce window between the edge and the sample.
	Filter time.Duration
	// Poll bounds each wait for an edge in Watch so cancellation is seen.
	Poll  time.Duration
	Clock clock.Clock
}

// DefaultConfig returns the reference board wiring.
func DefaultConfig() Config {
	return Config{
		OnLevel: gpio.High,
		Pull:    gpio.Float,
		Filter:  50 * time.Millisecond,
		Poll:    time.Second,
	}
}

// Device is one door contact.
type Device struct {
	sensor.Base
	sensor.Values

	in  gpio.PinIO
	out gpio.PinOut
	cfg Config

	mu       sync.Mutex
	state    State
	expected gpio.Level
	edge     gpio.Level
	level    gpio.Level
	callback func()
}

// New creates a contact named name.
func New(name string, in gpio.PinIO, out gpio.PinOut, cfg Config) *Device {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	return &Device{
		Base:   sensor.NewBase(name),
		Values: sensor.NewValues(1),
		in:     in,
		out:    out,
		cfg:    cfg,
		state:  None,
	}
}

// Init drives the loop and arms the input for both edges.
func (d *Device) Init(context.Context) error {
	if err := d.out.Out(d.cfg.OnLevel); err != nil {
		return fmt.Errorf("%s: output: %w", d.Name(), err)
	}
	if err := d.in.In(d.cfg.Pull, gpio.BothEdges); err != nil {
		return fmt.Errorf("%s: input: %w", d.Name(), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = d.in.Read()
	d.expected = d.cfg.OnLevel
	d.state = Idle
	return nil
}

// Watch waits for edges on the input until ctx is done.
func (d *Device) Watch(ctx context.Context) error {
	for ctx.Err() == nil {
		if d.in.WaitForEdge(d.cfg.Poll) {
			d.Edge(d.in.Read())
		}
	}
	return nil
}

// Edge records an edge that left the input at level. It is a no-op before
// Init.
func (d *Device) Edge(level gpio.Level) {
	d.mu.Lock()
	if d.state == None {
		d.mu.Unlock()
		return
	}
	d.edge = level
	d.state = Pending
	cb := d.callback
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Pending reports whether an edge is waiting to be collected.
func (d *Device) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == Pending
}

// Collect debounces the pending edge and stores the contact state.
func (d *Device) Collect(ctx context.Context) error {
	if !d.Pending() {
		return ErrNotPending
	}
	if err := hw.Sleep(ctx, d.cfg.Clock, d.cfg.Filter); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Idle
	d.level = d.in.Read()
	if d.level != d.edge {
		return ErrBounce
	}
	d.state = Opened
	if d.level == d.expected {
		d.state = Closed
	}
	d.SetRaw(0, float64(d.state))
	return nil
}

// Control handles the driver commands and the generic data commands.
func (d *Device) Control(cmd sensor.Command, ch sensor.Channel, data any) error {
	switch cmd {
	case CmdState, CmdSetState:
		s, ok := data.(*State)
		if !ok || s == nil {
			return sensor.ErrBadData
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if cmd == CmdState {
			*s = d.state
		} else {
			d.state = *s
		}
		return nil
	case CmdLevel:
		l, ok := data.(*gpio.Level)
		if !ok || l == nil {
			return sensor.ErrBadData
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		*l = d.level
		return nil
	case CmdCallback:
		fn, ok := data.(func())
		if !ok {
			return sensor.ErrBadData
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		d.callback = fn
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Values.Control(cmd, ch, data)
}
