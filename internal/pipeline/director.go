package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// DefaultInterval is the pause between sweeps when none is configured.
const DefaultInterval = 10 * time.Second

// requestQueueSize bounds pending out-of-band requests.
const requestQueueSize = 16

// Config holds Director settings.
type Config struct {
	// Interval is the pause between sweeps. Zero runs sweeps back to back.
	Interval time.Duration

	// Clock drives the sweep interval and stage timing. Defaults to the wall clock.
	Clock clock.Clock
}

type request struct {
	fn   func(ctx context.Context)
	done chan struct{}
	err  error
	// abandoned is set when the caller stopped waiting; the loop then
	// drops the request instead of running it late.
	abandoned atomic.Bool
}

// Director owns every builder and runs the scheduling loop.
//
// Builders must be added before Run is called. Everything a builder touches
// is confined to the goroutine running Run; other goroutines go through Do.
type Director struct {
	builders []Runner
	interval time.Duration
	clock    clock.Clock
	logger   Logger
	observer Observer
	requests chan *request
	ready    atomic.Bool

	// runMu guards stopped, which is open while Run is active and closed
	// once it has rejected every queued request.
	runMu   sync.Mutex
	stopped chan struct{}
}

// NewDirector creates a director.
func NewDirector(cfg Config) *Director {
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	stopped := make(chan struct{})
	close(stopped)
	return &Director{
		interval: cfg.Interval,
		clock:    c,
		logger:   noopLogger{},
		observer: noopObserver{},
		requests: make(chan *request, requestQueueSize),
		stopped:  stopped,
	}
}

// SetLogger sets the logger for the director and every builder added after.
func (d *Director) SetLogger(logger Logger) {
	d.logger = logger
}

// SetObserver sets the timing observer for the director and every builder added after.
func (d *Director) SetObserver(o Observer) {
	d.observer = o
}

// Add appends r to the director and returns its handle. Devices bound to r
// learn the handle so they can be traced back to it.
func (d *Director) Add(r Runner) (Handle, error) {
	if r == nil {
		return -1, ErrNoDevice
	}
	if len(r.StageNames()) == 0 {
		return -1, fmt.Errorf("%s: %w", r.Name(), ErrNoStages)
	}
	h := Handle(len(d.builders))
	r.bind(h, environment{logger: d.logger, observer: d.observer, clock: d.clock})
	d.builders = append(d.builders, r)
	return h, nil
}

// Builder returns the builder addressed by h.
func (d *Director) Builder(h Handle) (Runner, error) {
	if h < 0 || int(h) >= len(d.builders) {
		return nil, ErrInvalidHandle
	}
	return d.builders[h], nil
}

// Builders returns all builders in scheduling order.
func (d *Director) Builders() []Runner {
	out := make([]Runner, len(d.builders))
	copy(out, d.builders)
	return out
}

// BuilderFor returns the builder driving dev.
func (d *Director) BuilderFor(dev sensor.Device) (Runner, error) {
	o, ok := dev.(sensor.Owned)
	if !ok {
		return nil, ErrInvalidHandle
	}
	h, ok := o.Owner()
	if !ok {
		return nil, ErrInvalidHandle
	}
	return d.Builder(Handle(h))
}

// ConfigOf returns the typed configuration of the builder driving dev.
func ConfigOf[C any](d *Director, dev sensor.Device) ([]C, error) {
	r, err := d.BuilderFor(dev)
	if err != nil {
		return nil, err
	}
	b, ok := r.(*Builder[C])
	if !ok {
		return nil, fmt.Errorf("%s: %w", r.Name(), ErrConfigType)
	}
	return b.Config(), nil
}

// Init initialises every builder's devices in order and stops at the first
// failure. Builders without a device are skipped.
func (d *Director) Init(ctx context.Context) error {
	if len(d.builders) == 0 {
		return ErrNoBuilders
	}
	for _, b := range d.builders {
		if b.Device() == nil {
			d.logger.Warn("builder has no device, skipping init", "builder", b.Name())
			continue
		}
		if err := b.Init(ctx); err != nil {
			return fmt.Errorf("initialising %s: %w", b.Name(), err)
		}
		d.logger.Debug("builder initialised", "builder", b.Name())
	}
	d.ready.Store(true)
	return nil
}

// Ready reports whether Init has completed successfully.
func (d *Director) Ready() bool {
	return d.ready.Load()
}

// Process performs one sweep: every builder runs its pipeline once, in order.
func (d *Director) Process(ctx context.Context) {
	start := d.clock.Now()
	for _, b := range d.builders {
		b.Process(ctx)
	}
	d.observer.SweepDone(d.clock.Since(start))
}

// Run sweeps until ctx is cancelled, running queued requests between sweeps.
func (d *Director) Run(ctx context.Context) error {
	stopped, err := d.start()
	if err != nil {
		return err
	}
	defer d.finish(stopped)

	d.logger.Info("director started", "builders", len(d.builders), "interval", d.interval)
	for {
		d.Process(ctx)
		d.drain(ctx)

		if d.interval <= 0 {
			if ctx.Err() != nil {
				d.logger.Info("director stopped")
				return nil
			}
			continue
		}

		timer := d.clock.Timer(d.interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				d.logger.Info("director stopped")
				return nil
			case req := <-d.requests:
				d.serve(ctx, req)
			case <-timer.C:
				break wait
			}
		}
	}
}

func (d *Director) start() (chan struct{}, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	select {
	case <-d.stopped:
	default:
		return nil, errors.New("pipeline: director already running")
	}
	d.stopped = make(chan struct{})
	return d.stopped, nil
}

// finish rejects whatever is still queued and then marks the director
// stopped. Do callers waiting on a rejected request get ErrStopped.
func (d *Director) finish(stopped chan struct{}) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	for {
		select {
		case req := <-d.requests:
			req.err = ErrStopped
			close(req.done)
		default:
			close(stopped)
			return
		}
	}
}

// running returns the stop channel of the active Run, or nil when the
// director is not running.
func (d *Director) running() chan struct{} {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	select {
	case <-d.stopped:
		return nil
	default:
		return d.stopped
	}
}

// Do runs fn on the scheduling goroutine and waits for it to return. It
// returns ErrStopped when Run is not active or exits before serving fn,
// and ctx.Err() when the caller gives up first. In both cases fn does not
// run afterwards.
func (d *Director) Do(ctx context.Context, fn func(ctx context.Context)) error {
	stopped := d.running()
	if stopped == nil {
		return ErrStopped
	}

	req := &request{fn: fn, done: make(chan struct{})}
	select {
	case d.requests <- req:
	case <-stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return req.err
	case <-stopped:
		return d.abandon(req, ErrStopped)
	case <-ctx.Done():
		return d.abandon(req, ctx.Err())
	}
}

// abandon gives up on req unless it has already been answered.
func (d *Director) abandon(req *request, err error) error {
	req.abandoned.Store(true)
	select {
	case <-req.done:
		return req.err
	default:
		return err
	}
}

func (d *Director) drain(ctx context.Context) {
	for {
		select {
		case req := <-d.requests:
			d.serve(ctx, req)
		default:
			return
		}
	}
}

func (d *Director) serve(ctx context.Context, req *request) {
	defer close(req.done)
	if req.abandoned.Load() {
		req.err = ErrStopped
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked", "panic", r)
		}
	}()
	req.fn(ctx)
}
