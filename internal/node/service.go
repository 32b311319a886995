package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/gray-logic-sensornode/internal/calibration"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Command actions accepted by Command.
const (
	ActionRecalibrate      = "recalibrate"
	ActionLowPower         = "lowpower"
	ActionResetConsumption = "reset_consumption"
)

var (
	// ErrUnknownAction is returned by Command for an action it does not handle.
	ErrUnknownAction = errors.New("node: unknown action")
	// ErrNoCalibrationStore is returned when calibration records are not available.
	ErrNoCalibrationStore = errors.New("node: calibration store not configured")
)

// Calibrations reads and writes calibration records.
type Calibrations interface {
	Get(ctx context.Context, key uint32) (calibration.Entry, error)
	Set(ctx context.Context, e calibration.Entry) error
}

// Logger is the logging surface the service uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Deps holds the collaborators of a Service.
type Deps struct {
	Director    *pipeline.Director
	Set         *drivers.Set
	Calibration Calibrations
	Logger      Logger
}

// Service exposes the sensors of a node.
type Service struct {
	director *pipeline.Director
	set      *drivers.Set
	cal      Calibrations
	logger   Logger
}

// New creates a service.
func New(deps Deps) (*Service, error) {
	if deps.Director == nil {
		return nil, errors.New("node: director is required")
	}
	if deps.Set == nil {
		return nil, errors.New("node: sensor set is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Service{
		director: deps.Director,
		set:      deps.Set,
		cal:      deps.Calibration,
		logger:   deps.Logger,
	}, nil
}

// Channel is the state of one channel of a sensor.
type Channel struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Status     string  `json:"status"`
	Unit       int     `json:"unit"`
	Normal     bool    `json:"normal"`
	ErrCount   int     `json:"err_count"`
	FailCount  int     `json:"fail_count"`
	RangeFails uint32  `json:"range_fails"`
}

// Summary describes one sensor.
type Summary struct {
	Name     string    `json:"name"`
	Builder  string    `json:"builder"`
	Module   string    `json:"module,omitempty"`
	Stages   []string  `json:"stages"`
	Gate     string    `json:"gate"`
	Channels []Channel `json:"channels"`
}

// Consumption is the collection count and energy of one channel.
type Consumption struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Count  uint32  `json:"count"`
	Power  float64 `json:"power"`
	Energy float64 `json:"energy"`
}

// binding locates a device's channels inside its builder's configuration.
// Channel i of the device is cfg[first+i].
type binding struct {
	builder *pipeline.Builder[policy.ChannelConfig]
	dev     sensor.Device
	first   int
	n       int
}

func (b binding) channels() []policy.ChannelConfig {
	cfg := b.builder.Config()
	end := min(b.first+b.n, len(cfg))
	if b.first >= end {
		return nil
	}
	return cfg[b.first:end]
}

func (s *Service) lookup(name string) (binding, error) {
	dev, err := s.set.Registry.Lookup(name)
	if err != nil {
		return binding{}, err
	}
	for _, b := range s.set.Builders {
		devs := b.Devices()
		k := slices.Index(devs, dev)
		if k < 0 {
			continue
		}
		// A group builder gives each member one configuration entry.
		if len(devs) > 1 {
			return binding{builder: b, dev: dev, first: k, n: 1}, nil
		}
		return binding{builder: b, dev: dev, first: 0, n: len(b.Config())}, nil
	}
	return binding{}, fmt.Errorf("%s: no builder: %w", name, sensor.ErrNotFound)
}

func (s *Service) summary(b binding) Summary {
	out := Summary{
		Name:    b.dev.Name(),
		Builder: b.builder.Name(),
		Stages:  b.builder.StageNames(),
		Gate:    b.builder.Gate().String(),
	}
	if m := sensor.ModuleOf(b.dev); m != nil {
		out.Module = m.Name()
	}
	for i, c := range b.channels() {
		ch := sensor.Channel(i)
		v, _ := sensor.Value(b.dev, ch)
		st, err := sensor.Status(b.dev, ch)
		if err != nil {
			st = sensor.StatusNone
		}
		out.Channels = append(out.Channels, Channel{
			Index:      i,
			Name:       c.Name,
			Value:      v,
			Status:     st.String(),
			Unit:       c.Unit,
			Normal:     c.Collect.Normal,
			ErrCount:   c.Collect.ErrCount,
			FailCount:  c.Collect.FailCount,
			RangeFails: c.Check.FailCount,
		})
	}
	return out
}

// do runs fn on the scheduling goroutine.
func (s *Service) do(ctx context.Context, fn func(ctx context.Context)) error {
	if err := s.director.Do(ctx, fn); err != nil {
		return fmt.Errorf("scheduling request: %w", err)
	}
	return nil
}

// Sensors returns every sensor in registration order.
func (s *Service) Sensors(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.do(ctx, func(context.Context) {
		for _, dev := range s.set.Registry.Devices() {
			b, err := s.lookup(dev.Name())
			if err != nil {
				continue
			}
			out = append(out, s.summary(b))
		}
	})
	return out, err
}

// Sensor returns one sensor by name.
func (s *Service) Sensor(ctx context.Context, name string) (Summary, error) {
	b, err := s.lookup(name)
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	err = s.do(ctx, func(context.Context) { out = s.summary(b) })
	return out, err
}

// Consumption returns the counted collections and energy per channel.
func (s *Service) Consumption(ctx context.Context, name string) ([]Consumption, error) {
	b, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	var out []Consumption
	err = s.do(ctx, func(context.Context) {
		for i, c := range b.channels() {
			count, energy := c.Consumption()
			out = append(out, Consumption{Index: i, Name: c.Name, Count: count, Power: c.Power, Energy: energy})
		}
	})
	return out, err
}

// ResetConsumption zeroes the collection count of every channel of a sensor.
func (s *Service) ResetConsumption(ctx context.Context, name string) error {
	b, err := s.lookup(name)
	if err != nil {
		return err
	}
	if err := s.do(ctx, func(context.Context) {
		cfg := b.channels()
		for i := range cfg {
			cfg[i].Collect.Count = 0
		}
	}); err != nil {
		return err
	}
	s.logger.Info("consumption reset", "sensor", name)
	return nil
}

// Recalibrate re-runs the calibration stage of the sensor's builder.
func (s *Service) Recalibrate(ctx context.Context, name string) error {
	b, err := s.lookup(name)
	if err != nil {
		return err
	}
	var stageErr error
	if err := s.do(ctx, func(ctx context.Context) {
		stageErr = b.builder.RunStage(ctx, policy.StageCalibrate)
	}); err != nil {
		return err
	}
	if stageErr != nil {
		return fmt.Errorf("%s: %w", name, stageErr)
	}
	s.logger.Info("sensor recalibrated", "sensor", name)
	return nil
}

// LowPower moves a sensor into or out of low power.
func (s *Service) LowPower(ctx context.Context, name string, enter bool) error {
	b, err := s.lookup(name)
	if err != nil {
		return err
	}
	var opErr error
	if err := s.do(ctx, func(ctx context.Context) {
		opErr = sensor.LowPower(ctx, b.dev, enter)
	}); err != nil {
		return err
	}
	if opErr != nil {
		return fmt.Errorf("%s: %w", name, opErr)
	}
	s.logger.Info("sensor low power changed", "sensor", name, "enter", enter)
	return nil
}

// Calibration returns the calibration record stored under key.
func (s *Service) Calibration(ctx context.Context, key uint32) (calibration.Entry, error) {
	if s.cal == nil {
		return calibration.Entry{}, ErrNoCalibrationStore
	}
	return s.cal.Get(ctx, key)
}

// SetCalibration stores a calibration record. It takes effect on the next
// calibrate stage.
func (s *Service) SetCalibration(ctx context.Context, e calibration.Entry) error {
	if s.cal == nil {
		return ErrNoCalibrationStore
	}
	if err := s.cal.Set(ctx, e); err != nil {
		return err
	}
	s.logger.Info("calibration updated", "key", e.Key, "enabled", e.Enabled, "offset", e.Offset)
	return nil
}

type lowPowerPayload struct {
	Enter bool `json:"enter"`
}

// Command performs a remote action on a sensor. Low power takes a JSON
// payload {"enter": bool}; the other actions ignore the payload.
func (s *Service) Command(ctx context.Context, name, action string, payload []byte) error {
	switch action {
	case ActionRecalibrate:
		return s.Recalibrate(ctx, name)
	case ActionResetConsumption:
		return s.ResetConsumption(ctx, name)
	case ActionLowPower:
		var p lowPowerPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%s: %w: %w", action, sensor.ErrBadData, err)
		}
		return s.LowPower(ctx, name, p.Enter)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
