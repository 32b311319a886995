package policy

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Stage names.
const (
	StageCollect    = "collect"
	StageCalibrate  = "calibrate"
	StageRangeCheck = "range_check"
	StageDataCheck  = "data_check"
	StageAlarm      = "alarm"
	StageReport     = "report"
	StageStore      = "store"
)

// DefaultStages is the pipeline used when a builder does not list its own.
var DefaultStages = []string{StageCollect, StageCalibrate, StageRangeCheck, StageDataCheck, StageAlarm, StageReport, StageStore}

// slot is one channel of one device as seen by a stage.
type slot struct {
	dev     sensor.Device
	ch      sensor.Channel
	raw     sensor.Channel
	cfg     *ChannelConfig
	primary *ChannelConfig
}

// engine holds the per-channel stage logic shared by Standard and Group.
type engine struct {
	opts Options
}

// collect runs the collection state machine for dev. cfg[0] is the primary
// channel whose thresholds and counters govern the whole device.
func (e *engine) collect(ctx context.Context, dev sensor.Device, cfg []ChannelConfig) bool {
	primary := &cfg[0]
	name := dev.Name()

	counted := true
	if primary.Hooks.AllowCount != nil {
		counted = primary.Hooks.AllowCount(cfg)
	}
	if counted {
		primary.Collect.Count++
	}
	e.opts.Recorder.Collected(name, counted)

	err := e.attempt(ctx, dev)
	for {
		switch AfterAttempt(err == nil, primary.Collect, primary.RetryLimit) {
		case PhaseDone:
			return true

		case PhaseRetry:
			primary.Collect.ErrCount++
			e.opts.Logger.Info("retrying collection", "sensor", name,
				"attempt", primary.Collect.ErrCount, "limit", primary.RetryLimit, "error", err)
			e.opts.Recorder.Retried(name)
			if counted {
				primary.Collect.Count++
			}
			e.close(ctx, dev)
			err = e.attempt(ctx, dev)

		case PhaseFault:
			e.opts.Recorder.Faulted(name)
			if primary.Hooks.Fault != nil {
				primary.Hooks.Fault(dev, cfg)
			} else {
				e.opts.Logger.Error("sensor fault", "sensor", name, "error", err)
			}
			return false

		default:
			e.degrade(dev, cfg, err)
			return false
		}
	}
}

// degrade handles a terminal failure of a device that worked before.
func (e *engine) degrade(dev sensor.Device, cfg []ChannelConfig, cause error) {
	primary := &cfg[0]
	name := dev.Name()
	e.opts.Recorder.Failed(name)

	if primary.Hooks.Fail != nil {
		primary.Hooks.Fail(dev, cfg)
		return
	}

	primary.Collect.FailCount++
	e.opts.Logger.Warn("collection failed", "sensor", name,
		"fail_count", primary.Collect.FailCount, "limit", primary.FailLimit, "error", cause)

	if AfterDegraded(primary.Collect.FailCount, primary.FailLimit) != PhaseRestart {
		return
	}
	e.opts.Logger.Error("sensor failing persistently, restarting node", "sensor", name,
		"fail_count", primary.Collect.FailCount)
	e.opts.Recorder.Restarted(name)
	if e.opts.Restarter != nil {
		e.opts.Restarter.Restart()
	}
}

// attempt opens dev, collects if the open worked and always closes.
func (e *engine) attempt(ctx context.Context, dev sensor.Device) error {
	err := optional(sensor.Open(ctx, dev))
	if err == nil {
		err = sensor.Collect(ctx, dev)
	}
	e.close(ctx, dev)
	return err
}

func (e *engine) close(ctx context.Context, dev sensor.Device) {
	if err := optional(sensor.Close(ctx, dev)); err != nil {
		e.opts.Logger.Debug("close failed", "sensor", dev.Name(), "error", err)
	}
}

// optional treats a capability the device does not implement as success.
func optional(err error) error {
	if errors.Is(err, sensor.ErrUnsupported) {
		return nil
	}
	return err
}

// settle records the outcome of a collection on every slot.
func (e *engine) settle(ok bool, slots []slot) {
	for _, s := range slots {
		if !ok {
			e.setStatus(s, sensor.StatusInvalid)
			continue
		}

		s.cfg.Collect.ErrCount = 0
		s.cfg.Collect.FailCount = 0
		s.cfg.Collect.Normal = true
		e.setStatus(s, sensor.StatusValid)

		v, err := sensor.Value(s.dev, s.raw)
		if err != nil {
			e.opts.Logger.Error("reading raw value", "sensor", s.dev.Name(), "channel", s.ch.Index(), "error", err)
			continue
		}
		if err := sensor.SetValue(s.dev, s.ch, v); err != nil {
			e.opts.Logger.Error("storing value", "sensor", s.dev.Name(), "channel", s.ch.Index(), "error", err)
		}
	}
}

func (e *engine) setStatus(s slot, status sensor.DataStatus) {
	if err := sensor.SetStatus(s.dev, s.ch, status); err != nil {
		e.opts.Logger.Error("setting status", "sensor", s.dev.Name(), "channel", s.ch.Index(), "error", err)
	}
}

func (e *engine) status(s slot) sensor.DataStatus {
	status, err := sensor.Status(s.dev, s.ch)
	if err != nil {
		return sensor.StatusNone
	}
	return status
}

// calibrate applies stored offsets. It stops at the first channel that is
// not valid or has no calibration key, leaving later channels untouched.
func (e *engine) calibrate(ctx context.Context, slots []slot) {
	for _, s := range slots {
		name := s.dev.Name()
		if e.status(s) != sensor.StatusValid {
			return
		}
		if s.cfg.CalibrationKey == 0 {
			e.opts.Logger.Error("calibration key not set", "sensor", name, "channel", s.ch.Index())
			return
		}
		if e.opts.Calibration == nil {
			e.opts.Logger.Debug("no calibration store", "sensor", name)
			return
		}

		rec, err := e.opts.Calibration.Calibration(ctx, s.cfg.CalibrationKey)
		if errors.Is(err, ErrCalibrationNotFound) {
			continue
		}
		if err != nil {
			e.opts.Logger.Error("reading calibration", "sensor", name, "key", s.cfg.CalibrationKey, "error", err)
			return
		}
		if !rec.Enabled {
			continue
		}

		raw, err := sensor.Value(s.dev, s.raw)
		if err != nil {
			e.opts.Logger.Error("reading raw value", "sensor", name, "channel", s.ch.Index(), "error", err)
			return
		}
		offset := float64(rec.Offset) / s.cfg.unit()
		e.opts.Logger.Debug("calibrating", "sensor", name, "channel", s.ch.Index(), "offset", offset)
		if err := sensor.SetValue(s.dev, s.ch, raw+offset); err != nil {
			e.opts.Logger.Error("storing value", "sensor", name, "channel", s.ch.Index(), "error", err)
		}
	}
}

// rangeCheck marks valid channels outside their window as out of range.
func (e *engine) rangeCheck(slots []slot) {
	for _, s := range slots {
		if e.status(s) != sensor.StatusValid {
			continue
		}
		v, err := sensor.Value(s.dev, s.ch)
		if err != nil {
			continue
		}
		if s.cfg.InRange(v) {
			s.cfg.Check.FailCount = 0
			continue
		}
		e.setStatus(s, sensor.StatusOutOfRange)
		s.cfg.Check.FailCount++
		e.opts.Recorder.OutOfRange(s.dev.Name(), s.ch.Index())
		e.opts.Logger.Warn("value out of range", "sensor", s.dev.Name(), "channel", s.ch.Index(),
			"value", v, "min", s.cfg.Check.Min, "max", s.cfg.Check.Max, "fail_count", s.cfg.Check.FailCount)
	}
}

// dataCheck replaces invalid and out-of-range values with their sentinels.
func (e *engine) dataCheck(slots []slot) {
	for _, s := range slots {
		name := s.dev.Name()
		var sentinel float64
		switch e.status(s) {
		case sensor.StatusInvalid:
			sentinel = s.cfg.invalidValue()
		case sensor.StatusOutOfRange:
			sentinel = s.cfg.outOfRangeValue()
		default:
			continue
		}
		if err := sensor.SetValue(s.dev, s.ch, sentinel); err != nil {
			e.opts.Logger.Error("storing value", "sensor", name, "channel", s.ch.Index(), "error", err)
			continue
		}
		e.opts.Logger.Debug("substituted value", "sensor", name, "channel", s.ch.Index(), "value", sentinel)
	}
}

// alarm calls every channel's alarm hook. With stopOnMissing the stage ends
// at the first channel without one.
func (e *engine) alarm(slots []slot, stopOnMissing bool) {
	for _, s := range slots {
		if s.cfg.Hooks.Alarm == nil {
			if stopOnMissing {
				return
			}
			continue
		}
		v, err := sensor.Value(s.dev, s.ch)
		if err != nil {
			continue
		}
		s.cfg.Hooks.Alarm(s.dev, s.ch.Index(), v)
	}
}

func (e *engine) readings(slots []slot) []report.Reading {
	now := e.opts.Clock.Now()
	out := make([]report.Reading, 0, len(slots))
	for _, s := range slots {
		v, _ := sensor.Value(s.dev, s.ch)
		out = append(out, report.Reading{
			Node:    e.opts.Node,
			Boot:    e.opts.Boot,
			Sensor:  s.dev.Name(),
			Channel: s.cfg.Name,
			Index:   s.ch.Index(),
			Value:   v,
			Status:  e.status(s).String(),
			Unit:    s.cfg.Unit,
			Count:   s.primary.Collect.Count,
			Time:    now,
		})
	}
	return out
}

func (e *engine) publish(ctx context.Context, sink report.Sink, stage string, slots []slot) {
	if len(slots) == 0 {
		return
	}
	if err := sink.Write(ctx, e.readings(slots)); err != nil {
		e.opts.Logger.Warn("writing readings", "stage", stage, "sensor", slots[0].dev.Name(), "error", err)
	}
}

// stage assembles a pipeline stage from a handler, attaching the collect gate.
func (e *engine) stage(name string, h pipeline.HandlerFunc[ChannelConfig]) pipeline.Stage[ChannelConfig] {
	st := pipeline.Stage[ChannelConfig]{Name: name, Handler: h}
	if name == StageCollect {
		st.Allow = e.opts.CollectAllow
	}
	return st
}
