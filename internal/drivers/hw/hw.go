// Package hw holds the small pieces of hardware plumbing shared by the
// drivers: context-aware delays, switched power rails and checksums.
package hw

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/gpio"
)

// Sleep waits for d on clk or until ctx is done. Non-positive durations
// return at once.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Power is a sensor supply rail switched by a GPIO. A zero Power has no pin
// and every call succeeds, for sensors that are always powered.
type Power struct {
	Pin       gpio.PinOut
	ActiveLow bool
}

// On drives the rail to its active level.
func (p Power) On() error { return p.set(true) }

// Off drives the rail to its inactive level.
func (p Power) Off() error { return p.set(false) }

func (p Power) set(on bool) error {
	if p.Pin == nil {
		return nil
	}
	level := gpio.Level(on != p.ActiveLow)
	return p.Pin.Out(level)
}

// CRC8 computes the Sensirion checksum (polynomial 0x31, init 0xFF).
func CRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
