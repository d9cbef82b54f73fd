// Package sensor turns raw register reads into calibrated channel values,
// one full cycle across all configured channels per call.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/transport"
)

// ErrNoTransport is returned when a Reader is constructed without a live
// transport; the session must not start in that case.
var ErrNoTransport = errors.New("sensor: transport is not initialized")

// ConversionError marks a register payload that could not be interpreted as
// a measurement. It aborts the whole cycle, unlike per-channel transport
// failures which only degrade that channel's value.
type ConversionError struct {
	Channel int
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("sensor: invalid reading on channel %d: %v", e.Channel, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Value is one channel's reading for a cycle. OK is false when all read
// attempts for the channel failed.
type Value struct {
	V  float64
	OK bool
}

// Cycle is the result of one full read pass: one value per configured
// channel and a single shared wall-clock timestamp.
type Cycle struct {
	Values    []Value
	Timestamp time.Time
}

// Reader performs one read cycle at a time over a single transport. It has
// no concurrency of its own; the acquisition worker drives it.
type Reader struct {
	tr        transport.Transport
	channels  []config.ChannelConfig
	adcMax    float64
	fullScale float64
	retries   int
	backoff   time.Duration
	log       *slog.Logger
	closeOnce sync.Once
}

func NewReader(tr transport.Transport, cfg config.Config, log *slog.Logger) (*Reader, error) {
	if tr == nil {
		return nil, ErrNoTransport
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		tr:        tr,
		channels:  cfg.EnabledChannels(),
		adcMax:    float64(cfg.ADCMax),
		fullScale: cfg.FullScaleVoltage,
		retries:   cfg.ReadRetries,
		backoff:   cfg.BackoffBase(),
		log:       log,
	}, nil
}

// Channels returns the channel set this reader is bound to, in read order.
func (r *Reader) Channels() []config.ChannelConfig { return r.channels }

// ReadCycle reads every configured channel once, in configuration order.
// Transport failures are retried with exponential backoff and degrade the
// single channel to an invalid value after the last attempt; a garbled
// payload aborts the cycle with a *ConversionError.
func (r *Reader) ReadCycle(ctx context.Context) (Cycle, error) {
	values := make([]Value, 0, len(r.channels))
	for _, ch := range r.channels {
		raw, err := r.readWithRetry(ctx, ch)
		switch {
		case err == nil:
			values = append(values, Value{V: r.convert(raw, ch), OK: true})
		case errors.Is(err, transport.ErrBadPayload):
			return Cycle{}, &ConversionError{Channel: ch.Channel, Err: err}
		case ctx.Err() != nil:
			return Cycle{}, ctx.Err()
		default:
			r.log.Warn("channel read failed, recording gap",
				"channel", ch.Channel, "name", ch.Name, "error", err)
			values = append(values, Value{})
		}
	}
	return Cycle{Values: values, Timestamp: time.Now()}, nil
}

func (r *Reader) readWithRetry(ctx context.Context, ch config.ChannelConfig) (uint16, error) {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		raw, err := r.tr.Read(uint16(ch.Channel))
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, transport.ErrBadPayload) {
			return 0, err
		}
		lastErr = err
		r.log.Debug("read attempt failed",
			"channel", ch.Channel, "attempt", attempt+1, "error", err)
		// backoff 1x, 2x, 4x the base unit
		select {
		case <-time.After(r.backoff << attempt):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}

func (r *Reader) convert(raw uint16, ch config.ChannelConfig) float64 {
	clamped := math.Max(0, float64(raw)-ch.Offset)
	voltage := clamped / r.adcMax * r.fullScale
	return voltage / r.fullScale * ch.Scale * ch.Calibration
}

// Disconnect closes the transport. Idempotent and never fails; a close
// error is only logged.
func (r *Reader) Disconnect() {
	r.closeOnce.Do(func() {
		if err := r.tr.Close(); err != nil {
			r.log.Warn("transport close failed", "error", err)
			return
		}
		r.log.Info("transport disconnected")
	})
}
