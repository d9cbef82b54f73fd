// Package worker runs the background polling loop that drives a sensor
// reader and publishes cycle results to a single consumer.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hydropulse/hydropulse/pkg/sensor"
)

// ErrAlreadyRunning is returned by Start when the worker is not idle.
var ErrAlreadyRunning = errors.New("worker: already running")

// ErrStopTimeout is returned by Stop when the polling loop did not exit
// within the stop timeout. The worker still transitions to idle, but the
// loop goroutine may deliver a straggler event; treat this as an
// operational warning, not a data-path failure.
var ErrStopTimeout = errors.New("worker: polling loop did not stop in time")

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// CycleReader is the part of sensor.Reader the worker drives.
type CycleReader interface {
	ReadCycle(ctx context.Context) (sensor.Cycle, error)
}

// Event is one polling cycle's outcome: either a cycle of values or the
// error that prevented it. Exactly one of the two is set.
type Event struct {
	Cycle sensor.Cycle
	Err   error
}

// Worker polls a CycleReader on a fixed interval from a dedicated
// goroutine. Read failures never stop the loop; they surface as error
// events and the next cycle proceeds after the usual interval.
type Worker struct {
	reader   CycleReader
	interval time.Duration
	stopWait time.Duration
	queueCap int
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	events chan Event
}

type Options struct {
	// QueueCapacity bounds the event channel; oldest events are dropped
	// when the consumer falls behind. Defaults to 64.
	QueueCapacity int
	// StopTimeout bounds how long Stop waits for the loop to exit.
	// Defaults to 2s.
	StopTimeout time.Duration
	Logger      *slog.Logger
}

func New(reader CycleReader, interval time.Duration, opts Options) *Worker {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		reader:   reader,
		interval: interval,
		stopWait: opts.StopTimeout,
		queueCap: opts.QueueCapacity,
		log:      opts.Logger,
		state:    StateIdle,
	}
}

// Events returns the channel cycle results are delivered on. It is closed
// when the polling loop exits; a new channel is created on each Start.
func (w *Worker) Events() <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events
}

func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning
}

// Start launches the polling loop. Only valid from idle; returns
// immediately once the loop goroutine is scheduled.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.state = StateRunning
	w.cancel = cancel
	w.done = make(chan struct{})
	w.events = make(chan Event, w.queueCap)
	go w.run(ctx, w.events, w.done)
	w.log.Info("acquisition worker started", "interval", w.interval)
	return nil
}

// Stop cancels the polling loop and waits for it to exit, up to the stop
// timeout. Idempotent. Once Stop returns without error, the event channel
// is closed and no further events will be delivered.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopping
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	var err error
	select {
	case <-done:
	case <-time.After(w.stopWait):
		w.log.Warn("polling loop did not exit before timeout", "timeout", w.stopWait)
		err = ErrStopTimeout
	}

	w.mu.Lock()
	w.state = StateIdle
	w.mu.Unlock()
	if err == nil {
		w.log.Info("acquisition worker stopped")
	}
	return err
}

func (w *Worker) run(ctx context.Context, events chan Event, done chan struct{}) {
	defer close(done)
	defer close(events)
	for {
		if ctx.Err() != nil {
			return
		}
		cycle, err := w.reader.ReadCycle(ctx)
		switch {
		case err == nil:
			w.publish(events, Event{Cycle: cycle})
		case errors.Is(err, context.Canceled):
			return
		default:
			w.log.Error("read cycle failed", "error", err)
			w.publish(events, Event{Err: err})
		}
		select {
		case <-time.After(w.interval):
		case <-ctx.Done():
			return
		}
	}
}

// publish delivers an event without ever blocking the loop: when the
// consumer lags, the oldest queued event is dropped to make room.
func (w *Worker) publish(events chan Event, ev Event) {
	for {
		select {
		case events <- ev:
			return
		default:
		}
		select {
		case <-events:
			w.log.Debug("event queue full, dropping oldest")
		default:
		}
	}
}
