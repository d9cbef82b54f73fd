package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydropulse/hydropulse/pkg/sensor"
)

// stubReader hands out sequential cycles, optionally failing some of them.
type stubReader struct {
	count  atomic.Int64
	failOn func(n int64) error
}

func (s *stubReader) ReadCycle(ctx context.Context) (sensor.Cycle, error) {
	n := s.count.Add(1)
	if s.failOn != nil {
		if err := s.failOn(n); err != nil {
			return sensor.Cycle{}, err
		}
	}
	return sensor.Cycle{
		Values:    []sensor.Value{{V: float64(n), OK: true}},
		Timestamp: time.Now(),
	}, nil
}

func TestStartStopLifecycle(t *testing.T) {
	w := New(&stubReader{}, time.Millisecond, Options{})
	require.False(t, w.IsRunning())

	require.NoError(t, w.Start())
	require.True(t, w.IsRunning())
	require.ErrorIs(t, w.Start(), ErrAlreadyRunning)

	require.NoError(t, w.Stop())
	require.False(t, w.IsRunning())
	// Stop is idempotent
	require.NoError(t, w.Stop())
}

func TestEventsArriveInOrder(t *testing.T) {
	w := New(&stubReader{}, time.Millisecond, Options{})
	require.NoError(t, w.Start())
	events := w.Events()

	var last float64
	for i := 0; i < 5; i++ {
		select {
		case ev := <-events:
			require.NoError(t, ev.Err)
			require.Greater(t, ev.Cycle.Values[0].V, last)
			last = ev.Cycle.Values[0].V
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.NoError(t, w.Stop())
}

func TestErrorEventsKeepLoopAlive(t *testing.T) {
	r := &stubReader{failOn: func(n int64) error {
		if n%2 == 1 {
			return errors.New("boom")
		}
		return nil
	}}
	w := New(r, time.Millisecond, Options{})
	require.NoError(t, w.Start())
	events := w.Events()

	var dataSeen, errSeen bool
	deadline := time.After(time.Second)
	for !(dataSeen && errSeen) {
		select {
		case ev := <-events:
			if ev.Err != nil {
				errSeen = true
			} else {
				dataSeen = true
			}
		case <-deadline:
			t.Fatal("worker stopped surfacing events after an error")
		}
	}
	require.True(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

func TestNoEventsAfterStop(t *testing.T) {
	w := New(&stubReader{}, time.Millisecond, Options{})
	require.NoError(t, w.Start())
	events := w.Events()
	<-events

	require.NoError(t, w.Stop())
	// the channel must be drained and closed once Stop returns
	for {
		ev, ok := <-events
		if !ok {
			return
		}
		require.NoError(t, ev.Err)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	w := New(&stubReader{}, time.Millisecond, Options{QueueCapacity: 4})
	require.NoError(t, w.Start())
	events := w.Events()

	// leave the consumer idle long enough to overflow the queue
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Stop())

	var got []float64
	for ev := range events {
		require.NoError(t, ev.Err)
		got = append(got, ev.Cycle.Values[0].V)
	}
	require.NotEmpty(t, got)
	require.LessOrEqual(t, len(got), 4)
	// oldest dropped, order preserved
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i], got[i-1])
	}
	require.Greater(t, got[0], 1.0, "first events were dropped")
}

func TestStopTimesOutOnStuckReader(t *testing.T) {
	w := New(stuckReader{}, time.Millisecond, Options{StopTimeout: 10 * time.Millisecond})
	require.NoError(t, w.Start())
	time.Sleep(5 * time.Millisecond)
	err := w.Stop()
	require.ErrorIs(t, err, ErrStopTimeout)
	require.False(t, w.IsRunning())
}

// stuckReader ignores cancellation, simulating a wedged transport.
type stuckReader struct{}

func (stuckReader) ReadCycle(ctx context.Context) (sensor.Cycle, error) {
	time.Sleep(200 * time.Millisecond)
	return sensor.Cycle{}, ctx.Err()
}
