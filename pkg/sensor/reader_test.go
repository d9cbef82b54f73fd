package sensor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/transport"
)

// scriptTransport returns canned values or errors per register address.
type scriptTransport struct {
	values   map[uint16]uint16
	failures map[uint16]int // fail this many reads before succeeding
	badAddrs map[uint16]bool
	reads    int
	closed   int
}

func (s *scriptTransport) Read(address uint16) (uint16, error) {
	s.reads++
	if s.badAddrs[address] {
		return 0, fmt.Errorf("%w: register %d", transport.ErrBadPayload, address)
	}
	if s.failures[address] > 0 {
		s.failures[address]--
		return 0, &transport.Error{Address: address, Err: errors.New("no response")}
	}
	return s.values[address], nil
}

func (s *scriptTransport) Close() error {
	s.closed++
	return nil
}

func testConfig(n int) config.Config {
	cfg := config.DefaultConfig()
	cfg.BackoffBaseMs = 1
	cfg.Channels = cfg.Channels[:n]
	cfg.Normalize()
	return cfg
}

func TestNewReaderRequiresTransport(t *testing.T) {
	_, err := NewReader(nil, testConfig(4), nil)
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestReadCycleValueLengthMatchesChannels(t *testing.T) {
	for n := 1; n <= 4; n++ {
		tr := &scriptTransport{values: map[uint16]uint16{0: 100, 1: 200, 2: 300, 3: 400}}
		r, err := NewReader(tr, testConfig(n), nil)
		require.NoError(t, err)

		cycle, err := r.ReadCycle(context.Background())
		require.NoError(t, err)
		require.Len(t, cycle.Values, n)
		require.False(t, cycle.Timestamp.IsZero())
	}
}

func TestConvertZeroAfterOffsetClamp(t *testing.T) {
	// raw=0, offset=2 clamps to 0 and must yield exactly 0
	tr := &scriptTransport{values: map[uint16]uint16{0: 0}}
	r, err := NewReader(tr, testConfig(1), nil)
	require.NoError(t, err)

	cycle, err := r.ReadCycle(context.Background())
	require.NoError(t, err)
	require.True(t, cycle.Values[0].OK)
	require.Equal(t, 0.0, cycle.Values[0].V)
}

func TestConvertFullScale(t *testing.T) {
	// raw=4095, offset=2, scale=600 -> ((4093/4095)*10/10)*600 ~= 599.7
	tr := &scriptTransport{values: map[uint16]uint16{0: 4095}}
	r, err := NewReader(tr, testConfig(1), nil)
	require.NoError(t, err)

	cycle, err := r.ReadCycle(context.Background())
	require.NoError(t, err)
	require.True(t, cycle.Values[0].OK)
	require.InDelta(t, 599.7, cycle.Values[0].V, 1.0)
}

func TestRetryThenSuccess(t *testing.T) {
	tr := &scriptTransport{
		values:   map[uint16]uint16{0: 2047},
		failures: map[uint16]int{0: 2},
	}
	r, err := NewReader(tr, testConfig(1), nil)
	require.NoError(t, err)

	cycle, err := r.ReadCycle(context.Background())
	require.NoError(t, err)
	require.True(t, cycle.Values[0].OK)
	require.Equal(t, 3, tr.reads)
}

func TestExhaustedRetriesDegradeToInvalid(t *testing.T) {
	tr := &scriptTransport{
		values:   map[uint16]uint16{0: 1000, 1: 1000},
		failures: map[uint16]int{0: 100},
	}
	r, err := NewReader(tr, testConfig(2), nil)
	require.NoError(t, err)

	cycle, err := r.ReadCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, cycle.Values, 2)
	require.False(t, cycle.Values[0].OK, "failed channel degrades to invalid")
	require.True(t, cycle.Values[1].OK, "later channel still read")
}

func TestAlwaysFailingTransportBacksOff(t *testing.T) {
	cfg := testConfig(1)
	cfg.BackoffBaseMs = 10
	tr := &scriptTransport{failures: map[uint16]int{0: 100}}
	r, err := NewReader(tr, cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	cycle, err := r.ReadCycle(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.False(t, cycle.Values[0].OK)
	// three failed attempts back off 1x+2x+4x the base unit
	require.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestBadPayloadAbortsCycle(t *testing.T) {
	tr := &scriptTransport{
		values:   map[uint16]uint16{0: 1000},
		badAddrs: map[uint16]bool{1: true},
	}
	r, err := NewReader(tr, testConfig(3), nil)
	require.NoError(t, err)

	_, err = r.ReadCycle(context.Background())
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	require.Equal(t, 1, convErr.Channel)
	// channel 2 was never attempted: cycle aborted at the conversion fault
	require.Equal(t, 2, tr.reads)
}

func TestReadCycleHonorsCancellation(t *testing.T) {
	cfg := testConfig(1)
	cfg.BackoffBaseMs = 1000
	tr := &scriptTransport{failures: map[uint16]int{0: 100}}
	r, err := NewReader(tr, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReadCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDisconnectIdempotent(t *testing.T) {
	tr := &scriptTransport{}
	r, err := NewReader(tr, testConfig(1), nil)
	require.NoError(t, err)

	r.Disconnect()
	r.Disconnect()
	require.Equal(t, 1, tr.closed)
}
