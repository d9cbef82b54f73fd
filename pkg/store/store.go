// Package store buffers acquisition cycles in two retentions: a
// time-bounded recent window and an unbounded full-session history, with
// aggregate statistics over the window.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/export"
	"github.com/hydropulse/hydropulse/pkg/sensor"
)

// Stats are derived over the non-null values currently in a channel's
// recent window.
type Stats struct {
	Current float64
	Min     float64
	Max     float64
	Avg     float64
}

// Store is safe for concurrent use; the event consumer appends while UI or
// export callers query.
type Store struct {
	mu      sync.Mutex
	window  time.Duration
	session string
	log     *slog.Logger

	names    []string
	recent   [][]sensor.Value
	recentTS []time.Time
	full     [][]sensor.Value
	fullTS   []time.Time
}

func New(channels []config.ChannelConfig, window time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		window:  window,
		session: uuid.NewString()[:8],
		log:     log,
	}
	s.init(channels)
	return s
}

func (s *Store) init(channels []config.ChannelConfig) {
	s.names = make([]string, len(channels))
	for i, ch := range channels {
		s.names[i] = ch.Name
	}
	s.recent = make([][]sensor.Value, len(channels))
	s.full = make([][]sensor.Value, len(channels))
	s.recentTS = nil
	s.fullTS = nil
}

// Session identifies this acquisition session in export file names.
func (s *Store) Session() string { return s.session }

// Append records one cycle into both retentions, growing the tracked
// channel set if the cycle carries more values than currently known, then
// evicts window entries older than the configured span.
func (s *Store) Append(values []sensor.Value, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.recent) < len(values) {
		s.names = append(s.names, fmt.Sprintf("Channel %d", len(s.recent)+1))
		s.recent = append(s.recent, nil)
		s.full = append(s.full, nil)
	}

	for i, v := range values {
		s.recent[i] = append(s.recent[i], v)
		s.full[i] = append(s.full[i], v)
	}
	s.recentTS = append(s.recentTS, ts)
	s.fullTS = append(s.fullTS, ts)

	// evict oldest-first, all channels in lock-step by position
	for len(s.recentTS) > 0 && ts.Sub(s.recentTS[0]) > s.window {
		s.recentTS = s.recentTS[1:]
		for i := range s.recent {
			if len(s.recent[i]) > 0 {
				s.recent[i] = s.recent[i][1:]
			} else {
				s.log.Warn("recent window empty during eviction", "channel", i)
			}
		}
	}
}

// Statistics computes current/min/max/avg over the non-null values in the
// channel's recent window. ok is false when the index is unknown or the
// window holds no valid values.
func (s *Store) Statistics(idx int) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.recent) {
		return Stats{}, false
	}
	// tolerate transient length mismatch during channel-set changes
	n := min(len(s.recent[idx]), len(s.recentTS))

	var st Stats
	var count int
	for _, v := range s.recent[idx][:n] {
		if !v.OK {
			continue
		}
		if count == 0 {
			st.Min, st.Max = v.V, v.V
		} else {
			st.Min = min(st.Min, v.V)
			st.Max = max(st.Max, v.V)
		}
		st.Avg += v.V
		st.Current = v.V
		count++
	}
	if count == 0 {
		return Stats{}, false
	}
	st.Avg /= float64(count)
	return st, true
}

// Names returns the tracked channel names, in channel order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len reports entries currently held per retention.
func (s *Store) Len() (recent, full int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recentTS), len(s.fullTS)
}

// Reset discards all buffered data and reinitializes both retentions for a
// possibly different channel set. Used on channel add/remove/reset.
func (s *Store) Reset(channels []config.ChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init(channels)
	s.log.Info("store reset", "channels", len(channels))
}

// FlushRecent exports and clears the recent window only; the session
// history is untouched. The store does not block on export completion.
func (s *Store) FlushRecent(exp export.Exporter) <-chan error {
	s.mu.Lock()
	snap := s.snapshotLocked(export.KindRecent, s.recentTS, s.recent)
	s.recentTS = nil
	for i := range s.recent {
		s.recent[i] = nil
	}
	s.mu.Unlock()

	if len(snap.Timestamps) == 0 {
		s.log.Info("no recent data to flush")
		return closedResult()
	}
	return exp.Export(snap)
}

// FlushSession exports the full-session history and clears both
// retentions; used when the session ends.
func (s *Store) FlushSession(exp export.Exporter) <-chan error {
	s.mu.Lock()
	snap := s.snapshotLocked(export.KindSession, s.fullTS, s.full)
	s.recentTS = nil
	s.fullTS = nil
	for i := range s.recent {
		s.recent[i] = nil
		s.full[i] = nil
	}
	s.mu.Unlock()

	if len(snap.Timestamps) == 0 {
		s.log.Info("no session data to flush")
		return closedResult()
	}
	return exp.Export(snap)
}

func (s *Store) snapshotLocked(kind export.Kind, ts []time.Time, data [][]sensor.Value) export.Snapshot {
	snap := export.Snapshot{
		Session:    s.session,
		Kind:       kind,
		Timestamps: append([]time.Time(nil), ts...),
		Series:     make([]export.Series, len(data)),
	}
	for i, vals := range data {
		n := min(len(vals), len(ts))
		snap.Series[i] = export.Series{
			Name:   s.names[i],
			Values: append([]sensor.Value(nil), vals[:n]...),
		}
	}
	return snap
}

func closedResult() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}
