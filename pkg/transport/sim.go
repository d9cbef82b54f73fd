package transport

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimTransport generates a slow waveform per register for bench runs without
// a field unit attached. DropRate injects transport failures for exercising
// the retry path.
type SimTransport struct {
	mu       sync.Mutex
	adcMax   int
	dropRate float64
	start    time.Time
	rng      *rand.Rand
	closed   bool
}

func NewSim(adcMax int, dropRate float64) *SimTransport {
	return &SimTransport{
		adcMax:   adcMax,
		dropRate: dropRate,
		start:    time.Now(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimTransport) Read(address uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &Error{Address: address, Err: errClosed}
	}
	if s.dropRate > 0 && s.rng.Float64() < s.dropRate {
		return 0, &Error{Address: address, Err: errNoResponse}
	}
	// one full swing per minute, phase-shifted per register, plus noise
	t := time.Since(s.start).Seconds()
	phase := float64(address) * math.Pi / 4
	level := 0.5 + 0.4*math.Sin(2*math.Pi*t/60+phase) + 0.02*s.rng.Float64()
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	return uint16(level * float64(s.adcMax)), nil
}

func (s *SimTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	errNoResponse = simError("no response")
	errClosed     = simError("transport closed")
)

type simError string

func (e simError) Error() string { return string(e) }
