package transport

import (
	"errors"
	"testing"
)

func TestSimReadInRange(t *testing.T) {
	s := NewSim(4095, 0)
	for addr := uint16(0); addr < 4; addr++ {
		raw, err := s.Read(addr)
		if err != nil {
			t.Fatalf("read addr %d: %v", addr, err)
		}
		if raw > 4095 {
			t.Fatalf("raw out of range: %d", raw)
		}
	}
}

func TestSimAlwaysDrops(t *testing.T) {
	s := NewSim(4095, 1.0)
	_, err := s.Read(0)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestSimClosedRejectsReads(t *testing.T) {
	s := NewSim(4095, 0)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Read(0); err == nil {
		t.Fatalf("expected error after close")
	}
	// Close is idempotent
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
