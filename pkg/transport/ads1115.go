package transport

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/hydropulse/hydropulse/pkg/config"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ADS1115Transport samples an ADS1115 ADC over I2C in single-shot mode.
// The register address selects the input mux (0-3). Raw values span
// 0..32767 single-ended, so adc_max should be set to 32767 when using
// this transport.
type ADS1115Transport struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	sampleRate int
}

func NewADS1115(cfg config.I2CConfig) (*ADS1115Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.Address), Bus: bus}
	return &ADS1115Transport{dev: dev, bus: bus, sampleRate: cfg.SampleRate}, nil
}

func (t *ADS1115Transport) Read(address uint16) (uint16, error) {
	msb, lsb, err := t.configForChannel(int(address))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	// write config to start a single conversion
	if err := t.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, &Error{Address: address, Err: err}
	}
	// wait for conversion (simple sleep)
	delayMs := int(1000.0/float64(t.sampleRate)) + 2
	time.Sleep(time.Duration(delayMs) * time.Millisecond)
	readBuf := make([]byte, 2)
	if err := t.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, &Error{Address: address, Err: err}
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	if raw < 0 {
		// single-ended inputs never go negative; clamp noise below ground
		raw = 0
	}
	return uint16(raw), nil
}

func (t *ADS1115Transport) Close() error {
	if t.bus != nil {
		return t.bus.Close()
	}
	return nil
}

func (t *ADS1115Transport) configForChannel(channel int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch t.sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
