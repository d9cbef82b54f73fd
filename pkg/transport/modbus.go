package transport

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/hydropulse/hydropulse/pkg/config"
)

// ModbusTransport reads holding registers from an RTU slave over a serial
// line. One register per channel, 0-based addressing.
type ModbusTransport struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

func NewModbus(cfg config.SerialConfig) (*ModbusTransport, error) {
	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = cfg.SlaveID
	h.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	return &ModbusTransport{handler: h, client: modbus.NewClient(h)}, nil
}

func (t *ModbusTransport) Read(address uint16) (uint16, error) {
	res, err := t.client.ReadHoldingRegisters(address, 1)
	if err != nil {
		return 0, &Error{Address: address, Err: err}
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("%w: register %d returned %d bytes", ErrBadPayload, address, len(res))
	}
	return binary.BigEndian.Uint16(res), nil
}

func (t *ModbusTransport) Close() error {
	return t.handler.Close()
}
