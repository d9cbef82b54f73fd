// Package transport abstracts the register source the acquisition pipeline
// samples from. Implementations cover Modbus RTU field units, an onboard
// ADS1115 ADC and a simulator for bench use.
package transport

import (
	"errors"
	"fmt"
)

// Transport reads one raw register value per call. Implementations must
// apply their own bounded read timeout so callers never block indefinitely.
type Transport interface {
	Read(address uint16) (uint16, error)
	Close() error
}

// ErrBadPayload marks a response that arrived but cannot be interpreted as a
// register value. Unlike ordinary transport failures it is not retryable.
var ErrBadPayload = errors.New("unreadable register payload")

// Error wraps a transport-level failure (no response or a protocol fault)
// for a single register read.
type Error struct {
	Address uint16
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: read register %d: %v", e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
