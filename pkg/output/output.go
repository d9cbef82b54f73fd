package output

import "github.com/hydropulse/hydropulse/pkg/sensor"

// Output publishes live acquisition cycles to a sink (console, MQTT, ...).
type Output interface {
	Publish(sensor.Cycle) error
	Close() error
}

// constructors live in subpackages
