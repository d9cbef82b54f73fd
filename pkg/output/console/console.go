package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/output"
	"github.com/hydropulse/hydropulse/pkg/sensor"
)

type ConsoleOutput struct {
	names []string
}

func NewConsole(channels []config.ChannelConfig) output.Output {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}
	return &ConsoleOutput{names: names}
}

func (c *ConsoleOutput) Publish(cycle sensor.Cycle) error {
	parts := make([]string, 0, len(cycle.Values))
	for i, v := range cycle.Values {
		name := fmt.Sprintf("ch%d", i)
		if i < len(c.names) {
			name = c.names[i]
		}
		if v.OK {
			parts = append(parts, fmt.Sprintf("%s=%.2f", name, v.V))
		} else {
			parts = append(parts, fmt.Sprintf("%s=-", name))
		}
	}
	fmt.Printf("%s %s\n", cycle.Timestamp.Format(time.RFC3339), strings.Join(parts, " "))
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
