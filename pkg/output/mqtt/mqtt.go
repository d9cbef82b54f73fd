package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/output"
	"github.com/hydropulse/hydropulse/pkg/sensor"
)

const (
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "hydropulse-client"
	perChannelTopicFmt = "hydropulse/channel/%d"
)

type MQTTOutput struct {
	client mqtt.Client
	topic  string
	names  []string
}

func NewMQTT(cfg config.MQTTConfig, channels []config.ChannelConfig) (output.Output, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}
	return &MQTTOutput{client: client, topic: cfg.Topic, names: names}, nil
}

func (m *MQTTOutput) Publish(cycle sensor.Cycle) error {
	for i, v := range cycle.Values {
		// per-channel topic: an explicit %d formatter in the configured
		// topic wins, otherwise the default layout
		topic := m.topic
		if strings.Contains(topic, "%d") {
			topic = fmt.Sprintf(topic, i)
		}
		if topic == "" {
			topic = fmt.Sprintf(perChannelTopicFmt, i)
		}

		payload := map[string]interface{}{
			"value":     nil,
			"ok":        v.OK,
			"timestamp": cycle.Timestamp.UnixMilli(),
		}
		if v.OK {
			payload["value"] = v.V
		}
		if i < len(m.names) {
			payload["name"] = m.names[i]
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		token := m.client.Publish(topic, 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
