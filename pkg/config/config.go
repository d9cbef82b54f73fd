package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Device conversion constants for the stock field unit. Overridable per
// deployment through the config file.
const (
	DefaultADCMax           = 4095
	DefaultFullScaleVoltage = 10.0
)

type ChannelConfig struct {
	// Channel is the 0-based holding register address of the input.
	Channel     int     `json:"channel"`
	Name        string  `json:"name"`
	Scale       float64 `json:"scale"`
	Calibration float64 `json:"calibration,omitempty"`
	Offset      float64 `json:"offset,omitempty"`
	Enabled     bool    `json:"enabled"`
}

type SerialConfig struct {
	Device    string `json:"device"`
	BaudRate  int    `json:"baud_rate"`
	DataBits  int    `json:"data_bits"`
	Parity    string `json:"parity"`
	StopBits  int    `json:"stop_bits"`
	SlaveID   byte   `json:"slave_id"`
	TimeoutMs int    `json:"timeout_ms"`
}

type I2CConfig struct {
	Bus        string `json:"bus"`
	Address    int    `json:"address"`
	SampleRate int    `json:"sample_rate"`
}

type MQTTConfig struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

type OutputConfig struct {
	Type string      `json:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty"`
}

type Config struct {
	// TransportType selects the register source: modbus|ads1115|simulation.
	TransportType string       `json:"transport"`
	Serial        SerialConfig `json:"serial"`
	I2C           I2CConfig    `json:"i2c"`

	ADCMax           int     `json:"adc_max"`
	FullScaleVoltage float64 `json:"full_scale_voltage"`

	PollIntervalMs int `json:"poll_interval_ms"`
	ReadRetries    int `json:"read_retries"`
	BackoffBaseMs  int `json:"backoff_base_ms"`
	WindowSec      int `json:"window_sec"`
	QueueCapacity  int `json:"queue_capacity"`
	AutosaveSec    int `json:"autosave_sec"`

	ExportDir string          `json:"export_dir"`
	Channels  []ChannelConfig `json:"channels"`
	Outputs   []OutputConfig  `json:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		TransportType: "modbus",
		Serial: SerialConfig{
			Device:    "/dev/ttyUSB0",
			BaudRate:  9600,
			DataBits:  8,
			Parity:    "N",
			StopBits:  1,
			SlaveID:   1,
			TimeoutMs: 500,
		},
		I2C:              I2CConfig{Bus: "2", Address: 0x48, SampleRate: 128},
		ADCMax:           DefaultADCMax,
		FullScaleVoltage: DefaultFullScaleVoltage,
		PollIntervalMs:   250,
		ReadRetries:      3,
		BackoffBaseMs:    100,
		WindowSec:        300,
		QueueCapacity:    64,
		AutosaveSec:      0,
		ExportDir:        "logs",
		Channels: []ChannelConfig{
			{Channel: 0, Name: "Main Pressure", Scale: 600, Offset: 2, Enabled: true},
			{Channel: 1, Name: "Charge Pressure", Scale: 600, Offset: 2, Enabled: true},
			{Channel: 2, Name: "Flow", Scale: 1150, Calibration: 1.1, Offset: 2, Enabled: true},
			{Channel: 3, Name: "RPM", Scale: 1000, Offset: 2, Enabled: true},
		},
		Outputs: []OutputConfig{{Type: "console"}},
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	cfgPath := flag.String("config", "", "Path to JSON config file")
	flagTransport := flag.String("transport", "", "transport type: modbus|ads1115|simulation")
	flagSerialDev := flag.String("serial-device", "", "serial device (e.g. /dev/ttyUSB0)")
	flagBaud := flag.Int("baud-rate", -1, "serial baud rate")
	flagSlaveID := flag.Int("slave-id", -1, "Modbus slave id")
	flagI2CBus := flag.String("i2c-bus", "", "I2C bus (e.g. '2' -> /dev/i2c-2)")
	flagI2CAddr := flag.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagPoll := flag.Int("poll-interval-ms", -1, "Poll interval in ms")
	flagWindow := flag.Int("window-sec", -1, "Rolling window duration in seconds")
	flagAutosave := flag.Int("autosave-sec", -1, "Autosave interval in seconds (0 disables)")
	flagExportDir := flag.String("export-dir", "", "Directory for exported spreadsheets")
	flagOutputs := flag.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagMQTTServer := flag.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := flag.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := flag.String("mqtt-pass", "", "MQTT password")
	flagClientID := flag.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := flag.String("mqtt-topic", "", "MQTT topic base")

	flag.Parse()

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagTransport != "" {
		cfg.TransportType = *flagTransport
	}
	if *flagSerialDev != "" {
		cfg.Serial.Device = *flagSerialDev
	}
	if *flagBaud != -1 {
		cfg.Serial.BaudRate = *flagBaud
	}
	if *flagSlaveID != -1 {
		cfg.Serial.SlaveID = byte(*flagSlaveID)
	}
	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddr != "" {
		v, err := parseIntOrHex(*flagI2CAddr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagPoll != -1 {
		cfg.PollIntervalMs = *flagPoll
	}
	if *flagWindow != -1 {
		cfg.WindowSec = *flagWindow
	}
	if *flagAutosave != -1 {
		cfg.AutosaveSec = *flagAutosave
	}
	if *flagExportDir != "" {
		cfg.ExportDir = *flagExportDir
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		// Apply MQTT flags to all mqtt outputs; if none exist, create one.
		applied := false
		for i := range cfg.Outputs {
			if strings.EqualFold(cfg.Outputs[i].Type, "mqtt") {
				applyMQTTFlags(&cfg.Outputs[i], *flagMQTTServer, *flagMQTTUser, *flagMQTTPass, *flagClientID, *flagTopic)
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: "mqtt"}
			applyMQTTFlags(&out, *flagMQTTServer, *flagMQTTUser, *flagMQTTPass, *flagClientID, *flagTopic)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Normalize fills per-channel defaults the config file may omit.
func (c *Config) Normalize() {
	for i := range c.Channels {
		if c.Channels[i].Calibration == 0 {
			c.Channels[i].Calibration = 1
		}
	}
	if c.ADCMax == 0 {
		c.ADCMax = DefaultADCMax
	}
	if c.FullScaleVoltage == 0 {
		c.FullScaleVoltage = DefaultFullScaleVoltage
	}
}

func (c *Config) Validate() error {
	if c.PollIntervalMs <= 0 {
		return errors.New("poll-interval-ms must be > 0")
	}
	if c.WindowSec <= 0 {
		return errors.New("window-sec must be > 0")
	}
	if c.ReadRetries < 1 {
		return errors.New("read-retries must be >= 1")
	}
	if c.BackoffBaseMs <= 0 {
		return errors.New("backoff-base-ms must be > 0")
	}
	if c.ADCMax <= 0 || c.FullScaleVoltage <= 0 {
		return errors.New("adc_max and full_scale_voltage must be > 0")
	}
	seen := map[int]bool{}
	for _, ch := range c.Channels {
		if ch.Channel < 0 {
			return fmt.Errorf("channel %q: address must be >= 0", ch.Name)
		}
		if seen[ch.Channel] {
			return fmt.Errorf("duplicate channel address %d", ch.Channel)
		}
		seen[ch.Channel] = true
		if ch.Scale <= 0 {
			return fmt.Errorf("channel %q: scale must be > 0", ch.Name)
		}
		if ch.Calibration <= 0 {
			return fmt.Errorf("channel %q: calibration must be > 0", ch.Name)
		}
		if ch.Offset < 0 {
			return fmt.Errorf("channel %q: offset must be >= 0", ch.Name)
		}
	}
	return nil
}

// EnabledChannels returns the channels participating in acquisition, in
// configuration order.
func (c *Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowSec) * time.Second
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func applyMQTTFlags(out *OutputConfig, server, user, pass, clientID, topic string) {
	if out.MQTT == nil {
		out.MQTT = &MQTTConfig{}
	}
	if server != "" {
		out.MQTT.Server = server
	}
	if user != "" {
		out.MQTT.Username = user
	}
	if pass != "" {
		out.MQTT.Password = pass
	}
	if clientID != "" {
		out.MQTT.ClientID = clientID
	}
	if topic != "" {
		out.MQTT.Topic = topic
	}
}
