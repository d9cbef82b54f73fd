package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/hydropulse/hydropulse/pkg/config"
	"github.com/hydropulse/hydropulse/pkg/export"
	"github.com/hydropulse/hydropulse/pkg/output"
	"github.com/hydropulse/hydropulse/pkg/output/console"
	"github.com/hydropulse/hydropulse/pkg/output/mqtt"
	"github.com/hydropulse/hydropulse/pkg/sensor"
	"github.com/hydropulse/hydropulse/pkg/store"
	"github.com/hydropulse/hydropulse/pkg/transport"
	"github.com/hydropulse/hydropulse/pkg/worker"
)

func main() {
	log := slog.New(tint.NewHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	tr, err := openTransport(cfg)
	if err != nil {
		log.Error("transport open failed", "transport", cfg.TransportType, "error", err)
		os.Exit(1)
	}

	reader, err := sensor.NewReader(tr, cfg, log)
	if err != nil {
		log.Error("reader init failed", "error", err)
		os.Exit(1)
	}

	st := store.New(reader.Channels(), cfg.Window(), log)
	exp := export.NewXLSX(cfg.ExportDir, log)
	outputs, err := initOutputs(&cfg, log)
	if err != nil {
		log.Error("output init failed", "error", err)
		reader.Disconnect()
		os.Exit(1)
	}

	w := worker.New(reader, cfg.PollInterval(), worker.Options{
		QueueCapacity: cfg.QueueCapacity,
		Logger:        log,
	})
	if err := w.Start(); err != nil {
		log.Error("worker start failed", "error", err)
		reader.Disconnect()
		os.Exit(1)
	}
	log.Info("acquisition session started",
		"session", st.Session(),
		"transport", cfg.TransportType,
		"channels", len(reader.Channels()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var autosave <-chan time.Time
	if cfg.AutosaveSec > 0 {
		t := time.NewTicker(time.Duration(cfg.AutosaveSec) * time.Second)
		defer t.Stop()
		autosave = t.C
	}

	events := w.Events()
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if ev.Err != nil {
				log.Warn("cycle error", "error", ev.Err)
				continue
			}
			st.Append(ev.Cycle.Values, ev.Cycle.Timestamp)
			for _, out := range outputs {
				if err := out.Publish(ev.Cycle); err != nil {
					log.Warn("publish failed", "error", err)
				}
			}
		case <-autosave:
			go logFlush(log, st.FlushRecent(exp))
		case <-sigCh:
			log.Info("shutdown requested")
			break loop
		}
	}

	if err := w.Stop(); err != nil {
		log.Warn("worker stop", "error", err)
	}
	logFlush(log, st.FlushRecent(exp))
	logFlush(log, st.FlushSession(exp))
	for _, out := range outputs {
		_ = out.Close()
	}
	reader.Disconnect()
}

func openTransport(cfg config.Config) (transport.Transport, error) {
	switch cfg.TransportType {
	case "modbus":
		return transport.NewModbus(cfg.Serial)
	case "ads1115":
		return transport.NewADS1115(cfg.I2C)
	case "simulation":
		return transport.NewSim(cfg.ADCMax, 0), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.TransportType)
	}
}

func initOutputs(cfg *config.Config, log *slog.Logger) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	channels := cfg.EnabledChannels()
	for _, oc := range cfg.Outputs {
		switch oc.Type {
		case "console":
			outs = append(outs, console.NewConsole(channels))
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc, channels)
			if err != nil {
				return nil, err
			}
			outs = append(outs, o)
		default:
			log.Warn("ignoring unknown output type", "type", oc.Type)
		}
	}
	return outs, nil
}

func logFlush(log *slog.Logger, res <-chan error) {
	if err := <-res; err != nil {
		log.Error("flush failed", "error", err)
	}
}
