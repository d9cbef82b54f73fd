package main

import (
	"log/slog"
	"testing"

	"github.com/hydropulse/hydropulse/pkg/config"
)

func TestOpenTransportSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TransportType = "simulation"
	tr, err := openTransport(cfg)
	if err != nil {
		t.Fatalf("openTransport: %v", err)
	}
	defer tr.Close()
	if _, err := tr.Read(0); err != nil {
		t.Fatalf("sim read: %v", err)
	}
}

func TestOpenTransportUnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TransportType = "carrier-pigeon"
	if _, err := openTransport(cfg); err == nil {
		t.Fatalf("expected error for unknown transport type")
	}
}

func TestInitOutputsConsole(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Outputs = []config.OutputConfig{{Type: "console"}, {Type: "bogus"}}
	outs, err := initOutputs(&cfg, slog.Default())
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("outputs len: %d", len(outs))
	}
}
