package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Risk.HighThreshold != 0.75 || cfg.Risk.MediumThreshold != 0.45 {
		t.Fatalf("tier thresholds: %+v", cfg.Risk)
	}
	if cfg.Travel.BaseSpeedKmh != 25.0 {
		t.Fatalf("base speed: %v", cfg.Travel.BaseSpeedKmh)
	}
	if cfg.Anneal.WOnce != 250 || cfg.Anneal.StiffenFactor != 4 {
		t.Fatalf("anneal weights: %+v", cfg.Anneal)
	}
	if cfg.KPI.FuelLPerKm != 0.35 || cfg.KPI.CO2KgPerL != 2.68 {
		t.Fatalf("kpi factors: %+v", cfg.KPI)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg != Default() {
		t.Fatal("missing file must yield defaults")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte("risk:\n  highThreshold: 0.8\nanneal:\n  reads: 500\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.HighThreshold != 0.8 {
		t.Fatalf("overlay: %v", cfg.Risk.HighThreshold)
	}
	if cfg.Anneal.Reads != 500 {
		t.Fatalf("overlay anneal: %+v", cfg.Anneal)
	}
	// Untouched keys keep their defaults.
	if cfg.Risk.MediumThreshold != 0.45 {
		t.Fatalf("default lost: %v", cfg.Risk.MediumThreshold)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("risk: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must error")
	}
}

func TestValidateRejections(t *testing.T) {
	cfg := Default()
	cfg.Risk.MediumThreshold = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("inverted thresholds accepted")
	}

	cfg = Default()
	cfg.Travel.BaseSpeedKmh = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero speed accepted")
	}

	cfg = Default()
	cfg.Anneal.StiffenFactor = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("stiffen factor below 1 accepted")
	}

	cfg = Default()
	cfg.Risk.WGas = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative weight accepted")
	}
}
