package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the full tuning surface for a planning cycle. It is loaded once
// and passed by value into the engines; concurrent cycles may carry different
// tunings safely.
type Config struct {
	Risk    RiskConfig    `yaml:"risk"`
	Travel  TravelConfig  `yaml:"travel"`
	Anneal  AnnealConfig  `yaml:"anneal"`
	Greedy  GreedyConfig  `yaml:"greedy"`
	KPI     KPIConfig     `yaml:"kpi"`
	Routing RoutingConfig `yaml:"routing"`
}

// RiskConfig tunes the fusion engine. Weights are non-negative; the engine
// accepts any weight set without re-normalizing.
type RiskConfig struct {
	WBase            float64 `yaml:"wBase"`
	WGas             float64 `yaml:"wGas"`
	WEnv             float64 `yaml:"wEnv"`
	ZStart           float64 `yaml:"zStart"`
	ZScale           float64 `yaml:"zScale"`
	HighThreshold    float64 `yaml:"highThreshold"`
	MediumThreshold  float64 `yaml:"mediumThreshold"`
	TTOCriticalHours float64 `yaml:"ttoCriticalHours"`
}

type TravelConfig struct {
	BaseSpeedKmh float64 `yaml:"baseSpeedKmh"`
	// Points sampled per leg for display polylines.
	PolylineSteps int `yaml:"polylineSteps"`
}

// GreedyConfig tunes the baseline router instance assembly.
type GreedyConfig struct {
	// SafetyMarginMin is subtracted from each truck's shift budget.
	SafetyMarginMin float64 `yaml:"safetyMarginMin"`
}

// AnnealConfig tunes the QUBO formulation and sampler dispatch. The penalty
// weights were tuned empirically; there is no closed-form derivation.
type AnnealConfig struct {
	TopN      int           `yaml:"topN"`
	MaxTrucks int           `yaml:"maxTrucks"`
	Reads     int           `yaml:"reads"`
	Timeout   time.Duration `yaml:"timeout"`

	WPriority float64 `yaml:"wPriority"`
	WOnce     float64 `yaml:"wOnce"`
	WCap      float64 `yaml:"wCap"`
	WTravel   float64 `yaml:"wTravel"`
	WLate     float64 `yaml:"wLate"`
	WClosure  float64 `yaml:"wClosure"`

	// StiffenFactor scales WOnce and WCap for the single repair retry after
	// an infeasible decode.
	StiffenFactor float64 `yaml:"stiffenFactor"`
}

type KPIConfig struct {
	FuelLPerKm float64 `yaml:"fuelLPerKm"`
	CO2KgPerL  float64 `yaml:"co2KgPerL"`
}

type RoutingConfig struct {
	ShiftDurationMin float64 `yaml:"shiftDurationMin"`
	// Rolling sensor-history window retained per tank, in samples.
	HistoryWindow int `yaml:"historyWindow"`
}

// Default returns the stock tuning.
func Default() Config {
	return Config{
		Risk: RiskConfig{
			WBase:            1.0,
			WGas:             0.20,
			WEnv:             0.10,
			ZStart:           2.0,
			ZScale:           1.0,
			HighThreshold:    0.75,
			MediumThreshold:  0.45,
			TTOCriticalHours: 24.0,
		},
		Travel: TravelConfig{
			BaseSpeedKmh:  25.0,
			PolylineSteps: 8,
		},
		Greedy: GreedyConfig{
			SafetyMarginMin: 0,
		},
		Anneal: AnnealConfig{
			TopN:          10,
			MaxTrucks:     0,
			Reads:         3000,
			Timeout:       10 * time.Second,
			WPriority:     60.0,
			WOnce:         250.0,
			WCap:          6.0,
			WTravel:       1.0,
			WLate:         2.0,
			WClosure:      50.0,
			StiffenFactor: 4.0,
		},
		KPI: KPIConfig{
			FuelLPerKm: 0.35,
			CO2KgPerL:  2.68,
		},
		Routing: RoutingConfig{
			ShiftDurationMin: 480,
			HistoryWindow:    192,
		},
	}
}

// Load reads the YAML tuning file at path, layered over defaults. A missing
// path yields the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv loads the config named by CONFIG_PATH, or defaults.
func FromEnv() (Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// Validate rejects tunings the engines cannot work with.
func (c Config) Validate() error {
	r := c.Risk
	if r.WBase < 0 || r.WGas < 0 || r.WEnv < 0 {
		return fmt.Errorf("risk weights must be >= 0")
	}
	if r.MediumThreshold > r.HighThreshold {
		return fmt.Errorf("mediumThreshold %v exceeds highThreshold %v", r.MediumThreshold, r.HighThreshold)
	}
	if c.Travel.BaseSpeedKmh <= 0 {
		return fmt.Errorf("baseSpeedKmh must be > 0")
	}
	a := c.Anneal
	if a.WOnce < 0 || a.WCap < 0 || a.WPriority < 0 || a.WClosure < 0 {
		return fmt.Errorf("anneal weights must be >= 0")
	}
	if a.StiffenFactor < 1 {
		return fmt.Errorf("stiffenFactor must be >= 1")
	}
	return nil
}
