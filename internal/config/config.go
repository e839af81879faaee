package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantloop/qloop/internal/observ"
)

// Queue controls the bounded queue between ingestion and decision.
type Queue struct {
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"` // drop_newest | drop_oldest
}

// Risk sets the safety-gate exposure limits.
type Risk struct {
	ExposureCapUSD float64            `yaml:"exposure_cap_usd"`
	SymbolCapsUSD  map[string]float64 `yaml:"symbol_caps_usd"`
}

// Burst shapes the synthetic load burst, in simulated seconds.
type Burst struct {
	StartS     int `yaml:"start_s"`
	LenS       int `yaml:"len_s"`
	Multiplier int `yaml:"multiplier"`
}

// Engine tunes event cadence and the stand-in strategy.
type Engine struct {
	EventIntervalUs int     `yaml:"event_interval_us"`
	WindowBars      int     `yaml:"window_bars"`
	MinBars         int     `yaml:"min_bars"`
	NotionalUSD     float64 `yaml:"notional_usd"`
	CostBaseUs      int     `yaml:"cost_base_us"`
	CostJitterUs    int     `yaml:"cost_jitter_us"`
}

// Root is the full run configuration.
type Root struct {
	Seed      int64         `yaml:"seed"`
	DurationS int           `yaml:"duration_s"`
	Fixtures  string        `yaml:"fixtures"`
	ReportDir string        `yaml:"report_dir"`
	Queue     Queue         `yaml:"queue"`
	Risk      Risk          `yaml:"risk"`
	Burst     Burst         `yaml:"burst"`
	Engine    Engine        `yaml:"engine"`
	Logging   observ.Config `yaml:"logging"`
}

// Default returns the demo configuration: seed 7, 30 simulated seconds, the
// bundled fixture set, and the standard burst window.
func Default() Root {
	var c Root
	c.applyDefaults()
	return c
}

// Load reads a YAML config file, filling unset fields with defaults.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Root) applyDefaults() {
	if c.Seed == 0 {
		c.Seed = 7
	}
	if c.DurationS == 0 {
		c.DurationS = 30
	}
	if c.Fixtures == "" {
		c.Fixtures = "fixtures/minute_bars.csv"
	}
	if c.ReportDir == "" {
		c.ReportDir = "out"
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 64
	}
	if c.Queue.Policy == "" {
		c.Queue.Policy = "drop_newest"
	}
	if c.Risk.ExposureCapUSD == 0 {
		c.Risk.ExposureCapUSD = 1000
	}
	if c.Burst.StartS == 0 {
		c.Burst.StartS = 8
	}
	if c.Burst.LenS == 0 {
		c.Burst.LenS = 4
	}
	if c.Burst.Multiplier == 0 {
		c.Burst.Multiplier = 4
	}
	if c.Engine.EventIntervalUs == 0 {
		c.Engine.EventIntervalUs = 1000
	}
	if c.Engine.WindowBars == 0 {
		c.Engine.WindowBars = 10
	}
	if c.Engine.MinBars == 0 {
		c.Engine.MinBars = 5
	}
	if c.Engine.NotionalUSD == 0 {
		c.Engine.NotionalUSD = 1000
	}
	if c.Engine.CostBaseUs == 0 {
		c.Engine.CostBaseUs = 250
	}
	if c.Engine.CostJitterUs == 0 {
		c.Engine.CostJitterUs = 200
	}
}

// Validate rejects configurations the pipeline cannot run with. These are
// the only fatal errors; everything at run time is counted, not thrown.
func (c Root) Validate() error {
	if c.DurationS <= 0 {
		return fmt.Errorf("duration must be positive, got %d", c.DurationS)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.Policy != "drop_newest" && c.Queue.Policy != "drop_oldest" {
		return fmt.Errorf("unknown backpressure policy %q", c.Queue.Policy)
	}
	if c.Risk.ExposureCapUSD <= 0 {
		return fmt.Errorf("exposure cap must be positive, got %v", c.Risk.ExposureCapUSD)
	}
	if c.Engine.EventIntervalUs <= 0 {
		return fmt.Errorf("event interval must be positive, got %d", c.Engine.EventIntervalUs)
	}
	if c.Burst.Multiplier < 1 {
		return fmt.Errorf("burst multiplier must be at least 1, got %d", c.Burst.Multiplier)
	}
	return nil
}
