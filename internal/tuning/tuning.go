package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the operational config: streaming budgets, geometry radii, and
// generator shape knobs. Zero values fall back to engine defaults.
type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	GenerationRadius int `yaml:"generation_radius"` // regions
	RemovalBuffer    int `yaml:"removal_buffer"`    // regions

	BuildsPerTick   int `yaml:"builds_per_tick"`
	RemovalsPerTick int `yaml:"removals_per_tick"`
	BakesPerTick    int `yaml:"bakes_per_tick"`

	GenWorkers    int `yaml:"gen_workers"`
	LightWorkers  int `yaml:"light_workers"`
	MaxBuildQueue int `yaml:"max_build_queue"`
	PoolCapacity  int `yaml:"pool_capacity"`

	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
	StatsEveryTicks   int `yaml:"stats_every_ticks"`

	Worldgen Worldgen `yaml:"worldgen"`
}

type Worldgen struct {
	SurfaceLevel          int `yaml:"surface_level"`
	SurfaceAmp            int `yaml:"surface_amp"`
	OreProbScalePermille  int `yaml:"ore_prob_scale_permille"`
	CaveProbScalePermille int `yaml:"cave_prob_scale_permille"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
