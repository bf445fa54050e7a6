package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes one stress run. It can be loaded from a YAML file and
// individual fields overridden from the command line.
type Scenario struct {
	Duration time.Duration `yaml:"duration"`
	Entities int           `yaml:"entities"`
	Workers  int           `yaml:"workers"`
	// Churn is how many entities are spawned and migrated per frame.
	Churn int    `yaml:"churn"`
	Seed  uint64 `yaml:"seed"`
	// Profile is "", "cpu" or "mem".
	Profile        string `yaml:"profile"`
	GCPauseMetrics bool   `yaml:"gc_pause_metrics"`
}

var validProfiles = []string{"", "cpu", "mem"}

// DefaultScenario returns the scenario used when no config file is given.
func DefaultScenario() Scenario {
	return Scenario{
		Duration: 10 * time.Second,
		Entities: 10000,
		Workers:  runtime.GOMAXPROCS(0),
		Churn:    100,
		Seed:     1,
	}
}

// LoadScenario reads a YAML scenario from path. Fields the file omits keep
// their DefaultScenario values.
func LoadScenario(path string) (Scenario, error) {
	scenario := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario, fmt.Errorf("reading scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return scenario, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return scenario, scenario.Validate()
}

func (s Scenario) Validate() error {
	var errs []error
	if s.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %s", s.Duration))
	}
	if s.Entities < 0 {
		errs = append(errs, fmt.Errorf("entities must not be negative, got %d", s.Entities))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", s.Workers))
	}
	if s.Churn < 0 {
		errs = append(errs, fmt.Errorf("churn must not be negative, got %d", s.Churn))
	}
	valid := false
	for _, p := range validProfiles {
		if p == s.Profile {
			valid = true
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("invalid profile %q: must be one of cpu, mem", s.Profile))
	}
	return errors.Join(errs...)
}
