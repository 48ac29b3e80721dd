package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rlsim-bridge/internal/wire"
)

// Episode defines one training episode: where the vessel starts, the sea
// state, and a schedule of commanded forces.
type Episode struct {
	Name        string           `yaml:"name,omitempty"`
	Description string           `yaml:"description,omitempty"`
	Pose        wire.Pose        `yaml:"pose"`        // heading in degrees
	Environment wire.Environment `yaml:"environment"` // angles in degrees
	Duration    float64          `yaml:"duration"`    // simulated seconds
	Phases      []Phase          `yaml:"phases"`
}

// Phase holds a constant force for a number of steps.
type Phase struct {
	Name  string     `yaml:"name"`
	Steps int        `yaml:"steps"`
	Force wire.Force `yaml:"force"`
}

// Load reads a YAML episode definition from disk.
func Load(path string) (*Episode, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read episode: %w", err)
	}
	var ep Episode
	if err := yaml.Unmarshal(b, &ep); err != nil {
		return nil, fmt.Errorf("parse episode: %w", err)
	}
	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("episode %s: %w", path, err)
	}
	return &ep, nil
}

// Validate reports an episode that cannot be run.
func (e *Episode) Validate() error {
	if e.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if len(e.Phases) == 0 {
		return errors.New("at least one phase is required")
	}
	for i, p := range e.Phases {
		if p.Steps <= 0 {
			return fmt.Errorf("phase %d (%s): steps must be positive", i, p.Name)
		}
	}
	return nil
}

// Params returns the start parameters for the episode.
func (e *Episode) Params() wire.SimulationParameters {
	return wire.SimulationParameters{Pose: e.Pose, Environment: e.Environment, Duration: e.Duration}
}

// Steps returns the total number of steps over all phases.
func (e *Episode) Steps() int {
	n := 0
	for _, p := range e.Phases {
		n += p.Steps
	}
	return n
}

// PhaseAt returns the phase active at step (0-based). ok is false past the
// last phase.
func (e *Episode) PhaseAt(step int) (p Phase, ok bool) {
	if step < 0 {
		return Phase{}, false
	}
	for _, p := range e.Phases {
		if step < p.Steps {
			return p, true
		}
		step -= p.Steps
	}
	return Phase{}, false
}
