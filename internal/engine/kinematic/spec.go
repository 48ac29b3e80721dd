package kinematic

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Spec is the vessel model file.
type Spec struct {
	Name       string  `yaml:"name"`
	Mass       float64 `yaml:"mass"`        // kg, surge and sway
	YawInertia float64 `yaml:"yaw_inertia"` // kg m^2
	Damping    Damping `yaml:"damping"`
	// WindCoefficient scales wind speed squared into a drift force, N/(m/s)^2.
	WindCoefficient float64 `yaml:"wind_coefficient"`
	// ReferenceOffset is the distance from the reported reference point to the
	// centre of gravity along the heading, m.
	ReferenceOffset float64 `yaml:"reference_offset"`
	TimeStep        float64 `yaml:"time_step"` // s
	TelemetryAddr   string  `yaml:"telemetry_addr"`
	// RealtimeFactor paces steps taken without a telemetry peer, in simulated
	// seconds per wall second. Zero runs them unpaced.
	RealtimeFactor float64 `yaml:"realtime_factor"`
	// PollInterval is how often progress is reported while waiting for a
	// force frame.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Damping holds linear damping coefficients.
type Damping struct {
	Surge float64 `yaml:"surge"` // N/(m/s)
	Sway  float64 `yaml:"sway"`  // N/(m/s)
	Yaw   float64 `yaml:"yaw"`   // N m/(rad/s)
}

const (
	defaultReferenceOffset = 65.69
	defaultTimeStep        = 0.05
	defaultPollInterval    = 50 * time.Millisecond
	defaultTelemetryAddr   = "127.0.0.1:2222"
)

// LoadSpec reads and validates a model file.
func LoadSpec(path string) (*Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var s Spec
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &s, nil
}

func (s *Spec) applyDefaults() {
	if s.ReferenceOffset == 0 {
		s.ReferenceOffset = defaultReferenceOffset
	}
	if s.TimeStep == 0 {
		s.TimeStep = defaultTimeStep
	}
	if s.PollInterval == 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.TelemetryAddr == "" {
		s.TelemetryAddr = defaultTelemetryAddr
	}
}

func (s *Spec) validate() error {
	if s.Mass <= 0 {
		return errors.New("mass must be positive")
	}
	if s.YawInertia <= 0 {
		return errors.New("yaw_inertia must be positive")
	}
	if s.TimeStep <= 0 {
		return errors.New("time_step must be positive")
	}
	if s.Damping.Surge < 0 || s.Damping.Sway < 0 || s.Damping.Yaw < 0 {
		return errors.New("damping must not be negative")
	}
	if s.RealtimeFactor < 0 {
		return errors.New("realtime_factor must not be negative")
	}
	return nil
}
