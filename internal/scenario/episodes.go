package scenario

import "rlsim-bridge/internal/wire"

// BuiltIn returns predefined episodes.
func BuiltIn() map[string]Episode {
	return map[string]Episode{
		"calm": {
			Name:        "Calm",
			Description: "Flat water and no current; the vessel accelerates ahead then coasts.",
			Pose:        wire.Pose{X: 0, Y: 0, Heading: 0},
			Environment: wire.Environment{WaveHs: 0, WaveTz: 5, WaveDir: 0, CurrentSpeed: 0, CurrentDir: 0, WindSpeed: 0, WindDir: 0},
			Duration:    300,
			Phases: []Phase{
				{Name: "ahead", Steps: 50, Force: wire.Force{X: 200000}},
				{Name: "coast", Steps: 50},
			},
		},
		"head-seas": {
			Name:        "Head Seas",
			Description: "Waves and wind from dead ahead while holding course and speed.",
			Pose:        wire.Pose{X: 0, Y: 0, Heading: 90},
			Environment: wire.Environment{WaveHs: 2.5, WaveTz: 8, WaveDir: 90, CurrentSpeed: 0.3, CurrentDir: 270, WindSpeed: 12, WindDir: 90},
			Duration:    600,
			Phases: []Phase{
				{Name: "ahead", Steps: 80, Force: wire.Force{X: 350000}},
				{Name: "hold", Steps: 40, Force: wire.Force{X: 150000}},
			},
		},
		"beam-current": {
			Name:        "Beam Current",
			Description: "A strong current on the beam; the policy counters drift with sway force and yaw moment.",
			Pose:        wire.Pose{X: 100, Y: -50, Heading: 10},
			Environment: wire.Environment{WaveHs: 1.5, WaveTz: 5, WaveDir: 180, CurrentSpeed: 1.2, CurrentDir: 100, WindSpeed: 5, WindDir: 180},
			Duration:    1000,
			Phases: []Phase{
				{Name: "drift", Steps: 30},
				{Name: "counter", Steps: 60, Force: wire.Force{X: 100000, Y: -80000, N: 2.5e6}},
				{Name: "settle", Steps: 30, Force: wire.Force{X: 100000}},
			},
		},
	}
}
