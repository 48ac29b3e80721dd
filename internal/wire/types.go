// Frame value types shared by the control and telemetry channels
package wire

import "fmt"

// Pose is a planar vessel pose. On the control channel Heading is in
// degrees; a Pose returned by DecodePose carries Heading in radians.
type Pose struct {
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Heading float64 `json:"heading" yaml:"heading"`
}

// Environment describes the sea state applied to a run. Directions are degrees.
type Environment struct {
	WaveHs       float64 `json:"wave_hs" yaml:"wave_hs"`             // significant wave height, m
	WaveTz       float64 `json:"wave_tz" yaml:"wave_tz"`             // zero-crossing period, s
	WaveDir      float64 `json:"wave_dir" yaml:"wave_dir"`           // deg
	CurrentSpeed float64 `json:"current_speed" yaml:"current_speed"` // m/s
	CurrentDir   float64 `json:"current_dir" yaml:"current_dir"`     // deg
	WindSpeed    float64 `json:"wind_speed" yaml:"wind_speed"`       // m/s
	WindDir      float64 `json:"wind_dir" yaml:"wind_dir"`           // deg
}

// SimulationParameters is everything a StartRun frame carries.
type SimulationParameters struct {
	Pose        Pose        `json:"pose" yaml:"pose"`
	Environment Environment `json:"environment" yaml:"environment"`
	Duration    float64     `json:"duration" yaml:"duration"` // stage duration, s
}

// Force is the control force sent to the simulator each tick.
type Force struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	N float64 `json:"n" yaml:"n"` // yaw moment
}

// CommandKind tags a ControlFrame.
type CommandKind int

const (
	StartRun CommandKind = iota + 1
	StopRun
	CloseConnection
)

func (k CommandKind) String() string {
	switch k {
	case StartRun:
		return "start"
	case StopRun:
		return "stop"
	case CloseConnection:
		return "close"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// ControlFrame is one command on the control channel. Params is only
// meaningful for StartRun.
type ControlFrame struct {
	Kind   CommandKind
	Params SimulationParameters
}

// StartFrame builds a StartRun frame.
func StartFrame(p SimulationParameters) ControlFrame {
	return ControlFrame{Kind: StartRun, Params: p}
}

// StopFrame builds a StopRun frame.
func StopFrame() ControlFrame { return ControlFrame{Kind: StopRun} }

// CloseFrame builds a CloseConnection frame.
func CloseFrame() ControlFrame { return ControlFrame{Kind: CloseConnection} }

// Acknowledgement strings sent by the controller server.
const (
	AckStart       = "Command start executed"
	AckStop        = "Command Stop executed"
	AckStartFailed = "Command start failed"
)
