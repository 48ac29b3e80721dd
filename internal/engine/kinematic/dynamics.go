package kinematic

import (
	"math"

	"rlsim-bridge/internal/wire"
)

// state is the vessel state at its centre of gravity. Heading is radians,
// velocities are in the body frame.
type state struct {
	x, y, psi float64
	u, v, r   float64
}

// cogFromReference shifts a reference-point pose (heading in degrees) to the
// centre of gravity.
func cogFromReference(p wire.Pose, offset float64) state {
	psi := wire.DegToRad(p.Heading)
	return state{
		x:   p.X - offset*math.Cos(psi),
		y:   p.Y - offset*math.Sin(psi),
		psi: psi,
	}
}

// reference returns the reference-point pose with heading in radians.
func (s state) reference(offset float64) wire.Pose {
	return wire.Pose{
		X:       s.x + offset*math.Cos(s.psi),
		Y:       s.y + offset*math.Sin(s.psi),
		Heading: s.psi,
	}
}

// step integrates one explicit Euler step under body-frame force f.
func (s state) step(spec *Spec, env wire.Environment, f wire.Force, dt float64) state {
	// Wind pushes the hull toward WindDir; the current carries it toward CurrentDir.
	windDir := wire.DegToRad(env.WindDir)
	wind := spec.WindCoefficient * env.WindSpeed * env.WindSpeed
	wx, wy := wind*math.Cos(windDir), wind*math.Sin(windDir)
	cos, sin := math.Cos(s.psi), math.Sin(s.psi)
	fx := f.X + wx*cos + wy*sin
	fy := f.Y - wx*sin + wy*cos

	next := s
	next.u += dt * (fx - spec.Damping.Surge*s.u) / spec.Mass
	next.v += dt * (fy - spec.Damping.Sway*s.v) / spec.Mass
	next.r += dt * (f.N - spec.Damping.Yaw*s.r) / spec.YawInertia

	curDir := wire.DegToRad(env.CurrentDir)
	cx, cy := env.CurrentSpeed*math.Cos(curDir), env.CurrentSpeed*math.Sin(curDir)
	next.x += dt * (next.u*cos - next.v*sin + cx)
	next.y += dt * (next.u*sin + next.v*cos + cy)
	next.psi = wrap(s.psi + dt*next.r)
	return next
}

// wrap keeps an angle in (-pi, pi].
func wrap(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
