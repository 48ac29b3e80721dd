package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"rlsim-bridge/internal/scenario"
	"rlsim-bridge/internal/wire"
)

// Policy chooses the force for a step given the latest pose.
type Policy func(step int, pose wire.Pose) wire.Force

// SchedulePolicy replays the episode's phase forces.
func SchedulePolicy(ep scenario.Episode) Policy {
	return func(step int, _ wire.Pose) wire.Force {
		p, _ := ep.PhaseAt(step)
		return p.Force
	}
}

// EpisodeResult summarises a finished episode.
type EpisodeResult struct {
	Name     string
	RunID    string
	Steps    int
	Initial  wire.Pose
	Final    wire.Pose
	Distance float64 // straight-line distance from the initial pose, m
	Elapsed  time.Duration
}

// RunEpisode resets the simulator to ep and steps it with policy until all
// phases are done. A nil policy replays the episode schedule.
func RunEpisode(ctx context.Context, c *Client, ep scenario.Episode, policy Policy) (EpisodeResult, error) {
	if err := ep.Validate(); err != nil {
		return EpisodeResult{}, fmt.Errorf("episode %s: %w", ep.Name, err)
	}
	if policy == nil {
		policy = SchedulePolicy(ep)
	}
	start := time.Now()
	pose, err := c.Reset(ctx, ep.Params())
	if err != nil {
		return EpisodeResult{}, fmt.Errorf("reset %s: %w", ep.Name, err)
	}
	res := EpisodeResult{Name: ep.Name, RunID: c.RunID(), Initial: pose, Final: pose}
	total := ep.Steps()
	for step := 0; step < total; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pose, err = c.Step(ctx, policy(step, pose))
		if err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		res.Steps++
		res.Final = pose
	}
	res.Distance = distance(res.Initial, res.Final)
	res.Elapsed = time.Since(start)
	c.log.Info("episode finished", "episode", ep.Name, "run_id", res.RunID, "steps", res.Steps, "distance", res.Distance)
	return res, nil
}

func distance(a, b wire.Pose) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
