package lifecycle

import "botd/internal/kernel"

// NewSchedule declares the wake-ups per state:
//
//   - Idle with memory: Timeout at LastTouch + GoodbyeDelay, the inactivity
//     goodbye. Soft: any activity cancels it.
//   - any non-idle state: ForceReset at now + ForceResetDelay, the only
//     timer that must fire to preserve liveness.
//   - Idle without memory: nothing.
func NewSchedule(env *Env) func(State) []kernel.Scheduled[Action] {
	return func(s State) []kernel.Scheduled[Action] {
		switch s.Kind {
		case KindIdle:
			if s.Memory == nil {
				return nil
			}
			return []kernel.Scheduled[Action]{{
				At:     s.Memory.LastTouch.Add(env.GoodbyeDelay),
				Action: Timeout(),
			}}
		default:
			return []kernel.Scheduled[Action]{{
				At:     env.Now().Add(env.ForceResetDelay),
				Action: ForceReset(),
			}}
		}
	}
}
