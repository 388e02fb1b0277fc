package lifecycle

import (
	"errors"

	"botd/internal/kernel"
	"botd/internal/metrics"
	"botd/pkg/types"
)

// ErrInvalidTransition marks a (state, action) pair outside the matrix. The
// kernel logs it and drops the action; the user's state is untouched.
var ErrInvalidTransition = errors.New("invalid state or action")

type transitionResult = []kernel.Effect[Action]

// Transition is the user state machine. Only the pairs below are legal;
// everything else returns ErrInvalidTransition.
func Transition(env *Env, id types.UserID, s State, a Action) (State, transitionResult, error) {
	next, effects, err := transition(env, id, s, a)
	result := "ok"
	if err != nil {
		result = "invalid"
	}
	metrics.Transitions.WithLabelValues(a.Kind.String(), result).Inc()
	if err == nil && next.Kind != s.Kind {
		env.Log.Debug().Str("user", id.String()).
			Str("from", s.Kind.String()).Str("to", next.Kind.String()).
			Str("action", a.Kind.String()).Msg("transition")
	}
	return next, effects, err
}

func transition(env *Env, id types.UserID, s State, a Action) (State, transitionResult, error) {
	switch a.Kind {
	case ActionForceReset:
		// the liveness backstop: any stuck non-idle user goes home
		if s.Kind == KindIdle {
			return s, nil, ErrInvalidTransition
		}
		env.Log.Warn().Str("user", id.String()).Str("state", s.Kind.String()).
			Msg("force reset")
		return Idle(nil), nil, nil

	case ActionNewMessage:
		if !a.StartConversation {
			// not addressed to the bot; dropped in every state
			return s, nil, nil
		}
		if s.Kind != KindIdle {
			return s, nil, ErrInvalidTransition
		}
		input := types.NewUserMessage(a.Text)
		prior := memorySeed(s.Memory)
		return State{
				Kind:    KindAwaitingLLMDecision,
				History: prior.AppendInput(input),
			}, transitionResult{llmEffect(env, input, prior)},
			nil

	case ActionTimeout:
		if s.Kind != KindIdle {
			return s, nil, ErrInvalidTransition
		}
		if s.Memory == nil {
			// nothing to say goodbye about
			return s, nil, nil
		}
		input := goodbyeInput(s.Memory)
		return State{
				Kind:          KindAwaitingLLMDecision,
				TimeoutDriven: true,
				History:       types.History{}.AppendInput(input),
			}, transitionResult{llmEffect(env, input, nil)},
			nil

	case ActionLLMDecision:
		if s.Kind != KindAwaitingLLMDecision {
			return s, nil, ErrInvalidTransition
		}
		if a.Err != "" {
			env.Log.Error().Str("user", id.String()).Str("error", a.Err).
				Msg("inference failed, resetting user")
			return Idle(nil), nil, nil
		}
		return handleOutcome(env, id, s, a.Outcome)

	case ActionMessageSent:
		if s.Kind != KindSendingMessage {
			return s, nil, ErrInvalidTransition
		}
		// Err is deliberately treated like Ok: the user retries by sending
		// again, retrying here risks duplicate deliveries.
		if a.Err != "" {
			env.Log.Warn().Str("user", id.String()).Str("error", a.Err).
				Msg("send failed, continuing")
		}
		if s.Outcome.IntermediateToolCall != nil {
			tc := s.Outcome.IntermediateToolCall.ToolCall
			return State{
					Kind:    KindRunningTool,
					Pending: tc,
					History: s.History.AppendOutcome(s.Outcome),
				}, transitionResult{toolEffect(env, tc)},
				nil
		}
		if s.TimeoutDriven {
			// the goodbye turn clears memory
			return Idle(nil), nil, nil
		}
		return Idle(&Memory{
			Summary:   deriveSummary(s.History, s.Outcome),
			LastTouch: env.Now(),
		}), nil, nil

	case ActionToolResult:
		if s.Kind != KindRunningTool {
			return s, nil, ErrInvalidTransition
		}
		input := types.NewToolResultInput(a.Text)
		return State{
				Kind:    KindAwaitingLLMDecision,
				History: s.History.AppendInput(input),
			}, transitionResult{llmEffect(env, input, s.History)},
			nil

	default:
		return s, nil, ErrInvalidTransition
	}
}

// handleOutcome routes a successful inference verdict.
func handleOutcome(env *Env, id types.UserID, s State, o types.Outcome) (State, transitionResult, error) {
	switch {
	case o.Final != nil:
		return State{
				Kind:          KindSendingMessage,
				Outcome:       o,
				History:       s.History,
				TimeoutDriven: s.TimeoutDriven,
			}, transitionResult{sendEffect(env, id, o.Final.Response)},
			nil

	case o.IntermediateToolCall != nil:
		itc := o.IntermediateToolCall
		// empty string means the same as nil: run the tool silently
		if itc.MaybeIntermediateResponse != nil && *itc.MaybeIntermediateResponse != "" {
			return State{
					Kind:          KindSendingMessage,
					Outcome:       o,
					History:       s.History,
					TimeoutDriven: s.TimeoutDriven,
				}, transitionResult{sendEffect(env, id, *itc.MaybeIntermediateResponse)},
				nil
		}
		return State{
				Kind:    KindRunningTool,
				Pending: itc.ToolCall,
				History: s.History.AppendOutcome(o),
			}, transitionResult{toolEffect(env, itc.ToolCall)},
			nil

	default:
		// the engine validates outcomes; an empty one here is a bug upstream
		env.Log.Error().Str("user", id.String()).Msg("empty outcome, resetting user")
		return Idle(nil), nil, nil
	}
}
