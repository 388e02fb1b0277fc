package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"botd/internal/kernel"
	"botd/internal/metrics"
	"botd/pkg/types"
)

// Effect adapters: each turns a collaborator call into a background task
// that reports back as an action. None of them may panic; failures travel
// as action payloads.

func llmEffect(env *Env, input types.LLMInput, history types.History) kernel.Effect[Action] {
	op := uuid.NewString()[:8]
	return func(ctx context.Context) Action {
		metrics.EffectsInflight.WithLabelValues("llm").Inc()
		defer metrics.EffectsInflight.WithLabelValues("llm").Dec()
		outcome, err := env.LLM.Infer(ctx, input, history)
		if err != nil {
			env.Log.Warn().Str("op", op).Err(err).Msg("llm effect failed")
			return LLMDecisionErr(err.Error())
		}
		return LLMDecisionOK(outcome)
	}
}

func sendEffect(env *Env, id types.UserID, text string) kernel.Effect[Action] {
	op := uuid.NewString()[:8]
	return func(ctx context.Context) Action {
		metrics.EffectsInflight.WithLabelValues("send").Inc()
		defer metrics.EffectsInflight.WithLabelValues("send").Dec()
		err := env.Chat.SendDM(ctx, id, text)
		if err != nil {
			metrics.MessagesSent.WithLabelValues("error").Inc()
			env.Log.Warn().Str("op", op).Str("user", id.String()).Err(err).
				Msg("send effect failed")
		} else {
			metrics.MessagesSent.WithLabelValues("ok").Inc()
		}
		return MessageSentResult(err)
	}
}

func toolEffect(env *Env, call types.ToolCall) kernel.Effect[Action] {
	op := uuid.NewString()[:8]
	return func(ctx context.Context) Action {
		metrics.EffectsInflight.WithLabelValues("tool").Inc()
		defer metrics.EffectsInflight.WithLabelValues("tool").Dec()
		env.Log.Debug().Str("op", op).Str("tool", call.Name()).Msg("running tool")
		return ToolResult(env.Tools.Run(ctx, call))
	}
}
