package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botd/internal/common/fsutil"
	"botd/internal/metrics"
	"botd/pkg/types"
)

// llmResponse is the wire shape the grammar constrains generation to.
type llmResponse struct {
	Outcome types.Outcome `json:"outcome"`
}

// Options configures an Engine.
type Options struct {
	Context             ContextConfig
	SessionPath         string
	BasePrompt          string
	MaxGenerationTokens int
	// Admission gate across all users.
	MaxConcurrentDecodes int
	MaxQueueDepth        int
	MaxWait              time.Duration
	Logger               zerolog.Logger
}

// Engine owns the model handle and the base-prompt session cache. The model
// is shared read-only; every Infer call allocates its own context, replays
// the cached attention state and evaluates only the dynamic suffix.
type Engine struct {
	model   Model
	cfg     ContextConfig
	session string
	base    string
	maxGen  int
	gate    *gate
	est     *estimator
	log     zerolog.Logger

	warm atomic.Bool
}

// NewEngine builds an engine around an opened model.
func NewEngine(model Model, opts Options) *Engine {
	maxGen := opts.MaxGenerationTokens
	if maxGen <= 0 {
		maxGen = 2000
	}
	return &Engine{
		model:   model,
		cfg:     opts.Context,
		session: opts.SessionPath,
		base:    opts.BasePrompt,
		maxGen:  maxGen,
		gate:    newGate(opts.MaxConcurrentDecodes, opts.MaxQueueDepth, opts.MaxWait),
		est:     newEstimator(),
		log:     opts.Logger,
	}
}

// SessionWarm reports whether the base-prompt session has been serialized
// successfully since startup.
func (e *Engine) SessionWarm() bool { return e.warm.Load() }

// SessionPath returns the configured session file location.
func (e *Engine) SessionPath() string { return e.session }

// Warm evaluates the static base prompt once and serializes the resulting
// attention state next to the exact token sequence that produced it.
func (e *Engine) Warm(ctx context.Context) error {
	lctx, err := e.model.NewContext(e.cfg)
	if err != nil {
		return err
	}
	defer lctx.Close()

	if _, err := e.warmInto(lctx); err != nil {
		return err
	}
	return nil
}

// warmInto tokenizes and decodes the base prompt into lctx from position 0
// and saves the session file. Returns the base token sequence.
func (e *Engine) warmInto(lctx Context) ([]Token, error) {
	tokens, err := e.model.Tokenize(e.base, true)
	if err != nil {
		return nil, err
	}
	if int32(len(tokens)) >= e.cfg.NCtx {
		return nil, contextOverflowError{msg: "base prompt exceeds context window"}
	}

	guard := positionGuard{}
	var batch Batch
	for i, tok := range tokens {
		batch.Add(tok, int32(i), i == len(tokens)-1)
	}
	if err := guard.check(&batch); err != nil {
		return nil, err
	}
	if err := lctx.Decode(&batch); err != nil {
		return nil, ErrDecodeInvariant(err.Error())
	}
	guard.commit(&batch)

	if err := fsutil.EnsureParentDir(e.session); err != nil {
		return nil, err
	}
	if err := lctx.SaveSession(e.session, tokens); err != nil {
		return nil, err
	}
	e.warm.Store(true)
	e.log.Info().Int("base_tokens", len(tokens)).Str("path", e.session).
		Msg("base prompt session saved")
	return tokens, nil
}

// loadOrWarm restores the cached base state into lctx, falling back to an
// inline warm when the session file is missing or incompatible. Never
// re-decodes base tokens on the load path.
func (e *Engine) loadOrWarm(lctx Context) ([]Token, error) {
	tokens, err := lctx.LoadSession(e.session)
	if err == nil {
		metrics.SessionLoads.WithLabelValues("hit").Inc()
		return tokens, nil
	}
	metrics.SessionLoads.WithLabelValues("miss").Inc()
	e.log.Warn().Err(err).Str("path", e.session).
		Msg("session load failed, warming inline (slower)")
	return e.warmInto(lctx)
}

// Infer runs one grammar-constrained decision. input and history are the
// dynamic suffix; the cached base prompt is replayed, never re-evaluated.
func (e *Engine) Infer(ctx context.Context, input types.LLMInput, history types.History) (types.Outcome, error) {
	release, err := e.gate.acquire(ctx)
	if err != nil {
		return types.Outcome{}, err
	}
	defer release()

	start := time.Now()
	callID := uuid.NewString()[:8]
	log := e.log.With().Str("call", callID).Logger()

	lctx, err := e.model.NewContext(e.cfg)
	if err != nil {
		return types.Outcome{}, err
	}
	defer lctx.Close()

	baseTokens, err := e.loadOrWarm(lctx)
	if err != nil {
		return types.Outcome{}, err
	}
	b := int32(len(baseTokens))
	guard := positionGuard{filled: b}

	// Fit history into what remains after base, input and generation room.
	inputBudget := e.est.count(formatInput(input))
	budget := int(e.cfg.NCtx) - len(baseTokens) - e.maxGen - inputBudget - 128
	trimmed := trimHistory(history, budget, e.est)
	if dropped := len(history) - len(trimmed); dropped > 0 {
		log.Debug().Int("dropped_entries", dropped).Msg("history trimmed to fit context")
	}

	dynamic, err := buildDynamicPrompt(input, trimmed)
	if err != nil {
		return types.Outcome{}, err
	}
	// BOS off: the cached base already supplied it.
	dynTokens, err := e.model.Tokenize(dynamic, false)
	if err != nil {
		return types.Outcome{}, err
	}
	if len(dynTokens) == 0 {
		return types.Outcome{}, contextOverflowError{msg: "empty dynamic prompt"}
	}
	if b+int32(len(dynTokens)) >= e.cfg.NCtx {
		return types.Outcome{}, contextOverflowError{msg: "dynamic prompt exceeds context window"}
	}

	var batch Batch
	for i, tok := range dynTokens {
		batch.Add(tok, b+int32(i), i == len(dynTokens)-1)
	}
	if err := guard.check(&batch); err != nil {
		return types.Outcome{}, err
	}
	if err := lctx.Decode(&batch); err != nil {
		return types.Outcome{}, ErrDecodeInvariant(err.Error())
	}
	guard.commit(&batch)

	sampler, err := lctx.NewSampler(newSamplerConfig())
	if err != nil {
		return types.Outcome{}, err
	}
	defer sampler.Close()

	// Absolute cursor over the context; the next generated token lands here.
	nCur := b + int32(len(dynTokens))
	lastIdx := int32(len(dynTokens) - 1)

	var out strings.Builder
	generated := 0
	for generated < e.maxGen && nCur < e.cfg.NCtx {
		if err := ctx.Err(); err != nil {
			return types.Outcome{}, err
		}
		tok, err := sampler.Sample(lastIdx)
		if err != nil {
			return types.Outcome{}, err
		}
		if e.model.IsEOG(tok) {
			break
		}
		piece, err := e.model.TokenToText(tok)
		if err != nil {
			return types.Outcome{}, err
		}
		out.WriteString(piece)
		generated++

		batch.Clear()
		batch.Add(tok, nCur, true)
		if err := guard.check(&batch); err != nil {
			return types.Outcome{}, err
		}
		if err := lctx.Decode(&batch); err != nil {
			return types.Outcome{}, ErrDecodeInvariant(err.Error())
		}
		guard.commit(&batch)
		nCur++
		lastIdx = 0
	}

	metrics.ObserveInference(start, generated)

	raw := out.String()
	var resp llmResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.Error().Str("raw", raw).Err(err).
			Msg("grammar-constrained output failed to parse, grammar bug?")
		return types.Outcome{}, grammarParseError{msg: err.Error(), raw: raw}
	}
	if err := resp.Outcome.Validate(); err != nil {
		log.Error().Str("raw", raw).Err(err).
			Msg("grammar-constrained output failed validation, grammar bug?")
		return types.Outcome{}, grammarParseError{msg: err.Error(), raw: raw}
	}

	log.Debug().Int("dynamic_tokens", len(dynTokens)).Int("generated", generated).
		Dur("took", time.Since(start)).Msg("inference complete")
	return resp.Outcome, nil
}

// TokenToText renders one token id as text.
func (e *Engine) TokenToText(tok Token) (string, error) {
	return e.model.TokenToText(tok)
}
