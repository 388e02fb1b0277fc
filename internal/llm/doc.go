// Package llm owns the local inference core: the shared model handle, the
// base-prompt session cache, per-call context construction, prompt assembly,
// grammar-constrained decoding and token-to-text.
//
// The expensive static prefix (the base prompt) is evaluated once at warm
// time and serialized as attention state plus the exact tokens that produced
// it. Every Infer call replays that state into a fresh context and decodes
// only the dynamic suffix: the conversation history, the current input and
// the generated tokens. Position arithmetic across the three segments is
// guarded; a contiguity violation aborts the call rather than corrupt
// decoding silently.
//
// The cgo boundary is an interface (Model/Context/Sampler) with a real
// implementation behind the 'llama' build tag and a fail-fast stub without
// it, so the engine logic stays testable in CGO-free builds.
package llm
