package llm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"botd/pkg/types"
)

const testBasePrompt = "SYSTEM: you are a test bot"

func newTestEngine(t *testing.T, m *fakeModel, nCtx int32, maxGen int) *Engine {
	t.Helper()
	return NewEngine(m, Options{
		Context:             ContextConfig{NCtx: nCtx, NThreads: 1, NThreadsBatch: 1},
		SessionPath:         filepath.Join(t.TempDir(), "base.session"),
		BasePrompt:          testBasePrompt,
		MaxGenerationTokens: maxGen,
		Logger:              zerolog.Nop(),
	})
}

func baseTokenCount() int {
	// one token per byte plus BOS
	return len(testBasePrompt) + 1
}

func TestWarmWritesSessionWithContiguousPositions(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 100)
	if e.SessionWarm() {
		t.Fatalf("engine reports warm before Warm")
	}
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if !e.SessionWarm() {
		t.Fatalf("engine not marked warm")
	}
	toks, ok := m.sessions[e.SessionPath()]
	if !ok {
		t.Fatalf("session not saved")
	}
	if len(toks) != baseTokenCount() {
		t.Fatalf("session token count: got %d want %d", len(toks), baseTokenCount())
	}
	if len(m.contexts) != 1 {
		t.Fatalf("expected one warm context, got %d", len(m.contexts))
	}
	warmCtx := m.contexts[0]
	if len(warmCtx.decoded) != 1 {
		t.Fatalf("expected single warm decode, got %d", len(warmCtx.decoded))
	}
	b := warmCtx.decoded[0]
	for i, p := range b.Pos {
		if p != int32(i) {
			t.Fatalf("warm position %d = %d", i, p)
		}
		wantLogits := i == len(b.Pos)-1
		if b.Logits[i] != wantLogits {
			t.Fatalf("warm logits flag at %d = %v", i, b.Logits[i])
		}
	}
	if !warmCtx.closed {
		t.Fatalf("warm context not closed")
	}
}

func TestInferReplaysSessionWithoutRedecodingBase(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	wire := `{"outcome":{"Final":{"response":"Hi!"}}}`
	m.scriptText(wire)

	out, err := e.Infer(context.Background(), types.NewUserMessage("hello"), nil)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Final == nil || out.Final.Response != "Hi!" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	if len(m.contexts) != 2 {
		t.Fatalf("expected warm+hot contexts, got %d", len(m.contexts))
	}
	hot := m.contexts[1]
	b := int32(baseTokenCount())
	if len(hot.decoded) == 0 {
		t.Fatalf("hot context decoded nothing")
	}
	// base tokens are never re-decoded on the load path
	for _, batch := range hot.decoded {
		for _, p := range batch.Pos {
			if p < b {
				t.Fatalf("hot path re-decoded base position %d", p)
			}
		}
	}
	// dynamic prompt batch starts exactly at the filled prefix
	if hot.decoded[0].Pos[0] != b {
		t.Fatalf("first dynamic position = %d, want %d", hot.decoded[0].Pos[0], b)
	}
	// total decoded = D + G, and positions are globally contiguous
	d := len(hot.decoded[0].Pos)
	g := len([]rune(wire))
	total := 0
	next := b
	for _, batch := range hot.decoded {
		for _, p := range batch.Pos {
			if p != next {
				t.Fatalf("non-contiguous hot position %d, want %d", p, next)
			}
			next++
			total++
		}
	}
	if total != d+g {
		t.Fatalf("decoded positions = %d, want D+G = %d", total, d+g)
	}
	// sampler consumed the prompt's last logits index first, then 0
	if m.sampledIdxs[0] != int32(d-1) {
		t.Fatalf("first sample index = %d, want %d", m.sampledIdxs[0], d-1)
	}
	for i, idx := range m.sampledIdxs[1:] {
		if idx != 0 {
			t.Fatalf("sample index %d = %d, want 0", i+1, idx)
		}
	}
}

func TestInferFallbackWarmsInline(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	// no Warm, no session file: the first call pays the full evaluation
	wire := `{"outcome":{"Final":{"response":"ok"}}}`
	m.scriptText(wire)

	out, err := e.Infer(context.Background(), types.NewUserMessage("hi"), nil)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Final == nil || out.Final.Response != "ok" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(m.contexts) != 1 {
		t.Fatalf("fallback must reuse the call's context, got %d contexts", len(m.contexts))
	}
	hot := m.contexts[0]
	// first decode is the inline warm at positions 0..B-1
	b := baseTokenCount()
	first := hot.decoded[0]
	if len(first.Pos) != b || first.Pos[0] != 0 || first.Pos[len(first.Pos)-1] != int32(b-1) {
		t.Fatalf("inline warm batch wrong: %v", first.Pos)
	}
	// second decode continues at B
	if hot.decoded[1].Pos[0] != int32(b) {
		t.Fatalf("dynamic batch starts at %d, want %d", hot.decoded[1].Pos[0], b)
	}
	// session file was written for the next call
	if _, ok := m.sessions[e.SessionPath()]; !ok {
		t.Fatalf("fallback did not save session")
	}
	if !e.SessionWarm() {
		t.Fatalf("engine not marked warm after inline warm")
	}
}

func TestInferSecondCallHitsFreshSession(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	wire := `{"outcome":{"Final":{"response":"ok"}}}`
	m.scriptText(wire)
	if _, err := e.Infer(context.Background(), types.NewUserMessage("a"), nil); err != nil {
		t.Fatalf("first infer: %v", err)
	}
	m.scriptText(wire)
	if _, err := e.Infer(context.Background(), types.NewUserMessage("b"), nil); err != nil {
		t.Fatalf("second infer: %v", err)
	}
	second := m.contexts[1]
	b := int32(baseTokenCount())
	for _, batch := range second.decoded {
		for _, p := range batch.Pos {
			if p < b {
				t.Fatalf("second call re-decoded base position %d", p)
			}
		}
	}
}

func TestInferGrammarParseFailure(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	m.scriptText("definitely not json")
	_, err := e.Infer(context.Background(), types.NewUserMessage("hello"), nil)
	if err == nil || !IsGrammarParse(err) {
		t.Fatalf("expected grammar parse error, got %v", err)
	}
}

func TestInferValidatesOutcomeVariant(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	// parses as JSON but holds no variant
	m.scriptText(`{"outcome":{}}`)
	_, err := e.Infer(context.Background(), types.NewUserMessage("hello"), nil)
	if err == nil || !IsGrammarParse(err) {
		t.Fatalf("expected grammar parse error, got %v", err)
	}
}

func TestInferStopsAtMaxGenerationTokens(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 3)
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	m.scriptText(`{"outcome":{"Final":{"response":"far too long"}}}`)
	_, err := e.Infer(context.Background(), types.NewUserMessage("hello"), nil)
	if err == nil || !IsGrammarParse(err) {
		t.Fatalf("expected parse error from truncated output, got %v", err)
	}
	hot := m.contexts[1]
	// one dynamic prompt batch plus exactly maxGen single-token batches
	if got := len(hot.decoded); got != 1+3 {
		t.Fatalf("decode batches = %d, want 4", got)
	}
}

func TestInferDecodeFailureIsDecodeInvariant(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 4096, 200)
	if err := e.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	m.scriptText(`{"outcome":{"Final":{"response":"x"}}}`)
	// decode #1 was the warm; fail the hot path's dynamic decode
	m.decodeErrAt = 2
	_, err := e.Infer(context.Background(), types.NewUserMessage("hello"), nil)
	if err == nil || !IsDecodeInvariant(err) {
		t.Fatalf("expected decode invariant error, got %v", err)
	}
}

func TestWarmOverflowingBasePrompt(t *testing.T) {
	m := newFakeModel()
	e := newTestEngine(t, m, 8, 4)
	err := e.Warm(context.Background())
	if err == nil || !IsContextOverflow(err) {
		t.Fatalf("expected context overflow, got %v", err)
	}
}

func TestPositionGuard(t *testing.T) {
	g := positionGuard{filled: 5}
	good := &Batch{}
	good.Add(1, 5, false)
	good.Add(2, 6, true)
	if err := g.check(good); err != nil {
		t.Fatalf("contiguous batch rejected: %v", err)
	}
	g.commit(good)
	if g.filled != 7 {
		t.Fatalf("filled = %d, want 7", g.filled)
	}
	bad := &Batch{}
	bad.Add(3, 9, true)
	err := g.check(bad)
	if err == nil || !IsDecodeInvariant(err) {
		t.Fatalf("expected decode invariant error, got %v", err)
	}
}

func TestGateBackpressure(t *testing.T) {
	g := newGate(1, 2, 20*time.Millisecond)
	release, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err = g.acquire(context.Background())
	if err == nil || !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	release()
	release2, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestGateRespectsCanceledContext(t *testing.T) {
	g := newGate(1, 2, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.acquire(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
