package llm

import (
	"errors"
	"strings"
	"sync"
)

// The fake runtime tokenizes one token per byte, which keeps position
// arithmetic observable without a real vocabulary. Token ids are the byte
// values; ids above 0x10000 are scripted generation tokens resolved through
// genPieces.

const (
	fakeBOS Token = 0x20000
	fakeEOG Token = 0x20001
)

type decodedBatch struct {
	Pos    []int32
	Logits []bool
}

type fakeModel struct {
	mu       sync.Mutex
	sessions map[string][]Token // simulated session files
	// script for generation: pieces emitted in order, then EOG
	genPieces []string
	// recordings
	contexts []*fakeContext

	failLoad     bool
	tokenizeErr  error
	samplerErr   error
	decodeErrAt  int // fail the Nth decode across all contexts (1-based, 0=never)
	decodeCalls  int
	sampledIdxs  []int32
	genPiecePtr  int
	lastSamplers int
}

func newFakeModel(pieces ...string) *fakeModel {
	return &fakeModel{sessions: map[string][]Token{}, genPieces: pieces}
}

// scriptText scripts generation to emit the given text one rune at a time.
func (m *fakeModel) scriptText(text string) {
	m.genPieces = nil
	for _, r := range text {
		m.genPieces = append(m.genPieces, string(r))
	}
	m.genPiecePtr = 0
}

func (m *fakeModel) NewContext(cfg ContextConfig) (Context, error) {
	c := &fakeContext{model: m, cfg: cfg}
	m.mu.Lock()
	m.contexts = append(m.contexts, c)
	m.mu.Unlock()
	return c, nil
}

func (m *fakeModel) Tokenize(text string, addBOS bool) ([]Token, error) {
	if m.tokenizeErr != nil {
		return nil, m.tokenizeErr
	}
	var out []Token
	if addBOS {
		out = append(out, fakeBOS)
	}
	for _, b := range []byte(text) {
		out = append(out, Token(b))
	}
	return out, nil
}

func (m *fakeModel) TokenToText(tok Token) (string, error) {
	if tok >= 0x10000 && tok != fakeBOS && tok != fakeEOG {
		return m.genPieces[int(tok-0x10000)], nil
	}
	return string([]byte{byte(tok)}), nil
}

func (m *fakeModel) IsEOG(tok Token) bool { return tok == fakeEOG }

func (m *fakeModel) Close() error { return nil }

// decodedPositions flattens every decode across every context, in order.
func (m *fakeModel) decodedPositions() []int32 {
	var out []int32
	for _, c := range m.contexts {
		for _, b := range c.decoded {
			out = append(out, b.Pos...)
		}
	}
	return out
}

type fakeContext struct {
	model   *fakeModel
	cfg     ContextConfig
	decoded []decodedBatch
	closed  bool
}

func (c *fakeContext) Decode(b *Batch) error {
	c.model.decodeCalls++
	if n := c.model.decodeErrAt; n > 0 && c.model.decodeCalls == n {
		return errors.New("scripted decode failure")
	}
	db := decodedBatch{
		Pos:    append([]int32(nil), b.Pos...),
		Logits: append([]bool(nil), b.Logits...),
	}
	c.decoded = append(c.decoded, db)
	return nil
}

func (c *fakeContext) NewSampler(cfg SamplerConfig) (Sampler, error) {
	if c.model.samplerErr != nil {
		return nil, c.model.samplerErr
	}
	if !strings.Contains(cfg.Grammar, "root") {
		return nil, errors.New("grammar missing root")
	}
	c.model.lastSamplers++
	return &fakeSampler{model: c.model}, nil
}

func (c *fakeContext) SaveSession(path string, tokens []Token) error {
	c.model.mu.Lock()
	defer c.model.mu.Unlock()
	c.model.sessions[path] = append([]Token(nil), tokens...)
	return nil
}

func (c *fakeContext) LoadSession(path string) ([]Token, error) {
	if c.model.failLoad {
		return nil, errors.New("scripted session load failure")
	}
	c.model.mu.Lock()
	defer c.model.mu.Unlock()
	toks, ok := c.model.sessions[path]
	if !ok {
		return nil, errors.New("session file missing")
	}
	return append([]Token(nil), toks...), nil
}

func (c *fakeContext) Close() error {
	c.closed = true
	return nil
}

type fakeSampler struct {
	model *fakeModel
}

func (s *fakeSampler) Sample(lastLogitsIndex int32) (Token, error) {
	s.model.sampledIdxs = append(s.model.sampledIdxs, lastLogitsIndex)
	if s.model.genPiecePtr >= len(s.model.genPieces) {
		return fakeEOG, nil
	}
	tok := Token(0x10000 + s.model.genPiecePtr)
	s.model.genPiecePtr++
	return tok, nil
}

func (s *fakeSampler) Close() error { return nil }
