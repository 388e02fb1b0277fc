//go:build llama

package llm

// In-process llama runtime. Links libllama directly:
// - rpath of $ORIGIN so the loader finds libllama.so next to the built
//   binary (./bin).
// - -L${SRCDIR}/../../bin so the linker finds it at build time.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
#include <stdlib.h>
#include "llama.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

var backendOnce sync.Once

type llamaModel struct {
	model *C.struct_llama_model
	vocab *C.struct_llama_vocab
}

// OpenModel loads gguf weights and initializes the process-wide backend on
// first use.
func OpenModel(path string) (Model, error) {
	backendOnce.Do(func() { C.llama_backend_init() })

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	params := C.llama_model_default_params()
	m := C.llama_model_load_from_file(cpath, params)
	if m == nil {
		return nil, fmt.Errorf("load model: %s", path)
	}
	return &llamaModel{model: m, vocab: C.llama_model_get_vocab(m)}, nil
}

func (m *llamaModel) NewContext(cfg ContextConfig) (Context, error) {
	params := C.llama_context_default_params()
	params.n_ctx = C.uint32_t(cfg.NCtx)
	// the whole prompt must fit one decode call
	params.n_batch = C.uint32_t(cfg.NCtx)
	if cfg.NThreads > 0 {
		params.n_threads = C.int32_t(cfg.NThreads)
	}
	if cfg.NThreadsBatch > 0 {
		params.n_threads_batch = C.int32_t(cfg.NThreadsBatch)
	}
	ctx := C.llama_init_from_model(m.model, params)
	if ctx == nil {
		return nil, errors.New("create llama context")
	}
	return &llamaContext{ctx: ctx, model: m, nCtx: cfg.NCtx}, nil
}

func (m *llamaModel) Tokenize(text string, addBOS bool) ([]Token, error) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	capTokens := len(text) + 8
	buf := make([]C.llama_token, capTokens)
	n := C.llama_tokenize(m.vocab, ctext, C.int32_t(len(text)),
		&buf[0], C.int32_t(capTokens), C.bool(addBOS), C.bool(true))
	if n < 0 {
		buf = make([]C.llama_token, -n)
		n = C.llama_tokenize(m.vocab, ctext, C.int32_t(len(text)),
			&buf[0], C.int32_t(len(buf)), C.bool(addBOS), C.bool(true))
		if n < 0 {
			return nil, fmt.Errorf("tokenize: n=%d", int(n))
		}
	}
	out := make([]Token, int(n))
	for i := range out {
		out[i] = Token(buf[i])
	}
	return out, nil
}

func (m *llamaModel) TokenToText(tok Token) (string, error) {
	var buf [256]C.char
	n := C.llama_token_to_piece(m.vocab, C.llama_token(tok),
		&buf[0], C.int32_t(len(buf)), 0, C.bool(true))
	if n < 0 {
		return "", fmt.Errorf("token to piece: token=%d n=%d", tok, int(n))
	}
	return C.GoStringN(&buf[0], n), nil
}

func (m *llamaModel) IsEOG(tok Token) bool {
	return bool(C.llama_vocab_is_eog(m.vocab, C.llama_token(tok)))
}

func (m *llamaModel) Close() error {
	if m.model != nil {
		C.llama_model_free(m.model)
		m.model = nil
	}
	return nil
}

type llamaContext struct {
	ctx   *C.struct_llama_context
	model *llamaModel
	nCtx  int32
}

func (c *llamaContext) Decode(b *Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	cb := C.llama_batch_init(C.int32_t(n), 0, 1)
	defer C.llama_batch_free(cb)

	tokens := unsafe.Slice(cb.token, n)
	pos := unsafe.Slice(cb.pos, n)
	nSeq := unsafe.Slice(cb.n_seq_id, n)
	seq := unsafe.Slice(cb.seq_id, n)
	logits := unsafe.Slice(cb.logits, n)
	for i := 0; i < n; i++ {
		tokens[i] = C.llama_token(b.Tokens[i])
		pos[i] = C.llama_pos(b.Pos[i])
		nSeq[i] = 1
		unsafe.Slice(seq[i], 1)[0] = 0
		if b.Logits[i] {
			logits[i] = 1
		} else {
			logits[i] = 0
		}
	}
	cb.n_tokens = C.int32_t(n)

	if rc := C.llama_decode(c.ctx, cb); rc != 0 {
		return fmt.Errorf("llama_decode rc=%d", int(rc))
	}
	return nil
}

func (c *llamaContext) NewSampler(cfg SamplerConfig) (Sampler, error) {
	params := C.llama_sampler_chain_default_params()
	chain := C.llama_sampler_chain_init(params)

	C.llama_sampler_chain_add(chain, C.llama_sampler_init_temp(C.float(cfg.Temperature)))

	cGrammar := C.CString(cfg.Grammar)
	defer C.free(unsafe.Pointer(cGrammar))
	cRoot := C.CString(cfg.GrammarRoot)
	defer C.free(unsafe.Pointer(cRoot))
	g := C.llama_sampler_init_grammar(c.model.vocab, cGrammar, cRoot)
	if g == nil {
		C.llama_sampler_free(chain)
		return nil, errors.New("init grammar sampler, check GBNF syntax")
	}
	C.llama_sampler_chain_add(chain, g)

	C.llama_sampler_chain_add(chain, C.llama_sampler_init_dist(C.uint32_t(cfg.Seed)))
	return &llamaSampler{chain: chain, ctx: c.ctx}, nil
}

func (c *llamaContext) SaveSession(path string, tokens []Token) error {
	if len(tokens) == 0 {
		return errors.New("save session: empty token sequence")
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	ctoks := make([]C.llama_token, len(tokens))
	for i, t := range tokens {
		ctoks[i] = C.llama_token(t)
	}
	if !bool(C.llama_state_save_file(c.ctx, cpath, &ctoks[0], C.size_t(len(ctoks)))) {
		return fmt.Errorf("save session: %s", path)
	}
	return nil
}

func (c *llamaContext) LoadSession(path string) ([]Token, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	buf := make([]C.llama_token, c.nCtx)
	var count C.size_t
	ok := C.llama_state_load_file(c.ctx, cpath, &buf[0], C.size_t(len(buf)), &count)
	if !bool(ok) {
		return nil, fmt.Errorf("load session: %s", path)
	}
	out := make([]Token, int(count))
	for i := range out {
		out[i] = Token(buf[i])
	}
	return out, nil
}

func (c *llamaContext) Close() error {
	if c.ctx != nil {
		C.llama_free(c.ctx)
		c.ctx = nil
	}
	return nil
}

type llamaSampler struct {
	chain *C.struct_llama_sampler
	ctx   *C.struct_llama_context
}

func (s *llamaSampler) Sample(lastLogitsIndex int32) (Token, error) {
	tok := C.llama_sampler_sample(s.chain, s.ctx, C.int32_t(lastLogitsIndex))
	return Token(tok), nil
}

func (s *llamaSampler) Close() error {
	if s.chain != nil {
		C.llama_sampler_free(s.chain)
		s.chain = nil
	}
	return nil
}
