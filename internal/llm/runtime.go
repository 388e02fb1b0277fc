package llm

// Token is a model vocabulary id.
type Token int32

// RuntimeBuilt reports whether this binary carries the real llama runtime.
func RuntimeBuilt() bool { return llamaBuilt }

// ContextConfig fixes the parameters a context is created with. A serialized
// session is only valid for the exact configuration that produced it, so
// these values are part of the session's identity.
type ContextConfig struct {
	NCtx          int32
	NThreads      int32
	NThreadsBatch int32
}

// Model abstracts the loaded weights plus the process-wide backend. Safe for
// concurrent use; each inference creates its own Context.
// The real implementation lives behind the 'llama' build tag.
type Model interface {
	// NewContext allocates a fresh inference context.
	NewContext(cfg ContextConfig) (Context, error)
	// Tokenize converts text to tokens, optionally prefixing BOS.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// TokenToText renders one token as text.
	TokenToText(tok Token) (string, error)
	// IsEOG reports whether tok ends generation.
	IsEOG(tok Token) bool
	Close() error
}

// Context is one attention-state instance. Not safe for concurrent use.
type Context interface {
	// Decode evaluates the batch, filling the KV cache at the batch's
	// positions.
	Decode(b *Batch) error
	// NewSampler builds a fresh sampler chain for one generation.
	NewSampler(cfg SamplerConfig) (Sampler, error)
	// SaveSession serializes the attention state together with the token
	// sequence that produced it.
	SaveSession(path string, tokens []Token) error
	// LoadSession restores attention state and returns the token sequence
	// it was built from.
	LoadSession(path string) ([]Token, error)
	Close() error
}

// SamplerConfig selects the token-sampling chain for one generation.
type SamplerConfig struct {
	Grammar     string
	GrammarRoot string
	Temperature float32
	Seed        uint32
}

// Sampler picks the next token from the logits produced by the last decode.
type Sampler interface {
	// Sample reads logits at the given index of the last decoded batch.
	Sample(lastLogitsIndex int32) (Token, error)
	Close() error
}

// Batch is a block of tokens submitted to one Decode call. Positions must
// extend the context's filled prefix contiguously; positionGuard enforces
// this before every decode.
type Batch struct {
	Tokens []Token
	Pos    []int32
	Logits []bool
}

// Add appends one token at an absolute position.
func (b *Batch) Add(tok Token, pos int32, logits bool) {
	b.Tokens = append(b.Tokens, tok)
	b.Pos = append(b.Pos, pos)
	b.Logits = append(b.Logits, logits)
}

// Clear empties the batch, keeping capacity.
func (b *Batch) Clear() {
	b.Tokens = b.Tokens[:0]
	b.Pos = b.Pos[:0]
	b.Logits = b.Logits[:0]
}

// Len returns the number of tokens in the batch.
func (b *Batch) Len() int { return len(b.Tokens) }

// positionGuard tracks the filled KV prefix of one context and rejects any
// batch that would break position contiguity. A violation corrupts decoding
// silently, so it is treated as fatal for the context.
type positionGuard struct {
	filled int32
}

func (g *positionGuard) check(b *Batch) error {
	for i, p := range b.Pos {
		want := g.filled + int32(i)
		if p != want {
			return decodeInvariantError{
				msg: "batch position " + itoa(int(p)) + " at index " + itoa(i) +
					", want " + itoa(int(want)),
			}
		}
	}
	return nil
}

func (g *positionGuard) commit(b *Batch) {
	g.filled += int32(len(b.Pos))
}

// fast integer to ascii for small non-negative values
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
