package llm

import (
	_ "embed"
	"math/rand"
)

// grammarSource constrains every generation to the JSON language of
// llmResponse. It mirrors the wire form of pkg/types.Outcome.
//
//go:embed response.gbnf
var grammarSource string

const grammarRoot = "root"

// Temperature band for response variety. Each call draws a fresh value so
// repeated questions do not produce byte-identical replies while staying
// schema-valid under the grammar.
const (
	tempMin = 0.2
	tempMax = 0.4
)

func newSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Grammar:     grammarSource,
		GrammarRoot: grammarRoot,
		Temperature: tempMin + rand.Float32()*(tempMax-tempMin),
		Seed:        rand.Uint32(),
	}
}
